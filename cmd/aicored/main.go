// Command aicored serves the broker over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/krlsedu/aicore"
	"github.com/krlsedu/aicore/meter"
	prommetrics "github.com/krlsedu/aicore/meter/prometheus"
	"github.com/krlsedu/aicore/provider/gemini"
	"github.com/krlsedu/aicore/provider/openaicompat"
	"github.com/krlsedu/aicore/telemetry"
	telemetrypg "github.com/krlsedu/aicore/telemetry/postgres"
	telemetryredis "github.com/krlsedu/aicore/telemetry/redis"
	telemetrysqlite "github.com/krlsedu/aicore/telemetry/sqlite"
)

const (
	envAddr      = "AICORE_ADDR"
	envConfig    = "AICORE_CONFIG"
	envTransport = "AICORE_TRANSPORT"
	envBaseURL   = "AICORE_BASE_URL"
	envLogLevel  = "LOG_LEVEL"
	envLogFormat = "LOG_FORMAT"

	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "aicored:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(os.Getenv(envLogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var out io.Writer = os.Stdout
	if os.Getenv(envLogFormat) == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	zlog := zerolog.New(out).Level(level).With().Timestamp().Str("service", "aicored").Logger()
	slogger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel(level)}))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	usage := meter.NewUsageMeter(nil)
	opts := []aicore.Option{
		aicore.WithLogger(slogger),
		aicore.WithMeter(meter.NewMulti(
			meter.NewZerologMeter(zlog),
			prommetrics.NewMetrics(reg, "aicore"),
			usage,
		)),
	}

	sink, closeSink, err := openSink(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer closeSink()

	var async *telemetry.Async
	if sink != nil {
		async = telemetry.NewAsync(sink,
			telemetry.WithQueueSize(cfg.Telemetry.QueueSize),
			telemetry.WithLogger(slogger),
		)
		opts = append(opts, aicore.WithTelemetry(async))
	}

	broker, err := aicore.NewBroker(cfg, newTransport(), opts...)
	if err != nil {
		return err
	}
	reg.MustRegister(prommetrics.NewLedgerCollector(broker.Ledger(), "aicore"))

	addr := os.Getenv(envAddr)
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           newServer(broker, usage, reg, zlog).routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zlog.Info().Str("addr", addr).Str("telemetry", cfg.Telemetry.Driver).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zlog.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		if async != nil {
			if cerr := async.Close(shutdownCtx); cerr != nil {
				zlog.Warn().Err(cerr).Int64("dropped", async.Dropped()).Msg("telemetry drain incomplete")
			}
		}
		return err
	})
	return g.Wait()
}

// loadConfig reads AICORE_CONFIG when set, the environment otherwise.
func loadConfig() (aicore.Config, error) {
	if path := os.Getenv(envConfig); path != "" {
		return aicore.LoadConfig(path)
	}
	return aicore.ConfigFromEnv()
}

func newTransport() aicore.Transport {
	baseURL := os.Getenv(envBaseURL)
	switch os.Getenv(envTransport) {
	case "openai":
		if baseURL == "" {
			baseURL = openaicompat.DefaultBaseURL
		}
		return openaicompat.New("openai", baseURL)
	default:
		var opts []gemini.Option
		if baseURL != "" {
			opts = append(opts, gemini.WithBaseURL(baseURL))
		}
		return gemini.New(opts...)
	}
}

// openSink returns a nil sink for the "none" driver.
func openSink(ctx context.Context, cfg aicore.TelemetryConfig) (aicore.TelemetrySink, func(), error) {
	switch cfg.Driver {
	case aicore.TelemetrySQLite:
		s, err := telemetrysqlite.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil

	case aicore.TelemetryPostgres:
		pool, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("aicored: postgres: %w", err)
		}
		s := telemetrypg.New(pool)
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, pool.Close, nil

	case aicore.TelemetryRedis:
		opts, err := goredis.ParseURL(cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("aicored: redis url: %w", err)
		}
		client := goredis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("aicored: redis: %w", err)
		}
		return telemetryredis.New(client), func() { _ = client.Close() }, nil

	default:
		return nil, func() {}, nil
	}
}

func slogLevel(l zerolog.Level) slog.Level {
	switch {
	case l <= zerolog.DebugLevel:
		return slog.LevelDebug
	case l == zerolog.WarnLevel:
		return slog.LevelWarn
	case l >= zerolog.ErrorLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
