package meter

import "github.com/krlsedu/aicore"

// NoopMeter is a meter that does nothing.
type NoopMeter struct{}

var _ aicore.Meter = (*NoopMeter)(nil)

func (m *NoopMeter) OnAcquire(aicore.AcquireEvent) {}
func (m *NoopMeter) OnResult(aicore.ResultEvent)   {}
func (m *NoopMeter) OnSuspend(aicore.SuspendEvent) {}
