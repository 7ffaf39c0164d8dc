package meter

import "github.com/krlsedu/aicore"

// Multi fans every event out to each meter in order.
type Multi []aicore.Meter

var _ aicore.Meter = Multi(nil)

// NewMulti drops nil meters.
func NewMulti(meters ...aicore.Meter) Multi {
	out := make(Multi, 0, len(meters))
	for _, m := range meters {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

func (m Multi) OnAcquire(e aicore.AcquireEvent) {
	for _, mm := range m {
		mm.OnAcquire(e)
	}
}

func (m Multi) OnResult(e aicore.ResultEvent) {
	for _, mm := range m {
		mm.OnResult(e)
	}
}

func (m Multi) OnSuspend(e aicore.SuspendEvent) {
	for _, mm := range m {
		mm.OnSuspend(e)
	}
}
