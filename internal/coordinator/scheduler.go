package coordinator

import (
	"time"

	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/logic"
)

// timerScheduler arms real timers whose callbacks only enqueue the firing
// into the coordinator loop.
type timerScheduler struct {
	fires chan<- logic.Fire
	done  <-chan struct{}
}

func (s timerScheduler) Schedule(d time.Duration, f logic.Fire) logic.Timer {
	return time.AfterFunc(d, func() {
		select {
		case s.fires <- f:
		case <-s.done:
		}
	})
}
