package timing

import (
	"log/slog"
	"time"
)

const (
	busyWaitThreshold = 2 * time.Millisecond
	resyncThreshold   = 5 * time.Millisecond
	driftThreshold    = 10 * time.Millisecond
	driftCheckFrames  = 60
)

// AdaptiveLimiter uses precise timing with drift compensation.
// Combines sleep for efficiency with busy-waiting for accuracy.
type AdaptiveLimiter struct {
	frame        time.Duration
	next         time.Time
	started      time.Time
	frameCounter int64
	now          func() time.Time
	logger       *slog.Logger
}

func NewAdaptiveLimiter(frame time.Duration, logger *slog.Logger) *AdaptiveLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	a := &AdaptiveLimiter{frame: frame, now: time.Now, logger: logger}
	a.Reset()
	return a
}

func (a *AdaptiveLimiter) WaitForNextFrame() {
	now := a.now()
	sleepTime := a.next.Sub(now)

	if sleepTime > 0 {
		if sleepTime >= busyWaitThreshold {
			time.Sleep(sleepTime - time.Millisecond)
		}
		for a.now().Before(a.next) {
			// busy-wait the last stretch, higher accuracy.
		}
	} else if sleepTime < -resyncThreshold {
		a.next = now
	}

	a.next = a.next.Add(a.frame)
	a.frameCounter++

	if a.frameCounter%driftCheckFrames == 0 {
		actual := a.now()
		drift := actual.Sub(a.next)

		if drift.Abs() > driftThreshold {
			a.next = a.next.Add(drift / 10)
			elapsed := actual.Sub(a.started)
			a.logger.Debug("frame timing drift correction",
				"drift_ms", drift.Milliseconds(),
				"fps", float64(a.frameCounter)*float64(time.Second)/float64(elapsed))
		}
	}
}

func (a *AdaptiveLimiter) Reset() {
	a.started = a.now()
	a.next = a.started
	a.frameCounter = 0
}
