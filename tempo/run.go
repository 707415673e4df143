package tempo

import (
	"context"
	"log/slog"

	"github.com/valerio/go-tempo/tempo/regscript"
	"github.com/valerio/go-tempo/tempo/timing"
)

// RunOptions configures Run.
type RunOptions struct {
	// Until is the absolute cycle Run stops at.
	Until int64
	// Script writes are applied at their cycle. Writes already in the past
	// are applied on the first step, writes beyond Until are ignored.
	Script []regscript.Write
	// FastForward jumps from event to event with SkipToEvent instead of
	// advancing in one stretch.
	FastForward bool
	// Limiter paces every emulated frame; nil runs unpaced.
	Limiter timing.Limiter
	Logger  *slog.Logger
}

// Run drives m frame by frame up to opts.Until, feeding it the script, and
// flushes buffered output at the end. It stops early when ctx is done.
func Run(ctx context.Context, m Machine, opts RunOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = timing.NewNoOpLimiter()
	}
	limiter.Reset()

	advance := func(until int64) {
		if opts.FastForward {
			for {
				due, ok := m.NextEvent()
				if !ok || due > until {
					break
				}
				m.SkipToEvent()
			}
		}
		// step to each event the way a CPU loop would, never past until
		for d := until - m.Now(); d > 0; d = until - m.Now() {
			m.Advance(max(m.Horizon(d), 1))
		}
	}

	frame := m.CyclesPerFrame()
	script := opts.Script
	for m.Now() < opts.Until {
		if err := ctx.Err(); err != nil {
			logger.Info("run interrupted", "cycle", m.Now(), "frames", m.Frames())
			return err
		}

		stop := min(opts.Until, (m.Now()/frame+1)*frame)
		for len(script) > 0 && script[0].Cycle <= stop {
			w := script[0]
			advance(w.Cycle)
			logger.Debug("script write", "line", w.Line, "cycle", m.Now(), "addr", w.Address, "value", w.Value)
			m.Poke(w.Address, w.Value)
			script = script[1:]
		}
		advance(stop)

		if stop%frame == 0 {
			limiter.WaitForNextFrame()
		}
	}

	if len(script) > 0 {
		logger.Warn("script writes past the end of the run", "count", len(script), "until", opts.Until)
	}
	return m.Flush()
}
