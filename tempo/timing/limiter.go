// Package timing paces an emulated clock against wall time.
package timing

import "time"

// Limiter holds a session to its real-time frame rate.
type Limiter interface {
	// WaitForNextFrame blocks until the next frame is due.
	// Returns immediately when running behind.
	WaitForNextFrame()

	// Reset forgets accumulated timing, e.g. after a pause or a state load.
	Reset()
}

// NewNoOpLimiter returns a limiter that never waits (headless and
// fast-forward runs).
func NewNoOpLimiter() Limiter {
	return &noOpLimiter{}
}

type noOpLimiter struct{}

func (n *noOpLimiter) WaitForNextFrame() {}
func (n *noOpLimiter) Reset()            {}

// TargetFPS is the frame rate of a platform running cyclesPerFrame cycles
// per frame at clockHz.
func TargetFPS(clockHz, cyclesPerFrame int64) float64 {
	return float64(clockHz) / float64(cyclesPerFrame)
}

// FrameDuration returns the wall time of a single frame.
func FrameDuration(clockHz, cyclesPerFrame int64) time.Duration {
	return time.Duration(float64(time.Second) / TargetFPS(clockHz, cyclesPerFrame))
}
