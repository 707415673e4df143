// Package output collects the stereo frames a session mixes and hands them
// to a Sink in fixed-size blocks.
package output

import (
	"errors"
	"log/slog"
)

// DefaultCapacity is the block size used when a Buffer is built with a
// non-positive capacity. At 48 kHz it is a little over 21 ms of audio.
const DefaultCapacity = 1024

// ErrSinkClosed is returned by sinks written after Close.
var ErrSinkClosed = errors.New("output: sink closed")

// Frame is one stereo sample pair in the range [-1, 1].
type Frame struct {
	Left  float32
	Right float32
}

// Sink consumes blocks of frames. The slice is only valid for the duration
// of the call; sinks that keep frames must copy them.
type Sink interface {
	Write(frames []Frame) error
}

// Buffer accumulates frames and drains them to its Sink, in order, whenever
// it fills up. A full buffer blocks the producer until the sink has accepted
// the block; nothing is dropped.
type Buffer struct {
	frames []Frame
	n      int
	sink   Sink

	pushed  uint64
	drained uint64
	err     error
	logger  *slog.Logger
}

// BufferOption configures a Buffer.
type BufferOption func(*Buffer)

// WithLogger sets the logger used to report sink failures.
func WithLogger(logger *slog.Logger) BufferOption {
	return func(b *Buffer) {
		b.logger = logger
	}
}

// NewBuffer creates a buffer draining blocks of capacity frames to sink.
func NewBuffer(capacity int, sink Sink, opts ...BufferOption) *Buffer {
	if sink == nil {
		panic("output: nil sink")
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	b := &Buffer{
		frames: make([]Frame, capacity),
		sink:   sink,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Push appends one frame. When the buffer reaches capacity its contents are
// written to the sink and the write position resets.
func (b *Buffer) Push(left, right float32) {
	b.frames[b.n] = Frame{Left: left, Right: right}
	b.n++
	b.pushed++
	if b.n == len(b.frames) {
		b.drain()
	}
}

func (b *Buffer) drain() {
	if b.n == 0 {
		return
	}
	if err := b.sink.Write(b.frames[:b.n]); err != nil && b.err == nil {
		b.err = err
		b.logger.Error("audio sink failed, later blocks are still offered", "error", err, "frames", b.drained)
	}
	b.drained += uint64(b.n)
	b.n = 0
}

// Flush writes any partial block to the sink and reports the first sink
// error seen so far.
func (b *Buffer) Flush() error {
	b.drain()
	return b.err
}

// Len returns the number of frames waiting for the next drain.
func (b *Buffer) Len() int {
	return b.n
}

// Cap returns the block size.
func (b *Buffer) Cap() int {
	return len(b.frames)
}

// Pushed returns the number of frames pushed since construction.
func (b *Buffer) Pushed() uint64 {
	return b.pushed
}

// Err returns the first error reported by the sink.
func (b *Buffer) Err() error {
	return b.err
}

// Reset discards pending frames without writing them.
func (b *Buffer) Reset() {
	b.n = 0
}

// Discard is a Sink that drops every block.
type Discard struct{}

func (Discard) Write([]Frame) error { return nil }

// Clamp limits v to the frame range.
func Clamp(v float32) float32 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	}
	return v
}
