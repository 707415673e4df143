// Package tempo puts the per-platform sessions behind one Machine interface
// so hosts can drive any of them the same way.
package tempo

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/valerio/go-tempo/tempo/gb"
	"github.com/valerio/go-tempo/tempo/gba"
	"github.com/valerio/go-tempo/tempo/n64"
	"github.com/valerio/go-tempo/tempo/output"
)

// ErrUnknownPlatform is returned for a platform name New does not know.
var ErrUnknownPlatform = errors.New("unknown platform")

// Platform names an emulated console.
type Platform string

const (
	GB  Platform = "gb"
	GBA Platform = "gba"
	N64 Platform = "n64"
)

// Platforms lists every supported platform.
var Platforms = []Platform{GB, GBA, N64}

// ParsePlatform resolves a case-insensitive platform name.
func ParsePlatform(name string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Platforms {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, name)
}

// Config is shared by every platform.
type Config struct {
	// SampleRate is the output rate for the PSG platforms. The 64-bit
	// console outputs at its programmed DAC rate and ignores it.
	SampleRate int
	Sink       output.Sink
	// BufferFrames is the block size handed to Sink.
	BufferFrames int
	Logger       *slog.Logger
}

// Machine is a timing session seen from its host: the CPU loop advances
// it, register writes poke it, and snapshots save and restore it.
type Machine interface {
	Platform() Platform
	ClockHz() int64
	CyclesPerFrame() int64

	Advance(cycles int64)
	Now() int64
	// NextEvent returns the due time of the earliest pending event.
	NextEvent() (int64, bool)
	SkipToEvent() int64
	// Horizon returns how many cycles may run before the next event must be
	// serviced, capped at max.
	Horizon(max int64) int64
	Frames() uint64

	// Poke writes a register at its natural width: bytes on gb, halfwords
	// on gba and words on n64.
	Poke(address, value uint32)
	Peek(address uint32) uint32

	Save() ([]byte, error)
	Load(data []byte) error
	// Flush hands buffered output to the sink and reports its first error.
	Flush() error
}

// New builds a session for platform.
func New(platform Platform, cfg Config) (Machine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("platform", string(platform))

	switch platform {
	case GB:
		s := gb.New(gb.Config{SampleRate: cfg.SampleRate, Sink: cfg.Sink, BufferFrames: cfg.BufferFrames}, gb.WithLogger(logger))
		return gbMachine{s}, nil
	case GBA:
		s := gba.New(gba.Config{SampleRate: cfg.SampleRate, Sink: cfg.Sink, BufferFrames: cfg.BufferFrames}, gba.WithLogger(logger))
		return gbaMachine{s}, nil
	case N64:
		s := n64.New(n64.Config{Sink: cfg.Sink, BufferFrames: cfg.BufferFrames}, n64.WithLogger(logger))
		return n64Machine{s}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownPlatform, string(platform))
}

type gbMachine struct{ *gb.Session }

func (m gbMachine) Platform() Platform         { return GB }
func (m gbMachine) ClockHz() int64             { return gb.ClockHz }
func (m gbMachine) CyclesPerFrame() int64      { return gb.CyclesPerFrame }
func (m gbMachine) NextEvent() (int64, bool)   { return m.Scheduler().PeekMin() }
func (m gbMachine) SkipToEvent() int64         { return m.Scheduler().SkipToEvent() }
func (m gbMachine) Horizon(max int64) int64    { return m.Scheduler().Horizon(max) }
func (m gbMachine) Poke(address, value uint32) { m.Write(uint16(address), uint8(value)) }
func (m gbMachine) Peek(address uint32) uint32 { return uint32(m.Read(uint16(address))) }
func (m gbMachine) Flush() error               { return m.Output().Flush() }

type gbaMachine struct{ *gba.Session }

func (m gbaMachine) Platform() Platform         { return GBA }
func (m gbaMachine) ClockHz() int64             { return gba.ClockHz }
func (m gbaMachine) CyclesPerFrame() int64      { return gba.CyclesPerFrame }
func (m gbaMachine) NextEvent() (int64, bool)   { return m.Scheduler().PeekMin() }
func (m gbaMachine) SkipToEvent() int64         { return m.Scheduler().SkipToEvent() }
func (m gbaMachine) Horizon(max int64) int64    { return m.Scheduler().Horizon(max) }
func (m gbaMachine) Poke(address, value uint32) { m.Write16(address, uint16(value)) }
func (m gbaMachine) Peek(address uint32) uint32 { return uint32(m.Read16(address)) }
func (m gbaMachine) Flush() error               { return m.Output().Flush() }

type n64Machine struct{ *n64.Session }

func (m n64Machine) Platform() Platform         { return N64 }
func (m n64Machine) ClockHz() int64             { return n64.ClockHz }
func (m n64Machine) CyclesPerFrame() int64      { return n64.CyclesPerFrame }
func (m n64Machine) NextEvent() (int64, bool)   { return m.Scheduler().PeekMin() }
func (m n64Machine) SkipToEvent() int64         { return m.Scheduler().SkipToEvent() }
func (m n64Machine) Horizon(max int64) int64    { return m.Scheduler().Horizon(max) }
func (m n64Machine) Poke(address, value uint32) { m.Write32(address, value) }
func (m n64Machine) Peek(address uint32) uint32 { return m.Read32(address) }
func (m n64Machine) Flush() error               { return m.Output().Flush() }
