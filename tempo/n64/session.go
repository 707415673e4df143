// Package n64 wires the timing core into the 64-bit console: video
// interrupts, the audio interface's double-buffered DMA, PI and SI DMA
// completion and the CP0 Count/Compare timer.
package n64

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/valerio/go-tempo/tempo/events"
	"github.com/valerio/go-tempo/tempo/output"
)

const (
	// ClockHz is the CPU clock (93.75 MHz).
	ClockHz = 93_750_000
	// VIClockHz is the NTSC video clock the audio DAC divides.
	VIClockHz = 48_681_812
	// CyclesPerFrame is one NTSC field at 60 Hz.
	CyclesPerFrame = ClockHz / 60

	// halfLines per NTSC field, as VI_CURRENT counts them.
	halfLines = 525

	// piCyclesPerByte approximates cartridge DMA at about 5 MB/s.
	piCyclesPerByte = 19
	// siDMACycles is the duration of a 64-byte PIF RAM transfer.
	siDMACycles = 6000
	pifRAMSize  = 64

	// DefaultRDRAMSize is the base 4 MiB without the expansion pak.
	DefaultRDRAMSize = 4 << 20
)

// Option customizes a Session.
type Option func(*Session)

// WithLogger sets the logger used by the session.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithRDRAMSize sets the size of main memory in bytes.
func WithRDRAMSize(size int) Option {
	return func(s *Session) {
		s.rdram = make([]byte, size)
	}
}

// WithROM maps rom at CartBase for PI DMA.
func WithROM(rom []byte) Option {
	return func(s *Session) {
		s.rom = rom
	}
}

// WithFrameCallback registers fn to be called on every VI interrupt.
func WithFrameCallback(fn func(frame uint64)) Option {
	return func(s *Session) {
		s.onFrame = fn
	}
}

// Config carries the session settings chosen by the host.
type Config struct {
	// Sink receives the PCM of every completed AI buffer; nil discards it.
	Sink output.Sink
	// BufferFrames is the block size handed to Sink.
	BufferFrames int
}

// Session owns the scheduler and the interface registers it services.
type Session struct {
	sched *events.Scheduler[Kind]

	rdram []byte
	rom   []byte
	pif   [pifRAMSize]byte

	mi  mi
	vi  vi
	ai  ai
	pi  pi
	si  si
	cp0 cp0

	frames uint64
	out    *output.Buffer

	onFrame func(uint64)
	logger  *slog.Logger
}

type mi struct {
	mode uint32
	intr uint32
	mask uint32
}

type vi struct {
	control uint32
	origin  uint32
	width   uint32
	vIntr   uint32
}

// New creates a session in its power-up state.
func New(cfg Config, opts ...Option) *Session {
	s := &Session{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if s.rdram == nil {
		s.rdram = make([]byte, DefaultRDRAMSize)
	}
	s.sched = events.NewScheduler[Kind](numKinds, s)

	sink := cfg.Sink
	if sink == nil {
		sink = output.Discard{}
	}
	s.out = output.NewBuffer(cfg.BufferFrames, sink, output.WithLogger(s.logger))
	s.Reset()
	return s
}

// Reset clears the interface state and restarts the video cadence. RDRAM
// and ROM are kept.
func (s *Session) Reset() {
	s.sched.Reset()
	s.mi = mi{}
	s.vi = vi{}
	s.ai = ai{}
	s.pi = pi{}
	s.si = si{}
	s.cp0 = cp0{}
	s.frames = 0
	s.out.Reset()

	s.sched.Insert(VI, CyclesPerFrame, true)
	s.armCompare()
}

func (s *Session) Scheduler() *events.Scheduler[Kind] { return s.sched }
func (s *Session) Advance(cycles int64)               { s.sched.Advance(cycles) }
func (s *Session) Now() int64                         { return s.sched.Now() }
func (s *Session) Output() *output.Buffer             { return s.out }
func (s *Session) Frames() uint64                     { return s.frames }

// Service implements events.Dispatcher.
func (s *Session) Service(kind Kind, late int64) {
	switch kind {
	case VI:
		s.frames++
		s.raise(IntrVI)
		if s.onFrame != nil {
			s.onFrame(s.frames)
		}
		s.sched.Insert(VI, CyclesPerFrame, false)
	case AI:
		s.completeAudioBuffer()
	case PI:
		s.completePIDMA()
	case SI:
		s.completeSIDMA()
	case Compare:
		s.cp0.pending = true
		s.logger.Debug("CP0 compare", "cycle", s.sched.Now(), "compare", s.cp0.compare)
		s.sched.Insert(Compare, countWrapCycles, false)
	default:
		s.logger.Warn("unknown event kind", "kind", kind, "late", late)
	}
}

func (s *Session) raise(i Interrupt) {
	s.mi.intr |= uint32(i)
}

func (s *Session) lower(i Interrupt) {
	s.mi.intr &^= uint32(i)
}

// InterruptPending reports whether an unmasked MI interrupt is raised.
func (s *Session) InterruptPending() bool {
	return s.mi.intr&s.mi.mask != 0
}

// Write32 stores a word at a physical address.
func (s *Session) Write32(address uint32, value uint32) {
	switch {
	case int(address)+4 <= len(s.rdram):
		binary.BigEndian.PutUint32(s.rdram[address:], value)
	case address == MI_MODE:
		s.mi.mode = value & 0x7F
	case address == MI_MASK:
		for i := 0; i < 6; i++ {
			if value&(1<<(2*i)) != 0 {
				s.mi.mask &^= 1 << i
			}
			if value&(1<<(2*i+1)) != 0 {
				s.mi.mask |= 1 << i
			}
		}
	case address == VI_CONTROL:
		s.vi.control = value
	case address == VI_ORIGIN:
		s.vi.origin = value & 0xFFFFFF
	case address == VI_WIDTH:
		s.vi.width = value & 0xFFF
	case address == VI_V_INTR:
		s.vi.vIntr = value & 0x3FF
	case address == VI_CURRENT:
		s.lower(IntrVI)
	case address >= AIBase && address <= AI_BITRATE:
		s.writeAI(address, value)
	case address >= PIBase && address <= PI_STATUS:
		s.writePI(address, value)
	case address >= SIBase && address <= SI_STATUS:
		s.writeSI(address, value)
	default:
		s.logger.Debug("write to unmapped address", "addr", fmt.Sprintf("0x%08X", address), "value", value)
	}
}

// Read32 loads a word from a physical address.
func (s *Session) Read32(address uint32) uint32 {
	switch {
	case int(address)+4 <= len(s.rdram):
		return binary.BigEndian.Uint32(s.rdram[address:])
	case address == MI_MODE:
		return s.mi.mode
	case address == MI_VERSION:
		return miVersion
	case address == MI_INTR:
		return s.mi.intr
	case address == MI_MASK:
		return s.mi.mask
	case address == VI_CONTROL:
		return s.vi.control
	case address == VI_ORIGIN:
		return s.vi.origin
	case address == VI_WIDTH:
		return s.vi.width
	case address == VI_V_INTR:
		return s.vi.vIntr
	case address == VI_CURRENT:
		phase := s.sched.Now() % CyclesPerFrame
		return uint32(phase * halfLines / CyclesPerFrame)
	case address >= AIBase && address <= AI_BITRATE:
		return s.readAI(address)
	case address >= PIBase && address <= PI_STATUS:
		return s.readPI(address)
	case address >= SIBase && address <= SI_STATUS:
		return s.readSI(address)
	case address >= CartBase && int(address-CartBase)+4 <= len(s.rom):
		return binary.BigEndian.Uint32(s.rom[address-CartBase:])
	}
	return 0
}
