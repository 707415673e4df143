// Package gb wires the timing core into the 8-bit handheld: the scheduler
// drives the four PSG channels, the frame sequencer, sample output, the
// DIV/TIMA timer, the serial port and the VBlank cadence.
package gb

import (
	"fmt"
	"log/slog"

	"github.com/valerio/go-tempo/tempo/addr"
	"github.com/valerio/go-tempo/tempo/audio"
	"github.com/valerio/go-tempo/tempo/events"
	"github.com/valerio/go-tempo/tempo/output"
)

const (
	// ClockHz is the master clock (4.194304 MHz).
	ClockHz = 4194304
	// CyclesPerFrame is the length of one video frame: 154 lines of 456 cycles.
	CyclesPerFrame = 70224
	// frameSequencerCycles is the period of the 512 Hz frame sequencer.
	frameSequencerCycles = 8192

	key1SwitchBit = 0
	key1SpeedBit  = 7
)

// Config carries the session settings chosen by the host.
type Config struct {
	// SampleRate is the output rate in Hz. Zero disables sample output.
	SampleRate int
	// Sink receives mixed frames; nil discards them.
	Sink output.Sink
	// BufferFrames is the block size handed to Sink.
	BufferFrames int
}

// Option customizes a Session.
type Option func(*Session)

// WithLogger sets the logger used by the session and its components.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithFrameCallback registers fn to be called on every VBlank with the
// number of frames completed so far.
func WithFrameCallback(fn func(frame uint64)) Option {
	return func(s *Session) {
		s.onFrame = fn
	}
}

// WithInterruptHandler registers fn to be called whenever an interrupt is
// requested, in addition to latching it into IF.
func WithInterruptHandler(fn func(addr.Interrupt)) Option {
	return func(s *Session) {
		s.onInterrupt = fn
	}
}

// Session owns the scheduler and every component it services. It is the
// single events.Dispatcher of the handheld.
type Session struct {
	sched *events.Scheduler[Kind]

	apu    *apu
	timer  timer
	serial logSink

	decimator *output.Decimator
	out       *output.Buffer

	ifReg      uint8
	ieReg      uint8
	speedArmed bool
	frames     uint64

	onFrame     func(uint64)
	onInterrupt func(addr.Interrupt)
	logger      *slog.Logger
}

// New creates a session in its power-up state.
func New(cfg Config, opts ...Option) *Session {
	s := &Session{
		apu:    newAPU(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sched = events.NewScheduler[Kind](numKinds, s)

	sink := cfg.Sink
	if sink == nil {
		sink = output.Discard{}
	}
	s.out = output.NewBuffer(cfg.BufferFrames, sink, output.WithLogger(s.logger))
	if cfg.SampleRate > 0 {
		s.decimator = output.NewDecimator(ClockHz, int64(cfg.SampleRate))
	}

	s.Reset()
	return s
}

// Reset returns every component to its power-up state and arms the free
// running events.
func (s *Session) Reset() {
	s.sched.Reset()
	s.apu.reset()
	s.timer = timer{}
	s.serial = logSink{defaultRX: 0xFF}
	s.ifReg = 0
	s.ieReg = 0
	s.speedArmed = false
	s.frames = 0
	s.out.Reset()
	if s.decimator != nil {
		s.decimator = output.NewDecimator(ClockHz, s.decimator.SampleRate())
	}

	s.scheduleMaster(FrameSequencer, frameSequencerCycles, true)
	s.scheduleMaster(VBlank, CyclesPerFrame, true)
	if s.decimator != nil {
		s.scheduleMaster(Sample, s.decimator.Next(), true)
	}
}

// scheduleMaster arms kind on the master clock. Insert halves delays in
// double speed, which only the CPU-clocked units (timer, serial) follow;
// the APU and video cadence do not.
func (s *Session) scheduleMaster(kind Kind, delay int64, fromNow bool) {
	s.sched.Insert(kind, delay*int64(s.sched.Speed()), fromNow)
}

// Scheduler exposes the event scheduler for the CPU loop.
func (s *Session) Scheduler() *events.Scheduler[Kind] {
	return s.sched
}

// Advance runs the clock forward by cycles master cycles.
func (s *Session) Advance(cycles int64) {
	s.sched.Advance(cycles)
}

// Now returns the current master cycle.
func (s *Session) Now() int64 {
	return s.sched.Now()
}

// Output returns the frame buffer fed by Sample events.
func (s *Session) Output() *output.Buffer {
	return s.out
}

// Frames returns the number of VBlanks so far.
func (s *Session) Frames() uint64 {
	return s.frames
}

// Service implements events.Dispatcher.
func (s *Session) Service(kind Kind, late int64) {
	switch kind {
	case FrameSequencer:
		s.apu.sequence()
		s.scheduleMaster(FrameSequencer, frameSequencerCycles, false)
	case Channel1, Channel2, Channel3, Channel4:
		i := int(kind - Channel1)
		s.syncChannel(i)
		s.armChannel(i, false)
	case Sample:
		s.out.Push(s.apu.mix())
		s.scheduleMaster(Sample, s.decimator.Next(), false)
	case Timer:
		s.tickTIMA()
	case TimerReload:
		s.reloadTIMA()
	case Serial:
		s.completeTransfer()
	case VBlank:
		s.frames++
		s.requestInterrupt(addr.VBlankInterrupt)
		if s.onFrame != nil {
			s.onFrame(s.frames)
		}
		s.scheduleMaster(VBlank, CyclesPerFrame, false)
	default:
		s.logger.Warn("unknown event kind", "kind", kind, "late", late)
	}
}

// syncChannel runs channel i's frequency timer up to now.
func (s *Session) syncChannel(i int) {
	now := s.sched.Now()
	elapsed := now - s.apu.lastSync[i]
	s.apu.lastSync[i] = now
	if elapsed > 0 {
		s.apu.channels[i].TickPeriod(int32(elapsed))
	}
}

// armChannel keeps channel i's period event in step with its frequency
// timer, or cancels it once the channel stops.
func (s *Session) armChannel(i int, fromNow bool) {
	c := s.apu.channels[i]
	kind := channelKind(i)
	s.sched.Cancel(kind)
	if !c.Running() {
		return
	}
	s.scheduleMaster(kind, int64(c.Remaining()), fromNow)
}

func (s *Session) requestInterrupt(i addr.Interrupt) {
	s.ifReg |= uint8(i)
	if s.onInterrupt != nil {
		s.onInterrupt(i)
	}
}

// Write stores a register value. Addresses outside the serviced blocks are
// ignored.
func (s *Session) Write(address uint16, value uint8) {
	switch {
	case address == addr.SB || address == addr.SC:
		s.writeSerial(address, value)
	case address >= addr.DIV && address <= addr.TAC:
		s.writeTimer(address, value)
	case address == addr.IF:
		s.ifReg = value & 0x1F
	case address == addr.IE:
		s.ieReg = value
	case address == addr.KEY1:
		s.speedArmed = value&(1<<key1SwitchBit) != 0
	case addr.IsAudio(address):
		s.writeAudio(address, value)
	default:
		s.logger.Debug("write to unmapped register", "addr", fmt.Sprintf("0x%04X", address), "value", value)
	}
}

// Read returns a register as the CPU sees it.
func (s *Session) Read(address uint16) uint8 {
	switch {
	case address == addr.SB || address == addr.SC:
		return s.readSerial(address)
	case address >= addr.DIV && address <= addr.TAC:
		return s.readTimer(address)
	case address == addr.IF:
		return s.ifReg | 0xE0
	case address == addr.IE:
		return s.ieReg
	case address == addr.KEY1:
		v := uint8(0x7E)
		if s.sched.Speed() == 2 {
			v |= 1 << key1SpeedBit
		}
		if s.speedArmed {
			v |= 1 << key1SwitchBit
		}
		return v
	case addr.IsAudio(address):
		return s.readAudio(address)
	}
	return 0xFF
}

func (s *Session) writeAudio(address uint16, value uint8) {
	if addr.IsWaveRAM(address) {
		s.apu.channels[2].WriteWaveRAM(int(address-addr.WaveRAMStart), value)
		return
	}

	if address == addr.NR52 {
		on := value&(1<<nr52PowerBit) != 0
		switch {
		case !on && s.apu.power:
			s.apu.powerOff()
			for i := range s.apu.channels {
				s.sched.Cancel(channelKind(i))
			}
			s.logger.Debug("APU power off", "cycle", s.sched.Now())
		case on && !s.apu.power:
			s.apu.power = true
			s.logger.Debug("APU power on", "cycle", s.sched.Now())
		}
		return
	}

	// registers are read-only while the APU is off
	if !s.apu.power {
		return
	}

	switch address {
	case addr.NR10:
		s.apu.nr10 = value | nr10UnusedMask
		return
	case addr.NR50:
		s.apu.nr50 = value
		return
	case addr.NR51:
		s.apu.nr51 = value
		return
	}

	route, ok := registerMap[address]
	if !ok {
		return
	}
	s.syncChannel(route.channel)
	s.apu.channels[route.channel].Write(route.reg, value)
	s.armChannel(route.channel, true)
}

func (s *Session) readAudio(address uint16) uint8 {
	if addr.IsWaveRAM(address) {
		return s.apu.channels[2].ReadWaveRAM(int(address - addr.WaveRAMStart))
	}
	switch address {
	case addr.NR10:
		return s.apu.nr10 | nr10UnusedMask
	case addr.NR50:
		return s.apu.nr50
	case addr.NR51:
		return s.apu.nr51
	case addr.NR52:
		return s.apu.readStatus()
	}
	if route, ok := registerMap[address]; ok {
		return s.apu.channels[route.channel].Read(route.reg)
	}
	return 0xFF
}

// SetDoubleSpeed switches the CPU clock. Events already pending keep their
// due time.
func (s *Session) SetDoubleSpeed(on bool) {
	speed := 1
	if on {
		speed = 2
	}
	if speed == s.sched.Speed() {
		return
	}
	s.timer.rebase(s.sched.Now(), s.sched.Speed())
	s.sched.SetSpeed(speed)
	s.speedArmed = false
	s.logger.Debug("speed switch", "cycle", s.sched.Now(), "speed", speed)
}

// SwitchSpeed performs a speed switch armed through KEY1, as executing STOP
// does. It reports whether a switch happened.
func (s *Session) SwitchSpeed() bool {
	if !s.speedArmed {
		return false
	}
	s.SetDoubleSpeed(s.sched.Speed() == 1)
	return true
}

// ChannelStatus reports the audible state of each channel.
func (s *Session) ChannelStatus() [4]audio.Status {
	var st [4]audio.Status
	for i, c := range s.apu.channels {
		st[i] = c.Status(ClockHz)
	}
	return st
}
