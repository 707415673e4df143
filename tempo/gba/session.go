// Package gba wires the timing core into the 32-bit handheld. The legacy
// PSG runs on the 4x faster system clock with dual-bank wave RAM, next to
// four cascading hardware timers and the HBlank/VBlank cadence.
package gba

import (
	"fmt"
	"log/slog"

	"github.com/valerio/go-tempo/tempo/audio"
	"github.com/valerio/go-tempo/tempo/bit"
	"github.com/valerio/go-tempo/tempo/events"
	"github.com/valerio/go-tempo/tempo/output"
)

const (
	// ClockHz is the system clock (16.78 MHz).
	ClockHz = 16777216

	cyclesPerLine   = 1232
	hdrawCycles     = 960
	visibleLines    = 160
	totalLines      = 228
	CyclesPerFrame  = cyclesPerLine * totalLines
	vblankStart     = cyclesPerLine * visibleLines
	frameSeqCycles  = 8192 * 4
	soundEnableBit  = 7

	dispstatVBlankBit    = 0
	dispstatHBlankBit    = 1
	dispstatVBlankIRQBit = 3
	dispstatHBlankIRQBit = 4
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

// WithLogger sets the logger used by the session.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithFrameCallback registers fn to be called at the start of every VBlank.
func WithFrameCallback(fn func(frame uint64)) Option {
	return func(s *Session) {
		s.onFrame = fn
	}
}

// Session owns the scheduler and the PSG, timer and display timing state.
type Session struct {
	sched *events.Scheduler[Kind]

	channels [4]*audio.Channel
	lastSync [4]int64
	power    bool
	sweep    uint8
	// soundcnt holds SOUNDCNT_L (PSG volume and panning) and SOUNDCNT_H.
	soundcnt [2]uint16
	bias     uint16
	step     uint8

	timers [4]timer

	dispstat uint8
	ie, irf  uint16
	frames   uint64

	decimator *output.Decimator
	out       *output.Buffer

	onFrame func(uint64)
	logger  *slog.Logger
}

// New creates a session in its power-up state.
func New(cfg Config, opts ...Option) *Session {
	s := &Session{
		channels: [4]*audio.Channel{
			audio.NewSquare(audio.ModelGBA),
			audio.NewSquare(audio.ModelGBA),
			audio.NewWave(audio.ModelGBA),
			audio.NewNoise(audio.ModelGBA),
		},
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

// Reset returns the session to its power-up state.
func (s *Session) Reset() {
	s.sched.Reset()
	for i, c := range s.channels {
		c.Reset()
		s.lastSync[i] = 0
	}
	s.power = true
	s.sweep = 0
	s.soundcnt = [2]uint16{}
	s.bias = 0x200
	s.step = 0
	s.timers = [4]timer{}
	s.dispstat = 0
	s.ie, s.irf = 0, 0
	s.frames = 0
	s.out.Reset()

	s.sched.Insert(FrameSequencer, frameSeqCycles, true)
	s.sched.Insert(HBlank, hdrawCycles, true)
	s.sched.Insert(VBlank, vblankStart, true)
	if s.decimator != nil {
		s.decimator = output.NewDecimator(ClockHz, s.decimator.SampleRate())
		s.sched.Insert(Sample, s.decimator.Next(), true)
	}
}

func (s *Session) Scheduler() *events.Scheduler[Kind] { return s.sched }
func (s *Session) Advance(cycles int64)               { s.sched.Advance(cycles) }
func (s *Session) Now() int64                         { return s.sched.Now() }
func (s *Session) Output() *output.Buffer             { return s.out }
func (s *Session) Frames() uint64                     { return s.frames }

// Service implements events.Dispatcher.
func (s *Session) Service(kind Kind, late int64) {
	switch kind {
	case FrameSequencer:
		s.step = (s.step + 1) & 7
		if s.step == 7 {
			for _, i := range []int{0, 1, 3} {
				s.channels[i].ClockEnvelope()
			}
		}
		s.sched.Insert(FrameSequencer, frameSeqCycles, false)
	case Channel1, Channel2, Channel3, Channel4:
		i := int(kind - Channel1)
		s.syncChannel(i)
		s.armChannel(i, false)
	case Sample:
		s.out.Push(s.mix())
		s.sched.Insert(Sample, s.decimator.Next(), false)
	case Timer0, Timer1, Timer2, Timer3:
		s.overflowTimer(int(kind - Timer0))
	case HBlank:
		if bit.IsSet(dispstatHBlankIRQBit, s.dispstat) {
			s.requestInterrupt(IRQHBlank)
		}
		s.sched.Insert(HBlank, cyclesPerLine, false)
	case VBlank:
		s.frames++
		if bit.IsSet(dispstatVBlankIRQBit, s.dispstat) {
			s.requestInterrupt(IRQVBlank)
		}
		if s.onFrame != nil {
			s.onFrame(s.frames)
		}
		s.sched.Insert(VBlank, CyclesPerFrame, false)
	default:
		s.logger.Warn("unknown event kind", "kind", kind, "late", late)
	}
}

func (s *Session) syncChannel(i int) {
	now := s.sched.Now()
	elapsed := now - s.lastSync[i]
	s.lastSync[i] = now
	if elapsed > 0 {
		s.channels[i].TickPeriod(int32(elapsed))
	}
}

func (s *Session) armChannel(i int, fromNow bool) {
	c := s.channels[i]
	s.sched.Cancel(channelKind(i))
	if !c.Running() {
		return
	}
	s.sched.Insert(channelKind(i), int64(c.Remaining()), fromNow)
}

func (s *Session) requestInterrupt(i Interrupt) {
	s.irf |= uint16(i)
}

// line returns the current scanline and the cycle within it.
func (s *Session) line() (line int64, dot int64) {
	now := s.sched.Now()
	return (now / cyclesPerLine) % totalLines, now % cyclesPerLine
}

// mix combines the PSG outputs through SOUNDCNT_L panning and volumes and
// the SOUNDCNT_H PSG ratio (25/50/100%).
func (s *Session) mix() (left, right float32) {
	if !s.power {
		return 0, 0
	}
	cnt := s.soundcnt[0]
	for i, c := range s.channels {
		if !c.DACOn() {
			continue
		}
		v := float32(c.Output())/7.5 - 1
		if bit.IsSet(uint8(12+i), cnt) {
			left += v
		}
		if bit.IsSet(uint8(8+i), cnt) {
			right += v
		}
	}
	ratio := [4]float32{0.25, 0.5, 1, 0}[s.soundcnt[1]&0x03]
	leftVol := float32(bit.Extract(cnt, 6, 4)+1) / 8
	rightVol := float32(bit.Extract(cnt, 2, 0)+1) / 8
	return left * leftVol * ratio / 4, right * rightVol * ratio / 4
}

// Write8 stores one byte at an I/O offset.
func (s *Session) Write8(offset uint32, value uint8) {
	switch {
	case offset == DISPSTAT:
		s.dispstat = s.dispstat&0x07 | value&0xF8
	case offset >= SOUND1CNT_L && offset <= WaveRAMEnd:
		s.writeSound(offset, value)
	case offset >= TM0CNT_L && offset < TM0CNT_L+16:
		index := int(offset-TM0CNT_L) / 4
		switch (offset - TM0CNT_L) % 4 {
		case 0:
			s.writeTimerReload(index, false, value)
		case 1:
			s.writeTimerReload(index, true, value)
		case 2:
			s.writeTimerControl(index, value)
		}
	case offset == IE:
		s.ie = bit.Combine(bit.High(s.ie), value)
	case offset == IE+1:
		s.ie = bit.Combine(value, bit.Low(s.ie))
	case offset == IF:
		// writing 1 acknowledges
		s.irf &^= uint16(value)
	case offset == IF+1:
		s.irf &^= uint16(value) << 8
	default:
		s.logger.Debug("write to unmapped register", "offset", fmt.Sprintf("0x%03X", offset), "value", value)
	}
}

// Read8 returns one byte at an I/O offset.
func (s *Session) Read8(offset uint32) uint8 {
	switch {
	case offset == DISPSTAT:
		line, dot := s.line()
		v := s.dispstat & 0xF8
		v = bit.Assign(dispstatVBlankBit, v, line >= visibleLines && line < totalLines-1)
		return bit.Assign(dispstatHBlankBit, v, dot >= hdrawCycles)
	case offset == VCOUNT:
		line, _ := s.line()
		return uint8(line)
	case offset >= SOUND1CNT_L && offset <= WaveRAMEnd:
		return s.readSound(offset)
	case offset >= TM0CNT_L && offset < TM0CNT_L+16:
		index := int(offset-TM0CNT_L) / 4
		switch (offset - TM0CNT_L) % 4 {
		case 0:
			return s.readTimer(index, false, false)
		case 1:
			return s.readTimer(index, true, false)
		case 2:
			return s.readTimer(index, false, true)
		}
		return 0
	case offset == IE:
		return bit.Low(s.ie)
	case offset == IE+1:
		return bit.High(s.ie)
	case offset == IF:
		return bit.Low(s.irf)
	case offset == IF+1:
		return bit.High(s.irf)
	}
	return 0
}

// Write16 stores a halfword, low byte first.
func (s *Session) Write16(offset uint32, value uint16) {
	s.Write8(offset, bit.Low(value))
	s.Write8(offset+1, bit.High(value))
}

// Read16 reads a halfword.
func (s *Session) Read16(offset uint32) uint16 {
	return bit.Combine(s.Read8(offset+1), s.Read8(offset))
}

func (s *Session) writeSound(offset uint32, value uint8) {
	if offset >= WaveRAMStart {
		s.channels[2].WriteWaveRAM(int(offset-WaveRAMStart), value)
		return
	}

	switch offset {
	case SOUNDCNT_X:
		on := bit.IsSet(soundEnableBit, value)
		if !on && s.power {
			for i, c := range s.channels {
				c.PowerOff()
				s.sched.Cancel(channelKind(i))
			}
			s.sweep = 0
			s.soundcnt[0] = 0
			s.logger.Debug("PSG power off", "cycle", s.sched.Now())
		}
		s.power = on
		return
	case SOUNDCNT_H:
		s.soundcnt[1] = bit.Combine(bit.High(s.soundcnt[1]), value)
		return
	case SOUNDCNT_H + 1:
		s.soundcnt[1] = bit.Combine(value, bit.Low(s.soundcnt[1]))
		return
	case SOUNDBIAS:
		s.bias = bit.Combine(bit.High(s.bias), value)
		return
	case SOUNDBIAS + 1:
		s.bias = bit.Combine(value, bit.Low(s.bias))
		return
	}

	if !s.power {
		return
	}
	switch offset {
	case SOUND1CNT_L:
		s.sweep = value & 0x7F
		return
	case SOUNDCNT_L:
		s.soundcnt[0] = bit.Combine(bit.High(s.soundcnt[0]), value&0x77)
		return
	case SOUNDCNT_L + 1:
		s.soundcnt[0] = bit.Combine(value, bit.Low(s.soundcnt[0]))
		return
	}

	route, ok := psgRoutes[offset]
	if !ok {
		return
	}
	s.syncChannel(route.channel)
	s.channels[route.channel].Write(route.reg, value)
	s.armChannel(route.channel, true)
}

func (s *Session) readSound(offset uint32) uint8 {
	if offset >= WaveRAMStart {
		return s.channels[2].ReadWaveRAM(int(offset - WaveRAMStart))
	}
	switch offset {
	case SOUND1CNT_L:
		return s.sweep
	case SOUNDCNT_L:
		return bit.Low(s.soundcnt[0])
	case SOUNDCNT_L + 1:
		return bit.High(s.soundcnt[0])
	case SOUNDCNT_H:
		return bit.Low(s.soundcnt[1])
	case SOUNDCNT_H + 1:
		return bit.High(s.soundcnt[1])
	case SOUNDCNT_X:
		v := bit.Assign(soundEnableBit, uint8(0), s.power)
		for i, c := range s.channels {
			v = bit.Assign(uint8(i), v, c.Enabled())
		}
		return v
	case SOUNDBIAS:
		return bit.Low(s.bias)
	case SOUNDBIAS + 1:
		return bit.High(s.bias)
	}
	if route, ok := psgRoutes[offset]; ok {
		return s.channels[route.channel].Read(route.reg)
	}
	return 0
}

// ChannelStatus reports the audible state of each PSG channel.
func (s *Session) ChannelStatus() [4]audio.Status {
	var st [4]audio.Status
	for i, c := range s.channels {
		st[i] = c.Status(ClockHz)
	}
	return st
}
