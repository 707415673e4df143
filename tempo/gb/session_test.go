package gb

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valerio/go-tempo/tempo/addr"
	"github.com/valerio/go-tempo/tempo/audio"
	"github.com/valerio/go-tempo/tempo/output"
	"github.com/valerio/go-tempo/tempo/savestate"
)

type collectSink struct {
	frames []output.Frame
}

func (c *collectSink) Write(frames []output.Frame) error {
	c.frames = append(c.frames, frames...)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func newSession(t *testing.T, cfg Config, opts ...Option) *Session {
	t.Helper()
	return New(cfg, append([]Option{WithLogger(quietLogger())}, opts...)...)
}

// triggerSquare starts channel 1 at full volume with the given period value.
func triggerSquare(s *Session, freq uint16, envelope uint8) {
	s.Write(addr.NR11, 0x80)
	s.Write(addr.NR12, envelope)
	s.Write(addr.NR13, uint8(freq))
	s.Write(addr.NR14, 0x80|uint8(freq>>8))
}

func TestSession_ChannelPeriodEvents(t *testing.T) {
	s := newSession(t, Config{})
	triggerSquare(s, 0x700, 0xF0) // (2048-1792)*4 = 1024 cycles

	due, active := s.sched.Pending(Channel1)
	require.True(t, active)
	assert.Equal(t, int64(1024), due)

	s.Advance(1024*3 + 10)
	assert.Equal(t, uint32(3), s.apu.channels[0].DutyIndex())
	due, _ = s.sched.Pending(Channel1)
	assert.Equal(t, int64(4096), due)

	// turning the DAC off stops the channel and its event
	s.Write(addr.NR12, 0x00)
	_, active = s.sched.Pending(Channel1)
	assert.False(t, active)
	assert.Equal(t, audio.Disabled, s.apu.channels[0].State())
}

func TestSession_WriteSyncsChannelBeforeRearming(t *testing.T) {
	s := newSession(t, Config{})
	triggerSquare(s, 0x700, 0xF0)

	s.Advance(1500) // one reload at 1024, 548 cycles into the next period
	s.Write(addr.NR13, 0x80)

	c := s.apu.channels[0]
	assert.Equal(t, uint32(1), c.DutyIndex())
	assert.Equal(t, int32(1024-476), c.Remaining())
	due, _ := s.sched.Pending(Channel1)
	assert.Equal(t, int64(2048), due, "a frequency write takes effect on the next reload")
}

func TestSession_FrameSequencerClocksEnvelope(t *testing.T) {
	s := newSession(t, Config{})
	triggerSquare(s, 0, 0xF1) // volume 15, down, period 1

	s.Advance(frameSequencerCycles*7 - 1)
	assert.Equal(t, uint8(15), s.ChannelStatus()[0].Volume)

	s.Advance(1)
	assert.Equal(t, uint8(14), s.ChannelStatus()[0].Volume)

	s.Advance(frameSequencerCycles * 8)
	assert.Equal(t, uint8(13), s.ChannelStatus()[0].Volume)
}

func TestSession_EnvelopeToZeroSilencesChannel(t *testing.T) {
	s := newSession(t, Config{})
	triggerSquare(s, 0x700, 0x11) // volume 1, down, period 1

	s.Advance(frameSequencerCycles * 8)
	c := s.apu.channels[0]
	assert.Equal(t, uint8(0), c.Volume())
	assert.Equal(t, audio.Disabled, c.State())
	_, active := s.sched.Pending(Channel1)
	assert.False(t, active)
	assert.Equal(t, uint8(0xF0), s.Read(addr.NR52))
}

func TestSession_RegisterReadback(t *testing.T) {
	s := newSession(t, Config{})

	tests := []struct {
		name  string
		addr  uint16
		write uint8
		want  uint8
	}{
		{"NR10 top bit", addr.NR10, 0x7F, 0xFF},
		{"NR11 duty only", addr.NR11, 0x80, 0xBF},
		{"NR12 full byte", addr.NR12, 0xAB, 0xAB},
		{"NR13 write only", addr.NR13, 0x12, 0xFF},
		{"NR30 DAC bit", addr.NR30, 0x80, 0xFF},
		{"NR32 level", addr.NR32, 0x40, 0xDF},
		{"NR43 full byte", addr.NR43, 0x5B, 0x5B},
		{"NR50", addr.NR50, 0x35, 0x35},
		{"NR51", addr.NR51, 0x96, 0x96},
		{"wave RAM", addr.WaveRAMStart + 3, 0x9C, 0x9C},
		{"unused hole", 0xFF27, 0x12, 0xFF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.Write(tt.addr, tt.write)
			assert.Equal(t, tt.want, s.Read(tt.addr))
		})
	}
}

func TestSession_PowerOff(t *testing.T) {
	s := newSession(t, Config{})
	s.Write(addr.WaveRAMStart, 0x12)
	triggerSquare(s, 0x700, 0xF0)
	require.Equal(t, uint8(0xF1), s.Read(addr.NR52))

	s.Write(addr.NR52, 0x00)
	assert.Equal(t, uint8(0x70), s.Read(addr.NR52))
	assert.Equal(t, uint8(0x00), s.Read(addr.NR50))
	assert.Equal(t, uint8(0x12), s.Read(addr.WaveRAMStart), "wave RAM survives power off")
	for i, c := range s.apu.channels {
		assert.Equal(t, audio.Uninitialized, c.State(), "channel %d", i+1)
		_, active := s.sched.Pending(channelKind(i))
		assert.False(t, active)
	}

	// writes are ignored while off
	s.Write(addr.NR50, 0x77)
	assert.Equal(t, uint8(0x00), s.Read(addr.NR50))

	s.Write(addr.NR52, 0x80)
	assert.Equal(t, uint8(0xF0), s.Read(addr.NR52))
	s.Write(addr.NR50, 0x77)
	assert.Equal(t, uint8(0x77), s.Read(addr.NR50))
}

func TestSession_TimerOverflowAndReload(t *testing.T) {
	s := newSession(t, Config{})
	s.Write(addr.TMA, 0x42)
	s.Write(addr.TIMA, 0xFE)
	s.Write(addr.TAC, 0x05) // enabled, 16 cycles

	s.Advance(16)
	assert.Equal(t, uint8(0xFF), s.Read(addr.TIMA))

	s.Advance(16)
	assert.Equal(t, uint8(0x00), s.Read(addr.TIMA), "TIMA reads 0 right after overflow")

	s.Advance(3)
	assert.Equal(t, uint8(0x00), s.Read(addr.TIMA))
	assert.Equal(t, uint8(0xE0), s.Read(addr.IF))

	s.Advance(1)
	assert.Equal(t, uint8(0x42), s.Read(addr.TIMA))
	assert.Equal(t, uint8(0xE4), s.Read(addr.IF))

	s.Advance(12)
	assert.Equal(t, uint8(0x43), s.Read(addr.TIMA))
}

func TestSession_TimerWriteDuringReloadCancelsIt(t *testing.T) {
	s := newSession(t, Config{})
	s.Write(addr.TMA, 0x42)
	s.Write(addr.TIMA, 0xFF)
	s.Write(addr.TAC, 0x05)

	s.Advance(18)
	s.Write(addr.TIMA, 0x10)
	s.Advance(4)
	assert.Equal(t, uint8(0x10), s.Read(addr.TIMA))
	assert.Zero(t, s.Read(addr.IF)&uint8(addr.TimerInterrupt))
}

func TestSession_TimerPeriods(t *testing.T) {
	tests := []struct {
		tac    uint8
		period int64
	}{
		{0x04, 1024},
		{0x05, 16},
		{0x06, 64},
		{0x07, 256},
	}

	for _, tt := range tests {
		s := newSession(t, Config{})
		s.Write(addr.TAC, tt.tac)
		s.Advance(tt.period*10 - 1)
		assert.Equal(t, uint8(9), s.Read(addr.TIMA), "TAC 0x%02X", tt.tac)
		s.Advance(1)
		assert.Equal(t, uint8(10), s.Read(addr.TIMA), "TAC 0x%02X", tt.tac)
		assert.Equal(t, tt.tac|0xF8, s.Read(addr.TAC))
	}

	s := newSession(t, Config{})
	s.Write(addr.TAC, 0x01) // disabled
	s.Advance(4096)
	assert.Zero(t, s.Read(addr.TIMA))
}

func TestSession_DIV(t *testing.T) {
	s := newSession(t, Config{})
	s.Advance(256*3 + 10)
	assert.Equal(t, uint8(3), s.Read(addr.DIV))

	s.Write(addr.DIV, 0x99)
	assert.Equal(t, uint8(0), s.Read(addr.DIV))
	s.Advance(255)
	assert.Equal(t, uint8(0), s.Read(addr.DIV))
	s.Advance(1)
	assert.Equal(t, uint8(1), s.Read(addr.DIV))

	// the divider follows the CPU clock
	s.SetDoubleSpeed(true)
	s.Advance(128)
	assert.Equal(t, uint8(2), s.Read(addr.DIV))
}

func TestSession_SerialTransfer(t *testing.T) {
	var logs bytes.Buffer
	s := New(Config{}, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	send := func(b byte) {
		s.Write(addr.SB, b)
		s.Write(addr.SC, 0x81)
		s.Advance(serialTransferCycles)
	}

	s.Write(addr.SB, 'H')
	s.Write(addr.SC, 0x81)
	s.Advance(serialTransferCycles - 1)
	assert.Equal(t, uint8(0xFF), s.Read(addr.SC))
	assert.Zero(t, s.Read(addr.IF)&uint8(addr.SerialInterrupt))

	s.Advance(1)
	assert.Equal(t, uint8(0xFF), s.Read(addr.SB))
	assert.Equal(t, uint8(0x7F), s.Read(addr.SC))
	assert.NotZero(t, s.Read(addr.IF)&uint8(addr.SerialInterrupt))

	send('i')
	assert.Equal(t, "Hi", s.SerialOutput())
	send('\n')
	assert.Empty(t, s.SerialOutput())
	assert.Contains(t, logs.String(), "line=Hi")

	// external clock: nothing happens without a peer
	s.Write(addr.SC, 0x80)
	_, active := s.sched.Pending(Serial)
	assert.False(t, active)
}

func TestSession_VBlank(t *testing.T) {
	var frames []uint64
	var irqs []addr.Interrupt
	s := newSession(t, Config{},
		WithFrameCallback(func(f uint64) { frames = append(frames, f) }),
		WithInterruptHandler(func(i addr.Interrupt) { irqs = append(irqs, i) }),
	)

	s.Advance(CyclesPerFrame*3 - 1)
	assert.Equal(t, []uint64{1, 2}, frames)
	s.Advance(1)
	assert.Equal(t, []uint64{1, 2, 3}, frames)
	assert.Equal(t, uint64(3), s.Frames())
	assert.Equal(t, []addr.Interrupt{addr.VBlankInterrupt, addr.VBlankInterrupt, addr.VBlankInterrupt}, irqs)
	assert.Equal(t, uint8(0xE1), s.Read(addr.IF))
}

func TestSession_SampleOutput(t *testing.T) {
	sink := &collectSink{}
	s := newSession(t, Config{SampleRate: 32768, Sink: sink, BufferFrames: 16})

	// 128 cycles per sample, all channels silent
	s.Advance(128 * 32)
	require.Len(t, sink.frames, 32)
	for _, f := range sink.frames {
		assert.Equal(t, output.Frame{}, f)
	}

	// channel 1 at 50% duty on both sides, master volume 8/8
	s.Write(addr.NR50, 0x77)
	triggerSquare(s, 0x700, 0xF0)
	sink.frames = nil
	s.Advance(128 * 64)
	require.NoError(t, s.Output().Flush())
	require.Len(t, sink.frames, 64)

	highs, lows := 0, 0
	for _, f := range sink.frames {
		assert.Equal(t, f.Left, f.Right)
		switch f.Left {
		case 0.25:
			highs++
		case -0.25:
			lows++
		default:
			t.Fatalf("unexpected sample %v", f.Left)
		}
	}
	assert.Equal(t, 32, highs)
	assert.Equal(t, 32, lows)
}

func TestSession_Panning(t *testing.T) {
	s := newSession(t, Config{})
	triggerSquare(s, 0x700, 0xF0)
	s.Advance(1024 * 5) // into the high half of the 50% pattern

	s.Write(addr.NR50, 0x70) // left 8/8, right 1/8
	s.Write(addr.NR51, 0x11)
	left, right := s.apu.mix()
	assert.Equal(t, float32(0.25), left)
	assert.Equal(t, float32(0.25/8), right)

	s.Write(addr.NR51, 0x10) // left only
	left, right = s.apu.mix()
	assert.Equal(t, float32(0.25), left)
	assert.Zero(t, right)
}

func TestSession_DoubleSpeed(t *testing.T) {
	s := newSession(t, Config{})
	s.Write(addr.KEY1, 0x01)
	assert.Equal(t, uint8(0x7F), s.Read(addr.KEY1))

	require.True(t, s.SwitchSpeed())
	assert.Equal(t, uint8(0xFE), s.Read(addr.KEY1))
	assert.False(t, s.SwitchSpeed(), "a switch must be re-armed")

	// the timer follows the CPU clock
	s.Write(addr.TAC, 0x05)
	due, _ := s.sched.Pending(Timer)
	assert.Equal(t, s.Now()+8, due)

	// the APU does not
	triggerSquare(s, 0x700, 0xF0)
	due, _ = s.sched.Pending(Channel1)
	assert.Equal(t, s.Now()+1024, due)

	// serial transfers complete twice as fast
	s.Write(addr.SC, 0x81)
	due, _ = s.sched.Pending(Serial)
	assert.Equal(t, s.Now()+serialTransferCycles/2, due)

	// pending VBlank keeps its due time
	due, _ = s.sched.Pending(VBlank)
	assert.Equal(t, int64(CyclesPerFrame), due)
	s.Advance(CyclesPerFrame)
	due, _ = s.sched.Pending(VBlank)
	assert.Equal(t, int64(2*CyclesPerFrame), due)
}

func TestSession_SaveLoadRoundTrip(t *testing.T) {
	cfg := Config{SampleRate: 48000}
	src := newSession(t, cfg)
	src.Write(addr.WaveRAMStart+1, 0x5A)
	src.Write(addr.NR30, 0x80)
	src.Write(addr.NR32, 0x20)
	src.Write(addr.NR34, 0x86)
	triggerSquare(src, 0x6D6, 0xA3)
	src.Write(addr.NR42, 0xF2)
	src.Write(addr.NR43, 0x21)
	src.Write(addr.NR44, 0x80)
	src.Write(addr.TAC, 0x06)
	src.Write(addr.SB, 'x')
	src.Write(addr.SC, 0x81)
	src.Advance(123457)

	data, err := src.Save()
	require.NoError(t, err)

	dst := newSession(t, cfg)
	require.NoError(t, dst.Load(data))

	for _, s := range []*Session{src, dst} {
		s.Advance(99991)
	}
	a, err := src.Save()
	require.NoError(t, err)
	b, err := dst.Save()
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, src.ChannelStatus(), dst.ChannelStatus())
	for _, reg := range []uint16{addr.NR52, addr.TIMA, addr.DIV, addr.IF, addr.SC, addr.WaveRAMStart + 1} {
		assert.Equal(t, src.Read(reg), dst.Read(reg), "register 0x%04X", reg)
	}
}

// savedWith saves a fresh session after setup has run against it.
func savedWith(t *testing.T, setup func(s *Session)) []byte {
	t.Helper()
	s := newSession(t, Config{})
	s.Advance(1000)
	setup(s)
	data, err := s.Save()
	require.NoError(t, err)
	return data
}

func TestSession_LoadRejectsCorruption(t *testing.T) {
	s := newSession(t, Config{})
	triggerSquare(s, 0x700, 0xF0)
	s.Advance(5000)
	good, err := s.Save()
	require.NoError(t, err)

	other := newSession(t, Config{})
	other.Advance(777)
	before, err := other.Save()
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"truncated", good[:len(good)-3]},
		{"trailing", append(append([]byte(nil), good...), 0)},
		{"bad tag", append([]byte("XXXX"), good[4:]...)},
		{"bad version", func() []byte {
			d := append([]byte(nil), good...)
			d[4] = 9
			return d
		}()},
		{"running channel without its period event", savedWith(t, func(s *Session) {
			triggerSquare(s, 0x700, 0xF0)
			s.sched.Cancel(Channel1)
		})},
		{"silent channel with a period event", savedWith(t, func(s *Session) {
			s.sched.Insert(Channel2, 64, true)
		})},
		{"enabled timer without its event", savedWith(t, func(s *Session) {
			s.Write(addr.TAC, 0x05)
			s.sched.Cancel(Timer)
		})},
		{"stopped timer with an event", savedWith(t, func(s *Session) {
			s.sched.Insert(Timer, 16, true)
		})},
		{"sample event without output", savedWith(t, func(s *Session) {
			s.sched.Insert(Sample, 87, true)
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := other.Load(tt.data)
			assert.ErrorIs(t, err, savestate.ErrStateCorruption)
			after, err := other.Save()
			require.NoError(t, err)
			assert.Equal(t, before, after, "failed load leaves the session untouched")
		})
	}
}

func TestSession_LoadAcrossSampleRates(t *testing.T) {
	tests := []struct {
		name       string
		saveRate   int
		loadRate   int
		wantSample bool
	}{
		{"output dropped", 48000, 0, false},
		{"output added", 0, 48000, true},
		{"rate changed", 48000, 32000, true},
		{"same rate", 44100, 44100, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newSession(t, Config{SampleRate: tt.saveRate})
			src.Advance(54321)
			data, err := src.Save()
			require.NoError(t, err)

			dst := newSession(t, Config{SampleRate: tt.loadRate})
			require.NoError(t, dst.Load(data))
			_, active := dst.sched.Pending(Sample)
			assert.Equal(t, tt.wantSample, active)

			assert.NotPanics(t, func() { dst.Advance(CyclesPerFrame) })
			if tt.wantSample {
				assert.NotZero(t, dst.Output().Pushed())
			} else {
				assert.Zero(t, dst.Output().Pushed())
			}
		})
	}
}

func TestSession_SerialLineSurvivesLoad(t *testing.T) {
	src := newSession(t, Config{})
	for _, b := range []byte("Pas") {
		src.Write(addr.SB, b)
		src.Write(addr.SC, 0x81)
		src.Advance(serialTransferCycles)
	}
	data, err := src.Save()
	require.NoError(t, err)

	var logs bytes.Buffer
	dst := New(Config{}, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	require.NoError(t, dst.Load(data))
	assert.Equal(t, "Pas", dst.SerialOutput())

	for _, b := range []byte("sed\n") {
		dst.Write(addr.SB, b)
		dst.Write(addr.SC, 0x81)
		dst.Advance(serialTransferCycles)
	}
	assert.Contains(t, logs.String(), "line=Passed")
}

func TestSession_ChannelStatus(t *testing.T) {
	s := newSession(t, Config{})
	triggerSquare(s, 0x6D6, 0xF0)

	st := s.ChannelStatus()
	assert.Equal(t, audio.Square, st[0].Variant)
	assert.Equal(t, "A4", st[0].Note)
	assert.True(t, st[0].Enabled)
	assert.Equal(t, audio.Noise, st[3].Variant)
	assert.False(t, st[3].Enabled)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "Channel3", Channel3.String())
	assert.Equal(t, "VBlank", VBlank.String())
	assert.Equal(t, "Unknown", Kind(42).String())
}
