package n64

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func newSession(t *testing.T, cfg Config, opts ...Option) *Session {
	t.Helper()
	quiet := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	return New(cfg, append([]Option{WithLogger(quiet)}, opts...)...)
}

func TestVI_FrameCadence(t *testing.T) {
	var seen []uint64
	s := newSession(t, Config{}, WithFrameCallback(func(f uint64) { seen = append(seen, f) }))
	s.Write32(MI_MASK, 0x80) // set VI mask bit

	s.Advance(CyclesPerFrame - 1)
	assert.Zero(t, s.Frames())
	assert.False(t, s.InterruptPending())

	s.Advance(1)
	assert.Equal(t, uint64(1), s.Frames())
	assert.Equal(t, uint32(IntrVI), s.Read32(MI_INTR))
	assert.True(t, s.InterruptPending())

	s.Write32(VI_CURRENT, 0)
	assert.Zero(t, s.Read32(MI_INTR), "writing VI_CURRENT acknowledges")

	s.Advance(2 * CyclesPerFrame)
	assert.Equal(t, []uint64{1, 2, 3}, seen)
}

func TestVI_CurrentLine(t *testing.T) {
	s := newSession(t, Config{})
	assert.Zero(t, s.Read32(VI_CURRENT))
	s.Advance(CyclesPerFrame / 2)
	assert.Equal(t, uint32(halfLines/2), s.Read32(VI_CURRENT))
}

func TestMI_Mask(t *testing.T) {
	s := newSession(t, Config{})
	s.Write32(MI_MASK, 0xAAA) // set all six
	assert.Equal(t, uint32(0x3F), s.Read32(MI_MASK))
	s.Write32(MI_MASK, 0x001|0x100) // clear SP and PI
	assert.Equal(t, uint32(0x2E), s.Read32(MI_MASK))
	assert.Equal(t, uint32(miVersion), s.Read32(MI_VERSION))
}

func TestRDRAM_BigEndian(t *testing.T) {
	s := newSession(t, Config{}, WithRDRAMSize(1<<16))
	s.Write32(0x10, 0x11223344)
	assert.Equal(t, uint32(0x11223344), s.Read32(0x10))
	assert.Equal(t, byte(0x11), s.rdram[0x10])
	assert.Equal(t, byte(0x44), s.rdram[0x13])
}

func TestAI_DoubleBuffer(t *testing.T) {
	const duration = 8504 // 4 frames at dac rate 1103

	sink := &collectSink{}
	s := newSession(t, Config{Sink: sink})
	s.Write32(AI_CONTROL, 1)
	s.Write32(AI_DACRATE, 1103)
	assert.Equal(t, 44095, s.SampleRate())

	for i := uint32(0); i < 4; i++ {
		s.Write32(0x1000+4*i, 0x4000C000)
		s.Write32(0x2000+4*i, 0x20000000)
	}

	s.Write32(AI_DRAM_ADDR, 0x1000)
	s.Write32(AI_LEN, 16)
	assert.Equal(t, uint32(aiStatusBusy|aiStatusEnable), s.Read32(AI_STATUS))

	s.Write32(AI_DRAM_ADDR, 0x2000)
	s.Write32(AI_LEN, 16)
	assert.Equal(t, uint32(aiStatusFull|aiStatusBusy|aiStatusEnable|1), s.Read32(AI_STATUS))

	s.Write32(AI_LEN, 16) // dropped
	assert.Equal(t, 2, s.ai.queued)

	s.Advance(duration / 2)
	assert.Equal(t, uint32(8), s.Read32(AI_LEN))

	s.Advance(duration/2 - 1)
	assert.Zero(t, s.Output().Len())
	assert.Zero(t, s.Read32(MI_INTR))

	s.Advance(1)
	assert.Equal(t, 4, s.Output().Len())
	assert.Equal(t, uint32(IntrAI), s.Read32(MI_INTR))
	assert.Equal(t, uint32(aiStatusBusy|aiStatusEnable), s.Read32(AI_STATUS))

	s.Write32(AI_STATUS, 0)
	assert.Zero(t, s.Read32(MI_INTR))

	s.Advance(duration)
	assert.Equal(t, uint32(aiStatusEnable), s.Read32(AI_STATUS))
	require.NoError(t, s.Output().Flush())

	require.Len(t, sink.frames, 8)
	assert.Equal(t, output.Frame{Left: 0.5, Right: -0.5}, sink.frames[0])
	assert.Equal(t, output.Frame{Left: 0.25, Right: 0}, sink.frames[7])
}

func TestAI_DMADisabled(t *testing.T) {
	s := newSession(t, Config{})
	s.Write32(AI_LEN, 16)
	assert.Zero(t, s.ai.queued)
	_, active := s.sched.Pending(AI)
	assert.False(t, active)
}

func TestPI_CartToRDRAM(t *testing.T) {
	rom := make([]byte, 32)
	for i := range rom {
		rom[i] = byte(i + 1)
	}
	s := newSession(t, Config{}, WithROM(rom))
	assert.Equal(t, uint32(0x01020304), s.Read32(CartBase))

	s.Write32(PI_DRAM_ADDR, 0x100)
	s.Write32(PI_CART_ADDR, CartBase)
	s.Write32(PI_WR_LEN, 7)
	assert.Equal(t, uint32(piStatusBusy), s.Read32(PI_STATUS))

	s.Advance(8*piCyclesPerByte - 1)
	assert.Zero(t, s.Read32(0x100))

	s.Advance(1)
	assert.Equal(t, rom[:8], s.rdram[0x100:0x108])
	assert.Equal(t, uint32(piStatusIntr), s.Read32(PI_STATUS))
	assert.Equal(t, uint32(0x108), s.Read32(PI_DRAM_ADDR))
	assert.Equal(t, CartBase+8, s.Read32(PI_CART_ADDR))

	s.Write32(PI_STATUS, 0x02)
	assert.Zero(t, s.Read32(PI_STATUS))
}

func TestPI_ResetAbortsTransfer(t *testing.T) {
	s := newSession(t, Config{})
	s.Write32(PI_WR_LEN, 0xFF)
	s.Write32(PI_STATUS, 0x01)
	s.Advance(0x100 * piCyclesPerByte)
	assert.Zero(t, s.Read32(MI_INTR))
	assert.Zero(t, s.Read32(PI_STATUS))
}

func TestSI_PIFTransfers(t *testing.T) {
	s := newSession(t, Config{})
	for i := 0; i < pifRAMSize; i++ {
		s.rdram[0x200+i] = byte(0x80 + i)
	}

	s.Write32(SI_DRAM_ADDR, 0x200)
	s.Write32(SI_PIF_ADDR_WR64B, 0x1FC007C0)
	assert.Equal(t, uint32(siStatusBusy), s.Read32(SI_STATUS))

	s.Advance(siDMACycles)
	assert.Equal(t, s.rdram[0x200:0x240], s.PIFRAM())
	assert.Equal(t, uint32(siStatusIntr), s.Read32(SI_STATUS))

	s.Write32(SI_STATUS, 0)
	s.PIFRAM()[0] = 0xFF
	s.Write32(SI_DRAM_ADDR, 0x300)
	s.Write32(SI_PIF_ADDR_RD64B, 0x1FC007C0)
	s.Advance(siDMACycles)
	assert.Equal(t, byte(0xFF), s.rdram[0x300])
	assert.Equal(t, byte(0x81), s.rdram[0x301])
	assert.Equal(t, uint32(IntrSI), s.Read32(MI_INTR))
}

func TestCP0_CountCompare(t *testing.T) {
	s := newSession(t, Config{})
	s.SetCompare(100)

	s.Advance(199)
	assert.False(t, s.TimerInterrupt())
	assert.Equal(t, uint32(99), s.Count())

	s.Advance(1)
	assert.True(t, s.TimerInterrupt())
	assert.Equal(t, uint32(100), s.Count())

	s.SetCompare(50)
	assert.False(t, s.TimerInterrupt(), "writing Compare acknowledges")

	s.SetCount(40)
	s.Advance(19)
	assert.False(t, s.TimerInterrupt())
	s.Advance(1)
	assert.True(t, s.TimerInterrupt())
}

func TestCP0_OddCyclePhase(t *testing.T) {
	s := newSession(t, Config{})
	s.Advance(1)
	s.SetCompare(1)
	due, active := s.sched.Pending(Compare)
	require.True(t, active)
	assert.Equal(t, int64(2), due)
}

func TestCP0_FullWrap(t *testing.T) {
	s := newSession(t, Config{})
	due, active := s.sched.Pending(Compare)
	require.True(t, active)
	assert.Equal(t, int64(countWrapCycles), due, "Compare equal to Count fires after a full turn")
}

func TestSaveLoad(t *testing.T) {
	build := func() *Session {
		s := newSession(t, Config{}, WithRDRAMSize(1<<16))
		s.Write32(MI_MASK, 0xAAA)
		s.Write32(AI_CONTROL, 1)
		s.Write32(AI_DACRATE, 1103)
		s.Write32(0x1000, 0x12345678)
		s.Write32(AI_DRAM_ADDR, 0x1000)
		s.Write32(AI_LEN, 64)
		s.Write32(PI_WR_LEN, 0x3F)
		s.SetCompare(5000)
		s.Advance(1000)
		return s
	}

	src := build()
	data, err := src.Save()
	require.NoError(t, err)

	dst := newSession(t, Config{}, WithRDRAMSize(1<<16))
	require.NoError(t, dst.Load(data))
	assert.Equal(t, src.Now(), dst.Now())
	assert.Equal(t, src.Read32(0x1000), dst.Read32(0x1000))
	assert.Equal(t, src.Read32(AI_STATUS), dst.Read32(AI_STATUS))
	assert.Equal(t, src.Read32(AI_LEN), dst.Read32(AI_LEN))
	assert.Equal(t, src.Read32(PI_STATUS), dst.Read32(PI_STATUS))
	assert.Equal(t, src.Count(), dst.Count())

	src.Advance(20000)
	dst.Advance(20000)
	assert.Equal(t, src.Read32(MI_INTR), dst.Read32(MI_INTR))
	assert.Equal(t, src.TimerInterrupt(), dst.TimerInterrupt())
	assert.Equal(t, src.Output().Pushed(), dst.Output().Pushed())

	again, err := dst.Save()
	require.NoError(t, err)
	second, err := src.Save()
	require.NoError(t, err)
	assert.Equal(t, second, again)
}

func TestLoad_RejectsCorruption(t *testing.T) {
	src := newSession(t, Config{}, WithRDRAMSize(1<<16))
	data, err := src.Save()
	require.NoError(t, err)

	tests := []struct {
		name   string
		target *Session
		data   []byte
	}{
		{"truncated", newSession(t, Config{}, WithRDRAMSize(1<<16)), data[:len(data)-3]},
		{"trailing", newSession(t, Config{}, WithRDRAMSize(1<<16)), append(append([]byte(nil), data...), 0)},
		{"version", newSession(t, Config{}, WithRDRAMSize(1<<16)), func() []byte {
			d := append([]byte(nil), data...)
			d[4] = stateVersion + 1
			return d
		}()},
		{"memory size", newSession(t, Config{}, WithRDRAMSize(1<<15)), data},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.target.Advance(100)
			before, err := tt.target.Save()
			require.NoError(t, err)

			err = tt.target.Load(tt.data)
			assert.ErrorIs(t, err, savestate.ErrStateCorruption)

			after, err := tt.target.Save()
			require.NoError(t, err)
			assert.Equal(t, before, after, "failed load leaves the session untouched")
		})
	}
}
