package gb

import (
	"github.com/valerio/go-tempo/tempo/addr"
	"github.com/valerio/go-tempo/tempo/audio"
	"github.com/valerio/go-tempo/tempo/bit"
)

// Reference: https://gbdev.io/pandocs/Audio_Registers.html
const (
	nr52PowerBit   = 7
	nr52UnusedMask = 0x70
	nr10UnusedMask = 0x80

	// dacScale maps a 4-bit channel output onto [-1, 1].
	dacScale = 7.5
	// mixDivisor keeps four channels at full master volume within range.
	mixDivisor = 4
)

// registerMap routes the per-channel NRxy addresses to a channel index and
// the channel register they drive.
type registerRoute struct {
	channel int
	reg     audio.Register
}

var registerMap = map[uint16]registerRoute{
	addr.NR11: {0, audio.RegLength},
	addr.NR12: {0, audio.RegEnvelope},
	addr.NR13: {0, audio.RegFreqLow},
	addr.NR14: {0, audio.RegFreqHigh},
	addr.NR21: {1, audio.RegLength},
	addr.NR22: {1, audio.RegEnvelope},
	addr.NR23: {1, audio.RegFreqLow},
	addr.NR24: {1, audio.RegFreqHigh},
	addr.NR30: {2, audio.RegWaveControl},
	addr.NR31: {2, audio.RegLength},
	addr.NR32: {2, audio.RegWaveLevel},
	addr.NR33: {2, audio.RegFreqLow},
	addr.NR34: {2, audio.RegFreqHigh},
	addr.NR41: {3, audio.RegLength},
	addr.NR42: {3, audio.RegEnvelope},
	addr.NR43: {3, audio.RegNoise},
	addr.NR44: {3, audio.RegFreqHigh},
}

// apu holds the four channels and the global sound registers. Channel
// timing is driven by the session's scheduler; the apu itself never looks
// at the clock.
type apu struct {
	channels [4]*audio.Channel
	// lastSync is the cycle each channel's frequency timer was last brought
	// up to date.
	lastSync [4]int64

	power bool
	nr10  uint8
	nr50  uint8
	nr51  uint8
	step  uint8
}

func newAPU() *apu {
	a := &apu{
		channels: [4]*audio.Channel{
			audio.NewSquare(audio.ModelGB),
			audio.NewSquare(audio.ModelGB),
			audio.NewWave(audio.ModelGB),
			audio.NewNoise(audio.ModelGB),
		},
	}
	a.reset()
	return a
}

// reset restores the power-up register values.
// Reference: https://gbdev.io/pandocs/Power_Up_Sequence.html#hardware-registers
func (a *apu) reset() {
	for i, c := range a.channels {
		c.Reset()
		a.lastSync[i] = 0
	}
	a.power = true
	a.nr10 = 0x80
	a.nr50 = 0x77
	a.nr51 = 0xF3
	a.step = 0
}

// powerOff clears every register but wave RAM, as writing 0 to NR52 bit 7
// does.
func (a *apu) powerOff() {
	for _, c := range a.channels {
		c.PowerOff()
	}
	a.power = false
	a.nr10 = 0
	a.nr50 = 0
	a.nr51 = 0
	a.step = 0
}

// sequence advances the frame sequencer one step. Only the envelope is
// modeled: it is clocked on step 7 (64 Hz).
func (a *apu) sequence() {
	a.step = (a.step + 1) & 7
	if a.step != 7 {
		return
	}
	for _, i := range []int{0, 1, 3} {
		a.channels[i].ClockEnvelope()
	}
}

func (a *apu) readStatus() uint8 {
	v := bit.Assign(nr52PowerBit, uint8(nr52UnusedMask), a.power)
	for i, c := range a.channels {
		v = bit.Assign(uint8(i), v, c.Enabled())
	}
	return v
}

// mix combines the channel outputs through the NR51 panning switches and
// the NR50 master volumes.
func (a *apu) mix() (left, right float32) {
	if !a.power {
		return 0, 0
	}
	for i, c := range a.channels {
		if !c.DACOn() {
			continue
		}
		v := float32(c.Output())/dacScale - 1
		if bit.IsSet(uint8(i+4), a.nr51) {
			left += v
		}
		if bit.IsSet(uint8(i), a.nr51) {
			right += v
		}
	}
	leftVol := float32(bit.Extract(a.nr50, 6, 4)+1) / 8
	rightVol := float32(bit.Extract(a.nr50, 2, 0)+1) / 8
	return left * leftVol / mixDivisor, right * rightVol / mixDivisor
}
