package audio

import "github.com/valerio/go-tempo/tempo/bit"

// voice is the variant half of a Channel. Implementations are the closed set
// squareVoice, waveVoice and noiseVoice.
type voice interface {
	variant() Variant
	// reload returns the frequency timer period in CPU cycles.
	reload(c *Channel) int32
	// advance moves the phase one step.
	advance(c *Channel)
	// sample extracts the 4-bit output at the current phase.
	sample(c *Channel) uint8
	// trigger resets variant phase state.
	trigger(c *Channel)
	// clear zeroes variant state; full also clears sample memory.
	clear(full bool)
}

type squareVoice struct {
	dutyPattern uint8
}

func (v *squareVoice) variant() Variant { return Square }

func (v *squareVoice) reload(c *Channel) int32 {
	return (frequencyToTimerOffset - int32(c.frequency)) * squarePeriodScale * c.model.PeriodFactor
}

func (v *squareVoice) advance(c *Channel) {
	c.dutyIndex = (c.dutyIndex + 1) % squarePhases
}

func (v *squareVoice) sample(c *Channel) uint8 {
	return dutyPatterns[v.dutyPattern][c.dutyIndex] * c.volume
}

func (v *squareVoice) trigger(c *Channel) {}

func (v *squareVoice) clear(bool) {
	*v = squareVoice{}
}

type waveVoice struct {
	// table holds one or two banks of 16 bytes, two samples per byte with
	// the high nibble first.
	table     []byte
	bankIndex bool
	dualBank  bool
}

func (v *waveVoice) variant() Variant { return Wave }

func (v *waveVoice) reload(c *Channel) int32 {
	return (frequencyToTimerOffset - int32(c.frequency)) * wavePeriodScale * c.model.PeriodFactor
}

func (v *waveVoice) advance(c *Channel) {
	c.dutyIndex = (c.dutyIndex + 1) % wavePhases
	if c.dutyIndex == 0 && v.dualBank {
		v.bankIndex = !v.bankIndex
	}
}

// playBank is the bank the generator reads from.
func (v *waveVoice) playBank() int {
	if len(v.table) == waveBankSize {
		return 0
	}
	return int(bit.Bool[uint8](v.bankIndex))
}

// accessBank is the bank the CPU sees: the one not being played when the
// hardware has two.
func (v *waveVoice) accessBank() int {
	if len(v.table) == waveBankSize {
		return 0
	}
	return 1 - v.playBank()
}

func (v *waveVoice) sample(c *Channel) uint8 {
	b := v.table[v.playBank()*waveBankSize+int(c.dutyIndex/2)]
	nibble := b & 0x0F
	if c.dutyIndex%2 == 0 {
		nibble = b >> 4
	}
	if c.volume == 0 {
		return 0
	}
	return nibble >> (c.volume - 1)
}

func (v *waveVoice) trigger(c *Channel) {}

func (v *waveVoice) clear(full bool) {
	v.bankIndex = false
	v.dualBank = false
	if full {
		clear(v.table)
	}
}

type noiseVoice struct {
	lfsr         uint16
	widthMode    bool
	clockShift   uint8
	divisorIndex uint8
}

func (v *noiseVoice) variant() Variant { return Noise }

func (v *noiseVoice) reload(c *Channel) int32 {
	return (noiseDivisors[v.divisorIndex] * c.model.PeriodFactor) << v.clockShift
}

// advance clocks the LFSR: the XOR of the two low bits is shifted in at bit
// 14, and also at bit 6 in 7-bit width mode.
func (v *noiseVoice) advance(c *Channel) {
	v.lfsr = stepLFSR(v.lfsr, v.widthMode)
}

func stepLFSR(lfsr uint16, width bool) uint16 {
	feedback := (lfsr ^ lfsr>>1) & 1
	lfsr >>= 1
	lfsr = lfsr&^(1<<14) | feedback<<14
	if width {
		lfsr = lfsr&^(1<<6) | feedback<<6
	}
	return lfsr
}

func (v *noiseVoice) sample(c *Channel) uint8 {
	if v.lfsr&1 == 0 {
		return c.volume
	}
	return 0
}

func (v *noiseVoice) trigger(c *Channel) {
	v.lfsr = lfsrInitialValue
}

func (v *noiseVoice) clear(bool) {
	*v = noiseVoice{}
}
