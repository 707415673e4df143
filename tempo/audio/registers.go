package audio

import "github.com/valerio/go-tempo/tempo/bit"

// Register identifies one of the byte-wide control registers of a channel.
// Platforms map their memory-mapped addresses onto these.
type Register uint8

const (
	// RegLength is NRx1: duty pattern (bits 7-6) and length load.
	RegLength Register = iota
	// RegEnvelope is NRx2: initial volume (7-4), direction (3), period (2-0).
	RegEnvelope
	// RegFreqLow is NRx3: low 8 bits of the period value.
	RegFreqLow
	// RegFreqHigh is NRx4: trigger (7) and high 3 bits of the period value.
	RegFreqHigh
	// RegNoise is NR43: clock shift (7-4), width mode (3), divisor code (2-0).
	RegNoise
	// RegWaveControl is NR30: DAC power (7), bank select (6), dual bank (5).
	RegWaveControl
	// RegWaveLevel is NR32: output level code (6-5).
	RegWaveLevel
)

const (
	triggerBit       = 7
	envelopeUpBit    = 3
	noiseWidthBit    = 3
	waveDACBit       = 7
	waveBankBit      = 6
	waveDualBankBit  = 5
	dacEnableMask    = 0xF8
	frequencyLowMask = 0x0FF
)

// Write stores a register value. Bits a register does not implement are
// discarded; writes to registers the variant lacks are ignored. Writing the
// trigger bit of RegFreqHigh restarts the channel.
func (c *Channel) Write(reg Register, value uint8) {
	c.markConfigured()

	switch reg {
	case RegLength:
		if sq, ok := c.voice.(*squareVoice); ok {
			sq.dutyPattern = value >> 6
		}

	case RegEnvelope:
		if !c.hasEnvelope() {
			return
		}
		c.volumeLoad = value >> 4
		c.envDirection = Direction(bit.Extract(value, envelopeUpBit, envelopeUpBit))
		c.envLoad = value & 0x07
		c.dacOn = value&dacEnableMask != 0
		if !c.dacOn {
			c.disable()
		}

	case RegFreqLow:
		if c.voice.variant() == Noise {
			return
		}
		c.frequency = c.frequency&^frequencyLowMask | uint16(value)

	case RegFreqHigh:
		if c.voice.variant() != Noise {
			c.frequency = c.frequency&frequencyLowMask | uint16(value&0x07)<<8
		}
		if bit.IsSet(triggerBit, value) {
			c.Trigger()
		}

	case RegNoise:
		if nv, ok := c.voice.(*noiseVoice); ok {
			nv.clockShift = value >> 4
			nv.widthMode = bit.IsSet(noiseWidthBit, value)
			nv.divisorIndex = value & 0x07
		}

	case RegWaveControl:
		wv, ok := c.voice.(*waveVoice)
		if !ok {
			return
		}
		if len(wv.table) > waveBankSize {
			wv.dualBank = bit.IsSet(waveDualBankBit, value)
			wv.bankIndex = bit.IsSet(waveBankBit, value)
		}
		c.dacOn = bit.IsSet(waveDACBit, value)
		if !c.dacOn {
			c.disable()
		}

	case RegWaveLevel:
		if c.voice.variant() == Wave {
			c.volume = (value >> 5) & 0x03
			c.output = c.sample()
		}
	}
}

// Read returns a register as the CPU sees it. Write-only and unimplemented
// bits read back as 1.
func (c *Channel) Read(reg Register) uint8 {
	switch reg {
	case RegLength:
		if sq, ok := c.voice.(*squareVoice); ok {
			return sq.dutyPattern<<6 | 0x3F
		}
	case RegEnvelope:
		if c.hasEnvelope() {
			return c.volumeLoad<<4 | uint8(c.envDirection)<<envelopeUpBit | c.envLoad
		}
	case RegFreqHigh:
		return 0xBF
	case RegNoise:
		if nv, ok := c.voice.(*noiseVoice); ok {
			return nv.clockShift<<4 | bit.Bool[uint8](nv.widthMode)<<noiseWidthBit | nv.divisorIndex
		}
	case RegWaveControl:
		if wv, ok := c.voice.(*waveVoice); ok {
			v := bit.Assign(waveDACBit, uint8(0x1F), c.dacOn)
			if len(wv.table) == waveBankSize {
				return v | 0x60
			}
			v = bit.Assign(waveBankBit, v, wv.bankIndex)
			return bit.Assign(waveDualBankBit, v, wv.dualBank)
		}
	case RegWaveLevel:
		if c.voice.variant() == Wave {
			return c.volume<<5 | 0x9F
		}
	}
	return 0xFF
}

// WriteWaveRAM stores one byte of wave pattern RAM. With two banks the write
// lands in the bank that is not playing.
func (c *Channel) WriteWaveRAM(index int, value uint8) {
	wv, ok := c.voice.(*waveVoice)
	if !ok {
		return
	}
	wv.table[wv.accessBank()*waveBankSize+index%waveBankSize] = value
}

// ReadWaveRAM reads one byte of wave pattern RAM from the CPU-visible bank.
func (c *Channel) ReadWaveRAM(index int) uint8 {
	wv, ok := c.voice.(*waveVoice)
	if !ok {
		return 0xFF
	}
	return wv.table[wv.accessBank()*waveBankSize+index%waveBankSize]
}
