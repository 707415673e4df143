package audio

import (
	"github.com/valerio/go-tempo/tempo/savestate"
)

// ChannelState is a plain-value snapshot of a Channel. Only the fields that
// belong to the channel's variant are meaningful; the others stay zero.
// Duty tables and noise divisors are constants and are not captured.
type ChannelState struct {
	Variant  Variant
	RunState RunState

	Enabled bool
	DACOn   bool

	Volume       uint8
	VolumeLoad   uint8
	EnvPeriod    int32
	EnvLoad      uint8
	EnvDirection Direction
	EnvEnabled   bool

	Frequency uint16
	Period    int32
	DutyIndex uint32
	Output    uint8

	// square
	DutyPattern uint8

	// wave
	SampleTable []byte
	BankIndex   bool
	DualBank    bool

	// noise
	LFSR         uint16
	WidthMode    bool
	ClockShift   uint8
	DivisorIndex uint8
}

// Snapshot captures the channel state.
func (c *Channel) Snapshot() ChannelState {
	st := ChannelState{
		Variant:      c.voice.variant(),
		RunState:     c.state,
		Enabled:      c.enabled,
		DACOn:        c.dacOn,
		Volume:       c.volume,
		VolumeLoad:   c.volumeLoad,
		EnvPeriod:    c.envPeriod,
		EnvLoad:      c.envLoad,
		EnvDirection: c.envDirection,
		EnvEnabled:   c.envEnabled,
		Frequency:    c.frequency,
		Period:       c.period,
		DutyIndex:    c.dutyIndex,
		Output:       c.output,
	}

	switch v := c.voice.(type) {
	case *squareVoice:
		st.DutyPattern = v.dutyPattern
	case *waveVoice:
		st.SampleTable = append([]byte(nil), v.table...)
		st.BankIndex = v.bankIndex
		st.DualBank = v.dualBank
	case *noiseVoice:
		st.LFSR = v.lfsr
		st.WidthMode = v.widthMode
		st.ClockShift = v.clockShift
		st.DivisorIndex = v.divisorIndex
	}
	return st
}

// Validate checks that st could have been produced by c.
func (c *Channel) Validate(st ChannelState) error {
	variant := c.voice.variant()
	if st.Variant != variant {
		return savestate.Corruptf("channel variant %d, want %v", st.Variant, variant)
	}
	if st.RunState > Disabled {
		return savestate.Corruptf("channel run state %d", st.RunState)
	}
	if st.EnvDirection > Up {
		return savestate.Corruptf("envelope direction %d", st.EnvDirection)
	}
	if st.Volume > volumeMax || st.VolumeLoad > volumeMax || st.Output > volumeMax {
		return savestate.Corruptf("volume %d/%d/%d out of range", st.Volume, st.VolumeLoad, st.Output)
	}
	if st.EnvLoad > 7 || st.EnvPeriod < 0 || st.EnvPeriod > envelopeZeroPeriod {
		return savestate.Corruptf("envelope period %d/%d out of range", st.EnvPeriod, st.EnvLoad)
	}
	if st.Frequency > frequencyMax {
		return savestate.Corruptf("frequency 0x%X out of range", st.Frequency)
	}
	if st.Period < 0 {
		return savestate.Corruptf("negative period %d", st.Period)
	}

	switch variant {
	case Square:
		if st.DutyPattern > 3 || st.DutyIndex >= squarePhases {
			return savestate.Corruptf("square duty %d/%d out of range", st.DutyPattern, st.DutyIndex)
		}
	case Wave:
		if st.Volume > 3 || st.DutyIndex >= wavePhases {
			return savestate.Corruptf("wave level %d/index %d out of range", st.Volume, st.DutyIndex)
		}
		if len(st.SampleTable) != c.model.WaveBanks*waveBankSize {
			return savestate.Corruptf("wave table of %d bytes", len(st.SampleTable))
		}
	case Noise:
		if st.LFSR > lfsrMask || st.ClockShift > 15 || st.DivisorIndex > 7 || st.DutyIndex != 0 {
			return savestate.Corruptf("noise lfsr 0x%X shift %d divisor %d", st.LFSR, st.ClockShift, st.DivisorIndex)
		}
	}
	return nil
}

// Restore replaces the channel state with st. Nothing changes when st fails
// validation.
func (c *Channel) Restore(st ChannelState) error {
	if err := c.Validate(st); err != nil {
		return err
	}

	c.state = st.RunState
	c.enabled = st.Enabled
	c.dacOn = st.DACOn
	c.volume = st.Volume
	c.volumeLoad = st.VolumeLoad
	c.envPeriod = st.EnvPeriod
	c.envLoad = st.EnvLoad
	c.envDirection = st.EnvDirection
	c.envEnabled = st.EnvEnabled
	c.frequency = st.Frequency
	c.period = st.Period
	c.dutyIndex = st.DutyIndex
	c.output = st.Output

	switch v := c.voice.(type) {
	case *squareVoice:
		v.dutyPattern = st.DutyPattern
	case *waveVoice:
		copy(v.table, st.SampleTable)
		v.bankIndex = st.BankIndex
		v.dualBank = st.DualBank
	case *noiseVoice:
		v.lfsr = st.LFSR
		v.widthMode = st.WidthMode
		v.clockShift = st.ClockShift
		v.divisorIndex = st.DivisorIndex
	}
	return nil
}

// Encode appends st to e. Every field is written regardless of variant so
// the layout is fixed.
func (st ChannelState) Encode(e *savestate.Encoder) {
	e.Section("CHAN")
	e.U8(uint8(st.Variant))
	e.U8(uint8(st.RunState))
	e.Bool(st.Enabled)
	e.Bool(st.DACOn)
	e.U8(st.Volume)
	e.U8(st.VolumeLoad)
	e.I32(st.EnvPeriod)
	e.U8(st.EnvLoad)
	e.U8(uint8(st.EnvDirection))
	e.Bool(st.EnvEnabled)
	e.U16(st.Frequency)
	e.I32(st.Period)
	e.U32(st.DutyIndex)
	e.U8(st.Output)
	e.U8(st.DutyPattern)
	e.Bytes(st.SampleTable)
	e.Bool(st.BankIndex)
	e.Bool(st.DualBank)
	e.U16(st.LFSR)
	e.Bool(st.WidthMode)
	e.U8(st.ClockShift)
	e.U8(st.DivisorIndex)
}

// DecodeChannelState reads a snapshot written by ChannelState.Encode.
func DecodeChannelState(d *savestate.Decoder) ChannelState {
	d.Section("CHAN")
	st := ChannelState{
		Variant:      Variant(d.U8()),
		RunState:     RunState(d.U8()),
		Enabled:      d.Bool(),
		DACOn:        d.Bool(),
		Volume:       d.U8(),
		VolumeLoad:   d.U8(),
		EnvPeriod:    d.I32(),
		EnvLoad:      d.U8(),
		EnvDirection: Direction(d.U8()),
		EnvEnabled:   d.Bool(),
		Frequency:    d.U16(),
		Period:       d.I32(),
		DutyIndex:    d.U32(),
		Output:       d.U8(),
		DutyPattern:  d.U8(),
		SampleTable:  d.Bytes(),
		BankIndex:    d.Bool(),
		DualBank:     d.Bool(),
		LFSR:         d.U16(),
		WidthMode:    d.Bool(),
		ClockShift:   d.U8(),
		DivisorIndex: d.U8(),
	}
	if len(st.SampleTable) == 0 {
		st.SampleTable = nil
	}
	return st
}
