// Package audio implements the programmable sound generator voices shared by
// the handheld platforms: two square channels, a wave channel and a noise
// channel. Every voice has the same base record (enable flags, envelope,
// frequency timer, phase) plus variant state selected by its Variant.
//
// A channel does not keep time by itself. The owning platform arms a
// scheduler event for the moment the frequency timer expires and calls
// TickPeriod when it fires; register writes go through Write.
package audio

import "fmt"

// Variant selects the waveform generator of a channel.
type Variant uint8

const (
	Square Variant = iota
	Wave
	Noise
)

func (v Variant) String() string {
	switch v {
	case Square:
		return "square"
	case Wave:
		return "wave"
	case Noise:
		return "noise"
	}
	return fmt.Sprintf("Variant(%d)", uint8(v))
}

// RunState is the lifecycle of a channel.
type RunState uint8

const (
	// Uninitialized channels have not seen a register write since reset.
	Uninitialized RunState = iota
	// Idle channels are configured but were never triggered.
	Idle
	// Triggered channels are producing output.
	Triggered
	// Disabled channels were silenced by a DAC-off write or by reaching a
	// state where they can no longer produce sound.
	Disabled
)

func (s RunState) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Idle:
		return "idle"
	case Triggered:
		return "triggered"
	case Disabled:
		return "disabled"
	}
	return fmt.Sprintf("RunState(%d)", uint8(s))
}

// Direction of the volume envelope.
type Direction uint8

const (
	Down Direction = iota
	Up
)

// Channel is one sound generator voice.
type Channel struct {
	state   RunState
	enabled bool
	dacOn   bool

	// envelope
	volume       uint8
	volumeLoad   uint8
	envPeriod    int32
	envLoad      uint8
	envDirection Direction
	envEnabled   bool

	// frequency timer and phase
	frequency uint16
	period    int32
	dutyIndex uint32

	output uint8

	model Model
	voice voice
}

// NewSquare creates a square (pulse) channel.
func NewSquare(model Model) *Channel {
	return &Channel{model: model, voice: &squareVoice{}}
}

// NewWave creates a wave channel with model.WaveBanks banks of pattern RAM.
func NewWave(model Model) *Channel {
	banks := model.WaveBanks
	if banks < 1 || banks > 2 {
		panic(fmt.Sprintf("audio: unsupported wave bank count %d", banks))
	}
	return &Channel{model: model, voice: &waveVoice{table: make([]byte, banks*waveBankSize)}}
}

// NewNoise creates a noise channel.
func NewNoise(model Model) *Channel {
	return &Channel{model: model, voice: &noiseVoice{}}
}

func (c *Channel) Variant() Variant  { return c.voice.variant() }
func (c *Channel) State() RunState   { return c.state }
func (c *Channel) Enabled() bool     { return c.enabled }
func (c *Channel) DACOn() bool       { return c.dacOn }
func (c *Channel) Volume() uint8     { return c.volume }
func (c *Channel) Frequency() uint16 { return c.frequency }
func (c *Channel) DutyIndex() uint32 { return c.dutyIndex }

// Output is the current 4-bit sample, 0 when the channel is muted.
func (c *Channel) Output() uint8 { return c.output }

// Running reports whether the frequency timer is live and the owner should
// keep its period event armed.
func (c *Channel) Running() bool {
	return c.state == Triggered
}

// Remaining is the number of CPU cycles until the frequency timer expires.
func (c *Channel) Remaining() int32 {
	return c.period
}

// hasEnvelope reports whether the variant is driven by the volume envelope.
// The wave channel uses a fixed output level instead.
func (c *Channel) hasEnvelope() bool {
	return c.voice.variant() != Wave
}

// TickPeriod runs the frequency timer for elapsed CPU cycles. Each time the
// timer crosses zero it is reloaded and the phase advances. It reports
// whether at least one reload happened.
func (c *Channel) TickPeriod(elapsed int32) bool {
	if c.state != Triggered {
		return false
	}

	reloaded := false
	c.period -= elapsed
	for c.period <= 0 {
		c.period += c.voice.reload(c)
		c.voice.advance(c)
		reloaded = true
	}

	if c.silent() {
		c.disable()
	}
	c.output = c.sample()
	return reloaded
}

// silent reports whether the channel can no longer produce sound: its DAC is
// off, or its volume is zero with no envelope able to raise it.
func (c *Channel) silent() bool {
	if !c.dacOn {
		return true
	}
	if !c.hasEnvelope() || c.volume > 0 {
		return false
	}
	return !(c.envEnabled && c.envDirection == Up && c.envLoad != 0)
}

// Trigger restarts the channel: phase and LFSR are reset, the envelope is
// reloaded from its shadow values and the frequency timer restarts. A
// channel whose DAC is off stays disabled.
func (c *Channel) Trigger() {
	c.dutyIndex = 0
	c.voice.trigger(c)

	if c.hasEnvelope() {
		c.volume = c.volumeLoad
		c.envPeriod = envelopeReload(c.envLoad)
		c.envEnabled = true
	}
	c.period = c.voice.reload(c)

	if c.dacOn {
		c.enabled = true
		c.state = Triggered
	} else {
		c.disable()
	}
	c.output = c.sample()
}

func (c *Channel) disable() {
	c.enabled = false
	c.state = Disabled
	c.output = 0
}

// sample recomputes the output from the current phase.
func (c *Channel) sample() uint8 {
	if !c.enabled || !c.dacOn {
		return 0
	}
	return c.voice.sample(c)
}

// PowerOff clears every control field, as the master power switch does.
// Wave pattern RAM survives.
func (c *Channel) PowerOff() {
	*c = Channel{model: c.model, voice: c.voice}
	c.voice.clear(false)
}

// Reset returns the channel to its power-on state, wave RAM included.
func (c *Channel) Reset() {
	*c = Channel{model: c.model, voice: c.voice}
	c.voice.clear(true)
}

// markConfigured moves an untouched channel to Idle on its first register
// write.
func (c *Channel) markConfigured() {
	if c.state == Uninitialized {
		c.state = Idle
	}
}
