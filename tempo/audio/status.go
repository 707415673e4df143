package audio

import (
	"fmt"
	"math"
)

// Status summarises a channel for logs and diagnostics.
type Status struct {
	Variant   Variant
	State     RunState
	Enabled   bool
	Frequency float64 // Hz of one full waveform cycle (noise: LFSR clock)
	Volume    uint8
	DutyCycle uint8
	Note      string
}

func (s Status) String() string {
	return fmt.Sprintf("%-6s %-13s vol=%2d freq=%8.1fHz note=%s", s.Variant, s.State, s.Volume, s.Frequency, s.Note)
}

// Status reports the channel at the given CPU clock rate.
func (c *Channel) Status(clockHz float64) Status {
	st := Status{
		Variant: c.voice.variant(),
		State:   c.state,
		Enabled: c.enabled,
		Volume:  c.volume,
	}

	reload := float64(c.voice.reload(c))
	switch v := c.voice.(type) {
	case *squareVoice:
		st.DutyCycle = v.dutyPattern
		st.Frequency = clockHz / (reload * squarePhases)
		st.Note = frequencyToNote(st.Frequency)
	case *waveVoice:
		st.Frequency = clockHz / (reload * wavePhases)
		st.Note = frequencyToNote(st.Frequency)
	case *noiseVoice:
		st.Frequency = clockHz / reload
		st.Note = "Noise"
	}
	return st
}

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// frequencyToNote returns the nearest equal-tempered note, A4 = 440 Hz.
func frequencyToNote(freq float64) string {
	if freq < 20 || freq > 20000 {
		return "--"
	}

	midi := int(math.Round(12*math.Log2(freq/440) + 69))
	octave := midi/12 - 1
	if octave < 0 || octave > 9 {
		return "--"
	}
	return fmt.Sprintf("%s%d", noteNames[midi%12], octave)
}
