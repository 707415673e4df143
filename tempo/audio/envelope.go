package audio

// envelopeReload returns the envelope timer reload value. A programmed period
// of 0 reloads as 8.
func envelopeReload(load uint8) int32 {
	if load == 0 {
		return envelopeZeroPeriod
	}
	return int32(load)
}

// ClockEnvelope steps the volume envelope timer once. When the timer runs
// out the volume moves one step in the envelope direction; a step that would
// leave 0..15 stops the envelope instead. A programmed period of 0 keeps the
// timer running on its substitute of 8 but never changes the volume. That is
// intentional: the substitute period only keeps the divider cycling, and
// hardware needs a nonzero programmed period before the volume steps.
func (c *Channel) ClockEnvelope() {
	if !c.envEnabled || !c.hasEnvelope() {
		return
	}

	c.envPeriod--
	if c.envPeriod > 0 {
		return
	}
	c.envPeriod = envelopeReload(c.envLoad)

	if c.envLoad == 0 {
		return
	}

	next := int(c.volume) - 1
	if c.envDirection == Up {
		next = int(c.volume) + 1
	}
	if next < 0 || next > volumeMax {
		c.envEnabled = false
		return
	}

	c.volume = uint8(next)
	c.output = c.sample()
}

// EnvelopeActive reports whether the envelope is still stepping.
func (c *Channel) EnvelopeActive() bool {
	return c.envEnabled
}
