package output

import (
	"fmt"

	"github.com/valerio/go-tempo/tempo/savestate"
)

// Decimator spaces output samples evenly over a CPU clock that is not an
// integer multiple of the sample rate. Each call to Next returns the cycle
// delay to the following sample, carrying the remainder so the long-run
// rate is exact.
type Decimator struct {
	clockHz    int64
	sampleRate int64
	acc        int64
}

func NewDecimator(clockHz, sampleRate int64) *Decimator {
	if clockHz <= 0 || sampleRate <= 0 || sampleRate > clockHz {
		panic(fmt.Sprintf("output: cannot decimate %d Hz to %d Hz", clockHz, sampleRate))
	}
	return &Decimator{clockHz: clockHz, sampleRate: sampleRate}
}

// Next returns the number of CPU cycles until the next sample.
func (d *Decimator) Next() int64 {
	d.acc += d.clockHz
	delay := d.acc / d.sampleRate
	d.acc -= delay * d.sampleRate
	return delay
}

// SampleRate returns the output rate in Hz.
func (d *Decimator) SampleRate() int64 {
	return d.sampleRate
}

// Remainder returns the carried fraction, in units of 1/sampleRate cycles.
func (d *Decimator) Remainder() int64 {
	return d.acc
}

// SetRemainder restores a carried fraction captured with Remainder.
func (d *Decimator) SetRemainder(r int64) error {
	if r < 0 || r >= d.sampleRate {
		return savestate.Corruptf("decimator remainder %d outside [0,%d)", r, d.sampleRate)
	}
	d.acc = r
	return nil
}
