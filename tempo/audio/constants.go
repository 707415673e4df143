package audio

// Reference: https://gbdev.io/pandocs/Audio_details.html
const (
	// frequencyMax is the largest 11-bit period value.
	frequencyMax = 0x7FF
	// frequencyToTimerOffset is subtracted from the period register to get
	// the number of base cycles between phase steps.
	frequencyToTimerOffset = 2048

	// squarePeriodScale and wavePeriodScale are the base cycles per phase
	// step of the tone and wave generators.
	squarePeriodScale = 4
	wavePeriodScale   = 2

	squarePhases = 8
	wavePhases   = 32

	// waveBankSize is one bank of wave pattern RAM (32 4-bit samples).
	waveBankSize = 16

	// lfsrInitialValue is loaded into the noise LFSR on trigger.
	lfsrInitialValue = 0x7FFF
	lfsrMask         = 0x7FFF

	// envelopeZeroPeriod replaces a programmed envelope period of 0.
	envelopeZeroPeriod = 8

	volumeMax = 15
)

// dutyPatterns holds the output level of each of the 8 phase steps for the
// four selectable duty cycles (12.5%, 25%, 50%, 75%).
var dutyPatterns = [4][squarePhases]uint8{
	{0, 0, 0, 0, 0, 0, 0, 1},
	{1, 0, 0, 0, 0, 0, 0, 1},
	{1, 0, 0, 0, 0, 1, 1, 1},
	{0, 1, 1, 1, 1, 1, 1, 0},
}

// noiseDivisors maps the NR43 divisor code to base cycles.
var noiseDivisors = [8]int32{8, 16, 32, 48, 64, 80, 96, 112}

// Model carries the per-platform constants of the sound generator. They are
// rebuilt from the platform at construction and never persisted.
type Model struct {
	// PeriodFactor is the number of CPU cycles per sound generator base cycle.
	PeriodFactor int32
	// WaveBanks is the number of wave pattern RAM banks.
	WaveBanks int
}

var (
	// ModelGB is the 8-bit handheld: the PSG runs on the 4.19 MHz CPU clock.
	ModelGB = Model{PeriodFactor: 1, WaveBanks: 1}
	// ModelGBA is its 32-bit successor: 16.78 MHz CPU clock, two wave banks.
	ModelGBA = Model{PeriodFactor: 4, WaveBanks: 2}
)
