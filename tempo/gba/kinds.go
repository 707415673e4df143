package gba

// Kind enumerates the scheduled events of the 32-bit handheld, in
// tie-break order.
type Kind uint8

const (
	FrameSequencer Kind = iota
	Channel1
	Channel2
	Channel3
	Channel4
	Sample
	Timer0
	Timer1
	Timer2
	Timer3
	HBlank
	VBlank

	numKinds = int(VBlank) + 1
)

var kindNames = [numKinds]string{
	"FrameSequencer", "Channel1", "Channel2", "Channel3", "Channel4", "Sample",
	"Timer0", "Timer1", "Timer2", "Timer3", "HBlank", "VBlank",
}

func (k Kind) String() string {
	if int(k) < numKinds {
		return kindNames[k]
	}
	return "Unknown"
}

func channelKind(i int) Kind { return Channel1 + Kind(i) }

func timerKind(i int) Kind { return Timer0 + Kind(i) }
