package gb

// Kind enumerates the scheduled events of the handheld. The order is the
// tie-break order when two events share a due time.
type Kind uint8

const (
	FrameSequencer Kind = iota
	Channel1
	Channel2
	Channel3
	Channel4
	Sample
	Timer
	TimerReload
	Serial
	VBlank

	numKinds = int(VBlank) + 1
)

var kindNames = [numKinds]string{
	"FrameSequencer", "Channel1", "Channel2", "Channel3", "Channel4",
	"Sample", "Timer", "TimerReload", "Serial", "VBlank",
}

func (k Kind) String() string {
	if int(k) < numKinds {
		return kindNames[k]
	}
	return "Unknown"
}

// channelKind maps a channel index (0-3) to its period event.
func channelKind(i int) Kind {
	return Channel1 + Kind(i)
}
