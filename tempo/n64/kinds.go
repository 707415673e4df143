package n64

// Kind enumerates the scheduled events of the 64-bit console, in tie-break
// order.
type Kind uint8

const (
	VI Kind = iota
	AI
	PI
	SI
	Compare

	numKinds = int(Compare) + 1
)

func (k Kind) String() string {
	switch k {
	case VI:
		return "VI"
	case AI:
		return "AI"
	case PI:
		return "PI"
	case SI:
		return "SI"
	case Compare:
		return "Compare"
	}
	return "Unknown"
}
