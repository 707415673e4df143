// Package events implements the timing scheduler every emulated platform is
// built around. A platform declares a small closed set of event kinds; the
// scheduler keeps exactly one slot per kind, advances a cycle clock as the CPU
// reports consumed cycles, and hands due events to the platform's Dispatcher.
//
// Slots are indexed directly by kind instead of being kept in a heap: a kind
// has at most one outstanding occurrence, and inserting it again replaces the
// pending one (last write wins). When several kinds are due at the same cycle
// they are serviced in enumeration order, so replays from a snapshot are
// deterministic.
package events

import (
	"fmt"
	"strings"
)

// MaxKinds bounds the number of event kinds a platform may declare.
const MaxKinds = 16

// Kind is the per-platform event enumeration. Values must be dense and start
// at zero; the value is the slot index and the tie-break priority.
type Kind interface {
	~uint8
}

// Event is one slot of the scheduler table.
type Event[K Kind] struct {
	Kind   K
	Due    int64 // absolute cycle timestamp
	Active bool
}

// Dispatcher applies the side effect of a due event. late is how many cycles
// past Due the clock was when the event got serviced; it is zero unless the
// event was inserted with a due time already in the past.
//
// Service may Insert or Cancel any kind, but it must not call Advance.
type Dispatcher[K Kind] interface {
	Service(kind K, late int64)
}

// Scheduler owns the event table and the cycle clock of one platform session.
type Scheduler[K Kind] struct {
	now        int64
	table      [MaxKinds]Event[K]
	kinds      int
	speed      int64
	dispatcher Dispatcher[K]

	// servicing is set while a Dispatcher call is on the stack; current is
	// the kind being serviced.
	servicing bool
	current   K
}

// NewScheduler creates a scheduler for a platform declaring kinds event kinds.
func NewScheduler[K Kind](kinds int, dispatcher Dispatcher[K]) *Scheduler[K] {
	if kinds <= 0 || kinds > MaxKinds {
		panic(fmt.Sprintf("events: %d event kinds declared, must be within 1..%d", kinds, MaxKinds))
	}
	if dispatcher == nil {
		panic("events: nil dispatcher")
	}

	s := &Scheduler[K]{
		kinds:      kinds,
		speed:      1,
		dispatcher: dispatcher,
	}
	for i := 0; i < kinds; i++ {
		s.table[i].Kind = K(i)
	}
	return s
}

// Now returns the current cycle timestamp.
func (s *Scheduler[K]) Now() int64 {
	return s.now
}

// Kinds returns the number of declared event kinds.
func (s *Scheduler[K]) Kinds() int {
	return s.kinds
}

// Speed returns the current speed factor, 1 or 2.
func (s *Scheduler[K]) Speed() int {
	return int(s.speed)
}

// SetSpeed switches between normal (1) and double (2) speed. Only events
// inserted afterwards are scaled; pending events keep their due time.
func (s *Scheduler[K]) SetSpeed(factor int) {
	if factor != 1 && factor != 2 {
		panic(fmt.Sprintf("events: invalid speed factor %d", factor))
	}
	s.speed = int64(factor)
}

// scaled converts a delay to clock cycles at the current speed. Double speed
// halves the delay, truncating toward zero.
func (s *Scheduler[K]) scaled(delay int64) int64 {
	return delay / s.speed
}

func (s *Scheduler[K]) slot(kind K) *Event[K] {
	if int(kind) >= s.kinds {
		panic(fmt.Sprintf("events: kind %v outside the %d declared kinds", kind, s.kinds))
	}
	return &s.table[kind]
}

// Insert schedules kind delay cycles after now (fromNow) or after the kind's
// previous due time (!fromNow), replacing any pending occurrence.
//
// Periodic handlers should re-arm with fromNow false so rounding never
// accumulates into drift.
func (s *Scheduler[K]) Insert(kind K, delay int64, fromNow bool) {
	ev := s.slot(kind)

	base := ev.Due
	if fromNow {
		base = s.now
	}
	due := base + s.scaled(delay)

	if assertDuplicates && ev.Active {
		panic(fmt.Sprintf("events: %v inserted while already pending (due %d, new %d)", kind, ev.Due, due))
	}
	if s.servicing && kind == s.current && !ev.Active && due <= ev.Due {
		panic(fmt.Sprintf("events: %v re-armed at %d without moving past %d", kind, due, ev.Due))
	}

	ev.Due = due
	ev.Active = true
}

// Cancel deactivates kind. The previous due time is kept so a later
// Insert(kind, d, false) still counts from it.
func (s *Scheduler[K]) Cancel(kind K) {
	s.slot(kind).Active = false
}

// Pending reports the due time of kind and whether it is active.
func (s *Scheduler[K]) Pending(kind K) (due int64, active bool) {
	ev := s.slot(kind)
	return ev.Due, ev.Active
}

// Until returns the number of cycles until kind is due. It is meaningless
// for an inactive kind.
func (s *Scheduler[K]) Until(kind K) int64 {
	return s.slot(kind).Due - s.now
}

// PeekMin returns the earliest due time among active events.
func (s *Scheduler[K]) PeekMin() (int64, bool) {
	found := false
	var min int64
	for i := 0; i < s.kinds; i++ {
		ev := &s.table[i]
		if ev.Active && (!found || ev.Due < min) {
			min = ev.Due
			found = true
		}
	}
	return min, found
}

// Horizon returns how many cycles the CPU may run before the next event
// must be serviced, or max if nothing is pending or the event is further
// away than max.
func (s *Scheduler[K]) Horizon(max int64) int64 {
	min, ok := s.PeekMin()
	if !ok {
		return max
	}
	if d := min - s.now; d < max {
		if d < 0 {
			return 0
		}
		return d
	}
	return max
}

// next picks the earliest active event due no later than limit. Ties go to
// the lowest kind.
func (s *Scheduler[K]) next(limit int64) (int, bool) {
	best := -1
	for i := 0; i < s.kinds; i++ {
		ev := &s.table[i]
		if !ev.Active || ev.Due > limit {
			continue
		}
		if best < 0 || ev.Due < s.table[best].Due {
			best = i
		}
	}
	return best, best >= 0
}

// Advance moves the clock forward by cycles, servicing every event that
// becomes due along the way. The clock is stepped to each event's due time
// before its Dispatcher call, so handlers observe Now() == Due.
func (s *Scheduler[K]) Advance(cycles int64) {
	if s.servicing {
		panic("events: Advance called while servicing an event")
	}
	if cycles < 0 {
		panic(fmt.Sprintf("events: negative advance %d", cycles))
	}

	target := s.now + cycles

	s.servicing = true
	defer func() { s.servicing = false }()

	for {
		i, ok := s.next(target)
		if !ok {
			break
		}
		ev := &s.table[i]
		if ev.Due > s.now {
			s.now = ev.Due
		}
		ev.Active = false
		s.current = ev.Kind
		s.dispatcher.Service(ev.Kind, s.now-ev.Due)
	}

	s.now = target
}

// SkipToEvent jumps the clock to the earliest pending event and services it,
// returning the number of cycles skipped. It is meant for headless and
// fast-forward runs where nothing paces the clock externally.
func (s *Scheduler[K]) SkipToEvent() int64 {
	min, ok := s.PeekMin()
	if !ok {
		return 0
	}
	delta := min - s.now
	if delta < 0 {
		delta = 0
	}
	s.Advance(delta)
	return delta
}

// Reset clears every slot and rewinds the clock to zero at normal speed.
func (s *Scheduler[K]) Reset() {
	s.now = 0
	s.speed = 1
	for i := 0; i < s.kinds; i++ {
		s.table[i] = Event[K]{Kind: K(i)}
	}
}

func (s *Scheduler[K]) String() string {
	b := strings.Builder{}
	fmt.Fprintf(&b, "now=%d speed=%d\n", s.now, s.speed)
	for i := 0; i < s.kinds; i++ {
		ev := s.table[i]
		if !ev.Active {
			continue
		}
		fmt.Fprintf(&b, "%v -> %d (in %d)\n", ev.Kind, ev.Due, ev.Due-s.now)
	}
	return b.String()
}
