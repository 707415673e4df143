package events

import (
	"github.com/valerio/go-tempo/tempo/savestate"
)

// State is a plain-value snapshot of a scheduler.
type State[K Kind] struct {
	Now    int64
	Speed  uint8
	Events []Event[K]
}

// State captures the clock, speed factor and every declared slot.
func (s *Scheduler[K]) State() State[K] {
	st := State[K]{
		Now:    s.now,
		Speed:  uint8(s.speed),
		Events: make([]Event[K], s.kinds),
	}
	copy(st.Events, s.table[:s.kinds])
	return st
}

// Validate checks st against a scheduler declaring kinds event kinds.
func (st State[K]) Validate(kinds int) error {
	if st.Speed != 1 && st.Speed != 2 {
		return savestate.Corruptf("scheduler speed factor %d", st.Speed)
	}
	if st.Now < 0 {
		return savestate.Corruptf("scheduler clock %d", st.Now)
	}
	if len(st.Events) != kinds {
		return savestate.Corruptf("scheduler has %d slots, want %d", len(st.Events), kinds)
	}
	for i, ev := range st.Events {
		if int(ev.Kind) != i {
			return savestate.Corruptf("scheduler slot %d holds kind %d", i, ev.Kind)
		}
	}
	return nil
}

// Restore replaces the scheduler state with st. Nothing is modified when st
// fails validation.
func (s *Scheduler[K]) Restore(st State[K]) error {
	if err := st.Validate(s.kinds); err != nil {
		return err
	}
	s.now = st.Now
	s.speed = int64(st.Speed)
	copy(s.table[:s.kinds], st.Events)
	return nil
}

// Encode appends st to e.
func (st State[K]) Encode(e *savestate.Encoder) {
	e.Section("SCHD")
	e.I64(st.Now)
	e.U8(st.Speed)
	e.U8(uint8(len(st.Events)))
	for _, ev := range st.Events {
		e.U8(uint8(ev.Kind))
		e.I64(ev.Due)
		e.Bool(ev.Active)
	}
}

// DecodeState reads a scheduler snapshot written by State.Encode. Range
// checks are left to Validate.
func DecodeState[K Kind](d *savestate.Decoder) State[K] {
	d.Section("SCHD")
	st := State[K]{
		Now:   d.I64(),
		Speed: d.U8(),
	}
	n := int(d.U8())
	if n > MaxKinds {
		d.Fail(savestate.Corruptf("scheduler declares %d slots", n))
		return st
	}
	st.Events = make([]Event[K], n)
	for i := range st.Events {
		st.Events[i] = Event[K]{
			Kind:   K(d.U8()),
			Due:    d.I64(),
			Active: d.Bool(),
		}
	}
	return st
}
