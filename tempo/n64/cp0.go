package n64

// countWrapCycles is a full turn of the 32-bit Count register, which
// advances every other CPU cycle.
const countWrapCycles = 2 << 32

// cp0 holds the Count/Compare pair. Count is derived from the cycle it was
// last written at.
type cp0 struct {
	count   uint32
	start   int64
	compare uint32
	// pending is the timer interrupt (IP7).
	pending bool
}

// Count returns the CP0 Count register.
func (s *Session) Count() uint32 {
	return s.cp0.count + uint32((s.sched.Now()-s.cp0.start)/2)
}

// SetCount writes the CP0 Count register.
func (s *Session) SetCount(v uint32) {
	s.cp0.count = v
	s.cp0.start = s.sched.Now()
	s.armCompare()
}

// CompareValue returns the CP0 Compare register.
func (s *Session) CompareValue() uint32 {
	return s.cp0.compare
}

// SetCompare writes the CP0 Compare register, acknowledging the timer
// interrupt.
func (s *Session) SetCompare(v uint32) {
	s.cp0.compare = v
	s.cp0.pending = false
	s.armCompare()
}

// TimerInterrupt reports whether Count has reached Compare since Compare
// was last written.
func (s *Session) TimerInterrupt() bool {
	return s.cp0.pending
}

// armCompare schedules the next cycle at which Count equals Compare.
func (s *Session) armCompare() {
	counts := int64(s.cp0.compare - s.Count())
	if counts == 0 {
		counts = 1 << 32
	}
	phase := (s.sched.Now() - s.cp0.start) % 2
	s.sched.Cancel(Compare)
	s.sched.Insert(Compare, counts*2-phase, true)
}
