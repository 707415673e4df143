package gba

import "github.com/valerio/go-tempo/tempo/bit"

// prescalers maps TMxCNT_H bits 1-0 to CPU cycles per count.
var prescalers = [4]int64{1, 64, 256, 1024}

const (
	timerCountUpBit  = 2
	timerIRQBit      = 6
	timerEnableBit   = 7
	timerControlMask = 0xC7
	// timerModeMask covers the bits that move the overflow point.
	timerModeMask = 0x87
)

// timer is one of the four 16-bit counters. A free-running timer is not
// ticked: its counter is derived from the cycle it was last anchored at,
// and a Timer event is armed for the overflow. A count-up timer advances
// only when the timer below it overflows.
type timer struct {
	reload  uint16
	control uint8
	// counter is the value at cycle start.
	counter uint16
	start   int64
}

func (t *timer) enabled() bool    { return bit.IsSet(timerEnableBit, t.control) }
func (t *timer) countUp() bool    { return bit.IsSet(timerCountUpBit, t.control) }
func (t *timer) irq() bool        { return bit.IsSet(timerIRQBit, t.control) }
func (t *timer) prescaler() int64 { return prescalers[t.control&0x03] }

// freeRunning reports whether the counter follows the clock.
func (t *timer) freeRunning(index int) bool {
	return t.enabled() && (index == 0 || !t.countUp())
}

func (t *timer) value(index int, now int64) uint16 {
	if !t.freeRunning(index) {
		return t.counter
	}
	return t.counter + uint16((now-t.start)/t.prescaler())
}

// untilOverflow is the number of cycles from the anchor to the next wrap.
func (t *timer) untilOverflow() int64 {
	return (0x10000 - int64(t.counter)) * t.prescaler()
}

func (s *Session) readTimer(index int, high bool, control bool) uint8 {
	t := &s.timers[index]
	var v uint16
	if control {
		v = uint16(t.control)
	} else {
		v = t.value(index, s.sched.Now())
	}
	if high {
		return bit.High(v)
	}
	return bit.Low(v)
}

func (s *Session) writeTimerReload(index int, high bool, value uint8) {
	t := &s.timers[index]
	if high {
		t.reload = bit.Combine(value, bit.Low(t.reload))
	} else {
		t.reload = bit.Combine(bit.High(t.reload), value)
	}
}

func (s *Session) writeTimerControl(index int, value uint8) {
	t := &s.timers[index]
	value &= timerControlMask
	if (t.control^value)&timerModeMask == 0 {
		// only the IRQ bit changed, the overflow stays where it was
		t.control = value
		return
	}

	now := s.sched.Now()
	wasRunning := t.freeRunning(index)
	wasEnabled := t.enabled()
	oldPrescaler := t.prescaler()
	if wasRunning {
		// anchor the counter at its last tick so the partial count survives
		elapsed := now - t.start
		t.counter += uint16(elapsed / oldPrescaler)
		t.start = now - elapsed%oldPrescaler
	}

	t.control = value
	switch {
	case !wasEnabled && t.enabled():
		t.counter = t.reload
		t.start = now
	case !wasRunning || t.prescaler() != oldPrescaler:
		t.start = now
	}
	s.armTimer(index)
}

// armTimer re-arms the overflow event from the timer's anchor, or cancels it
// while the timer does not follow the clock.
func (s *Session) armTimer(index int) {
	t := &s.timers[index]
	s.sched.Cancel(timerKind(index))
	if !t.freeRunning(index) {
		return
	}
	s.sched.Insert(timerKind(index), t.start+t.untilOverflow()-s.sched.Now(), true)
}

// overflowTimer services a Timer event: reload, interrupt, and cascade into
// the next timer.
func (s *Session) overflowTimer(index int) {
	t := &s.timers[index]
	t.counter = t.reload
	t.start = s.sched.Now()
	s.sched.Insert(timerKind(index), t.untilOverflow(), false)
	s.timerWrapped(index)
}

func (s *Session) timerWrapped(index int) {
	if s.timers[index].irq() {
		s.requestInterrupt(IRQTimer0 << index)
	}
	if index == len(s.timers)-1 {
		return
	}
	next := &s.timers[index+1]
	if !next.enabled() || !next.countUp() {
		return
	}
	next.counter++
	if next.counter == 0 {
		next.counter = next.reload
		s.timerWrapped(index + 1)
	}
}
