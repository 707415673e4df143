package gb

import (
	"github.com/valerio/go-tempo/tempo/addr"
	"github.com/valerio/go-tempo/tempo/bit"
)

// timerPeriods maps TAC input clock select (bits 1-0) to the number of CPU
// cycles per TIMA increment.
//
//	00 -> 1024 (4096 Hz)
//	01 -> 16   (262144 Hz)
//	10 -> 64   (65536 Hz)
//	11 -> 256  (16384 Hz)
var timerPeriods = [4]int64{1024, 16, 64, 256}

const (
	tacEnableBit  = 2
	tacUnusedBits = 0xF8
	// timaReloadDelay is the number of cycles TIMA reads 0 after an
	// overflow before TMA is loaded and the interrupt requested.
	timaReloadDelay = 4
)

// timer is the DIV/TIMA/TMA/TAC block, driven by Timer and TimerReload
// events instead of per-cycle ticks.
type timer struct {
	tima byte
	tma  byte
	tac  byte

	// divCounter is the internal 16-bit divider at cycle divBase. DIV is
	// its upper byte.
	divCounter uint16
	divBase    int64
}

func (t *timer) enabled() bool {
	return bit.IsSet(tacEnableBit, t.tac)
}

func (t *timer) period() int64 {
	return timerPeriods[t.tac&0x03]
}

// counter returns the internal divider at cycle now. The divider follows
// the CPU clock, so it runs twice as fast in double speed.
func (t *timer) counter(now int64, speed int) uint16 {
	return t.divCounter + uint16((now-t.divBase)*int64(speed))
}

// rebase folds the elapsed cycles into divCounter, ahead of a speed switch.
func (t *timer) rebase(now int64, speed int) {
	t.divCounter = t.counter(now, speed)
	t.divBase = now
}

func (s *Session) readTimer(address uint16) byte {
	t := &s.timer
	switch address {
	case addr.DIV:
		return byte(t.counter(s.sched.Now(), s.sched.Speed()) >> 8)
	case addr.TIMA:
		return t.tima
	case addr.TMA:
		return t.tma
	case addr.TAC:
		return t.tac | tacUnusedBits
	}
	return 0xFF
}

func (s *Session) writeTimer(address uint16, value byte) {
	t := &s.timer
	switch address {
	case addr.DIV:
		// DIV writes reset the divider, restarting the TIMA phase
		t.divCounter = 0
		t.divBase = s.sched.Now()
		s.armTimer()
	case addr.TIMA:
		// a write during the reload window cancels the TMA load
		if _, pending := s.sched.Pending(TimerReload); pending {
			s.sched.Cancel(TimerReload)
		}
		t.tima = value
	case addr.TMA:
		t.tma = value
	case addr.TAC:
		old := t.tac
		t.tac = value & 0x07
		if old&0x07 != t.tac {
			s.armTimer()
		}
	}
}

// armTimer restarts the TIMA period from now, or stops it when TAC
// disables the timer.
func (s *Session) armTimer() {
	s.sched.Cancel(Timer)
	if !s.timer.enabled() {
		return
	}
	s.sched.Insert(Timer, s.timer.period(), true)
}

// tickTIMA services a Timer event.
func (s *Session) tickTIMA() {
	t := &s.timer
	if t.tima == 0xFF {
		t.tima = 0
		s.sched.Insert(TimerReload, timaReloadDelay, true)
		s.logger.Debug("TIMA overflow", "cycle", s.sched.Now(), "tma", t.tma)
	} else {
		t.tima++
	}
	s.sched.Insert(Timer, t.period(), false)
}

// reloadTIMA services a TimerReload event.
func (s *Session) reloadTIMA() {
	s.timer.tima = s.timer.tma
	s.requestInterrupt(addr.TimerInterrupt)
}

