package gb

import (
	"github.com/valerio/go-tempo/tempo/addr"
	"github.com/valerio/go-tempo/tempo/bit"
)

// serialTransferCycles is the duration of one byte transfer on the
// internal clock (8 bits at 8192 Hz).
const serialTransferCycles = 4096

const (
	scStartBit = 7
	scClockBit = 0
	// scUnusedBits read back as 1 on the monochrome model.
	scUnusedBits = 0x7E
)

// logSink is a serial peer that logs outgoing bytes as text, one line per
// newline or NUL. Handy for test roms that print to serial.
type logSink struct {
	sb, sc byte
	// defaultRX is shifted in when no peer is connected.
	defaultRX byte
	line      []byte
}

func (s *Session) readSerial(address uint16) byte {
	switch address {
	case addr.SB:
		return s.serial.sb
	case addr.SC:
		return s.serial.sc | scUnusedBits
	}
	return 0xFF
}

func (s *Session) writeSerial(address uint16, value byte) {
	switch address {
	case addr.SB:
		s.serial.sb = value
	case addr.SC:
		s.serial.sc = value & 0x81
		s.maybeStartTransfer()
	}
}

func (s *Session) maybeStartTransfer() {
	if _, active := s.sched.Pending(Serial); active {
		return
	}
	// a transfer starts when bit 7 (start) and bit 0 (internal clock) are set
	if !bit.IsSet(scStartBit, s.serial.sc) || !bit.IsSet(scClockBit, s.serial.sc) {
		return
	}

	b := s.serial.sb
	if b == 0 || b == '\n' || b == '\r' {
		s.flushSerialLine()
	} else {
		s.serial.line = append(s.serial.line, b)
	}

	s.sched.Cancel(Serial)
	s.sched.Insert(Serial, serialTransferCycles, true)
}

func (s *Session) flushSerialLine() {
	if len(s.serial.line) > 0 {
		s.logger.Info("serial", "line", string(s.serial.line))
		s.serial.line = s.serial.line[:0]
	}
}

// completeTransfer services a Serial event.
func (s *Session) completeTransfer() {
	s.serial.sb = s.serial.defaultRX
	s.serial.sc = bit.Clear(scStartBit, s.serial.sc)
	s.requestInterrupt(addr.SerialInterrupt)
}

// SerialOutput returns the bytes sent since the last completed line.
func (s *Session) SerialOutput() string {
	return string(s.serial.line)
}
