package n64

import "github.com/valerio/go-tempo/tempo/bit"

const (
	piStatusBusy   = 1 << 0
	piStatusIntr   = 1 << 3
	piResetBit     = 0
	piClearIntrBit = 1
	siStatusBusy   = 1 << 0
	siStatusIntr   = 1 << 12
)

// pi is the parallel (cartridge) interface.
type pi struct {
	dramAddr uint32
	cartAddr uint32
	length   uint32
	toRDRAM  bool
	busy     bool
}

// si is the serial interface to PIF RAM.
type si struct {
	dramAddr uint32
	toPIF    bool
	busy     bool
}

func (s *Session) writePI(address uint32, value uint32) {
	p := &s.pi
	switch address {
	case PI_DRAM_ADDR:
		p.dramAddr = value & 0xFFFFFE
	case PI_CART_ADDR:
		p.cartAddr = value &^ 1
	case PI_RD_LEN:
		s.startPIDMA(value, false)
	case PI_WR_LEN:
		s.startPIDMA(value, true)
	case PI_STATUS:
		if bit.IsSet(piResetBit, value) {
			s.sched.Cancel(PI)
			p.busy = false
		}
		if bit.IsSet(piClearIntrBit, value) {
			s.lower(IntrPI)
		}
	}
}

func (s *Session) readPI(address uint32) uint32 {
	p := &s.pi
	switch address {
	case PI_DRAM_ADDR:
		return p.dramAddr
	case PI_CART_ADDR:
		return p.cartAddr
	case PI_RD_LEN, PI_WR_LEN:
		return 0x7F
	case PI_STATUS:
		var v uint32
		if p.busy {
			v |= piStatusBusy
		}
		if s.mi.intr&uint32(IntrPI) != 0 {
			v |= piStatusIntr
		}
		return v
	}
	return 0
}

// startPIDMA begins a transfer of value+1 bytes. It completes after a
// delay proportional to the length.
func (s *Session) startPIDMA(value uint32, toRDRAM bool) {
	p := &s.pi
	if p.busy {
		s.logger.Warn("PI DMA started while busy", "cart", p.cartAddr, "dram", p.dramAddr)
		return
	}
	p.length = value&0xFFFFFF + 1
	p.toRDRAM = toRDRAM
	p.busy = true
	s.sched.Insert(PI, int64(p.length)*piCyclesPerByte, true)
}

// completePIDMA services a PI event.
func (s *Session) completePIDMA() {
	p := &s.pi
	if p.toRDRAM {
		for i := uint32(0); i < p.length; i++ {
			dst := p.dramAddr + i
			if int(dst) >= len(s.rdram) {
				break
			}
			var b byte
			if src := p.cartAddr + i - CartBase; p.cartAddr+i >= CartBase && int(src) < len(s.rom) {
				b = s.rom[src]
			}
			s.rdram[dst] = b
		}
	}
	p.dramAddr += p.length
	p.cartAddr += p.length
	p.busy = false
	s.raise(IntrPI)
}

func (s *Session) writeSI(address uint32, value uint32) {
	switch address {
	case SI_DRAM_ADDR:
		s.si.dramAddr = value & 0xFFFFF8
	case SI_PIF_ADDR_RD64B:
		s.startSIDMA(false)
	case SI_PIF_ADDR_WR64B:
		s.startSIDMA(true)
	case SI_STATUS:
		s.lower(IntrSI)
	}
}

func (s *Session) readSI(address uint32) uint32 {
	switch address {
	case SI_DRAM_ADDR:
		return s.si.dramAddr
	case SI_STATUS:
		var v uint32
		if s.si.busy {
			v |= siStatusBusy
		}
		if s.mi.intr&uint32(IntrSI) != 0 {
			v |= siStatusIntr
		}
		return v
	}
	return 0
}

func (s *Session) startSIDMA(toPIF bool) {
	if s.si.busy {
		s.logger.Warn("SI DMA started while busy", "dram", s.si.dramAddr)
		return
	}
	s.si.toPIF = toPIF
	s.si.busy = true
	s.sched.Insert(SI, siDMACycles, true)
}

// completeSIDMA services an SI event, moving 64 bytes between RDRAM and
// PIF RAM.
func (s *Session) completeSIDMA() {
	start := int(s.si.dramAddr)
	if start+pifRAMSize <= len(s.rdram) {
		ram := s.rdram[start : start+pifRAMSize]
		if s.si.toPIF {
			copy(s.pif[:], ram)
		} else {
			copy(ram, s.pif[:])
		}
	}
	s.si.busy = false
	s.raise(IntrSI)
}

// PIFRAM returns the 64 bytes of PIF RAM.
func (s *Session) PIFRAM() []byte {
	return s.pif[:]
}
