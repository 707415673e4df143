package n64

import (
	"fmt"

	"github.com/valerio/go-tempo/tempo/events"
	"github.com/valerio/go-tempo/tempo/savestate"
)

const stateVersion = 1

const miBits = 0x3F

type snapshot struct {
	sched events.State[Kind]
	rdram []byte
	pif   []byte

	mi  mi
	vi  vi
	ai  ai
	pi  pi
	si  si
	cp0 cp0

	frames uint64
}

// Save serializes the session, RDRAM included. ROM is not part of the
// state.
func (s *Session) Save() ([]byte, error) {
	e := savestate.NewEncoder()
	e.Section("N64T")
	e.U8(stateVersion)
	s.sched.State().Encode(e)

	e.Section("RDRM")
	e.Bytes(s.rdram)
	e.Bytes(s.pif[:])

	e.Section("MIVI")
	e.U32(s.mi.mode)
	e.U32(s.mi.intr)
	e.U32(s.mi.mask)
	e.U32(s.vi.control)
	e.U32(s.vi.origin)
	e.U32(s.vi.width)
	e.U32(s.vi.vIntr)

	e.Section("AI  ")
	e.U32(s.ai.dramAddr)
	e.U32(s.ai.control)
	e.U32(s.ai.dacRate)
	e.U32(s.ai.bitRate)
	e.U8(uint8(s.ai.queued))
	for _, b := range s.ai.queue {
		e.U32(b.addr)
		e.U32(b.length)
		e.I64(b.duration)
	}

	e.Section("PISI")
	e.U32(s.pi.dramAddr)
	e.U32(s.pi.cartAddr)
	e.U32(s.pi.length)
	e.Bool(s.pi.toRDRAM)
	e.Bool(s.pi.busy)
	e.U32(s.si.dramAddr)
	e.Bool(s.si.toPIF)
	e.Bool(s.si.busy)

	e.Section("CP0 ")
	e.U32(s.cp0.count)
	e.I64(s.cp0.start)
	e.U32(s.cp0.compare)
	e.Bool(s.cp0.pending)

	e.Section("MISC")
	e.I64(int64(s.frames))
	return e.Data(), nil
}

// Load restores a state produced by Save, leaving the session untouched on
// failure.
func (s *Session) Load(data []byte) error {
	st, err := decodeSnapshot(data)
	if err == nil {
		err = s.validate(st)
	}
	if err != nil {
		return fmt.Errorf("n64: load state: %w", err)
	}

	_ = s.sched.Restore(st.sched)
	copy(s.rdram, st.rdram)
	copy(s.pif[:], st.pif)
	s.mi, s.vi = st.mi, st.vi
	s.ai, s.pi, s.si = st.ai, st.pi, st.si
	s.cp0 = st.cp0
	s.frames = st.frames
	s.out.Reset()
	return nil
}

func decodeSnapshot(data []byte) (snapshot, error) {
	var st snapshot
	d := savestate.NewDecoder(data)
	d.Section("N64T")
	if v := d.U8(); d.Err() == nil && v != stateVersion {
		d.Fail(savestate.Corruptf("state version %d, want %d", v, stateVersion))
	}
	st.sched = events.DecodeState[Kind](d)

	d.Section("RDRM")
	st.rdram = d.Bytes()
	st.pif = d.Bytes()

	d.Section("MIVI")
	st.mi.mode = d.U32()
	st.mi.intr = d.U32()
	st.mi.mask = d.U32()
	st.vi.control = d.U32()
	st.vi.origin = d.U32()
	st.vi.width = d.U32()
	st.vi.vIntr = d.U32()

	d.Section("AI  ")
	st.ai.dramAddr = d.U32()
	st.ai.control = d.U32()
	st.ai.dacRate = d.U32()
	st.ai.bitRate = d.U32()
	st.ai.queued = int(d.U8())
	for i := range st.ai.queue {
		b := &st.ai.queue[i]
		b.addr = d.U32()
		b.length = d.U32()
		b.duration = d.I64()
	}

	d.Section("PISI")
	st.pi.dramAddr = d.U32()
	st.pi.cartAddr = d.U32()
	st.pi.length = d.U32()
	st.pi.toRDRAM = d.Bool()
	st.pi.busy = d.Bool()
	st.si.dramAddr = d.U32()
	st.si.toPIF = d.Bool()
	st.si.busy = d.Bool()

	d.Section("CP0 ")
	st.cp0.count = d.U32()
	st.cp0.start = d.I64()
	st.cp0.compare = d.U32()
	st.cp0.pending = d.Bool()

	d.Section("MISC")
	st.frames = uint64(d.I64())
	return st, d.Finish()
}

func (s *Session) validate(st snapshot) error {
	if err := st.sched.Validate(s.sched.Kinds()); err != nil {
		return err
	}
	if len(st.rdram) != len(s.rdram) || len(st.pif) != pifRAMSize {
		return savestate.Corruptf("RDRAM %d bytes PIF %d bytes, want %d and %d",
			len(st.rdram), len(st.pif), len(s.rdram), pifRAMSize)
	}
	if st.mi.intr&^miBits != 0 || st.mi.mask&^miBits != 0 {
		return savestate.Corruptf("MI_INTR 0x%X MI_MASK 0x%X", st.mi.intr, st.mi.mask)
	}

	pending := func(k Kind) bool {
		return st.sched.Events[k].Active
	}
	if st.ai.queued < 0 || st.ai.queued > aiQueueDepth || st.ai.dacRate > 0x3FFF {
		return savestate.Corruptf("AI queue depth %d dac rate %d", st.ai.queued, st.ai.dacRate)
	}
	for i := 0; i < st.ai.queued; i++ {
		if st.ai.queue[i].duration <= 0 {
			return savestate.Corruptf("AI buffer %d duration %d", i, st.ai.queue[i].duration)
		}
	}
	if (st.ai.queued > 0) != pending(AI) {
		return savestate.Corruptf("AI queue depth %d disagrees with scheduled event", st.ai.queued)
	}
	if st.pi.busy != pending(PI) || st.si.busy != pending(SI) {
		return savestate.Corruptf("DMA busy flags disagree with scheduled events")
	}
	if st.cp0.start < 0 || st.cp0.start > st.sched.Now {
		return savestate.Corruptf("Count anchored at %d, clock is %d", st.cp0.start, st.sched.Now)
	}
	return nil
}
