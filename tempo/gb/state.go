package gb

import (
	"fmt"

	"github.com/valerio/go-tempo/tempo/audio"
	"github.com/valerio/go-tempo/tempo/events"
	"github.com/valerio/go-tempo/tempo/output"
	"github.com/valerio/go-tempo/tempo/savestate"
)

const stateVersion = 2

// snapshot is the complete timing state of a session in plain values.
type snapshot struct {
	sched    events.State[Kind]
	channels [4]audio.ChannelState
	lastSync [4]int64

	power bool
	nr10  uint8
	nr50  uint8
	nr51  uint8
	step  uint8

	timer  timer
	sb, sc uint8
	line   []byte

	ifReg, ieReg uint8
	speedArmed   bool
	frames       uint64
	sampleRate   int64
	decimation   int64
}

// Save serializes the session. Pending output frames are not part of the
// state.
func (s *Session) Save() ([]byte, error) {
	e := savestate.NewEncoder()
	e.Section("GBTS")
	e.U8(stateVersion)

	s.sched.State().Encode(e)
	for i, c := range s.apu.channels {
		c.Snapshot().Encode(e)
		e.I64(s.apu.lastSync[i])
	}

	e.Section("APU ")
	e.Bool(s.apu.power)
	e.U8(s.apu.nr10)
	e.U8(s.apu.nr50)
	e.U8(s.apu.nr51)
	e.U8(s.apu.step)

	e.Section("TIMR")
	e.U8(s.timer.tima)
	e.U8(s.timer.tma)
	e.U8(s.timer.tac)
	e.U16(s.timer.divCounter)
	e.I64(s.timer.divBase)

	e.Section("MISC")
	e.U8(s.serial.sb)
	e.U8(s.serial.sc)
	e.Bytes(s.serial.line)
	e.U8(s.ifReg)
	e.U8(s.ieReg)
	e.Bool(s.speedArmed)
	e.I64(int64(s.frames))
	var rate, rem int64
	if s.decimator != nil {
		rate, rem = s.decimator.SampleRate(), s.decimator.Remainder()
	}
	e.I64(rate)
	e.I64(rem)

	return e.Data(), nil
}

// Load restores a state produced by Save. The session is left untouched
// unless every part decodes and validates.
func (s *Session) Load(data []byte) error {
	st, err := decodeSnapshot(data)
	if err != nil {
		return fmt.Errorf("gb: load state: %w", err)
	}
	if err := s.validate(st); err != nil {
		return fmt.Errorf("gb: load state: %w", err)
	}

	// validated above, the restores below cannot fail
	_ = s.sched.Restore(st.sched)
	for i, c := range s.apu.channels {
		_ = c.Restore(st.channels[i])
	}
	s.apu.lastSync = st.lastSync
	s.apu.power = st.power
	s.apu.nr10 = st.nr10
	s.apu.nr50 = st.nr50
	s.apu.nr51 = st.nr51
	s.apu.step = st.step
	s.timer = st.timer
	s.serial.sb = st.sb
	s.serial.sc = st.sc
	s.serial.line = append(s.serial.line[:0], st.line...)
	s.ifReg = st.ifReg
	s.ieReg = st.ieReg
	s.speedArmed = st.speedArmed
	s.frames = st.frames
	s.restoreSampleClock(st.sampleRate, st.decimation)
	s.out.Reset()
	return nil
}

// restoreSampleClock keeps the saved output phase when the state was taken
// at this session's sample rate. Otherwise the Sample event follows the
// local output setup: cancelled without one, restarted from now with a
// fresh decimator at a different rate.
func (s *Session) restoreSampleClock(rate, remainder int64) {
	if s.decimator == nil {
		s.sched.Cancel(Sample)
		return
	}
	if rate == s.decimator.SampleRate() {
		_ = s.decimator.SetRemainder(remainder)
		return
	}
	s.decimator = output.NewDecimator(ClockHz, s.decimator.SampleRate())
	s.sched.Cancel(Sample)
	s.scheduleMaster(Sample, s.decimator.Next(), true)
}

func decodeSnapshot(data []byte) (snapshot, error) {
	var st snapshot
	d := savestate.NewDecoder(data)
	d.Section("GBTS")
	if v := d.U8(); d.Err() == nil && v != stateVersion {
		d.Fail(savestate.Corruptf("state version %d, want %d", v, stateVersion))
	}

	st.sched = events.DecodeState[Kind](d)
	for i := range st.channels {
		st.channels[i] = audio.DecodeChannelState(d)
		st.lastSync[i] = d.I64()
	}

	d.Section("APU ")
	st.power = d.Bool()
	st.nr10 = d.U8()
	st.nr50 = d.U8()
	st.nr51 = d.U8()
	st.step = d.U8()

	d.Section("TIMR")
	st.timer.tima = d.U8()
	st.timer.tma = d.U8()
	st.timer.tac = d.U8()
	st.timer.divCounter = d.U16()
	st.timer.divBase = d.I64()

	d.Section("MISC")
	st.sb = d.U8()
	st.sc = d.U8()
	st.line = d.Bytes()
	st.ifReg = d.U8()
	st.ieReg = d.U8()
	st.speedArmed = d.Bool()
	st.frames = uint64(d.I64())
	st.sampleRate = d.I64()
	st.decimation = d.I64()

	return st, d.Finish()
}

func (s *Session) validate(st snapshot) error {
	if err := st.sched.Validate(s.sched.Kinds()); err != nil {
		return err
	}
	pending := func(k Kind) bool {
		return st.sched.Events[k].Active
	}
	for i, c := range s.apu.channels {
		if err := c.Validate(st.channels[i]); err != nil {
			return fmt.Errorf("channel %d: %w", i+1, err)
		}
		if running := st.channels[i].RunState == audio.Triggered; running != pending(channelKind(i)) {
			return savestate.Corruptf("channel %d running=%t but its period event pending=%t", i+1, running, pending(channelKind(i)))
		}
		if st.lastSync[i] < 0 || st.lastSync[i] > st.sched.Now {
			return savestate.Corruptf("channel %d synced at %d, clock is %d", i+1, st.lastSync[i], st.sched.Now)
		}
	}
	if st.step > 7 {
		return savestate.Corruptf("frame sequencer step %d", st.step)
	}
	if st.timer.tac > 0x07 {
		return savestate.Corruptf("TAC 0x%02X", st.timer.tac)
	}
	if st.timer.enabled() != pending(Timer) {
		return savestate.Corruptf("TAC 0x%02X disagrees with the Timer event", st.timer.tac)
	}
	if st.timer.divBase < 0 || st.timer.divBase > st.sched.Now {
		return savestate.Corruptf("divider base %d, clock is %d", st.timer.divBase, st.sched.Now)
	}
	if st.ifReg > 0x1F || st.sc&^0x81 != 0 {
		return savestate.Corruptf("IF 0x%02X SC 0x%02X", st.ifReg, st.sc)
	}
	if st.sampleRate < 0 || (st.sampleRate > 0) != pending(Sample) {
		return savestate.Corruptf("sample rate %d with Sample event pending=%t", st.sampleRate, pending(Sample))
	}
	if st.decimation < 0 || st.decimation >= max(st.sampleRate, 1) {
		return savestate.Corruptf("sample remainder %d at %d Hz", st.decimation, st.sampleRate)
	}
	return nil
}
