package gba

import (
	"fmt"

	"github.com/valerio/go-tempo/tempo/audio"
	"github.com/valerio/go-tempo/tempo/events"
	"github.com/valerio/go-tempo/tempo/output"
	"github.com/valerio/go-tempo/tempo/savestate"
)

const stateVersion = 2

type snapshot struct {
	sched    events.State[Kind]
	channels [4]audio.ChannelState
	lastSync [4]int64

	power    bool
	sweep    uint8
	soundcnt [2]uint16
	bias     uint16
	step     uint8

	timers [4]timer

	dispstat   uint8
	ie, irf    uint16
	frames     uint64
	sampleRate int64
	decimation int64
}

// Save serializes the session's timing state.
func (s *Session) Save() ([]byte, error) {
	e := savestate.NewEncoder()
	e.Section("GBAT")
	e.U8(stateVersion)

	s.sched.State().Encode(e)
	for i, c := range s.channels {
		c.Snapshot().Encode(e)
		e.I64(s.lastSync[i])
	}

	e.Section("PSG ")
	e.Bool(s.power)
	e.U8(s.sweep)
	e.U16(s.soundcnt[0])
	e.U16(s.soundcnt[1])
	e.U16(s.bias)
	e.U8(s.step)

	e.Section("TMRS")
	for _, t := range s.timers {
		e.U16(t.reload)
		e.U8(t.control)
		e.U16(t.counter)
		e.I64(t.start)
	}

	e.Section("MISC")
	e.U8(s.dispstat)
	e.U16(s.ie)
	e.U16(s.irf)
	e.I64(int64(s.frames))
	var rate, rem int64
	if s.decimator != nil {
		rate, rem = s.decimator.SampleRate(), s.decimator.Remainder()
	}
	e.I64(rate)
	e.I64(rem)
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
		return fmt.Errorf("gba: load state: %w", err)
	}

	_ = s.sched.Restore(st.sched)
	for i, c := range s.channels {
		_ = c.Restore(st.channels[i])
	}
	s.lastSync = st.lastSync
	s.power = st.power
	s.sweep = st.sweep
	s.soundcnt = st.soundcnt
	s.bias = st.bias
	s.step = st.step
	s.timers = st.timers
	s.dispstat = st.dispstat
	s.ie, s.irf = st.ie, st.irf
	s.frames = st.frames
	s.restoreSampleClock(st.sampleRate, st.decimation)
	s.out.Reset()
	return nil
}

// restoreSampleClock keeps the saved output phase when the rates agree and
// otherwise re-derives the Sample event from the local decimator.
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
	s.sched.Insert(Sample, s.decimator.Next(), true)
}

func decodeSnapshot(data []byte) (snapshot, error) {
	var st snapshot
	d := savestate.NewDecoder(data)
	d.Section("GBAT")
	if v := d.U8(); d.Err() == nil && v != stateVersion {
		d.Fail(savestate.Corruptf("state version %d, want %d", v, stateVersion))
	}

	st.sched = events.DecodeState[Kind](d)
	for i := range st.channels {
		st.channels[i] = audio.DecodeChannelState(d)
		st.lastSync[i] = d.I64()
	}

	d.Section("PSG ")
	st.power = d.Bool()
	st.sweep = d.U8()
	st.soundcnt[0] = d.U16()
	st.soundcnt[1] = d.U16()
	st.bias = d.U16()
	st.step = d.U8()

	d.Section("TMRS")
	for i := range st.timers {
		t := &st.timers[i]
		t.reload = d.U16()
		t.control = d.U8()
		t.counter = d.U16()
		t.start = d.I64()
	}

	d.Section("MISC")
	st.dispstat = d.U8()
	st.ie = d.U16()
	st.irf = d.U16()
	st.frames = uint64(d.I64())
	st.sampleRate = d.I64()
	st.decimation = d.I64()
	return st, d.Finish()
}

func (s *Session) validate(st snapshot) error {
	if err := st.sched.Validate(s.sched.Kinds()); err != nil {
		return err
	}
	now := st.sched.Now
	pending := func(k Kind) bool {
		return st.sched.Events[k].Active
	}
	for i, c := range s.channels {
		if err := c.Validate(st.channels[i]); err != nil {
			return fmt.Errorf("channel %d: %w", i+1, err)
		}
		if running := st.channels[i].RunState == audio.Triggered; running != pending(channelKind(i)) {
			return savestate.Corruptf("channel %d running=%t but its period event pending=%t", i+1, running, pending(channelKind(i)))
		}
		if st.lastSync[i] < 0 || st.lastSync[i] > now {
			return savestate.Corruptf("channel %d synced at %d, clock is %d", i+1, st.lastSync[i], now)
		}
	}
	if st.step > 7 || st.sweep > 0x7F {
		return savestate.Corruptf("frame sequencer step %d sweep 0x%02X", st.step, st.sweep)
	}
	for i, t := range st.timers {
		if t.control&^timerControlMask != 0 || t.start < 0 || t.start > now {
			return savestate.Corruptf("timer %d control 0x%02X anchored at %d", i, t.control, t.start)
		}
		if t.freeRunning(i) != pending(timerKind(i)) {
			return savestate.Corruptf("timer %d control 0x%02X disagrees with its overflow event", i, t.control)
		}
	}
	if st.dispstat&0x07 != 0 {
		return savestate.Corruptf("DISPSTAT 0x%02X", st.dispstat)
	}
	if st.sampleRate < 0 || (st.sampleRate > 0) != pending(Sample) {
		return savestate.Corruptf("sample rate %d with Sample event pending=%t", st.sampleRate, pending(Sample))
	}
	if st.decimation < 0 || st.decimation >= max(st.sampleRate, 1) {
		return savestate.Corruptf("sample remainder %d at %d Hz", st.decimation, st.sampleRate)
	}
	return nil
}
