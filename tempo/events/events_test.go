package events

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valerio/go-tempo/tempo/savestate"
)

type testKind uint8

const (
	kindA testKind = iota
	kindB
	kindC
	numTestKinds
)

func (k testKind) String() string {
	return [...]string{"A", "B", "C"}[k]
}

type serviced struct {
	kind testKind
	now  int64
	late int64
}

// recorder logs every Service call and optionally re-arms periodic kinds.
type recorder struct {
	sched   *Scheduler[testKind]
	log     []serviced
	periods map[testKind]int64
	onEvent func(kind testKind)
}

func newRecorder() *recorder {
	r := &recorder{periods: map[testKind]int64{}}
	r.sched = NewScheduler[testKind](int(numTestKinds), r)
	return r
}

func (r *recorder) Service(kind testKind, late int64) {
	r.log = append(r.log, serviced{kind: kind, now: r.sched.Now(), late: late})
	if p, ok := r.periods[kind]; ok {
		r.sched.Insert(kind, p, false)
	}
	if r.onEvent != nil {
		r.onEvent(kind)
	}
}

func (r *recorder) kinds() []testKind {
	out := make([]testKind, len(r.log))
	for i, s := range r.log {
		out[i] = s.kind
	}
	return out
}

func TestScheduler_TieBreakUsesKindOrder(t *testing.T) {
	orders := [][]testKind{
		{kindC, kindB, kindA},
		{kindB, kindA, kindC},
		{kindA, kindC, kindB},
	}
	for _, order := range orders {
		r := newRecorder()
		for _, k := range order {
			r.sched.Insert(k, 10, true)
		}
		r.sched.Advance(10)
		assert.Equal(t, []testKind{kindA, kindB, kindC}, r.kinds(), "insertion order %v", order)
	}
}

func TestScheduler_ServicesInDueOrder(t *testing.T) {
	r := newRecorder()
	r.sched.Insert(kindA, 30, true)
	r.sched.Insert(kindB, 10, true)
	r.sched.Insert(kindC, 20, true)

	r.sched.Advance(100)

	require.Len(t, r.log, 3)
	assert.Equal(t, serviced{kindB, 10, 0}, r.log[0])
	assert.Equal(t, serviced{kindC, 20, 0}, r.log[1])
	assert.Equal(t, serviced{kindA, 30, 0}, r.log[2])
	assert.Equal(t, int64(100), r.sched.Now())
}

func TestScheduler_DueBoundary(t *testing.T) {
	r := newRecorder()
	r.sched.Insert(kindA, 50, true)

	r.sched.Advance(49)
	assert.Empty(t, r.log, "one cycle short must not fire")

	r.sched.Advance(1)
	assert.Len(t, r.log, 1)

	_, active := r.sched.Pending(kindA)
	assert.False(t, active, "serviced events are consumed")
}

func TestScheduler_LargeJumpServicesEveryPeriod(t *testing.T) {
	r := newRecorder()
	r.periods[kindA] = 100
	r.sched.Insert(kindA, 100, true)

	r.sched.Advance(1050)

	require.Len(t, r.log, 10)
	for i, s := range r.log {
		assert.Equal(t, int64(100*(i+1)), s.now, "service %d", i)
		assert.Zero(t, s.late)
	}
	due, active := r.sched.Pending(kindA)
	assert.True(t, active)
	assert.Equal(t, int64(1100), due)
}

func TestScheduler_CycleConservation(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	r := newRecorder()
	r.periods[kindA] = 7
	r.periods[kindB] = 64
	r.periods[kindC] = 1000
	r.sched.Insert(kindA, 7, true)
	r.sched.Insert(kindB, 64, true)
	r.sched.Insert(kindC, 1000, true)

	var total int64
	for i := 0; i < 500; i++ {
		c := rng.Int63n(300)
		total += c
		r.sched.Advance(c)
	}

	// Clock deltas observed between consecutive services, plus the tail since
	// the last one, must add up to exactly what was advanced.
	var delivered, last int64
	for _, s := range r.log {
		require.GreaterOrEqual(t, s.now, last, "clock went backwards")
		delivered += s.now - last
		last = s.now
	}
	delivered += r.sched.Now() - last

	assert.Equal(t, total, delivered)
	assert.Equal(t, total, r.sched.Now())

	counts := map[testKind]int64{}
	for _, s := range r.log {
		counts[s.kind]++
	}
	assert.Equal(t, total/7, counts[kindA])
	assert.Equal(t, total/64, counts[kindB])
	assert.Equal(t, total/1000, counts[kindC])
}

func TestScheduler_InsertOverwrites(t *testing.T) {
	r := newRecorder()
	r.sched.Insert(kindA, 50, true)
	if assertDuplicates {
		assert.Panics(t, func() { r.sched.Insert(kindA, 80, true) })
		return
	}
	r.sched.Insert(kindA, 80, true)

	r.sched.Advance(60)
	assert.Empty(t, r.log, "the second insert replaces the first")

	r.sched.Advance(20)
	assert.Len(t, r.log, 1, "only one occurrence per kind")
}

func TestScheduler_InsertFromPriorDue(t *testing.T) {
	r := newRecorder()
	r.sched.Insert(kindA, 100, true)
	r.sched.Advance(130)
	require.Len(t, r.log, 1)

	// 30 cycles late: counting from the prior due keeps the cadence.
	r.sched.Insert(kindA, 100, false)
	due, _ := r.sched.Pending(kindA)
	assert.Equal(t, int64(200), due)

	// A due time in the past is serviced on the next advance and reports
	// how late it was.
	r.sched.Insert(kindB, 10, false)
	r.sched.Advance(0)
	require.Len(t, r.log, 2)
	assert.Equal(t, serviced{kindB, 130, 120}, r.log[1])
}

func TestScheduler_Cancel(t *testing.T) {
	r := newRecorder()
	r.sched.Insert(kindA, 10, true)
	r.sched.Cancel(kindA)
	r.sched.Advance(100)
	assert.Empty(t, r.log)

	// cancelling an idle kind is a no-op
	r.sched.Cancel(kindB)
	_, ok := r.sched.PeekMin()
	assert.False(t, ok)
}

func TestScheduler_PeekMinAndHorizon(t *testing.T) {
	r := newRecorder()
	_, ok := r.sched.PeekMin()
	assert.False(t, ok)
	assert.Equal(t, int64(500), r.sched.Horizon(500))

	r.sched.Insert(kindC, 40, true)
	r.sched.Insert(kindB, 25, true)
	min, ok := r.sched.PeekMin()
	assert.True(t, ok)
	assert.Equal(t, int64(25), min)
	assert.Equal(t, int64(25), r.sched.Horizon(500))
	assert.Equal(t, int64(10), r.sched.Horizon(10))
}

func TestScheduler_SkipToEvent(t *testing.T) {
	r := newRecorder()
	assert.Zero(t, r.sched.SkipToEvent(), "nothing pending")

	r.sched.Insert(kindB, 300, true)
	r.sched.Insert(kindA, 700, true)

	assert.Equal(t, int64(300), r.sched.SkipToEvent())
	assert.Equal(t, int64(300), r.sched.Now())
	assert.Equal(t, []testKind{kindB}, r.kinds())

	assert.Equal(t, int64(400), r.sched.SkipToEvent())
	assert.Equal(t, []testKind{kindB, kindA}, r.kinds())
}

func TestScheduler_DoubleSpeed(t *testing.T) {
	tests := []struct {
		delay    int64
		expected int64
	}{
		{100, 50},
		{101, 50}, // truncated
		{1, 0},
		{8192, 4096},
	}

	for _, tt := range tests {
		r := newRecorder()
		r.sched.Advance(1000)
		r.sched.SetSpeed(2)
		r.sched.Insert(kindA, tt.delay, true)
		due, _ := r.sched.Pending(kindA)
		assert.Equal(t, 1000+tt.expected, due, "delay %d", tt.delay)
	}
}

func TestScheduler_SpeedChangeLeavesPendingEvents(t *testing.T) {
	r := newRecorder()
	r.sched.Insert(kindA, 100, true)
	r.sched.SetSpeed(2)
	r.sched.Insert(kindB, 100, true)

	dueA, _ := r.sched.Pending(kindA)
	dueB, _ := r.sched.Pending(kindB)
	assert.Equal(t, int64(100), dueA, "not rescaled retroactively")
	assert.Equal(t, int64(50), dueB)

	r.sched.SetSpeed(1)
	r.sched.Insert(kindC, 100, true)
	dueC, _ := r.sched.Pending(kindC)
	assert.Equal(t, int64(100), dueC)

	assert.Panics(t, func() { r.sched.SetSpeed(3) })
}

func TestScheduler_Misuse(t *testing.T) {
	t.Run("re-entrant advance", func(t *testing.T) {
		r := newRecorder()
		r.onEvent = func(testKind) { r.sched.Advance(1) }
		r.sched.Insert(kindA, 1, true)
		assert.Panics(t, func() { r.sched.Advance(1) })
	})

	t.Run("re-arm without progress", func(t *testing.T) {
		r := newRecorder()
		r.periods[kindA] = 0
		r.sched.Insert(kindA, 5, true)
		assert.Panics(t, func() { r.sched.Advance(10) })
	})

	t.Run("negative advance", func(t *testing.T) {
		r := newRecorder()
		assert.Panics(t, func() { r.sched.Advance(-1) })
	})

	t.Run("undeclared kind", func(t *testing.T) {
		r := newRecorder()
		assert.Panics(t, func() { r.sched.Insert(numTestKinds, 1, true) })
	})

	t.Run("too many kinds", func(t *testing.T) {
		assert.Panics(t, func() { NewScheduler[testKind](MaxKinds+1, newRecorder()) })
	})
}

func TestScheduler_HandlerMayScheduleOthers(t *testing.T) {
	r := newRecorder()
	r.onEvent = func(k testKind) {
		if k == kindA {
			r.sched.Insert(kindC, 5, true)
		}
	}
	r.sched.Insert(kindA, 10, true)
	r.sched.Advance(20)

	require.Len(t, r.log, 2)
	assert.Equal(t, serviced{kindC, 15, 0}, r.log[1], "events inserted mid-advance are serviced in the same call")
}

func TestScheduler_StateRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 100; i++ {
		r := newRecorder()
		r.sched.Advance(rng.Int63n(1 << 20))
		if rng.Intn(2) == 1 {
			r.sched.SetSpeed(2)
		}
		for k := testKind(0); k < numTestKinds; k++ {
			if rng.Intn(3) > 0 {
				r.sched.Insert(k, rng.Int63n(1<<16), rng.Intn(2) == 1)
			}
		}

		e := savestate.NewEncoder()
		r.sched.State().Encode(e)

		d := savestate.NewDecoder(e.Data())
		st := DecodeState[testKind](d)
		require.NoError(t, d.Finish())

		fresh := newRecorder()
		require.NoError(t, fresh.sched.Restore(st))
		assert.Equal(t, r.sched.State(), fresh.sched.State(), "iteration %d", i)
	}
}

func TestScheduler_RestoreRejectsCorruption(t *testing.T) {
	base := func() State[testKind] {
		return newRecorder().sched.State()
	}

	tests := []struct {
		name   string
		mutate func(st *State[testKind])
	}{
		{"speed factor", func(st *State[testKind]) { st.Speed = 3 }},
		{"negative clock", func(st *State[testKind]) { st.Now = -1 }},
		{"slot count", func(st *State[testKind]) { st.Events = st.Events[:2] }},
		{"kind tag", func(st *State[testKind]) { st.Events[1].Kind = 7 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRecorder()
			r.sched.Insert(kindB, 99, true)
			before := r.sched.State()

			st := base()
			tt.mutate(&st)
			err := r.sched.Restore(st)
			assert.ErrorIs(t, err, savestate.ErrStateCorruption)
			assert.Equal(t, before, r.sched.State(), "failed restore must not modify the scheduler")
		})
	}
}

func TestScheduler_Reset(t *testing.T) {
	r := newRecorder()
	r.sched.SetSpeed(2)
	r.sched.Insert(kindA, 10, true)
	r.sched.Advance(3)
	r.sched.Reset()

	assert.Zero(t, r.sched.Now())
	assert.Equal(t, 1, r.sched.Speed())
	_, ok := r.sched.PeekMin()
	assert.False(t, ok)
	assert.Contains(t, r.sched.String(), "now=0 speed=1")
}
