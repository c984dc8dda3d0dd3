package training

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/smart-trainer/training-app/internal/store"
	"github.com/lowaak/smart-trainer/training-app/internal/workout"
)

func TestScenario_AutoAdvanceThenManualFinish(t *testing.T) {
	h := newHarness(t)
	h.start(countdown(30), restPause(10, true), openSet())
	require.NoError(t, h.engine.Start())

	h.timers.Advance(30200 * time.Millisecond)
	s := h.session()
	assert.Equal(t, 1, s.CurrentIndex, "countdown ends itself")
	assert.True(t, s.Running)
	assert.Equal(t, TriggerAuto, h.engine.Snapshot().LastTrigger)

	h.timers.Advance(10100 * time.Millisecond)
	assert.Equal(t, 2, h.session().CurrentIndex, "auto rest ends itself")

	h.timers.Advance(5 * time.Second)
	assert.Equal(t, 2, h.session().CurrentIndex, "open set waits for the user")

	require.NoError(t, h.engine.Finish(context.Background()))

	records := h.submitter.Records()
	require.Len(t, records, 1)
	rec := records[0]
	var elapsed []int64
	for _, st := range rec.Steps {
		elapsed = append(elapsed, st.ElapsedMillis)
	}
	assert.Equal(t, []int64{30200, 10100, 5000}, elapsed)
	assert.Equal(t, 45300*time.Millisecond, rec.Duration())
	assert.Equal(t, epoch, rec.StartedAt)

	snap := h.engine.Snapshot()
	assert.Nil(t, snap.Session, "logged session is destroyed")
	require.NotNil(t, snap.Logged)
	assert.Equal(t, "tr-1", snap.Logged.TrainingID)

	_, err := h.slots.Read(context.Background(), DefaultSlot)
	assert.ErrorIs(t, err, store.ErrNotFound)
	pending, err := h.outbox.Pending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Zero(t, h.timers.Pending())
}

func TestScenario_SupersetSkipsPartners(t *testing.T) {
	h := newHarness(t)
	h.start(superset(1, 0), openSet())
	require.NoError(t, h.engine.Start())

	h.timers.Advance(20 * time.Second)
	require.NoError(t, h.engine.Advance())

	s := h.session()
	assert.Equal(t, 2, s.CurrentIndex, "lands after the second exercise")
	assert.Equal(t, "Push-ups", s.Steps[2].Name)
	assert.Equal(t, int64(20000), s.Steps[0].ElapsedMillis)
	assert.Equal(t, int64(0), s.Steps[1].ElapsedMillis, "skipped partner accrues nothing")
	assert.True(t, s.Steps[1].Completed)
}

func TestEngine_SupersetLoopsAndTimelineEnd(t *testing.T) {
	h := newHarness(t)
	h.start(superset(2, 30))
	require.NoError(t, h.engine.Start())

	// curl(1) dip(1) rest curl(2) dip(2)
	require.NoError(t, h.engine.Advance())
	assert.Equal(t, 2, h.session().CurrentIndex, "skip stops at the rest")

	h.timers.Advance(30 * time.Second)
	assert.Equal(t, 3, h.session().CurrentIndex, "rest auto-advances into the second loop")

	require.NoError(t, h.engine.Advance())
	s := h.session()
	assert.Equal(t, 3, s.CurrentIndex, "past the end stays on the last reachable step")
	assert.False(t, s.Running)
	assert.False(t, s.Done)
	assert.Equal(t, []Trigger{TriggerManual}, h.ended)
}

func TestEngine_ElapsedNowDoesNotCommit(t *testing.T) {
	h := newHarness(t)
	h.start(openSet())
	require.NoError(t, h.engine.Start())

	h.timers.Advance(5 * time.Second)
	assert.Equal(t, 5*time.Second, h.engine.ElapsedNow())
	assert.Equal(t, 5*time.Second, h.engine.ElapsedNow())
	assert.Equal(t, int64(0), h.session().Steps[0].ElapsedMillis, "reads leave the stored value alone")
	assert.Equal(t, epoch.UnixMilli(), h.session().LastUpdatedAt)

	require.NoError(t, h.engine.Pause())
	assert.Equal(t, int64(5000), h.session().Steps[0].ElapsedMillis)
}

func TestEngine_ElapsedOnlyGrowsWhileRunning(t *testing.T) {
	h := newHarness(t)
	h.start(openSet())

	var last int64
	check := func() {
		t.Helper()
		got := h.session().Steps[0].ElapsedMillis
		assert.GreaterOrEqual(t, got, last)
		last = got
	}

	h.timers.Advance(time.Minute)
	require.NoError(t, h.engine.Start())
	check()
	assert.Equal(t, int64(0), last, "time before the first start is not credited")

	h.timers.Advance(4 * time.Second)
	require.NoError(t, h.engine.Pause())
	check()

	h.timers.Advance(time.Hour)
	require.NoError(t, h.engine.Pause())
	check()
	assert.Equal(t, int64(4000), last, "paused time is not credited")

	require.NoError(t, h.engine.Start())
	h.timers.Advance(3 * time.Second)
	require.NoError(t, h.engine.MarkSoundPlayed())
	check()
	assert.Equal(t, int64(7000), last)

	require.NoError(t, h.engine.Start())
	h.timers.Advance(time.Second)
	require.NoError(t, h.engine.Pause())
	check()
	assert.Equal(t, int64(8000), last, "a second start does not reset the anchor")
}

func TestEngine_ExactlyOneCurrentStep(t *testing.T) {
	h := newHarness(t)
	h.start(countdown(5), superset(2, 5), openSet())

	assertOneCurrent := func() {
		t.Helper()
		s := h.session()
		if s == nil || s.Done {
			return
		}
		current := 0
		for i, st := range s.Steps {
			if st.Current {
				current++
				assert.Equal(t, s.CurrentIndex, i)
			}
			assert.Equal(t, i < s.CurrentIndex, st.Completed, "completed[%d]", i)
			assert.Equal(t, st.Current && s.Running, st.Running, "running[%d]", i)
		}
		assert.Equal(t, 1, current)
	}

	assertOneCurrent()
	require.NoError(t, h.engine.Start())
	for range 12 {
		h.timers.Advance(3 * time.Second)
		assertOneCurrent()
		_ = h.engine.Advance()
		assertOneCurrent()
		_ = h.engine.Pause()
		assertOneCurrent()
		_ = h.engine.Start()
	}
}

func TestEngine_StartedAtStampedOnce(t *testing.T) {
	h := newHarness(t)
	h.start(openSet())
	assert.Nil(t, h.session().StartedAt)

	h.timers.Advance(2 * time.Second)
	require.NoError(t, h.engine.Start())
	first := *h.session().StartedAt

	require.NoError(t, h.engine.Pause())
	h.timers.Advance(10 * time.Second)
	require.NoError(t, h.engine.Start())
	assert.Equal(t, first, *h.session().StartedAt)
	assert.Equal(t, epoch.Add(2*time.Second), first)
}

func TestEngine_NoSession(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.engine.Start(), ErrNoSession)
	assert.ErrorIs(t, h.engine.Pause(), ErrNoSession)
	assert.ErrorIs(t, h.engine.Advance(), ErrNoSession)
	assert.ErrorIs(t, h.engine.MarkSoundPlayed(), ErrNoSession)
	assert.ErrorIs(t, h.engine.Finish(context.Background()), ErrNoSession)
	assert.Zero(t, h.engine.ElapsedNow())
	_, ok := h.engine.CurrentStep()
	assert.False(t, ok)
}

func TestEngine_StartFromServerRejectsEmpty(t *testing.T) {
	h := newHarness(t)
	err := h.engine.StartFromServer(StartPayload{TrainingID: "tr-1"})
	assert.ErrorIs(t, err, ErrEmptyTimeline)
	err = h.engine.StartFromServer(StartPayload{Steps: nil})
	assert.ErrorIs(t, err, ErrMissingTrainingID)
	assert.Nil(t, h.session())
}

func TestEngine_MutationsPersistAndNotify(t *testing.T) {
	h := newHarness(t)
	h.start(openSet())
	require.NoError(t, h.engine.Start())
	h.timers.Advance(3 * time.Second)
	require.NoError(t, h.engine.Pause())

	require.Len(t, h.changes, 3)
	assert.Equal(t, TriggerServer, h.changes[0].LastTrigger)
	assert.True(t, h.changes[1].Session.Running)
	assert.False(t, h.changes[2].Session.Running)

	raw, err := h.slots.Read(context.Background(), DefaultSlot)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"elapsedMillis":3000`)
	assert.Contains(t, string(raw), `"running":false`)
}

func TestEngine_SnapshotIsACopy(t *testing.T) {
	h := newHarness(t)
	h.start(openSet())

	snap := h.engine.Snapshot()
	snap.Session.Steps[0].ElapsedMillis = 99999
	snap.Session.CurrentIndex = 7
	assert.Equal(t, int64(0), h.session().Steps[0].ElapsedMillis)
	assert.Equal(t, 0, h.session().CurrentIndex)
}

func TestEngine_Discard(t *testing.T) {
	h := newHarness(t)
	h.start(countdown(30))
	require.NoError(t, h.engine.Start())
	require.NoError(t, h.engine.Suspend())
	require.Equal(t, 1, h.timers.Pending())

	h.engine.Discard()
	assert.Nil(t, h.session())
	assert.Zero(t, h.timers.Pending())
	for _, slot := range []string{DefaultSlot, DefaultSlot + ".hide"} {
		_, err := h.slots.Read(context.Background(), slot)
		assert.ErrorIs(t, err, store.ErrNotFound, slot)
	}
}

func TestEngine_CloseKeepsStorage(t *testing.T) {
	h := newHarness(t)
	h.start(countdown(30))
	require.NoError(t, h.engine.Start())

	h.engine.Close()
	assert.Zero(t, h.timers.Pending())
	_, err := h.slots.Read(context.Background(), DefaultSlot)
	assert.NoError(t, err)
}

func TestEngine_ReplacingSession(t *testing.T) {
	h := newHarness(t)
	h.start(countdown(30))
	require.NoError(t, h.engine.Start())

	require.NoError(t, h.engine.StartFromServer(StartPayload{
		TrainingID: "tr-2",
		Steps:      []workout.Step{openSet()},
	}))
	assert.Equal(t, "tr-2", h.session().TrainingID)
	assert.False(t, h.session().Running)
	assert.Zero(t, h.timers.Pending(), "countdown deadline of the old session is gone")
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultSlot, cfg.Slot)
	assert.Equal(t, DefaultRestoreCatchUpCap, cfg.RestoreCatchUpCap)
	assert.Equal(t, DefaultCueLead, cfg.CueLead)
	assert.Equal(t, DefaultStorageTimeout, cfg.StorageTimeout)

	cfg = Config{CueLead: -time.Second}.withDefaults()
	assert.Zero(t, cfg.CueLead, "negative lead disables the lead")
}
