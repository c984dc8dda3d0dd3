package training

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lowaak/smart-trainer/training-app/internal/store"
	"github.com/lowaak/smart-trainer/training-app/internal/workout"
)

func newTestRunner(t *testing.T, submitter *fakeSubmitter, starter Starter) (*Runner, *store.FileSlots) {
	t.Helper()
	slots := store.NewFileSlots(afero.NewMemMapFs(), "/state")
	r := NewRunner(Config{}, RunnerDeps{
		Slots:     slots,
		Submitter: submitter,
		Starter:   starter,
		Player:    &fakePlayer{},
		Logger:    zerolog.Nop(),
	})
	return r, slots
}

func startPayload(steps ...workout.Step) StartPayload {
	return StartPayload{TrainingID: "tr-1", WorkoutID: "wk-1", UserID: "user-1", Steps: steps}
}

func TestRunner_ConcurrentFinishSubmitsOnce(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	submitter := &fakeSubmitter{block: make(chan struct{}), release: make(chan error)}
	r, _ := newTestRunner(t, submitter, nil)
	defer r.Shutdown()

	require.NoError(t, r.StartFromServer(startPayload(openSet())))
	require.NoError(t, r.Start())

	firstDone := make(chan error, 1)
	go func() { firstDone <- r.Finish(context.Background()) }()
	<-submitter.block

	// the loop stays responsive while the first submission is in flight
	snap := r.Snapshot()
	assert.True(t, snap.Finishing)
	assert.True(t, snap.Session.Done)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = r.Finish(context.Background())
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrFinishInFlight)
	}

	submitter.release <- nil
	require.NoError(t, <-firstDone)
	assert.Len(t, submitter.Records(), 1)
	assert.Nil(t, r.Snapshot().Session)
}

func TestRunner_AutoFinishAtTimelineEnd(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	submitter := &fakeSubmitter{}
	r, slots := newTestRunner(t, submitter, nil)
	defer r.Shutdown()

	snapshots := make(chan Snapshot, 1)
	unregister := r.ListenToSnapshots(snapshots)
	defer unregister()

	require.NoError(t, r.StartFromServer(startPayload(countdown(1))))
	require.NoError(t, r.Start())

	require.Eventually(t, func() bool {
		return len(submitter.Records()) == 1
	}, 3*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return r.Snapshot().Session == nil
	}, time.Second, 10*time.Millisecond)

	rec := submitter.Records()[0]
	assert.GreaterOrEqual(t, rec.Steps[0].ElapsedMillis, int64(1000))
	assert.GreaterOrEqual(t, rec.Duration(), time.Second)

	last := <-snapshots
	assert.Nil(t, last.Session)
	require.NotNil(t, last.Logged)
	assert.Equal(t, "tr-1", last.Logged.TrainingID)

	_, err := slots.Read(context.Background(), DefaultSlot)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRunner_AutoFinishFailureIsReported(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	submitter := &fakeSubmitter{fail: true}
	r, _ := newTestRunner(t, submitter, nil)
	defer r.Shutdown()

	failures := make(chan error, 1)
	r.ListenToFailures(func(err error) { failures <- err })

	require.NoError(t, r.StartFromServer(startPayload(countdown(1))))
	require.NoError(t, r.Start())

	select {
	case err := <-failures:
		assert.ErrorIs(t, err, errBackendDown)
	case <-time.After(3 * time.Second):
		t.Fatal("auto finish failure was not reported")
	}
	snap := r.Snapshot()
	require.NotNil(t, snap.Session)
	assert.True(t, snap.Session.Done)
	assert.False(t, snap.Session.Logged)
}

func TestRunner_Begin(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	starter := fakeStarter{payload: startPayload(countdown(30), openSet())}
	r, _ := newTestRunner(t, &fakeSubmitter{}, starter)
	defer r.Shutdown()

	require.NoError(t, r.Begin(context.Background(), "legs"))
	snap := r.Snapshot()
	require.NotNil(t, snap.Session)
	assert.Equal(t, "legs", snap.Session.WorkoutID)
	assert.Equal(t, TriggerServer, snap.LastTrigger)

	step, ok := r.CurrentStep()
	require.True(t, ok)
	assert.Equal(t, 30, step.EstimatedSeconds)
	assert.Zero(t, r.ElapsedNow())
	assert.False(t, r.Restored())

	starter.err = assert.AnError
	r2, _ := newTestRunner(t, &fakeSubmitter{}, starter)
	defer r2.Shutdown()
	assert.ErrorIs(t, r2.Begin(context.Background(), "legs"), assert.AnError)
}

func TestRunner_SuspendAndRestore(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r, slots := newTestRunner(t, &fakeSubmitter{}, nil)
	require.NoError(t, r.StartFromServer(startPayload(openSet())))
	require.NoError(t, r.Start())
	require.NoError(t, r.Suspend())
	r.Shutdown()

	r2 := NewRunner(Config{}, RunnerDeps{Slots: slots, Submitter: &fakeSubmitter{}, Logger: zerolog.Nop()})
	defer r2.Shutdown()
	restored, err := r2.Restore(context.Background())
	require.NoError(t, err)
	assert.True(t, restored)
	assert.True(t, r2.Restored())
	assert.False(t, r2.Snapshot().Session.Running)

	require.NoError(t, r2.Discard())
	assert.Nil(t, r2.Snapshot().Session)
}

func TestRunner_ClosedRunnerRejectsCommands(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r, _ := newTestRunner(t, &fakeSubmitter{}, nil)
	require.NoError(t, r.StartFromServer(startPayload(countdown(30))))
	require.NoError(t, r.Start())
	r.Shutdown()
	r.Shutdown()

	assert.ErrorIs(t, r.Start(), ErrRunnerClosed)
	assert.ErrorIs(t, r.Advance(), ErrRunnerClosed)
	assert.ErrorIs(t, r.Finish(context.Background()), ErrRunnerClosed)
	assert.Nil(t, r.Snapshot().Session)
}

func TestRunner_FlushWithoutOutbox(t *testing.T) {
	r, _ := newTestRunner(t, &fakeSubmitter{}, nil)
	defer r.Shutdown()
	n, err := r.FlushOutbox(context.Background())
	assert.NoError(t, err)
	assert.Zero(t, n)
}
