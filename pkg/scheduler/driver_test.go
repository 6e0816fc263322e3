package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bridgecall/bridgecall/pkg/models"
	"github.com/bridgecall/bridgecall/pkg/store"
	"github.com/bridgecall/bridgecall/pkg/timeutil"
)

type captureDispatcher struct {
	mu      sync.Mutex
	batches [][]models.OutboundMessage
	err     error
}

func (c *captureDispatcher) Deliver(_ context.Context, msgs []models.OutboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	batch := make([]models.OutboundMessage, len(msgs))
	copy(batch, msgs)
	c.batches = append(c.batches, batch)
	return c.err
}

func (c *captureDispatcher) batchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}

func (c *captureDispatcher) lastBatch() []models.OutboundMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.batches) == 0 {
		return nil
	}
	return c.batches[len(c.batches)-1]
}

func fixedClock(ts timeutil.Timestamp) func() timeutil.Timestamp {
	return func() timeutil.Timestamp { return ts }
}

func malePro(uid models.Uid) models.Person {
	return models.Person{ID: uid, Name: "Noam", Sex: models.Male, Opinion: models.Pro}
}

func TestProcessCommitsThenDelivers(t *testing.T) {
	db := store.NewDB(store.NopCommitter{})
	db.Load([]models.UserState{models.Inactive{Person: malePro(1)}})

	dispatcher := &captureDispatcher{}
	d := NewDriver(db, dispatcher, WithClock(fixedClock(100)))

	err := d.Process(context.Background(), models.NewCallback(1, models.CmdImAvailableNow))
	require.NoError(t, err)

	require.Equal(t, 1, dispatcher.batchCount())
	batch := dispatcher.lastBatch()
	require.Len(t, batch, 1)
	assert.Equal(t, models.KindSearching, batch[0].Kind)

	s, ok := db.PeekState(1)
	require.True(t, ok)
	assert.Equal(t, models.Waiting{
		Person:         malePro(1),
		SearchingUntil: 160,
		NextRefresh:    105,
	}, s)
}

func TestProcessSkipsDeliveryWhenSilent(t *testing.T) {
	db := store.NewDB(store.NopCommitter{})
	db.Load([]models.UserState{models.Inactive{Person: malePro(1)}})

	dispatcher := &captureDispatcher{}
	d := NewDriver(db, dispatcher, WithClock(fixedClock(100)))

	// Tick on a user with no pending survey: the matcher discards it.
	require.NoError(t, d.Process(context.Background(), models.NewTick(1)))
	assert.Zero(t, dispatcher.batchCount())
}

func TestProcessDeliveryFailureIsNotFatal(t *testing.T) {
	db := store.NewDB(store.NopCommitter{})
	db.Load([]models.UserState{models.Inactive{Person: malePro(1)}})

	dispatcher := &captureDispatcher{err: errors.New("telegram unreachable")}
	d := NewDriver(db, dispatcher, WithClock(fixedClock(100)))

	err := d.Process(context.Background(), models.NewCallback(1, models.CmdImAvailableNow))
	require.NoError(t, err, "state is committed, delivery loss is acceptable")

	s, _ := db.PeekState(1)
	assert.IsType(t, models.Waiting{}, s)
}

type failingCommitter struct{}

func (failingCommitter) CommitBatch([]models.UserState, []store.LogEvent) error {
	return errors.New("write queue dead")
}

func TestProcessStorageFailureIsFatal(t *testing.T) {
	db := store.NewDB(failingCommitter{})
	db.Load([]models.UserState{models.Inactive{Person: malePro(1)}})

	dispatcher := &captureDispatcher{}
	d := NewDriver(db, dispatcher, WithClock(fixedClock(100)))

	err := d.Process(context.Background(), models.NewCallback(1, models.CmdImAvailableNow))
	require.ErrorIs(t, err, store.ErrStorageFailure)
	assert.Zero(t, dispatcher.batchCount(), "nothing is delivered on a failed commit")
}

func TestDriverProcessesEnqueuedUpdates(t *testing.T) {
	db := store.NewDB(store.NopCommitter{})
	dispatcher := &captureDispatcher{}
	d := NewDriver(db, dispatcher, WithClock(fixedClock(100)), WithQueueDepth(8))

	d.Start(context.Background())
	defer d.Stop()

	ok := d.Enqueue(context.Background(), models.NewStart(1, "Noam"))
	require.True(t, ok)

	require.Eventually(t, func() bool {
		return dispatcher.batchCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	batch := dispatcher.lastBatch()
	require.Len(t, batch, 2)
	assert.Equal(t, models.KindWelcome, batch[0].Kind)
	assert.Equal(t, models.KindAskOpinion, batch[1].Kind)
}

func TestDriverFiresDueTick(t *testing.T) {
	db := store.NewDB(store.NopCommitter{})
	db.Load([]models.UserState{models.Inactive{Person: malePro(1), SurveyAt: 50}})

	dispatcher := &captureDispatcher{}
	d := NewDriver(db, dispatcher, WithClock(fixedClock(100)))

	d.Start(context.Background())
	defer d.Stop()

	require.Eventually(t, func() bool {
		return dispatcher.batchCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	batch := dispatcher.lastBatch()
	require.Len(t, batch, 1)
	assert.Equal(t, models.KindHowWasTheCall, batch[0].Kind)

	// The survey fired once; the sched index must be empty now.
	_, ok := db.PeekFirstScheduled()
	assert.False(t, ok)
}

func TestDriverWaitsForFutureSched(t *testing.T) {
	db := store.NewDB(store.NopCommitter{})
	db.Load([]models.UserState{models.Inactive{Person: malePro(1), SurveyAt: 500}})

	dispatcher := &captureDispatcher{}
	d := NewDriver(db, dispatcher, WithClock(fixedClock(100)))

	d.Start(context.Background())
	time.Sleep(100 * time.Millisecond)
	d.Stop()

	assert.Zero(t, dispatcher.batchCount(), "sched at 500 must not fire at 100")
}

func TestDriverStorageFailureTerminatesLoop(t *testing.T) {
	db := store.NewDB(failingCommitter{})
	dispatcher := &captureDispatcher{}
	d := NewDriver(db, dispatcher, WithClock(fixedClock(100)))

	d.Start(context.Background())
	require.True(t, d.Enqueue(context.Background(), models.NewStart(1, "Noam")))

	require.Eventually(t, func() bool {
		return errors.Is(d.Err(), store.ErrStorageFailure)
	}, 2*time.Second, 10*time.Millisecond)

	d.Stop()
}

func TestDriverStorageFailureSignalsDoneAndRefusesWork(t *testing.T) {
	db := store.NewDB(failingCommitter{})
	dispatcher := &captureDispatcher{}
	d := NewDriver(db, dispatcher, WithClock(fixedClock(100)))

	d.Start(context.Background())
	require.True(t, d.Enqueue(context.Background(), models.NewStart(1, "Noam")))

	// The loop must not die silently: Done unblocks main's shutdown select.
	select {
	case <-d.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done not closed after fatal storage failure")
	}
	require.ErrorIs(t, d.Err(), store.ErrStorageFailure)

	assert.False(t, d.Enqueue(context.Background(), models.NewStart(2, "Dana")),
		"a dead driver must refuse further updates")

	d.Stop()
}

func TestStopIsIdempotent(t *testing.T) {
	db := store.NewDB(store.NopCommitter{})
	d := NewDriver(db, &captureDispatcher{}, WithClock(fixedClock(100)))

	d.Start(context.Background())
	d.Stop()
	d.Stop()

	assert.False(t, d.Enqueue(context.Background(), models.NewTick(1)),
		"enqueue after stop is refused")
	assert.NoError(t, d.Err())
}
