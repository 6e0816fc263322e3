package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bridgecall/bridgecall/pkg/models"
	"github.com/bridgecall/bridgecall/pkg/timeutil"
)

func pro(uid models.Uid) models.Person {
	return models.Person{ID: uid, Name: "Pro", Sex: models.Male, Opinion: models.Pro}
}

func con(uid models.Uid) models.Person {
	return models.Person{ID: uid, Name: "Con", Sex: models.Female, Opinion: models.Con}
}

func set(t *testing.T, db *DB, states ...models.UserState) {
	t.Helper()
	tx := db.Begin()
	for _, s := range states {
		tx.Set(s)
	}
	require.NoError(t, tx.Close())
}

func TestScoreOrdering(t *testing.T) {
	waiting := Score{Class: 1, Tiebreak: 160}
	asking := Score{Class: 2, Tiebreak: 119}
	active := Score{Class: 3, Tiebreak: -90}

	assert.True(t, waiting.Less(asking))
	assert.True(t, asking.Less(active))
	assert.False(t, active.Less(waiting))

	// Within Waiting, closer deadline wins.
	assert.True(t, Score{Class: 1, Tiebreak: 100}.Less(Score{Class: 1, Tiebreak: 160}))
	// Within Active, more recent activity wins (negated since).
	assert.True(t, Score{Class: 3, Tiebreak: -200}.Less(Score{Class: 3, Tiebreak: -90}))
}

func TestSearchScoreEligibility(t *testing.T) {
	_, ok := SearchScore(models.Inactive{Person: pro(1)}, models.Pro)
	assert.False(t, ok, "Inactive is never a candidate")

	_, ok = SearchScore(models.Waiting{Person: pro(1), SearchingUntil: 160, NextRefresh: 105}, models.Con)
	assert.False(t, ok, "wrong opinion")

	score, ok := SearchScore(models.Waiting{Person: pro(1), SearchingUntil: 160, NextRefresh: 105}, models.Pro)
	require.True(t, ok)
	assert.Equal(t, Score{Class: 1, Tiebreak: 160}, score)

	// An Asking user with a runner-up reservation is off the market.
	_, ok = SearchScore(models.Asking{
		Person: pro(1), SearchingUntil: 160, NextRefresh: 105,
		AskedUID: 2, AskingUntil: 119, WaitedBy: 3,
	}, models.Pro)
	assert.False(t, ok)
}

func TestTxGetReturnsVirtualInitial(t *testing.T) {
	db := NewDB(NopCommitter{})
	tx := db.Begin()
	defer func() { require.NoError(t, tx.Close()) }()

	state := tx.Get(42)
	assert.Equal(t, models.Initial{ID: 42}, state)
}

func TestTxSetVisibleWithinTransaction(t *testing.T) {
	db := NewDB(NopCommitter{})
	tx := db.Begin()
	tx.Set(models.Active{Person: pro(1), Since: 90})
	assert.Equal(t, models.Active{Person: pro(1), Since: 90}, tx.Get(1))
	require.NoError(t, tx.Close())
}

func TestSearchForUserPriorityOrder(t *testing.T) {
	db := NewDB(NopCommitter{})
	set(t, db,
		models.Active{Person: pro(1), Since: 90},
		models.Asking{Person: pro(2), SearchingUntil: 160, NextRefresh: 105, AskedUID: 9, AskingUntil: 119},
		models.Waiting{Person: pro(3), SearchingUntil: 150, NextRefresh: 105},
		models.Asked{Person: pro(9), Until: 119, AskedBy: 2},
	)

	tx := db.Begin()
	defer func() { require.NoError(t, tx.Close()) }()

	best := tx.SearchForUser(models.Pro)
	require.IsType(t, models.Waiting{}, best)
	assert.Equal(t, models.Uid(3), best.UID(), "Waiting beats Asking beats Active")

	assert.Nil(t, tx.SearchForUser(models.Con), "no candidates on the other side")
}

func TestSearchForUserActiveTiebreak(t *testing.T) {
	db := NewDB(NopCommitter{})
	set(t, db,
		models.Active{Person: pro(1), Since: 50},
		models.Active{Person: pro(2), Since: 200},
	)

	tx := db.Begin()
	defer func() { require.NoError(t, tx.Close()) }()

	best := tx.SearchForUser(models.Pro)
	assert.Equal(t, models.Uid(2), best.UID(), "most recently active wins")
}

func TestFirstScheduledAndPeek(t *testing.T) {
	db := NewDB(NopCommitter{})

	_, ok := db.PeekFirstScheduled()
	assert.False(t, ok)

	set(t, db,
		models.Asked{Person: pro(1), Until: 119, AskedBy: 2},
		models.Asking{Person: con(2), SearchingUntil: 160, NextRefresh: 105, AskedUID: 1, AskingUntil: 119},
		models.Inactive{Person: pro(3), SurveyAt: 80},
	)

	s, ok := db.PeekFirstScheduled()
	require.True(t, ok)
	assert.Equal(t, models.Uid(3), s.UID(), "earliest sched wins")

	tx := db.Begin()
	first := tx.FirstScheduled()
	require.NotNil(t, first)
	assert.Equal(t, models.Uid(3), first.UID())
	require.NoError(t, tx.Close())
}

func TestTransitionMaintainsIndexes(t *testing.T) {
	db := NewDB(NopCommitter{})
	set(t, db, models.Waiting{Person: pro(1), SearchingUntil: 160, NextRefresh: 105})
	require.NoError(t, db.CheckInvariants())

	// Waiting → Inactive removes the user from both indexes.
	set(t, db, models.Inactive{Person: pro(1)})
	require.NoError(t, db.CheckInvariants())

	tx := db.Begin()
	assert.Nil(t, tx.SearchForUser(models.Pro))
	require.NoError(t, tx.Close())
	_, ok := db.PeekFirstScheduled()
	assert.False(t, ok)
}

// Rebuilding the indexes from a snapshot must agree with the indexes
// maintained incrementally through arbitrary transitions.
func TestRebuildEqualsIncremental(t *testing.T) {
	db := NewDB(NopCommitter{})

	set(t, db,
		models.Waiting{Person: pro(1), SearchingUntil: 160, NextRefresh: 105},
		models.Active{Person: con(2), Since: 90},
	)
	// Mutate: 1 asks 2, then 1 matches elsewhere and both go Inactive,
	// then 2 becomes Active again.
	set(t, db,
		models.Asking{Person: pro(1), SearchingUntil: 160, NextRefresh: 105, AskedUID: 2, AskingUntil: 119},
		models.Asked{Person: con(2), Until: 119, AskedBy: 1},
	)
	set(t, db,
		models.Inactive{Person: pro(1), SurveyAt: 200},
		models.Active{Person: con(2), Since: 140},
	)
	require.NoError(t, db.CheckInvariants())

	snapshot := db.Snapshot()
	rebuilt := NewDB(NopCommitter{})
	states := make([]models.UserState, 0, len(snapshot))
	for _, s := range snapshot {
		states = append(states, s)
	}
	rebuilt.Load(states)
	require.NoError(t, rebuilt.CheckInvariants())

	assert.Equal(t, snapshot, rebuilt.Snapshot())
	a, aok := db.PeekFirstScheduled()
	b, bok := rebuilt.PeekFirstScheduled()
	assert.Equal(t, aok, bok)
	assert.Equal(t, a, b)
}

func TestLoadReplacesEverything(t *testing.T) {
	db := NewDB(NopCommitter{})
	set(t, db, models.Active{Person: pro(1), Since: 90})

	db.Load([]models.UserState{models.Active{Person: con(5), Since: 10}})
	require.NoError(t, db.CheckInvariants())

	snapshot := db.Snapshot()
	assert.Len(t, snapshot, 1)
	assert.Contains(t, snapshot, models.Uid(5))
}

type recordingCommitter struct {
	batches [][]models.UserState
	logs    [][]LogEvent
	err     error
}

func (r *recordingCommitter) CommitBatch(states []models.UserState, logs []LogEvent) error {
	if r.err != nil {
		return r.err
	}
	r.batches = append(r.batches, states)
	r.logs = append(r.logs, logs)
	return nil
}

func TestCloseCommitsInSetOrder(t *testing.T) {
	committer := &recordingCommitter{}
	db := NewDB(committer)

	tx := db.Begin()
	tx.Set(models.Active{Person: pro(2), Since: 90})
	tx.Set(models.Active{Person: con(1), Since: 91})
	// Re-set of uid 2: batch carries the final value, once, in first-set order.
	tx.Set(models.Inactive{Person: pro(2)})
	tx.Log(100, "match", map[string]any{"a": 1, "b": 2})
	require.NoError(t, tx.Close())

	require.Len(t, committer.batches, 1)
	batch := committer.batches[0]
	require.Len(t, batch, 2)
	assert.Equal(t, models.Uid(2), batch[0].UID())
	assert.IsType(t, models.Inactive{}, batch[0])
	assert.Equal(t, models.Uid(1), batch[1].UID())

	require.Len(t, committer.logs[0], 1)
	assert.Equal(t, "match", committer.logs[0][0].Kind)
	assert.Equal(t, timeutil.Timestamp(100), committer.logs[0][0].TS)
}

func TestEmptyTransactionSkipsCommit(t *testing.T) {
	committer := &recordingCommitter{}
	db := NewDB(committer)

	tx := db.Begin()
	_ = tx.Get(1)
	require.NoError(t, tx.Close())
	assert.Empty(t, committer.batches)
}

func TestStorageFailureLatches(t *testing.T) {
	committer := &recordingCommitter{err: errors.New("disk on fire")}
	db := NewDB(committer)

	tx := db.Begin()
	tx.Set(models.Active{Person: pro(1), Since: 90})
	err := tx.Close()
	require.ErrorIs(t, err, ErrStorageFailure)

	// The in-memory effect stays applied even though the commit failed.
	tx = db.Begin()
	assert.IsType(t, models.Active{}, tx.Get(1))
	tx.Set(models.Inactive{Person: pro(1)})
	assert.ErrorIs(t, tx.Close(), ErrStorageFailure, "failure is sticky")
}

func TestCheckInvariantsCatchesAsymmetry(t *testing.T) {
	db := NewDB(NopCommitter{})
	// Asking points at uid 2, but uid 2 does not point back.
	set(t, db,
		models.Asking{Person: pro(1), SearchingUntil: 160, NextRefresh: 105, AskedUID: 2, AskingUntil: 119},
		models.Active{Person: con(2), Since: 90},
	)
	assert.Error(t, db.CheckInvariants())
}
