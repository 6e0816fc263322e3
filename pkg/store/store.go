// Package store owns the in-memory user-state map, the two derived priority
// indexes, and the transaction layer the matcher runs inside.
//
// The indexes are strictly derived from the state map: byScore holds, per
// opinion, every uid whose search score is defined; bySched holds every uid
// whose state wants a scheduler tick. They can be rebuilt from scratch at any
// time and the result must equal incremental maintenance — tests rely on it.
package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bridgecall/bridgecall/pkg/models"
	"github.com/bridgecall/bridgecall/pkg/timeutil"
)

// ErrStorageFailure is returned by Tx.Close once the persistence writer has
// failed. The driver must stop; the operator restarts the process.
var ErrStorageFailure = errors.New("store: persistence writer failed")

// LogEvent is one structured entry for the append-only event trail.
type LogEvent struct {
	TS   timeutil.Timestamp
	Kind string
	Data map[string]any
}

// Committer receives the per-transaction write batch. Implementations queue
// the batch for asynchronous persistence; an error reports that the writer is
// dead and no further batches will be accepted.
type Committer interface {
	CommitBatch(states []models.UserState, logs []LogEvent) error
}

// NopCommitter discards batches. Used by tests and the dev REPL.
type NopCommitter struct{}

// CommitBatch implements Committer.
func (NopCommitter) CommitBatch([]models.UserState, []LogEvent) error { return nil }

// DB is the in-memory store. All writes go through a transaction; the only
// read allowed outside one is PeekFirstScheduled, the scheduler's probe.
type DB struct {
	mu        sync.Mutex
	states    map[models.Uid]models.UserState
	byScore   map[models.Opinion]*priorityMap[Score]
	bySched   *priorityMap[timeutil.Timestamp]
	committer Committer
	failed    bool
}

// NewDB creates an empty store committing batches to the given Committer.
func NewDB(committer Committer) *DB {
	db := &DB{
		states:    make(map[models.Uid]models.UserState),
		byScore:   make(map[models.Opinion]*priorityMap[Score]),
		bySched:   newPriorityMap[timeutil.Timestamp](func(a, b timeutil.Timestamp) bool { return a < b }),
		committer: committer,
	}
	for _, opinion := range models.Opinions {
		db.byScore[opinion] = newPriorityMap[Score](Score.Less)
	}
	return db
}

// Load replaces the state map with the given states and rebuilds both
// indexes. Called once on boot, before the driver starts.
func (db *DB) Load(states []models.UserState) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.states = make(map[models.Uid]models.UserState, len(states))
	for _, opinion := range models.Opinions {
		db.byScore[opinion] = newPriorityMap[Score](Score.Less)
	}
	db.bySched = newPriorityMap[timeutil.Timestamp](func(a, b timeutil.Timestamp) bool { return a < b })
	for _, s := range states {
		db.apply(s)
	}
}

// apply updates the state map and both indexes. Caller holds db.mu.
func (db *DB) apply(state models.UserState) {
	uid := state.UID()
	db.states[uid] = state

	if sched, ok := state.Sched(); ok {
		db.bySched.Upsert(uid, sched)
	} else {
		db.bySched.Remove(uid)
	}
	for _, opinion := range models.Opinions {
		if score, ok := SearchScore(state, opinion); ok {
			db.byScore[opinion].Upsert(uid, score)
		} else {
			db.byScore[opinion].Remove(uid)
		}
	}
}

func (db *DB) get(uid models.Uid) models.UserState {
	if s, ok := db.states[uid]; ok {
		return s
	}
	return models.Initial{ID: uid}
}

// PeekFirstScheduled returns the earliest scheduled state without opening a
// transaction. The driver uses it to compute its sleep deadline; any action
// taken on the result goes through a fresh transaction that re-reads state.
func (db *DB) PeekFirstScheduled() (models.UserState, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	uid, ok := db.bySched.Top()
	if !ok {
		return nil, false
	}
	return db.states[uid], true
}

// PeekState returns the current state for uid without a transaction.
// Used by the outbound adapter to fetch the recipient's profile for
// gendered-text rendering; writes still require a transaction.
func (db *DB) PeekState(uid models.Uid) (models.UserState, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	s, ok := db.states[uid]
	return s, ok
}

// Snapshot returns a copy of the full state map. Test helper: states are
// immutable values, so sharing them is safe.
func (db *DB) Snapshot() map[models.Uid]models.UserState {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make(map[models.Uid]models.UserState, len(db.states))
	for uid, s := range db.states {
		out[uid] = s
	}
	return out
}

// Begin opens a transaction. Only one transaction may be open at a time;
// the matcher is single-threaded so this never blocks in practice.
func (db *DB) Begin() *Tx {
	db.mu.Lock()
	return &Tx{db: db}
}

// Tx is a read/write view over the store. Set calls apply to the in-memory
// map immediately (reads inside the transaction observe them) and are
// accumulated; Close hands the batch to the persistence collaborator.
// Transactions are non-cancellable: what was applied in memory stays applied
// even if the caller errors — Close still commits the batch.
type Tx struct {
	db     *DB
	order  []models.Uid
	dirty  map[models.Uid]bool
	logs   []LogEvent
	closed bool
}

// Get returns the current state for uid, or virtual Initial if absent.
func (tx *Tx) Get(uid models.Uid) models.UserState {
	return tx.db.get(uid)
}

// Set transitions uid to the given state, updating both indexes.
func (tx *Tx) Set(state models.UserState) {
	tx.db.apply(state)
	uid := state.UID()
	if tx.dirty == nil {
		tx.dirty = make(map[models.Uid]bool)
	}
	if !tx.dirty[uid] {
		tx.dirty[uid] = true
		tx.order = append(tx.order, uid)
	}
}

// SearchForUser returns the best candidate holding the given opinion, or nil.
// The result is always Waiting, Asking, or Active — the only states with a
// defined search score.
func (tx *Tx) SearchForUser(opinion models.Opinion) models.UserState {
	uid, ok := tx.db.byScore[opinion].Top()
	if !ok {
		return nil
	}
	state := tx.db.states[uid]
	switch state.(type) {
	case models.Waiting, models.Asking, models.Active:
		return state
	}
	panic(fmt.Sprintf("index coherence violated: uid %d scored but in state %T", uid, state))
}

// FirstScheduled returns the state with the earliest sched, or nil.
func (tx *Tx) FirstScheduled() models.UserState {
	uid, ok := tx.db.bySched.Top()
	if !ok {
		return nil
	}
	return tx.db.states[uid]
}

// Log appends a structured event to the transaction's trail.
func (tx *Tx) Log(ts timeutil.Timestamp, kind string, data map[string]any) {
	tx.logs = append(tx.logs, LogEvent{TS: ts, Kind: kind, Data: data})
}

// Close hands the accumulated batch to the committer and releases the
// transaction. Returns ErrStorageFailure once the writer has failed; the
// in-memory effects of this transaction remain applied regardless.
func (tx *Tx) Close() error {
	if tx.closed {
		return nil
	}
	tx.closed = true
	defer tx.db.mu.Unlock()

	if tx.db.failed {
		return ErrStorageFailure
	}
	if len(tx.order) == 0 && len(tx.logs) == 0 {
		return nil
	}
	batch := make([]models.UserState, 0, len(tx.order))
	for _, uid := range tx.order {
		batch = append(batch, tx.db.states[uid])
	}
	if err := tx.db.committer.CommitBatch(batch, tx.logs); err != nil {
		tx.db.failed = true
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	return nil
}
