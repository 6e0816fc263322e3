package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bridgecall/bridgecall/pkg/models"
	"github.com/bridgecall/bridgecall/pkg/store"
)

const writeTimeout = 30 * time.Second

// Writer is the asynchronous persistence worker. The matcher commits its
// in-memory transaction first and hands the write batch here; the worker
// applies batches to Postgres in order, one database transaction per batch.
//
// A write failure latches the writer into a failed state: every later
// CommitBatch returns the error, the driver shuts down, and the operator
// restarts the process (which reloads the authoritative on-disk state).
type Writer struct {
	db      *sql.DB
	batches chan writeBatch

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu      sync.Mutex
	lastErr error
}

type writeBatch struct {
	states []models.UserState
	logs   []store.LogEvent
}

// NewWriter creates a writer over the given connection pool. depth bounds
// how many batches may be in flight before CommitBatch blocks.
func NewWriter(db *sql.DB, depth int) *Writer {
	if depth <= 0 {
		depth = 64
	}
	return &Writer{
		db:      db,
		batches: make(chan writeBatch, depth),
		stopCh:  make(chan struct{}),
	}
}

// Start launches the worker goroutine.
func (w *Writer) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run()
	}()
}

// Stop drains the queue, waits for the worker, and returns the latched
// error, if any. Call after the driver has stopped producing batches.
func (w *Writer) Stop() error {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
	return w.Err()
}

// Err returns the latched write error, if any.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

// CommitBatch implements store.Committer. It queues the batch and returns
// immediately; an error means the worker has failed and no further batches
// will be persisted.
func (w *Writer) CommitBatch(states []models.UserState, logs []store.LogEvent) error {
	if err := w.Err(); err != nil {
		return err
	}
	select {
	case w.batches <- writeBatch{states: states, logs: logs}:
		return nil
	case <-w.stopCh:
		return fmt.Errorf("persistence writer is stopped")
	}
}

func (w *Writer) run() {
	slog.Info("Persistence writer started")
	for {
		select {
		case batch := <-w.batches:
			w.handle(batch)
		case <-w.stopCh:
			// Drain whatever the matcher managed to queue before stopping.
			for {
				select {
				case batch := <-w.batches:
					w.handle(batch)
				default:
					slog.Info("Persistence writer stopped")
					return
				}
			}
		}
	}
}

func (w *Writer) handle(batch writeBatch) {
	if w.Err() != nil {
		// Already failed; discard so producers drain without blocking.
		return
	}
	if err := w.write(batch); err != nil {
		slog.Error("Persistence write failed, latching writer",
			"states", len(batch.states), "logs", len(batch.logs), "error", err)
		w.mu.Lock()
		w.lastErr = err
		w.mu.Unlock()
	}
}

func (w *Writer) write(batch writeBatch) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, state := range batch.states {
		encoded, err := models.EncodeState(state)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO states (uid, state) VALUES ($1, $2)
			ON CONFLICT (uid) DO UPDATE SET state = EXCLUDED.state`,
			int64(state.UID()), encoded)
		if err != nil {
			return fmt.Errorf("failed to upsert state for uid %d: %w", state.UID(), err)
		}
	}

	for _, event := range batch.logs {
		data, err := json.Marshal(event.Data)
		if err != nil {
			return fmt.Errorf("failed to encode log event %q: %w", event.Kind, err)
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO logs (ts, kind, data) VALUES ($1, $2, $3)",
			event.TS.Time(), event.Kind, data)
		if err != nil {
			return fmt.Errorf("failed to insert log event %q: %w", event.Kind, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}
