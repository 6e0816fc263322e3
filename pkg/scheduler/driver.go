// Package scheduler runs the single-threaded driver loop that feeds the
// matcher. Two producers — the webhook adapter and the internal timer — feed
// one consumer; the matcher is therefore never entered concurrently and
// needs no locking.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bridgecall/bridgecall/pkg/matcher"
	"github.com/bridgecall/bridgecall/pkg/models"
	"github.com/bridgecall/bridgecall/pkg/store"
	"github.com/bridgecall/bridgecall/pkg/timeutil"
)

// Dispatcher delivers the matcher's outbound messages. State is already
// committed when Deliver is called; a delivery error aborts the remainder of
// the batch but never rolls anything back.
type Dispatcher interface {
	Deliver(ctx context.Context, msgs []models.OutboundMessage) error
}

// Driver owns the scheduler loop.
type Driver struct {
	db         *store.DB
	dispatcher Dispatcher
	now        func() timeutil.Timestamp

	updates  chan models.InboundUpdate
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu      sync.Mutex
	lastErr error
}

// Option configures a Driver.
type Option func(*Driver)

// WithClock overrides the wall clock; tests use a fake.
func WithClock(now func() timeutil.Timestamp) Option {
	return func(d *Driver) { d.now = now }
}

// WithQueueDepth sets the inbound update buffer size.
func WithQueueDepth(n int) Option {
	return func(d *Driver) { d.updates = make(chan models.InboundUpdate, n) }
}

// NewDriver creates a driver over the given store and outbound dispatcher.
func NewDriver(db *store.DB, dispatcher Dispatcher, opts ...Option) *Driver {
	d := &Driver{
		db:         db,
		dispatcher: dispatcher,
		now:        timeutil.Now,
		updates:    make(chan models.InboundUpdate, 256),
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Enqueue hands an inbound update to the loop. Blocks only if the buffer is
// full; returns false once the driver is stopping.
func (d *Driver) Enqueue(ctx context.Context, upd models.InboundUpdate) bool {
	select {
	case <-d.stopCh:
		return false
	default:
	}
	select {
	case d.updates <- upd:
		return true
	case <-d.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

// Start runs the loop in a goroutine.
func (d *Driver) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(ctx)
	}()
}

// Stop signals the loop to exit and waits for it. Safe to call twice.
func (d *Driver) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
	d.wg.Wait()
}

// Done is closed when the driver is no longer accepting work, either
// because Stop was called or because the loop died on a fatal error.
// Err distinguishes the two.
func (d *Driver) Done() <-chan struct{} {
	return d.stopCh
}

// Err returns the error that terminated the loop, if any.
func (d *Driver) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

func (d *Driver) run(ctx context.Context) {
	slog.Info("Scheduler driver started")
	for {
		select {
		case <-d.stopCh:
			slog.Info("Scheduler driver stopped")
			return
		default:
		}

		// Fire a tick if the earliest scheduled user is due. Process
		// re-reads state inside its own transaction, so a stale probe
		// is harmless — the tick is simply discarded.
		if s, ok := d.db.PeekFirstScheduled(); ok {
			if sched, has := s.Sched(); has && !sched.After(d.now()) {
				if err := d.Process(ctx, models.NewTick(s.UID())); err != nil {
					d.fail(err)
					return
				}
				continue
			}
		}

		timer := d.waitTimer()
		select {
		case upd := <-d.updates:
			stopTimer(timer)
			if err := d.Process(ctx, upd); err != nil {
				d.fail(err)
				return
			}
		case <-timerC(timer):
			// Re-probe on the next iteration.
		case <-d.stopCh:
			stopTimer(timer)
			slog.Info("Scheduler driver stopped")
			return
		}
	}
}

// Process runs one matcher invocation: open a transaction, dispatch the
// update, commit, then deliver outbound messages. Storage failure is the
// only fatal error; delivery failures are logged and dropped.
func (d *Driver) Process(ctx context.Context, upd models.InboundUpdate) error {
	ts := d.now()

	tx := d.db.Begin()
	msgs := matcher.HandleUpdate(tx, ts, upd)
	if err := tx.Close(); err != nil {
		// ErrStorageFailure: the write queue is dead, this run is over.
		return err
	}

	if len(msgs) == 0 {
		return nil
	}
	if err := d.dispatcher.Deliver(ctx, msgs); err != nil {
		slog.Error("Outbound delivery failed, dropping remainder of batch",
			"uid", upd.UID, "error", err)
	}
	return nil
}

// fail records the fatal error and closes stopCh so Enqueue starts
// refusing updates and Done observers (main's shutdown select) wake up.
// Without the close the process would keep serving a dead engine.
func (d *Driver) fail(err error) {
	d.mu.Lock()
	d.lastErr = err
	d.mu.Unlock()
	slog.Error("Scheduler driver terminating", "error", err)
	d.stopOnce.Do(func() { close(d.stopCh) })
}

// waitTimer returns a timer firing at the earliest sched, or nil when
// nothing is scheduled (wait on inbound only).
func (d *Driver) waitTimer() *time.Timer {
	s, ok := d.db.PeekFirstScheduled()
	if !ok {
		return nil
	}
	sched, has := s.Sched()
	if !has {
		return nil
	}
	wait := sched.Sub(d.now()).Std()
	if wait < 0 {
		wait = 0
	}
	return time.NewTimer(wait)
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}
