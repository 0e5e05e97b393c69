// Package gradesync delivers accepted grades to the remote card service.
// The service allows one concurrent request per credential, so a single
// background worker drains a FIFO queue: one submission in flight at a
// time, transient failures retried in place with exponential backoff, and
// nothing silently dropped. An event that cannot be delivered ends up in
// the failed set reported with the session summary.
package gradesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/conorfennell/mochirev/internal/domain"
	"github.com/conorfennell/mochirev/internal/mochi"
)

// Submitter sends one grade to the remote card service.
type Submitter interface {
	SubmitGrade(ctx context.Context, cardID string, outcome domain.Outcome) error
}

// ErrClosed reports an enqueue after Close.
var ErrClosed = errors.New("gradesync: queue closed")

// FailedGrade is an event the queue gave up on, with the error that ended
// it and how many submission attempts were made.
type FailedGrade struct {
	Event    domain.GradeEvent
	Err      error
	Attempts int
}

// Options tunes the retry policy.
type Options struct {
	// MaxAttempts caps submissions per event, including the first.
	MaxAttempts int
	// InitialInterval is the first backoff delay; it doubles up to
	// MaxInterval.
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.InitialInterval <= 0 {
		o.InitialInterval = 500 * time.Millisecond
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = 10 * time.Second
	}
	return o
}

// Queue is the single-flight grade dispatcher. Create with New; it owns a
// background worker until Close.
type Queue struct {
	submitter Submitter
	opts      Options
	cancel    context.CancelFunc
	done      chan struct{}

	mu       sync.Mutex
	cond     *sync.Cond
	pending  []domain.GradeEvent
	drained  chan struct{} // non-nil while pending is non-empty
	failed   []FailedGrade
	synced   int
	poisoned error // set on auth failure; all later events fail fast
	closed   bool
}

// New creates a queue and starts its worker.
func New(submitter Submitter, opts Options) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		submitter: submitter,
		opts:      opts.withDefaults(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.run(ctx)
	return q
}

// Enqueue accepts an event for delivery. It never blocks; a second grade
// arriving while a dispatch is in flight simply waits its turn in FIFO
// order. Events enqueued after Close go straight to the failed set.
func (q *Queue) Enqueue(event domain.GradeEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.failed = append(q.failed, FailedGrade{Event: event, Err: ErrClosed})
		return
	}
	if len(q.pending) == 0 {
		q.drained = make(chan struct{})
	}
	q.pending = append(q.pending, event)
	q.cond.Signal()
}

// Pending counts events accepted but not yet confirmed synced, including
// the one in flight.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Synced counts events confirmed by the remote service.
func (q *Queue) Synced() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.synced
}

// Failed returns the events the queue gave up on, in the order they were
// abandoned.
func (q *Queue) Failed() []FailedGrade {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]FailedGrade, len(q.failed))
	copy(out, q.failed)
	return out
}

// Drain blocks until every accepted event has either synced or failed, or
// the context expires. Hosts that must exit promptly pass a deadline here
// rather than killing the worker mid-dispatch.
func (q *Queue) Drain(ctx context.Context) error {
	q.mu.Lock()
	ch := q.drained
	q.mu.Unlock()

	if ch == nil {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("gradesync: drain: %w", ctx.Err())
	}
}

// Close stops the worker. Call Drain first for a clean shutdown; closing
// with events still pending abandons them, which is the caller's explicit
// acceptance of data loss.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.cond.Signal()
	q.mu.Unlock()

	q.cancel()
	<-q.done
}

func (q *Queue) run(ctx context.Context) {
	defer close(q.done)

	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if q.closed {
			if n := len(q.pending); n > 0 {
				slog.Warn("grade queue closed with events pending", "pending", n)
			}
			q.mu.Unlock()
			return
		}
		event := q.pending[0]
		poisoned := q.poisoned
		q.mu.Unlock()

		var (
			attempts int
			err      error
		)
		if poisoned != nil {
			// A doomed credential wastes the single-concurrency budget;
			// fail fast without touching the network.
			err = poisoned
		} else {
			attempts, err = q.dispatch(ctx, event)
		}

		q.mu.Lock()
		q.pending = q.pending[1:]
		if err == nil {
			q.synced++
		} else {
			q.failed = append(q.failed, FailedGrade{Event: event, Err: err, Attempts: attempts})
			var apiErr *mochi.APIError
			if errors.As(err, &apiErr) && apiErr.Kind == mochi.KindAuth {
				q.poisoned = err
			}
			slog.Warn("grade sync failed",
				"card_id", event.CardID,
				"outcome", event.Outcome.String(),
				"attempts", attempts,
				"error", err,
			)
		}
		if len(q.pending) == 0 && q.drained != nil {
			close(q.drained)
			q.drained = nil
		}
		q.mu.Unlock()
	}
}

// dispatch submits one event, retrying transient failures with exponential
// backoff. The event keeps its place at the head of the queue throughout,
// so later events never jump ahead of a retrying one.
func (q *Queue) dispatch(ctx context.Context, event domain.GradeEvent) (int, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = q.opts.InitialInterval
	bo.MaxInterval = q.opts.MaxInterval
	bo.MaxElapsedTime = 0
	bo.Reset()

	var lastErr error
	for attempt := 1; ; attempt++ {
		err := q.submitter.SubmitGrade(ctx, event.CardID, event.Outcome)
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		var apiErr *mochi.APIError
		if !errors.As(err, &apiErr) || !apiErr.Transient() {
			return attempt, err
		}
		if attempt >= q.opts.MaxAttempts {
			return attempt, lastErr
		}

		delay := bo.NextBackOff()
		slog.Debug("retrying grade sync",
			"card_id", event.CardID,
			"attempt", attempt,
			"delay", delay,
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return attempt, fmt.Errorf("gradesync: %w", ctx.Err())
		}
	}
}
