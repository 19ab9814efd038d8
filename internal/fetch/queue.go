package fetch

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"

	"github.com/dyluth/xray/pkg/projectstore"
	"golang.org/x/sync/errgroup"
)

// ErrQueueClosed is returned by Submit once the queue has been stopped.
var ErrQueueClosed = errors.New("fetch queue is closed")

// Fetcher runs the fetch for one project. *Orchestrator implements it.
type Fetcher interface {
	FetchProject(ctx context.Context, ref projectstore.ProjectReference) Outcome
}

// QueueOptions configures a Queue.
type QueueOptions struct {
	Workers   int                   // Fixed worker count (default 2)
	Capacity  int                   // Pending jobs before Submit blocks (default 64)
	OnOutcome func(outcome Outcome) // Optional, called from the worker goroutine
}

// QueueStats is a snapshot of queue counters.
type QueueStats struct {
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Pending   int64 `json:"pending"`
}

// Queue is a bounded pool of fetch workers. Jobs accepted by Submit are always
// settled, including during Stop.
type Queue struct {
	fetcher   Fetcher
	jobs      chan projectstore.ProjectReference
	workers   int
	onOutcome func(Outcome)

	mu      sync.RWMutex
	closed  bool
	started bool
	pending sync.WaitGroup
	group   *errgroup.Group

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// NewQueue creates a queue. Call Start before submitting work.
func NewQueue(fetcher Fetcher, opts QueueOptions) *Queue {
	if opts.Workers < 1 {
		opts.Workers = 2
	}
	if opts.Capacity < 1 {
		opts.Capacity = 64
	}

	return &Queue{
		fetcher:   fetcher,
		jobs:      make(chan projectstore.ProjectReference, opts.Capacity),
		workers:   opts.Workers,
		onOutcome: opts.OnOutcome,
	}
}

// Start launches the workers. Fetches run under ctx; cancelling it makes
// in-progress GraphQL calls fail fast but does not stop the workers, which
// exit only after Stop has drained the queue.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.started {
		return
	}
	q.started = true

	q.group = &errgroup.Group{}
	for i := 0; i < q.workers; i++ {
		workerID := i
		q.group.Go(func() error {
			q.worker(ctx, workerID)
			return nil
		})
	}

	log.Printf("[Queue] Started %d fetch workers (capacity %d)", q.workers, cap(q.jobs))
}

func (q *Queue) worker(ctx context.Context, workerID int) {
	for ref := range q.jobs {
		outcome := q.fetcher.FetchProject(ctx, ref)

		if outcome.Succeeded() {
			q.completed.Add(1)
		} else {
			q.failed.Add(1)
		}

		if q.onOutcome != nil {
			q.onOutcome(outcome)
		}

		q.pending.Done()
	}

	log.Printf("[Queue] Worker %d exiting", workerID)
}

// Submit enqueues ref, blocking while the queue is full.
// Returns ErrQueueClosed after Stop, or ctx.Err() if ctx ends while waiting
// for room. A ref that fits in the buffer is always accepted, even when ctx
// is already done.
func (q *Queue) Submit(ctx context.Context, ref projectstore.ProjectReference) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.pending.Add(1)
	select {
	case q.jobs <- ref:
		q.submitted.Add(1)
		return nil
	default:
	}

	select {
	case q.jobs <- ref:
		q.submitted.Add(1)
		return nil
	case <-ctx.Done():
		q.pending.Done()
		return ctx.Err()
	}
}

// Wait blocks until every job submitted so far has settled.
func (q *Queue) Wait() {
	q.pending.Wait()
}

// Stop stops accepting work, drains accepted jobs and joins the workers.
// Safe to call multiple times.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	started := q.started
	q.mu.Unlock()

	if !started {
		return
	}

	_ = q.group.Wait()
	log.Printf("[Queue] Stopped (%d completed, %d failed)", q.completed.Load(), q.failed.Load())
}

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() QueueStats {
	completed := q.completed.Load()
	failed := q.failed.Load()
	submitted := q.submitted.Load()

	return QueueStats{
		Submitted: submitted,
		Completed: completed,
		Failed:    failed,
		Pending:   submitted - completed - failed,
	}
}
