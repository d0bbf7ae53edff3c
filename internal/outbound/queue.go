package outbound

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

type task struct {
	ctx    context.Context
	effect string
	jobID  string
	fn     func(context.Context) error
}

// Queue runs side effects on a fixed pool of workers so request handlers
// return as soon as the state change commits.
type Queue struct {
	tasks   chan task
	workers int
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewQueue creates a queue; call Start before Run.
func NewQueue(workers, size int, timeout time.Duration, logger *slog.Logger) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if size <= 0 {
		size = 100
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Queue{
		tasks:   make(chan task, size),
		workers: workers,
		timeout: timeout,
		logger:  logger,
	}
}

func (q *Queue) Start() {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
}

// Run enqueues the effect. The effect keeps the caller's context values
// but not its cancellation. A full or closed queue drops the effect.
func (q *Queue) Run(ctx context.Context, effect, jobID string, fn func(context.Context) error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		logger(q.logger).WarnContext(ctx, "side effect dropped", "effect", effect, "job_id", jobID, "error", errQueueClosed)
		return
	}
	select {
	case q.tasks <- task{ctx: context.WithoutCancel(ctx), effect: effect, jobID: jobID, fn: fn}:
	default:
		logger(q.logger).WarnContext(ctx, "side effect dropped", "effect", effect, "job_id", jobID, "error", errQueueFull)
	}
}

var (
	errQueueFull   = errors.New("queue full")
	errQueueClosed = errors.New("queue closed")
)

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	log := logger(q.logger).With("worker", id)
	log.Debug("outbound worker started")
	for t := range q.tasks {
		ctx, cancel := context.WithTimeout(t.ctx, q.timeout)
		err := safeCall(ctx, t.fn)
		cancel()
		if err != nil {
			log.WarnContext(t.ctx, "side effect failed", "effect", t.effect, "job_id", t.jobID, "error", err)
		}
	}
}

func safeCall(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("panic in side effect")
		}
	}()
	return fn(ctx)
}

// Shutdown stops accepting effects and waits for queued ones to finish
// or for ctx to end.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
