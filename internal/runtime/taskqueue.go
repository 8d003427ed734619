package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/felixgeelhaar/dreamer/internal/observe"
)

var (
	ErrQueueFull   = errors.New("task queue is full")
	ErrQueueClosed = errors.New("task queue is closed")
)

// DefaultTaskTimeout bounds a single background task.
const DefaultTaskTimeout = 2 * time.Minute

const errorBuffer = 64

// Task is a unit of background work.
type Task func(ctx context.Context) error

// TaskError reports a failed task. Failed tasks are never retried.
type TaskError struct {
	Name string
	Err  error
	At   time.Time
}

func (e TaskError) Error() string {
	return fmt.Sprintf("task %s: %v", e.Name, e.Err)
}

func (e TaskError) Unwrap() error {
	return e.Err
}

// DefaultBacklog is how many tasks may wait for a free worker.
const DefaultBacklog = 256

type job struct {
	name string
	task Task
}

// TaskQueue runs fire-and-forget work on a bounded goroutine pool,
// decoupled from the request that submitted it. Tasks beyond the pool size
// wait in a bounded backlog.
type TaskQueue struct {
	pool    *ants.Pool
	obs     *observe.Observer
	timeout time.Duration
	errs    chan TaskError
	backlog chan job

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

type QueueOption func(*queueOptions)

type queueOptions struct {
	backlog int
}

// WithBacklog sets how many tasks may wait for a worker before Submit
// returns ErrQueueFull.
func WithBacklog(n int) QueueOption {
	return func(o *queueOptions) {
		if n > 0 {
			o.backlog = n
		}
	}
}

// NewTaskQueue starts a pool of the given size. Submit never blocks: work
// waits in the backlog and only a full backlog is rejected.
func NewTaskQueue(workers int, obs *observe.Observer, opts ...QueueOption) (*TaskQueue, error) {
	if workers <= 0 {
		workers = 4
	}
	if obs == nil {
		obs = observe.Nop()
	}
	o := queueOptions{backlog: DefaultBacklog}
	for _, opt := range opts {
		opt(&o)
	}

	// The dispatcher is the only submitter, so a blocking pool just holds
	// it until a worker frees up.
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	q := &TaskQueue{
		pool:    pool,
		obs:     obs,
		timeout: DefaultTaskTimeout,
		errs:    make(chan TaskError, errorBuffer),
		backlog: make(chan job, o.backlog),
	}
	go q.dispatch()
	return q, nil
}

// SetTimeout changes the per-task deadline.
func (q *TaskQueue) SetTimeout(d time.Duration) {
	if d > 0 {
		q.timeout = d
	}
}

// Submit schedules task without waiting for it. The task gets its own
// context, detached from any request.
func (q *TaskQueue) Submit(name string, task Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	q.wg.Add(1)
	select {
	case q.backlog <- job{name: name, task: task}:
		return nil
	default:
		q.wg.Done()
		return ErrQueueFull
	}
}

func (q *TaskQueue) dispatch() {
	for j := range q.backlog {
		j := j
		err := q.pool.Submit(func() {
			defer q.wg.Done()
			q.run(j.name, j.task)
		})
		if err != nil {
			q.wg.Done()
			q.obs.Log().Error().Str("task", j.name).Err(err).Msg("background task dropped")
			q.report(TaskError{Name: j.name, Err: fmt.Errorf("%w: %v", ErrQueueClosed, err), At: time.Now()})
		}
	}
}

func (q *TaskQueue) run(name string, task Task) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return task(ctx)
	}()
	if err == nil {
		return
	}

	q.obs.Log().Error().Str("task", name).Err(err).Msg("background task failed")
	q.report(TaskError{Name: name, Err: err, At: time.Now()})
}

// report never blocks; when the buffer is full the oldest error is dropped.
func (q *TaskQueue) report(te TaskError) {
	for {
		select {
		case q.errs <- te:
			return
		default:
		}
		select {
		case <-q.errs:
		default:
		}
	}
}

// Errors delivers failed tasks.
func (q *TaskQueue) Errors() <-chan TaskError {
	return q.errs
}

// Running returns the number of tasks currently executing.
func (q *TaskQueue) Running() int {
	return q.pool.Running()
}

// Pending returns the number of tasks waiting in the backlog.
func (q *TaskQueue) Pending() int {
	return len(q.backlog)
}

// Wait blocks until every submitted task has finished.
func (q *TaskQueue) Wait() {
	q.wg.Wait()
}

// Shutdown stops accepting tasks and waits for queued and in-flight ones
// until ctx is done, then releases the pool.
func (q *TaskQueue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.backlog)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("task queue shutdown: %w", ctx.Err())
	}
	q.pool.Release()
	return err
}
