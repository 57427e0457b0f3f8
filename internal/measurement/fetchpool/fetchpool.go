package fetchpool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Task is one download unit. Run must be safe to call from any worker.
type Task struct {
	Key string
	Run func() error
}

var (
	// ErrKeyRequired is returned when a task is missing a key.
	ErrKeyRequired = errors.New("task key is required")
	// ErrRunRequired is returned when a task is missing a run function.
	ErrRunRequired = errors.New("task run func is required")
	// ErrClosed indicates the fetch pool no longer accepts submissions.
	ErrClosed = errors.New("fetch pool is closed")
	// ErrQueueFull indicates the fetch pool queue is saturated.
	ErrQueueFull = errors.New("fetch pool queue is full")
)

// Stats reports fetch pool counters.
type Stats struct {
	Submitted  int64
	Completed  int64
	Failed     int64
	Rejected   int64
	InFlight   int64
	QueueDepth int64
}

// TaskError records one failed task by its key.
type TaskError struct {
	Key string
	Err error
}

func (e TaskError) Error() string { return fmt.Sprintf("fetch %s: %v", e.Key, e.Err) }

func (e TaskError) Unwrap() error { return e.Err }

// Pool fans download tasks out to a bounded set of workers.
type Pool struct {
	queue     chan Task
	wg        sync.WaitGroup
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
	inFlight  atomic.Int64
	closed    atomic.Bool
	mu        sync.Mutex
	failures  []TaskError
}

// New creates a pool with the given worker count and queue capacity.
func New(workers, capacity int) *Pool {
	if workers < 1 {
		workers = 4
	}
	if capacity < 1 {
		capacity = 64
	}
	p := &Pool{queue: make(chan Task, capacity)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// Submit enqueues a task or returns an error when saturated or closed.
func (p *Pool) Submit(task Task) error {
	if task.Key == "" {
		return fmt.Errorf("%w", ErrKeyRequired)
	}
	if task.Run == nil {
		return fmt.Errorf("%w", ErrRunRequired)
	}
	if p.closed.Load() {
		p.rejected.Add(1)
		return fmt.Errorf("%w", ErrClosed)
	}

	select {
	case p.queue <- task:
		p.submitted.Add(1)
		return nil
	default:
		p.rejected.Add(1)
		return fmt.Errorf("%w", ErrQueueFull)
	}
}

// Drain waits until queue and in-flight work are empty, then stops the
// workers. Further submissions are rejected with ErrClosed.
func (p *Pool) Drain(ctx context.Context) error {
	for {
		if len(p.queue) == 0 && p.inFlight.Load() == 0 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
	if p.closed.CompareAndSwap(false, true) {
		close(p.queue)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.wg.Wait()
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Failures returns the recorded task failures sorted by key.
func (p *Pool) Failures() []TaskError {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]TaskError, len(p.failures))
	copy(out, p.failures)
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Stats returns a snapshot of pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Submitted:  p.submitted.Load(),
		Completed:  p.completed.Load(),
		Failed:     p.failed.Load(),
		Rejected:   p.rejected.Load(),
		InFlight:   p.inFlight.Load(),
		QueueDepth: int64(len(p.queue)),
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.queue {
		p.inFlight.Add(1)
		if err := task.Run(); err != nil {
			p.failed.Add(1)
			p.recordFailure(TaskError{Key: task.Key, Err: err})
		}
		p.completed.Add(1)
		p.inFlight.Add(-1)
	}
}

func (p *Pool) recordFailure(failure TaskError) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = append(p.failures, failure)
}
