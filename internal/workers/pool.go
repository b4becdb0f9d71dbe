// Package workers provides a bounded goroutine pool for blocking backend
// calls (vector search, web search). The bounded queue doubles as admission
// control: when every worker is busy and the queue is full, Submit fails
// immediately instead of queueing unbounded work.
package workers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/tuvan0/tuvan/internal/log"
)

var (
	// ErrPoolClosed indicates the pool has been closed.
	ErrPoolClosed = errors.New("worker pool closed")

	// ErrPoolFull indicates the task queue is full.
	ErrPoolFull = errors.New("worker pool queue full")
)

// Task is a unit of work executed by a pool worker.
type Task func()

// Pool is a fixed-size worker pool with a bounded task queue.
type Pool struct {
	tasks  chan Task
	logger log.Logger

	closed atomic.Bool
	active atomic.Int64
	wg     sync.WaitGroup
	mu     sync.RWMutex
}

// New creates a pool with the given worker count and queue size and starts
// its workers. Values below 1 are clamped to 1.
func New(workerCount, queueSize int, logger log.Logger) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	if logger == nil {
		logger = log.NewNop()
	}

	p := &Pool{
		tasks:  make(chan Task, queueSize),
		logger: logger,
	}

	p.wg.Add(workerCount)
	for range workerCount {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(task)
	}
}

// run executes one task, containing any panic so a faulty backend call
// cannot take the worker (and with it the process) down.
func (p *Pool) run(task Task) {
	p.active.Add(1)
	defer p.active.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked", "panic", r)
		}
	}()
	task()
}

// Submit enqueues a task. It fails fast with ErrPoolFull when the queue is
// full, and with the context error when ctx is already done.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	if task == nil {
		return errors.New("nil task")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	// The read lock pins the channel open: Close cannot close it between
	// the closed check and the send.
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed.Load() {
		return ErrPoolClosed
	}

	select {
	case p.tasks <- task:
		return nil
	default:
		p.logger.Warn("task queue full, rejecting work", "queue_cap", cap(p.tasks))
		return ErrPoolFull
	}
}

// Active returns the number of tasks currently executing.
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Close stops accepting tasks and waits for in-flight tasks to finish.
// Safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed.Swap(true) {
		p.mu.Unlock()
		return
	}
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
}
