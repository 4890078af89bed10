// Package workerpool implements the dispatch fabric's fixed worker pool:
// W workers, each bound to exactly one bounded task queue, dispatched to by
// a plain round-robin counter. Unlike the teacher's work-stealing pool this
// pool never moves a task between queues after it is enqueued — spec.md's
// concurrency model requires "no work-stealing" so that backpressure stays
// local to the queue a task landed on.
package workerpool

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cppservergit/apiserver2/internal/queue"
)

// Task is a unit of dispatched work: a finalized request handed to a
// worker for execution.
type Task func()

// Pool holds W workers, each consuming exactly one of W bounded queues.
type Pool struct {
	numWorkers int
	queues     []*queue.Queue[Task]
	next       atomic.Uint64

	submitted atomic.Uint64
	completed atomic.Uint64

	log *slog.Logger
}

// New creates a Pool of numWorkers workers, each with a queue bounded at
// queueCapacity tasks, and starts the worker goroutines immediately.
func New(numWorkers, queueCapacity int, log *slog.Logger) *Pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if log == nil {
		log = slog.Default()
	}
	p := &Pool{
		numWorkers: numWorkers,
		queues:     make([]*queue.Queue[Task], numWorkers),
		log:        log,
	}
	for i := 0; i < numWorkers; i++ {
		p.queues[i] = queue.New[Task](queueCapacity)
	}
	for i := 0; i < numWorkers; i++ {
		go p.workerLoop(i)
	}
	return p
}

// Submit dispatches task to the next queue in round-robin order. It
// returns queue.ErrFull if that queue is saturated — the caller (the I/O
// reactor) translates this into a 503 response rather than retrying
// another worker's queue, since failover would reintroduce the
// work-stealing behavior spec.md forbids.
func (p *Pool) Submit(task Task) error {
	idx := int(p.next.Add(1)-1) % p.numWorkers
	if err := p.queues[idx].TryPush(task); err != nil {
		return err
	}
	p.submitted.Add(1)
	return nil
}

func (p *Pool) workerLoop(idx int) {
	q := p.queues[idx]
	for {
		task, ok := q.WaitAndPop()
		if !ok {
			return
		}
		p.runTask(task)
		p.completed.Add(1)
	}
}

// runTask executes task, recovering a panic at this dispatch boundary so a
// single misbehaving handler never takes down a worker goroutine.
func (p *Pool) runTask(task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("worker panic recovered", "panic", r)
		}
	}()
	task()
}

// Close stops every queue and lets in-flight workers drain naturally; it
// does not block for worker goroutines to exit (callers wanting a full
// drain should poll Pending until it reaches zero first).
func (p *Pool) Close() {
	for _, q := range p.queues {
		q.Stop()
	}
}

// Stats reports pool-wide counters: worker count, submitted and completed
// totals, and current queue depth.
type Stats struct {
	NumWorkers int
	Submitted  uint64
	Completed  uint64
	Pending    uint64
}

// Stats returns a snapshot, summing pending tasks across all per-worker
// queues the way thread_pool::get_total_pending_tasks does.
func (p *Pool) Stats() Stats {
	return Stats{
		NumWorkers: p.numWorkers,
		Submitted:  p.submitted.Load(),
		Completed:  p.completed.Load(),
		Pending:    p.QueuedTasks(),
	}
}

// QueuedTasks sums tasks still sitting in a queue, not counting one a
// worker has already popped off and is executing — the same depth
// thread_pool::get_total_pending_tasks reports, used for /metrics'
// pending_tasks field to keep that number matching the original.
func (p *Pool) QueuedTasks() uint64 {
	var queued uint64
	for _, q := range p.queues {
		queued += uint64(q.Len())
	}
	return queued
}

// Pending returns the number of tasks submitted but not yet completed —
// queued AND currently executing — used by the shard's shutdown drain
// loop to decide when it is safe to stop servicing write events. Unlike
// Stats().Pending (queue depth only, for /metrics' pending_tasks), this
// must also count a task a worker has already popped off its queue and
// is still running, or the drain could stop before that task's response
// is ever pushed to the response queue.
func (p *Pool) Pending() uint64 {
	return p.submitted.Load() - p.completed.Load()
}

// Drain blocks until every queue is empty and no submitted task remains
// pending, or until ctx is cancelled. The shard's shutdown drain polls
// Pending itself and does not call this.
func (p *Pool) Drain(ctx context.Context) {
	for {
		if p.Pending() == 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Millisecond):
		}
	}
}
