// Package workerpool runs a fixed number of workers over a job channel. Each
// worker leaves when it reads its own stop message, and the last one to
// leave closes the results channel.
package workerpool

import (
	"context"
	"sync/atomic"

	"weibocrawl/pkg/logger"
)

// Handler processes one job. Returning false drops the result.
type Handler[J, R any] func(ctx context.Context, workerID int, job J) (R, bool)

// message is either a job or a stop signal for exactly one worker
type message[J any] struct {
	job  J
	stop bool
}

// Pool manages numWorkers workers reading from a bounded job queue
type Pool[J, R any] struct {
	numWorkers int
	jobQueue   chan message[J]
	results    chan R
	handler    Handler[J, R]
	onExit     func(workerID int)
	logger     logger.Logger

	started   atomic.Bool
	remaining atomic.Int64
	stopped   atomic.Bool
}

// New creates a pool whose job queue holds twice as many jobs as there are
// workers
func New[J, R any](numWorkers int, handler Handler[J, R], log logger.Logger) *Pool[J, R] {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Pool[J, R]{
		numWorkers: numWorkers,
		jobQueue:   make(chan message[J], numWorkers*2),
		results:    make(chan R, numWorkers),
		handler:    handler,
		logger:     log.WithField("component", "workerpool"),
	}
}

// OnExit registers fn to run as each worker leaves. Must be called before
// Start.
func (p *Pool[J, R]) OnExit(fn func(workerID int)) {
	p.onExit = fn
}

// Start launches the workers. Workers also leave when ctx ends.
func (p *Pool[J, R]) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	p.logger.InfoWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": p.numWorkers,
	})
	p.remaining.Store(int64(p.numWorkers))
	for i := 0; i < p.numWorkers; i++ {
		go p.worker(ctx, i)
	}
}

// Submit queues job, blocking while the queue is full
func (p *Pool[J, R]) Submit(ctx context.Context, job J) error {
	select {
	case p.jobQueue <- message[J]{job: job}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop queues one stop message per worker behind the submitted jobs. It
// does not wait; drain Results until it is closed.
func (p *Pool[J, R]) Stop(ctx context.Context) error {
	if !p.stopped.CompareAndSwap(false, true) {
		return nil
	}
	for i := 0; i < p.numWorkers; i++ {
		select {
		case p.jobQueue <- message[J]{stop: true}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Results is closed after the last worker exits
func (p *Pool[J, R]) Results() <-chan R {
	return p.results
}

// running returns the number of workers that have not exited
func (p *Pool[J, R]) running() int {
	return int(p.remaining.Load())
}

// queued returns the number of messages waiting for a worker
func (p *Pool[J, R]) queued() int {
	return len(p.jobQueue)
}

func (p *Pool[J, R]) worker(ctx context.Context, id int) {
	defer func() {
		if p.remaining.Add(-1) == 0 {
			close(p.results)
			p.logger.Info("Worker pool stopped")
		}
	}()
	if p.onExit != nil {
		defer p.onExit(id)
	}

	p.logger.DebugWithFields("Worker started", map[string]interface{}{"worker_id": id})

	for {
		var msg message[J]
		select {
		case msg = <-p.jobQueue:
		case <-ctx.Done():
			p.logger.DebugWithFields("Worker stopping - context cancelled", map[string]interface{}{"worker_id": id})
			return
		}
		if msg.stop {
			p.logger.DebugWithFields("Worker stopping - stop message", map[string]interface{}{"worker_id": id})
			return
		}

		result, ok := p.handler(ctx, id, msg.job)
		if !ok {
			continue
		}
		select {
		case p.results <- result:
		case <-ctx.Done():
			p.logger.DebugWithFields("Worker stopping - context cancelled while sending result", map[string]interface{}{"worker_id": id})
			return
		}
	}
}
