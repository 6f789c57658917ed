package proxypool

import (
	"context"
	"sync"
)

// queue is an unbounded FIFO of proxies. Pushes never block, so validators
// and fetchers can always hand a proxy back; Pop blocks until an item
// arrives or ctx ends.
type queue struct {
	mu    sync.Mutex
	items []Proxy
	// ready is closed and replaced on every Push to wake blocked Pops
	ready chan struct{}
}

func newQueue() *queue {
	return &queue{ready: make(chan struct{})}
}

func (q *queue) Push(p Proxy) {
	q.mu.Lock()
	q.items = append(q.items, p)
	close(q.ready)
	q.ready = make(chan struct{})
	q.mu.Unlock()
}

// TryPop removes the head without blocking
func (q *queue) TryPop() (Proxy, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

func (q *queue) popLocked() (Proxy, bool) {
	if len(q.items) == 0 {
		return Proxy{}, false
	}
	p := q.items[0]
	q.items[0] = Proxy{}
	q.items = q.items[1:]
	return p, true
}

// Pop removes the head, waiting for one if the queue is empty
func (q *queue) Pop(ctx context.Context) (Proxy, error) {
	for {
		q.mu.Lock()
		if p, ok := q.popLocked(); ok {
			q.mu.Unlock()
			return p, nil
		}
		ready := q.ready
		q.mu.Unlock()

		select {
		case <-ready:
		case <-ctx.Done():
			return Proxy{}, ctx.Err()
		}
	}
}

func (q *queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
