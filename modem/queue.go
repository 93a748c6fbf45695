package modem

import (
	"context"
	"sync"
)

// IndexQueue is a FIFO of SIM storage indices. It neither reorders nor
// deduplicates and is safe for one producer and any number of consumers.
type IndexQueue struct {
	mu     sync.Mutex
	items  []int
	notify chan struct{}
}

func NewIndexQueue() *IndexQueue {
	return &IndexQueue{notify: make(chan struct{}, 1)}
}

func (q *IndexQueue) Push(index int) {
	q.mu.Lock()
	q.items = append(q.items, index)
	q.mu.Unlock()
	q.signal()
}

// Pop removes the oldest index without blocking.
func (q *IndexQueue) Pop() (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return 0, false
	}
	index := q.items[0]
	q.items = q.items[1:]
	if len(q.items) > 0 {
		// hand the wake-up on to the next waiting consumer
		q.signal()
	}
	return index, true
}

// Wait removes the oldest index, blocking until one is available or ctx is
// done.
func (q *IndexQueue) Wait(ctx context.Context) (int, error) {
	for {
		if index, ok := q.Pop(); ok {
			return index, nil
		}
		select {
		case <-q.notify:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

func (q *IndexQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *IndexQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
