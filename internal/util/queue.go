package util

import "sync"

// Queue is an unbounded FIFO that turns non-blocking Push calls from engine
// callbacks into an ordered channel. Push never blocks; items pushed after
// Close are dropped.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool

	notify chan struct{}
	out    chan T
	done   chan struct{}
	once   sync.Once
}

func NewQueue[T any]() *Queue[T] {
	q := &Queue[T]{
		notify: make(chan struct{}, 1),
		out:    make(chan T),
		done:   make(chan struct{}),
	}
	go q.pump()
	return q
}

func (q *Queue[T]) Push(item T) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, item)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// C is closed after Close once the pump stops.
func (q *Queue[T]) C() <-chan T { return q.out }

// Len returns the number of items not yet handed to the channel.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue[T]) Close() {
	q.once.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.items = nil
		q.mu.Unlock()
		close(q.done)
	})
}

func (q *Queue[T]) pump() {
	defer close(q.out)
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.mu.Unlock()
			select {
			case <-q.notify:
				continue
			case <-q.done:
				return
			}
		}
		item := q.items[0]
		var zero T
		q.items[0] = zero
		q.items = q.items[1:]
		q.mu.Unlock()

		select {
		case q.out <- item:
		case <-q.done:
			return
		}
	}
}
