// Package queue provides the bounded, backpressured buffer that sits between
// bet producers and the worker pool.
package queue

import (
	"context"
	"sync"

	"github.com/atmx/bet-processor/internal/model"
)

// Queue is a bounded multi-producer, multi-consumer FIFO of bets.
//
// Enqueue blocks while the buffer is full. Close stops admission but leaves
// buffered bets for consumers, who see ok=false from Dequeue only once the
// queue is both closed and empty.
type Queue struct {
	ch chan model.Bet

	// mu is held shared by senders and exclusively by Close while it closes
	// ch, so no send can race a close of the channel.
	mu        sync.RWMutex
	done      chan struct{}
	closeOnce sync.Once
}

// New allocates a queue holding at most capacity bets.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		ch:   make(chan model.Bet, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue adds bet to the queue, waiting for free space if necessary.
//
// It returns false if the queue was closed before the call or is closed while
// waiting. If ctx ends first, Enqueue returns ctx.Err() and the bet is not
// buffered.
func (q *Queue) Enqueue(ctx context.Context, bet model.Bet) (bool, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	select {
	case <-q.done:
		return false, nil
	default:
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	select {
	case q.ch <- bet:
		return true, nil
	case <-q.done:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// TryEnqueue adds bet without waiting. It returns false when the queue is
// full or closed.
func (q *Queue) TryEnqueue(bet model.Bet) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	select {
	case <-q.done:
		return false
	default:
	}

	select {
	case q.ch <- bet:
		return true
	default:
		return false
	}
}

// Dequeue removes the oldest bet, waiting until one is available.
// ok is false once the queue is closed and drained. If ctx ends first,
// Dequeue returns ctx.Err().
func (q *Queue) Dequeue(ctx context.Context) (bet model.Bet, ok bool, err error) {
	select {
	case bet, ok = <-q.ch:
		return bet, ok, nil
	case <-ctx.Done():
		return model.Bet{}, false, ctx.Err()
	}
}

// Close stops admission. Safe to call more than once.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		// Wake blocked senders first so they release mu.
		close(q.done)
		q.mu.Lock()
		close(q.ch)
		q.mu.Unlock()
	})
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

// Len returns the number of buffered bets.
func (q *Queue) Len() int { return len(q.ch) }

// Cap returns the configured capacity.
func (q *Queue) Cap() int { return cap(q.ch) }
