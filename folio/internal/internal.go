// Package internal provides the lock-free mailbox that serializes commit
// batches onto the single write goroutine.
//
// The mailbox is a multi-producer single-consumer queue: any number of
// goroutines may Post concurrently, one consumer drains via the C channel.
// It is unbounded; back-pressure is the consumer's processing rate. Items
// posted concurrently are ordered by which producer's append lands first.
package internal

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// node is one element of the intrusive linked list.
type node[T any] struct {
	value *T
	next  atomic.Pointer[node[T]]
}

// Mailbox is a lock-free MPSC queue with a channel-shaped consumer side.
type Mailbox[T any] struct {
	head   atomic.Pointer[node[T]]
	tail   atomic.Pointer[node[T]]
	out    chan *T
	closed atomic.Bool

	// wakes the consumer when producers append to an empty queue; done is
	// set under mu when the pump has made its final drain decision, so a
	// racing Post can tell whether its item will still be delivered
	mu   sync.Mutex
	cond *sync.Cond
	done bool
}

// NewMailbox creates the mailbox and starts its consumer pump.
func NewMailbox[T any]() *Mailbox[T] {
	sentinel := &node[T]{}
	m := &Mailbox[T]{out: make(chan *T)}
	m.cond = sync.NewCond(&m.mu)
	m.head.Store(sentinel)
	m.tail.Store(sentinel)
	go m.pump()
	return m
}

// Post appends an item. Returns false when the mailbox is closed or the
// item is nil.
//
// Thread-safety: safe for concurrent use by any number of producers.
func (m *Mailbox[T]) Post(value *T) bool {
	if value == nil || m.closed.Load() {
		return false
	}

	n := &node[T]{value: value}
	var backoff uint8

	for {
		tail := m.tail.Load()
		if next := tail.next.Load(); next != nil {
			// another producer appended but has not swung the tail yet
			m.tail.CompareAndSwap(tail, next)
			continue
		}
		if tail.next.CompareAndSwap(nil, n) {
			// the tail CAS may lose to a helping producer, which is fine
			m.tail.CompareAndSwap(tail, n)

			// the pump's exit decision and this check are both under mu:
			// either the pump saw the append and will deliver it, or done
			// is already set and the item must be reported as rejected
			m.mu.Lock()
			if m.done {
				m.mu.Unlock()
				return false
			}
			m.cond.Signal()
			m.mu.Unlock()
			return true
		}

		// exponential backoff under contention, then yield
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// C returns the receive side. The channel is closed after Close once every
// already-posted item has been delivered.
func (m *Mailbox[T]) C() <-chan *T {
	return m.out
}

// Close prevents further posts. Items already in the queue are still
// delivered to the consumer.
func (m *Mailbox[T]) Close() {
	m.closed.Store(true)
	m.wake()
}

// wake signals the consumer under the lock so the wakeup cannot race the
// consumer's empty check.
func (m *Mailbox[T]) wake() {
	m.mu.Lock()
	m.cond.Signal()
	m.mu.Unlock()
}

// pump moves items from the linked list to the output channel.
func (m *Mailbox[T]) pump() {
	defer close(m.out)

	for {
		delivered := false
		for {
			head := m.head.Load()
			next := head.next.Load()
			if next == nil {
				break
			}
			delivered = true
			value := next.value
			m.head.Store(next)
			m.out <- value
			next.value = nil // release for GC
		}

		if m.closed.Load() {
			// the final empty check and the done flag flip together under
			// mu; a post that appends after the check observes done
			m.mu.Lock()
			if head := m.head.Load(); head.next.Load() == nil {
				m.done = true
				m.mu.Unlock()
				return
			}
			m.mu.Unlock()
			continue
		}

		if !delivered {
			m.mu.Lock()
			if head := m.head.Load(); head.next.Load() == nil && !m.closed.Load() {
				m.cond.Wait()
			}
			m.mu.Unlock()
		}
	}
}
