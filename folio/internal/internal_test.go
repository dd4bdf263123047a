package internal

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestBasicOperations tests basic post and consume functionality
func TestBasicOperations(t *testing.T) {
	m := NewMailbox[int]()
	defer m.Close()

	// Post 10 items
	vals := make([]int, 10)
	for i := 0; i < 10; i++ {
		vals[i] = i
		if !m.Post(&vals[i]) {
			t.Fatalf("Failed to post item %d", i)
		}
	}

	// Consume 10 items in order
	for i := 0; i < 10; i++ {
		select {
		case val := <-m.C():
			if *val != i {
				t.Errorf("Expected %d, got %v", i, *val)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("Timeout waiting for item %d", i)
		}
	}

	// Make sure the mailbox is empty
	select {
	case val := <-m.C():
		t.Errorf("Mailbox should be empty, but got %v", val)
	case <-time.After(10 * time.Millisecond):
		// Expected timeout, mailbox is empty
	}
}

// TestPostRejectsNilAndClosed verifies post guards
func TestPostRejectsNilAndClosed(t *testing.T) {
	m := NewMailbox[int]()
	if m.Post(nil) {
		t.Error("Post(nil) should return false")
	}

	m.Close()
	v := 1
	if m.Post(&v) {
		t.Error("Post after Close should return false")
	}
}

// TestCloseDrainsQueue verifies items posted before Close are still delivered
func TestCloseDrainsQueue(t *testing.T) {
	m := NewMailbox[int]()

	const n = 100
	vals := make([]int, n)
	for i := 0; i < n; i++ {
		vals[i] = i
		if !m.Post(&vals[i]) {
			t.Fatalf("Failed to post item %d", i)
		}
	}
	m.Close()

	received := 0
	for range m.C() {
		received++
	}
	if received != n {
		t.Errorf("Expected %d items after close, got %d", n, received)
	}
}

// TestConcurrentProducers verifies the mailbox works correctly with multiple producers
func TestConcurrentProducers(t *testing.T) {
	m := NewMailbox[int]()

	const numProducers = 10
	const itemsPerProducer = 1000
	totalItems := numProducers * itemsPerProducer

	var wg sync.WaitGroup
	for p := 0; p < numProducers; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < itemsPerProducer; i++ {
				v := base + i
				if !m.Post(&v) {
					t.Errorf("Failed to post item %d", v)
					return
				}
			}
		}(p * itemsPerProducer)
	}

	// Consume everything, checking for duplicates
	received := make(map[int]bool, totalItems)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < totalItems; i++ {
			select {
			case val := <-m.C():
				if val == nil {
					t.Error("Received nil item")
					return
				}
				if received[*val] {
					t.Errorf("Duplicate item received: %d", *val)
				}
				received[*val] = true
			case <-time.After(5 * time.Second):
				t.Errorf("Timeout after %d items", i)
				return
			}
		}
	}()

	wg.Wait()
	<-done
	m.Close()

	if len(received) != totalItems {
		t.Errorf("Expected %d unique items, got %d", totalItems, len(received))
	}
}

// TestPostCloseRace verifies every accepted post is delivered even when
// Close races the producers
func TestPostCloseRace(t *testing.T) {
	for iter := 0; iter < 200; iter++ {
		m := NewMailbox[int]()

		var accepted int64
		var wg sync.WaitGroup
		for p := 0; p < 4; p++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					v := 1
					if !m.Post(&v) {
						return
					}
					atomic.AddInt64(&accepted, 1)
				}
			}()
		}

		got := make(chan int64, 1)
		go func() {
			var received int64
			for range m.C() {
				received++
			}
			got <- received
		}()

		runtime.Gosched()
		m.Close()
		wg.Wait()

		received := <-got
		if received != atomic.LoadInt64(&accepted) {
			t.Fatalf("iter %d: %d posts accepted but %d delivered",
				iter, atomic.LoadInt64(&accepted), received)
		}
	}
}

// TestSingleProducerOrdering verifies FIFO order for one producer
func TestSingleProducerOrdering(t *testing.T) {
	m := NewMailbox[int]()
	defer m.Close()

	const n = 10000
	go func() {
		for i := 0; i < n; i++ {
			v := i
			m.Post(&v)
		}
	}()

	for i := 0; i < n; i++ {
		select {
		case val := <-m.C():
			if *val != i {
				t.Fatalf("Out of order: expected %d, got %d", i, *val)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("Timeout waiting for item %d", i)
		}
	}
}
