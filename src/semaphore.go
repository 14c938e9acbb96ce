package expctrl

import "sync"

// Semaphore is a counting semaphore built on a mutex and condition
// variable, used to sequence "primary starts last" ordering across
// per-device streaming workers (see streaming_coordinator.go). It starts
// at count 1; every non-primary device starts its hardware task and then
// releases the semaphore once, while the primary acquires it once per
// device in the experiment (itself included) before starting its own
// task, guaranteeing every secondary is already armed and waiting on its
// trigger before the primary exports the edge that starts them all. The
// primary then releases once more to restore the count to 1, re-arming
// the gate for the next repetition.
type Semaphore struct {
	mu    sync.Mutex
	cond  *sync.Cond
	count int
}

// NewSemaphore constructs a semaphore with the given initial count.
func NewSemaphore(initial int) *Semaphore {
	s := &Semaphore{count: initial}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Acquire blocks until the count is positive, then decrements it.
func (s *Semaphore) Acquire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.count == 0 {
		s.cond.Wait()
	}
	s.count--
}

// Release increments the count and wakes one waiter.
func (s *Semaphore) Release() {
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
	s.cond.Signal()
}

// Count returns the current count, primarily for tests.
func (s *Semaphore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}
