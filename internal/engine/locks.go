package engine

import "sync"

// lockRegistry serializes reconciliation runs per invoice. Runs for
// different invoices proceed in parallel; a second run for the same invoice
// is refused immediately rather than queued, so the caller can surface
// ConcurrentRunInProgress and retry.
//
// The registry is in-process. The engine is an embedded library invoked by
// its host's handlers; were it ever deployed across multiple nodes, this
// one-method surface is where a distributed advisory lock would slot in.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: make(map[uint]*sync.Mutex)}
}

// tryAcquire attempts to take the advisory lock for an invoice without
// blocking. It returns false when another run holds it.
func (r *lockRegistry) tryAcquire(invoiceID uint) bool {
	r.mu.Lock()
	lock, ok := r.locks[invoiceID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[invoiceID] = lock
	}
	r.mu.Unlock()

	return lock.TryLock()
}

// release frees the advisory lock. Must be called on every exit path of a
// run, including failures.
func (r *lockRegistry) release(invoiceID uint) {
	r.mu.Lock()
	lock, ok := r.locks[invoiceID]
	r.mu.Unlock()

	if ok {
		lock.Unlock()
	}
}
