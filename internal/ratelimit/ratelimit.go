// Package ratelimit bounds how often a single credential holder can request
// issuance. It tracks the most recent requests in a fixed-size multiset: a
// holder may occupy at most maxRepeats of the capacity slots at any time, and
// the oldest entry is evicted when a new one would exceed capacity.
package ratelimit

import "sync"

// PriorState captures what Update displaced so that a failed issuance can be
// rolled back with Undo.
type PriorState struct {
	evicted    string
	hadEvicted bool
}

// Limiter is a bounded recency window over requester ids. All methods are
// safe for concurrent use, though the issuance worker owns a single instance
// and calls it from one goroutine.
type Limiter struct {
	mu         sync.Mutex
	queue      []string
	counts     map[string]int
	capacity   int
	maxRepeats int
}

// New returns a limiter holding the last capacity requests, allowing each id
// at most maxRepeats occurrences in the window. A capacity of zero blocks
// everything once maxRepeats is reached immediately, since the window never
// retains entries.
func New(capacity, maxRepeats int) *Limiter {
	return &Limiter{
		queue:      make([]string, 0, capacity),
		counts:     make(map[string]int),
		capacity:   capacity,
		maxRepeats: maxRepeats,
	}
}

// CheckLimit reports whether id may make another request right now. It does
// not record anything; pair it with Update once the request is admitted.
func (l *Limiter) CheckLimit(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[id] < l.maxRepeats
}

// Update records a request from id and returns the state needed to undo it.
// When the window is full the oldest entry is evicted to make room.
func (l *Limiter) Update(id string) PriorState {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.queue = append(l.queue, id)
	l.counts[id]++

	var prior PriorState
	if len(l.queue) > l.capacity {
		evicted := l.queue[0]
		l.queue = l.queue[1:]
		prior = PriorState{evicted: evicted, hadEvicted: true}
		if n := l.counts[evicted] - 1; n > 0 {
			l.counts[evicted] = n
		} else {
			delete(l.counts, evicted)
		}
	}
	return prior
}

// Undo rolls back a prior Update for id after the issuance it admitted
// failed, restoring any entry that Update evicted. If id is no longer in the
// window (its own insertion was immediately evicted) there is nothing to roll
// back and the evicted entry stays gone.
func (l *Limiter) Undo(id string, prior PriorState) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.counts[id]; !ok {
		return
	}

	for i := len(l.queue) - 1; i >= 0; i-- {
		if l.queue[i] != id {
			continue
		}
		l.queue = append(l.queue[:i], l.queue[i+1:]...)
		if n := l.counts[id] - 1; n > 0 {
			l.counts[id] = n
		} else {
			delete(l.counts, id)
		}
		break
	}

	if prior.hadEvicted {
		l.queue = append([]string{prior.evicted}, l.queue...)
		l.counts[prior.evicted]++
	}
}

// Len returns the number of entries currently in the window.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}
