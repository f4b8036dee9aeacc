package sched

import (
	"sync"
	"time"
)

// Manual is a Scheduler driven by an explicit clock. Scheduled functions run
// only when Advance moves the clock past their deadline, on the calling
// goroutine, so tests stay deterministic.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	nextID  int
	pending map[int]manualEntry
}

type manualEntry struct {
	at time.Time
	fn func()
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start, pending: make(map[int]manualEntry)}
}

func (m *Manual) Schedule(after time.Duration, fn func()) CancelFunc {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.pending[id] = manualEntry{at: m.now.Add(after), fn: fn}
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.pending, id)
	}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward and fires every entry that came due, in
// deadline order. Entries scheduled while firing are considered too, so a
// repeating tick catches up over a large jump.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		var dueID int
		var due *manualEntry
		for id, e := range m.pending {
			if e.at.After(target) {
				continue
			}
			if due == nil || e.at.Before(due.at) {
				entry := e
				due = &entry
				dueID = id
			}
		}
		if due == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		delete(m.pending, dueID)
		if due.at.After(m.now) {
			m.now = due.at
		}
		m.mu.Unlock()
		due.fn()
	}
}

// PendingCount reports how many scheduled calls have not fired or been
// cancelled yet.
func (m *Manual) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
