package reservations

import (
	"sync"

	"github.com/google/uuid"
)

// itemLocks hands out one mutex per inventory item so check-then-decrement
// sequences for the same item never interleave within this process. Postgres
// row locks cover cross-process callers; this keeps the sqlite test driver
// and single-node deployments honest too.
type itemLocks struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newItemLocks() *itemLocks {
	return &itemLocks{entries: make(map[uuid.UUID]*lockEntry)}
}

// Lock blocks until the item's mutex is held and returns the unlock func.
func (l *itemLocks) Lock(itemID uuid.UUID) func() {
	l.mu.Lock()
	entry, ok := l.entries[itemID]
	if !ok {
		entry = &lockEntry{}
		l.entries[itemID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			entry.mu.Unlock()
			l.mu.Lock()
			entry.refs--
			if entry.refs == 0 {
				delete(l.entries, itemID)
			}
			l.mu.Unlock()
		})
	}
}
