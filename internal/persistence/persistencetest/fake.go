// Package persistencetest provides an in-memory encounter.Persister for
// tests that exercise save behavior without a live database.
package persistencetest

import (
	"context"
	"sync"

	"github.com/skirmishmeter/meter/internal/aggregator/encounter"
)

// Fake is an in-memory encounter.Persister. Safe for concurrent use.
type Fake struct {
	mu   sync.Mutex
	Rows []encounter.PersistedEncounter
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{}
}

// Save appends row and returns its 1-based index as the row id.
func (f *Fake) Save(_ context.Context, row encounter.PersistedEncounter) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Rows = append(f.Rows, row)
	return int64(len(f.Rows)), nil
}

// Len reports how many rows have been saved.
func (f *Fake) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Rows)
}
