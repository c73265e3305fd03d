package batch

import (
	"context"
	"sync"
)

// Compile-time check that MemoryRepository implements Repository.
var _ Repository = (*MemoryRepository)(nil)

// DefaultMaxTrackedBatches caps a MemoryRepository unless overridden.
const DefaultMaxTrackedBatches = 1000

// MemoryRepository is an in-memory Repository holding at most maxEntries
// records. When full, the oldest finished batch is evicted first; running
// batches are evicted only when nothing else is left.
type MemoryRepository struct {
	mu         sync.RWMutex
	batches    map[string]*Batch
	order      []string // insertion order, oldest first
	maxEntries int
}

// MemoryOption configures a MemoryRepository.
type MemoryOption func(*MemoryRepository)

// WithMaxEntries sets how many batches are kept. Non-positive values are ignored.
func WithMaxEntries(n int) MemoryOption {
	return func(r *MemoryRepository) {
		if n > 0 {
			r.maxEntries = n
		}
	}
}

// NewMemoryRepository creates a new in-memory batch repository.
func NewMemoryRepository(opts ...MemoryOption) *MemoryRepository {
	r := &MemoryRepository{
		batches:    make(map[string]*Batch),
		maxEntries: DefaultMaxTrackedBatches,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Save stores a clone of b.
func (r *MemoryRepository) Save(_ context.Context, b *Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.batches[b.ID]; !ok {
		r.order = append(r.order, b.ID)
	}
	r.batches[b.ID] = b.Clone()

	for len(r.order) > r.maxEntries {
		r.evictOne(b.ID)
	}
	return nil
}

// evictOne drops the oldest terminal batch, or the oldest batch other than
// keep when none has finished. Callers hold r.mu.
func (r *MemoryRepository) evictOne(keep string) {
	victim := -1
	for i, id := range r.order {
		if r.batches[id].IsTerminal() {
			victim = i
			break
		}
	}
	if victim < 0 {
		for i, id := range r.order {
			if id != keep {
				victim = i
				break
			}
		}
	}
	if victim < 0 {
		return
	}
	delete(r.batches, r.order[victim])
	r.order = append(r.order[:victim], r.order[victim+1:]...)
}

// FindByID returns a clone of the stored batch.
func (r *MemoryRepository) FindByID(_ context.Context, id string) (*Batch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.batches[id]
	if !ok {
		return nil, ErrBatchNotFound
	}
	return b.Clone(), nil
}

// List returns clones of all batches.
func (r *MemoryRepository) List(_ context.Context) ([]*Batch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Batch, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.batches[id].Clone())
	}
	return result, nil
}
