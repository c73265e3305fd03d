// Package batch orchestrates batch clip jobs: it dispatches every video URL
// to its platform strategy, turns the acquired video into a stored GIF clip
// and reports one result per URL. It also tracks the status of each batch.
package batch

import (
	"errors"
	"sync"
	"time"

	"github.com/maauso/clipgrab/internal/batch/id"
)

// Status represents the current state of a Batch.
type Status string

const (
	// StatusQueued indicates the batch was accepted but no item has started.
	StatusQueued Status = "queued"
	// StatusRunning indicates items are being processed.
	StatusRunning Status = "running"
	// StatusCompleted indicates every item has a result.
	StatusCompleted Status = "completed"
	// StatusCancelled indicates the caller went away before all items finished.
	StatusCancelled Status = "cancelled"
)

// StatusUnknown is reported for batch IDs that are not tracked.
const StatusUnknown = "unknown"

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

var validTransitions = map[Status][]Status{
	StatusQueued:    {StatusRunning, StatusCancelled},
	StatusRunning:   {StatusCompleted, StatusCancelled},
	StatusCompleted: {},
	StatusCancelled: {},
}

func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Batch is the tracking record of one ProcessBatch call.
type Batch struct {
	mu sync.RWMutex

	// ID is the task ID returned to callers.
	ID string
	// Label is the caller supplied name of the batch (e.g. a sheet name).
	Label string
	// Status is the current batch state.
	Status Status
	// Total is the number of submitted items.
	Total int
	// Succeeded and Failed count finished items.
	Succeeded int
	Failed    int

	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// New creates a queued Batch with a generated ID.
func New(label string, total int) *Batch {
	return NewWithID(id.Generate(), label, total)
}

// NewWithID creates a queued Batch with the given ID.
func NewWithID(batchID, label string, total int) *Batch {
	now := time.Now()
	return &Batch{
		ID:        batchID,
		Label:     label,
		Status:    StatusQueued,
		Total:     total,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo changes the batch status.
// Returns ErrInvalidTransition if the transition is not allowed.
func (b *Batch) TransitionTo(status Status) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !canTransition(b.Status, status) {
		return ErrInvalidTransition
	}

	b.Status = status
	b.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		b.StartedAt = b.UpdatedAt
	case StatusCompleted, StatusCancelled:
		b.CompletedAt = b.UpdatedAt
	}

	return nil
}

// Start moves the batch to running.
func (b *Batch) Start() error {
	return b.TransitionTo(StatusRunning)
}

// Complete moves the batch to completed.
func (b *Batch) Complete() error {
	return b.TransitionTo(StatusCompleted)
}

// Cancel moves the batch to cancelled.
func (b *Batch) Cancel() error {
	return b.TransitionTo(StatusCancelled)
}

// RecordItem counts one finished item.
func (b *Batch) RecordItem(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ok {
		b.Succeeded++
	} else {
		b.Failed++
	}
	b.UpdatedAt = time.Now()
}

// GetStatus returns the current status (thread-safe).
func (b *Batch) GetStatus() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.Status
}

// IsTerminal returns true if the batch is in a terminal state.
func (b *Batch) IsTerminal() bool {
	s := b.GetStatus()
	return s == StatusCompleted || s == StatusCancelled
}

// Clone creates a copy of the batch for safe reads.
func (b *Batch) Clone() *Batch {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return &Batch{
		ID:          b.ID,
		Label:       b.Label,
		Status:      b.Status,
		Total:       b.Total,
		Succeeded:   b.Succeeded,
		Failed:      b.Failed,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
		StartedAt:   b.StartedAt,
		CompletedAt: b.CompletedAt,
	}
}
