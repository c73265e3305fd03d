package batch

import (
	"context"
	"errors"
)

// ErrBatchNotFound is returned when a batch cannot be found by ID.
var ErrBatchNotFound = errors.New("batch not found")

// Repository defines the interface for batch record persistence.
type Repository interface {
	// Save stores a batch, replacing any record with the same ID.
	Save(ctx context.Context, b *Batch) error

	// FindByID retrieves a batch by its ID.
	// Returns ErrBatchNotFound if the batch does not exist.
	FindByID(ctx context.Context, id string) (*Batch, error)

	// List returns all batches.
	List(ctx context.Context) ([]*Batch, error)
}
