// Package id provides unique identifier generation for batches.
package id

import "github.com/google/uuid"

// Generate creates a new unique batch ID (a random UUID).
func Generate() string {
	return uuid.NewString()
}
