package service

import (
	"context"
	"fmt"

	"pantry-service/internal/store"
)

// IDAllocator hands out order, movement and client numbers from the main
// counter. Values are committed as soon as they are issued, so a failed
// operation leaves a gap instead of reusing a number.
type IDAllocator struct {
	store   *store.Store
	counter string
}

// NewIDAllocator creates an allocator over the main counter
func NewIDAllocator(st *store.Store) *IDAllocator {
	return &IDAllocator{store: st, counter: store.MainCounter}
}

// NextID returns one fresh identifier
func (a *IDAllocator) NextID(ctx context.Context) (int64, error) {
	return a.store.NextID(ctx, a.counter)
}

// NextIDs returns n fresh identifiers in ascending order
func (a *IDAllocator) NextIDs(ctx context.Context, n int) ([]int64, error) {
	return a.store.NextIDs(ctx, a.counter, n)
}

// NextClientID formats a fresh identifier as a client number
func (a *IDAllocator) NextClientID(ctx context.Context) (string, error) {
	id, err := a.NextID(ctx)
	if err != nil {
		return "", err
	}
	return FormatClientID(id), nil
}

// FormatClientID renders a counter value as C00101
func FormatClientID(id int64) string {
	return fmt.Sprintf("C%05d", id)
}
