package store

import (
	"context"
	"fmt"

	"pantry-service/internal/apperror"
)

// MainCounter issues order, movement and client numbers
const MainCounter = "main"

// EnsureCounter creates the named counter at start unless it already exists
func (s *Store) EnsureCounter(ctx context.Context, name string, start int64) error {
	_, err := s.exec(ctx,
		"INSERT INTO counters (name, value) VALUES (?, ?) ON CONFLICT (name) DO NOTHING",
		name, start)
	if err != nil {
		return fmt.Errorf("failed to ensure counter %s: %w", name, err)
	}
	return nil
}

// NextIDs advances the named counter by n in one statement and returns the
// n values it passed over, ascending. Called outside a transaction the values
// are committed immediately and never handed out again.
func (s *Store) NextIDs(ctx context.Context, name string, n int) ([]int64, error) {
	if n <= 0 {
		return nil, apperror.Validation("id block size must be positive")
	}

	var last int64
	err := s.get(ctx, &last,
		"UPDATE counters SET value = value + ? WHERE name = ? RETURNING value",
		n, name)
	if isNoRows(err) {
		return nil, apperror.NotFound("counter", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to advance counter %s: %w", name, err)
	}

	ids := make([]int64, n)
	for i := range ids {
		ids[i] = last - int64(n-1-i)
	}
	return ids, nil
}

// NextID is NextIDs for a single value
func (s *Store) NextID(ctx context.Context, name string) (int64, error) {
	ids, err := s.NextIDs(ctx, name, 1)
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// CounterValue returns the last value handed out
func (s *Store) CounterValue(ctx context.Context, name string) (int64, error) {
	var value int64
	err := s.get(ctx, &value, "SELECT value FROM counters WHERE name = ?", name)
	if isNoRows(err) {
		return 0, apperror.NotFound("counter", name)
	}
	return value, err
}
