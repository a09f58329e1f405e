// Package storetest opens throwaway SQLite stores for tests.
package storetest

import (
	"context"
	"fmt"
	"testing"

	"pantry-service/internal/models"
	"pantry-service/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// CounterStart is the value the main counter is seeded with
const CounterStart = 100

// New returns a migrated in-memory store with the system locations and the
// main counter in place. It is closed when the test ends.
func New(t testing.TB) *store.Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	s, err := store.NewStore(store.Options{Driver: store.DriverSQLite, URL: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.EnsureCounter(ctx, store.MainCounter, CounterStart))
	for _, loc := range models.SystemLocations {
		require.NoError(t, s.EnsureLocation(ctx, loc, true))
	}
	return s
}
