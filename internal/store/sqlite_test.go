// internal/store/sqlite_test.go
package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestStore(t *testing.T, path string) Store {
	t.Helper()
	s, err := NewSQLiteStore(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	s := newTestStore(t, filepath.Join(t.TempDir(), "positions.db"))
	ctx := context.Background()

	position := &Position{
		TokenAddress: "0x4444444444444444444444444444444444444444",
		AmountIn:     "50000000000000000",
		EntryTxHash:  "0xdeadbeef",
	}
	require.NoError(t, s.Insert(ctx, position))
	assert.NotZero(t, position.ID, "store assigns the id")
	assert.False(t, position.OpenedAt.IsZero())

	positions, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, position.TokenAddress, positions[0].TokenAddress)
	assert.Equal(t, position.AmountIn, positions[0].AmountIn)

	require.NoError(t, s.Delete(ctx, position.ID))

	positions, err = s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, s.Insert(ctx, &Position{
		TokenAddress: "0x5555555555555555555555555555555555555555",
		AmountIn:     "1000000000000000000",
		EntryTxHash:  "0xfeedface",
		OpenedAt:     time.Now().UTC(),
	}))
	require.NoError(t, s.Close())

	reopened := newTestStore(t, path)
	positions, err := reopened.List(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "0x5555555555555555555555555555555555555555", positions[0].TokenAddress)
}

func TestStoreAmountInIsPreservedVerbatim(t *testing.T) {
	s := newTestStore(t, filepath.Join(t.TempDir(), "positions.db"))
	ctx := context.Background()

	// Larger than any float64 can carry exactly.
	amount := "123456789012345678901234567890"
	require.NoError(t, s.Insert(ctx, &Position{
		TokenAddress: "0x6666666666666666666666666666666666666666",
		AmountIn:     amount,
		EntryTxHash:  "0x01",
	}))

	positions, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, amount, positions[0].AmountIn)
}
