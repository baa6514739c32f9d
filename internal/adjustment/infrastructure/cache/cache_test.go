package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.SetClock(func() time.Time { return now })

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrMiss)

	value := []byte("schedules")
	require.NoError(t, store.Set(ctx, "k", value, time.Minute))
	value[0] = 'X'

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("schedules"), got)

	require.NoError(t, store.Set(ctx, "forever", []byte("1"), 0))

	now = now.Add(time.Minute)
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
	assert.Equal(t, 1, store.Len())

	got, err = store.Get(ctx, "forever")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got)

	require.NoError(t, store.Delete(ctx, "forever"))
	_, err = store.Get(ctx, "forever")
	assert.ErrorIs(t, err, ErrMiss)
}
