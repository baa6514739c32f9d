package usage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	utc := time.Date(2026, 3, 2, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "carevisit:usage:nurse-1:2026-03-02", Key("nurse-1", utc))
	assert.Equal(t, "carevisit:usage:nurse-1:2026-03-03", Key("nurse-1", utc.In(berlin)))
}

func TestNextMidnight(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	got := nextMidnight(time.Date(2026, 3, 28, 15, 0, 0, 0, berlin))
	assert.Equal(t, time.Date(2026, 3, 29, 0, 0, 0, 0, berlin), got)

	got = nextMidnight(time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestMemoryCounter(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCounter()
	monday := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	n, err := c.DailyCount(ctx, "nurse-1", monday)
	require.NoError(t, err)
	assert.Zero(t, n)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Increment(ctx, "nurse-1", monday)
		}()
	}
	wg.Wait()

	n, err = c.DailyCount(ctx, "nurse-1", monday.Add(8*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 20, n)

	n, err = c.DailyCount(ctx, "nurse-1", monday.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n, "counts reset on the next day")

	c.Set("nurse-2", monday, -5)
	n, err = c.DailyCount(ctx, "nurse-2", monday)
	require.NoError(t, err)
	assert.Zero(t, n)
}
