package dedup

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySeenWithinTTL(t *testing.T) {
	now := time.Unix(0, 0)
	m := NewMemory(0, func() time.Time { return now })
	ctx := context.Background()

	seen, err := m.Seen(ctx, "msg-1")
	require.NoError(t, err)
	assert.False(t, seen)

	now = now.Add(4 * time.Minute)
	seen, _ = m.Seen(ctx, "msg-1")
	assert.True(t, seen, "replay inside five minutes")

	now = now.Add(time.Minute)
	seen, _ = m.Seen(ctx, "msg-1")
	assert.False(t, seen, "expired after five minutes from first sighting")
}

func TestMemoryPurgesExpired(t *testing.T) {
	now := time.Unix(0, 0)
	m := NewMemory(time.Second, func() time.Time { return now })
	for i := 0; i < 255; i++ {
		_, _ = m.Seen(context.Background(), fmt.Sprint(i))
	}
	now = now.Add(2 * time.Second)
	_, _ = m.Seen(context.Background(), "trigger")
	assert.Equal(t, 1, m.Len())
}

func TestMemoryConcurrentSingleWinner(t *testing.T) {
	m := NewMemory(time.Minute, nil)
	var wg sync.WaitGroup
	var mu sync.Mutex
	fresh := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if seen, _ := m.Seen(context.Background(), "same"); !seen {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, fresh)
}
