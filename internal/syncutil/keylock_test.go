package syncutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyLock_MutualExclusion(t *testing.T) {
	l := NewKeyLock()
	ctx := context.Background()

	var counter int
	var wg sync.WaitGroup
	const n = 100

	wg.Add(n)
	for range n {
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "counter")
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
		}()
	}
	wg.Wait()
	assert.Equal(t, n, counter)
}

func TestKeyLock_ContextCancelled(t *testing.T) {
	l := NewKeyLock()

	unlock, err := l.Lock(context.Background(), "busy")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "busy")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	again, err := l.Lock(context.Background(), "busy")
	require.NoError(t, err)
	again()
}

func TestKeyLock_DifferentShardsDoNotBlock(t *testing.T) {
	l := NewKeyLock()

	// Find a key that lands on another shard.
	other := "b"
	for i := 0; shardOf(other) == shardOf("a"); i++ {
		other = string(rune('b' + i))
	}

	unlock, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	u2, err := l.Lock(ctx, other)
	require.NoError(t, err)
	u2()
}
