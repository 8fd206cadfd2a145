// Package syncutil holds small synchronization helpers.
package syncutil

import (
	"context"
	"hash/fnv"
)

const keyLockShards = 64

// KeyLock is a fixed pool of channel-based mutexes selected by key. Memory
// stays bounded however many keys are seen; keys that share a shard
// serialize with each other. Waiters can give up when their context ends.
type KeyLock struct {
	shards [keyLockShards]chan struct{}
}

// NewKeyLock returns a KeyLock with every shard unlocked.
func NewKeyLock() *KeyLock {
	l := &KeyLock{}
	for i := range l.shards {
		l.shards[i] = make(chan struct{}, 1)
		l.shards[i] <- struct{}{}
	}
	return l
}

// Lock acquires the shard for key. On success the caller must call the
// returned unlock exactly once. If ctx ends first, Lock returns ctx.Err().
func (l *KeyLock) Lock(ctx context.Context, key string) (func(), error) {
	shard := l.shards[shardOf(key)]
	select {
	case <-shard:
		return func() { shard <- struct{}{} }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func shardOf(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % keyLockShards
}
