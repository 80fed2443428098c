package modules

import (
	"sync"
	"sync/atomic"
)

// fnv1a32 is the documented, stable, non-cryptographic shard hash
// (§4.5): deterministic across calls and process restarts.
func fnv1a32(s string) uint32 {
	const (
		offsetBasis = 2166136261
		prime       = 16777619
	)
	h := uint32(offsetBasis)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime
	}
	return h
}

// Balancer is C5: per-module round-robin counters plus deterministic
// sharding, selecting among a module's live instances.
type Balancer struct {
	mu       sync.Mutex
	counters map[string]*atomic.Uint64
}

func NewBalancer() *Balancer {
	return &Balancer{counters: make(map[string]*atomic.Uint64)}
}

func (b *Balancer) counter(moduleName string) *atomic.Uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.counters[moduleName]
	if !ok {
		c = &atomic.Uint64{}
		b.counters[moduleName] = c
	}
	return c
}

// Select picks an index into instances for moduleName. With a non-empty
// shardKey, selection is a stable hash mod instance count; otherwise a
// free-running per-module round-robin counter is used. Wraparound on the
// counter is benign (§4.5).
func (b *Balancer) Select(moduleName string, instanceCount int, shardKey string) int {
	if instanceCount <= 0 {
		return -1
	}
	if shardKey != "" {
		return int(fnv1a32(shardKey) % uint32(instanceCount))
	}
	n := b.counter(moduleName).Add(1)
	return int(n % uint64(instanceCount))
}
