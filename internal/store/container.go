package store

import (
	"sync"
	"sync/atomic"
)

// Container publishes snapshots. Readers load the current pointer
// without locking; publishers serialize on swapMu so generations stay
// monotonic even under concurrent reloads.
type Container struct {
	current    atomic.Pointer[Snapshot]
	swapMu     sync.Mutex
	generation atomic.Uint64
}

// NewContainer creates a container holding an empty generation-0
// snapshot, so readers never observe nil.
func NewContainer() *Container {
	c := &Container{}
	c.current.Store(emptySnapshot())
	return c
}

// Current returns the live snapshot. The result stays valid for the
// caller's whole operation even if a swap happens concurrently.
func (c *Container) Current() *Snapshot {
	return c.current.Load()
}

// Swap publishes a fully-built snapshot, assigns it the next
// generation and returns the previous one. In-flight readers keep the
// old snapshot; new readers see the new one immediately.
func (c *Container) Swap(next *Snapshot) *Snapshot {
	c.swapMu.Lock()
	defer c.swapMu.Unlock()

	next.generation = c.generation.Add(1)
	return c.current.Swap(next)
}

// Loaded reports whether a real snapshot has been published yet.
func (c *Container) Loaded() bool {
	return c.Current().generation > 0
}
