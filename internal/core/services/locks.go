package services

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const lockStripes = 256

// keyedMutex serializes work per key over a fixed set of striped mutexes.
// Two keys may share a stripe; that only costs concurrency.
type keyedMutex struct {
	stripes [lockStripes]sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	m := &k.stripes[xxhash.Sum64String(key)%lockStripes]
	m.Lock()
	return m.Unlock
}
