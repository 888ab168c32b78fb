package bloom

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// SeenFilter in-process bloom filter front for an exact membership store.
// MaybeSeen returning false means the key was definitely never added, so
// the caller can skip the exact lookup.
type SeenFilter struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
}

// NewSeenFilter creates a filter sized for n expected elements at the given
// false positive rate
func NewSeenFilter(n uint, fp float64) *SeenFilter {
	if n == 0 {
		n = 100000
	}
	if fp <= 0 {
		fp = 0.01
	}
	return &SeenFilter{
		filter: bloom.NewWithEstimates(n, fp),
	}
}

// Add records a key
func (f *SeenFilter) Add(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter.AddString(key)
}

// MaybeSeen reports whether the key may have been added before.
// False positives are possible, false negatives are not.
func (f *SeenFilter) MaybeSeen(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filter.TestString(key)
}
