package network

import (
	"sync"

	"github.com/dchest/siphash"
)

// DuplicateFilterSize is the fixed fingerprint table size: a power of
// two so indexing is a mask, not a modulo.
const DuplicateFilterSize = 1 << 17

// DuplicateFilter is a fixed-size array of 128-bit keyed fingerprints
// used to drop blocks and votes the node has already processed in this
// session before they reach the block processor or vote processor
// queues (spec §4.2 "fixed-size array of 128-bit SipHash fingerprints
// keyed by a random 128-bit secret chosen at startup"). Unlike a Bloom
// filter it never needs resetting: each slot just holds the most
// recent fingerprint to land there, so the false positive a collision
// produces is "treat as duplicate a message that isn't" rather than
// unbounded growth.
type DuplicateFilter struct {
	k0, k1 uint64

	mu   sync.Mutex
	fp0  [DuplicateFilterSize]uint64
	fp1  [DuplicateFilterSize]uint64
	seen [DuplicateFilterSize]bool
}

func NewDuplicateFilter(k0, k1 uint64) *DuplicateFilter {
	return &DuplicateFilter{k0: k0, k1: k1}
}

// fingerprint returns data's slot index and its 128-bit SipHash digest
// (h0, h1).
func (f *DuplicateFilter) fingerprint(data []byte) (idx int, h0, h1 uint64) {
	h0, h1 = siphash.Hash128(f.k0, f.k1, data)
	return int(h0 & (DuplicateFilterSize - 1)), h0, h1
}

// CheckAndSet reports whether data's fingerprint was already present,
// then records the new fingerprint in its slot regardless (spec §4.2
// "apply(payload) → (digest, existed)").
func (f *DuplicateFilter) CheckAndSet(data []byte) bool {
	idx, h0, h1 := f.fingerprint(data)

	f.mu.Lock()
	defer f.mu.Unlock()
	dup := f.seen[idx] && f.fp0[idx] == h0 && f.fp1[idx] == h1
	f.fp0[idx] = h0
	f.fp1[idx] = h1
	f.seen[idx] = true
	return dup
}

// Clear zeroes the slot data's fingerprint occupies iff it currently
// holds exactly that fingerprint (spec §4.2 "clear(digest) zeroes the
// slot iff it currently matches digest (prevents clearing a
// neighbour's fingerprint on hash collision)").
func (f *DuplicateFilter) Clear(data []byte) {
	idx, h0, h1 := f.fingerprint(data)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen[idx] && f.fp0[idx] == h0 && f.fp1[idx] == h1 {
		f.fp0[idx] = 0
		f.fp1[idx] = 0
		f.seen[idx] = false
	}
}
