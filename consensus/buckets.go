package consensus

import (
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/jrick/bitset"

	"lattice.dev/node/types"
)

// bucketCount and bucketThresholds partition accounts into log-scale
// balance buckets (spec §4.7 "a log-scale of the account's balance").
// Each doubling of balance gets its own bucket up to 2^120; everything
// above that shares the top bucket.
const bucketCount = 121

func bucketThresholds() []types.Amount {
	out := make([]types.Amount, bucketCount)
	for i := range out {
		if i == 0 {
			out[i] = types.ZeroAmount()
			continue
		}
		out[i] = types.AmountFromBig(shiftLeft(i))
	}
	return out
}

func shiftLeft(bits int) *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), uint(bits))
}

// bucketIndex returns which bucket a balance falls into: the index of
// the highest threshold not exceeding it.
func bucketIndex(thresholds []types.Amount, balance types.Amount) int {
	idx := sort.Search(len(thresholds), func(i int) bool {
		return thresholds[i].Cmp(balance) > 0
	})
	if idx == 0 {
		return 0
	}
	return idx - 1
}

type pendingEntry struct {
	arrival time.Time
	root    types.Hash
	account types.Account
	hash    types.Hash
	block   *types.Block
}

// Bucket is one balance-bucket's priority queue and election-slot pool
// (spec §4.7). Slot occupancy is tracked with a compact bitset rather
// than a map, since reserved/max slot counts are small fixed bounds
// known at construction.
type Bucket struct {
	mu sync.Mutex

	minimumBalance types.Amount
	pending        []pendingEntry

	reserved int
	max      int
	occupied bitset.Bytes
	slotRoot []types.Hash // index -> root occupying that slot, ZeroHash if free
	rootSlot map[types.Hash]int
	oldest   map[types.Hash]time.Time // root -> election start time, for displacement comparison
}

func newBucket(minimumBalance types.Amount, reserved, max int) *Bucket {
	return &Bucket{
		minimumBalance: minimumBalance,
		reserved:       reserved,
		max:            max,
		occupied:       bitset.NewBytes(max),
		slotRoot:       make([]types.Hash, max),
		rootSlot:       make(map[types.Hash]int, max),
		oldest:         make(map[types.Hash]time.Time, max),
	}
}

// Push enqueues a candidate awaiting election, ordered by arrival time
// (spec §4.7 "an ordered set {(arrival_time, block)}").
func (b *Bucket) Push(root types.Hash, account types.Account, hash types.Hash, block *types.Block, arrival time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, pendingEntry{arrival: arrival, root: root, account: account, hash: hash, block: block})
	sort.Slice(b.pending, func(i, j int) bool { return b.pending[i].arrival.Before(b.pending[j].arrival) })
}

func (b *Bucket) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// occupancyLocked reports the number of currently-occupied election
// slots.
func (b *Bucket) occupancyLocked() int {
	n := 0
	for i := 0; i < b.max; i++ {
		if b.occupied.Get(i) {
			n++
		}
	}
	return n
}

// oldestActiveLocked returns the root of the most-recently-started
// (i.e. lowest-priority) occupied slot, for displacement.
func (b *Bucket) oldestActiveLocked() (types.Hash, bool) {
	var newest types.Hash
	var newestAt time.Time
	found := false
	for root, at := range b.oldest {
		if !found || at.After(newestAt) {
			newest, newestAt = root, at
			found = true
		}
	}
	return newest, found
}

// TryActivate pops the oldest pending candidate and reserves it a
// slot, displacing the bucket's lowest-priority active election if the
// bucket is full and the candidate is strictly older than it (spec
// §4.7 "if the bucket is at max_elections the candidate may displace
// the lowest-priority election if strictly older"). It returns the
// activated entry, the root displaced (if any), and whether anything
// was activated.
func (b *Bucket) TryActivate(now time.Time) (entry pendingEntry, displaced types.Hash, displacedOK bool, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.pending) == 0 {
		return pendingEntry{}, types.Hash{}, false, false
	}

	// Below max there is always a free slot to admit into, reserved or
	// not; only at max does admission require displacing something.
	if occupancy := b.occupancyLocked(); occupancy >= b.max {
		displaced, displacedOK = b.oldestActiveLocked()
		if !displacedOK {
			return pendingEntry{}, types.Hash{}, false, false
		}
		if !b.pending[0].arrival.Before(b.oldest[displaced]) {
			// Candidate isn't strictly older than the election it would
			// displace; leave it queued.
			return pendingEntry{}, types.Hash{}, false, false
		}
		b.freeSlotLocked(displaced)
	}

	entry = b.pending[0]
	b.pending = b.pending[1:]
	b.reserveSlotLocked(entry.root, now)
	return entry, displaced, displacedOK, true
}

func (b *Bucket) reserveSlotLocked(root types.Hash, now time.Time) {
	for i := 0; i < b.max; i++ {
		if !b.occupied.Get(i) {
			b.occupied.Set(i)
			b.slotRoot[i] = root
			b.rootSlot[root] = i
			b.oldest[root] = now
			return
		}
	}
}

func (b *Bucket) freeSlotLocked(root types.Hash) {
	idx, ok := b.rootSlot[root]
	if !ok {
		return
	}
	b.occupied.Unset(idx)
	b.slotRoot[idx] = types.Hash{}
	delete(b.rootSlot, root)
	delete(b.oldest, root)
}

// Release frees root's slot when its election confirms or expires.
func (b *Bucket) Release(root types.Hash) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.freeSlotLocked(root)
}

// ElectionScheduler fans candidate blocks out across balance buckets
// and activates elections from them as slots free up (spec §4.7).
type ElectionScheduler struct {
	thresholds []types.Amount
	buckets    []*Bucket
	active     *ActiveElections
}

// NewElectionScheduler builds the fixed set of log-scale buckets, each
// with the same reserved/max slot budget (a real deployment could vary
// this per bucket; spec names no such requirement).
func NewElectionScheduler(active *ActiveElections, reservedPerBucket, maxPerBucket int) *ElectionScheduler {
	thresholds := bucketThresholds()
	buckets := make([]*Bucket, len(thresholds))
	for i, t := range thresholds {
		buckets[i] = newBucket(t, reservedPerBucket, maxPerBucket)
	}
	return &ElectionScheduler{thresholds: thresholds, buckets: buckets, active: active}
}

// Activate enqueues a block awaiting election, bucketed by the
// account's balance.
func (s *ElectionScheduler) Activate(root types.Hash, account types.Account, hash types.Hash, block *types.Block, balance types.Amount, now time.Time) {
	idx := bucketIndex(s.thresholds, balance)
	s.buckets[idx].Push(root, account, hash, block, now)
}

// RunOnce walks every bucket once, activating one candidate per bucket
// that has room (spec §4.7's pop-oldest-eligible admission loop). It
// returns the roots newly inserted into ActiveElections.
func (s *ElectionScheduler) RunOnce(now time.Time) []types.Hash {
	var activated []types.Hash
	for _, bucket := range s.buckets {
		entry, displaced, displacedOK, ok := bucket.TryActivate(now)
		if !ok {
			continue
		}
		if displacedOK {
			s.active.Remove(displaced)
		}
		s.active.Insert(entry.root, entry.account, entry.hash, entry.block, BehaviorNormal)
		activated = append(activated, entry.root)
	}
	return activated
}

// Pending reports the total number of candidates awaiting activation
// across all buckets.
func (s *ElectionScheduler) Pending() int {
	n := 0
	for _, b := range s.buckets {
		n += b.Len()
	}
	return n
}

// ReleaseRoot frees the slot a confirmed or expired election was
// occupying in whichever bucket owns it. Buckets don't track which
// bucket owns a root once activated in an index, so this scans; called
// rarely (once per confirmation/expiry), so the linear scan across a
// bounded, small bucket count is not a concern.
func (s *ElectionScheduler) ReleaseRoot(root types.Hash) {
	for _, b := range s.buckets {
		b.Release(root)
	}
}
