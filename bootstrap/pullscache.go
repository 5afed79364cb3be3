package bootstrap

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"lattice.dev/node/types"
)

// minProcessedToCache mirrors the pre-distillation pulls_cache.rs
// threshold: a pull that made little progress isn't worth remembering.
const minProcessedToCache = 500

// defaultPullsCacheSize matches pulls_cache.rs's default.
const defaultPullsCacheSize = 10_000

// accountHead identifies one in-flight pull by the account (or account
// head) it targets plus the hash it originally started from, exactly
// as pulls_cache.rs's to_head_512 does.
type accountHead [64]byte

// PullInfo describes one bootstrap pull, mirroring pulls_cache.rs's
// PullInfo fields.
type PullInfo struct {
	AccountOrHead types.Hash
	Head          types.Hash
	HeadOriginal  types.Hash
	End           types.Hash
	Count         uint32
	Attempts      uint32
	Processed     uint64
	RetryLimit    uint32
	BootstrapID   uint64
}

func headKey(p PullInfo) accountHead {
	var k accountHead
	copy(k[0:32], p.AccountOrHead[:])
	copy(k[32:64], p.HeadOriginal[:])
	return k
}

// PullsCache remembers the head reached by earlier pulls (spec's
// pulls_cache supplement): Client.Pull adds an entry after a pull that
// processed more than minProcessedToCache blocks, and UpdatePull starts
// a later pull of the same (account, original head) pair from the
// cached head. It does not track pulls still in flight; concurrent
// duplicate pulls are collapsed by the client's singleflight. Grounded on pulls_cache.rs's
// HashMap-plus-eviction-by-insertion-order design, adapted onto
// golang-lru/v2 (already wired for the ledger's weight cache) rather
// than a hand-rolled BTreeMap-by-time, since golang-lru/v2 already
// gives capacity-bounded eviction and this package has no need for the
// original's exact time-ordering semantics.
type PullsCache struct {
	mu    sync.Mutex
	cache *lru.Cache[accountHead, types.Hash]
}

func NewPullsCache(maxSize int) *PullsCache {
	if maxSize <= 0 {
		maxSize = defaultPullsCacheSize
	}
	cache, _ := lru.New[accountHead, types.Hash](maxSize)
	return &PullsCache{cache: cache}
}

func (c *PullsCache) Contains(p PullInfo) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.cache.Get(headKey(p))
	return ok
}

// Add records p's new head once it has made enough progress to be
// worth caching (pulls_cache.rs: "processed <= 500" is never cached).
func (c *PullsCache) Add(p PullInfo) {
	if p.Processed <= minProcessedToCache {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(headKey(p), p.Head)
}

// UpdatePull overwrites p.Head with the cached value from a prior pull
// targeting the same account/original-head pair, if one exists.
func (c *PullsCache) UpdatePull(p *PullInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if head, ok := c.cache.Get(headKey(*p)); ok {
		p.Head = head
	}
}

func (c *PullsCache) Remove(p PullInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Remove(headKey(p))
}

func (c *PullsCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}
