// Package consensus implements the voting and election layer: vote
// spacing, the vote processor and generator, election scheduling and
// tallying, and the online-weight sampler (spec §4.6, §4.7). This is a
// from-scratch package grounded on the pre-distillation Rust sources
// under vote_generation/ and representatives/online_reps/, not on the
// teacher's UTXO consensus package (see DESIGN.md for why that package
// was not adapted).
package consensus

import (
	"sync"
	"time"

	"lattice.dev/node/types"
)

// VoteSpacing enforces a minimum delay between two votes on different
// blocks sharing the same election root, so a representative can't be
// tricked into voting for a fork seconds after voting for the original
// (spec §4.6 "vote spacing"). A repeat vote for the *same* hash is
// always allowed regardless of timing.
type VoteSpacing struct {
	delay time.Duration

	mu      sync.Mutex
	byRoot  map[types.Hash]spacingEntry
}

type spacingEntry struct {
	hash types.Hash
	at   time.Time
}

func NewVoteSpacing(delay time.Duration) *VoteSpacing {
	return &VoteSpacing{delay: delay, byRoot: make(map[types.Hash]spacingEntry)}
}

// Votable reports whether root/hash may be voted on right now: true if
// there is no recent vote for root, the recent vote was for the same
// hash, or the recent vote has aged past the spacing delay.
func (s *VoteSpacing) Votable(root, hash types.Hash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byRoot[root]
	if !ok {
		return true
	}
	return e.hash == hash || time.Since(e.at) >= s.delay
}

// Flag records that root/hash was just voted on, trimming stale
// entries opportunistically so the map doesn't grow unbounded across a
// long-running node.
func (s *VoteSpacing) Flag(root, hash types.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trimLocked()
	s.byRoot[root] = spacingEntry{hash: hash, at: time.Now()}
}

func (s *VoteSpacing) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byRoot)
}

func (s *VoteSpacing) trimLocked() {
	for root, e := range s.byRoot {
		if time.Since(e.at) >= s.delay {
			delete(s.byRoot, root)
		}
	}
}
