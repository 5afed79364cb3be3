package consensus

import (
	"sync"
	"time"

	"lattice.dev/node/types"
)

// ElectionBehavior records why an election was started, mirroring the
// three admission paths spec §4.7's scheduler and bucket pool
// distinguish between.
type ElectionBehavior int

const (
	BehaviorNormal ElectionBehavior = iota
	BehaviorHinted
	BehaviorOptimistic
)

// VoteCode is the per-hash outcome of routing one vote into an
// election, aggregated by VoteProcessor (spec §4.6).
type VoteCode int

const (
	VoteInvalid VoteCode = iota
	VoteReplay
	VoteIndeterminate
	VoteVote
)

func (c VoteCode) String() string {
	switch c {
	case VoteInvalid:
		return "invalid"
	case VoteReplay:
		return "replay"
	case VoteIndeterminate:
		return "indeterminate"
	case VoteVote:
		return "vote"
	default:
		return "unknown"
	}
}

type voteRecord struct {
	vote   *types.Vote
	hash   types.Hash
	weight types.Amount
}

// Election is the live tally-and-candidate-set for one qualified root
// (spec §3 "Election"). Root is the previous-block hash for a
// non-open chain, or the account itself for an open (matching
// types.Block.Root).
type Election struct {
	mu sync.Mutex

	Root    types.Hash
	Account types.Account

	candidates map[types.Hash]*types.Block
	tally      map[types.Hash]types.Amount
	lastVotes  map[types.Account]voteRecord

	State                    types.ElectionState
	ConfirmationRequestCount int
	Behavior                 ElectionBehavior
	Arrival                  time.Time

	Winner         types.Hash
	confirmedAt    time.Time
	rescheduled    bool
}

func newElection(root types.Hash, account types.Account, hash types.Hash, b *types.Block, behavior ElectionBehavior) *Election {
	return &Election{
		Root:       root,
		Account:    account,
		candidates: map[types.Hash]*types.Block{hash: b},
		tally:      map[types.Hash]types.Amount{hash: types.ZeroAmount()},
		lastVotes:  make(map[types.Account]voteRecord),
		State:      types.ElectionPassive,
		Behavior:   behavior,
		Arrival:    time.Now(),
		Winner:     hash,
	}
}

// AddCandidate registers an alternative block for the same root,
// reporting whether it was new (spec §4.8 "the block is added as an
// alternative candidate").
func (e *Election) AddCandidate(hash types.Hash, b *types.Block) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.candidates[hash]; exists {
		return false
	}
	e.candidates[hash] = b
	e.tally[hash] = types.ZeroAmount()
	return true
}

// HasCandidate reports whether hash is one of this election's
// alternatives, without copying the block.
func (e *Election) HasCandidate(hash types.Hash) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.candidates[hash]
	return ok
}

// Candidates returns a snapshot of the current candidate set.
func (e *Election) Candidates() map[types.Hash]*types.Block {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[types.Hash]*types.Block, len(e.candidates))
	for h, b := range e.candidates {
		out[h] = b
	}
	return out
}

// Tally returns a snapshot of the current per-candidate vote weight.
func (e *Election) Tally() map[types.Hash]types.Amount {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[types.Hash]types.Amount, len(e.tally))
	for h, a := range e.tally {
		out[h] = a
	}
	return out
}

// registerVote applies one representative's weight to hash, replacing
// whatever this representative previously contributed to this
// election (spec §5 "last_vote[account] keeps only the vote with the
// higher timestamp"). hash must already be a candidate; callers check
// via HasCandidate/the active set's hash index before calling this.
func (e *Election) registerVote(account types.Account, weight types.Amount, hash types.Hash, v *types.Vote) VoteCode {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.candidates[hash]; !ok {
		return VoteIndeterminate
	}
	if prev, existed := e.lastVotes[account]; existed {
		if !v.Supersedes(prev.vote) {
			return VoteReplay
		}
		if t, ok := e.tally[prev.hash]; ok {
			if sub, ok := t.Sub(prev.weight); ok {
				e.tally[prev.hash] = sub
			}
		}
	}
	e.tally[hash] = e.tally[hash].Add(weight)
	e.lastVotes[account] = voteRecord{vote: v, hash: hash, weight: weight}
	return VoteVote
}

// winningTally reports the best-tallied candidate hash and its weight,
// for quorum comparison by ActiveElections.
func (e *Election) winningTally() (types.Hash, types.Amount) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var best types.Hash
	bestAmt := types.ZeroAmount()
	first := true
	for h, a := range e.tally {
		if first || a.Cmp(bestAmt) > 0 {
			best, bestAmt = h, a
			first = false
		}
	}
	return best, bestAmt
}

func (e *Election) setConfirmed(winner types.Hash, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.State = types.ElectionConfirmed
	e.Winner = winner
	e.confirmedAt = now
}

func (e *Election) incrementConfirmationRequests() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ConfirmationRequestCount++
	return e.ConfirmationRequestCount
}

func (e *Election) stateSnapshot() types.ElectionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.State
}
