package consensus

import (
	"sync"
	"time"

	"lattice.dev/node/types"
)

// ElectionTimeout is how long an election may run without confirming
// before it is swept as expired (spec §4.8 "elections expire after a
// timeout").
const ElectionTimeout = 5 * time.Minute

// QuorumProvider resolves the current confirmation threshold; satisfied
// by a type built on OnlineWeightSampler plus a configured minimum
// (spec Glossary "Quorum").
type QuorumProvider interface {
	Quorum() types.Amount
}

// ConfirmedHandler is invoked once, synchronously, when an election's
// winning candidate first reaches quorum. It is expected to hand the
// block to the cementer; ActiveElections holds no reference back to
// the cementer itself (spec §9 "weak references for back-pointers").
type ConfirmedHandler func(root types.Hash, winner types.Hash, block *types.Block)

// ActiveElections holds the live election set keyed by qualified root
// and the tally/quorum machinery described in spec §4.8. Grounded on
// the pre-distillation active_transactions.rs structure, reshaped
// around Go's map+mutex idiom rather than that file's multi-index
// container.
type ActiveElections struct {
	mu        sync.Mutex
	byRoot    map[types.Hash]*Election
	hashIndex map[types.Hash]*Election

	quorum     QuorumProvider
	onConfirm  ConfirmedHandler
}

func NewActiveElections(quorum QuorumProvider, onConfirm ConfirmedHandler) *ActiveElections {
	return &ActiveElections{
		byRoot:    make(map[types.Hash]*Election),
		hashIndex: make(map[types.Hash]*Election),
		quorum:    quorum,
		onConfirm: onConfirm,
	}
}

// Insert registers hash/block as a candidate for root, creating a new
// Election if none exists yet, or adding it as an alternative to an
// existing one (spec §4.8 "insert(block, behavior) returns (election,
// inserted)").
func (a *ActiveElections) Insert(root types.Hash, account types.Account, hash types.Hash, b *types.Block, behavior ElectionBehavior) (*Election, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if e, ok := a.byRoot[root]; ok {
		if e.AddCandidate(hash, b) {
			a.hashIndex[hash] = e
		}
		return e, false
	}

	e := newElection(root, account, hash, b, behavior)
	a.byRoot[root] = e
	a.hashIndex[hash] = e
	return e, true
}

// Get returns the election for root, if one is live.
func (a *ActiveElections) Get(root types.Hash) (*Election, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.byRoot[root]
	return e, ok
}

// Len reports the number of live elections.
func (a *ActiveElections) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.byRoot)
}

// Remove erases root's election (called after confirmation has been
// handed off to the cementer, or after expiry).
func (a *ActiveElections) Remove(root types.Hash) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.byRoot[root]
	if !ok {
		return
	}
	delete(a.byRoot, root)
	for h := range e.candidates {
		if a.hashIndex[h] == e {
			delete(a.hashIndex, h)
		}
	}
}

// Vote routes one representative's vote across every hash it names,
// applying weight to whichever live election (if any) has that hash as
// a candidate, and checking that election for confirmation afterward
// (spec §4.6 "per-hash results are aggregated to
// Replay|Vote|Indeterminate|Invalid").
func (a *ActiveElections) Vote(account types.Account, weight types.Amount, v *types.Vote) map[types.Hash]VoteCode {
	results := make(map[types.Hash]VoteCode, len(v.Hashes))
	for _, h := range v.Hashes {
		a.mu.Lock()
		e, ok := a.hashIndex[h]
		a.mu.Unlock()
		if !ok {
			results[h] = VoteIndeterminate
			continue
		}
		code := e.registerVote(account, weight, h, v)
		results[h] = code
		if code == VoteVote {
			a.checkConfirm(e)
		}
	}
	return results
}

// checkConfirm promotes e to Confirmed and invokes onConfirm if its
// best-tallied candidate has reached the current quorum threshold
// (spec §4.8 "confirms when any candidate's tally reaches the
// quorum").
func (a *ActiveElections) checkConfirm(e *Election) {
	if e.stateSnapshot() == types.ElectionConfirmed {
		return
	}
	winner, amount := e.winningTally()
	threshold := a.quorum.Quorum()
	if amount.Cmp(threshold) < 0 {
		return
	}
	e.setConfirmed(winner, time.Now())
	if a.onConfirm != nil {
		block := e.Candidates()[winner]
		a.onConfirm(e.Root, winner, block)
	}
}

// ConfirmationRequestRoots returns the root of every live, unconfirmed
// election and increments each one's confirmation-request count, for
// the periodic confirmation-request broadcast a real node sends to
// representatives that haven't voted yet. Candidate hashes are not
// returned.
func (a *ActiveElections) ConfirmationRequestRoots() []types.Hash {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]types.Hash, 0, len(a.byRoot))
	for root, e := range a.byRoot {
		if e.stateSnapshot() != types.ElectionConfirmed {
			out = append(out, root)
			e.incrementConfirmationRequests()
		}
	}
	return out
}

// SweepExpired transitions every unconfirmed election older than
// ElectionTimeout to ExpiredUnconfirmed; confirmed elections are
// skipped and are never moved to ExpiredConfirmed. It removes ones that have
// already been rescheduled once (spec §4.8 "expired-unconfirmed
// elections may be rescheduled once"). It returns the roots of
// elections that were newly marked expired-unconfirmed, so the
// scheduler can decide whether to give them one more run.
func (a *ActiveElections) SweepExpired(now time.Time) []types.Hash {
	a.mu.Lock()
	defer a.mu.Unlock()

	var expired []types.Hash
	for root, e := range a.byRoot {
		e.mu.Lock()
		age := now.Sub(e.Arrival)
		state := e.State
		rescheduled := e.rescheduled
		e.mu.Unlock()

		if state == types.ElectionConfirmed || age < ElectionTimeout {
			continue
		}

		if state == types.ElectionExpiredUnconfirmed && rescheduled {
			delete(a.byRoot, root)
			for h := range e.candidates {
				if a.hashIndex[h] == e {
					delete(a.hashIndex, h)
				}
			}
			continue
		}

		e.mu.Lock()
		e.State = types.ElectionExpiredUnconfirmed
		e.rescheduled = true
		e.mu.Unlock()
		expired = append(expired, root)
	}
	return expired
}
