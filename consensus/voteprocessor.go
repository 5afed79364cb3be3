package consensus

import (
	"context"
	"sync"

	"lattice.dev/node/cryptoprovider"
	"lattice.dev/node/types"
	"lattice.dev/node/wire"
)

// voteQueueCapacity bounds each of the processor's two queues (spec
// §4.6 "bounded, priority-aware queue").
const voteQueueCapacity = 8192

// principalOtherRatio is how many principal-queue votes are drained for
// every one non-principal vote, so a representative with real weight
// is never stuck behind a flood of dust votes (spec §4.6 "drained in a
// 3:1 ratio").
const principalOtherRatio = 3

type queuedVote struct {
	vote   *types.Vote
	weight types.Amount
}

// VoteProcessor is the bounded, priority-aware vote admission queue of
// spec §4.6: every vote is signature-verified exactly once here, then
// handed to a VoteRouter.
type VoteProcessor struct {
	crypto  cryptoprovider.Provider
	weights WeightLookup
	quorum  *Quorum
	router  VoteRouter

	mu         sync.Mutex
	principal  []queuedVote
	other      []queuedVote
	notEmpty   chan struct{}
}

func NewVoteProcessor(crypto cryptoprovider.Provider, weights WeightLookup, quorum *Quorum, router VoteRouter) *VoteProcessor {
	return &VoteProcessor{
		crypto:   crypto,
		weights:  weights,
		quorum:   quorum,
		router:   router,
		notEmpty: make(chan struct{}, 1),
	}
}

// Add verifies vote's signature and enqueues it by its voting
// account's principal-representative status, returning false if the
// signature fails or the target queue is full (spec §4.6 "each vote is
// signature-verified once").
func (p *VoteProcessor) Add(vote *types.Vote) bool {
	digest, err := wire.HashVote(p.crypto, vote)
	if err != nil {
		return false
	}
	if !p.crypto.Verify([32]byte(vote.VotingAccount), [32]byte(digest), vote.Signature) {
		return false
	}

	weight := p.weights.Weight(vote.VotingAccount)
	principal := p.quorum.IsPrincipal(weight)

	p.mu.Lock()
	var ok bool
	if principal {
		if len(p.principal) < voteQueueCapacity {
			p.principal = append(p.principal, queuedVote{vote: vote, weight: weight})
			ok = true
		}
	} else {
		if len(p.other) < voteQueueCapacity {
			p.other = append(p.other, queuedVote{vote: vote, weight: weight})
			ok = true
		}
	}
	p.mu.Unlock()

	if ok {
		select {
		case p.notEmpty <- struct{}{}:
		default:
		}
	}
	return ok
}

// Len reports the combined depth of both queues.
func (p *VoteProcessor) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.principal) + len(p.other)
}

// Run drains both queues in a 3:1 principal:other ratio until ctx is
// canceled (spec §5 "N=max(1, min(4, cores/2)) VoteProcessor workers"
// — callers run one instance of Run per worker goroutine; draining is
// safe to parallelize since VoteRouter/Election internally synchronize).
func (p *VoteProcessor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.notEmpty:
		}

		for {
			drained := p.drainRound()
			if !drained {
				break
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
	}
}

// drainRound processes up to principalOtherRatio principal votes then
// one other vote, reporting whether anything was processed.
func (p *VoteProcessor) drainRound() bool {
	any := false
	for i := 0; i < principalOtherRatio; i++ {
		qv, ok := p.pop(&p.principal)
		if !ok {
			break
		}
		p.router.Vote(qv.vote.VotingAccount, qv.weight, qv.vote)
		any = true
	}
	if qv, ok := p.pop(&p.other); ok {
		p.router.Vote(qv.vote.VotingAccount, qv.weight, qv.vote)
		any = true
	}
	return any
}

func (p *VoteProcessor) pop(q *[]queuedVote) (queuedVote, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(*q) == 0 {
		return queuedVote{}, false
	}
	v := (*q)[0]
	*q = (*q)[1:]
	return v, true
}
