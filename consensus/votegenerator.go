package consensus

import (
	"crypto/ed25519"
	"sync"

	"lattice.dev/node/cryptoprovider"
	"lattice.dev/node/types"
	"lattice.dev/node/wire"
)

// DefaultVoteDurationExponent is packed into the low 4 bits of every
// normal vote's timestamp (spec §3 "the timestamp's low 4 bits encode
// a duration exponent"). The exact value is a network parameter with
// no functional effect on this node's own logic, which never inspects
// Vote.Duration() itself.
const DefaultVoteDurationExponent uint8 = 9

// RepresentativeKey is one local voting identity: the account whose
// weight backs its votes, and the private key that signs them.
type RepresentativeKey struct {
	Account types.Account
	Priv    ed25519.PrivateKey
}

// VoteGenerator signs votes on behalf of every local representative,
// enforcing spec §4.6's vote spacing and the final-vote-only-after-
// normal-quorum ordering.
type VoteGenerator struct {
	crypto  cryptoprovider.Provider
	spacing *VoteSpacing
	reps    []RepresentativeKey

	mu       sync.Mutex
	sequence uint64
}

func NewVoteGenerator(crypto cryptoprovider.Provider, spacing *VoteSpacing, reps []RepresentativeKey) *VoteGenerator {
	return &VoteGenerator{crypto: crypto, spacing: spacing, reps: reps}
}

// GenerateNormal produces one normal vote per local representative
// when vote spacing permits voting hash on root (spec §8
// "Vote-spacing"). Spacing is tracked per root, not per
// representative, so either every local representative votes or none
// does.
func (g *VoteGenerator) GenerateNormal(root, hash types.Hash) ([]*types.Vote, error) {
	return g.generate(root, hash, func() uint64 { return g.nextTimestamp() })
}

// GenerateFinal produces final (all-ones timestamp) votes for hash.
// Callers are responsible for spec §4.6's ordering rule — final votes
// are only emitted once the election has already reached the
// final-vote quorum with normal votes — by calling this only after
// confirming that condition; this method itself only encodes the
// final-timestamp vote, the vote-spacing check, and signing.
func (g *VoteGenerator) GenerateFinal(root, hash types.Hash) ([]*types.Vote, error) {
	return g.generate(root, hash, func() uint64 { return types.FinalVoteTimestamp })
}

func (g *VoteGenerator) generate(root, hash types.Hash, timestamp func() uint64) ([]*types.Vote, error) {
	var votes []*types.Vote
	for _, rep := range g.reps {
		if !g.spacing.Votable(root, hash) {
			continue
		}
		v := &types.Vote{
			VotingAccount: rep.Account,
			Timestamp:     timestamp(),
			Hashes:        []types.Hash{hash},
		}
		digest, err := wire.HashVote(g.crypto, v)
		if err != nil {
			return nil, err
		}
		v.Signature = g.crypto.Sign(rep.Priv, [32]byte(digest))
		g.spacing.Flag(root, hash)
		votes = append(votes, v)
	}
	return votes, nil
}

// nextTimestamp packs a monotonically increasing ordinal with the
// default duration exponent in its low 4 bits (spec §3).
func (g *VoteGenerator) nextTimestamp() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sequence++
	return (g.sequence << 4) | uint64(DefaultVoteDurationExponent)
}
