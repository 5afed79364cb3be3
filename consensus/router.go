package consensus

import "lattice.dev/node/types"

// VoteRouter maps each hash named by an incoming vote to whichever live
// election (if any) holds it as a candidate (spec §4.6). ActiveElections
// satisfies this directly via its internal hash index; VoteProcessor
// depends on this narrow interface rather than the whole ActiveElections
// surface so it can be tested against a stub router.
type VoteRouter interface {
	Vote(account types.Account, weight types.Amount, v *types.Vote) map[types.Hash]VoteCode
}
