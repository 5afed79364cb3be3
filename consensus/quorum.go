package consensus

import (
	"math/big"

	"lattice.dev/node/types"
)

// Quorum implements QuorumProvider over an OnlineWeightSampler plus a
// configured floor, exactly as spec Glossary defines it: max(online,
// trended, minimum) * 67 / 100.
type Quorum struct {
	sampler *OnlineWeightSampler
	minimum types.Amount
}

func NewQuorum(sampler *OnlineWeightSampler, minimum types.Amount) *Quorum {
	return &Quorum{sampler: sampler, minimum: minimum}
}

func (q *Quorum) Quorum() types.Amount {
	return QuorumThreshold(q.sampler.CurrentOnlineWeight(), q.sampler.Trended(), q.minimum)
}

// PrincipalWeightFactor is the divisor applied to online weight to
// derive the principal-representative floor (spec Glossary "Principal
// representative", default /1000).
const PrincipalWeightFactor = 1000

// IsPrincipal reports whether weight qualifies its holder as a
// principal representative under the current online weight.
func (q *Quorum) IsPrincipal(weight types.Amount) bool {
	floor := q.sampler.CurrentOnlineWeight().Big()
	floor.Div(floor, big.NewInt(PrincipalWeightFactor))
	return weight.Big().Cmp(floor) >= 0
}
