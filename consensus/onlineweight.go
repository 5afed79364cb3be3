package consensus

import (
	"math/big"
	"sort"
	"time"

	"lattice.dev/node/types"
)

// OnlineWindow is how long a representative is considered "online"
// after its last observed vote (spec §4.6's quorum derivation).
const OnlineWindow = 2 * time.Hour

// OnlineContainer tracks which representatives have voted recently,
// keyed so both "is X online" and "trim everything older than T" are
// cheap. Grounded on the pre-distillation OnlineContainer (two indices,
// by-account and by-time), simplified to a single map with no lock of
// its own.
type OnlineContainer struct {
	byAccount map[types.Account]time.Time
}

func NewOnlineContainer() *OnlineContainer {
	return &OnlineContainer{byAccount: make(map[types.Account]time.Time)}
}

// Observe records rep as online at now, returning whether this is a
// new entry (as opposed to a refresh of an existing one).
func (c *OnlineContainer) Observe(rep types.Account, now time.Time) bool {
	_, existed := c.byAccount[rep]
	c.byAccount[rep] = now
	return !existed
}

// Trim drops every representative whose last-seen time is before
// cutoff, reporting whether anything was removed.
func (c *OnlineContainer) Trim(cutoff time.Time) bool {
	trimmed := false
	for rep, at := range c.byAccount {
		if at.Before(cutoff) {
			delete(c.byAccount, rep)
			trimmed = true
		}
	}
	return trimmed
}

func (c *OnlineContainer) Len() int { return len(c.byAccount) }

func (c *OnlineContainer) Accounts() []types.Account {
	out := make([]types.Account, 0, len(c.byAccount))
	for rep := range c.byAccount {
		out = append(out, rep)
	}
	return out
}

// WeightLookup resolves a representative's current delegated weight;
// satisfied by *ledger.RepWeights.
type WeightLookup interface {
	Weight(rep types.Account) types.Amount
}

// OnlineWeightSampler tracks the current online-weight total plus a
// rolling window of hourly samples, so the quorum threshold
// (max(online, trended, minimum) * 67/100, spec §4.6) can use a
// trended figure that resists a brief weight dip or spike.
type OnlineWeightSampler struct {
	online  *OnlineContainer
	weights WeightLookup
	samples []types.Amount
	maxSamples int
}

// maxOnlineWeightSamples matches the production network's weekly
// rolling window at one sample per hour.
const maxOnlineWeightSamples = 7 * 24

func NewOnlineWeightSampler(weights WeightLookup) *OnlineWeightSampler {
	return &OnlineWeightSampler{
		online:     NewOnlineContainer(),
		weights:    weights,
		maxSamples: maxOnlineWeightSamples,
	}
}

// ObserveVote marks rep online as of now; call this whenever a valid
// vote is received from rep, regardless of whether it changes tally.
func (s *OnlineWeightSampler) ObserveVote(rep types.Account, now time.Time) {
	s.online.Observe(rep, now)
	s.online.Trim(now.Add(-OnlineWindow))
}

// CurrentOnlineWeight sums the weight of every representative observed
// within the online window.
func (s *OnlineWeightSampler) CurrentOnlineWeight() types.Amount {
	total := types.ZeroAmount()
	for _, rep := range s.online.Accounts() {
		total = total.Add(s.weights.Weight(rep))
	}
	return total
}

// Sample appends the current online weight to the rolling window,
// evicting the oldest sample once the window is full. Callers invoke
// this roughly once per hour.
func (s *OnlineWeightSampler) Sample() {
	s.samples = append(s.samples, s.CurrentOnlineWeight())
	if len(s.samples) > s.maxSamples {
		s.samples = s.samples[len(s.samples)-s.maxSamples:]
	}
}

// Trended returns the median of the rolling sample window, or zero if
// no samples have been taken yet.
func (s *OnlineWeightSampler) Trended() types.Amount {
	if len(s.samples) == 0 {
		return types.ZeroAmount()
	}
	sorted := make([]types.Amount, len(s.samples))
	copy(sorted, s.samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Cmp(sorted[j]) < 0 })
	return sorted[len(sorted)/2]
}

// QuorumThreshold is max(current, trended, minimum) * 67 / 100, the
// weighted-quorum requirement a normal (non-final) vote tally must
// clear to confirm a block (spec §4.6).
func QuorumThreshold(current, trended, minimum types.Amount) types.Amount {
	base := current
	if trended.Cmp(base) > 0 {
		base = trended
	}
	if minimum.Cmp(base) > 0 {
		base = minimum
	}
	scaled := new(big.Int).Mul(base.Big(), big.NewInt(67))
	scaled.Div(scaled, big.NewInt(100))
	return types.AmountFromBig(scaled)
}
