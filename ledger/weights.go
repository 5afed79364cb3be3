package ledger

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"lattice.dev/node/types"
)

// weightCacheSize bounds the hot representative-weight cache; accounts
// outside the working set fall back to the authoritative map, which
// Process and Rollback keep in sync through moveWeight.
const weightCacheSize = 4096

// RepWeights tracks each representative account's total delegated
// balance (spec §4.4 "voting weight is derived, not stored per-block").
// It is mutated in lockstep with every ledger write and never read from
// disk. It starts empty: nothing rebuilds it from the accounts bucket,
// so it covers only blocks processed since it was created.
type RepWeights struct {
	mu     sync.RWMutex
	totals map[types.Account]types.Amount
	hot    *lru.Cache[types.Account, types.Amount]
}

func NewRepWeights() *RepWeights {
	hot, _ := lru.New[types.Account, types.Amount](weightCacheSize)
	return &RepWeights{totals: make(map[types.Account]types.Amount), hot: hot}
}

func (w *RepWeights) Weight(rep types.Account) types.Amount {
	if v, ok := w.hot.Get(rep); ok {
		return v
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if v, ok := w.totals[rep]; ok {
		return v
	}
	return types.ZeroAmount()
}

// add applies a signed delta (positive when rep gains weight, negative
// when it loses it) to rep's total. Callers never let a total go
// negative; the ledger only removes from a representative a balance it
// earlier credited to that representative.
func (w *RepWeights) add(rep types.Account, delta types.Amount, negative bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	cur, ok := w.totals[rep]
	if !ok {
		cur = types.ZeroAmount()
	}
	var next types.Amount
	if negative {
		next, _ = cur.Sub(delta)
	} else {
		next = cur.Add(delta)
	}
	w.totals[rep] = next
	w.hot.Add(rep, next)
}

// moveWeight removes amount from from's total (if from is non-zero) and
// adds it to to's total (if to is non-zero). The ledger calls it with
// one side zero to debit an account's old balance from its old
// representative and credit its new balance to its new one.
func (w *RepWeights) moveWeight(from, to types.Account, amount types.Amount) {
	var zero types.Account
	if from != zero {
		w.add(from, amount, true)
	}
	if to != zero {
		w.add(to, amount, false)
	}
}
