package cementer

import (
	"fmt"
	"time"

	"lattice.dev/node/kvstore"
	"lattice.dev/node/ledger"
	"lattice.dev/node/types"
)

// CementedCallback is invoked once per block as it is cemented, in
// ascending height order within its account (spec §4.9).
type CementedCallback func(account types.Account, hash types.Hash, height uint64)

// Cementer walks a confirmed frontier back to the account's current
// cemented height and writes confirmation heights forward in batches,
// recursing into source accounts whose dependent receive has not yet
// been cemented (spec §4.9's "dependency stack").
type Cementer struct {
	store    kvstore.Store
	queue    *kvstore.WriteQueue
	sizer    *BatchWriteSizeManager
	onCement CementedCallback
}

func New(store kvstore.Store, queue *kvstore.WriteQueue, sizer *BatchWriteSizeManager, onCement CementedCallback) *Cementer {
	return &Cementer{store: store, queue: queue, sizer: sizer, onCement: onCement}
}

// frame is one entry of the explicit dependency stack: the walk
// currently cementing account up to (and including) target.
type frame struct {
	account types.Account
	target  types.Hash
}

// Cement cements account's chain up to and including frontier. If
// frontier is already at or below the account's cemented height this
// is a no-op.
func (c *Cementer) Cement(account types.Account, frontier types.Hash) error {
	stack := []frame{{account: account, target: frontier}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]

		chain, done, err := c.collect(top.account, top.target)
		if err != nil {
			return err
		}
		if done {
			stack = stack[:len(stack)-1]
			continue
		}

		blocked, err := c.cementChain(top.account, chain)
		if err != nil {
			return err
		}
		if blocked == nil {
			stack = stack[:len(stack)-1]
			continue
		}
		// A receive in the chain depends on a source block not yet
		// cemented on its own account; suspend this walk and recurse
		// into the source account first (spec §4.9 "suspends the
		// current walk and recurses").
		stack = append(stack, frame{account: blocked.account, target: blocked.hash})
	}
	return nil
}

// collect walks backward from target via Previous pointers until it
// reaches account's current cemented frontier, returning the ascending
// (oldest-first) chain of hashes still to cement. done is true if
// target is already cemented.
func (c *Cementer) collect(account types.Account, target types.Hash) (chain []types.Hash, done bool, err error) {
	tx, err := c.store.BeginRead()
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	info, ok, err := ledger.ReadConfirmationHeight(tx, account)
	if err != nil {
		return nil, false, err
	}
	cementedHeight := uint64(0)
	if ok {
		cementedHeight = info.Height
	}

	var reversed []types.Hash
	cur := target
	for {
		if cur == types.ZeroHash {
			break
		}
		side, ok, err := ledger.ReadSideband(tx, cur)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, fmt.Errorf("cementer: block %x not found", cur)
		}
		if side.Height <= cementedHeight {
			break
		}
		reversed = append(reversed, cur)
		blk, _, _, err := ledger.ReadBlock(tx, cur)
		if err != nil {
			return nil, false, err
		}
		cur = blk.Previous()
	}
	if len(reversed) == 0 {
		return nil, true, nil
	}
	chain = make([]types.Hash, len(reversed))
	for i, h := range reversed {
		chain[len(reversed)-1-i] = h
	}
	return chain, false, nil
}

// dependency names a source block this walk is blocked on.
type dependency struct {
	account types.Account
	hash    types.Hash
}

// cementChain cements chain's blocks in ascending order, in batches
// sized by the BatchWriteSizeManager, stopping (and returning the
// dependency) the moment it reaches a receive whose source block has
// not itself been cemented on its own account.
func (c *Cementer) cementChain(account types.Account, chain []types.Hash) (*dependency, error) {
	for start := 0; start < len(chain); {
		size := c.sizer.Size()
		end := start + size
		if end > len(chain) {
			end = len(chain)
		}
		batch := chain[start:end]

		blockedDep, cemented, err := c.cementBatch(account, batch)
		if err != nil {
			return nil, err
		}
		if blockedDep != nil {
			return blockedDep, nil
		}
		start += cemented
	}
	return nil, nil
}

// cementBatch commits one write transaction advancing account's
// confirmation height across as many of batch's blocks as are
// unblocked, firing onCement for each in order. It returns early (with
// the blocking dependency) at the first receive whose source is not
// yet cemented on the source account.
func (c *Cementer) cementBatch(account types.Account, batch []types.Hash) (*dependency, int, error) {
	started := time.Now()

	tx, err := c.queue.Begin(kvstore.PurposeConfirmationHeight)
	if err != nil {
		return nil, 0, err
	}

	cemented := 0
	var blocked *dependency
	var lastHeight uint64
	var lastHash types.Hash

	for _, hash := range batch {
		side, ok, err := ledger.ReadSideband(tx, hash)
		if err != nil {
			tx.Rollback()
			return nil, 0, err
		}
		if !ok {
			tx.Rollback()
			return nil, 0, fmt.Errorf("cementer: block %x not found", hash)
		}

		// Cross-account dependency checking is only possible for state
		// blocks: legacy variants don't retain their Link/Source field
		// in storage (see ledger.ReadBlock's doc comment), so a legacy
		// receive cements without a dependency check.
		if side.Details.IsReceive {
			blk, _, _, err := ledger.ReadBlock(tx, hash)
			if err != nil {
				tx.Rollback()
				return nil, 0, err
			}
			if blk.Type != types.BlockTypeState {
				lastHeight = side.Height
				lastHash = hash
				cemented++
				continue
			}
			sourceHash := types.Hash(blk.State.Link)
			srcSide, ok, err := ledger.ReadSideband(tx, sourceHash)
			if err != nil {
				tx.Rollback()
				return nil, 0, err
			}
			if ok {
				srcInfo, _, err := ledger.ReadConfirmationHeight(tx, srcSide.Account)
				if err != nil {
					tx.Rollback()
					return nil, 0, err
				}
				if srcInfo.Height < srcSide.Height {
					blocked = &dependency{account: srcSide.Account, hash: sourceHash}
					break
				}
			}
		}

		lastHeight = side.Height
		lastHash = hash
		cemented++
	}

	if cemented == 0 {
		tx.Rollback()
		if blocked == nil {
			return nil, 0, fmt.Errorf("cementer: no progress cementing account %x", account)
		}
		return blocked, 0, nil
	}

	if err := ledger.WriteConfirmationHeight(tx, account, types.ConfirmationHeightInfo{
		Height:   lastHeight,
		Frontier: lastHash,
	}); err != nil {
		tx.Rollback()
		return nil, 0, err
	}
	if err := tx.Commit(); err != nil {
		return nil, 0, err
	}

	c.sizer.Report(time.Since(started), cemented)

	if c.onCement != nil {
		height := lastHeight - uint64(cemented) + 1
		for i, hash := range batch[:cemented] {
			c.onCement(account, hash, height+uint64(i))
		}
	}

	return blocked, cemented, nil
}
