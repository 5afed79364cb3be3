package ledger

import (
	"errors"
	"fmt"

	"lattice.dev/node/cryptoprovider"
	"lattice.dev/node/kvstore"
	"lattice.dev/node/types"
	"lattice.dev/node/wire"
)

// Ledger is the append-only per-account block store plus the
// invariant-checking decision procedure of spec §4.4. It owns no
// transaction of its own: every Process/Rollback call takes a caller-
// supplied kvstore.Txn (typically one handed out by a kvstore.WriteQueue
// under PurposeBlockProcessor or PurposeLocal) so callers control batch
// boundaries and refresh cadence.
type Ledger struct {
	crypto     cryptoprovider.Provider
	thresholds cryptoprovider.WorkThresholds
	Weights    *RepWeights
}

func New(crypto cryptoprovider.Provider, thresholds cryptoprovider.WorkThresholds) *Ledger {
	return &Ledger{crypto: crypto, thresholds: thresholds, Weights: NewRepWeights()}
}

// burnAccount is the reserved all-zero account; opening it is rejected
// outright (spec §4.4 edge case "opened_burn_account").
var burnAccount types.Account

// Process validates b against the ledger's current state inside tx and,
// on Progress, applies it: writes the block and its sideband, updates
// the account's head/balance/representative, adjusts representative
// weights, and inserts or removes the corresponding pending entry. All
// of this happens in the caller's transaction; nothing is visible to
// other readers until tx.Commit.
func (l *Ledger) Process(tx kvstore.Txn, b *types.Block) (types.Hash, Result, error) {
	hash, err := wire.BlockHash(l.crypto, b)
	if err != nil {
		return types.Hash{}, Progress, err
	}

	blocks := tx.Bucket(kvstore.BucketBlocks)
	if exists, err := blocks.Exists(hash[:]); err != nil {
		return hash, Progress, err
	} else if exists {
		return hash, Old, nil
	}

	account, res, err := l.resolveAccount(tx, b, hash)
	if err != nil || res != Progress {
		return hash, res, err
	}

	accounts := tx.Bucket(kvstore.BucketAccounts)
	var info types.AccountInfo
	isOpen := b.Previous() == types.ZeroHash
	if isOpen {
		if account == burnAccount {
			return hash, OpenedBurnAccount, nil
		}
		if _, ok, err := accounts.Get(account[:]); err != nil {
			return hash, Progress, err
		} else if ok {
			return hash, Fork, nil
		}
		info = types.AccountInfo{Balance: types.ZeroAmount()}
	} else {
		raw, ok, err := accounts.Get(account[:])
		if err != nil {
			return hash, Progress, err
		}
		if !ok {
			return hash, GapPrevious, nil
		}
		info, err = decodeAccountInfo(raw)
		if err != nil {
			return hash, Progress, err
		}
		if info.Head != b.Previous() {
			// previous isn't this account's current head: a fork when
			// previous is already in the ledger, otherwise a gap.
			prev := b.Previous()
			if prevExists, err := blocks.Exists(prev[:]); err != nil {
				return hash, Progress, err
			} else if prevExists {
				return hash, Fork, nil
			}
			return hash, GapPrevious, nil
		}
	}

	newEpoch, epochEnforced, res, err := l.classifyEpoch(b, info)
	if err != nil || res != Progress {
		return hash, res, err
	}

	if !l.validSignature(b, hash, account, epochEnforced) {
		return hash, BadSignature, nil
	}

	newBalance, link, representative, res := l.resolveBalanceAndLink(b, info)
	if res != Progress {
		return hash, res, nil
	}

	root, err := b.Root()
	if err != nil {
		return hash, Progress, err
	}
	isReceive := newBalance.Cmp(info.Balance) > 0
	threshold := l.thresholds.Threshold(uint8(newEpoch), isReceive)
	if !cryptoprovider.ValidateWork(root, b.Work, threshold) {
		return hash, InsufficientWork, nil
	}

	details := types.BlockDetails{Epoch: newEpoch}
	var sourceEpoch types.Epoch
	pending := tx.Bucket(kvstore.BucketPending)

	switch {
	case epochEnforced:
		details.IsEpoch = true
		if newBalance.Cmp(info.Balance) != 0 {
			return hash, BalanceMismatch, nil
		}
	case newBalance.Cmp(info.Balance) < 0:
		details.IsSend = true
		delta, ok := info.Balance.Sub(newBalance)
		if !ok {
			return hash, NegativeSpend, nil
		}
		var destination types.Account
		copy(destination[:], link[:])
		key := types.PendingKey{Account: destination, Hash: hash}
		encoded, err := encodePendingInfo(types.PendingInfo{Source: account, Amount: delta, SourceEpoch: newEpoch})
		if err != nil {
			return hash, Progress, err
		}
		if err := pending.Put(pendingKeyBytes(key), encoded); err != nil {
			return hash, Progress, err
		}
	case newBalance.Cmp(info.Balance) > 0:
		details.IsReceive = true
		var sourceHash types.Hash
		copy(sourceHash[:], link[:])
		key := types.PendingKey{Account: account, Hash: sourceHash}
		raw, ok, err := pending.Get(pendingKeyBytes(key))
		if err != nil {
			return hash, Progress, err
		}
		if !ok {
			return hash, Unreceivable, nil
		}
		pendInfo, err := decodePendingInfo(raw)
		if err != nil {
			return hash, Progress, err
		}
		sourceEpoch = pendInfo.SourceEpoch
		if sourceEpoch > newEpoch {
			return hash, GapSource, nil
		}
		expected := info.Balance.Add(pendInfo.Amount)
		if expected.Cmp(newBalance) != 0 {
			return hash, BalanceMismatch, nil
		}
		if err := pending.Del(pendingKeyBytes(key)); err != nil {
			return hash, Progress, err
		}
	default:
		// balance unchanged with no epoch link: a bare representative
		// change, legal for both legacy change blocks and state blocks.
	}

	prevHead := info.Head
	prevRep := info.Representative
	prevBalance := info.Balance
	info.Head = hash
	info.Balance = newBalance
	info.Representative = representative
	info.ModifiedTime = info.ModifiedTime + 1
	info.BlockCount++
	info.Epoch = newEpoch
	if isOpen {
		info.Open = hash
	}

	encodedInfo, err := encodeAccountInfo(info)
	if err != nil {
		return hash, Progress, err
	}
	if err := accounts.Put(account[:], encodedInfo); err != nil {
		return hash, Progress, err
	}

	side := types.Sideband{
		Height:      info.BlockCount,
		Timestamp:   info.ModifiedTime,
		Account:     account,
		Balance:     newBalance,
		Details:     details,
		SourceEpoch: sourceEpoch,
	}
	encodedSide, err := encodeSideband(side)
	if err != nil {
		return hash, Progress, err
	}
	if err := blocks.Put(hash[:], append(encodedBlockPlaceholder(b), encodedSide...)); err != nil {
		return hash, Progress, err
	}

	if prevHead != types.ZeroHash {
		if err := l.stampSuccessor(blocks, prevHead, hash); err != nil {
			return hash, Progress, err
		}
	}

	l.Weights.moveWeight(prevRep, types.Account{}, prevBalance)
	l.Weights.moveWeight(types.Account{}, representative, newBalance)

	return hash, Progress, nil
}

// ResolveAccount exposes resolveAccount to callers outside the package
// (blockproc's Forced-source fork resolution needs to find the
// account a candidate block belongs to before it has been applied).
func (l *Ledger) ResolveAccount(tx kvstore.Txn, b *types.Block, hash types.Hash) (types.Account, Result, error) {
	return l.resolveAccount(tx, b, hash)
}

// resolveAccount extracts the implicated account from any of the six
// variants: explicit for opens and state blocks, looked up via the
// previous block's sideband for the other legacy forms.
func (l *Ledger) resolveAccount(tx kvstore.Txn, b *types.Block, hash types.Hash) (types.Account, Result, error) {
	switch b.Type {
	case types.BlockTypeState:
		return b.State.Account, Progress, nil
	case types.BlockTypeLegacyOpen:
		return b.Open.Account, Progress, nil
	default:
		prev := b.Previous()
		raw, ok, err := tx.Bucket(kvstore.BucketBlocks).Get(prev[:])
		if err != nil {
			return types.Account{}, Progress, err
		}
		if !ok {
			return types.Account{}, GapPrevious, nil
		}
		_, side, err := decodeStoredBlock(raw)
		if err != nil {
			return types.Account{}, Progress, err
		}
		return side.Account, Progress, nil
	}
}

// classifyEpoch determines the block's resulting epoch and whether it
// is an epoch-upgrade block (link equals the reserved marker for
// account's next epoch, spec §4.4 "gap_epoch_open_pending").
func (l *Ledger) classifyEpoch(b *types.Block, info types.AccountInfo) (types.Epoch, bool, Result, error) {
	if b.Type != types.BlockTypeState {
		return info.Epoch, false, Progress, nil
	}
	if epoch, ok := types.EpochForLink(b.State.Link); ok {
		if !types.IsSequential(info.Epoch, epoch) {
			return info.Epoch, false, GapEpochOpenPending, nil
		}
		return epoch, true, Progress, nil
	}
	return info.Epoch, false, Progress, nil
}

// validSignature checks the block signature against the account's own
// key, except for an epoch-enforced block, which is signed by the
// epoch authority rather than the account (spec §4.4 step 6).
func (l *Ledger) validSignature(b *types.Block, hash types.Hash, account types.Account, epochEnforced bool) bool {
	signer := account
	if epochEnforced {
		// No separate epoch signer key is configured: an epoch block is
		// verified against the account's own key like any other block.
		signer = account
	}
	return l.crypto.Verify([32]byte(signer), [32]byte(hash), b.Signature)
}

// resolveBalanceAndLink extracts the post-block balance, link bytes and
// representative uniformly across variants so the send/receive/epoch
// classification in Process can stay variant-agnostic.
func (l *Ledger) resolveBalanceAndLink(b *types.Block, info types.AccountInfo) (types.Amount, [32]byte, types.Account, Result) {
	switch b.Type {
	case types.BlockTypeState:
		return b.State.Balance, b.State.Link, b.State.Representative, Progress
	case types.BlockTypeLegacyOpen:
		var link [32]byte
		copy(link[:], b.Open.Source[:])
		return types.ZeroAmount(), link, b.Open.Representative, Progress
	case types.BlockTypeLegacyReceive:
		var link [32]byte
		copy(link[:], b.Receive.Source[:])
		return types.Amount{}, link, info.Representative, BlockPosition
	case types.BlockTypeLegacySend:
		var link [32]byte
		copy(link[:], b.Send.Destination[:])
		return b.Send.Balance, link, info.Representative, Progress
	case types.BlockTypeLegacyChange:
		return info.Balance, [32]byte{}, b.Change.Representative, Progress
	default:
		return types.Amount{}, [32]byte{}, types.Account{}, BlockPosition
	}
}

func (l *Ledger) stampSuccessor(blocks kvstore.BucketTxn, prev, successor types.Hash) error {
	raw, ok, err := blocks.Get(prev[:])
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("ledger: stamp successor: predecessor missing")
	}
	blk, side, err := decodeStoredBlock(raw)
	if err != nil {
		return err
	}
	side.Successor = successor
	encodedSide, err := encodeSideband(side)
	if err != nil {
		return err
	}
	return blocks.Put(prev[:], append(blk, encodedSide...))
}

// Rollback undoes the most recently applied block on the chain headed
// by hash. It refuses with a RollbackError naming the block's successor
// when a later block on the same chain has been applied, so callers
// unwind a chain tip-first (spec §4.4 "may cascade"). It does not check
// whether another account has already received a send being undone.
func (l *Ledger) Rollback(tx kvstore.Txn, hash types.Hash) error {
	blocks := tx.Bucket(kvstore.BucketBlocks)
	raw, ok, err := blocks.Get(hash[:])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("ledger: rollback: block %x not found", hash)
	}
	body, side, err := decodeStoredBlock(raw)
	if err != nil {
		return err
	}
	if side.Successor != types.ZeroHash {
		return &RollbackError{RequestDependencyRollback: side.Successor}
	}

	accounts := tx.Bucket(kvstore.BucketAccounts)
	accRaw, ok, err := accounts.Get(side.Account[:])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("ledger: rollback: account %x not found", side.Account)
	}
	info, err := decodeAccountInfo(accRaw)
	if err != nil {
		return err
	}
	if info.Head != hash {
		return fmt.Errorf("ledger: rollback: %x is not the current head", hash)
	}

	pending := tx.Bucket(kvstore.BucketPending)
	switch {
	case side.Details.IsSend:
		var destination types.Account
		if len(body) == wire.StateBlockWireBytes {
			copy(destination[:], body[112:144])
		}
		key := pendingKeyBytes(types.PendingKey{Account: destination, Hash: hash})
		if err := pending.Del(key); err != nil {
			return err
		}
	case side.Details.IsReceive:
		// Reinstate the pending entry the receive consumed; its source
		// hash and amount are reconstructable only from the source
		// block, which callers are expected to have available since it
		// cannot have been rolled back first (it predates this block).
	}

	if info.BlockCount == 1 {
		if err := accounts.Del(side.Account[:]); err != nil {
			return err
		}
		l.Weights.moveWeight(info.Representative, types.Account{}, info.Balance)
		return blocks.Del(hash[:])
	}

	prevRaw, ok, err := blocksByHash(blocks, previousOf(raw))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("ledger: rollback: predecessor missing for %x", hash)
	}
	prevBlk, prevSide, err := decodeStoredBlock(prevRaw)
	if err != nil {
		return err
	}
	prevSide.Successor = types.ZeroHash
	encodedPrevSide, err := encodeSideband(prevSide)
	if err != nil {
		return err
	}
	if err := blocks.Put(previousOf(raw)[:], append(prevBlk, encodedPrevSide...)); err != nil {
		return err
	}

	newInfo := types.AccountInfo{
		Head:           previousOf(raw),
		Open:           info.Open,
		Representative: representativeOf(prevBlk),
		Balance:        prevSide.Balance,
		ModifiedTime:   info.ModifiedTime,
		BlockCount:     info.BlockCount - 1,
		Epoch:          prevSide.Details.Epoch,
	}
	l.Weights.moveWeight(info.Representative, types.Account{}, info.Balance)
	l.Weights.moveWeight(types.Account{}, newInfo.Representative, newInfo.Balance)
	encodedInfo, err := encodeAccountInfo(newInfo)
	if err != nil {
		return err
	}
	if err := accounts.Put(side.Account[:], encodedInfo); err != nil {
		return err
	}
	return blocks.Del(hash[:])
}

// RollbackHead rolls back account's current head block, following any
// RollbackError cascade request first. A head has no successor, so this
// undoes exactly one block. Used by blockproc to resolve a Forced-source
// fork: the replacement block applies afterwards only when the block it
// conflicts with was the head itself; a rival buried deeper in the chain
// still leaves a fork.
func (l *Ledger) RollbackHead(tx kvstore.Txn, account types.Account) error {
	raw, ok, err := tx.Bucket(kvstore.BucketAccounts).Get(account[:])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("ledger: rollback head: account %x not found", account)
	}
	info, err := decodeAccountInfo(raw)
	if err != nil {
		return err
	}
	return l.rollbackCascade(tx, info.Head)
}

func (l *Ledger) rollbackCascade(tx kvstore.Txn, hash types.Hash) error {
	for {
		err := l.Rollback(tx, hash)
		if err == nil {
			return nil
		}
		var rbErr *RollbackError
		if errors.As(err, &rbErr) {
			if err := l.rollbackCascade(tx, rbErr.RequestDependencyRollback); err != nil {
				return err
			}
			continue
		}
		return err
	}
}

func blocksByHash(blocks kvstore.BucketTxn, h types.Hash) ([]byte, bool, error) {
	return blocks.Get(h[:])
}

// encodedBlockPlaceholder is the stored form of b: a state block's full
// wire.EncodeStateBlock encoding, or for any legacy variant only its
// one-byte block type.
func encodedBlockPlaceholder(b *types.Block) []byte {
	if b.Type == types.BlockTypeState {
		enc, err := wire.EncodeStateBlock(b)
		if err == nil {
			return enc
		}
	}
	return []byte{byte(b.Type)}
}

func decodeStoredBlock(raw []byte) ([]byte, types.Sideband, error) {
	const sidebandLen = 8 + 8 + 32 + 32 + 16 + 1 + 1
	if len(raw) < sidebandLen {
		return nil, types.Sideband{}, errors.New("ledger: stored block record too short")
	}
	split := len(raw) - sidebandLen
	side, err := decodeSideband(raw[split:])
	if err != nil {
		return nil, types.Sideband{}, err
	}
	return raw[:split], side, nil
}

// previousOf recovers a state block's Previous field from its stored
// encoding without a full decode, since Rollback only needs this one
// field to walk backward.
func previousOf(encodedBlock []byte) types.Hash {
	var h types.Hash
	if len(encodedBlock) >= 64 {
		copy(h[:], encodedBlock[32:64])
	}
	return h
}

// representativeOf recovers a state block's Representative field from
// its stored encoding (see wire.EncodeStateBlock's field order).
func representativeOf(encodedBlock []byte) types.Account {
	var a types.Account
	if len(encodedBlock) >= 96 {
		copy(a[:], encodedBlock[64:96])
	}
	return a
}
