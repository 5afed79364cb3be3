package ledger

import (
	"lattice.dev/node/kvstore"
	"lattice.dev/node/types"
	"lattice.dev/node/wire"
)

// ReadAccountInfo exposes the accounts bucket's decoded record outside
// the package. The cementer's dependency-stack walker (spec §4.9) needs
// read access to account head/height metadata that only the ledger
// knows how to decode.
func ReadAccountInfo(tx kvstore.Txn, account types.Account) (types.AccountInfo, bool, error) {
	raw, ok, err := tx.Bucket(kvstore.BucketAccounts).Get(account[:])
	if err != nil || !ok {
		return types.AccountInfo{}, ok, err
	}
	info, err := decodeAccountInfo(raw)
	return info, true, err
}

// ReadSideband exposes one stored block's sideband without decoding
// its body.
func ReadSideband(tx kvstore.Txn, hash types.Hash) (types.Sideband, bool, error) {
	raw, ok, err := tx.Bucket(kvstore.BucketBlocks).Get(hash[:])
	if err != nil || !ok {
		return types.Sideband{}, ok, err
	}
	_, side, err := decodeStoredBlock(raw)
	return side, true, err
}

// ReadBlock decodes a stored block's body alongside its sideband.
// State blocks round-trip in full; legacy variants currently retain
// only their type tag in the store layout (the known simplification
// recorded in DESIGN.md), so their variant-specific fields come back
// nil — callers that need a legacy block's Previous/Link/etc. must get
// it from the original wire message, not from storage.
func ReadBlock(tx kvstore.Txn, hash types.Hash) (*types.Block, types.Sideband, bool, error) {
	raw, ok, err := tx.Bucket(kvstore.BucketBlocks).Get(hash[:])
	if err != nil || !ok {
		return nil, types.Sideband{}, ok, err
	}
	body, side, err := decodeStoredBlock(raw)
	if err != nil {
		return nil, types.Sideband{}, false, err
	}
	if len(body) == wire.StateBlockWireBytes {
		b, err := wire.DecodeStateBlock(body)
		return b, side, true, err
	}
	bt := types.BlockTypeInvalid
	if len(body) == 1 {
		bt = types.BlockType(body[0])
	}
	return &types.Block{Type: bt}, side, true, nil
}

// ReadConfirmationHeight returns account's cemented-height marker, or
// the zero value if nothing has been cemented on it yet.
func ReadConfirmationHeight(tx kvstore.Txn, account types.Account) (types.ConfirmationHeightInfo, bool, error) {
	raw, ok, err := tx.Bucket(kvstore.BucketConfirmationHeight).Get(account[:])
	if err != nil || !ok {
		return types.ConfirmationHeightInfo{}, ok, err
	}
	info, err := decodeConfirmationHeight(raw)
	return info, true, err
}

// WriteConfirmationHeight persists account's new cemented-height
// marker. Callers must do this only under the ConfirmationHeight
// writer token (spec §4.9 "updated atomically under the
// ConfirmationHeight writer token").
func WriteConfirmationHeight(tx kvstore.Txn, account types.Account, info types.ConfirmationHeightInfo) error {
	return tx.Bucket(kvstore.BucketConfirmationHeight).Put(account[:], encodeConfirmationHeight(info))
}
