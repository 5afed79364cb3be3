package ledger

import (
	"crypto/ed25519"
	"testing"

	"lattice.dev/node/cryptoprovider"
	"lattice.dev/node/kvstore"
	"lattice.dev/node/types"
	"lattice.dev/node/wire"
)

func newTestLedger() (*Ledger, kvstore.Store) {
	store := kvstore.NewMemStore()
	return New(cryptoprovider.Standard{}, cryptoprovider.DefaultThresholds), store
}

func mustWork(t *testing.T, root [32]byte, threshold uint64) uint64 {
	t.Helper()
	for w := uint64(0); w < 1<<20; w++ {
		if cryptoprovider.ValidateWork(root, w, threshold) {
			return w
		}
	}
	t.Fatalf("no work solution found in search window for %x", root)
	return 0
}

// sourceHashFor gives each test a distinct, deterministic synthetic
// send hash to receive from, so the open block's link can be seeded
// into the pending bucket before Process is called.
func sourceHashFor(tag byte) types.Hash {
	var h types.Hash
	h[0] = tag
	return h
}

func seedPending(t *testing.T, store kvstore.Store, account types.Account, source types.Hash, amount types.Amount) {
	t.Helper()
	seedPendingWithEpoch(t, store, account, source, amount, types.Epoch0)
}

func seedPendingWithEpoch(t *testing.T, store kvstore.Store, account types.Account, source types.Hash, amount types.Amount, sourceEpoch types.Epoch) {
	t.Helper()
	tx, err := store.BeginWrite(kvstore.PurposeLocal)
	if err != nil {
		t.Fatalf("begin write: %v", err)
	}
	var sourceAccount types.Account
	enc, err := encodePendingInfo(types.PendingInfo{Source: sourceAccount, Amount: amount, SourceEpoch: sourceEpoch})
	if err != nil {
		t.Fatalf("encode pending: %v", err)
	}
	key := pendingKeyBytes(types.PendingKey{Account: account, Hash: source})
	if err := tx.Bucket(kvstore.BucketPending).Put(key, enc); err != nil {
		t.Fatalf("put pending: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func signedOpen(t *testing.T, pub ed25519.PublicKey, priv ed25519.PrivateKey, rep types.Account, source types.Hash) *types.Block {
	t.Helper()
	var account types.Account
	copy(account[:], pub)
	var link [32]byte
	copy(link[:], source[:])
	b := &types.Block{
		Type: types.BlockTypeState,
		State: &types.StateFields{
			Account:        account,
			Representative: rep,
			Balance:        types.AmountFromUint64(1000),
			Link:           link,
		},
	}
	hash, err := wire.BlockHash(cryptoprovider.Standard{}, b)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	b.Signature = cryptoprovider.Standard{}.Sign(priv, [32]byte(hash))
	b.Work = mustWork(t, account, cryptoprovider.DefaultThresholds.Threshold(0, true))
	return b
}

func TestProcessOpenIsProgress(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	var rep types.Account
	copy(rep[:], pub)

	l, store := newTestLedger()
	source := sourceHashFor(1)
	seedPending(t, store, rep, source, types.AmountFromUint64(1000))
	b := signedOpen(t, pub, priv, rep, source)

	tx, err := store.BeginWrite(kvstore.PurposeLocal)
	if err != nil {
		t.Fatalf("begin write: %v", err)
	}
	hash, res, err := l.Process(tx, b)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res != Progress {
		t.Fatalf("got %s want progress", res)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if hash == (types.Hash{}) {
		t.Fatalf("expected non-zero hash")
	}

	var account types.Account
	copy(account[:], pub)
	if w := l.Weights.Weight(rep); w.Cmp(types.AmountFromUint64(1000)) != 0 {
		t.Fatalf("representative weight = %s, want 1000", w)
	}

	rtx, _ := store.BeginRead()
	defer rtx.Rollback()
	raw, ok, err := rtx.Bucket(kvstore.BucketAccounts).Get(account[:])
	if err != nil || !ok {
		t.Fatalf("account lookup: ok=%v err=%v", ok, err)
	}
	info, err := decodeAccountInfo(raw)
	if err != nil {
		t.Fatalf("decode account info: %v", err)
	}
	if info.Head != hash {
		t.Fatalf("head = %x, want %x", info.Head, hash)
	}
	if info.BlockCount != 1 {
		t.Fatalf("block count = %d, want 1", info.BlockCount)
	}
}

func TestProcessDuplicateIsOld(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	var rep types.Account
	copy(rep[:], pub)
	l, store := newTestLedger()
	source := sourceHashFor(2)
	seedPending(t, store, rep, source, types.AmountFromUint64(1000))
	b := signedOpen(t, pub, priv, rep, source)

	tx, _ := store.BeginWrite(kvstore.PurposeLocal)
	if _, res, err := l.Process(tx, b); err != nil || res != Progress {
		t.Fatalf("first process: res=%s err=%v", res, err)
	}
	tx.Commit()

	tx2, _ := store.BeginWrite(kvstore.PurposeLocal)
	if _, res, err := l.Process(tx2, b); err != nil || res != Old {
		t.Fatalf("reprocess: res=%s err=%v, want old", res, err)
	}
	tx2.Rollback()
}

// TestProcessReceiveWithFutureSourceEpochIsGapSource covers spec §4.4
// steps 7-8: a receive may never pull from a send stamped with a later
// epoch than the receiving block itself.
func TestProcessReceiveWithFutureSourceEpochIsGapSource(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	var rep types.Account
	copy(rep[:], pub)

	l, store := newTestLedger()
	source := sourceHashFor(4)
	seedPendingWithEpoch(t, store, rep, source, types.AmountFromUint64(1000), types.Epoch1)
	b := signedOpen(t, pub, priv, rep, source)

	tx, err := store.BeginWrite(kvstore.PurposeLocal)
	if err != nil {
		t.Fatalf("begin write: %v", err)
	}
	_, res, err := l.Process(tx, b)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res != GapSource {
		t.Fatalf("got %s want gap_source", res)
	}
	tx.Rollback()
}

func TestProcessBadSignatureRejected(t *testing.T) {
	pub, _, _ := ed25519.GenerateKey(nil)
	_, otherPriv, _ := ed25519.GenerateKey(nil)
	var rep types.Account
	copy(rep[:], pub)
	l, store := newTestLedger()
	source := sourceHashFor(3)
	seedPending(t, store, rep, source, types.AmountFromUint64(1000))
	b := signedOpen(t, pub, otherPriv, rep, source) // signed with the wrong key

	tx, _ := store.BeginWrite(kvstore.PurposeLocal)
	_, res, err := l.Process(tx, b)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res != BadSignature {
		t.Fatalf("got %s want bad_signature", res)
	}
	tx.Rollback()
}

func TestEncodeDecodeAccountInfoRoundTrip(t *testing.T) {
	in := types.AccountInfo{
		Balance:      types.AmountFromUint64(42),
		ModifiedTime: 7,
		BlockCount:   3,
		Epoch:        types.Epoch1,
	}
	enc, err := encodeAccountInfo(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := decodeAccountInfo(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Balance.Cmp(in.Balance) != 0 || out.ModifiedTime != in.ModifiedTime ||
		out.BlockCount != in.BlockCount || out.Epoch != in.Epoch {
		t.Fatalf("round trip mismatch: got %+v want %+v", out, in)
	}
}

func TestEncodeDecodeSidebandRoundTrip(t *testing.T) {
	in := types.Sideband{
		Height:      5,
		Timestamp:   123,
		Balance:     types.AmountFromUint64(99),
		Details:     types.BlockDetails{Epoch: types.Epoch2, IsSend: true},
		SourceEpoch: types.Epoch1,
	}
	enc, err := encodeSideband(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := decodeSideband(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Height != in.Height || out.Timestamp != in.Timestamp ||
		out.Balance.Cmp(in.Balance) != 0 || out.Details != in.Details || out.SourceEpoch != in.SourceEpoch {
		t.Fatalf("round trip mismatch: got %+v want %+v", out, in)
	}
}
