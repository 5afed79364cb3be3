package blockproc

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"lattice.dev/node/cryptoprovider"
	"lattice.dev/node/kvstore"
	"lattice.dev/node/ledger"
	"lattice.dev/node/types"
	"lattice.dev/node/wire"
)

func mustWork(t *testing.T, root [32]byte, threshold uint64) uint64 {
	t.Helper()
	for w := uint64(0); w < 1<<20; w++ {
		if cryptoprovider.ValidateWork(root, w, threshold) {
			return w
		}
	}
	t.Fatalf("no work solution found for %x", root)
	return 0
}

func openBlock(t *testing.T, pub ed25519.PublicKey, priv ed25519.PrivateKey, rep types.Account, source types.Hash) *types.Block {
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
			Balance:        types.AmountFromUint64(500),
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

func seedPending(t *testing.T, store kvstore.Store, account types.Account, source types.Hash, amount types.Amount) {
	t.Helper()
	tx, err := store.BeginWrite(kvstore.PurposeLocal)
	if err != nil {
		t.Fatalf("begin write: %v", err)
	}
	key := make([]byte, 64)
	copy(key[0:32], account[:])
	copy(key[32:64], source[:])
	info := make([]byte, 32+16+1)
	amtBytes, err := amount.Bytes16()
	if err != nil {
		t.Fatalf("amount bytes: %v", err)
	}
	copy(info[32:48], amtBytes[:])
	if err := tx.Bucket(kvstore.BucketPending).Put(key, info); err != nil {
		t.Fatalf("put pending: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestProcessorAppliesQueuedBlock(t *testing.T) {
	store := kvstore.NewMemStore()
	wq := kvstore.NewWriteQueue(store)
	l := ledger.New(cryptoprovider.Standard{}, cryptoprovider.DefaultThresholds)
	p := New(l, wq)

	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var account types.Account
	copy(account[:], pub)
	source := types.Hash{0xaa}
	seedPending(t, store, account, source, types.AmountFromUint64(500))

	b := openBlock(t, pub, priv, account, source)

	notifications := make(chan Notification, 1)
	p.Subscribe(notifications)
	if !p.Add(b, SourceLocal, Context{}) {
		t.Fatalf("Add rejected at empty queue")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case n := <-notifications:
		if n.Result != ledger.Progress {
			t.Fatalf("expected Progress, got %s", n.Result)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
	}
	cancel()
	<-done
}

func TestProcessorPerSourceCapacity(t *testing.T) {
	store := kvstore.NewMemStore()
	wq := kvstore.NewWriteQueue(store)
	l := ledger.New(cryptoprovider.Standard{}, cryptoprovider.DefaultThresholds)
	p := New(l, wq)

	for i := 0; i < perSourceCapacity; i++ {
		if !p.Add(&types.Block{Type: types.BlockTypeNotABlock}, SourceBootstrap, Context{}) {
			t.Fatalf("Add unexpectedly rejected at index %d", i)
		}
	}
	if p.Add(&types.Block{Type: types.BlockTypeNotABlock}, SourceBootstrap, Context{}) {
		t.Fatal("Add should have rejected once per-source capacity is reached")
	}
	if p.Len() != perSourceCapacity {
		t.Fatalf("Len() = %d, want %d", p.Len(), perSourceCapacity)
	}
}

func TestProcessorPriorityOrder(t *testing.T) {
	store := kvstore.NewMemStore()
	wq := kvstore.NewWriteQueue(store)
	l := ledger.New(cryptoprovider.Standard{}, cryptoprovider.DefaultThresholds)
	p := New(l, wq)

	// Forced should drain before Bootstrap even though Bootstrap was
	// enqueued first (spec §4.5: priority by BlockSource).
	p.Add(&types.Block{Type: types.BlockTypeNotABlock}, SourceBootstrap, Context{})
	p.Add(&types.Block{Type: types.BlockTypeNotABlock}, SourceForced, Context{})

	batch := p.takeBatch()
	if len(batch) != 2 {
		t.Fatalf("expected both queued entries in one batch, got %d", len(batch))
	}
	if batch[0].ctx.Source != SourceForced {
		t.Fatalf("expected Forced first, got %s", batch[0].ctx.Source)
	}
}
