package bootstrap

import (
	"crypto/ed25519"
	"net"
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

func stateBlock(t *testing.T, crypto cryptoprovider.Provider, priv ed25519.PrivateKey, account types.Account, previous types.Hash, rep types.Account, balance types.Amount, link [32]byte, isReceive bool) (*types.Block, types.Hash) {
	t.Helper()
	b := &types.Block{
		Type: types.BlockTypeState,
		State: &types.StateFields{
			Account:        account,
			Previous:       previous,
			Representative: rep,
			Balance:        balance,
			Link:           link,
		},
	}
	hash, err := wire.BlockHash(crypto, b)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	b.Signature = crypto.Sign(priv, [32]byte(hash))
	root, err := b.Root()
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	b.Work = mustWork(t, root, cryptoprovider.DefaultThresholds.Threshold(0, isReceive))
	return b, hash
}

func process(t *testing.T, l *ledger.Ledger, tx kvstore.Txn, b *types.Block) types.Hash {
	t.Helper()
	hash, res, err := l.Process(tx, b)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res != ledger.Progress {
		t.Fatalf("process result = %s, want Progress", res)
	}
	return hash
}

// TestServerAnswersAscPullReq builds a two-block chain directly
// against a store, then verifies a Server walking forward from the
// chain's open block returns both blocks in order via the asc_pull
// wire framing.
func TestServerAnswersAscPullReq(t *testing.T) {
	store := kvstore.NewMemStore()
	wq := kvstore.NewWriteQueue(store)
	crypto := cryptoprovider.Standard{}
	l := ledger.New(crypto, cryptoprovider.DefaultThresholds)

	pub, priv, _ := ed25519.GenerateKey(nil)
	var account types.Account
	copy(account[:], pub)

	source := types.Hash{0xaa}
	seedPending(t, store, account, source, types.AmountFromUint64(1000))

	tx, err := wq.Begin(kvstore.PurposeBlockProcessor)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	open, hashOpen := stateBlock(t, crypto, priv, account, types.ZeroHash, account, types.AmountFromUint64(1000), source, true)
	process(t, l, tx, open)

	var linkDest [32]byte
	copy(linkDest[:], types.Account{0x01}[:])
	send, hashSend := stateBlock(t, crypto, priv, account, hashOpen, account, types.AmountFromUint64(900), linkDest, false)
	process(t, l, tx, send)
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := NewServer(ServerConfig{ListenAddr: ln.Addr().String()}, store)
	done := make(chan struct{})
	go srv.Run(ln, done)
	defer close(done)
	defer ln.Close()

	conn, err := net.DialTimeout("tcp", ln.Addr().String(), 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := WriteAscPullReq(conn, AscPullReq{ID: 1, Start: hashOpen, Count: 10}); err != nil {
		t.Fatalf("write req: %v", err)
	}
	ack, err := ReadAscPullAck(conn)
	if err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if ack.ID != 1 {
		t.Fatalf("ack id = %d, want 1", ack.ID)
	}
	if len(ack.Blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(ack.Blocks))
	}
	gotOpen, err := wire.BlockHash(crypto, ack.Blocks[0])
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if gotOpen != hashOpen {
		t.Fatalf("first block hash mismatch")
	}
	gotSend, err := wire.BlockHash(crypto, ack.Blocks[1])
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if gotSend != hashSend {
		t.Fatalf("second block hash mismatch")
	}
}
