package bootstrap

import (
	"crypto/ed25519"
	"net"
	"testing"
	"time"

	"lattice.dev/node/blockproc"
	"lattice.dev/node/cryptoprovider"
	"lattice.dev/node/kvstore"
	"lattice.dev/node/ledger"
	"lattice.dev/node/types"
)

// TestClientPullFeedsProcessor drives a real Server/Client pair over a
// loopback connection and checks the pulled blocks land in the block
// processor's queue tagged SourceBootstrap.
func TestClientPullFeedsProcessor(t *testing.T) {
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

	clientLedger := ledger.New(crypto, cryptoprovider.DefaultThresholds)
	clientStore := kvstore.NewMemStore()
	clientWQ := kvstore.NewWriteQueue(clientStore)
	processor := blockproc.New(clientLedger, clientWQ)

	scoring := NewPeerScoring(4)
	scoring.Sync(ln.Addr().String())
	cache := NewPullsCache(16)
	client := NewClient(ClientConfig{DialTimeout: 2 * time.Second, PullCount: 10}, scoring, cache, processor)

	n, err := client.Pull(account, hashOpen)
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 block pulled, got %d", n)
	}
	if processor.Len() != 1 {
		t.Fatalf("expected processor to have 1 queued block, got %d", processor.Len())
	}
}
