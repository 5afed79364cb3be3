package network

import (
	"context"
	"net"
	"testing"
	"time"

	"lattice.dev/node/types"
	"lattice.dev/node/wire"
)

type recordingHandler struct {
	keepalives chan []net.TCPAddr
}

func (h *recordingHandler) OnKeepalive(p *Peer, peers []net.TCPAddr) error {
	h.keepalives <- peers
	return nil
}
func (h *recordingHandler) OnPublish(p *Peer, block *types.Block) error       { return nil }
func (h *recordingHandler) OnConfirmReq(p *Peer, root, hash types.Hash) error { return nil }
func (h *recordingHandler) OnConfirmAck(p *Peer, vote *types.Vote) error      { return nil }
func (h *recordingHandler) OnTelemetryReq(p *Peer) error                     { return nil }
func (h *recordingHandler) OnTelemetryAck(p *Peer, payload []byte) error      { return nil }

func TestServerAcceptsInboundAndDispatches(t *testing.T) {
	handler := &recordingHandler{keepalives: make(chan []net.TCPAddr, 1)}
	srv := NewServer(ServerConfig{
		ListenAddr: "127.0.0.1:0",
		MaxPeers:   8,
		PeerConfig: PeerConfig{Magic: 0x5a},
	}, handler)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv.cfg.ListenAddr = ln.Addr().String()
	ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	var conn net.Conn
	for i := 0; i < 100; i++ {
		conn, err = net.Dial("tcp", srv.cfg.ListenAddr)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	payload := make([]byte, wire.KeepaliveAddrCount*wire.KeepaliveEntryBytes)
	hdr := wire.Header{Magic: 0x5a, MessageType: wire.MessageKeepalive}
	if err := wire.WriteMessage(conn, hdr, payload); err != nil {
		t.Fatalf("write message: %v", err)
	}

	select {
	case peers := <-handler.keepalives:
		if len(peers) != 0 {
			t.Fatalf("expected 0 decoded peers from an all-zero keepalive, got %d", len(peers))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatched keepalive")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down after cancel")
	}
}
