package bootstrap

import (
	"net"

	"lattice.dev/node/kvstore"
	"lattice.dev/node/ledger"
	"lattice.dev/node/types"
)

// ServerConfig configures the bootstrap responder's own listener,
// separate from the realtime gossip listener since asc_pull framing
// isn't multiplexed through wire.ReadMessage (see protocol.go).
type ServerConfig struct {
	ListenAddr string
}

// Server answers AscPullReq requests by walking a chain forward from
// the requested hash via each block's stored successor link. Grounded
// on the pre-distillation bootstrap server's account-chain frontier
// walk; the teacher has no analogous responder since its UTXO sync is
// header-first, not account-chain-first.
type Server struct {
	cfg   ServerConfig
	store kvstore.Store
}

func NewServer(cfg ServerConfig, store kvstore.Store) *Server {
	return &Server{cfg: cfg, store: store}
}

// Run accepts connections and serves one AscPullReq/AscPullAck
// exchange per accepted connection, then closes it. Ascending pulls
// are a one-shot request/reply, not a persistent session.
func (s *Server) Run(ln net.Listener, done <-chan struct{}) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-done:
				return nil
			default:
				return err
			}
		}
		go s.serveOne(conn)
	}
}

func (s *Server) serveOne(conn net.Conn) {
	defer conn.Close()

	req, err := ReadAscPullReq(conn)
	if err != nil {
		return
	}

	ack := AscPullAck{ID: req.ID}
	tx, err := s.store.BeginRead()
	if err != nil {
		_ = WriteAscPullAck(conn, ack)
		return
	}
	defer tx.Rollback()

	hash := req.Start
	for i := uint8(0); i < req.Count; i++ {
		block, side, ok, err := ledger.ReadBlock(tx, hash)
		if err != nil || !ok || block.Type != types.BlockTypeState {
			break
		}
		ack.Blocks = append(ack.Blocks, block)
		if side.Successor == (types.Hash{}) {
			break
		}
		hash = side.Successor
	}

	_ = WriteAscPullAck(conn, ack)
}
