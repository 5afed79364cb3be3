package network

import (
	"context"
	"fmt"
	"net"
	"time"

	"lattice.dev/node/types"
	"lattice.dev/node/wire"
)

// PeerRole records which side opened the connection, since inbound and
// outbound peers are treated differently by the subnet admission
// policy and peer-exchange logic.
type PeerRole int

const (
	PeerRoleUnknown PeerRole = iota
	PeerRoleInbound
	PeerRoleOutbound
)

// Handler receives decoded realtime-network messages (spec §4.10's
// message-type table), one call per message. Bootstrap's bulk_pull/
// bulk_push/frontier_req/asc_pull traffic is handled by the bootstrap
// package against the same underlying connection, not through this
// interface.
type Handler interface {
	OnKeepalive(p *Peer, peers []net.TCPAddr) error
	OnPublish(p *Peer, block *types.Block) error
	OnConfirmReq(p *Peer, root, hash types.Hash) error
	OnConfirmAck(p *Peer, vote *types.Vote) error
	OnTelemetryReq(p *Peer) error
	OnTelemetryAck(p *Peer, payload []byte) error
}

type PeerConfig struct {
	Magic       byte
	IdleTimeout time.Duration

	// Filter drops already-seen Publish/ConfirmAck payloads before they
	// reach the handler (spec §4.2); shared across every peer of a
	// Server so a message relayed by two different peers is still
	// recognized as the same message. Nil disables filtering (used by
	// tests that exercise a bare Peer without a Server).
	Filter *DuplicateFilter
}

// Peer is one realtime-protocol connection: framing, ban-score policy
// and message dispatch. Grounded on the teacher's node/p2p.Peer, with
// the UTXO-specific message set (inv/getdata/headers/block/tx) replaced
// by spec §4.10's lattice message set.
type Peer struct {
	Conn   net.Conn
	Role   PeerRole
	Config PeerConfig
	Ban    BanScore
}

func NewPeer(conn net.Conn, role PeerRole, cfg PeerConfig) (*Peer, error) {
	if conn == nil {
		return nil, fmt.Errorf("network: peer: nil conn")
	}
	return &Peer{Conn: conn, Role: role, Config: cfg}, nil
}

func (p *Peer) Send(h wire.Header, payload []byte) error {
	h.Magic = p.Config.Magic
	return wire.WriteMessage(p.Conn, h, payload)
}

// Run reads and dispatches messages until ctx is canceled, the peer is
// banned, or a fatal framing error forces disconnection.
func (p *Peer) Run(ctx context.Context, h Handler) error {
	if h == nil {
		return fmt.Errorf("network: peer: nil handler")
	}

	if ctx != nil {
		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				_ = p.Conn.Close()
			case <-done:
			}
		}()
		defer close(done)
	}

	for {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}

		if p.Config.IdleTimeout > 0 {
			_ = p.Conn.SetReadDeadline(time.Now().Add(p.Config.IdleTimeout))
		}

		msg, rerr := wire.ReadMessage(p.Conn, p.Config.Magic)
		if rerr != nil {
			now := time.Now()
			p.Ban.Add(now, rerr.BanScoreDelta)
			if p.Ban.ShouldBan(now) {
				return fmt.Errorf("network: peer: banned (score=%d): %w", p.Ban.Score(now), rerr.Err)
			}
			if rerr.Disconnect {
				return rerr
			}
			continue
		}

		now := time.Now()
		if p.Ban.ShouldThrottle(now) {
			time.Sleep(ThrottleDelay)
		}

		if err := p.dispatch(now, msg, h); err != nil {
			if p.Ban.ShouldBan(now) {
				return fmt.Errorf("network: peer: banned (score=%d): %w", p.Ban.Score(now), err)
			}
		}
	}
}

func (p *Peer) dispatch(now time.Time, msg *wire.Message, h Handler) error {
	switch msg.Header.MessageType {
	case wire.MessageKeepalive:
		peers, err := decodeKeepalive(msg.Payload)
		if err != nil {
			p.Ban.Add(now, 10)
			return err
		}
		return h.OnKeepalive(p, peers)

	case wire.MessagePublish:
		bt := wire.BlockTypeInExtensions(msg.Header.Extensions)
		block, err := decodePublishBlock(bt, msg.Payload)
		if err != nil {
			p.Ban.Add(now, 10)
			return err
		}
		// DuplicateFilter sits between the codec and the block
		// processor (spec §2's "Network → Codec → DuplicateFilter →
		// BlockProcessor"): a repeat is dropped here and never reaches
		// h.OnPublish, with no ban-score penalty since relaying a
		// message twice is normal gossip, not misbehavior.
		if p.Config.Filter != nil && p.Config.Filter.CheckAndSet(msg.Payload) {
			return &wire.CodecError{Code: wire.ErrDuplicatePublish, Msg: "publish: duplicate block"}
		}
		if err := h.OnPublish(p, block); err != nil {
			p.Ban.Add(now, 100)
			return err
		}
		return nil

	case wire.MessageConfirmReq:
		root, hash, err := decodeConfirmReq(msg.Payload)
		if err != nil {
			p.Ban.Add(now, 10)
			return err
		}
		return h.OnConfirmReq(p, root, hash)

	case wire.MessageConfirmAck:
		vote, err := decodeConfirmAck(msg.Payload, wire.Count(msg.Header.Extensions))
		if err != nil {
			p.Ban.Add(now, 10)
			return err
		}
		if p.Config.Filter != nil && p.Config.Filter.CheckAndSet(msg.Payload) {
			return &wire.CodecError{Code: wire.ErrDuplicateConfirmAck, Msg: "confirm_ack: duplicate vote"}
		}
		if err := h.OnConfirmAck(p, vote); err != nil {
			p.Ban.Add(now, 20)
			return err
		}
		return nil

	case wire.MessageTelemetryReq:
		return h.OnTelemetryReq(p)

	case wire.MessageTelemetryAck:
		return h.OnTelemetryAck(p, msg.Payload)

	default:
		// Bootstrap traffic and unknown types are not ours to dispatch.
		return nil
	}
}
