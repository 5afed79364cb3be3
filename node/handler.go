package node

import (
	"log/slog"
	"net"

	"lattice.dev/node/blockproc"
	"lattice.dev/node/consensus"
	"lattice.dev/node/network"
	"lattice.dev/node/nodestats"
	"lattice.dev/node/types"
	"lattice.dev/node/wire"
)

// realtimeHandler implements network.Handler, bridging realtime peer
// traffic into the block processor and vote processor. Grounded on the
// teacher's node/p2p dispatch tables (message type switches into
// chainstate/mempool calls), replaced here with calls into
// blockproc.Processor and consensus.VoteProcessor since there is no
// UTXO mempool or chainstate in a block-lattice node.
type realtimeHandler struct {
	log       *slog.Logger
	processor *blockproc.Processor
	votes     *consensus.VoteProcessor
	votegen   *consensus.VoteGenerator
	stats     *nodestats.Registry
}

func (h *realtimeHandler) OnKeepalive(p *network.Peer, peers []net.TCPAddr) error {
	h.stats.Inc(nodestats.StatNetwork, "keepalive", nodestats.DirectionIn)
	return nil
}

func (h *realtimeHandler) OnPublish(p *network.Peer, block *types.Block) error {
	h.stats.Inc(nodestats.StatNetwork, "publish", nodestats.DirectionIn)
	h.processor.Add(block, blockproc.SourceLive, blockproc.Context{})
	return nil
}

// OnConfirmReq answers a peer's request to vote on (root, hash): it
// generates this node's normal votes for hash (if any local
// representative is still permitted to vote by spacing), and sends
// each back as a confirm_ack.
func (h *realtimeHandler) OnConfirmReq(p *network.Peer, root, hash types.Hash) error {
	h.stats.Inc(nodestats.StatNetwork, "confirm_req", nodestats.DirectionIn)

	votes, err := h.votegen.GenerateNormal(root, hash)
	if err != nil {
		h.log.Debug("confirm_req: vote generation failed", "err", err)
		return nil
	}
	if len(votes) == 0 {
		return nil
	}
	for _, v := range votes {
		payload, err := wire.EncodeVote(v)
		if err != nil {
			continue
		}
		hdr := wire.Header{MessageType: wire.MessageConfirmAck}
		hdr.Extensions = wire.SetCount(hdr.Extensions, uint8(len(v.Hashes)))
		if err := p.Send(hdr, payload); err != nil {
			return err
		}
		h.stats.Inc(nodestats.StatNetwork, "confirm_ack", nodestats.DirectionOut)
	}
	return nil
}

func (h *realtimeHandler) OnConfirmAck(p *network.Peer, vote *types.Vote) error {
	h.stats.Inc(nodestats.StatNetwork, "confirm_ack", nodestats.DirectionIn)
	h.votes.Add(vote)
	return nil
}

func (h *realtimeHandler) OnTelemetryReq(p *network.Peer) error {
	h.stats.Inc(nodestats.StatNetwork, "telemetry_req", nodestats.DirectionIn)
	return nil
}

func (h *realtimeHandler) OnTelemetryAck(p *network.Peer, payload []byte) error {
	h.stats.Inc(nodestats.StatNetwork, "telemetry_ack", nodestats.DirectionIn)
	return nil
}
