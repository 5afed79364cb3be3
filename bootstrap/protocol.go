// Package bootstrap is the ascending-pull bulk catch-up client and
// server: a peer asks for blocks starting at a hash and walking forward
// via successors, rather than the teacher's UTXO-chain header-first
// sync (spec §4's network component, SPEC_FULL.md's bootstrap row).
// Grounded on the pre-distillation rust/node/src/bootstrap tree, since
// the teacher has no account-chain catch-up protocol to adapt.
package bootstrap

import (
	"encoding/binary"
	"fmt"
	"io"

	"lattice.dev/node/types"
	"lattice.dev/node/wire"
)

// maxAscPullCount bounds one pull's reply size; the realtime wire
// package's MaxMessageSize doesn't apply here since asc_pull framing
// is this package's own, not wire.PayloadLength's (see
// wire.PayloadLength's MessageAscPullReq/Ack case).
const maxAscPullCount = 128

// AscPullReq asks a peer for up to Count state blocks starting at
// Start and walking forward via each block's successor.
type AscPullReq struct {
	ID    uint64
	Start types.Hash
	Count uint8
}

// AscPullAck is a peer's reply: the blocks found walking forward from
// the request's Start, in ascending order. Fewer than Count blocks
// means the peer's chain ended (or didn't have Start at all, in which
// case Blocks is empty).
type AscPullAck struct {
	ID     uint64
	Blocks []*types.Block
}

const ascPullReqBytes = 8 + 32 + 1

func WriteAscPullReq(w io.Writer, req AscPullReq) error {
	if req.Count == 0 || req.Count > maxAscPullCount {
		return fmt.Errorf("bootstrap: asc_pull_req: count %d out of range", req.Count)
	}
	var buf [ascPullReqBytes]byte
	binary.LittleEndian.PutUint64(buf[0:8], req.ID)
	copy(buf[8:40], req.Start[:])
	buf[40] = req.Count
	_, err := w.Write(buf[:])
	return err
}

func ReadAscPullReq(r io.Reader) (AscPullReq, error) {
	var buf [ascPullReqBytes]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return AscPullReq{}, err
	}
	var req AscPullReq
	req.ID = binary.LittleEndian.Uint64(buf[0:8])
	copy(req.Start[:], buf[8:40])
	req.Count = buf[40]
	return req, nil
}

func WriteAscPullAck(w io.Writer, ack AscPullAck) error {
	if len(ack.Blocks) > maxAscPullCount {
		return fmt.Errorf("bootstrap: asc_pull_ack: %d blocks exceeds max %d", len(ack.Blocks), maxAscPullCount)
	}
	var head [8 + 1]byte
	binary.LittleEndian.PutUint64(head[0:8], ack.ID)
	head[8] = uint8(len(ack.Blocks))
	if _, err := w.Write(head[:]); err != nil {
		return err
	}
	for _, b := range ack.Blocks {
		enc, err := wire.EncodeStateBlock(b)
		if err != nil {
			return err
		}
		if _, err := w.Write(enc); err != nil {
			return err
		}
	}
	return nil
}

func ReadAscPullAck(r io.Reader) (AscPullAck, error) {
	var head [8 + 1]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return AscPullAck{}, err
	}
	ack := AscPullAck{ID: binary.LittleEndian.Uint64(head[0:8])}
	count := int(head[8])
	if count == 0 {
		return ack, nil
	}
	ack.Blocks = make([]*types.Block, count)
	buf := make([]byte, wire.StateBlockWireBytes)
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return AscPullAck{}, err
		}
		b, err := wire.DecodeStateBlock(buf)
		if err != nil {
			return AscPullAck{}, err
		}
		ack.Blocks[i] = b
	}
	return ack, nil
}
