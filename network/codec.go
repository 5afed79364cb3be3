package network

import (
	"encoding/binary"
	"fmt"
	"net"

	"lattice.dev/node/types"
	"lattice.dev/node/wire"
)

// decodeKeepalive parses the fixed KeepaliveAddrCount*KeepaliveEntryBytes
// payload into peer addresses (16-byte IPv6-mapped address + 2-byte
// little-endian port per entry, spec §4.1).
func decodeKeepalive(payload []byte) ([]net.TCPAddr, error) {
	want := wire.KeepaliveAddrCount * wire.KeepaliveEntryBytes
	if len(payload) != want {
		return nil, fmt.Errorf("network: keepalive: want %d bytes got %d", want, len(payload))
	}
	out := make([]net.TCPAddr, 0, wire.KeepaliveAddrCount)
	for i := 0; i < wire.KeepaliveAddrCount; i++ {
		off := i * wire.KeepaliveEntryBytes
		ip := make(net.IP, 16)
		copy(ip, payload[off:off+16])
		port := binary.LittleEndian.Uint16(payload[off+16 : off+18])
		if ip.IsUnspecified() && port == 0 {
			continue
		}
		out = append(out, net.TCPAddr{IP: ip, Port: int(port)})
	}
	return out, nil
}

// decodePublishBlock dispatches to the variant-appropriate decoder
// based on the block type packed into the message's extensions field.
func decodePublishBlock(blockType uint8, payload []byte) (*types.Block, error) {
	switch blockType {
	case uint8(types.BlockTypeState):
		return wire.DecodeStateBlock(payload)
	default:
		return nil, fmt.Errorf("network: publish: legacy block decoding not wired for type %d", blockType)
	}
}

// decodeConfirmReq parses root(32) || hash(32); spec §4.1 allows a
// request to carry multiple (root, hash) pairs via the same count
// field ConfirmAck uses, but the realtime dispatch surface here only
// needs the first pair to drive a vote request.
func decodeConfirmReq(payload []byte) (root, hash types.Hash, err error) {
	if len(payload) < 64 {
		return types.Hash{}, types.Hash{}, fmt.Errorf("network: confirm_req: payload too short: %d bytes", len(payload))
	}
	copy(root[:], payload[0:32])
	copy(hash[:], payload[32:64])
	return root, hash, nil
}

// decodeConfirmAck parses account(32) || signature(64) || timestamp(8)
// || count*hash(32), per spec §4.1/§9.
func decodeConfirmAck(payload []byte, count uint8) (*types.Vote, error) {
	n := int(count)
	if n == 0 {
		n = 1
	}
	want := 32 + 64 + 8 + n*32
	if len(payload) != want {
		return nil, fmt.Errorf("network: confirm_ack: want %d bytes got %d", want, len(payload))
	}
	v := &types.Vote{}
	copy(v.VotingAccount[:], payload[0:32])
	copy(v.Signature[:], payload[32:96])
	v.Timestamp = binary.LittleEndian.Uint64(payload[96:104])
	v.Hashes = make([]types.Hash, n)
	off := 104
	for i := 0; i < n; i++ {
		copy(v.Hashes[i][:], payload[off:off+32])
		off += 32
	}
	return v, nil
}
