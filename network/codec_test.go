package network

import (
	"encoding/binary"
	"net"
	"testing"

	"lattice.dev/node/wire"
)

func TestDecodeKeepaliveSkipsUnspecifiedEntries(t *testing.T) {
	payload := make([]byte, wire.KeepaliveAddrCount*wire.KeepaliveEntryBytes)
	ip := net.ParseIP("::1").To16()
	copy(payload[0:16], ip)
	binary.LittleEndian.PutUint16(payload[16:18], 7075)

	addrs, err := decodeKeepalive(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(addrs) != 1 {
		t.Fatalf("got %d addrs, want 1 (rest are unspecified padding)", len(addrs))
	}
	if addrs[0].Port != 7075 {
		t.Fatalf("got port %d, want 7075", addrs[0].Port)
	}
}

func TestDecodeConfirmReqRoundTrip(t *testing.T) {
	payload := make([]byte, 64)
	payload[0] = 0xaa
	payload[32] = 0xbb
	root, hash, err := decodeConfirmReq(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if root[0] != 0xaa || hash[0] != 0xbb {
		t.Fatalf("got root=%x hash=%x", root[:1], hash[:1])
	}
}

func TestDecodeConfirmAckRejectsShortPayload(t *testing.T) {
	if _, err := decodeConfirmAck(make([]byte, 10), 1); err == nil {
		t.Fatalf("expected error for short payload")
	}
}
