package wire

import "testing"

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{Magic: 0xAB, NetworkID: 1, VersionMax: 3, VersionUsing: 2, VersionMin: 1, MessageType: MessagePublish, Extensions: 0x1234}
	enc := EncodeHeader(h)
	got, err := DecodeHeader(enc[:])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != h {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, h)
	}
}

func TestPublishPayloadLengthDerivedFromExtensions(t *testing.T) {
	ext := SetBlockTypeInExtensions(0, 5) // state
	n, err := PayloadLength(MessagePublish, ext)
	if err != nil {
		t.Fatalf("PayloadLength: %v", err)
	}
	if n != StateBlockWireBytes {
		t.Fatalf("state publish payload length = %d, want %d", n, StateBlockWireBytes)
	}
}

func TestConfirmAckCountBitExactV1ToV2(t *testing.T) {
	// A V1 peer's 3-bit count must read back identically once promoted
	// to the V2 field that subsumes it (spec §9).
	for count := uint8(1); count <= 7; count++ {
		var ext uint16
		ext = SetCount(ext, count)
		if IsV2(ext) {
			t.Fatalf("count %d should fit in the V1 field without setting V2", count)
		}
		if got := Count(ext); got != count {
			t.Fatalf("V1 count round trip: got %d want %d", got, count)
		}
	}
	for _, count := range []uint8{8, 64, 255} {
		var ext uint16
		ext = SetCount(ext, count)
		if !IsV2(ext) {
			t.Fatalf("count %d must set the V2 marker", count)
		}
		if got := Count(ext); got != count {
			t.Fatalf("V2 count round trip: got %d want %d", got, count)
		}
	}
}

func TestConfirmAckPayloadLengthMatchesCount(t *testing.T) {
	ext := SetCount(0, 3)
	n, err := PayloadLength(MessageConfirmAck, ext)
	if err != nil {
		t.Fatalf("PayloadLength: %v", err)
	}
	want := 32 + 64 + 8 + 3*32
	if n != want {
		t.Fatalf("ConfirmAck payload length = %d, want %d", n, want)
	}
}

func TestKeepaliveHeaderPayloadLengthFixed(t *testing.T) {
	n, err := PayloadLength(MessageKeepalive, 0)
	if err != nil {
		t.Fatalf("PayloadLength: %v", err)
	}
	if n != KeepaliveAddrCount*KeepaliveEntryBytes {
		t.Fatalf("keepalive payload length = %d", n)
	}
}
