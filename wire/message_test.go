package wire

import (
	"bytes"
	"testing"
)

func TestWriteReadMessageRoundTrip(t *testing.T) {
	h := Header{Magic: 0x52, NetworkID: 1, MessageType: MessageTelemetryReq}
	var buf bytes.Buffer
	if err := WriteMessage(&buf, h, nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg, rerr := ReadMessage(&buf, 0x52)
	if rerr != nil {
		t.Fatalf("read: %v", rerr)
	}
	if msg.Header.MessageType != MessageTelemetryReq {
		t.Fatalf("unexpected message type %v", msg.Header.MessageType)
	}
	if len(msg.Payload) != 0 {
		t.Fatalf("expected empty payload, got %d bytes", len(msg.Payload))
	}
}

func TestReadMessageMagicMismatchDisconnects(t *testing.T) {
	h := Header{Magic: 0x52, MessageType: MessageTelemetryReq}
	var buf bytes.Buffer
	if err := WriteMessage(&buf, h, nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, rerr := ReadMessage(&buf, 0x99)
	if rerr == nil || !rerr.Disconnect {
		t.Fatalf("expected disconnect on magic mismatch")
	}
}

func TestReadMessageTruncatedPayloadDisconnects(t *testing.T) {
	ext := SetBlockTypeInExtensions(0, 5)
	h := Header{Magic: 1, MessageType: MessagePublish, Extensions: ext}
	hdrBytes := EncodeHeader(h)
	// Write header declaring a state-block payload but supply none.
	_, rerr := ReadMessage(bytes.NewReader(hdrBytes[:]), 1)
	if rerr == nil || !rerr.Disconnect {
		t.Fatalf("expected disconnect on truncated payload")
	}
}
