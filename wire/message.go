package wire

import (
	"io"
)

// Message is one decoded wire message: header plus its exact-length
// payload.
type Message struct {
	Header  Header
	Payload []byte
}

// ReadError conveys how the caller (network.Peer) should treat a
// malformed message: how much to penalize the peer, and whether the
// connection must be torn down. Modeled directly on the teacher's
// p2p.ReadError (node/p2p/envelope.go) — a policy surface, not an
// ordinary error.
type ReadError struct {
	Err           error
	BanScoreDelta int
	Disconnect    bool
}

func (e *ReadError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// WriteMessage frames and writes one message. The payload length is
// never written explicitly — the header's (message_type, extensions)
// pair lets a correct reader derive it without trusting a
// length field (spec §4.1).
func WriteMessage(w io.Writer, h Header, payload []byte) error {
	want, err := PayloadLength(h.MessageType, h.Extensions)
	if err != nil {
		return err
	}
	if want >= 0 && len(payload) != want {
		return codecErr(ErrInvalidMessage, "write: payload length %d != expected %d for type %d", len(payload), want, h.MessageType)
	}
	if len(payload) > MaxMessageSize {
		return codecErr(ErrOversized, "write: payload %d bytes exceeds max %d", len(payload), MaxMessageSize)
	}
	hdr := EncodeHeader(h)
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err = w.Write(payload)
	return err
}

// ReadMessage reads exactly one message from r, deriving the payload
// length from the header alone (spec §4.1) and never reading more
// than MaxMessageSize bytes regardless of what the header implies.
func ReadMessage(r io.Reader, expectedMagic byte) (*Message, *ReadError) {
	var hdrBytes [HeaderBytes]byte
	if _, err := io.ReadFull(r, hdrBytes[:]); err != nil {
		return nil, &ReadError{Err: err, Disconnect: true}
	}
	hdr, err := DecodeHeader(hdrBytes[:])
	if err != nil {
		return nil, &ReadError{Err: err, BanScoreDelta: 10, Disconnect: false}
	}
	if hdr.Magic != expectedMagic {
		return nil, &ReadError{Err: codecErr(ErrInvalidHeader, "magic mismatch"), Disconnect: true}
	}

	length, err := PayloadLength(hdr.MessageType, hdr.Extensions)
	if err != nil {
		return nil, &ReadError{Err: err, BanScoreDelta: 10, Disconnect: false}
	}
	if length < 0 {
		return nil, &ReadError{Err: codecErr(ErrInvalidMessage, "message type %d has no wire-package framing", hdr.MessageType), BanScoreDelta: 10, Disconnect: false}
	}
	if length > MaxMessageSize {
		return nil, &ReadError{Err: codecErr(ErrOversized, "payload_length exceeds MAX_MESSAGE_SIZE"), Disconnect: true}
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, &ReadError{Err: err, BanScoreDelta: 20, Disconnect: true}
		}
	}
	return &Message{Header: hdr, Payload: payload}, nil
}
