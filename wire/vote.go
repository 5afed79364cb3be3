package wire

import (
	"encoding/binary"

	"lattice.dev/node/types"
)

// EncodeVote serializes a vote as account(32) | signature(64) |
// timestamp(8, LE) | hashes(32 each), matching the length
// PayloadLength computes for MessageConfirmAck.
func EncodeVote(v *types.Vote) ([]byte, error) {
	if len(v.Hashes) == 0 || len(v.Hashes) > 255 {
		return nil, codecErr(ErrInvalidMessage, "vote: hash count out of range")
	}
	out := make([]byte, 32+64+8+len(v.Hashes)*32)
	copy(out[0:32], v.VotingAccount[:])
	copy(out[32:96], v.Signature[:])
	binary.LittleEndian.PutUint64(out[96:104], v.Timestamp)
	off := 104
	for _, h := range v.Hashes {
		copy(out[off:off+32], h[:])
		off += 32
	}
	return out, nil
}

func DecodeVote(raw []byte) (*types.Vote, error) {
	if len(raw) < 32+64+8+32 {
		return nil, codecErr(ErrInvalidMessage, "vote: truncated")
	}
	rest := len(raw) - (32 + 64 + 8)
	if rest%32 != 0 {
		return nil, codecErr(ErrInvalidMessage, "vote: hash section not a multiple of 32")
	}
	count := rest / 32
	if count == 0 || count > 255 {
		return nil, codecErr(ErrInvalidMessage, "vote: hash count out of range")
	}
	v := &types.Vote{}
	copy(v.VotingAccount[:], raw[0:32])
	copy(v.Signature[:], raw[32:96])
	v.Timestamp = binary.LittleEndian.Uint64(raw[96:104])
	v.Hashes = make([]types.Hash, count)
	off := 104
	for i := 0; i < count; i++ {
		copy(v.Hashes[i][:], raw[off:off+32])
		off += 32
	}
	return v, nil
}
