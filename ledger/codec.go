package ledger

import (
	"encoding/binary"
	"fmt"

	"lattice.dev/node/types"
)

// Fixed-size on-disk schemas (spec §6 "Persisted state"). All
// multi-byte integers are little-endian except where the field is
// itself a wire hash/account (already big-endian-opaque 32 bytes).

// encodeAccountInfo: head(32) | rep(32) | open(32) | balance(16) |
// modified(8) | block_count(8) | epoch(1).
func encodeAccountInfo(a types.AccountInfo) ([]byte, error) {
	bal, err := a.Balance.Bytes16()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 32+32+32+16+8+8+1)
	off := 0
	copy(out[off:off+32], a.Head[:])
	off += 32
	copy(out[off:off+32], a.Representative[:])
	off += 32
	copy(out[off:off+32], a.Open[:])
	off += 32
	copy(out[off:off+16], bal[:])
	off += 16
	binary.LittleEndian.PutUint64(out[off:off+8], a.ModifiedTime)
	off += 8
	binary.LittleEndian.PutUint64(out[off:off+8], a.BlockCount)
	off += 8
	out[off] = byte(a.Epoch)
	return out, nil
}

func decodeAccountInfo(b []byte) (types.AccountInfo, error) {
	const want = 32 + 32 + 32 + 16 + 8 + 8 + 1
	if len(b) != want {
		return types.AccountInfo{}, fmt.Errorf("ledger: account info: want %d bytes got %d", want, len(b))
	}
	var a types.AccountInfo
	off := 0
	copy(a.Head[:], b[off:off+32])
	off += 32
	copy(a.Representative[:], b[off:off+32])
	off += 32
	copy(a.Open[:], b[off:off+32])
	off += 32
	bal, err := types.AmountFromBytes16(b[off : off+16])
	if err != nil {
		return types.AccountInfo{}, err
	}
	a.Balance = bal
	off += 16
	a.ModifiedTime = binary.LittleEndian.Uint64(b[off : off+8])
	off += 8
	a.BlockCount = binary.LittleEndian.Uint64(b[off : off+8])
	off += 8
	a.Epoch = types.Epoch(b[off])
	return a, nil
}

// encodePendingInfo: source(32) | amount(16) | epoch(1).
func encodePendingInfo(p types.PendingInfo) ([]byte, error) {
	amt, err := p.Amount.Bytes16()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 32+16+1)
	copy(out[0:32], p.Source[:])
	copy(out[32:48], amt[:])
	out[48] = byte(p.SourceEpoch)
	return out, nil
}

func decodePendingInfo(b []byte) (types.PendingInfo, error) {
	if len(b) != 32+16+1 {
		return types.PendingInfo{}, fmt.Errorf("ledger: pending info: bad length %d", len(b))
	}
	var p types.PendingInfo
	copy(p.Source[:], b[0:32])
	amt, err := types.AmountFromBytes16(b[32:48])
	if err != nil {
		return types.PendingInfo{}, err
	}
	p.Amount = amt
	p.SourceEpoch = types.Epoch(b[48])
	return p, nil
}

func pendingKeyBytes(k types.PendingKey) []byte {
	out := make([]byte, 64)
	copy(out[0:32], k.Account[:])
	copy(out[32:64], k.Hash[:])
	return out
}

func pendingKeyFromBytes(b []byte) (types.PendingKey, error) {
	if len(b) != 64 {
		return types.PendingKey{}, fmt.Errorf("ledger: pending key: bad length %d", len(b))
	}
	var k types.PendingKey
	copy(k.Account[:], b[0:32])
	copy(k.Hash[:], b[32:64])
	return k, nil
}

// encodeConfirmationHeight: height(8) | frontier(32).
func encodeConfirmationHeight(c types.ConfirmationHeightInfo) []byte {
	out := make([]byte, 8+32)
	binary.LittleEndian.PutUint64(out[0:8], c.Height)
	copy(out[8:40], c.Frontier[:])
	return out
}

func decodeConfirmationHeight(b []byte) (types.ConfirmationHeightInfo, error) {
	if len(b) != 8+32 {
		return types.ConfirmationHeightInfo{}, fmt.Errorf("ledger: confirmation height: bad length %d", len(b))
	}
	var c types.ConfirmationHeightInfo
	c.Height = binary.LittleEndian.Uint64(b[0:8])
	copy(c.Frontier[:], b[8:40])
	return c, nil
}

// encodeSideband: height(8) | timestamp(8) | successor(32) |
// account(32) | balance(16) | details(1: bit0 send, bit1 receive, bit2
// epoch, bits4-7 epoch ordinal) | source_epoch(1).
func encodeSideband(s types.Sideband) ([]byte, error) {
	bal, err := s.Balance.Bytes16()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8+8+32+32+16+1+1)
	off := 0
	binary.LittleEndian.PutUint64(out[off:off+8], s.Height)
	off += 8
	binary.LittleEndian.PutUint64(out[off:off+8], s.Timestamp)
	off += 8
	copy(out[off:off+32], s.Successor[:])
	off += 32
	copy(out[off:off+32], s.Account[:])
	off += 32
	copy(out[off:off+16], bal[:])
	off += 16
	var details byte
	if s.Details.IsSend {
		details |= 1 << 0
	}
	if s.Details.IsReceive {
		details |= 1 << 1
	}
	if s.Details.IsEpoch {
		details |= 1 << 2
	}
	details |= byte(s.Details.Epoch) << 4
	out[off] = details
	off++
	out[off] = byte(s.SourceEpoch)
	return out, nil
}

func decodeSideband(b []byte) (types.Sideband, error) {
	const want = 8 + 8 + 32 + 32 + 16 + 1 + 1
	if len(b) != want {
		return types.Sideband{}, fmt.Errorf("ledger: sideband: want %d bytes got %d", want, len(b))
	}
	var s types.Sideband
	off := 0
	s.Height = binary.LittleEndian.Uint64(b[off : off+8])
	off += 8
	s.Timestamp = binary.LittleEndian.Uint64(b[off : off+8])
	off += 8
	copy(s.Successor[:], b[off:off+32])
	off += 32
	copy(s.Account[:], b[off:off+32])
	off += 32
	bal, err := types.AmountFromBytes16(b[off : off+16])
	if err != nil {
		return types.Sideband{}, err
	}
	s.Balance = bal
	off += 16
	details := b[off]
	s.Details.IsSend = details&(1<<0) != 0
	s.Details.IsReceive = details&(1<<1) != 0
	s.Details.IsEpoch = details&(1<<2) != 0
	s.Details.Epoch = types.Epoch(details >> 4)
	off++
	s.SourceEpoch = types.Epoch(b[off])
	return s, nil
}
