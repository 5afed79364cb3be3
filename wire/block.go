package wire

import (
	"encoding/binary"

	"lattice.dev/node/cryptoprovider"
	"lattice.dev/node/types"
)

// StateBlockWireBytes is the fixed wire length of a state block body,
// not counting the leading block-type byte the Publish extensions
// carry out of band (spec §4.1):
//
//	account(32) | previous(32) | representative(32) | balance(16) |
//	link(32) | signature(64) | work(8, LE)
const StateBlockWireBytes = 32 + 32 + 32 + 16 + 32 + 64 + 8

// statePreamble is the 32-byte domain separator prefixed to a state
// block's hash preimage: all-zero except the last byte, which carries
// the block-type tag (spec §4.1 "preamble = u256(block_type_state)").
func statePreamble(bt types.BlockType) [32]byte {
	var p [32]byte
	p[31] = byte(bt)
	return p
}

// EncodeStateBlock serializes a state block body (without signature
// framing beyond what the type itself carries).
func EncodeStateBlock(b *types.Block) ([]byte, error) {
	if b.Type != types.BlockTypeState || b.State == nil {
		return nil, codecErr(ErrInvalidMessage, "encode state block: wrong variant")
	}
	s := b.State
	out := make([]byte, StateBlockWireBytes)
	copy(out[0:32], s.Account[:])
	copy(out[32:64], s.Previous[:])
	copy(out[64:96], s.Representative[:])
	bal, err := s.Balance.Bytes16()
	if err != nil {
		return nil, codecErr(ErrInvalidMessage, "encode state block: balance: %v", err)
	}
	copy(out[96:112], bal[:])
	copy(out[112:144], s.Link[:])
	copy(out[144:208], b.Signature[:])
	binary.LittleEndian.PutUint64(out[208:216], b.Work)
	return out, nil
}

func DecodeStateBlock(raw []byte) (*types.Block, error) {
	if len(raw) != StateBlockWireBytes {
		return nil, codecErr(ErrInvalidMessage, "decode state block: want %d bytes got %d", StateBlockWireBytes, len(raw))
	}
	s := &types.StateFields{}
	copy(s.Account[:], raw[0:32])
	copy(s.Previous[:], raw[32:64])
	copy(s.Representative[:], raw[64:96])
	bal, err := types.AmountFromBytes16(raw[96:112])
	if err != nil {
		return nil, codecErr(ErrInvalidMessage, "decode state block: balance: %v", err)
	}
	s.Balance = bal
	copy(s.Link[:], raw[112:144])

	b := &types.Block{Type: types.BlockTypeState, State: s}
	copy(b.Signature[:], raw[144:208])
	b.Work = binary.LittleEndian.Uint64(raw[208:216])
	return b, nil
}

// HashStateBlock computes the content hash per spec §4.1: Blake2b-256
// over the domain-separated preamble followed by every field except
// signature and work (those authenticate the hash, they aren't part
// of it).
func HashStateBlock(p cryptoprovider.Provider, b *types.Block) (types.Hash, error) {
	if b.Type != types.BlockTypeState || b.State == nil {
		return types.Hash{}, codecErr(ErrInvalidMessage, "hash state block: wrong variant")
	}
	s := b.State
	pre := statePreamble(types.BlockTypeState)
	bal, err := s.Balance.Bytes16()
	if err != nil {
		return types.Hash{}, err
	}
	digest, err := p.Hash256(pre[:], s.Account[:], s.Previous[:], s.Representative[:], bal[:], s.Link[:])
	if err != nil {
		return types.Hash{}, err
	}
	return types.Hash(digest), nil
}

// HashLegacy hashes the four legacy variants that still appear on
// historical chains. Each uses its own fixed field order; none use
// the state preamble, since legacy blocks predate the domain
// separator (spec §4.1, §9 "Polymorphic Block").
func HashLegacy(p cryptoprovider.Provider, b *types.Block) (types.Hash, error) {
	var digest [32]byte
	var err error
	switch b.Type {
	case types.BlockTypeLegacyOpen:
		o := b.Open
		digest, err = p.Hash256(o.Source[:], o.Representative[:], o.Account[:])
	case types.BlockTypeLegacyReceive:
		r := b.Receive
		digest, err = p.Hash256(r.Previous[:], r.Source[:])
	case types.BlockTypeLegacySend:
		sd := b.Send
		var bal [16]byte
		bal, err = sd.Balance.Bytes16()
		if err != nil {
			return types.Hash{}, err
		}
		digest, err = p.Hash256(sd.Previous[:], sd.Destination[:], bal[:])
	case types.BlockTypeLegacyChange:
		c := b.Change
		digest, err = p.Hash256(c.Previous[:], c.Representative[:])
	default:
		return types.Hash{}, codecErr(ErrInvalidMessage, "hash legacy: not a legacy variant")
	}
	if err != nil {
		return types.Hash{}, err
	}
	return types.Hash(digest), nil
}

// BlockHash dispatches to the variant-appropriate hash function. This
// is the single entry point callers (ledger, wire) should use.
func BlockHash(p cryptoprovider.Provider, b *types.Block) (types.Hash, error) {
	if b.Type == types.BlockTypeState {
		return HashStateBlock(p, b)
	}
	return HashLegacy(p, b)
}

// HashVote computes the signing digest for a vote: Blake2b-256 over
// "vote " || concat(hashes) || timestamp, little-endian (spec §3
// invariant 7).
func HashVote(p cryptoprovider.Provider, v *types.Vote) (types.Hash, error) {
	if len(v.Hashes) == 0 || len(v.Hashes) > 255 {
		return types.Hash{}, codecErr(ErrInvalidMessage, "vote: hash count out of range")
	}
	concat := make([]byte, 0, len(v.Hashes)*32)
	for _, h := range v.Hashes {
		concat = append(concat, h[:]...)
	}
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], v.Timestamp)
	digest, err := p.Hash256([]byte("vote "), concat, ts[:])
	if err != nil {
		return types.Hash{}, err
	}
	return types.Hash(digest), nil
}
