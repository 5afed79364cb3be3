// Package types defines the account-lattice data model: accounts, the
// six block variants, sideband metadata, votes, epochs and the pending
// (receivable) set. Nothing in this package touches storage or wire
// encoding; it is the vocabulary the rest of the node shares.
package types

import "math/big"

// Amount is a non-negative 128-bit balance. Blocks carry it big-endian
// on the wire (16 bytes); in memory it's a big.Int so arithmetic never
// silently wraps.
type Amount struct {
	v *big.Int
}

// MaxAmount is 2^128 - 1, the largest representable balance.
var MaxAmount = AmountFromBig(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1)))

func ZeroAmount() Amount { return Amount{v: new(big.Int)} }

func AmountFromUint64(n uint64) Amount {
	return Amount{v: new(big.Int).SetUint64(n)}
}

func AmountFromBig(b *big.Int) Amount {
	if b == nil {
		return ZeroAmount()
	}
	return Amount{v: new(big.Int).Set(b)}
}

// AmountFromBytes16 parses a 16-byte big-endian unsigned integer.
func AmountFromBytes16(b []byte) (Amount, error) {
	if len(b) != 16 {
		return Amount{}, errAmount("expected 16 bytes")
	}
	return Amount{v: new(big.Int).SetBytes(b)}, nil
}

// Bytes16 encodes the amount as a 16-byte big-endian unsigned integer.
func (a Amount) Bytes16() ([16]byte, error) {
	var out [16]byte
	if a.v == nil {
		return out, nil
	}
	if a.v.Sign() < 0 {
		return out, errAmount("negative amount")
	}
	raw := a.v.Bytes()
	if len(raw) > 16 {
		return out, errAmount("amount overflow")
	}
	copy(out[16-len(raw):], raw)
	return out, nil
}

func (a Amount) Big() *big.Int {
	if a.v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.v)
}

func (a Amount) Cmp(b Amount) int { return a.Big().Cmp(b.Big()) }

func (a Amount) Add(b Amount) Amount { return Amount{v: new(big.Int).Add(a.Big(), b.Big())} }

// Sub returns a-b and whether the result is non-negative. A negative
// result is returned as zero; callers must check ok before using it.
func (a Amount) Sub(b Amount) (result Amount, ok bool) {
	d := new(big.Int).Sub(a.Big(), b.Big())
	if d.Sign() < 0 {
		return ZeroAmount(), false
	}
	return Amount{v: d}, true
}

func (a Amount) IsZero() bool { return a.v == nil || a.v.Sign() == 0 }

func (a Amount) String() string { return a.Big().String() }

type amountError string

func (e amountError) Error() string { return "types: amount: " + string(e) }
func errAmount(msg string) error    { return amountError(msg) }
