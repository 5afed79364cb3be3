// Package cryptoprovider is the narrow crypto surface the rest of the
// node depends on: content hashing, signature verify/sign, and the
// proof-of-work validation oracle named in spec §1 as an external
// collaborator (`validate_work(root, work) -> bool`). Modeled on the
// teacher's CryptoProvider interface (crypto/provider.go), narrowed
// and retargeted to the primitives this spec actually needs
// (Blake2b-256 content hashing, Ed25519 account/vote signatures)
// instead of the teacher's SHA3/ML-DSA pair.
package cryptoprovider

import (
	"crypto/ed25519"

	"golang.org/x/crypto/blake2b"
)

// Provider is consumed by wire (content hashing), ledger (signature
// verification) and consensus (vote signing/verification). Swappable
// so tests can use a deterministic stand-in and production can use a
// hardware-backed signer without either caller changing.
type Provider interface {
	Hash256(parts ...[]byte) ([32]byte, error)
	Verify(pubkey [32]byte, digest [32]byte, sig [64]byte) bool
	Sign(priv ed25519.PrivateKey, digest [32]byte) [64]byte
}

// Standard is the default Provider: Blake2b-256 content hashing and
// Ed25519 signatures, both native-Go (golang.org/x/crypto), no FFI.
type Standard struct{}

func (Standard) Hash256(parts ...[]byte) ([32]byte, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return [32]byte{}, err
	}
	for _, p := range parts {
		if _, err := h.Write(p); err != nil {
			return [32]byte{}, err
		}
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}

func (Standard) Verify(pubkey [32]byte, digest [32]byte, sig [64]byte) bool {
	return ed25519.Verify(ed25519.PublicKey(pubkey[:]), digest[:], sig[:])
}

func (Standard) Sign(priv ed25519.PrivateKey, digest [32]byte) [64]byte {
	var out [64]byte
	copy(out[:], ed25519.Sign(priv, digest[:]))
	return out
}
