package consensus

import (
	"crypto/ed25519"
	"testing"
	"time"

	"lattice.dev/node/cryptoprovider"
	"lattice.dev/node/types"
	"lattice.dev/node/wire"
)

func TestVoteGeneratorSignsAndSpaces(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	var account types.Account
	copy(account[:], pub)

	spacing := NewVoteSpacing(50 * time.Millisecond)
	crypto := cryptoprovider.Standard{}
	g := NewVoteGenerator(crypto, spacing, []RepresentativeKey{{Account: account, Priv: priv}})

	root := types.Hash{1}
	hashA := types.Hash{2}
	votes, err := g.GenerateNormal(root, hashA)
	if err != nil {
		t.Fatalf("GenerateNormal: %v", err)
	}
	if len(votes) != 1 {
		t.Fatalf("expected 1 vote, got %d", len(votes))
	}
	v := votes[0]
	digest, err := wire.HashVote(crypto, v)
	if err != nil {
		t.Fatalf("hash vote: %v", err)
	}
	if !crypto.Verify([32]byte(account), [32]byte(digest), v.Signature) {
		t.Fatal("generated vote signature does not verify")
	}

	// A different hash on the same root within the spacing delay must
	// not produce a vote (spec §8 vote-spacing law).
	hashB := types.Hash{3}
	votes, err = g.GenerateNormal(root, hashB)
	if err != nil {
		t.Fatalf("GenerateNormal: %v", err)
	}
	if len(votes) != 0 {
		t.Fatal("expected vote spacing to suppress a second distinct hash")
	}

	// The same hash is always votable regardless of spacing.
	votes, err = g.GenerateNormal(root, hashA)
	if err != nil {
		t.Fatalf("GenerateNormal: %v", err)
	}
	if len(votes) != 1 {
		t.Fatal("expected same-hash revote to remain votable")
	}
}
