package consensus

import (
	"testing"

	"lattice.dev/node/types"
)

type fixedQuorum struct{ amount types.Amount }

func (f fixedQuorum) Quorum() types.Amount { return f.amount }

func TestActiveElectionsInsertAndVoteConfirm(t *testing.T) {
	var confirmed types.Hash
	var confirmedRoot types.Hash
	active := NewActiveElections(fixedQuorum{amount: types.AmountFromUint64(100)}, func(root, winner types.Hash, _ *types.Block) {
		confirmedRoot, confirmed = root, winner
	})

	root := types.Hash{1}
	hash := types.Hash{2}
	block := &types.Block{Type: types.BlockTypeState}

	_, inserted := active.Insert(root, types.Account{}, hash, block, BehaviorNormal)
	if !inserted {
		t.Fatal("expected new election")
	}
	if active.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", active.Len())
	}

	voter := types.Account{9}
	vote := &types.Vote{VotingAccount: voter, Timestamp: 16, Hashes: []types.Hash{hash}}
	results := active.Vote(voter, types.AmountFromUint64(150), vote)
	if results[hash] != VoteVote {
		t.Fatalf("expected VoteVote, got %s", results[hash])
	}
	if confirmed != hash || confirmedRoot != root {
		t.Fatalf("expected confirm callback for (%x,%x), got (%x,%x)", root, hash, confirmedRoot, confirmed)
	}

	e, _ := active.Get(root)
	if e.stateSnapshot() != types.ElectionConfirmed {
		t.Fatalf("expected election state Confirmed")
	}
}

func TestActiveElectionsAlternativeCandidate(t *testing.T) {
	active := NewActiveElections(fixedQuorum{amount: types.AmountFromUint64(1_000_000)}, nil)
	root := types.Hash{1}
	h1, h2 := types.Hash{2}, types.Hash{3}
	b1 := &types.Block{Type: types.BlockTypeState}
	b2 := &types.Block{Type: types.BlockTypeState}

	active.Insert(root, types.Account{}, h1, b1, BehaviorNormal)
	_, inserted := active.Insert(root, types.Account{}, h2, b2, BehaviorNormal)
	if inserted {
		t.Fatal("second insert on same root should report inserted=false")
	}
	if active.Len() != 1 {
		t.Fatalf("one election should cover both candidates, got Len()=%d", active.Len())
	}

	voter := types.Account{9}
	v1 := &types.Vote{VotingAccount: voter, Timestamp: 16, Hashes: []types.Hash{h1}}
	active.Vote(voter, types.AmountFromUint64(10), v1)

	v2 := &types.Vote{VotingAccount: voter, Timestamp: 32, Hashes: []types.Hash{h2}}
	results := active.Vote(voter, types.AmountFromUint64(10), v2)
	if results[h2] != VoteVote {
		t.Fatalf("expected newer-timestamp vote to apply, got %s", results[h2])
	}

	e, _ := active.Get(root)
	tally := e.Tally()
	if !tally[h1].IsZero() {
		t.Fatalf("switching vote should zero out h1's tally, got %s", tally[h1])
	}
	if tally[h2].Cmp(types.AmountFromUint64(10)) != 0 {
		t.Fatalf("h2 tally = %s, want 10", tally[h2])
	}
}

func TestActiveElectionsReplayVote(t *testing.T) {
	active := NewActiveElections(fixedQuorum{amount: types.AmountFromUint64(1_000_000)}, nil)
	root := types.Hash{1}
	hash := types.Hash{2}
	active.Insert(root, types.Account{}, hash, &types.Block{Type: types.BlockTypeState}, BehaviorNormal)

	voter := types.Account{9}
	v1 := &types.Vote{VotingAccount: voter, Timestamp: 32, Hashes: []types.Hash{hash}}
	active.Vote(voter, types.AmountFromUint64(10), v1)

	stale := &types.Vote{VotingAccount: voter, Timestamp: 16, Hashes: []types.Hash{hash}}
	results := active.Vote(voter, types.AmountFromUint64(10), stale)
	if results[hash] != VoteReplay {
		t.Fatalf("expected Replay for stale timestamp, got %s", results[hash])
	}
}

func TestActiveElectionsIndeterminateVote(t *testing.T) {
	active := NewActiveElections(fixedQuorum{amount: types.AmountFromUint64(1_000_000)}, nil)
	voter := types.Account{9}
	vote := &types.Vote{VotingAccount: voter, Timestamp: 16, Hashes: []types.Hash{{0x42}}}
	results := active.Vote(voter, types.AmountFromUint64(10), vote)
	if results[types.Hash{0x42}] != VoteIndeterminate {
		t.Fatalf("expected Indeterminate for unrouted hash, got %s", results[types.Hash{0x42}])
	}
}
