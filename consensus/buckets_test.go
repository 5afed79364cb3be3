package consensus

import (
	"testing"
	"time"

	"lattice.dev/node/types"
)

func TestBucketIndexMonotonic(t *testing.T) {
	thresholds := bucketThresholds()
	low := bucketIndex(thresholds, types.AmountFromUint64(1))
	high := bucketIndex(thresholds, types.MaxAmount)
	if high <= low {
		t.Fatalf("expected higher balance to land in a higher bucket: low=%d high=%d", low, high)
	}
	if bucketIndex(thresholds, types.ZeroAmount()) != 0 {
		t.Fatalf("zero balance should land in bucket 0")
	}
}

func TestElectionSchedulerActivatesWithinReservedSlots(t *testing.T) {
	active := NewActiveElections(fixedQuorum{amount: types.AmountFromUint64(1_000_000)}, nil)
	s := NewElectionScheduler(active, 2, 4)

	now := time.Now()
	for i := 0; i < 3; i++ {
		root := types.Hash{byte(i + 1)}
		hash := types.Hash{byte(i + 10)}
		s.Activate(root, types.Account{}, hash, &types.Block{Type: types.BlockTypeState}, types.AmountFromUint64(5), now.Add(time.Duration(i)*time.Millisecond))
	}
	if s.Pending() != 3 {
		t.Fatalf("Pending() = %d, want 3", s.Pending())
	}

	activated := s.RunOnce(now)
	if len(activated) != 1 {
		t.Fatalf("expected exactly one bucket to activate one candidate, got %d activations", len(activated))
	}
	if s.Pending() != 2 {
		t.Fatalf("Pending() after one RunOnce = %d, want 2", s.Pending())
	}
}

func TestBucketDisplacesOnlyWhenStrictlyOlder(t *testing.T) {
	b := newBucket(types.ZeroAmount(), 0, 1)
	now := time.Now()

	root1 := types.Hash{1}
	b.Push(root1, types.Account{}, types.Hash{2}, &types.Block{}, now)
	entry, _, _, ok := b.TryActivate(now)
	if !ok || entry.root != root1 {
		t.Fatalf("expected first candidate to activate")
	}

	// A younger candidate should not displace the active election.
	root2 := types.Hash{3}
	b.Push(root2, types.Account{}, types.Hash{4}, &types.Block{}, now.Add(time.Second))
	_, _, _, ok = b.TryActivate(now.Add(time.Second))
	if ok {
		t.Fatal("younger candidate should not displace an older active election")
	}

	// An older candidate should displace it.
	root3 := types.Hash{5}
	b.Push(root3, types.Account{}, types.Hash{6}, &types.Block{}, now.Add(-time.Second))
	entry, displaced, displacedOK, ok := b.TryActivate(now)
	if !ok {
		t.Fatal("older candidate should have displaced the active election")
	}
	if !displacedOK || displaced != root1 {
		t.Fatalf("expected root1 displaced, got %x (ok=%v)", displaced, displacedOK)
	}
	if entry.root != root3 {
		t.Fatalf("expected root3 activated, got %x", entry.root)
	}
}
