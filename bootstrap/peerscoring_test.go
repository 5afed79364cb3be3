package bootstrap

import "testing"

func TestPeerScoringPrefersLeastOutstanding(t *testing.T) {
	s := NewPeerScoring(2)
	s.Sync("peer-a")
	s.Sync("peer-b")

	first := s.NextChannel()
	if first == "" {
		t.Fatalf("expected a channel")
	}
	second := s.NextChannel()
	if second == first {
		t.Fatalf("expected the second pick to prefer the less-loaded peer, got %s twice", first)
	}
}

func TestPeerScoringThrottlesAtLimit(t *testing.T) {
	s := NewPeerScoring(1)
	s.Sync("only-peer")

	if got := s.NextChannel(); got != "only-peer" {
		t.Fatalf("expected only-peer, got %q", got)
	}
	if got := s.NextChannel(); got != "" {
		t.Fatalf("expected no channel once at the limit, got %q", got)
	}

	s.ReceivedMessage("only-peer")
	if got := s.NextChannel(); got != "only-peer" {
		t.Fatalf("expected only-peer to be selectable again after reply, got %q", got)
	}
}

func TestPeerScoringTimeoutFreesSlot(t *testing.T) {
	s := NewPeerScoring(1)
	s.Sync("p")
	s.NextChannel()
	s.Timeout("p")
	if got := s.NextChannel(); got != "p" {
		t.Fatalf("expected timeout to reset outstanding count, got %q", got)
	}
}

func TestPeerScoringRemove(t *testing.T) {
	s := NewPeerScoring(4)
	s.Sync("p")
	s.Remove("p")
	if s.Len() != 0 {
		t.Fatalf("expected peer to be gone after Remove")
	}
}
