package network

import "testing"

func TestDuplicateFilterDetectsRepeat(t *testing.T) {
	f := NewDuplicateFilter(1, 2)
	msg := []byte("a block hash")
	if f.CheckAndSet(msg) {
		t.Fatalf("first sighting should not be reported as duplicate")
	}
	if !f.CheckAndSet(msg) {
		t.Fatalf("second sighting should be reported as duplicate")
	}
}

func TestDuplicateFilterDistinguishesMessages(t *testing.T) {
	f := NewDuplicateFilter(1, 2)
	if f.CheckAndSet([]byte("one")) {
		t.Fatalf("unexpected duplicate for first message")
	}
	if f.CheckAndSet([]byte("two")) {
		t.Fatalf("unexpected duplicate for distinct message")
	}
}

// TestDuplicateFilterClear exercises spec §8's "apply(p)→(d,false);
// second→(d,true); clear(d) then→(d,false)" property.
func TestDuplicateFilterClear(t *testing.T) {
	f := NewDuplicateFilter(1, 2)
	msg := []byte("a confirm_ack payload")

	if f.CheckAndSet(msg) {
		t.Fatalf("first sighting should not be reported as duplicate")
	}
	if !f.CheckAndSet(msg) {
		t.Fatalf("second sighting should be reported as duplicate")
	}
	f.Clear(msg)
	if f.CheckAndSet(msg) {
		t.Fatalf("sighting after clear should not be reported as duplicate")
	}
}

func TestDuplicateFilterClearLeavesOtherSlotsAlone(t *testing.T) {
	f := NewDuplicateFilter(1, 2)
	a := []byte("one")
	b := []byte("two")

	f.CheckAndSet(a)
	f.CheckAndSet(b)

	f.Clear(a)
	if !f.CheckAndSet(b) {
		t.Fatalf("clearing a's fingerprint must not affect b's slot")
	}
}
