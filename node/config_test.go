package node

import "testing"

func TestDefaultConfigValidates(t *testing.T) {
	if err := ValidateConfig(DefaultConfig()); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidateConfigRejectsBadBindAddr(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BindAddr = "not-an-address"
	if err := ValidateConfig(cfg); err == nil {
		t.Fatalf("expected error for bad bind_addr")
	}
}

func TestValidateConfigRejectsElectionSlotMismatch(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ElectionReservedSlots = cfg.ElectionMaxSlots + 1
	if err := ValidateConfig(cfg); err == nil {
		t.Fatalf("expected error when reserved slots exceed max slots")
	}
}

func TestNormalizePeersDedupsAndTrims(t *testing.T) {
	got := NormalizePeers(" 1.2.3.4:7075 , 1.2.3.4:7075", "5.6.7.8:7075")
	if len(got) != 2 {
		t.Fatalf("got %v, want 2 unique peers", got)
	}
}
