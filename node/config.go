// Package node wires together the kvstore, ledger, consensus,
// cementer, network and bootstrap packages into a running process:
// configuration, logging, and the top-level start/stop lifecycle
// (spec §2, §5). Grounded on the teacher's node/config.go and
// node/main.go.
package node

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
)

// Config is the plain JSON-tagged configuration struct spec's ambient
// stack calls for, validated by hand rather than via a reflection-based
// validator, matching the teacher's convention.
type Config struct {
	Network       string   `json:"network"`
	DataDir       string   `json:"data_dir"`
	BindAddr      string   `json:"bind_addr"`
	BootstrapAddr string   `json:"bootstrap_addr"`
	MetricsAddr   string   `json:"metrics_addr"`
	LogLevel      string   `json:"log_level"`
	Peers         []string `json:"peers"`
	MaxPeers      int      `json:"max_peers"`

	// OnlineWeightMinimum is the floor applied to the rolling online-
	// weight sample before the quorum threshold is derived (spec §4.6).
	OnlineWeightMinimum uint64 `json:"online_weight_minimum"`

	// ElectionReservedSlots and ElectionMaxSlots bound the active
	// elections table (spec §4.7).
	ElectionReservedSlots int `json:"election_reserved_slots"`
	ElectionMaxSlots      int `json:"election_max_slots"`

	// ConfirmingSetBatchSize seeds the cementer's adaptive batch sizer
	// (spec §4.8).
	ConfirmingSetBatchSize int `json:"confirming_set_batch_size"`
}

var allowedLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".latticenode"
	}
	return filepath.Join(home, ".latticenode")
}

func DefaultConfig() Config {
	return Config{
		Network:                "devnet",
		DataDir:                DefaultDataDir(),
		BindAddr:               "0.0.0.0:7075",
		BootstrapAddr:          "0.0.0.0:7076",
		MetricsAddr:            "127.0.0.1:9100",
		Peers:                  nil,
		LogLevel:               "info",
		MaxPeers:               64,
		OnlineWeightMinimum:    60_000_000,
		ElectionReservedSlots:  32,
		ElectionMaxSlots:       512,
		ConfirmingSetBatchSize: 256,
	}
}

func NormalizePeers(raw ...string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, token := range raw {
		for _, p := range strings.Split(token, ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Network) == "" {
		return errors.New("network is required")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("data_dir is required")
	}
	if err := validateAddr(cfg.BindAddr); err != nil {
		return fmt.Errorf("invalid bind_addr: %w", err)
	}
	if err := validateAddr(cfg.BootstrapAddr); err != nil {
		return fmt.Errorf("invalid bootstrap_addr: %w", err)
	}
	if err := validateAddr(cfg.MetricsAddr); err != nil {
		return fmt.Errorf("invalid metrics_addr: %w", err)
	}
	for _, peer := range cfg.Peers {
		if err := validatePeerAddr(peer); err != nil {
			return fmt.Errorf("invalid peer %q: %w", peer, err)
		}
	}
	logLevel := strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if _, ok := allowedLogLevels[logLevel]; !ok {
		return fmt.Errorf("invalid log_level %q", cfg.LogLevel)
	}
	if cfg.MaxPeers <= 0 {
		return errors.New("max_peers must be > 0")
	}
	if cfg.MaxPeers > 4096 {
		return errors.New("max_peers must be <= 4096")
	}
	if cfg.ElectionReservedSlots < 0 || cfg.ElectionMaxSlots <= 0 ||
		cfg.ElectionReservedSlots > cfg.ElectionMaxSlots {
		return errors.New("election_reserved_slots must be between 0 and election_max_slots")
	}
	if cfg.ConfirmingSetBatchSize <= 0 {
		return errors.New("confirming_set_batch_size must be > 0")
	}
	return nil
}

func validateAddr(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return errors.New("empty address")
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if strings.TrimSpace(port) == "" {
		return errors.New("missing port")
	}
	if strings.Contains(host, " ") {
		return errors.New("invalid host")
	}
	return nil
}

func validatePeerAddr(addr string) error {
	if err := validateAddr(addr); err != nil {
		return err
	}
	host, _, _ := net.SplitHostPort(addr)
	if strings.TrimSpace(host) == "" {
		return errors.New("missing host")
	}
	return nil
}
