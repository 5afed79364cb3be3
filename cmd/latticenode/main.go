package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"lattice.dev/node/consensus"
	"lattice.dev/node/kvstore"
	"lattice.dev/node/node"
	"lattice.dev/node/types"
)

type multiStringFlag []string

func (m *multiStringFlag) String() string {
	if m == nil {
		return ""
	}
	return strings.Join(*m, ",")
}

func (m *multiStringFlag) Set(value string) error {
	*m = append(*m, value)
	return nil
}

// representativeJSON is the on-disk shape for a local voting identity:
// an ed25519 seed (32 bytes hex) paired with the account it votes as.
// There is no wallet/keystore surface in scope, so representatives are
// loaded from a plain file the operator manages themselves.
type representativeJSON struct {
	AccountHex string `json:"account_hex"`
	SeedHex    string `json:"seed_hex"`
}

func loadRepresentatives(path string) ([]consensus.RepresentativeKey, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path) // #nosec G304 -- path is an operator-supplied CLI argument.
	if err != nil {
		return nil, fmt.Errorf("read representatives file: %w", err)
	}
	var entries []representativeJSON
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("representatives file: %w", err)
	}
	reps := make([]consensus.RepresentativeKey, 0, len(entries))
	for i, e := range entries {
		accountRaw, err := hex.DecodeString(e.AccountHex)
		if err != nil || len(accountRaw) != 32 {
			return nil, fmt.Errorf("representatives[%d]: account_hex must decode to 32 bytes", i)
		}
		seedRaw, err := hex.DecodeString(e.SeedHex)
		if err != nil || len(seedRaw) != ed25519.SeedSize {
			return nil, fmt.Errorf("representatives[%d]: seed_hex must decode to %d bytes", i, ed25519.SeedSize)
		}
		var account types.Account
		copy(account[:], accountRaw)
		reps = append(reps, consensus.RepresentativeKey{
			Account: account,
			Priv:    ed25519.NewKeyFromSeed(seedRaw),
		})
	}
	return reps, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	defaults := node.DefaultConfig()
	var peers multiStringFlag

	cfg := defaults
	fs := flag.NewFlagSet("latticenode", flag.ContinueOnError)
	fs.SetOutput(stderr)

	peerCSV := fs.String("peers", "", "bootstrap peers, comma-separated host:port")
	fs.Var(&peers, "peer", "single bootstrap peer host:port (repeatable)")
	fs.StringVar(&cfg.Network, "network", defaults.Network, "network name (devnet/testnet/mainnet)")
	fs.StringVar(&cfg.DataDir, "datadir", defaults.DataDir, "node data directory")
	fs.StringVar(&cfg.BindAddr, "bind", defaults.BindAddr, "realtime bind address host:port")
	fs.StringVar(&cfg.BootstrapAddr, "bootstrap-bind", defaults.BootstrapAddr, "bootstrap (asc_pull) bind address host:port")
	fs.StringVar(&cfg.MetricsAddr, "metrics-bind", defaults.MetricsAddr, "metrics bind address host:port")
	fs.StringVar(&cfg.LogLevel, "log-level", defaults.LogLevel, "log level: debug|info|warn|error")
	fs.IntVar(&cfg.MaxPeers, "max-peers", defaults.MaxPeers, "max connected peers")
	repsPath := fs.String("representatives", "", "path to JSON file of local voting identities")
	dryRun := fs.Bool("dry-run", false, "print effective config and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.Peers = node.NormalizePeers(append([]string{*peerCSV}, peers...)...)
	if err := node.ValidateConfig(cfg); err != nil {
		_, _ = fmt.Fprintf(stderr, "invalid config: %v\n", err)
		return 2
	}

	reps, err := loadRepresentatives(*repsPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "representatives load failed: %v\n", err)
		return 2
	}

	if err := printConfig(stdout, cfg); err != nil {
		_, _ = fmt.Fprintf(stderr, "config encode failed: %v\n", err)
		return 1
	}
	if *dryRun {
		return 0
	}

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		_, _ = fmt.Fprintf(stderr, "datadir create failed: %v\n", err)
		return 2
	}
	store, err := kvstore.OpenBolt(cfg.DataDir)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "store open failed: %v\n", err)
		return 2
	}

	log := newLogger(cfg.LogLevel)
	n := node.New(cfg, store, log, reps)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, _ = fmt.Fprintln(stdout, "latticenode running")
	runErr := n.Run(ctx)
	_, _ = fmt.Fprintln(stdout, "latticenode stopped")

	if closeErr := n.Close(); closeErr != nil {
		_, _ = fmt.Fprintf(stderr, "store close failed: %v\n", closeErr)
	}

	if runErr != nil && ctx.Err() == nil {
		_, _ = fmt.Fprintf(stderr, "node run failed: %v\n", runErr)
		return 1
	}
	return 0
}

func printConfig(w io.Writer, cfg node.Config) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}
