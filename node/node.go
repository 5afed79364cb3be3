package node

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"lattice.dev/node/blockproc"
	"lattice.dev/node/bootstrap"
	"lattice.dev/node/cementer"
	"lattice.dev/node/consensus"
	"lattice.dev/node/cryptoprovider"
	"lattice.dev/node/kvstore"
	"lattice.dev/node/ledger"
	"lattice.dev/node/network"
	"lattice.dev/node/nodestats"
	"lattice.dev/node/types"
	"lattice.dev/node/wire"
)

// schedulerTick is how often the election scheduler promotes queued
// candidates into live elections (spec §4.7's bucket pop-oldest loop
// names no fixed cadence, so this follows the cementer's own
// batch-sizer target latency order of magnitude).
const schedulerTick = 500 * time.Millisecond

// voteSpacingDelay is the minimum interval between two distinct-hash
// votes on the same root (spec §4.6's vote spacing `delay`, left as an
// implementation-chosen constant since spec.md names the rule but not
// a specific duration).
const voteSpacingDelay = 15 * time.Second

// protocolMagic tags every realtime-wire frame so a misconfigured peer
// on a different network is disconnected at the framing layer rather
// than fed garbage into the block processor (mirrors the teacher's
// p2p.envelope magic, narrowed from its uint32 to the single byte
// wire.Header.Magic already carries).
const protocolMagic byte = 0x52

// Node owns every subsystem and their wiring: this is the top-level
// assembly spec §2/§5 describe in prose ("a node runs one ledger, one
// block processor, ..."). Grounded on the teacher's node/main.go
// construction order (open store, build services bottom-up, start
// goroutines, wait on signal/context).
type Node struct {
	cfg Config
	log *slog.Logger

	store kvstore.Store

	weights *ledger.RepWeights

	processor *blockproc.Processor

	active    *consensus.ActiveElections
	scheduler *consensus.ElectionScheduler
	votes     *consensus.VoteProcessor
	votegen   *consensus.VoteGenerator

	cementer *cementer.Cementer

	netServer *network.Server

	bootstrapServer *bootstrap.Server
	bootstrapClient *bootstrap.Client
	pullsCache      *bootstrap.PullsCache
	peerScoring     *bootstrap.PeerScoring

	stats    *nodestats.Registry
	registry *prometheus.Registry
}

// New wires every subsystem together against an already-opened store.
// Representatives is the set of local voting identities; an empty set
// is a valid, non-voting (observer) node.
func New(cfg Config, store kvstore.Store, log *slog.Logger, representatives []consensus.RepresentativeKey) *Node {
	if log == nil {
		log = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	crypto := cryptoprovider.Standard{}
	wq := kvstore.NewWriteQueue(store)
	l := ledger.New(crypto, cryptoprovider.DefaultThresholds)
	weights := l.Weights

	processor := blockproc.New(l, wq)

	online := consensus.NewOnlineWeightSampler(weights)
	quorum := consensus.NewQuorum(online, types.AmountFromUint64(cfg.OnlineWeightMinimum))

	sizer := cementer.NewBatchWriteSizeManager(cfg.ConfirmingSetBatchSize, 16, 4096, 250*time.Millisecond)

	n := &Node{
		cfg:     cfg,
		log:     log,
		store:   store,
		weights: weights,

		processor: processor,

		pullsCache:  bootstrap.NewPullsCache(0),
		peerScoring: bootstrap.NewPeerScoring(0),

		registry: prometheus.NewRegistry(),
	}
	n.stats = nodestats.NewRegistry(n.registry)

	n.cementer = cementer.New(store, wq, sizer, n.onCemented)
	n.active = consensus.NewActiveElections(quorum, n.onConfirmed)
	n.scheduler = consensus.NewElectionScheduler(n.active, cfg.ElectionReservedSlots, cfg.ElectionMaxSlots)
	n.votes = consensus.NewVoteProcessor(crypto, weights, quorum, n.active)
	n.votegen = consensus.NewVoteGenerator(crypto, consensus.NewVoteSpacing(voteSpacingDelay), representatives)

	handler := &realtimeHandler{
		log:       log,
		processor: processor,
		votes:     n.votes,
		votegen:   n.votegen,
		stats:     n.stats,
	}
	n.netServer = network.NewServer(network.ServerConfig{
		ListenAddr: cfg.BindAddr,
		Peers:      cfg.Peers,
		MaxPeers:   cfg.MaxPeers,
		PeerConfig: network.PeerConfig{Magic: protocolMagic, IdleTimeout: 2 * time.Minute},
	}, handler)

	n.bootstrapServer = bootstrap.NewServer(bootstrap.ServerConfig{ListenAddr: cfg.BootstrapAddr}, store)
	n.bootstrapClient = bootstrap.NewClient(bootstrap.ClientConfig{}, n.peerScoring, n.pullsCache, processor)

	// The bootstrap client reuses the configured static peer set as its
	// pull targets; there is no peer-exchange/telemetry step in this
	// node that would let it learn a connected peer's bootstrap
	// listener address separately from its realtime one.
	for _, addr := range cfg.Peers {
		n.peerScoring.Sync(addr)
	}

	return n
}

// onConfirmed is ActiveElections' ConfirmedHandler: once an election's
// candidate reaches quorum, hand its account's frontier to the
// cementer (spec §4.8 "confirmation hands off to the cementer", §9's
// weak-reference-only back-pointer rule — Node is the only thing that
// holds both ends).
func (n *Node) onConfirmed(root types.Hash, winner types.Hash, block *types.Block) {
	if block == nil || block.Type != types.BlockTypeState {
		return
	}
	n.active.Remove(root)
	if err := n.cementer.Cement(block.State.Account, winner); err != nil {
		n.log.Error("cement failed", "account", block.State.Account, "hash", winner, "err", err)
	}
}

// onCemented is the Cementer's CementedCallback: it republishes
// confirmation via stats only, since spec's RPC/websocket notification
// surface is out of scope (SPEC_FULL.md Non-goals).
func (n *Node) onCemented(account types.Account, hash types.Hash, height uint64) {
	n.stats.Inc(nodestats.StatCementer, "cemented", nodestats.DirectionOut)
	n.log.Debug("cemented", "account", account, "hash", hash, "height", height)
}

// runBlockNotifications drains processed-block notifications and
// activates each successfully-applied candidate in the election
// scheduler, bucketed by the account's new balance (spec §4.7).
func (n *Node) runBlockNotifications(ctx context.Context) error {
	ch := make(chan blockproc.Notification, 256)
	n.processor.Subscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case notif := <-ch:
			if notif.Block == nil {
				continue
			}
			switch notif.Result {
			case ledger.Progress:
				n.activateNotification(notif)
			case ledger.GapPrevious, ledger.GapSource:
				n.triggerGapRecovery(notif)
			}
		}
	}
}

func (n *Node) activateNotification(notif blockproc.Notification) {
	tx, err := n.store.BeginRead()
	if err != nil {
		return
	}
	defer tx.Rollback()

	side, ok, err := ledger.ReadSideband(tx, notif.Hash)
	if err != nil || !ok {
		return
	}
	root, err := notif.Block.Root()
	if err != nil {
		return
	}
	n.scheduler.Activate(root, side.Account, notif.Hash, notif.Block, side.Balance, time.Now())
	n.stats.Inc(nodestats.StatConsensus, "scheduled", nodestats.DirectionIn)
}

// triggerGapRecovery asks the bootstrap client to pull the rejected
// block's account forward from the block's previous hash (for a
// GapSource result too; the missing source block is not requested by
// its own hash), so the chain catches up instead of the candidate being dropped
// forever (spec §4.5's GapPrevious/GapSource results name the defect;
// recovering from it is this node's own addition, grounded on the
// pre-distillation ascending-bootstrap design that exists precisely to
// answer "a live block referenced something we don't have yet").
func (n *Node) triggerGapRecovery(notif blockproc.Notification) {
	if notif.Block.Type != types.BlockTypeState {
		return
	}
	account := notif.Block.State.Account
	missing := notif.Block.State.Previous
	go func() {
		if _, err := n.bootstrapClient.Pull(account, missing); err != nil {
			n.log.Debug("gap recovery pull failed", "account", account, "hash", missing, "err", err)
		}
	}()
}

// runElectionScheduler periodically promotes queued candidates into
// live elections and casts this node's own votes for each newly
// activated root, broadcasting them to every connected peer.
func (n *Node) runElectionScheduler(ctx context.Context) error {
	ticker := time.NewTicker(schedulerTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			for _, root := range n.scheduler.RunOnce(now) {
				n.voteAndBroadcast(root)
			}
			n.sweepExpired(now)
		}
	}
}

func (n *Node) sweepExpired(now time.Time) {
	for range n.active.SweepExpired(now) {
		n.stats.Inc(nodestats.StatConsensus, "expired", nodestats.DirectionOut)
	}
}

func (n *Node) voteAndBroadcast(root types.Hash) {
	e, ok := n.active.Get(root)
	if !ok {
		return
	}
	var hash types.Hash
	for h := range e.Candidates() {
		hash = h
		break
	}
	if hash == (types.Hash{}) {
		return
	}
	votes, err := n.votegen.GenerateNormal(root, hash)
	if err != nil {
		return
	}
	for _, v := range votes {
		n.active.Vote(v.VotingAccount, n.weights.Weight(v.VotingAccount), v)
		payload, err := wire.EncodeVote(v)
		if err != nil {
			continue
		}
		hdr := wire.Header{MessageType: wire.MessageConfirmAck}
		hdr.Extensions = wire.SetCount(hdr.Extensions, uint8(len(v.Hashes)))
		n.netServer.Broadcast(hdr, payload)
		n.stats.Inc(nodestats.StatConsensus, "vote_broadcast", nodestats.DirectionOut)
	}
}

// Run starts every background worker and blocks until ctx is canceled
// or a fatal error occurs in any of them (spec §5's one-BlockProcessor,
// N-VoteProcessor, one-Cementer worker topology, run as one
// coordinated goroutine group per node/main.go's shutdown shape).
func (n *Node) Run(ctx context.Context) error {
	bootstrapLn, err := net.Listen("tcp", n.cfg.BootstrapAddr)
	if err != nil {
		return fmt.Errorf("node: listen bootstrap_addr: %w", err)
	}

	metricsSrv := &http.Server{
		Addr:    n.cfg.MetricsAddr,
		Handler: nodestats.Handler(n.registry),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return n.netServer.Run(gctx) })
	g.Go(func() error { return n.processor.Run(gctx) })
	g.Go(func() error { return n.votes.Run(gctx) })
	g.Go(func() error { return n.runBlockNotifications(gctx) })
	g.Go(func() error { return n.runElectionScheduler(gctx) })
	g.Go(func() error {
		done := make(chan struct{})
		go func() {
			<-gctx.Done()
			close(done)
		}()
		return n.bootstrapServer.Run(bootstrapLn, done)
	})
	g.Go(func() error {
		<-gctx.Done()
		return bootstrapLn.Close()
	})
	g.Go(func() error {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("node: metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return metricsSrv.Close()
	})

	return g.Wait()
}

// Close releases the underlying store.
func (n *Node) Close() error {
	return n.store.Close()
}
