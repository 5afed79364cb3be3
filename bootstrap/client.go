package bootstrap

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/sync/singleflight"

	"lattice.dev/node/blockproc"
	"lattice.dev/node/types"
)

// ClientConfig configures the ascending-pull puller: the dial timeout
// for a single pull connection and how many blocks to request per
// AscPullReq.
type ClientConfig struct {
	DialTimeout time.Duration
	PullCount   uint8
}

func (c *ClientConfig) setDefaults() {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.PullCount == 0 {
		c.PullCount = maxAscPullCount
	}
}

// Client drives ascending-pull catch-up against a peer set: it picks
// the least-loaded peer via PeerScoring, collapses concurrent pulls for
// the same (account, start) via singleflight so two callers racing to
// catch up the same account don't double the network's work, and feeds
// every pulled block into the realtime block processor tagged
// SourceBootstrap. Grounded on the pre-distillation ascending
// bootstrap's per-account worker pool; golang.org/x/sync/singleflight
// replaces its tokio-level in-flight-request tracking since Go's
// stdlib has no request-coalescing primitive of its own.
type Client struct {
	cfg       ClientConfig
	scoring   *PeerScoring
	cache     *PullsCache
	processor *blockproc.Processor
	group     singleflight.Group
}

func NewClient(cfg ClientConfig, scoring *PeerScoring, cache *PullsCache, processor *blockproc.Processor) *Client {
	cfg.setDefaults()
	return &Client{cfg: cfg, scoring: scoring, cache: cache, processor: processor}
}

// Pull fetches up to cfg.PullCount blocks starting at start, from
// whichever tracked peer currently has the fewest outstanding
// requests, and hands every returned block to the block processor.
// Concurrent callers pulling the same (account, start) pair share one
// network round trip.
func (c *Client) Pull(account types.Account, start types.Hash) (int, error) {
	key := fmt.Sprintf("%x:%x", account[:], start[:])
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		return c.pull(account, start)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (c *Client) pull(account types.Account, start types.Hash) (int, error) {
	peerAddr := c.scoring.NextChannel()
	if peerAddr == "" {
		return 0, fmt.Errorf("bootstrap: client: no available peer for pull")
	}

	info := PullInfo{AccountOrHead: types.Hash(account), HeadOriginal: start, Head: start}
	c.cache.UpdatePull(&info)

	n, err := c.pullFrom(peerAddr, info.Head)
	c.scoring.ReceivedMessage(peerAddr)
	if err != nil {
		c.scoring.Timeout(peerAddr)
		return 0, err
	}

	info.Processed = uint64(n)
	c.cache.Add(info)
	return n, nil
}

func (c *Client) pullFrom(addr string, start types.Hash) (int, error) {
	conn, err := net.DialTimeout("tcp", addr, c.cfg.DialTimeout)
	if err != nil {
		return 0, fmt.Errorf("bootstrap: client: dial %s: %w", addr, err)
	}
	defer conn.Close()

	req := AscPullReq{ID: uint64(time.Now().UnixNano()), Start: start, Count: c.cfg.PullCount}
	if err := WriteAscPullReq(conn, req); err != nil {
		return 0, fmt.Errorf("bootstrap: client: write request: %w", err)
	}

	ack, err := ReadAscPullAck(conn)
	if err != nil {
		return 0, fmt.Errorf("bootstrap: client: read reply: %w", err)
	}

	for _, b := range ack.Blocks {
		c.processor.Add(b, blockproc.SourceBootstrap, blockproc.Context{})
	}
	return len(ack.Blocks), nil
}
