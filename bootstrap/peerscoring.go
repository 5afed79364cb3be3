package bootstrap

import (
	"sort"
	"sync"
)

// defaultRequestsLimit mirrors peer_scoring.rs's per-channel outstanding
// request ceiling.
const defaultRequestsLimit = 16

// peerScore tracks one peer's in-flight asc_pull load, mirroring
// peer_scoring.rs's PeerScore (outstanding/request_count_total/
// response_count_total).
type peerScore struct {
	outstanding   int
	requestTotal  uint64
	responseTotal uint64
}

// PeerScoring picks which connected peer should receive the next
// bootstrap request, preferring the peer with the fewest requests
// already outstanding, and throttles any peer already at its limit.
// Grounded on peer_scoring.rs's Scoring type; the secondary
// by-outstanding BTreeMap index is dropped in favor of a linear scan
// over the (small, bounded-by-MaxPeers) peer set on each selection,
// since Go's stdlib has no sorted-multimap equivalent worth importing
// a library for at this scale.
type PeerScoring struct {
	mu            sync.Mutex
	requestsLimit int
	peers         map[string]*peerScore
}

func NewPeerScoring(requestsLimit int) *PeerScoring {
	if requestsLimit <= 0 {
		requestsLimit = defaultRequestsLimit
	}
	return &PeerScoring{
		requestsLimit: requestsLimit,
		peers:         make(map[string]*peerScore),
	}
}

// Sync registers addr as a known channel if it isn't already tracked.
func (s *PeerScoring) Sync(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.peers[addr]; !ok {
		s.peers[addr] = &peerScore{}
	}
}

// NextChannel returns the address of the peer with the fewest
// outstanding requests that is still under the requests limit, or ""
// if every known peer is saturated.
func (s *PeerScoring) NextChannel() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	addrs := make([]string, 0, len(s.peers))
	for addr := range s.peers {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	best := ""
	bestOutstanding := s.requestsLimit
	for _, addr := range addrs {
		sc := s.peers[addr]
		if sc.outstanding >= s.requestsLimit {
			continue
		}
		if best == "" || sc.outstanding < bestOutstanding {
			best = addr
			bestOutstanding = sc.outstanding
		}
	}
	if best != "" {
		s.peers[best].outstanding++
		s.peers[best].requestTotal++
	}
	return best
}

// ReceivedMessage records a reply from addr, decrementing its
// outstanding count.
func (s *PeerScoring) ReceivedMessage(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.peers[addr]
	if !ok {
		return
	}
	if sc.outstanding > 0 {
		sc.outstanding--
	}
	sc.responseTotal++
}

// Timeout drops addr's outstanding count to zero, letting it be
// re-selected; called when a pull request against addr is abandoned.
func (s *PeerScoring) Timeout(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sc, ok := s.peers[addr]; ok {
		sc.outstanding = 0
	}
}

// Remove drops addr from tracking entirely, e.g. on disconnect.
func (s *PeerScoring) Remove(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.peers, addr)
}

func (s *PeerScoring) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}
