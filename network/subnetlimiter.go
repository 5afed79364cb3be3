package network

import (
	"net"
	"sync"

	"github.com/decred/dcrd/container/apbf"
)

// MaxConnectionsPerSubnet caps simultaneous inbound connections from a
// single IPv6 /64 (or a single IPv4 address) so one host can't consume
// the whole inbound slot budget (spec §4.10 "connection admission").
const MaxConnectionsPerSubnet = 2

// subnetFilterElements and subnetFilterFPRate size the age-partitioned
// Bloom filter that records "this subnet was admitted recently" without
// an unbounded map. Admit only adds to the filter and never reads it,
// so a false positive does not affect admission.
const (
	subnetFilterElements = 8192
	subnetFilterFPRate   = 0.001
)

// SubnetLimiter enforces MaxConnectionsPerSubnet using an exact count
// of currently-open connections. It also records admitted subnets in
// an APBF, which the admission check does not consult.
type SubnetLimiter struct {
	mu     sync.Mutex
	open   map[string]int
	recent *apbf.Filter
}

func NewSubnetLimiter() *SubnetLimiter {
	return &SubnetLimiter{
		open:   make(map[string]int),
		recent: apbf.NewFilter(subnetFilterElements, subnetFilterFPRate),
	}
}

// subnetKey reduces an address to its /64 (IPv6) or exact address
// (IPv4) admission-control bucket.
func subnetKey(addr net.IP) string {
	if v4 := addr.To4(); v4 != nil {
		return v4.String()
	}
	return addr.Mask(net.CIDRMask(64, 128)).String()
}

// Admit reports whether a new inbound connection from addr should be
// accepted, and if so reserves its slot; callers must call Release when
// the connection closes.
func (l *SubnetLimiter) Admit(addr net.IP) bool {
	key := subnetKey(addr)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.open[key] >= MaxConnectionsPerSubnet {
		return false
	}
	l.recent.Add([]byte(key))
	l.open[key]++
	return true
}

func (l *SubnetLimiter) Release(addr net.IP) {
	key := subnetKey(addr)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.open[key] > 0 {
		l.open[key]--
	}
	if l.open[key] == 0 {
		delete(l.open, key)
	}
}

// RecentlyConnected reports whether any connection from addr's subnet
// was admitted recently, according to the APBF (false positives are
// possible).
func (l *SubnetLimiter) RecentlyConnected(addr net.IP) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.recent.Contains([]byte(subnetKey(addr)))
}
