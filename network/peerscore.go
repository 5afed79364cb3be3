// Package network owns peer connections, message dispatch, duplicate
// suppression and the ban-score policy that keeps a misbehaving peer
// from being retried forever (spec §4.10). Grounded on the teacher's
// node/p2p package.
package network

import "time"

const (
	BanThreshold       = 100
	ThrottleThreshold  = 50
	ThrottleDelay      = 500 * time.Millisecond
	BanDurationDefault = 24 * time.Hour

	// BanScoreDecaysPerMinute matches the teacher's decay rate; nothing
	// in spec.md names a different one, so it's kept as-is.
	BanScoreDecaysPerMinute = 1
)

// BanScore is a deterministic, decaying policy score. It is advisory,
// not part of the consensus rules the ledger enforces.
type BanScore struct {
	score       int
	lastUpdated time.Time
}

func (b *BanScore) Score(now time.Time) int {
	b.decayTo(now)
	return b.score
}

func (b *BanScore) Add(now time.Time, delta int) int {
	b.decayTo(now)
	b.score += delta
	if b.score < 0 {
		b.score = 0
	}
	return b.score
}

func (b *BanScore) ShouldBan(now time.Time) bool {
	return b.Score(now) >= BanThreshold
}

func (b *BanScore) ShouldThrottle(now time.Time) bool {
	return b.Score(now) >= ThrottleThreshold
}

func (b *BanScore) decayTo(now time.Time) {
	if b.lastUpdated.IsZero() {
		b.lastUpdated = now
		return
	}
	if now.Before(b.lastUpdated) {
		b.lastUpdated = now
		return
	}
	minutes := int(now.Sub(b.lastUpdated) / time.Minute)
	if minutes <= 0 {
		return
	}
	dec := minutes * BanScoreDecaysPerMinute
	b.score -= dec
	if b.score < 0 {
		b.score = 0
	}
	b.lastUpdated = now
}
