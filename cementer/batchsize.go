// Package cementer walks confirmed frontiers down to the cemented
// height and commits them in adaptively-sized batches (spec §4.9),
// recursing through cross-account receive dependencies as needed.
// Grounded on the pre-distillation confirmation_height_bounded.rs and
// block_cementer*.rs (see SPEC_FULL.md's SUPPLEMENTED FEATURES), since
// the teacher repo has no analogous cross-chain cementing concept.
package cementer

import (
	"sync"
	"time"
)

// BatchWriteSizeManager adapts the number of blocks committed per write
// transaction to keep each write close to a target duration: it grows
// the batch size after a fast write and shrinks it after a slow one
// (spec §4.9 "adapted by a BatchWriteSizeManager that shrinks on long
// writes and grows on fast ones").
type BatchWriteSizeManager struct {
	mu sync.Mutex

	minSize, maxSize int
	target           time.Duration
	current          int
}

func NewBatchWriteSizeManager(initial, min, max int, target time.Duration) *BatchWriteSizeManager {
	if initial < min {
		initial = min
	}
	if initial > max {
		initial = max
	}
	return &BatchWriteSizeManager{minSize: min, maxSize: max, target: target, current: initial}
}

// Size returns the batch size to use for the next write.
func (m *BatchWriteSizeManager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Report records how long the most recent batch write took, adjusting
// the next batch size proportionally: a write that took half the
// target duration grows the batch ~2x (clamped), one that took double
// shrinks it by half.
func (m *BatchWriteSizeManager) Report(elapsed time.Duration, count int) {
	if count <= 0 || elapsed <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ratio := float64(m.target) / float64(elapsed)
	next := int(float64(m.current) * ratio)
	if next < m.minSize {
		next = m.minSize
	}
	if next > m.maxSize {
		next = m.maxSize
	}
	m.current = next
}
