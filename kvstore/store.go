// Package kvstore is the transactional ordered-map substrate the
// ledger, consensus and bootstrap layers build on (spec §4.3, §6
// "Store contract"). Spec treats the on-disk KV engine's internal
// btree code as an external collaborator; this package is the
// transactional wrapper around it that the rest of the node actually
// calls, grounded on the teacher's bbolt-backed store
// (node/store/db.go) generalized from one fixed bucket set to the
// named maps spec §6 requires.
package kvstore

import "errors"

// Bucket names for the eight persisted maps named in spec §6.
const (
	BucketBlocks             = "blocks"
	BucketAccounts           = "accounts"
	BucketPending            = "pending"
	BucketConfirmationHeight = "confirmation_height"
	BucketPruned             = "pruned"
	BucketPeers              = "peers"
	BucketOnlineWeight       = "online_weight"
	BucketFinalVotes         = "final_votes"
)

var allBuckets = []string{
	BucketBlocks, BucketAccounts, BucketPending, BucketConfirmationHeight,
	BucketPruned, BucketPeers, BucketOnlineWeight, BucketFinalVotes,
}

// PurposeToken identifies the logical writer a transaction belongs to,
// so the WriteQueue can serialize writers fairly across purposes
// rather than first-come-first-served within one purpose starving
// another (spec §4.3, §5).
type PurposeToken string

const (
	PurposeBlockProcessor    PurposeToken = "block_processor"
	PurposeConfirmationHeight PurposeToken = "confirmation_height"
	PurposeOnlineWeight      PurposeToken = "online_weight"
	PurposeBootstrap         PurposeToken = "bootstrap"
	PurposeLocal             PurposeToken = "local"
)

var ErrNotFound = errors.New("kvstore: key not found")

// Cursor walks a bucket in ascending key order starting at (or after)
// a given key, per spec §6 `cursor_at(key) -> Iterator<(key, bytes)>`.
type Cursor interface {
	// Next advances the cursor and reports whether an entry was found.
	Next() (key []byte, value []byte, ok bool)
}

// BucketTxn is the per-map surface spec §6 names: get/put/del/exists/
// count/cursor_at.
type BucketTxn interface {
	Get(key []byte) ([]byte, bool, error)
	Put(key, value []byte) error
	Del(key []byte) error
	Exists(key []byte) (bool, error)
	Count() (int, error)
	CursorAt(key []byte) Cursor
}

// Txn is a single transaction, read-only or read-write, over every
// named bucket.
type Txn interface {
	Bucket(name string) BucketTxn
	// Commit finalizes a write transaction (a no-op, but never an
	// error, for read transactions).
	Commit() error
	// Rollback discards a transaction's writes (a no-op for read
	// transactions).
	Rollback() error
}

// Store is the top-level handle: begin_read / begin_write(purpose),
// both refreshable via Txn semantics at the WriteQueue layer (see
// writequeue.go's Refresh).
type Store interface {
	BeginRead() (Txn, error)
	BeginWrite(purpose PurposeToken) (Txn, error)
	Close() error
}
