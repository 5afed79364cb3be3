package kvstore

import (
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltStore is the real backend: an embedded B+tree engine (bbolt)
// with one bucket per named map, exactly mirroring the teacher's
// node/store/db.go bucket-per-concern layout.
type BoltStore struct {
	db *bolt.DB
}

func OpenBolt(dataDir string) (*BoltStore, error) {
	path := filepath.Join(dataDir, "ledger.db")
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("kvstore: open bbolt: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(b)); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

func (s *BoltStore) BeginRead() (Txn, error) {
	tx, err := s.db.Begin(false)
	if err != nil {
		return nil, err
	}
	return &boltTxn{tx: tx, writable: false}, nil
}

// BeginWrite opens a writable transaction. The purpose token isn't
// enforced here — that serialization is the WriteQueue's job
// (writequeue.go); BoltStore itself relies on bbolt's single-writer
// guarantee as the safety net underneath it.
func (s *BoltStore) BeginWrite(_ PurposeToken) (Txn, error) {
	tx, err := s.db.Begin(true)
	if err != nil {
		return nil, err
	}
	return &boltTxn{tx: tx, writable: true}, nil
}

type boltTxn struct {
	tx       *bolt.Tx
	writable bool
}

func (t *boltTxn) Bucket(name string) BucketTxn {
	return &boltBucket{b: t.tx.Bucket([]byte(name))}
}

func (t *boltTxn) Commit() error {
	if t.writable {
		return t.tx.Commit()
	}
	return t.tx.Rollback()
}

func (t *boltTxn) Rollback() error { return t.tx.Rollback() }

type boltBucket struct {
	b *bolt.Bucket
}

func (b *boltBucket) Get(key []byte) ([]byte, bool, error) {
	v := b.b.Get(key)
	if v == nil {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (b *boltBucket) Put(key, value []byte) error { return b.b.Put(key, value) }
func (b *boltBucket) Del(key []byte) error         { return b.b.Delete(key) }

func (b *boltBucket) Exists(key []byte) (bool, error) {
	return b.b.Get(key) != nil, nil
}

func (b *boltBucket) Count() (int, error) {
	n := 0
	c := b.b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		n++
	}
	return n, nil
}

func (b *boltBucket) CursorAt(key []byte) Cursor {
	c := b.b.Cursor()
	started := false
	return &boltCursor{c: c, startKey: key, started: &started}
}

type boltCursor struct {
	c        *bolt.Cursor
	startKey []byte
	started  *bool
}

func (c *boltCursor) Next() ([]byte, []byte, bool) {
	var k, v []byte
	if !*c.started {
		*c.started = true
		if len(c.startKey) == 0 {
			k, v = c.c.First()
		} else {
			k, v = c.c.Seek(c.startKey)
		}
	} else {
		k, v = c.c.Next()
	}
	if k == nil {
		return nil, nil, false
	}
	return append([]byte(nil), k...), append([]byte(nil), v...), true
}
