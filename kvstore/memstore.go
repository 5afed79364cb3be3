package kvstore

import (
	"bytes"
	"sort"
	"sync"
)

// MemStore is the null/in-memory backend spec §4.3 requires for
// tests: same Store/Txn/BucketTxn surface as BoltStore, no disk I/O.
// Writes take effect immediately on Commit and are visible to the
// next transaction; there is no true MVCC isolation, but every
// caller in this codebase already serializes writers through the
// WriteQueue, so none is needed for correctness of the code under
// test.
type MemStore struct {
	mu      sync.Mutex
	buckets map[string]map[string][]byte
}

func NewMemStore() *MemStore {
	m := &MemStore{buckets: make(map[string]map[string][]byte, len(allBuckets))}
	for _, b := range allBuckets {
		m.buckets[b] = make(map[string][]byte)
	}
	return m
}

func (m *MemStore) Close() error { return nil }

func (m *MemStore) BeginRead() (Txn, error) {
	m.mu.Lock()
	snapshot := m.snapshotLocked()
	m.mu.Unlock()
	return &memTxn{store: m, data: snapshot, writable: false}, nil
}

func (m *MemStore) BeginWrite(_ PurposeToken) (Txn, error) {
	m.mu.Lock()
	snapshot := m.snapshotLocked()
	return &memTxn{store: m, data: snapshot, writable: true, locked: true}, nil
}

func (m *MemStore) snapshotLocked() map[string]map[string][]byte {
	out := make(map[string]map[string][]byte, len(m.buckets))
	for name, b := range m.buckets {
		nb := make(map[string][]byte, len(b))
		for k, v := range b {
			nb[k] = append([]byte(nil), v...)
		}
		out[name] = nb
	}
	return out
}

type memTxn struct {
	store    *MemStore
	data     map[string]map[string][]byte
	writable bool
	locked   bool
}

func (t *memTxn) Bucket(name string) BucketTxn {
	return &memBucket{txn: t, name: name}
}

func (t *memTxn) Commit() error {
	if t.writable {
		t.store.buckets = t.data
		if t.locked {
			t.store.mu.Unlock()
			t.locked = false
		}
	}
	return nil
}

func (t *memTxn) Rollback() error {
	if t.locked {
		t.store.mu.Unlock()
		t.locked = false
	}
	return nil
}

type memBucket struct {
	txn  *memTxn
	name string
}

func (b *memBucket) bucket() map[string][]byte { return b.txn.data[b.name] }

func (b *memBucket) Get(key []byte) ([]byte, bool, error) {
	v, ok := b.bucket()[string(key)]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (b *memBucket) Put(key, value []byte) error {
	b.bucket()[string(key)] = append([]byte(nil), value...)
	return nil
}

func (b *memBucket) Del(key []byte) error {
	delete(b.bucket(), string(key))
	return nil
}

func (b *memBucket) Exists(key []byte) (bool, error) {
	_, ok := b.bucket()[string(key)]
	return ok, nil
}

func (b *memBucket) Count() (int, error) { return len(b.bucket()), nil }

func (b *memBucket) CursorAt(key []byte) Cursor {
	bucket := b.bucket()
	keys := make([]string, 0, len(bucket))
	for k := range bucket {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	start := sort.Search(len(keys), func(i int) bool {
		return bytes.Compare([]byte(keys[i]), key) >= 0
	})
	return &memCursor{bucket: bucket, keys: keys[start:]}
}

type memCursor struct {
	bucket map[string][]byte
	keys   []string
	pos    int
}

func (c *memCursor) Next() ([]byte, []byte, bool) {
	if c.pos >= len(c.keys) {
		return nil, nil, false
	}
	k := c.keys[c.pos]
	c.pos++
	return []byte(k), append([]byte(nil), c.bucket[k]...), true
}
