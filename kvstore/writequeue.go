package kvstore

import "sync"

// WriteQueue is the only primitive that orders writers across
// components (spec §5 "Shared resource policy"). Writers queue up by
// PurposeToken; when several purposes have pending waiters, the queue
// round-robins between purposes instead of draining one purpose's
// entire backlog first, so e.g. a burst of BlockProcessor writes can't
// starve ConfirmationHeight writes (spec §4.3 "a fairness scheduler
// can prevent starvation").
type WriteQueue struct {
	store Store

	mu      sync.Mutex
	order   []PurposeToken      // round-robin order of purposes with waiters
	waiting map[PurposeToken][]chan struct{}
	active  bool
}

func NewWriteQueue(store Store) *WriteQueue {
	return &WriteQueue{store: store, waiting: make(map[PurposeToken][]chan struct{})}
}

// Begin blocks until it is purpose's turn, then opens a write
// transaction. Txn must be committed or rolled back, which releases
// the next waiter's turn.
func (q *WriteQueue) Begin(purpose PurposeToken) (*QueuedTxn, error) {
	ticket := q.enqueue(purpose)
	<-ticket

	tx, err := q.store.BeginWrite(purpose)
	if err != nil {
		q.release()
		return nil, err
	}
	return &QueuedTxn{Txn: tx, queue: q, purpose: purpose}, nil
}

func (q *WriteQueue) enqueue(purpose PurposeToken) chan struct{} {
	ticket := make(chan struct{}, 1)
	q.mu.Lock()
	if !q.active {
		q.active = true
		q.mu.Unlock()
		ticket <- struct{}{}
		return ticket
	}
	if _, ok := q.waiting[purpose]; !ok {
		q.order = append(q.order, purpose)
	}
	q.waiting[purpose] = append(q.waiting[purpose], ticket)
	q.mu.Unlock()
	return ticket
}

// release hands the turn to the next purpose in round-robin order.
func (q *WriteQueue) release() {
	q.mu.Lock()
	for len(q.order) > 0 {
		next := q.order[0]
		q.order = q.order[1:]
		waiters := q.waiting[next]
		if len(waiters) == 0 {
			continue
		}
		ticket := waiters[0]
		waiters = waiters[1:]
		if len(waiters) > 0 {
			q.waiting[next] = waiters
			q.order = append(q.order, next)
		} else {
			delete(q.waiting, next)
		}
		q.mu.Unlock()
		ticket <- struct{}{}
		return
	}
	q.active = false
	q.mu.Unlock()
}

// QueuedTxn wraps a Txn obtained from the WriteQueue; Commit/Rollback
// release the queue slot exactly once.
type QueuedTxn struct {
	Txn
	queue    *WriteQueue
	purpose  PurposeToken
	released bool
}

func (t *QueuedTxn) Commit() error {
	err := t.Txn.Commit()
	t.releaseOnce()
	return err
}

func (t *QueuedTxn) Rollback() error {
	err := t.Txn.Rollback()
	t.releaseOnce()
	return err
}

func (t *QueuedTxn) releaseOnce() {
	if t.released {
		return
	}
	t.released = true
	t.queue.release()
}

// Refresh commits the current write transaction and immediately opens
// a new one for the same purpose, re-taking its place in the queue.
// This is how a long batch releases its locks mid-run without losing
// its fairness slot for longer than one round (spec §4.3
// "transactions must be refreshable").
func (t *QueuedTxn) Refresh() (*QueuedTxn, error) {
	if err := t.Commit(); err != nil {
		return nil, err
	}
	return t.queue.Begin(t.purpose)
}
