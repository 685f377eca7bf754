package kafka

import (
	"sync"
	"sync/atomic"
	"time"
)

type partitionKey struct {
	topic     string
	partition int32
}

// partitionQueue holds offsets in emit order; acked tracks which of them
// came back.
type partitionQueue struct {
	order []int64
	acked map[int64]bool
}

// Tracker turns out-of-order acks into the highest offset that is safe to
// commit for each partition: every offset up to it has been acked.
type Tracker struct {
	mu    sync.Mutex
	parts map[partitionKey]*partitionQueue

	commitEvery time.Duration
	lastCommit  atomic.Int64
}

func NewTracker(commitEvery time.Duration) *Tracker {
	return &Tracker{parts: map[partitionKey]*partitionQueue{}, commitEvery: commitEvery}
}

func (t *Tracker) Track(topic string, partition int32, offset int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := partitionKey{topic, partition}
	q := t.parts[k]
	if q == nil {
		q = &partitionQueue{acked: map[int64]bool{}}
		t.parts[k] = q
	}
	q.order = append(q.order, offset)
	q.acked[offset] = false
}

// Resolve records the ack of one offset. found is false for offsets the
// tracker never saw (or forgot in Reset). When the contiguous acked prefix
// grows, advanced is true and mark is its last offset.
func (t *Tracker) Resolve(topic string, partition int32, offset int64) (mark int64, advanced, found bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	q := t.parts[partitionKey{topic, partition}]
	if q == nil {
		return 0, false, false
	}
	if done, ok := q.acked[offset]; !ok || done {
		return 0, false, false
	}
	q.acked[offset] = true

	n := 0
	for n < len(q.order) && q.acked[q.order[n]] {
		mark = q.order[n]
		delete(q.acked, mark)
		n++
	}
	q.order = q.order[n:]
	return mark, n > 0, true
}

// Pending counts tracked offsets not yet covered by a mark.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, q := range t.parts {
		n += len(q.order)
	}
	return n
}

func (t *Tracker) Reset() {
	t.mu.Lock()
	t.parts = map[partitionKey]*partitionQueue{}
	t.mu.Unlock()
}

// CommitDue reports whether commitEvery elapsed since the last time it
// returned true.
func (t *Tracker) CommitDue() bool {
	now := time.Now().UnixNano()
	last := t.lastCommit.Load()
	if last+t.commitEvery.Nanoseconds() > now {
		return false
	}
	return t.lastCommit.CompareAndSwap(last, now)
}
