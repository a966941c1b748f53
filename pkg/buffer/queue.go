package buffer

import (
	"context"
	"sync"
	"time"
)

// Item is a unit of data produced by a driver for the client.
// Params are transport metadata and are never serialized into the payload.
type Item struct {
	data   []byte
	params []string
}

// NewItem creates an item holding a private copy of data and params.
func NewItem(data []byte, params ...string) Item {
	item := Item{data: append([]byte(nil), data...)}
	if len(params) > 0 {
		item.params = append([]string(nil), params...)
	}
	return item
}

// Data returns the item payload. The slice must not be modified.
func (i Item) Data() []byte {
	return i.data
}

// Params returns the item parameters. The slice must not be modified.
func (i Item) Params() []string {
	return i.params
}

// Len returns the payload size in bytes.
func (i Item) Len() int {
	return len(i.data)
}

// Queue is a thread-safe FIFO with threshold-gated bulk release.
//
// A producer pushes items one by one. A consumer blocks in WaitThreshold
// until enough new items have accumulated (or a timeout elapses) and then
// detaches everything with PopAll.
type Queue struct {
	mu        sync.Mutex
	items     []Item
	fresh     int // pushed since the last release
	threshold int

	// release is closed and replaced each time fresh reaches threshold.
	release chan struct{}

	onPush func()
}

// NewQueue creates an empty queue with threshold mode disabled.
func NewQueue() *Queue {
	return &Queue{
		release: make(chan struct{}),
	}
}

// Push appends item to the tail of the queue.
func (q *Queue) Push(item Item) {
	q.mu.Lock()
	q.items = append(q.items, item)
	if q.threshold > 0 {
		q.fresh++
		if q.fresh == q.threshold {
			close(q.release)
			q.release = make(chan struct{})
		}
	}
	hook := q.onPush
	q.mu.Unlock()

	if hook != nil {
		hook()
	}
}

// OnPush installs fn to be called after every Push, outside the queue
// lock. A nil fn removes the hook.
func (q *Queue) OnPush(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onPush = fn
}

// PopAll detaches and returns the whole queue content in push order.
// It returns nil when the queue is empty.
func (q *Queue) PopAll() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	items := q.items
	q.items = nil
	return items
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// SetThreshold enables threshold mode. Subsequent pushes count toward a
// release at n items; pushes made while threshold mode was disabled never
// do. A value below 1 disables threshold mode.
func (q *Queue) SetThreshold(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n < 0 {
		n = 0
	}
	q.threshold = n
	if n == 0 {
		q.fresh = 0
	}
	if q.releasable() {
		close(q.release)
		q.release = make(chan struct{})
	}
}

// Threshold returns the configured release threshold (0 when disabled).
func (q *Queue) Threshold() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.threshold
}

// WaitThreshold blocks until a release condition is observed, timeout
// elapses, or ctx is done. A release is observed when the queue already
// holds at least threshold items or when the number of items pushed since
// the last release reaches the threshold. It returns true on release and
// resets the new item counter. With threshold mode disabled it only
// returns false after the timeout.
func (q *Queue) WaitThreshold(ctx context.Context, timeout time.Duration) bool {
	q.mu.Lock()
	if q.releasable() {
		q.fresh = 0
		q.mu.Unlock()
		return true
	}
	release := q.release
	q.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-release:
		q.mu.Lock()
		q.fresh = 0
		q.mu.Unlock()
		return true
	case <-timer.C:
	case <-ctx.Done():
	}

	// A release may have raced with the timer.
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.releasable() {
		q.fresh = 0
		return true
	}
	return false
}

// releasable must be called with q.mu held.
func (q *Queue) releasable() bool {
	if q.threshold <= 0 {
		return false
	}
	return len(q.items) >= q.threshold || q.fresh >= q.threshold
}
