package bundle

import "sync"

// Queue is a bounded, cancellable queue of *Bundle. Pop blocks until
// a producer pushes or the producer completes; Push blocks when the queue
// is full. Completion is signalled the ordinary Go way (Close, mirrored by
// Pop's ok==false once drained); Abort is a separate, immediate
// forced-finish signal that unblocks any Push or Pop in flight, using the
// same close-once shutdown channel idiom as a long-lived server's
// graceful-shutdown path.
type Queue struct {
	ch    chan *Bundle
	abort chan struct{}
	once  sync.Once
}

// NewQueue creates a queue holding up to capacity bundles before Push
// blocks.
func NewQueue(capacity int) *Queue {
	return &Queue{ch: make(chan *Bundle, capacity), abort: make(chan struct{})}
}

// Push hands a bundle to the queue. It returns false without delivering the
// bundle if the queue has been aborted.
func (q *Queue) Push(b *Bundle) bool {
	select {
	case <-q.abort:
		return false
	default:
	}
	select {
	case q.ch <- b:
		return true
	case <-q.abort:
		return false
	}
}

// Pop waits for a bundle. ok is false either because the producer called
// Close and the queue has drained (normal end-of-stream) or because Abort
// was called (cancellation).
func (q *Queue) Pop() (b *Bundle, ok bool) {
	select {
	case b, ok = <-q.ch:
		return b, ok
	case <-q.abort:
		return nil, false
	}
}

// Close signals normal completion: no more bundles will be pushed. Must be
// called by the queue's single producer exactly once.
func (q *Queue) Close() {
	close(q.ch)
}

// Abort forces every blocked or future Push/Pop to return immediately.
// Idempotent and safe to call from any goroutine; this is what IgnoreRest
// uses to cancel the far side of an abandoned merge mid-stream.
func (q *Queue) Abort() {
	q.once.Do(func() { close(q.abort) })
}

// Aborted reports whether Abort has been called, without blocking.
func (q *Queue) Aborted() bool {
	select {
	case <-q.abort:
		return true
	default:
		return false
	}
}
