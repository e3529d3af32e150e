package ringchan

import "sync/atomic"

// RingChannel is a bounded channel-like buffer with overwrite-oldest semantics.
//
// Producers never block: when the buffer is full the oldest element is
// discarded. Consumers read from C() like a normal channel, so a slow
// observer only ever misses stale values, never the latest one.
//
//	rc := ringchan.New[int](3)
//	for i := 0; i < 10; i++ {
//	    rc.ForceSend(i)
//	}
//	rc.Close()
//	for v := range rc.C() {
//	    fmt.Println(v) // 7 8 9
//	}
type RingChannel[T any] struct {
	ch      chan T
	closed  atomic.Bool
	metrics Metrics
}

// New creates a RingChannel with the given capacity.
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the underlying receive-only channel.
//
// Reads via C() are not counted in Metrics.Processed.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// TrySend attempts to insert without blocking.
// Returns false if the buffer is full or the channel is closed.
func (rc *RingChannel[T]) TrySend(v T) bool {
	if rc.closed.Load() {
		return false
	}
	select {
	case rc.ch <- v:
		rc.metrics.addWritten(1)
		return true
	default:
		return false
	}
}

// ForceSend always succeeds immediately, discarding the oldest if needed.
// It reports whether an element was dropped. Sends after Close are ignored.
func (rc *RingChannel[T]) ForceSend(v T) bool {
	if rc.closed.Load() {
		return false
	}

	dropped := false
	for {
		select {
		case rc.ch <- v:
			rc.metrics.addWritten(1)
			return dropped
		default:
		}

		select {
		case <-rc.ch: // drop oldest
			rc.metrics.addOverwritten(1)
			dropped = true
		default:
		}
	}
}

// TryReceive attempts a non-blocking receive.
func (rc *RingChannel[T]) TryReceive() (v T, ok bool) {
	select {
	case v, ok = <-rc.ch:
		if ok {
			rc.metrics.addProcessed(1)
		}
		return
	default:
		var zero T
		return zero, false
	}
}

// Len returns the number of buffered elements.
func (rc *RingChannel[T]) Len() int {
	return len(rc.ch)
}

// Cap returns the channel capacity.
func (rc *RingChannel[T]) Cap() int {
	return cap(rc.ch)
}

// Close closes the underlying channel. It is safe to call more than once, but
// the single producer must not be sending concurrently.
func (rc *RingChannel[T]) Close() {
	if rc.closed.CompareAndSwap(false, true) {
		close(rc.ch)
	}
}

// GetMetrics returns a snapshot of current metrics values.
func (rc *RingChannel[T]) GetMetrics() Metrics {
	return Metrics{
		Processed:   atomic.LoadInt64(&rc.metrics.Processed),
		Written:     atomic.LoadInt64(&rc.metrics.Written),
		Overwritten: atomic.LoadInt64(&rc.metrics.Overwritten),
	}
}

// Metrics provides lock-free counters for RingChannel.
type Metrics struct {
	Processed   int64
	Written     int64
	Overwritten int64
}

func (m *Metrics) addProcessed(n int) {
	atomic.AddInt64(&m.Processed, int64(n))
}

func (m *Metrics) addWritten(n int) {
	atomic.AddInt64(&m.Written, int64(n))
}

func (m *Metrics) addOverwritten(n int) {
	atomic.AddInt64(&m.Overwritten, int64(n))
}
