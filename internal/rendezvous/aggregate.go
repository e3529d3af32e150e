package rendezvous

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// DefaultAggregateCapacity bounds the rendered aggregate text in bytes.
const DefaultAggregateCapacity = 64

// AggregateValue is the single last-writer-wins buffer relayed to the phone.
//
// Writes happen on the node's event loop; reads may come from GATT server
// goroutines. The whole string is swapped at once so a reader never sees a
// half-written value.
type AggregateValue struct {
	capacity int
	value    atomic.Pointer[string]
}

// NewAggregateValue creates an empty buffer bounded to capacity bytes.
func NewAggregateValue(capacity int) *AggregateValue {
	if capacity <= 0 {
		capacity = DefaultAggregateCapacity
	}
	a := &AggregateValue{capacity: capacity}
	empty := ""
	a.value.Store(&empty)
	return a
}

// Capacity returns the buffer bound in bytes.
func (a *AggregateValue) Capacity() int {
	return a.capacity
}

// Load returns the most recently completed write.
func (a *AggregateValue) Load() string {
	return *a.value.Load()
}

// Bytes returns a copy of the current value, as served to GATT reads.
func (a *AggregateValue) Bytes() []byte {
	return []byte(a.Load())
}

// Store overwrites the buffer, truncating to capacity.
func (a *AggregateValue) Store(s string) string {
	if len(s) > a.capacity {
		s = s[:a.capacity]
	}
	a.value.Store(&s)
	return s
}

// FormatAggregate renders a notification payload for slot as
// "Device <slot>: " followed by "xx " for every byte.
func FormatAggregate(slot SlotIndex, payload []byte) string {
	var b strings.Builder
	b.Grow(len("Device 0: ") + 3*len(payload))
	fmt.Fprintf(&b, "Device %d: ", slot)
	for _, v := range payload {
		fmt.Fprintf(&b, "%02x ", v)
	}
	return b.String()
}
