package rendezvous

import "fmt"

// SlotCount is the number of target peripherals the node rendezvous with.
const SlotCount = 2

// SlotIndex identifies a target slot (0 or 1).
type SlotIndex int

// Other returns the index of the opposite slot.
func (s SlotIndex) Other() SlotIndex {
	return 1 - s
}

// Valid reports whether s addresses an existing slot.
func (s SlotIndex) Valid() bool {
	return s >= 0 && s < SlotCount
}

// Registry is the fixed table of target addresses, one per slot.
// It is never mutated after construction.
type Registry struct {
	targets [SlotCount]Address
}

// NewRegistry builds a registry from addresses in written order.
func NewRegistry(targets [SlotCount]Address) (*Registry, error) {
	for i, t := range targets {
		if t.IsZero() {
			return nil, fmt.Errorf("target %d: address must not be zero", i)
		}
	}
	if targets[0] == targets[1] {
		return nil, fmt.Errorf("targets must be distinct, both are %s", targets[0])
	}
	return &Registry{targets: targets}, nil
}

// ParseRegistry builds a registry from "AA:BB:CC:DD:EE:FF" strings.
func ParseRegistry(addrs []string) (*Registry, error) {
	if len(addrs) != SlotCount {
		return nil, fmt.Errorf("exactly %d target addresses required, got %d", SlotCount, len(addrs))
	}

	var targets [SlotCount]Address
	for i, s := range addrs {
		a, err := ParseAddress(s)
		if err != nil {
			return nil, fmt.Errorf("target %d: %w", i, err)
		}
		targets[i] = a
	}
	return NewRegistry(targets)
}

// Target returns the configured address of slot.
func (r *Registry) Target(slot SlotIndex) Address {
	return r.targets[slot]
}

// Matches reports whether a discovered address is the target of slot.
// Byte i of the discovered address is compared with byte 5-i of the target.
func (r *Registry) Matches(slot SlotIndex, discovered Address) bool {
	return MatchReversed(discovered, r.targets[slot])
}

// Lookup returns the slot whose target matches discovered, if any.
func (r *Registry) Lookup(discovered Address) (SlotIndex, bool) {
	for i := SlotIndex(0); i < SlotCount; i++ {
		if r.Matches(i, discovered) {
			return i, true
		}
	}
	return 0, false
}

// MatchReversed compares a discovered address against a target read backwards.
func MatchReversed(discovered, target Address) bool {
	for i := 0; i < AddressLen; i++ {
		if discovered[i] != target[AddressLen-1-i] {
			return false
		}
	}
	return true
}
