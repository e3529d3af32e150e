package rendezvous

// Snapshot is a copy of the node state taken on the event loop.
type Snapshot struct {
	Phase      Phase                 `json:"phase"`
	ActiveSlot SlotIndex             `json:"active_slot"`
	Scanning   bool                  `json:"scanning"`
	Dialing    bool                  `json:"dialing"`
	Slots      [SlotCount]SlotStatus `json:"slots"`
	Phone      *PhoneLink            `json:"phone,omitempty"`
	Aggregate  string                `json:"aggregate"`
}

// Snapshot copies the current state. Call it from the event loop only; other
// goroutines should read Updates.
func (n *Node) Snapshot() Snapshot {
	s := Snapshot{
		Phase:      n.phase,
		ActiveSlot: n.activeSlot,
		Scanning:   n.scanning,
		Dialing:    n.dialing,
		Aggregate:  n.aggregate.Load(),
	}
	for i, slot := range n.slots {
		s.Slots[i] = slot.status()
	}
	if n.phone != nil {
		p := *n.phone
		s.Phone = &p
	}
	return s
}

// Live reports whether both targets are connected and subscribed.
func (s Snapshot) Live() bool {
	for _, slot := range s.Slots {
		if !slot.Connected || !slot.NotificationsEnabled {
			return false
		}
	}
	return true
}
