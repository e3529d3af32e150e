package rendezvous

// TargetSlot is the node's view of one target peripheral.
type TargetSlot struct {
	Index  SlotIndex
	Target Address

	handle               ConnHandle
	connected            bool
	notificationsEnabled bool
	subscription         SubscribeParams
}

func (s *TargetSlot) flags() SlotFlags {
	return SlotFlags{Connected: s.connected, NotificationsEnabled: s.notificationsEnabled}
}

// owns reports whether the slot currently holds h.
func (s *TargetSlot) owns(h ConnHandle) bool {
	return s.handle != 0 && s.handle == h
}

// reset clears everything learned about the live connection.
func (s *TargetSlot) reset() {
	s.handle = 0
	s.connected = false
	s.notificationsEnabled = false
	s.subscription = SubscribeParams{}
}

// SlotStatus is a read-only copy of a TargetSlot.
type SlotStatus struct {
	Index                SlotIndex  `json:"index"`
	Target               string     `json:"target"`
	Handle               ConnHandle `json:"handle"`
	Connected            bool       `json:"connected"`
	NotificationsEnabled bool       `json:"notifications_enabled"`
	ValueHandle          uint16     `json:"value_handle"`
	CCCHandle            uint16     `json:"ccc_handle"`
}

func (s *TargetSlot) status() SlotStatus {
	return SlotStatus{
		Index:                s.Index,
		Target:               s.Target.String(),
		Handle:               s.handle,
		Connected:            s.connected,
		NotificationsEnabled: s.notificationsEnabled,
		ValueHandle:          s.subscription.ValueHandle,
		CCCHandle:            s.subscription.CCCHandle,
	}
}

// PhoneLink is the single inbound peripheral-role connection.
type PhoneLink struct {
	Handle     ConnHandle `json:"handle"`
	Subscribed bool       `json:"subscribed"`
}
