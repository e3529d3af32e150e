package rendezvous

// SubscribeMatched runs the characteristic-match step for slot directly.
func (n *Node) SubscribeMatched(slot SlotIndex, attr Attribute) {
	n.subscribeSlot(n.slots[slot], attr)
}
