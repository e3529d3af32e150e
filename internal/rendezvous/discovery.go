package rendezvous

import (
	"github.com/sirupsen/logrus"
)

// discoveryState tracks the sequential walk over both slots. Only one request
// is in flight at a time; results carrying any other request ID are stale.
type discoveryState struct {
	queue   []SlotIndex
	current *DiscoveryRequest
	nextID  uint32
}

func (d *discoveryState) request(slot SlotIndex, kind DiscoveryKind, r HandleRange) DiscoveryRequest {
	d.nextID++
	req := DiscoveryRequest{ID: d.nextID, Slot: slot, Kind: kind, Range: r}
	d.current = &req
	return req
}

func (d *discoveryState) accepts(req DiscoveryRequest) bool {
	return d.current != nil && d.current.ID == req.ID
}

// startDiscovery queues both slots. Slot 0 is walked to its end before slot 1
// starts.
func (n *Node) startDiscovery() {
	n.discovery.queue = n.discovery.queue[:0]
	for i := SlotIndex(0); i < SlotCount; i++ {
		n.discovery.queue = append(n.discovery.queue, i)
	}
	n.discovery.current = nil
	n.discoverNextSlot()
}

func (n *Node) abortDiscovery() {
	if n.discovery.current != nil {
		n.logger.WithField("slot", n.discovery.current.Slot).Debug("Discovery aborted")
	}
	n.discovery.queue = n.discovery.queue[:0]
	n.discovery.current = nil
}

func (n *Node) discoverNextSlot() {
	for len(n.discovery.queue) > 0 {
		idx := n.discovery.queue[0]
		n.discovery.queue = n.discovery.queue[1:]

		slot := n.slots[idx]
		if !slot.connected {
			continue
		}

		req := n.discovery.request(idx, DiscoverPrimaryServices, FullRange)
		n.logger.WithFields(logrus.Fields{
			"slot":   idx,
			"handle": slot.handle,
			"id":     req.ID,
		}).Debug("Discovering services")

		if err := n.host.DiscoverServices(slot.handle, req); err != nil {
			n.logger.WithError(err).WithField("slot", idx).Warn("Service discovery request failed")
			n.discovery.current = nil
			continue
		}
		return
	}
	n.discovery.current = nil
}

func (n *Node) onDiscoveryResult(e DiscoveryResult) {
	if !n.discovery.accepts(e.Request) {
		return
	}
	slot := n.slots[e.Request.Slot]
	if !slot.owns(e.Handle) {
		return
	}

	fields := logrus.Fields{
		"slot": slot.Index,
		"kind": e.Request.Kind,
		"id":   e.Request.ID,
	}

	if e.Err != nil {
		n.logger.WithError(e.Err).WithFields(fields).Warn("Discovery failed")
		n.discoverNextSlot()
		return
	}

	if e.Attribute == nil {
		n.logger.WithFields(fields).Warn("Discovery complete without a match")
		n.discoverNextSlot()
		return
	}

	attr := e.Attribute
	switch e.Request.Kind {
	case DiscoverPrimaryServices:
		if !attr.UUID.Equal(n.opts.ServiceUUID) {
			return
		}
		r := HandleRange{Start: attr.Handle + 1, End: attr.EndHandle}
		req := n.discovery.request(slot.Index, DiscoverCharacteristics, r)
		n.logger.WithFields(fields).WithField("range", r).Debug("Service found, discovering characteristics")

		if err := n.host.DiscoverCharacteristics(slot.handle, req); err != nil {
			n.logger.WithError(err).WithFields(fields).Warn("Characteristic discovery request failed")
			n.discoverNextSlot()
		}

	case DiscoverCharacteristics:
		if !attr.UUID.Equal(n.opts.CharacteristicUUID) {
			return
		}
		n.subscribeSlot(slot, *attr)
		n.discoverNextSlot()
		n.evaluatePhase("subscriptions established")
	}
}

// subscribeParams derives subscription handles from a characteristic
// declaration. The configuration descriptor is assumed to sit CCCOffset
// handles after the declaration.
func subscribeParams(attr Attribute) SubscribeParams {
	value := attr.ValueHandle
	if value == 0 {
		value = attr.Handle + 1
	}
	return SubscribeParams{
		ValueHandle: value,
		CCCHandle:   attr.Handle + CCCOffset,
		Mode:        SubscribeNotify,
	}
}

// subscribeSlot subscribes to the matched characteristic and marks the slot.
// An already active subscription counts as success.
func (n *Node) subscribeSlot(slot *TargetSlot, attr Attribute) {
	params := subscribeParams(attr)
	fields := logrus.Fields{
		"slot":         slot.Index,
		"value_handle": params.ValueHandle,
		"ccc_handle":   params.CCCHandle,
	}

	err := n.host.Subscribe(slot.handle, params)
	switch {
	case err == nil:
		n.logger.WithFields(fields).Info("Subscribed")
	case IsAlreadySubscribed(err):
		n.logger.WithFields(fields).Debug("Already subscribed")
	default:
		n.logger.WithError(err).WithFields(fields).Warn("Subscribe failed")
		return
	}

	slot.subscription = params
	slot.notificationsEnabled = true
	n.changed = true
}
