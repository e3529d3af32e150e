package rendezvous

import (
	"github.com/sirupsen/logrus"
)

func (n *Node) startScan() {
	if err := n.host.StartScan(); err != nil {
		n.logger.WithError(err).WithField("slot", n.activeSlot).Warn("Scan failed to start")
		n.scanning = false
	} else {
		n.logger.WithFields(logrus.Fields{
			"slot":   n.activeSlot,
			"target": n.slots[n.activeSlot].Target,
		}).Debug("Scanning")
		n.scanning = true
	}
	n.changed = true
}

func (n *Node) stopScan() {
	if err := n.host.StopScan(); err != nil {
		n.logger.WithError(err).Debug("Scan stop failed")
	}
	n.scanning = false
	n.changed = true
}

// onAdvertisement dials the active slot's target when it shows up. Only the
// active slot is matched; the other target is pursued after this one connects.
func (n *Node) onAdvertisement(e AdvertisementReport) {
	if n.phase != PhaseConnecting || n.dialing {
		return
	}

	slot := n.slots[n.activeSlot]
	if slot.connected {
		return
	}
	if !n.registry.Matches(slot.Index, e.Addr) {
		return
	}

	n.logger.WithFields(logrus.Fields{
		"slot": slot.Index,
		"addr": e.Addr,
		"rssi": e.RSSI,
	}).Info("Target found, connecting")

	n.stopScan()
	n.dialing = true
	n.dialSlot = slot.Index
	n.changed = true

	err := n.host.Connect(e.Addr)

	if slot.handle != 0 {
		n.logger.WithFields(logrus.Fields{
			"slot":   slot.Index,
			"handle": slot.handle,
		}).Warn("Releasing stale connection handle")
		n.host.Release(slot.handle)
		slot.handle = 0
	}

	if err != nil {
		n.onConnectionFailed(ConnectionFailed{Addr: e.Addr, Err: err})
	}
}

func (n *Node) onConnectionEstablished(e ConnectionEstablished) {
	role, err := n.host.ConnectionRole(e.Handle)
	if err != nil {
		n.logger.WithError(err).WithField("handle", e.Handle).Warn("Cannot resolve connection role, dropping")
		n.host.Release(e.Handle)
		return
	}

	if role == RolePeripheral {
		n.attachPhone(e.Handle)
		return
	}

	slot := n.slots[n.activeSlot]
	if n.dialing {
		slot = n.slots[n.dialSlot]
	}
	n.dialing = false
	if slot.connected {
		n.logger.WithFields(logrus.Fields{
			"slot":   slot.Index,
			"handle": e.Handle,
		}).Warn("Slot already connected, dropping extra connection")
		if err := n.host.Disconnect(e.Handle); err != nil {
			n.logger.WithError(err).Debug("Disconnect failed")
		}
		n.host.Release(e.Handle)
		return
	}

	slot.handle = e.Handle
	slot.connected = true
	n.changed = true

	n.logger.WithFields(logrus.Fields{
		"slot":   slot.Index,
		"target": slot.Target,
		"handle": e.Handle,
	}).Info("Target connected")

	other := n.slots[slot.Index.Other()]
	if !other.connected {
		n.activeSlot = other.Index
		n.startScan()
		return
	}
	n.evaluatePhase("both targets connected")
}

// onConnectionFailed retries with the other target. When the other target
// is already connected there is nothing to alternate with, so the same slot
// is retried.
func (n *Node) onConnectionFailed(e ConnectionFailed) {
	n.dialing = false
	n.changed = true

	n.logger.WithError(e.Err).WithFields(logrus.Fields{
		"slot": n.activeSlot,
		"addr": e.Addr,
	}).Warn("Connection failed")

	if n.phase != PhaseConnecting {
		return
	}

	if other := n.activeSlot.Other(); !n.slots[other].connected {
		n.activeSlot = other
	}
	n.startScan()
}

func (n *Node) onDisconnected(e Disconnected) {
	if n.phone != nil && n.phone.Handle == e.Handle {
		n.logger.WithField("handle", e.Handle).Info("Phone disconnected")
		n.host.Release(e.Handle)
		n.phone = nil
		n.changed = true
		return
	}

	slot, ok := n.slotByHandle(e.Handle)
	if !ok {
		n.logger.WithField("handle", e.Handle).Debug("Disconnect for unknown handle")
		return
	}

	n.logger.WithFields(logrus.Fields{
		"slot":   slot.Index,
		"handle": e.Handle,
		"reason": e.Reason,
	}).Warn("Target disconnected")

	n.host.Release(slot.handle)
	slot.reset()
	n.abortDiscovery()
	n.setPhase(PhaseConnecting, "target disconnected")

	n.activeSlot = slot.Index
	n.changed = true
	n.startScan()
}

func (n *Node) attachPhone(h ConnHandle) {
	if n.phone != nil && n.phone.Handle != h {
		n.logger.WithFields(logrus.Fields{
			"old": n.phone.Handle,
			"new": h,
		}).Warn("Replacing phone link")
		n.host.Release(n.phone.Handle)
	}
	n.phone = &PhoneLink{Handle: h}
	n.changed = true
	n.logger.WithField("handle", h).Info("Phone connected")
}
