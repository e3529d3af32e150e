package rendezvous

import (
	"errors"
	"io"

	"github.com/sirupsen/logrus"
)

// onNotification renders a target value into the aggregate and pushes it to
// the phone when one is attached.
func (n *Node) onNotification(e Notification) {
	slot, ok := n.slotByHandle(e.Handle)
	if !ok {
		n.logger.WithField("handle", e.Handle).Debug("Notification from unknown connection")
		return
	}

	sub := &slot.subscription
	if sub.ValueHandle == 0 {
		return
	}
	if e.ValueHandle != 0 && e.ValueHandle != sub.ValueHandle {
		return
	}

	if len(e.Payload) == 0 {
		n.logger.WithFields(logrus.Fields{
			"slot":         slot.Index,
			"value_handle": sub.ValueHandle,
		}).Info("Subscription dropped")
		sub.ValueHandle = 0
		n.changed = true
		return
	}

	value := n.aggregate.Store(FormatAggregate(slot.Index, e.Payload))
	n.changed = true
	n.mirror(value)

	if n.phone == nil {
		return
	}
	if err := n.host.Notify(n.phone.Handle, []byte(value)); err != nil {
		entry := n.logger.WithError(err).WithField("handle", n.phone.Handle)
		if errors.Is(err, ErrNotSubscribed) {
			entry.Debug("Phone has not enabled notifications")
		} else {
			entry.Warn("Phone notify failed")
		}
	}
}

func (n *Node) onPhoneSubscription(e PhoneSubscription) {
	if n.phone == nil || n.phone.Handle != e.Handle {
		n.logger.WithField("handle", e.Handle).Debug("Subscription change from unknown phone")
		return
	}
	n.phone.Subscribed = e.Enabled
	n.changed = true
	n.logger.WithFields(logrus.Fields{
		"handle":  e.Handle,
		"enabled": e.Enabled,
	}).Info("Phone notifications changed")
}

func (n *Node) mirror(value string) {
	if n.opts.Mirror == nil {
		return
	}
	if _, err := io.WriteString(n.opts.Mirror, value+"\n"); err != nil {
		n.logger.WithError(err).Debug("Mirror write failed")
	}
}
