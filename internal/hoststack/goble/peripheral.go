package goble

import (
	"context"
	"errors"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blerelay/internal/rendezvous"
)

// RegisterService implements rendezvous.HostStack. go-ble has no connect
// callback for the peripheral role, so the phone is recognised on its first
// read or subscription.
func (a *Adapter) RegisterService(svc *rendezvous.PhoneService) error {
	if svc == nil {
		return &rendezvous.StackError{Op: "register service", Err: errors.New("nil service")}
	}

	s := ble.NewService(svc.ServiceUUID)
	c := s.NewCharacteristic(svc.ValueUUID)
	c.HandleRead(ble.ReadHandlerFunc(func(req ble.Request, rsp ble.ResponseWriter) {
		a.phoneSeen(req.Conn())
		if _, err := rsp.Write(svc.Read()); err != nil {
			a.logger.WithError(err).Debug("Phone read response failed")
		}
	}))
	c.HandleNotify(ble.NotifyHandlerFunc(func(req ble.Request, n ble.Notifier) {
		a.servePhone(req.Conn(), n, n.Context().Done())
	}))

	if err := a.radio.AddService(s); err != nil {
		return stackError("register service", 0, err)
	}
	a.service.Store(svc)

	a.logger.WithFields(logrus.Fields{
		"service":        svc.ServiceUUID.String(),
		"characteristic": svc.ValueUUID.String(),
	}).Info("Phone service registered")
	return nil
}

// StartAdvertising implements rendezvous.HostStack. Advertising runs until
// the adapter is closed.
func (a *Adapter) StartAdvertising(name string) error {
	var uuids []ble.UUID
	if svc := a.service.Load(); svc != nil {
		uuids = append(uuids, svc.ServiceUUID)
	}

	// TODO: re-arm advertising after a phone disconnects on controllers that
	// stop advertising once a central connects.
	a.group.Go(a.ctx, "ble-advertise", func(ctx context.Context) {
		err := a.radio.AdvertiseNameAndServices(ctx, name, uuids...)
		if err != nil && !isCanceled(err) {
			a.logger.WithError(NormalizeError(err)).Warn("Advertising stopped")
		}
	})

	a.logger.WithField("name", name).Info("Advertising")
	return nil
}

// phoneSeen returns the handle of the phone behind p, creating the link and
// reporting the connection the first time p shows up.
func (a *Adapter) phoneSeen(p peer) rendezvous.ConnHandle {
	key := p.RemoteAddr().String()
	if h, ok := a.peers.Get(key); ok {
		return h
	}

	l := &link{
		handle: a.allocate(),
		role:   rendezvous.RolePeripheral,
		addr:   key,
		peer:   p,
	}
	a.links.Set(uint32(l.handle), l)
	if h, loaded := a.peers.GetOrInsert(key, l.handle); loaded {
		a.links.Del(uint32(l.handle))
		return h
	}

	a.logger.WithFields(logrus.Fields{
		"address": key,
		"handle":  l.handle,
	}).Info("Phone connected")
	a.emit(rendezvous.ConnectionEstablished{Handle: l.handle})

	a.group.Go(a.ctx, "ble-phone-watch", func(ctx context.Context) {
		select {
		case <-p.Disconnected():
			if cur, ok := a.peers.Get(key); ok && cur == l.handle {
				a.peers.Del(key)
			}
			a.logger.WithField("handle", l.handle).Info("Phone disconnected")
			a.emit(rendezvous.Disconnected{Handle: l.handle, Reason: rendezvous.ErrNotConnected})
		case <-ctx.Done():
		}
	})
	return l.handle
}

// servePhone holds a phone subscription open until done is closed.
func (a *Adapter) servePhone(p peer, n notifier, done <-chan struct{}) {
	h := a.phoneSeen(p)
	l, err := a.link("phone subscription", h)
	if err != nil {
		return
	}

	l.mu.Lock()
	l.notifier = n
	l.mu.Unlock()
	a.emit(rendezvous.PhoneSubscription{Handle: h, Enabled: true})

	select {
	case <-done:
	case <-a.ctx.Done():
	}

	l.mu.Lock()
	if l.notifier == n {
		l.notifier = nil
	}
	l.mu.Unlock()
	a.emit(rendezvous.PhoneSubscription{Handle: h, Enabled: false})
}

// Notify implements rendezvous.HostStack.
func (a *Adapter) Notify(h rendezvous.ConnHandle, payload []byte) error {
	l, err := a.link("notify", h)
	if err != nil {
		return err
	}
	if l.role != rendezvous.RolePeripheral {
		return &rendezvous.StackError{Op: "notify", Handle: h, Err: rendezvous.ErrNotSupported}
	}

	l.mu.Lock()
	n := l.notifier
	l.mu.Unlock()
	if n == nil {
		return &rendezvous.StackError{Op: "notify", Handle: h, Err: rendezvous.ErrNotSubscribed}
	}

	if _, err := n.Write(payload); err != nil {
		return stackError("notify", h, err)
	}
	return nil
}
