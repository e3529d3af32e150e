package goble

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blerelay/internal/rendezvous"
)

// StartScan implements rendezvous.HostStack.
func (a *Adapter) StartScan() error {
	a.scanMu.Lock()
	defer a.scanMu.Unlock()

	if a.scanCancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(a.ctx)
	a.scanCancel = cancel
	a.scanGen++
	gen := a.scanGen

	a.group.Go(ctx, "ble-scan", func(ctx context.Context) {
		err := a.radio.Scan(ctx, true, func(adv ble.Advertisement) {
			a.onAdvertisement(adv)
		})
		if err != nil && !isCanceled(err) {
			a.logger.WithError(NormalizeError(err)).Warn("Scan stopped")
		}

		a.scanMu.Lock()
		if a.scanGen == gen {
			a.scanCancel = nil
		}
		a.scanMu.Unlock()
		cancel()
	})

	a.logger.Debug("Scan started")
	return nil
}

// StopScan implements rendezvous.HostStack.
func (a *Adapter) StopScan() error {
	a.scanMu.Lock()
	defer a.scanMu.Unlock()

	if a.scanCancel != nil {
		a.scanCancel()
		a.scanCancel = nil
		a.logger.Debug("Scan stopped")
	}
	return nil
}

func (a *Adapter) onAdvertisement(adv advert) {
	addr, err := wireAddress(adv.Addr())
	if err != nil {
		return
	}
	a.emit(rendezvous.AdvertisementReport{Addr: addr, RSSI: adv.RSSI()})
}

// Connect implements rendezvous.HostStack.
func (a *Adapter) Connect(addr rendezvous.Address) error {
	target := dialAddress(addr)

	a.group.Go(a.ctx, "ble-dial", func(ctx context.Context) {
		dctx, cancel := context.WithTimeout(ctx, a.opts.ConnectTimeout)
		defer cancel()

		a.logger.WithField("address", target.String()).Debug("Dialing target...")
		client, err := a.dial(dctx, target)
		if err != nil {
			err = NormalizeError(err)
			a.logger.WithFields(logrus.Fields{
				"address": target.String(),
				"error":   err,
			}).Warn("Dial failed")
			a.emit(rendezvous.ConnectionFailed{Addr: addr, Err: err})
			return
		}

		l := &link{
			handle:     a.allocate(),
			role:       rendezvous.RoleCentral,
			addr:       target.String(),
			client:     client,
			subscribed: make(map[uint16]bool),
		}
		a.links.Set(uint32(l.handle), l)
		a.watchCentral(l)

		a.logger.WithFields(logrus.Fields{
			"address": l.addr,
			"handle":  l.handle,
		}).Info("Target connected")
		a.emit(rendezvous.ConnectionEstablished{Handle: l.handle})
	})
	return nil
}

// watchCentral reports the loss of a dialed connection when the client
// exposes a disconnect channel.
func (a *Adapter) watchCentral(l *link) {
	w, ok := l.client.(interface{ Disconnected() <-chan struct{} })
	if !ok {
		a.logger.WithField("handle", l.handle).Debug("Client has no disconnect channel")
		return
	}

	a.group.Go(a.ctx, "ble-target-watch", func(ctx context.Context) {
		select {
		case <-w.Disconnected():
			a.logger.WithFields(logrus.Fields{
				"address": l.addr,
				"handle":  l.handle,
			}).Warn("Target disconnected")
			a.emit(rendezvous.Disconnected{Handle: l.handle, Reason: rendezvous.ErrNotConnected})
		case <-ctx.Done():
		}
	})
}

// discover returns the target's attribute table, fetching it once per link.
func (l *link) discover() (*ble.Profile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.profile != nil {
		return l.profile, nil
	}
	p, err := l.client.DiscoverProfile(true)
	if err != nil {
		return nil, err
	}
	layoutHandles(p)
	l.profile = p
	return p, nil
}

// DiscoverServices implements rendezvous.HostStack.
func (a *Adapter) DiscoverServices(h rendezvous.ConnHandle, req rendezvous.DiscoveryRequest) error {
	l, err := a.centralLink("discover services", h)
	if err != nil {
		return err
	}

	a.group.Go(a.ctx, "ble-discover-services", func(context.Context) {
		p, err := l.discover()
		if err != nil {
			a.emit(rendezvous.DiscoveryResult{Handle: h, Request: req, Err: stackError("discover services", h, err)})
			return
		}
		for _, svc := range p.Services {
			if !req.Range.Contains(svc.Handle) {
				continue
			}
			a.emit(rendezvous.DiscoveryResult{
				Handle:  h,
				Request: req,
				Attribute: &rendezvous.Attribute{
					UUID:      svc.UUID,
					Handle:    svc.Handle,
					EndHandle: svc.EndHandle,
				},
			})
		}
		a.emit(rendezvous.DiscoveryResult{Handle: h, Request: req})
	})
	return nil
}

// DiscoverCharacteristics implements rendezvous.HostStack.
func (a *Adapter) DiscoverCharacteristics(h rendezvous.ConnHandle, req rendezvous.DiscoveryRequest) error {
	l, err := a.centralLink("discover characteristics", h)
	if err != nil {
		return err
	}

	a.group.Go(a.ctx, "ble-discover-characteristics", func(context.Context) {
		p, err := l.discover()
		if err != nil {
			a.emit(rendezvous.DiscoveryResult{Handle: h, Request: req, Err: stackError("discover characteristics", h, err)})
			return
		}
		svc := serviceAt(p, req.Range.Start)
		if svc == nil {
			err := fmt.Errorf("no service owns range %s", req.Range)
			a.emit(rendezvous.DiscoveryResult{Handle: h, Request: req, Err: stackError("discover characteristics", h, err)})
			return
		}
		for _, c := range svc.Characteristics {
			if !req.Range.Contains(c.Handle) {
				continue
			}
			a.emit(rendezvous.DiscoveryResult{
				Handle:  h,
				Request: req,
				Attribute: &rendezvous.Attribute{
					UUID:        c.UUID,
					Handle:      c.Handle,
					ValueHandle: c.ValueHandle,
				},
			})
		}
		a.emit(rendezvous.DiscoveryResult{Handle: h, Request: req})
	})
	return nil
}

// Subscribe implements rendezvous.HostStack. Bookkeeping happens before it
// returns so a repeated request reports ErrAlreadySubscribed; the descriptor
// write runs in the background and a failure surfaces as an empty
// Notification.
func (a *Adapter) Subscribe(h rendezvous.ConnHandle, params rendezvous.SubscribeParams) error {
	l, err := a.centralLink("subscribe", h)
	if err != nil {
		return err
	}

	l.mu.Lock()
	if l.subscribed[params.ValueHandle] {
		l.mu.Unlock()
		return &rendezvous.StackError{Op: "subscribe", Handle: h, Err: rendezvous.ErrAlreadySubscribed}
	}
	c := characteristicAt(l.profile, params.ValueHandle)
	if c == nil {
		l.mu.Unlock()
		return &rendezvous.StackError{
			Op:     "subscribe",
			Handle: h,
			Err:    fmt.Errorf("no characteristic with value handle 0x%04x", params.ValueHandle),
		}
	}
	a.ensureCCCD(l, c, params.CCCHandle)
	l.subscribed[params.ValueHandle] = true
	l.mu.Unlock()

	vh := params.ValueHandle
	indicate := params.Mode == rendezvous.SubscribeIndicate

	a.group.Go(a.ctx, "ble-subscribe", func(context.Context) {
		err := l.client.Subscribe(c, indicate, func(data []byte) {
			a.emit(rendezvous.Notification{
				Handle:      h,
				ValueHandle: vh,
				Payload:     append([]byte(nil), data...),
			})
		})
		err = NormalizeError(err)
		if err == nil || errors.Is(err, rendezvous.ErrAlreadySubscribed) {
			a.logger.WithFields(logrus.Fields{"handle": h, "value_handle": vh}).Debug("Subscribed")
			return
		}

		l.mu.Lock()
		delete(l.subscribed, vh)
		l.mu.Unlock()

		a.logger.WithFields(logrus.Fields{
			"handle":       h,
			"value_handle": vh,
			"error":        err,
		}).Warn("Subscribe failed")
		a.emit(rendezvous.Notification{Handle: h, ValueHandle: vh})
	})
	return nil
}

// ensureCCCD gives go-ble a configuration descriptor to write. When discovery
// found none the computed handle is used as is.
func (a *Adapter) ensureCCCD(l *link, c *ble.Characteristic, ccc uint16) {
	if c.CCCD == nil {
		c.CCCD = &ble.Descriptor{UUID: ble.ClientCharacteristicConfigUUID, Handle: ccc}
		return
	}
	if c.CCCD.Handle != ccc {
		a.logger.WithFields(logrus.Fields{
			"handle":     l.handle,
			"discovered": c.CCCD.Handle,
			"computed":   ccc,
		}).Warn("Configuration descriptor is not at declaration+2, using the discovered one")
	}
}

// layoutHandles numbers a profile whose backend hides ATT handles
// (CoreBluetooth). The numbering mirrors a GATT server table: service
// declaration, then per characteristic declaration, value and CCC.
func layoutHandles(p *ble.Profile) {
	if p == nil {
		return
	}
	for _, s := range p.Services {
		if s.Handle != 0 {
			return
		}
	}

	next := uint16(1)
	for _, s := range p.Services {
		s.Handle = next
		next++
		for _, c := range s.Characteristics {
			c.Handle = next
			c.ValueHandle = next + 1
			next += 2
			if c.CCCD != nil || c.Property&(ble.CharNotify|ble.CharIndicate) != 0 {
				if c.CCCD != nil {
					c.CCCD.Handle = next
				}
				next++
			}
			for _, d := range c.Descriptors {
				if d != c.CCCD {
					d.Handle = next
					next++
				}
			}
			c.EndHandle = next - 1
		}
		s.EndHandle = next - 1
	}
}

func serviceAt(p *ble.Profile, start uint16) *ble.Service {
	if p == nil {
		return nil
	}
	for _, s := range p.Services {
		if s.Handle < start && start <= s.EndHandle {
			return s
		}
	}
	return nil
}

func characteristicAt(p *ble.Profile, valueHandle uint16) *ble.Characteristic {
	if p == nil {
		return nil
	}
	for _, s := range p.Services {
		for _, c := range s.Characteristics {
			if c.ValueHandle == valueHandle {
				return c
			}
		}
	}
	return nil
}
