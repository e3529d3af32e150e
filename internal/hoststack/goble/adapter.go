// Package goble implements rendezvous.HostStack on top of github.com/go-ble/ble.
//
// go-ble exposes blocking calls (Dial, DiscoverProfile, Subscribe) and
// callback driven server handlers. The Adapter runs every blocking call on a
// named goroutine and reports the outcome through a Sink as rendezvous
// events, so the node never waits on the radio.
//
//	dev, err := goble.NewDevice(0)
//	adapter := goble.New(dev, goble.Options{Logger: logger})
//	node, err := rendezvous.NewNode(adapter, registry, opts)
//	adapter.Attach(func(ev rendezvous.Event) { _ = node.Post(ctx, ev) })
//	err = node.Run(ctx)
package goble

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blerelay/internal/groutine"
	"github.com/srg/blerelay/internal/rendezvous"
)

// DefaultConnectTimeout bounds a single dial attempt.
const DefaultConnectTimeout = 10 * time.Second

// Sink receives the events produced by the adapter. It is called from
// adapter goroutines and go-ble callbacks, never while an adapter lock is held.
type Sink func(rendezvous.Event)

// Options configures an Adapter.
type Options struct {
	ConnectTimeout time.Duration
	Logger         *logrus.Logger
}

// radio is the part of ble.Device the adapter drives.
type radio interface {
	Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error
	AddService(svc *ble.Service) error
	AdvertiseNameAndServices(ctx context.Context, name string, uuids ...ble.UUID) error
	Stop() error
}

// central is the part of ble.Client used for a dialed target.
type central interface {
	DiscoverProfile(force bool) (*ble.Profile, error)
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	CancelConnection() error
}

// peer is the part of ble.Conn used for the phone.
type peer interface {
	RemoteAddr() ble.Addr
	Disconnected() <-chan struct{}
}

type notifier interface {
	Write(b []byte) (int, error)
}

type advert interface {
	Addr() ble.Addr
	RSSI() int
}

type dialFunc func(ctx context.Context, addr ble.Addr) (central, error)

// link is one live connection, dialed or accepted.
type link struct {
	handle rendezvous.ConnHandle
	role   rendezvous.Role
	addr   string

	client central
	peer   peer

	mu         sync.Mutex
	profile    *ble.Profile
	subscribed map[uint16]bool
	notifier   notifier
}

// Adapter is a rendezvous.HostStack backed by a go-ble device.
type Adapter struct {
	radio  radio
	dial   dialFunc
	opts   Options
	logger *logrus.Logger

	sink atomic.Pointer[Sink]

	links *hashmap.Map[uint32, *link]
	peers *hashmap.Map[string, rendezvous.ConnHandle]
	next  atomic.Uint32

	ctx    context.Context
	cancel context.CancelFunc
	group  groutine.Group

	scanMu     sync.Mutex
	scanCancel context.CancelFunc
	scanGen    uint64

	service atomic.Pointer[rendezvous.PhoneService]
}

var _ rendezvous.HostStack = (*Adapter)(nil)

// New wraps dev.
func New(dev ble.Device, opts Options) *Adapter {
	dial := func(ctx context.Context, addr ble.Addr) (central, error) {
		c, err := dev.Dial(ctx, addr)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return newAdapter(dev, dial, opts)
}

func newAdapter(r radio, dial dialFunc, opts Options) *Adapter {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
		opts.Logger.SetOutput(io.Discard)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Adapter{
		radio:  r,
		dial:   dial,
		opts:   opts,
		logger: opts.Logger,
		links:  hashmap.New[uint32, *link](),
		peers:  hashmap.New[string, rendezvous.ConnHandle](),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Attach sets the event sink. Events produced before Attach are dropped.
func (a *Adapter) Attach(sink Sink) {
	a.sink.Store(&sink)
}

// Close stops every adapter goroutine, drops all target connections and
// stops the device.
func (a *Adapter) Close() error {
	a.cancel()
	a.links.Range(func(_ uint32, l *link) bool {
		if l.client != nil {
			_ = l.client.CancelConnection()
		}
		return true
	})
	err := a.radio.Stop()
	a.group.Wait()
	return NormalizeError(err)
}

func (a *Adapter) emit(ev rendezvous.Event) {
	if a.ctx.Err() != nil {
		return
	}
	s := a.sink.Load()
	if s == nil {
		a.logger.WithField("event", rendezvous.EventName(ev)).Debug("No sink attached, event dropped")
		return
	}
	(*s)(ev)
}

func (a *Adapter) allocate() rendezvous.ConnHandle {
	for {
		h := rendezvous.ConnHandle(a.next.Add(1))
		if h == 0 {
			continue
		}
		if _, taken := a.links.Get(uint32(h)); !taken {
			return h
		}
	}
}

func (a *Adapter) link(op string, h rendezvous.ConnHandle) (*link, error) {
	l, ok := a.links.Get(uint32(h))
	if !ok {
		return nil, &rendezvous.StackError{Op: op, Handle: h, Err: rendezvous.ErrUnknownHandle}
	}
	return l, nil
}

func (a *Adapter) centralLink(op string, h rendezvous.ConnHandle) (*link, error) {
	l, err := a.link(op, h)
	if err != nil {
		return nil, err
	}
	if l.role != rendezvous.RoleCentral {
		return nil, &rendezvous.StackError{Op: op, Handle: h, Err: rendezvous.ErrNotSupported}
	}
	return l, nil
}

// Disconnect implements rendezvous.HostStack.
func (a *Adapter) Disconnect(h rendezvous.ConnHandle) error {
	l, err := a.link("disconnect", h)
	if err != nil {
		return err
	}

	if l.client != nil {
		a.group.Go(a.ctx, "ble-disconnect", func(context.Context) {
			if err := l.client.CancelConnection(); err != nil {
				a.logger.WithFields(logrus.Fields{
					"handle": h,
					"error":  NormalizeError(err),
				}).Warn("Cancel connection failed")
			}
		})
		return nil
	}

	if c, ok := l.peer.(io.Closer); ok {
		return NormalizeError(c.Close())
	}
	return &rendezvous.StackError{Op: "disconnect", Handle: h, Err: rendezvous.ErrNotSupported}
}

// Release implements rendezvous.HostStack.
func (a *Adapter) Release(h rendezvous.ConnHandle) {
	l, ok := a.links.Get(uint32(h))
	if !ok {
		return
	}
	a.links.Del(uint32(h))
	if cur, ok := a.peers.Get(l.addr); ok && cur == h {
		a.peers.Del(l.addr)
	}
	a.logger.WithFields(logrus.Fields{"handle": h, "address": l.addr}).Debug("Connection released")
}

// ConnectionRole implements rendezvous.HostStack.
func (a *Adapter) ConnectionRole(h rendezvous.ConnHandle) (rendezvous.Role, error) {
	l, err := a.link("connection role", h)
	if err != nil {
		return rendezvous.RoleCentral, err
	}
	return l.role, nil
}

// Links returns the number of connections the adapter holds.
func (a *Adapter) Links() int {
	return a.links.Len()
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
