// Package sim is an in-memory host stack with scripted peripherals. Every
// request queues its outcome as an event; Drain hands the events to the node
// one at a time, which gives tests a fully deterministic serial dispatch.
package sim

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/blerelay/internal/rendezvous"
)

// ErrNoSuchPeripheral is the connect failure for addresses nobody advertises.
var ErrNoSuchPeripheral = errors.New("no such peripheral")

// SubscribeCall records one Subscribe request.
type SubscribeCall struct {
	Handle rendezvous.ConnHandle
	Params rendezvous.SubscribeParams
	Err    error
}

// PhoneNotification records one value pushed to the phone.
type PhoneNotification struct {
	Handle  rendezvous.ConnHandle
	Payload string
}

type conn struct {
	handle     rendezvous.ConnHandle
	role       rendezvous.Role
	peer       *peripheral
	subscribed map[uint16]bool
	phoneSub   bool
	down       bool
}

// Stack implements rendezvous.HostStack.
type Stack struct {
	mu     sync.Mutex
	logger *logrus.Logger

	peripherals []*peripheral
	conns       map[rendezvous.ConnHandle]*conn
	nextHandle  rendezvous.ConnHandle
	queue       []rendezvous.Event

	service     *rendezvous.PhoneService
	advertising string
	scanning    bool

	releases      map[rendezvous.ConnHandle]int
	connects      []rendezvous.Address
	subscriptions []SubscribeCall
	notifications []PhoneNotification
	scanStarts    int
}

// New creates an empty stack.
func New(logger *logrus.Logger) *Stack {
	if logger == nil {
		logger = logrus.New()
	}
	return &Stack{
		logger:   logger,
		conns:    make(map[rendezvous.ConnHandle]*conn),
		releases: make(map[rendezvous.ConnHandle]int),
	}
}

// NewFromScenario creates a stack populated with the scenario peripherals.
func NewFromScenario(s *Scenario, logger *logrus.Logger) (*Stack, error) {
	st := New(logger)
	for _, p := range s.Peripherals {
		if err := st.AddPeripheral(p); err != nil {
			return nil, err
		}
	}
	return st, nil
}

// AddPeripheral makes a peripheral visible to subsequent scans.
func (s *Stack) AddPeripheral(cfg PeripheralConfig) error {
	p, err := buildPeripheral(cfg)
	if err != nil {
		return fmt.Errorf("add peripheral: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peripherals = append(s.peripherals, p)
	return nil
}

func (s *Stack) post(ev rendezvous.Event) {
	s.queue = append(s.queue, ev)
}

// Drain delivers queued events to handle until the queue is empty, including
// events queued by handle itself. It returns the number delivered.
func (s *Stack) Drain(handle func(rendezvous.Event)) int {
	delivered := 0
	for s.Step(handle) {
		delivered++
	}
	return delivered
}

// Step delivers the oldest queued event, if any.
func (s *Stack) Step(handle func(rendezvous.Event)) bool {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return false
	}
	ev := s.queue[0]
	s.queue = s.queue[1:]
	s.mu.Unlock()

	s.logger.WithField("event", rendezvous.EventName(ev)).Trace("sim: deliver")
	handle(ev)
	return true
}

// Pending returns the number of undelivered events.
func (s *Stack) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Stack) RegisterService(svc *rendezvous.PhoneService) error {
	if svc == nil {
		return fmt.Errorf("nil service")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.service = svc
	return nil
}

func (s *Stack) StartAdvertising(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.service == nil {
		return &rendezvous.StackError{Op: "advertise", Err: errors.New("no service registered")}
	}
	s.advertising = name
	return nil
}

// StartScan reports every unconnected peripheral once.
func (s *Stack) StartScan() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scanning = true
	s.scanStarts++
	s.advertiseLocked()
	return nil
}

func (s *Stack) StopScan() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scanning = false
	return nil
}

// Advertise queues one more round of advertisement reports if scanning.
func (s *Stack) Advertise() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advertiseLocked()
}

func (s *Stack) advertiseLocked() {
	if !s.scanning {
		return
	}
	for _, p := range s.peripherals {
		if s.connOfLocked(p) != nil {
			continue
		}
		s.post(rendezvous.AdvertisementReport{Addr: p.advertised(), RSSI: p.rssi})
	}
}

func (s *Stack) connOfLocked(p *peripheral) *conn {
	for _, c := range s.conns {
		if c.peer == p && !c.down {
			return c
		}
	}
	return nil
}

func (s *Stack) newConnLocked(role rendezvous.Role, p *peripheral) *conn {
	s.nextHandle++
	c := &conn{handle: s.nextHandle, role: role, peer: p, subscribed: make(map[uint16]bool)}
	s.conns[c.handle] = c
	return c
}

func (s *Stack) Connect(addr rendezvous.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connects = append(s.connects, addr)

	for _, p := range s.peripherals {
		if p.advertised() != addr {
			continue
		}
		if p.failConnects > 0 {
			p.failConnects--
			s.post(rendezvous.ConnectionFailed{Addr: addr, Err: errors.New("connection timeout")})
			return nil
		}
		c := s.newConnLocked(rendezvous.RoleCentral, p)
		s.post(rendezvous.ConnectionEstablished{Handle: c.handle})
		return nil
	}
	s.post(rendezvous.ConnectionFailed{Addr: addr, Err: ErrNoSuchPeripheral})
	return nil
}

func (s *Stack) Disconnect(h rendezvous.ConnHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[h]
	if !ok || c.down {
		return &rendezvous.StackError{Op: "disconnect", Handle: h, Err: rendezvous.ErrUnknownHandle}
	}
	s.dropLocked(c)
	return nil
}

func (s *Stack) dropLocked(c *conn) {
	c.down = true
	s.post(rendezvous.Disconnected{Handle: c.handle, Reason: errors.New("remote user terminated connection")})
}

func (s *Stack) Release(h rendezvous.ConnHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releases[h]++
}

func (s *Stack) ConnectionRole(h rendezvous.ConnHandle) (rendezvous.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[h]
	if !ok {
		return 0, &rendezvous.StackError{Op: "role", Handle: h, Err: rendezvous.ErrUnknownHandle}
	}
	return c.role, nil
}

func (s *Stack) target(op string, h rendezvous.ConnHandle) (*conn, error) {
	c, ok := s.conns[h]
	if !ok {
		return nil, &rendezvous.StackError{Op: op, Handle: h, Err: rendezvous.ErrUnknownHandle}
	}
	if c.down {
		return nil, &rendezvous.StackError{Op: op, Handle: h, Err: rendezvous.ErrNotConnected}
	}
	if c.peer == nil {
		return nil, &rendezvous.StackError{Op: op, Handle: h, Err: rendezvous.ErrNotSupported}
	}
	return c, nil
}

func (s *Stack) DiscoverServices(h rendezvous.ConnHandle, req rendezvous.DiscoveryRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.target("discover services", h)
	if err != nil {
		return err
	}
	for _, svc := range c.peer.services {
		if !req.Range.Contains(svc.attr.Handle) {
			continue
		}
		a := svc.attr
		s.post(rendezvous.DiscoveryResult{Handle: h, Request: req, Attribute: &a})
	}
	s.post(rendezvous.DiscoveryResult{Handle: h, Request: req})
	return nil
}

func (s *Stack) DiscoverCharacteristics(h rendezvous.ConnHandle, req rendezvous.DiscoveryRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.target("discover characteristics", h)
	if err != nil {
		return err
	}
	for _, svc := range c.peer.services {
		for _, ch := range svc.chars {
			if !req.Range.Contains(ch.attr.Handle) {
				continue
			}
			a := ch.attr
			s.post(rendezvous.DiscoveryResult{Handle: h, Request: req, Attribute: &a})
		}
	}
	s.post(rendezvous.DiscoveryResult{Handle: h, Request: req})
	return nil
}

// Subscribe writes the configuration descriptor. Writing a handle that is not
// the characteristic's descriptor fails like an ATT error would.
func (s *Stack) Subscribe(h rendezvous.ConnHandle, params rendezvous.SubscribeParams) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		s.subscriptions = append(s.subscriptions, SubscribeCall{Handle: h, Params: params, Err: err})
	}()

	c, err := s.target("subscribe", h)
	if err != nil {
		return err
	}
	ch, ok := c.peer.characteristic(params.ValueHandle)
	if !ok || !ch.notifies || ch.ccc != params.CCCHandle {
		return &rendezvous.StackError{
			Op:     "subscribe",
			Handle: h,
			Err:    fmt.Errorf("write to handle 0x%04x: attribute not found", params.CCCHandle),
		}
	}
	if c.subscribed[params.ValueHandle] {
		return rendezvous.ErrAlreadySubscribed
	}
	c.subscribed[params.ValueHandle] = true
	return nil
}

func (s *Stack) Notify(h rendezvous.ConnHandle, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[h]
	if !ok || c.down {
		return &rendezvous.StackError{Op: "notify", Handle: h, Err: rendezvous.ErrNotConnected}
	}
	if c.role != rendezvous.RolePeripheral {
		return &rendezvous.StackError{Op: "notify", Handle: h, Err: rendezvous.ErrNotSupported}
	}
	if !c.phoneSub {
		return rendezvous.ErrNotSubscribed
	}
	s.notifications = append(s.notifications, PhoneNotification{Handle: h, Payload: string(payload)})
	return nil
}

// AcceptPhone simulates an inbound connection while advertising.
func (s *Stack) AcceptPhone() (rendezvous.ConnHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.advertising == "" {
		return 0, errors.New("not advertising")
	}
	c := s.newConnLocked(rendezvous.RolePeripheral, nil)
	s.post(rendezvous.ConnectionEstablished{Handle: c.handle})
	return c.handle, nil
}

// SetPhoneSubscribed simulates the phone writing its configuration descriptor.
func (s *Stack) SetPhoneSubscribed(h rendezvous.ConnHandle, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[h]
	if !ok || c.role != rendezvous.RolePeripheral {
		return &rendezvous.StackError{Op: "phone subscribe", Handle: h, Err: rendezvous.ErrUnknownHandle}
	}
	c.phoneSub = enabled
	s.post(rendezvous.PhoneSubscription{Handle: h, Enabled: enabled})
	return nil
}

// ReadPhoneValue performs a GATT read of the phone-facing characteristic.
func (s *Stack) ReadPhoneValue() []byte {
	s.mu.Lock()
	svc := s.service
	s.mu.Unlock()
	if svc == nil {
		return nil
	}
	return svc.Read()
}

// Drop simulates a link loss to the peripheral written as addr, or to the
// phone when addr is empty.
func (s *Stack) Drop(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if addr == "" {
		for _, c := range s.conns {
			if c.role == rendezvous.RolePeripheral && !c.down {
				s.dropLocked(c)
				return nil
			}
		}
		return errors.New("no phone connected")
	}

	p, err := s.peripheralLocked(addr)
	if err != nil {
		return err
	}
	c := s.connOfLocked(p)
	if c == nil {
		return fmt.Errorf("%s: not connected", addr)
	}
	s.dropLocked(c)
	return nil
}

// Push sends a notification from the peripheral written as addr on every
// characteristic it has subscribed. An empty payload signals the stack
// dropping the subscription.
func (s *Stack) Push(addr string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.peripheralLocked(addr)
	if err != nil {
		return err
	}
	c := s.connOfLocked(p)
	if c == nil {
		return fmt.Errorf("%s: not connected", addr)
	}
	pushed := false
	for vh := range c.subscribed {
		s.post(rendezvous.Notification{Handle: c.handle, ValueHandle: vh, Payload: append([]byte(nil), payload...)})
		pushed = true
	}
	if !pushed {
		return fmt.Errorf("%s: no active subscription", addr)
	}
	return nil
}

func (s *Stack) peripheralLocked(addr string) (*peripheral, error) {
	a, err := rendezvous.ParseAddress(addr)
	if err != nil {
		return nil, err
	}
	for _, p := range s.peripherals {
		if p.written == a {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", addr, ErrNoSuchPeripheral)
}

// HandleOf returns the live connection handle to the peripheral written as addr.
func (s *Stack) HandleOf(addr string) (rendezvous.ConnHandle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.peripheralLocked(addr)
	if err != nil {
		return 0, false
	}
	if c := s.connOfLocked(p); c != nil {
		return c.handle, true
	}
	return 0, false
}

// Releases returns how many times h was released.
func (s *Stack) Releases(h rendezvous.ConnHandle) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releases[h]
}

// Connects returns every address passed to Connect.
func (s *Stack) Connects() []rendezvous.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]rendezvous.Address(nil), s.connects...)
}

// Subscriptions returns every Subscribe call with its outcome.
func (s *Stack) Subscriptions() []SubscribeCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SubscribeCall(nil), s.subscriptions...)
}

// PhoneNotifications returns every value delivered to the phone.
func (s *Stack) PhoneNotifications() []PhoneNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PhoneNotification(nil), s.notifications...)
}

// Scanning reports whether a scan is running.
func (s *Stack) Scanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanning
}

// ScanStarts returns how many times StartScan was called.
func (s *Stack) ScanStarts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanStarts
}

// Advertising returns the advertised name, empty when not advertising.
func (s *Stack) Advertising() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advertising
}
