package rendezvous

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blerelay/internal/ringchan"
)

// Target GATT identifiers used when none are configured.
var (
	DefaultTargetServiceUUID = ble.MustParse("12345678-1234-5678-1234-56789abcdef0")
	DefaultTargetValueUUID   = ble.MustParse("12345678-1234-5678-1234-56789abcdef1")
)

const (
	// CCCOffset is the distance between a characteristic declaration and its
	// configuration descriptor on the targets. It holds only for attribute
	// tables laid out as declaration, value, CCC.
	CCCOffset = 2

	DefaultName           = "blerelay"
	DefaultMailboxSize    = 256
	DefaultSnapshotBuffer = 16
)

// Options configures a Node. Zero fields take defaults.
type Options struct {
	Name               string   // advertised local name
	ServiceUUID        ble.UUID // target service to look for
	CharacteristicUUID ble.UUID // target characteristic to subscribe to
	PhoneServiceUUID   ble.UUID
	PhoneValueUUID     ble.UUID
	AggregateCapacity  int
	MailboxSize        int
	SnapshotBuffer     int
	JournalSize        uint32
	Mirror             io.Writer // optional copy of every relayed value, one per line
	Logger             *logrus.Logger
	Clock              func() time.Time
}

// DefaultOptions returns the options used for zero fields.
func DefaultOptions() Options {
	return Options{
		Name:               DefaultName,
		ServiceUUID:        DefaultTargetServiceUUID,
		CharacteristicUUID: DefaultTargetValueUUID,
		PhoneServiceUUID:   DefaultPhoneServiceUUID,
		PhoneValueUUID:     DefaultPhoneValueUUID,
		AggregateCapacity:  DefaultAggregateCapacity,
		MailboxSize:        DefaultMailboxSize,
		SnapshotBuffer:     DefaultSnapshotBuffer,
		JournalSize:        DefaultJournalSize,
		Clock:              time.Now,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Name == "" {
		o.Name = d.Name
	}
	if o.ServiceUUID == nil {
		o.ServiceUUID = d.ServiceUUID
	}
	if o.CharacteristicUUID == nil {
		o.CharacteristicUUID = d.CharacteristicUUID
	}
	if o.PhoneServiceUUID == nil {
		o.PhoneServiceUUID = d.PhoneServiceUUID
	}
	if o.PhoneValueUUID == nil {
		o.PhoneValueUUID = d.PhoneValueUUID
	}
	if o.AggregateCapacity <= 0 {
		o.AggregateCapacity = d.AggregateCapacity
	}
	if o.MailboxSize <= 0 {
		o.MailboxSize = d.MailboxSize
	}
	if o.SnapshotBuffer <= 0 {
		o.SnapshotBuffer = d.SnapshotBuffer
	}
	if o.JournalSize == 0 {
		o.JournalSize = d.JournalSize
	}
	if o.Clock == nil {
		o.Clock = d.Clock
	}
	if o.Logger == nil {
		o.Logger = logrus.New()
	}
	return o
}

// Node is the rendezvous context: the single owner of every piece of
// orchestration state. All fields below the mailbox are touched only from the
// goroutine running Handle (directly or through Run).
type Node struct {
	host     HostStack
	registry *Registry
	opts     Options
	logger   *logrus.Logger

	mailbox chan Event
	updates *ringchan.RingChannel[Snapshot]
	journal *Journal

	aggregate *AggregateValue
	service   *PhoneService

	started    bool
	changed    bool
	scanning   bool
	dialing    bool
	dialSlot   SlotIndex
	phase      Phase
	activeSlot SlotIndex
	slots      [SlotCount]*TargetSlot
	phone      *PhoneLink
	discovery  discoveryState
}

// NewNode creates a node driving host toward the targets of registry.
func NewNode(host HostStack, registry *Registry, opts Options) (*Node, error) {
	if host == nil {
		return nil, fmt.Errorf("host stack is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("target registry is required")
	}
	opts = opts.withDefaults()

	n := &Node{
		host:      host,
		registry:  registry,
		opts:      opts,
		logger:    opts.Logger,
		mailbox:   make(chan Event, opts.MailboxSize),
		updates:   ringchan.New[Snapshot](opts.SnapshotBuffer),
		journal:   NewJournal(opts.JournalSize),
		aggregate: NewAggregateValue(opts.AggregateCapacity),
		phase:     PhaseConnecting,
	}
	n.service = &PhoneService{
		ServiceUUID: opts.PhoneServiceUUID,
		ValueUUID:   opts.PhoneValueUUID,
		value:       n.aggregate,
	}
	for i := range n.slots {
		idx := SlotIndex(i)
		n.slots[i] = &TargetSlot{Index: idx, Target: registry.Target(idx)}
	}
	return n, nil
}

// Start registers the phone-facing service, starts advertising, and starts
// scanning for slot 0. Only a service registration failure is returned;
// advertising and scanning failures are logged like any transient stack error.
func (n *Node) Start() error {
	if n.started {
		return nil
	}

	if err := n.host.RegisterService(n.service); err != nil {
		return fmt.Errorf("register phone service: %w", err)
	}

	if err := n.host.StartAdvertising(n.opts.Name); err != nil {
		n.logger.WithError(err).Warn("Advertising failed to start")
	} else {
		n.logger.WithField("name", n.opts.Name).Info("Advertising started")
	}

	n.started = true
	n.activeSlot = 0
	n.startScan()
	n.publish()
	return nil
}

// Run starts the node if needed and dispatches mailbox events until ctx is
// done. It is the only goroutine that may touch node state while it runs.
func (n *Node) Run(ctx context.Context) error {
	defer n.updates.Close()
	if err := n.Start(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			n.logger.WithField("phase", n.phase).Debug("Rendezvous loop stopped")
			return ctx.Err()
		case ev := <-n.mailbox:
			n.Handle(ev)
		}
	}
}

// Post queues an event for Run. It blocks while the mailbox is full.
func (n *Node) Post(ctx context.Context, ev Event) error {
	select {
	case n.mailbox <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handle processes one event synchronously. Callers must serialize calls.
func (n *Node) Handle(ev Event) {
	switch e := ev.(type) {
	case AdvertisementReport:
		n.onAdvertisement(e)
	case ConnectionEstablished:
		n.onConnectionEstablished(e)
	case ConnectionFailed:
		n.onConnectionFailed(e)
	case Disconnected:
		n.onDisconnected(e)
	case DiscoveryResult:
		n.onDiscoveryResult(e)
	case Notification:
		n.onNotification(e)
	case PhoneSubscription:
		n.onPhoneSubscription(e)
	default:
		n.logger.WithField("event", fmt.Sprintf("%T", ev)).Warn("Ignoring unknown event")
	}

	if n.changed {
		n.publish()
	}
}

// Updates delivers a snapshot after every state change. Slow readers lose
// older snapshots, never the latest.
func (n *Node) Updates() <-chan Snapshot {
	return n.updates.C()
}

// Journal returns the phase transition journal.
func (n *Node) Journal() *Journal {
	return n.journal
}

// Aggregate returns the current relayed value. Safe from any goroutine.
func (n *Node) Aggregate() string {
	return n.aggregate.Load()
}

// Service returns the phone-facing service definition.
func (n *Node) Service() *PhoneService {
	return n.service
}

// Phase returns the current phase.
func (n *Node) Phase() Phase {
	return n.phase
}

// ActiveSlot returns the slot currently pursued by scanning.
func (n *Node) ActiveSlot() SlotIndex {
	return n.activeSlot
}

// Slot returns a copy of slot i.
func (n *Node) Slot(i SlotIndex) SlotStatus {
	return n.slots[i].status()
}

// Phone returns a copy of the phone link, if one is attached.
func (n *Node) Phone() (PhoneLink, bool) {
	if n.phone == nil {
		return PhoneLink{}, false
	}
	return *n.phone, true
}

func (n *Node) slotFlags() [SlotCount]SlotFlags {
	var f [SlotCount]SlotFlags
	for i, s := range n.slots {
		f[i] = s.flags()
	}
	return f
}

func (n *Node) slotByHandle(h ConnHandle) (*TargetSlot, bool) {
	for _, s := range n.slots {
		if s.owns(h) {
			return s, true
		}
	}
	return nil, false
}

// evaluatePhase applies the forward transition function and runs the action
// attached to entering Discovering.
func (n *Node) evaluatePhase(cause string) {
	next := NextPhase(n.phase, n.slotFlags())
	if next == n.phase {
		return
	}
	n.setPhase(next, cause)

	if next == PhaseDiscovering {
		n.startDiscovery()
	}
}

func (n *Node) setPhase(p Phase, cause string) {
	if p == n.phase {
		return
	}
	t := Transition{At: n.opts.Clock(), From: n.phase, To: p, Cause: cause}
	if err := n.journal.Record(t); err != nil {
		n.logger.WithError(err).Warn("Failed to record phase transition")
	}
	n.logger.WithFields(logrus.Fields{
		"from":  n.phase,
		"to":    p,
		"cause": cause,
	}).Info("Phase changed")

	n.phase = p
	n.changed = true
}

// publish sends the current snapshot to observers.
func (n *Node) publish() {
	n.changed = false
	n.updates.ForceSend(n.Snapshot())
}
