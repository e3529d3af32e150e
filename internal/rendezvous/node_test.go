package rendezvous_test

import (
	"testing"

	"github.com/srg/blerelay/internal/hoststack/sim"
	"github.com/srg/blerelay/internal/rendezvous"
	"github.com/srg/blerelay/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type NodeTestSuite struct {
	testutils.NodeSuite
}

func TestNodeTestSuite(t *testing.T) {
	suite.Run(t, new(NodeTestSuite))
}

func (s *NodeTestSuite) latest() rendezvous.Snapshot {
	var last rendezvous.Snapshot
	for {
		select {
		case snap := <-s.Node.Updates():
			last = snap
		default:
			return last
		}
	}
}

func (s *NodeTestSuite) TestStartAdvertisesAndScans() {
	s.Start()

	s.Equal("blerelay", s.Stack.Advertising())
	s.True(s.Stack.Scanning())
	s.Equal(rendezvous.PhaseConnecting, s.Node.Phase())
	s.Equal(rendezvous.SlotIndex(0), s.Node.ActiveSlot())
}

func (s *NodeTestSuite) TestConvergesToOperational() {
	s.Converge()

	s.Equal(rendezvous.PhaseOperational, s.Node.Phase())
	s.False(s.Stack.Scanning())

	for i := rendezvous.SlotIndex(0); i < rendezvous.SlotCount; i++ {
		slot := s.Node.Slot(i)
		s.True(slot.Connected, "slot %d", i)
		s.True(slot.NotificationsEnabled, "slot %d", i)
		// declaration 8, value 9, descriptor 10 in the target layout
		s.EqualValues(9, slot.ValueHandle, "slot %d", i)
		s.EqualValues(10, slot.CCCHandle, "slot %d", i)
	}

	// slot 0 is dialed first
	s.Equal(rendezvous.ConnHandle(1), s.Node.Slot(0).Handle)
	s.Equal(rendezvous.ConnHandle(2), s.Node.Slot(1).Handle)

	testutils.NewJSONAsserter(s.T()).AssertValue(s.latest(), `{
		"phase": "operational",
		"scanning": false,
		"slots": [
			{"index": 0, "target": "ED:0A:39:F0:0E:1C", "connected": true, "notifications_enabled": true},
			{"index": 1, "target": "D9:42:7E:11:5A:C3", "connected": true, "notifications_enabled": true}
		],
		"aggregate": ""
	}`)

	transitions := s.Node.Journal().Drain()
	s.Require().Len(transitions, 2)
	s.Equal(rendezvous.PhaseDiscovering, transitions[0].To)
	s.Equal(rendezvous.PhaseOperational, transitions[1].To)
}

func (s *NodeTestSuite) TestDiscoveryIsSequential() {
	s.Start()

	// Run until both targets are connected.
	for s.Step() {
		if s.Node.Phase() == rendezvous.PhaseDiscovering {
			break
		}
	}
	s.Require().Equal(rendezvous.PhaseDiscovering, s.Node.Phase())

	subscribedOrder := func() []rendezvous.ConnHandle {
		var out []rendezvous.ConnHandle
		for _, c := range s.Stack.Subscriptions() {
			out = append(out, c.Handle)
		}
		return out
	}

	s.Drain()
	s.Equal([]rendezvous.ConnHandle{1, 2}, subscribedOrder())
}

func (s *NodeTestSuite) TestRelayToPhone() {
	s.Converge()
	phone := s.AttachPhone()

	link, ok := s.Node.Phone()
	s.Require().True(ok)
	s.Equal(phone, link.Handle)
	s.True(link.Subscribed)

	s.Require().NoError(s.Stack.Push(testutils.TargetB, []byte{0xAA, 0xBB}))
	s.Drain()
	s.Equal("Device 1: aa bb ", s.Node.Aggregate())
	s.Equal("Device 1: aa bb ", string(s.Stack.ReadPhoneValue()))

	s.Require().NoError(s.Stack.Push(testutils.TargetA, []byte{0x01}))
	s.Drain()
	s.Equal("Device 0: 01 ", s.Node.Aggregate())

	s.Equal([]sim.PhoneNotification{
		{Handle: phone, Payload: "Device 1: aa bb "},
		{Handle: phone, Payload: "Device 0: 01 "},
	}, s.Stack.PhoneNotifications())
}

func (s *NodeTestSuite) TestRelayWithoutPhone() {
	s.Converge()

	s.Require().NoError(s.Stack.Push(testutils.TargetA, []byte{0x10, 0x20}))
	s.Drain()

	s.Equal("Device 0: 10 20 ", s.Node.Aggregate())
	s.Empty(s.Stack.PhoneNotifications())
}

func (s *NodeTestSuite) TestPhoneWithoutSubscriptionIsNotNotified() {
	s.Converge()
	_, err := s.Stack.AcceptPhone()
	s.Require().NoError(err)
	s.Drain()

	s.Require().NoError(s.Stack.Push(testutils.TargetA, []byte{0x01}))
	s.Drain()

	s.Equal("Device 0: 01 ", s.Node.Aggregate())
	s.Empty(s.Stack.PhoneNotifications())
}

func (s *NodeTestSuite) TestEmptyNotificationClearsValueHandle() {
	s.Converge()

	s.Require().NoError(s.Stack.Push(testutils.TargetA, []byte{0x01}))
	s.Drain()
	s.Require().Equal("Device 0: 01 ", s.Node.Aggregate())

	s.Require().NoError(s.Stack.Push(testutils.TargetA, nil))
	s.Drain()

	slot := s.Node.Slot(0)
	s.Zero(slot.ValueHandle)
	s.True(slot.NotificationsEnabled)
	s.Equal("Device 0: 01 ", s.Node.Aggregate())

	// later values for the dropped subscription are ignored
	s.Require().NoError(s.Stack.Push(testutils.TargetA, []byte{0x02}))
	s.Drain()
	s.Equal("Device 0: 01 ", s.Node.Aggregate())

	// the other slot is unaffected
	s.Require().NoError(s.Stack.Push(testutils.TargetB, []byte{0x03}))
	s.Drain()
	s.Equal("Device 1: 03 ", s.Node.Aggregate())
}

func (s *NodeTestSuite) TestOperationalTargetDropResets() {
	s.Converge()
	s.Require().Equal(rendezvous.PhaseOperational, s.Node.Phase())

	slot0 := s.Node.Slot(0)
	lost := s.HandleOf(testutils.TargetB)

	s.Require().NoError(s.Stack.Drop(testutils.TargetB))
	s.Require().True(s.Step())

	s.Equal(rendezvous.PhaseConnecting, s.Node.Phase())
	s.Equal(rendezvous.SlotIndex(1), s.Node.ActiveSlot())
	s.True(s.Stack.Scanning())
	s.Equal(1, s.Stack.Releases(lost))

	s.Equal(slot0, s.Node.Slot(0), "surviving slot untouched")
	slot1 := s.Node.Slot(1)
	s.False(slot1.Connected)
	s.False(slot1.NotificationsEnabled)
	s.Zero(slot1.Handle)

	// recovery re-discovers both slots; the survivor reports already subscribed
	s.Drain()
	s.Equal(rendezvous.PhaseOperational, s.Node.Phase())
	s.Equal(1, s.Stack.Releases(lost))

	calls := s.Stack.Subscriptions()
	s.Require().Len(calls, 4)
	s.Equal(slot0.Handle, calls[2].Handle)
	s.ErrorIs(calls[2].Err, rendezvous.ErrAlreadySubscribed)
	s.NoError(calls[3].Err)
}

func (s *NodeTestSuite) TestPhoneDuringDiscoveryDoesNotPerturb() {
	s.Start()
	for s.Node.Phase() != rendezvous.PhaseDiscovering && s.Step() {
	}
	s.Require().Equal(rendezvous.PhaseDiscovering, s.Node.Phase())

	phone, err := s.Stack.AcceptPhone()
	s.Require().NoError(err)

	seen := false
	s.Stack.Drain(func(ev rendezvous.Event) {
		ce, ok := ev.(rendezvous.ConnectionEstablished)
		if !ok || ce.Handle != phone {
			s.Node.Handle(ev)
			return
		}
		seen = true
		before := s.Node.Snapshot()
		s.Node.Handle(ev)
		after := s.Node.Snapshot()

		s.Equal(before.Phase, after.Phase)
		s.Equal(before.Slots, after.Slots)
		s.Equal(before.ActiveSlot, after.ActiveSlot)
		s.Require().NotNil(after.Phone)
		s.Equal(phone, after.Phone.Handle)
	})

	s.True(seen)
	s.Equal(rendezvous.PhaseOperational, s.Node.Phase())
}

func (s *NodeTestSuite) TestPhoneDisconnect() {
	s.Converge()
	phone := s.AttachPhone()

	s.Require().NoError(s.Stack.Drop(""))
	s.Drain()

	_, ok := s.Node.Phone()
	s.False(ok)
	s.Equal(1, s.Stack.Releases(phone))
	s.Equal(rendezvous.PhaseOperational, s.Node.Phase(), "phone loss never resets the rendezvous")
}

func (s *NodeTestSuite) TestSubscribeMatchIsIdempotent() {
	s.Converge()

	attr := rendezvous.Attribute{
		UUID:        rendezvous.DefaultTargetValueUUID,
		Handle:      8,
		ValueHandle: 9,
	}
	before := s.Node.Slot(0)
	s.Node.SubscribeMatched(0, attr)
	s.Node.SubscribeMatched(0, attr)

	s.Equal(before, s.Node.Slot(0))
	calls := s.Stack.Subscriptions()
	s.Require().Len(calls, 4)
	for _, c := range calls[2:] {
		s.ErrorIs(c.Err, rendezvous.ErrAlreadySubscribed)
		s.Equal(before.ValueHandle, c.Params.ValueHandle)
		s.Equal(before.CCCHandle, c.Params.CCCHandle)
	}
}

// EarlyDropSuite has only the first target in range.
type EarlyDropSuite struct {
	testutils.NodeSuite
}

func TestEarlyDropSuite(t *testing.T) {
	suite.Run(t, new(EarlyDropSuite))
}

func (s *EarlyDropSuite) SetupTest() {
	s.Peripherals = []*testutils.PeripheralBuilder{testutils.TargetPeripheral(testutils.TargetA)}
	s.NodeSuite.SetupTest()
}

func (s *EarlyDropSuite) TestFirstTargetDropsBeforeSecondConnects() {
	s.Converge()
	s.Require().True(s.Node.Slot(0).Connected)
	s.Require().Equal(rendezvous.SlotIndex(1), s.Node.ActiveSlot())

	lost := s.HandleOf(testutils.TargetA)
	s.Require().NoError(s.Stack.Drop(testutils.TargetA))
	s.Require().True(s.Step())

	s.Equal(rendezvous.PhaseConnecting, s.Node.Phase())
	s.Equal(rendezvous.SlotIndex(0), s.Node.ActiveSlot())
	s.True(s.Stack.Scanning())
	s.Equal(1, s.Stack.Releases(lost))
	s.False(s.Node.Slot(0).Connected)

	// it comes straight back
	s.Drain()
	s.True(s.Node.Slot(0).Connected)
	s.Equal(1, s.Stack.Releases(lost))
}

// FlakyConnectSuite fails the first connection to slot 0.
type FlakyConnectSuite struct {
	testutils.NodeSuite
}

func TestFlakyConnectSuite(t *testing.T) {
	suite.Run(t, new(FlakyConnectSuite))
}

func (s *FlakyConnectSuite) SetupTest() {
	s.Peripherals = []*testutils.PeripheralBuilder{
		testutils.TargetPeripheral(testutils.TargetA).WithFailedConnects(1),
		testutils.TargetPeripheral(testutils.TargetB),
	}
	s.NodeSuite.SetupTest()
}

func (s *FlakyConnectSuite) TestAlternatesToOtherTarget() {
	s.Converge()

	a := rendezvous.MustParseAddress(testutils.TargetA).Reverse()
	b := rendezvous.MustParseAddress(testutils.TargetB).Reverse()
	s.Equal([]rendezvous.Address{a, b, a}, s.Stack.Connects())

	s.Equal(rendezvous.PhaseOperational, s.Node.Phase())
	s.Equal(rendezvous.ConnHandle(1), s.Node.Slot(1).Handle, "slot 1 connected first")
	s.Equal(rendezvous.ConnHandle(2), s.Node.Slot(0).Handle)
}

// LayoutSuite covers targets whose attribute tables break the discovery
// assumptions.
type LayoutSuite struct {
	testutils.NodeSuite
}

func TestLayoutSuite(t *testing.T) {
	suite.Run(t, new(LayoutSuite))
}

func (s *LayoutSuite) SetupTest() {
	s.Peripherals = []*testutils.PeripheralBuilder{
		// a user description descriptor sits between value and CCC
		testutils.NewPeripheralBuilder(testutils.TargetA).FromJSON(`{
			"services": [
				{
					"uuid": %q,
					"characteristics": [
						{"uuid": %q, "properties": "read,notify", "ccc_handle": 5}
					]
				}
			]
		}`, testutils.TargetServiceUUID, testutils.TargetValueUUID),
		// service present, characteristic missing
		testutils.NewPeripheralBuilder(testutils.TargetB).
			WithService(testutils.TargetServiceUUID).
			WithCharacteristic("2A19", "read,notify"),
	}
	s.NodeSuite.SetupTest()
}

func (s *LayoutSuite) TestStaysInDiscovering() {
	s.Converge()

	s.Equal(rendezvous.PhaseDiscovering, s.Node.Phase())
	s.True(s.Node.Slot(0).Connected)
	s.True(s.Node.Slot(1).Connected)
	s.False(s.Node.Slot(0).NotificationsEnabled)
	s.False(s.Node.Slot(1).NotificationsEnabled)

	calls := s.Stack.Subscriptions()
	s.Require().Len(calls, 1, "slot 1 never finds a match")
	s.EqualValues(3, calls[0].Params.ValueHandle)
	s.EqualValues(4, calls[0].Params.CCCHandle)
	s.Error(calls[0].Err)
	s.Zero(s.Stack.Pending())
}
