package testutils

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/blerelay/internal/hoststack/sim"
	"github.com/srg/blerelay/internal/rendezvous"
	"github.com/stretchr/testify/suite"
)

// NodeSuite runs a rendezvous node against the simulated host stack.
//
// Peripherals default to two well-formed targets at TargetA and TargetB.
// Suites that need something else configure Peripherals before calling
// the parent SetupTest:
//
//	func (s *FlakySuite) SetupTest() {
//	    s.Peripherals = []*testutils.PeripheralBuilder{
//	        testutils.TargetPeripheral(testutils.TargetA).WithFailedConnects(1),
//	        testutils.TargetPeripheral(testutils.TargetB),
//	    }
//	    s.NodeSuite.SetupTest()
//	}
type NodeSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger

	Peripherals []*PeripheralBuilder
	Options     rendezvous.Options

	Stack *sim.Stack
	Node  *rendezvous.Node
}

func (s *NodeSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
}

func (s *NodeSuite) SetupTest() {
	if s.Peripherals == nil {
		s.Peripherals = []*PeripheralBuilder{
			TargetPeripheral(TargetA),
			TargetPeripheral(TargetB),
		}
	}

	s.Stack = sim.New(s.Logger)
	for _, p := range s.Peripherals {
		s.Require().NoError(s.Stack.AddPeripheral(p.Build()))
	}

	registry, err := rendezvous.ParseRegistry([]string{TargetA, TargetB})
	s.Require().NoError(err)

	opts := s.Options
	opts.Logger = s.Logger
	s.Node, err = rendezvous.NewNode(s.Stack, registry, opts)
	s.Require().NoError(err)
}

func (s *NodeSuite) TearDownTest() {
	s.Peripherals = nil
	s.Options = rendezvous.Options{}
	s.Stack = nil
	s.Node = nil
}

// Start boots the node without delivering any events.
func (s *NodeSuite) Start() {
	s.Require().NoError(s.Node.Start())
}

// Drain delivers every queued event to the node.
func (s *NodeSuite) Drain() int {
	return s.Stack.Drain(s.Node.Handle)
}

// Step delivers one queued event to the node.
func (s *NodeSuite) Step() bool {
	return s.Stack.Step(s.Node.Handle)
}

// Converge starts the node and drains until nothing is left.
func (s *NodeSuite) Converge() {
	s.Start()
	s.Drain()
}

// AttachPhone connects a phone and enables its notifications.
func (s *NodeSuite) AttachPhone() rendezvous.ConnHandle {
	h, err := s.Stack.AcceptPhone()
	s.Require().NoError(err)
	s.Require().NoError(s.Stack.SetPhoneSubscribed(h, true))
	s.Drain()
	return h
}

// HandleOf returns the live connection handle of a target.
func (s *NodeSuite) HandleOf(address string) rendezvous.ConnHandle {
	h, ok := s.Stack.HandleOf(address)
	s.Require().True(ok, "%s is not connected", address)
	return h
}
