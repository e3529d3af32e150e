package mocks

import (
	"github.com/srg/blerelay/internal/rendezvous"
	"github.com/stretchr/testify/mock"
)

// HostStack is a testify mock of rendezvous.HostStack.
type HostStack struct {
	mock.Mock
}

var _ rendezvous.HostStack = (*HostStack)(nil)

// NewHostStack creates a mock and registers expectation checks on cleanup.
func NewHostStack(t interface {
	mock.TestingT
	Cleanup(func())
}) *HostStack {
	m := &HostStack{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *HostStack) RegisterService(svc *rendezvous.PhoneService) error {
	return m.Called(svc).Error(0)
}

func (m *HostStack) StartAdvertising(name string) error {
	return m.Called(name).Error(0)
}

func (m *HostStack) StartScan() error {
	return m.Called().Error(0)
}

func (m *HostStack) StopScan() error {
	return m.Called().Error(0)
}

func (m *HostStack) Connect(addr rendezvous.Address) error {
	return m.Called(addr).Error(0)
}

func (m *HostStack) Disconnect(h rendezvous.ConnHandle) error {
	return m.Called(h).Error(0)
}

func (m *HostStack) Release(h rendezvous.ConnHandle) {
	m.Called(h)
}

func (m *HostStack) ConnectionRole(h rendezvous.ConnHandle) (rendezvous.Role, error) {
	args := m.Called(h)
	return args.Get(0).(rendezvous.Role), args.Error(1)
}

func (m *HostStack) DiscoverServices(h rendezvous.ConnHandle, req rendezvous.DiscoveryRequest) error {
	return m.Called(h, req).Error(0)
}

func (m *HostStack) DiscoverCharacteristics(h rendezvous.ConnHandle, req rendezvous.DiscoveryRequest) error {
	return m.Called(h, req).Error(0)
}

func (m *HostStack) Subscribe(h rendezvous.ConnHandle, params rendezvous.SubscribeParams) error {
	return m.Called(h, params).Error(0)
}

func (m *HostStack) Notify(h rendezvous.ConnHandle, payload []byte) error {
	return m.Called(h, payload).Error(0)
}
