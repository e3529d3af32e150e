package rendezvous

import (
	"fmt"

	"github.com/go-ble/ble"
)

// ConnHandle identifies one live connection inside the host stack.
// Zero is never a valid handle.
type ConnHandle uint16

// Role tells which side initiated a connection.
type Role int

const (
	// RoleCentral marks a connection this node dialed (a target).
	RoleCentral Role = iota
	// RolePeripheral marks a connection accepted while advertising (a phone).
	RolePeripheral
)

func (r Role) String() string {
	if r == RolePeripheral {
		return "peripheral"
	}
	return "central"
}

// HandleRange is an inclusive ATT handle range.
type HandleRange struct {
	Start uint16
	End   uint16
}

// FullRange covers every attribute of a remote server.
var FullRange = HandleRange{Start: 0x0001, End: 0xffff}

// Contains reports whether h lies inside the range.
func (r HandleRange) Contains(h uint16) bool {
	return h >= r.Start && h <= r.End
}

func (r HandleRange) String() string {
	return fmt.Sprintf("0x%04x-0x%04x", r.Start, r.End)
}

// DiscoveryKind selects what a DiscoveryRequest walks.
type DiscoveryKind int

const (
	DiscoverPrimaryServices DiscoveryKind = iota
	DiscoverCharacteristics
)

func (k DiscoveryKind) String() string {
	if k == DiscoverCharacteristics {
		return "characteristic"
	}
	return "primary"
}

// DiscoveryRequest is built fresh for every discovery step. The host stack
// echoes it back on every DiscoveryResult so results are tied to the step
// that asked for them.
type DiscoveryRequest struct {
	ID    uint32
	Slot  SlotIndex
	Kind  DiscoveryKind
	Range HandleRange
}

// Attribute is one discovered service or characteristic.
//
// For services Handle/EndHandle bound the service. For characteristics Handle
// is the declaration handle and ValueHandle the value attribute (zero when the
// stack does not report it).
type Attribute struct {
	UUID        ble.UUID
	Handle      uint16
	EndHandle   uint16
	ValueHandle uint16
}

// SubscribeMode selects notifications or indications.
type SubscribeMode int

const (
	SubscribeNotify SubscribeMode = iota
	SubscribeIndicate
)

// SubscribeParams are the per-slot subscription parameters.
type SubscribeParams struct {
	ValueHandle uint16
	CCCHandle   uint16
	Mode        SubscribeMode
}

// HostStack is the Bluetooth LE host stack the node drives.
//
// Every method must return promptly: outcomes of connect, discovery, and
// subscription arrive later as events. Implementations must never call back
// into the Node from inside one of these methods.
type HostStack interface {
	// RegisterService exposes the phone-facing GATT service.
	RegisterService(svc *PhoneService) error
	// StartAdvertising makes the node connectable as a peripheral.
	StartAdvertising(name string) error

	// StartScan starts delivering AdvertisementReport events. Starting an
	// already running scan is not an error.
	StartScan() error
	// StopScan stops scanning, best effort.
	StopScan() error

	// Connect requests a central connection to addr. The outcome is a
	// ConnectionEstablished or ConnectionFailed event.
	Connect(addr Address) error
	// Disconnect requests termination of a connection, best effort.
	Disconnect(h ConnHandle) error
	// Release drops the node's reference to a connection handle.
	Release(h ConnHandle)
	// ConnectionRole reports who initiated the connection.
	ConnectionRole(h ConnHandle) (Role, error)

	// DiscoverServices walks primary services in req.Range.
	DiscoverServices(h ConnHandle, req DiscoveryRequest) error
	// DiscoverCharacteristics walks characteristics in req.Range.
	DiscoverCharacteristics(h ConnHandle, req DiscoveryRequest) error

	// Subscribe enables value delivery for a characteristic. It returns
	// ErrAlreadySubscribed when the same subscription is already active.
	Subscribe(h ConnHandle, params SubscribeParams) error

	// Notify pushes payload on the phone-facing characteristic of h.
	Notify(h ConnHandle, payload []byte) error
}
