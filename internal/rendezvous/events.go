package rendezvous

// Event is a host stack occurrence delivered to the Node.
type Event interface {
	eventName() string
}

// AdvertisementReport is one advertisement observed while scanning.
// Addr is in over-the-air byte order.
type AdvertisementReport struct {
	Addr Address
	RSSI int
}

// ConnectionEstablished reports a new connection, dialed or accepted.
type ConnectionEstablished struct {
	Handle ConnHandle
}

// ConnectionFailed reports that a Connect request did not complete.
type ConnectionFailed struct {
	Addr Address
	Err  error
}

// Disconnected reports the loss of a connection.
type Disconnected struct {
	Handle ConnHandle
	Reason error
}

// DiscoveryResult carries one discovered attribute for Request. A nil
// Attribute is the terminal result: the walk is exhausted, or it failed when
// Err is set.
type DiscoveryResult struct {
	Handle    ConnHandle
	Request   DiscoveryRequest
	Attribute *Attribute
	Err       error
}

// Notification is a value pushed by a subscribed target characteristic.
// An empty Payload means the subscription was dropped by the stack.
type Notification struct {
	Handle      ConnHandle
	ValueHandle uint16
	Payload     []byte
}

// PhoneSubscription reports a change of the phone's configuration descriptor.
type PhoneSubscription struct {
	Handle  ConnHandle
	Enabled bool
}

func (AdvertisementReport) eventName() string   { return "advertisement" }
func (ConnectionEstablished) eventName() string { return "connected" }
func (ConnectionFailed) eventName() string      { return "connect-failed" }
func (Disconnected) eventName() string          { return "disconnected" }
func (DiscoveryResult) eventName() string       { return "discovery" }
func (Notification) eventName() string          { return "notification" }
func (PhoneSubscription) eventName() string     { return "phone-subscription" }

// EventName returns a short label for logs.
func EventName(ev Event) string {
	if ev == nil {
		return "nil"
	}
	return ev.eventName()
}
