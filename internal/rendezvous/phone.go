package rendezvous

import "github.com/go-ble/ble"

// Phone-facing GATT identifiers used when none are configured.
var (
	DefaultPhoneServiceUUID = ble.MustParse("12345678-1234-5678-1234-56789abcdef2")
	DefaultPhoneValueUUID   = ble.MustParse("12345678-1234-5678-1234-56789abcdef3")
)

// PhoneService is the GATT service served to the phone: one primary service
// holding one read/notify characteristic and its configuration descriptor.
type PhoneService struct {
	ServiceUUID ble.UUID
	ValueUUID   ble.UUID

	value *AggregateValue
}

// Read returns the aggregate value verbatim. Safe from any goroutine.
func (p *PhoneService) Read() []byte {
	if p.value == nil {
		return nil
	}
	return p.value.Bytes()
}
