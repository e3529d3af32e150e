package testutils

import (
	"encoding/json"
	"fmt"

	"github.com/srg/blerelay/internal/hoststack/sim"
)

// PeripheralBuilder builds simulated target peripherals.
type PeripheralBuilder struct {
	cfg sim.PeripheralConfig
}

// NewPeripheralBuilder starts a peripheral with the given label address.
func NewPeripheralBuilder(address string) *PeripheralBuilder {
	return &PeripheralBuilder{cfg: sim.PeripheralConfig{Address: address}}
}

// TargetPeripheral is a peripheral exposing the default target service and
// characteristic in the standard declaration, value, descriptor layout.
func TargetPeripheral(address string) *PeripheralBuilder {
	return NewPeripheralBuilder(address).
		WithService("180F").
		WithCharacteristic("2A19", "read,notify").
		WithService(TargetServiceUUID).
		WithCharacteristic("2A29", "read").
		WithCharacteristic(TargetValueUUID, "read,notify")
}

// WithService adds a service.
func (b *PeripheralBuilder) WithService(uuid string) *PeripheralBuilder {
	b.cfg.Services = append(b.cfg.Services, sim.ServiceConfig{UUID: uuid})
	return b
}

// WithCharacteristic adds a characteristic to the last added service.
func (b *PeripheralBuilder) WithCharacteristic(uuid, properties string) *PeripheralBuilder {
	return b.WithCharacteristicConfig(sim.CharacteristicConfig{UUID: uuid, Properties: properties})
}

// WithCharacteristicConfig adds a characteristic with explicit handles.
func (b *PeripheralBuilder) WithCharacteristicConfig(c sim.CharacteristicConfig) *PeripheralBuilder {
	if len(b.cfg.Services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}
	last := len(b.cfg.Services) - 1
	b.cfg.Services[last].Characteristics = append(b.cfg.Services[last].Characteristics, c)
	return b
}

// WithFailedConnects makes the first n connection attempts fail.
func (b *PeripheralBuilder) WithFailedConnects(n int) *PeripheralBuilder {
	b.cfg.FailConnects = n
	return b
}

// FromJSON replaces the services with a JSON profile.
func (b *PeripheralBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)

	var profile struct {
		Services []sim.ServiceConfig `json:"services"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &profile); err != nil {
		panic(fmt.Sprintf("PeripheralBuilder.FromJSON: failed to unmarshal: %v", err))
	}
	b.cfg.Services = profile.Services
	return b
}

// Build returns the peripheral configuration.
func (b *PeripheralBuilder) Build() sim.PeripheralConfig {
	return b.cfg
}
