package sim

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-ble/ble"
	"github.com/srg/blerelay/internal/rendezvous"
)

// CharacteristicConfig describes one characteristic of a simulated peripheral.
// Zero handles are assigned in attribute table order: declaration, value,
// then the configuration descriptor for notifiable characteristics.
type CharacteristicConfig struct {
	UUID        string `json:"uuid"`
	Properties  string `json:"properties,omitempty"` // e.g. "read,notify"
	Handle      uint16 `json:"handle,omitempty"`
	ValueHandle uint16 `json:"value_handle,omitempty"`
	CCCHandle   uint16 `json:"ccc_handle,omitempty"`
}

// ServiceConfig describes one primary service.
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Handle          uint16                 `json:"handle,omitempty"`
	EndHandle       uint16                 `json:"end_handle,omitempty"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// PeripheralConfig describes a simulated target. Address is written the way
// a person would read it off the device label; it is advertised reversed.
type PeripheralConfig struct {
	Address      string          `json:"address"`
	RSSI         int             `json:"rssi,omitempty"`
	FailConnects int             `json:"fail_connects,omitempty"`
	Services     []ServiceConfig `json:"services"`
}

// Scenario is a set of peripherals plus the phone behaviour for a simulation.
type Scenario struct {
	Peripherals []PeripheralConfig `json:"peripherals"`
	Phone       bool               `json:"phone,omitempty"`
	Notify      []ScriptedValue    `json:"notify,omitempty"`
}

// ScriptedValue is a notification a peripheral sends once subscribed.
type ScriptedValue struct {
	Address string `json:"address"`
	Payload []byte `json:"payload"`
}

// LoadScenario reads a JSON scenario from path.
func LoadScenario(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()
	return ReadScenario(f)
}

// ReadScenario decodes a JSON scenario.
func ReadScenario(r io.Reader) (*Scenario, error) {
	var s Scenario
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	return &s, nil
}

// attribute tables built from a PeripheralConfig
type peripheral struct {
	written      rendezvous.Address
	rssi         int
	failConnects int
	services     []service
}

type service struct {
	attr  rendezvous.Attribute
	chars []characteristic
}

type characteristic struct {
	attr     rendezvous.Attribute
	ccc      uint16
	notifies bool
}

func buildPeripheral(cfg PeripheralConfig) (*peripheral, error) {
	addr, err := rendezvous.ParseAddress(cfg.Address)
	if err != nil {
		return nil, err
	}
	p := &peripheral{written: addr, rssi: cfg.RSSI, failConnects: cfg.FailConnects}
	if p.rssi == 0 {
		p.rssi = -60
	}

	next := uint16(1)
	for _, sc := range cfg.Services {
		u, err := ble.Parse(sc.UUID)
		if err != nil {
			return nil, fmt.Errorf("%s: service %q: %w", cfg.Address, sc.UUID, err)
		}
		if sc.Handle != 0 {
			next = sc.Handle
		}
		svc := service{attr: rendezvous.Attribute{UUID: u, Handle: next}}
		next++

		for _, cc := range sc.Characteristics {
			cu, err := ble.Parse(cc.UUID)
			if err != nil {
				return nil, fmt.Errorf("%s: characteristic %q: %w", cfg.Address, cc.UUID, err)
			}
			if cc.Handle != 0 {
				next = cc.Handle
			}
			c := characteristic{
				attr:     rendezvous.Attribute{UUID: cu, Handle: next, ValueHandle: cc.ValueHandle},
				notifies: cc.Properties == "" || strings.Contains(cc.Properties, "notify"),
			}
			if c.attr.ValueHandle == 0 {
				c.attr.ValueHandle = c.attr.Handle + 1
			}
			next = c.attr.ValueHandle + 1
			if c.notifies {
				c.ccc = cc.CCCHandle
				if c.ccc == 0 {
					c.ccc = next
				}
				next = c.ccc + 1
			}
			svc.chars = append(svc.chars, c)
		}

		svc.attr.EndHandle = sc.EndHandle
		if svc.attr.EndHandle == 0 {
			svc.attr.EndHandle = next - 1
		}
		next = svc.attr.EndHandle + 1
		p.services = append(p.services, svc)
	}
	return p, nil
}

// advertised is the address as reported over the air.
func (p *peripheral) advertised() rendezvous.Address {
	return p.written.Reverse()
}

func (p *peripheral) characteristic(valueHandle uint16) (characteristic, bool) {
	for _, s := range p.services {
		for _, c := range s.chars {
			if c.attr.ValueHandle == valueHandle {
				return c, true
			}
		}
	}
	return characteristic{}, false
}
