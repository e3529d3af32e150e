//go:build linux

package goble

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
)

// NewDevice opens HCI device hci<id>.
func NewDevice(id int) (ble.Device, error) {
	dev, err := linux.NewDevice(ble.OptDeviceID(id))
	if err != nil {
		return nil, NormalizeError(err)
	}
	return dev, nil
}
