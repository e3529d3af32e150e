//go:build darwin

package goble

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
)

// NewDevice opens the CoreBluetooth managers. The device id is ignored.
func NewDevice(int) (ble.Device, error) {
	dev, err := darwin.NewDevice()
	if err != nil {
		return nil, NormalizeError(err)
	}
	return dev, nil
}
