//go:build !linux && !darwin

package goble

import (
	"fmt"
	"runtime"

	"github.com/go-ble/ble"
	"github.com/srg/blerelay/internal/rendezvous"
)

// NewDevice reports that no go-ble backend exists for this platform.
func NewDevice(int) (ble.Device, error) {
	return nil, fmt.Errorf("%w: no bluetooth backend for %s", rendezvous.ErrNotSupported, runtime.GOOS)
}
