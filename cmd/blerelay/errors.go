package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/srg/blerelay/internal/hoststack/goble"
	"github.com/srg/blerelay/internal/rendezvous"
)

// Command-level errors
var (
	// ErrNoMatch is returned by match when an address satisfies no slot.
	ErrNoMatch = errors.New("DEVICE NOT FOUND")
	// ErrInvalidFormat is returned for an unknown --format value.
	ErrInvalidFormat = errors.New("invalid format")
)

// FormatUserError turns an error into a message for the terminal.
func FormatUserError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, goble.ErrBluetoothOff):
		return "Bluetooth is turned off. Turn it on and try again."
	case errors.Is(err, os.ErrPermission):
		return fmt.Sprintf("%v (raw HCI access needs root or CAP_NET_ADMIN)", err)
	case errors.Is(err, rendezvous.ErrNotSupported):
		return fmt.Sprintf("%v (use 'blerelay simulate' on this platform)", err)
	default:
		return err.Error()
	}
}
