package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/srg/blerelay/internal/rendezvous"
)

// ErrBluetoothOff is returned when the controller is powered down.
var ErrBluetoothOff = errors.New("bluetooth is turned off")

// NormalizeError maps known go-ble error strings to the rendezvous sentinels.
// The original error stays wrapped so its message survives in logs.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	msg := err.Error()
	switch {
	case msg == "central manager has invalid state: have=4 want=5: is Bluetooth turned on?":
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "bluetooth is turned off"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "device not connected"),
		containsIgnoreCase(msg, "disconnected"):
		return fmt.Errorf("%w: %v", rendezvous.ErrNotConnected, err)
	case containsIgnoreCase(msg, "already subscribed"):
		return fmt.Errorf("%w: %v", rendezvous.ErrAlreadySubscribed, err)
	case containsIgnoreCase(msg, "not supported"):
		return fmt.Errorf("%w: %v", rendezvous.ErrNotSupported, err)
	default:
		return err
	}
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func stackError(op string, h rendezvous.ConnHandle, err error) error {
	return &rendezvous.StackError{Op: op, Handle: h, Err: NormalizeError(err)}
}
