package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/blerelay/internal/rendezvous"
)

// wireAddress converts a go-ble address, printed most significant byte first,
// into the over-the-air order the node expects. CoreBluetooth reports opaque
// peripheral identifiers instead of MAC addresses; those fail to parse.
func wireAddress(a ble.Addr) (rendezvous.Address, error) {
	if a == nil {
		return rendezvous.Address{}, rendezvous.ErrUnknownHandle
	}
	display, err := rendezvous.ParseAddress(a.String())
	if err != nil {
		return rendezvous.Address{}, err
	}
	return display.Reverse(), nil
}

// dialAddress is the inverse of wireAddress.
func dialAddress(a rendezvous.Address) ble.Addr {
	return ble.NewAddr(a.Reverse().String())
}
