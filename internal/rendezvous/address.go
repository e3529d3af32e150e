package rendezvous

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// AddressLen is the size of a BLE device address in bytes.
const AddressLen = 6

// Address is a 6-byte BLE hardware address.
//
// Addresses reported by the host stack are in over-the-air order (least
// significant byte first). Target addresses are kept in the order they are
// written by humans, so "ED:0A:39:F0:0E:1C" is stored as {0xED, ..., 0x1C}.
type Address [AddressLen]byte

// ParseAddress parses "AA:BB:CC:DD:EE:FF" (':' or '-' separated, or plain hex)
// keeping the written byte order.
func ParseAddress(s string) (Address, error) {
	var a Address

	clean := strings.NewReplacer(":", "", "-", "").Replace(strings.TrimSpace(s))
	if len(clean) != AddressLen*2 {
		return a, fmt.Errorf("invalid address %q: want %d bytes", s, AddressLen)
	}

	raw, err := hex.DecodeString(clean)
	if err != nil {
		return a, fmt.Errorf("invalid address %q: %w", s, err)
	}
	copy(a[:], raw)
	return a, nil
}

// MustParseAddress is ParseAddress for constants; it panics on malformed input.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Reverse returns the address with its byte order flipped.
func (a Address) Reverse() Address {
	var r Address
	for i := range a {
		r[i] = a[AddressLen-1-i]
	}
	return r
}

// String formats the bytes in stored order, colon separated, upper case.
func (a Address) String() string {
	var b strings.Builder
	for i, v := range a {
		if i > 0 {
			b.WriteByte(':')
		}
		fmt.Fprintf(&b, "%02X", v)
	}
	return b.String()
}

// IsZero reports whether all bytes are zero.
func (a Address) IsZero() bool {
	return a == Address{}
}
