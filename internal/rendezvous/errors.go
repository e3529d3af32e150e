package rendezvous

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the node and host stack implementations.
var (
	// ErrAlreadySubscribed is a success alias returned by HostStack.Subscribe.
	ErrAlreadySubscribed = errors.New("already subscribed")
	// ErrUnknownHandle is returned for handles the stack does not know.
	ErrUnknownHandle = errors.New("unknown connection handle")
	// ErrNotSubscribed is returned by Notify when the phone has not enabled notifications.
	ErrNotSubscribed = errors.New("notifications not enabled by peer")
	// ErrNotConnected is returned for operations on a dropped connection.
	ErrNotConnected = errors.New("not connected")
	// ErrNotSupported is returned by stacks that lack an operation.
	ErrNotSupported = errors.New("not supported")
)

// StackError records a failed host stack operation.
type StackError struct {
	Op     string
	Handle ConnHandle
	Err    error
}

func (e *StackError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Handle == 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s (handle %d): %v", e.Op, e.Handle, e.Err)
}

func (e *StackError) Unwrap() error {
	return e.Err
}

// IsAlreadySubscribed reports whether err is the already-subscribed success alias.
func IsAlreadySubscribed(err error) bool {
	return errors.Is(err, ErrAlreadySubscribed)
}
