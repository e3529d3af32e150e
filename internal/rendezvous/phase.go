package rendezvous

// Phase is the process-wide rendezvous state.
type Phase int

const (
	PhaseConnecting Phase = iota
	PhaseDiscovering
	PhaseOperational
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseDiscovering:
		return "discovering"
	case PhaseOperational:
		return "operational"
	default:
		return "unknown"
	}
}

// MarshalText renders the phase name in JSON and YAML output.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// SlotFlags is the part of a slot the phase controller looks at.
type SlotFlags struct {
	Connected            bool
	NotificationsEnabled bool
}

func (f SlotFlags) live() bool {
	return f.Connected && f.NotificationsEnabled
}

// NextPhase is the forward transition function. It only ever moves one step
// forward; the reset to PhaseConnecting happens on target disconnect and is
// not expressed here.
func NextPhase(current Phase, flags [SlotCount]SlotFlags) Phase {
	switch current {
	case PhaseConnecting:
		if flags[0].Connected && flags[1].Connected {
			return PhaseDiscovering
		}
	case PhaseDiscovering:
		if flags[0].live() && flags[1].live() {
			return PhaseOperational
		}
	}
	return current
}
