package sim

import (
	"fmt"

	"github.com/srg/blerelay/internal/rendezvous"
)

// Play runs a scenario against handle: the node converges, the phone attaches
// and subscribes if the scenario has one, then every scripted value is pushed.
// Events are drained after each step.
func (s *Stack) Play(sc *Scenario, handle func(rendezvous.Event)) error {
	s.Drain(handle)

	if sc.Phone {
		h, err := s.AcceptPhone()
		if err != nil {
			return fmt.Errorf("phone: %w", err)
		}
		s.Drain(handle)
		if err := s.SetPhoneSubscribed(h, true); err != nil {
			return fmt.Errorf("phone: %w", err)
		}
		s.Drain(handle)
	}

	for i, v := range sc.Notify {
		if err := s.Push(v.Address, v.Payload); err != nil {
			return fmt.Errorf("notify %d: %w", i, err)
		}
		s.Drain(handle)
	}
	return nil
}
