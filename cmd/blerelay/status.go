package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/fatih/color"
	"github.com/srg/blerelay/internal/rendezvous"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const (
	formatText = "text"
	formatJSON = "json"
)

var validFormats = []string{formatText, formatJSON}

func validateFormat(format string) error {
	if slices.Contains(validFormats, format) {
		return nil
	}
	return fmt.Errorf("%w '%s': must be one of %v", ErrInvalidFormat, format, validFormats)
}

var phaseColors = map[rendezvous.Phase]*color.Color{
	rendezvous.PhaseConnecting:  color.New(color.FgYellow),
	rendezvous.PhaseDiscovering: color.New(color.FgCyan),
	rendezvous.PhaseOperational: color.New(color.FgGreen, color.Bold),
}

// statusPrinter writes one line per distinct snapshot.
type statusPrinter struct {
	w      io.Writer
	format string
	last   string
}

func newStatusPrinter(w io.Writer, format string) *statusPrinter {
	return &statusPrinter{w: w, format: format}
}

func (p *statusPrinter) Print(s rendezvous.Snapshot) error {
	var line string
	if p.format == formatJSON {
		b, err := json.Marshal(snapshotDocument(s))
		if err != nil {
			return err
		}
		line = string(b)
	} else {
		line = statusLine(s)
	}

	if line == p.last {
		return nil
	}
	p.last = line
	_, err := fmt.Fprintln(p.w, line)
	return err
}

func statusLine(s rendezvous.Snapshot) string {
	phase := fmt.Sprintf("%-11s", s.Phase)
	if c, ok := phaseColors[s.Phase]; ok {
		phase = c.Sprint(phase)
	}

	line := phase
	for i, slot := range s.Slots {
		line += fmt.Sprintf("  slot%d %s %s", i, slot.Target, slotState(s, rendezvous.SlotIndex(i)))
	}
	return line + fmt.Sprintf("  phone %s  value %q", phoneState(s.Phone), s.Aggregate)
}

func slotState(s rendezvous.Snapshot, i rendezvous.SlotIndex) string {
	slot := s.Slots[i]
	switch {
	case slot.NotificationsEnabled:
		return "subscribed"
	case slot.Connected:
		return "connected"
	case s.ActiveSlot == i && s.Dialing:
		return "dialing"
	case s.ActiveSlot == i && s.Scanning:
		return "scanning"
	default:
		return "idle"
	}
}

func phoneState(p *rendezvous.PhoneLink) string {
	switch {
	case p == nil:
		return "none"
	case p.Subscribed:
		return "subscribed"
	default:
		return "connected"
	}
}

// snapshotDocument lays a snapshot out with a fixed key order.
func snapshotDocument(s rendezvous.Snapshot) *orderedmap.OrderedMap[string, any] {
	doc := orderedmap.New[string, any]()
	doc.Set("phase", s.Phase.String())
	doc.Set("live", s.Live())
	doc.Set("active_slot", int(s.ActiveSlot))
	doc.Set("scanning", s.Scanning)
	doc.Set("dialing", s.Dialing)

	slots := make([]*orderedmap.OrderedMap[string, any], 0, len(s.Slots))
	for i, st := range s.Slots {
		m := orderedmap.New[string, any]()
		m.Set("target", st.Target)
		m.Set("state", slotState(s, rendezvous.SlotIndex(i)))
		m.Set("handle", int(st.Handle))
		m.Set("value_handle", st.ValueHandle)
		m.Set("ccc_handle", st.CCCHandle)
		slots = append(slots, m)
	}
	doc.Set("slots", slots)

	if s.Phone != nil {
		phone := orderedmap.New[string, any]()
		phone.Set("handle", int(s.Phone.Handle))
		phone.Set("subscribed", s.Phone.Subscribed)
		doc.Set("phone", phone)
	} else {
		doc.Set("phone", nil)
	}

	doc.Set("aggregate", s.Aggregate)
	return doc
}
