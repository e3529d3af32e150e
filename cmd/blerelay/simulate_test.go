package main

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/srg/blerelay/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type SimulateTestSuite struct {
	CommandTestSuite
}

func TestSimulateTestSuite(t *testing.T) {
	suite.Run(t, new(SimulateTestSuite))
}

func (s *SimulateTestSuite) TestTextReportsRelayedValues() {
	// GOAL: Verify a full scenario converges and the summary lists what the
	// phone got and every phase change
	//
	// TEST SCENARIO: two targets, the second fails its first dial, phone
	// subscribes, each target notifies once → operational, two values relayed

	out, _, err := s.ExecuteCommand("simulate", "--log-level", "error", "testdata/two_targets.json")
	s.Require().NoError(err)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	s.Require().NotEmpty(lines)
	s.Equal(`connecting   slot0 ED:0A:39:F0:0E:1C scanning  slot1 D9:42:7E:11:5A:C3 idle  phone none  value ""`, lines[0])

	idx := strings.Index(out, "\nPhone received:\n")
	s.Require().GreaterOrEqual(idx, 0, "summary MUST be printed:\n%s", out)

	status := strings.Split(strings.TrimSpace(out[:idx]), "\n")
	s.Equal(`operational  slot0 ED:0A:39:F0:0E:1C subscribed  slot1 D9:42:7E:11:5A:C3 subscribed  phone subscribed  value "Device 1: 0b ff "`,
		status[len(status)-1])

	expected := `
Phone received:
  "Device 0: 0a "
  "Device 1: 0b ff "
Transitions:
  connecting -> discovering (both targets connected)
  discovering -> operational (subscriptions established)
`
	testutils.NewTextAsserter(s.T()).Assert(out[idx:], expected)
}

func (s *SimulateTestSuite) TestTextWithoutPhone() {
	out, _, err := s.ExecuteCommand("simulate", "--log-level", "error", "testdata/no_phone.json")
	s.Require().NoError(err)

	s.Contains(out, "Phone received:\n  (nothing)\n")
	s.Contains(out, `phone none  value "Device 0: 01 02 "`)
}

func (s *SimulateTestSuite) TestJSONLines() {
	out, _, err := s.ExecuteCommand("simulate", "--log-level", "error", "--format", "json", "testdata/two_targets.json")
	s.Require().NoError(err)
	s.NotContains(out, "Phone received:")

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	s.Require().Greater(len(lines), 2)
	for i, line := range lines {
		s.True(json.Valid([]byte(line)), "line %d MUST be a JSON document: %s", i, line)
	}
	s.True(strings.HasPrefix(lines[0], `{"phase":"connecting","live":false,"active_slot":0,`), lines[0])

	testutils.NewJSONAsserter(s.T()).Assert(lines[len(lines)-1], `{
		"phase": "operational",
		"live": true,
		"slots": [
			{"target": "ED:0A:39:F0:0E:1C", "state": "subscribed", "handle": 1, "value_handle": 9, "ccc_handle": 10},
			{"target": "D9:42:7E:11:5A:C3", "state": "subscribed", "handle": 2, "value_handle": 9, "ccc_handle": 10}
		],
		"phone": {"handle": 3, "subscribed": true},
		"aggregate": "Device 1: 0b ff "
	}`)
}

func (s *SimulateTestSuite) TestErrors() {
	tests := []struct {
		name     string
		args     []string
		contains string
	}{
		{"missing scenario", []string{"simulate", "testdata/absent.json"}, "absent.json"},
		{"bad format", []string{"simulate", "--format", "yaml", "testdata/two_targets.json"}, "invalid format 'yaml'"},
		{"no argument", []string{"simulate"}, "accepts 1 arg(s)"},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			resetFlags(rootCmd)
			_, _, err := s.ExecuteCommand(tt.args...)
			s.Require().Error(err)
			s.Contains(err.Error(), tt.contains)
		})
	}
}

func (s *SimulateTestSuite) TestMalformedScenario() {
	path := s.WriteFile("bad.json", `{"peripherals": [{"address": "nope"}]}`)

	_, _, err := s.ExecuteCommand("simulate", "--log-level", "error", path)
	s.Error(err)
}
