package testutils

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// recorder captures failures instead of failing the enclosing test.
type recorder struct {
	failures []string
}

func (r *recorder) Errorf(format string, args ...interface{}) {
	r.failures = append(r.failures, fmt.Sprintf(format, args...))
}

func TestTextAsserterDefaults(t *testing.T) {
	opts := NewTextAsserter(t).Options()
	assert.True(t, opts.TrimSpace)
	assert.True(t, opts.IgnoreTrailingWhitespace)
	assert.False(t, opts.IgnoreEmptyLines)
	assert.False(t, opts.EnableColors)
}

func TestTextAsserterNormalization(t *testing.T) {
	tests := []struct {
		name     string
		opts     []TextOption
		actual   string
		expected string
		match    bool
	}{
		{"surrounding blank lines", nil, "\n\nslot 0\n", "slot 0", true},
		{"trailing spaces", nil, "Device 0: 0a   \nok", "Device 0: 0a\nok", true},
		{"trailing spaces kept", []TextOption{WithIgnoreTrailingWhitespace(false)}, "a  \nb", "a\nb", false},
		{"empty lines differ", nil, "a\n\nb", "a\nb", false},
		{"empty lines ignored", []TextOption{WithIgnoreEmptyLines(true)}, "a\n\nb", "a\nb", true},
		{"no trim", []TextOption{WithTrimSpace(false), WithIgnoreTrailingWhitespace(false)}, "a\n", "a", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &recorder{}
			ok := NewTextAsserter(r, tt.opts...).Assert(tt.actual, tt.expected)
			assert.Equal(t, tt.match, ok)
			assert.Equal(t, tt.match, len(r.failures) == 0)
		})
	}
}

func TestTextAsserterDiff(t *testing.T) {
	d := NewTextAsserter(t).Diff("phase operational\nvalue 0b", "phase operational\nvalue 0a")
	assert.Contains(t, d, "--- expected")
	assert.Contains(t, d, "+++ actual")
	assert.Contains(t, d, "-value 0a")
	assert.Contains(t, d, "+value 0b")

	colored := NewTextAsserter(t, WithEnableColors(true)).Diff("a b", "a c")
	assert.Contains(t, colored, "\x1b[")
	assert.Contains(t, colored, "a·b")
}

func TestJSONAsserter(t *testing.T) {
	actual := `{"phase":"operational","live":true,"slots":[{"handle":1,"state":"subscribed"},{"handle":2,"state":"subscribed"}],"aggregate":"Device 1: 0b "}`

	tests := []struct {
		name     string
		opts     []Option
		expected string
		match    bool
	}{
		{"subset", nil, `{"phase":"operational"}`, true},
		{"nested subset", nil, `{"slots":[{"state":"subscribed"},{"handle":2}]}`, true},
		{"value differs", nil, `{"phase":"connecting"}`, false},
		{"presence placeholder", nil, `{"aggregate":"<<PRESENCE>>","live":true}`, true},
		{"placeholder for a missing key", nil, `{"phone":"<<PRESENCE>>"}`, false},
		{"placeholder disabled", []Option{WithAllowPresencePlaceholder(false)}, `{"aggregate":"<<PRESENCE>>"}`, false},
		{"strict keys", []Option{WithIgnoreExtraKeys(false)}, `{"phase":"operational"}`, false},
		{"ignored field", []Option{WithIgnoredFields("handle"), WithIgnoreExtraKeys(false)},
			`{"phase":"operational","live":true,"slots":[{"state":"subscribed"},{"state":"subscribed"}],"aggregate":"Device 1: 0b "}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &recorder{}
			ok := NewJSONAsserter(r, tt.opts...).Assert(actual, tt.expected)
			assert.Equal(t, tt.match, ok, strings.Join(r.failures, "\n"))
		})
	}
}

func TestJSONAsserterInvalidInput(t *testing.T) {
	ja := NewJSONAsserter(t)
	assert.Contains(t, ja.Diff(`{}`, `{`), "invalid expected JSON")
	assert.Contains(t, ja.Diff(`nope`, `{}`), "invalid actual JSON")
	assert.Empty(t, ja.Diff(MustJSON(map[string]int{"a": 1}), `{"a":1}`))
}

func TestPeripheralBuilder(t *testing.T) {
	cfg := TargetPeripheral(TargetA).WithFailedConnects(2).Build()
	assert.Equal(t, TargetA, cfg.Address)
	assert.Equal(t, 2, cfg.FailConnects)
	assert.Len(t, cfg.Services, 2)
	assert.Equal(t, TargetServiceUUID, cfg.Services[1].UUID)
	assert.Equal(t, TargetValueUUID, cfg.Services[1].Characteristics[1].UUID)

	cfg = NewPeripheralBuilder(TargetB).FromJSON(`{"services":[{"uuid":%q,"characteristics":[{"uuid":"2a19","ccc_handle":%d}]}]}`, TargetServiceUUID, 7).Build()
	assert.Len(t, cfg.Services, 1)
	assert.Equal(t, uint16(7), cfg.Services[0].Characteristics[0].CCCHandle)

	assert.Panics(t, func() { NewPeripheralBuilder(TargetA).WithCharacteristic("2a19", "read") })
	assert.Panics(t, func() { NewPeripheralBuilder(TargetA).FromJSON("{") })
}
