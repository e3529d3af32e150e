package testutils

import (
	"encoding/json"
	"fmt"

	"github.com/mcuadros/go-defaults"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// PresencePlaceholder in expected JSON matches any actual value.
const PresencePlaceholder = "<<PRESENCE>>"

func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

type JSONAssertOptions struct {
	IgnoreExtraKeys          bool `default:"true"`
	AllowPresencePlaceholder bool `default:"true"`
	IgnoredFields            []string
}

// Option configures a JSONAsserter.
type Option func(*JSONAssertOptions)

// JSONAsserter compares JSON documents structurally with gojsondiff.
type JSONAsserter struct {
	t       TestingT
	options JSONAssertOptions
}

func NewJSONAsserter(t TestingT, opts ...Option) *JSONAsserter {
	o := JSONAssertOptions{}
	defaults.SetDefaults(&o)
	for _, opt := range opts {
		opt(&o)
	}
	return &JSONAsserter{t: t, options: o}
}

func (ja *JSONAsserter) Options() JSONAssertOptions {
	return ja.options
}

// Assert compares actualJSON against expectedJSON.
func (ja *JSONAsserter) Assert(actualJSON, expectedJSON string) bool {
	if d := ja.Diff(actualJSON, expectedJSON); d != "" {
		ja.t.Errorf("JSON assertion failed:\n%s", d)
		return false
	}
	return true
}

// AssertValue marshals v and compares it against expectedJSON.
func (ja *JSONAsserter) AssertValue(v any, expectedJSON string) bool {
	return ja.Assert(MustJSON(v), expectedJSON)
}

// Diff returns an ASCII diff, empty when the documents match.
func (ja *JSONAsserter) Diff(actualJSON, expectedJSON string) string {
	var expected, actual map[string]interface{}
	if err := json.Unmarshal([]byte(expectedJSON), &expected); err != nil {
		return fmt.Sprintf("invalid expected JSON: %v", err)
	}
	if err := json.Unmarshal([]byte(actualJSON), &actual); err != nil {
		return fmt.Sprintf("invalid actual JSON: %v", err)
	}

	if ja.options.AllowPresencePlaceholder {
		fillPlaceholders(expected, actual)
	}
	for _, f := range ja.options.IgnoredFields {
		dropField(expected, f)
		dropField(actual, f)
	}
	if ja.options.IgnoreExtraKeys {
		pruneExtraKeys(actual, expected)
	}

	diff := gojsondiff.New().CompareObjects(expected, actual)
	if !diff.Modified() {
		return ""
	}

	f := formatter.NewAsciiFormatter(expected, formatter.AsciiFormatterConfig{ShowArrayIndex: true})
	out, err := f.Format(diff)
	if err != nil {
		return fmt.Sprintf("JSON diff formatting failed: %v", err)
	}
	return out
}

// fillPlaceholders copies actual values over PresencePlaceholder entries
// whose key exists in actual.
func fillPlaceholders(expected, actual interface{}) {
	switch exp := expected.(type) {
	case map[string]interface{}:
		act, ok := actual.(map[string]interface{})
		if !ok {
			return
		}
		for k, v := range exp {
			if s, ok := v.(string); ok && s == PresencePlaceholder {
				if av, present := act[k]; present {
					exp[k] = av
				}
				continue
			}
			fillPlaceholders(v, act[k])
		}
	case []interface{}:
		act, ok := actual.([]interface{})
		if !ok {
			return
		}
		for i := range exp {
			if i < len(act) {
				fillPlaceholders(exp[i], act[i])
			}
		}
	}
}

func dropField(v interface{}, field string) {
	switch t := v.(type) {
	case map[string]interface{}:
		delete(t, field)
		for _, child := range t {
			dropField(child, field)
		}
	case []interface{}:
		for _, child := range t {
			dropField(child, field)
		}
	}
}

// pruneExtraKeys removes keys from actual that expected does not mention.
func pruneExtraKeys(actual, expected interface{}) {
	switch exp := expected.(type) {
	case map[string]interface{}:
		act, ok := actual.(map[string]interface{})
		if !ok {
			return
		}
		for k := range act {
			if _, keep := exp[k]; !keep {
				delete(act, k)
			}
		}
		for k := range exp {
			pruneExtraKeys(act[k], exp[k])
		}
	case []interface{}:
		act, ok := actual.([]interface{})
		if !ok {
			return
		}
		for i := range exp {
			if i < len(act) {
				pruneExtraKeys(act[i], exp[i])
			}
		}
	}
}

func WithIgnoreExtraKeys(ignore bool) Option {
	return func(o *JSONAssertOptions) { o.IgnoreExtraKeys = ignore }
}

func WithAllowPresencePlaceholder(allow bool) Option {
	return func(o *JSONAssertOptions) { o.AllowPresencePlaceholder = allow }
}

func WithIgnoredFields(fields ...string) Option {
	return func(o *JSONAssertOptions) { o.IgnoredFields = append(o.IgnoredFields, fields...) }
}
