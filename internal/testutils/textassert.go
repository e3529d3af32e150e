package testutils

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/mcuadros/go-defaults"
)

// TestingT is the subset of testing.T the asserters need.
type TestingT interface {
	Errorf(format string, args ...interface{})
}

type TextAssertOptions struct {
	TrimSpace                bool `default:"true"`
	IgnoreTrailingWhitespace bool `default:"true"`
	IgnoreEmptyLines         bool `default:"false"`
	EnableColors             bool `default:"false"`
}

// TextOption configures a TextAsserter.
type TextOption func(*TextAssertOptions)

// TextAsserter compares rendered CLI output and prints a unified diff on
// mismatch.
type TextAsserter struct {
	t       TestingT
	options TextAssertOptions
}

func NewTextAsserter(t TestingT, opts ...TextOption) *TextAsserter {
	o := TextAssertOptions{}
	defaults.SetDefaults(&o)
	for _, opt := range opts {
		opt(&o)
	}
	return &TextAsserter{t: t, options: o}
}

func (ta *TextAsserter) Options() TextAssertOptions {
	return ta.options
}

// Assert reports a diff when actual differs from expected after normalization.
func (ta *TextAsserter) Assert(actual, expected string) bool {
	if d := ta.Diff(actual, expected); d != "" {
		ta.t.Errorf("Text assertion failed - unified diff:\n%s", d)
		return false
	}
	return true
}

// Diff returns a unified diff, empty when the texts match.
func (ta *TextAsserter) Diff(actual, expected string) string {
	a, e := ta.normalize(actual), ta.normalize(expected)
	if a == e {
		return ""
	}
	edits := myers.ComputeEdits("", e, a)
	return ta.colorize(fmt.Sprint(gotextdiff.ToUnified("expected", "actual", e, edits)))
}

func (ta *TextAsserter) colorize(diff string) string {
	if !ta.options.EnableColors {
		return diff
	}

	add := color.New(color.FgGreen)
	del := color.New(color.FgRed)
	hunk := color.New(color.FgCyan)
	for _, c := range []*color.Color{add, del, hunk} {
		c.EnableColor()
	}

	lines := strings.Split(diff, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"):
		case strings.HasPrefix(line, "@@"):
			lines[i] = hunk.Sprint(line)
		case strings.HasPrefix(line, "-"):
			lines[i] = del.Sprint(visibleSpace(line))
		case strings.HasPrefix(line, "+"):
			lines[i] = add.Sprint(visibleSpace(line))
		}
	}
	return strings.Join(lines, "\n")
}

// visibleSpace makes whitespace differences readable in colored diffs.
func visibleSpace(line string) string {
	return strings.NewReplacer(" ", "·", "\t", "→").Replace(line)
}

func (ta *TextAsserter) normalize(text string) string {
	if ta.options.TrimSpace {
		text = strings.TrimSpace(text)
	}

	var out []string
	for _, line := range strings.Split(text, "\n") {
		if ta.options.IgnoreTrailingWhitespace {
			line = strings.TrimRight(line, " \t")
		}
		if ta.options.IgnoreEmptyLines && line == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func WithTrimSpace(trim bool) TextOption {
	return func(o *TextAssertOptions) { o.TrimSpace = trim }
}

func WithIgnoreTrailingWhitespace(ignore bool) TextOption {
	return func(o *TextAssertOptions) { o.IgnoreTrailingWhitespace = ignore }
}

func WithIgnoreEmptyLines(ignore bool) TextOption {
	return func(o *TextAssertOptions) { o.IgnoreEmptyLines = ignore }
}

func WithEnableColors(enable bool) TextOption {
	return func(o *TextAssertOptions) { o.EnableColors = enable }
}
