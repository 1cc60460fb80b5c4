// Package vibedsl parses textual haptic patterns into scheduled intensity
// sequences, e.g.
//
//	set(1.0) wait(150ms) set(0.3) wait(150ms) set(0)
//
// Patterns appear in agent configuration (named presets) and on the CLI.
package vibedsl

import (
	"fmt"
	"time"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/openmotion/vrio/vrinput"
)

var (
	ruleIdent      = lexer.SimpleRule{Name: "Ident", Pattern: `[a-z][\w\d]*`}
	ruleDuration   = lexer.SimpleRule{Name: "Duration", Pattern: `\d+(\.\d+)?(ns|us|µs|ms|s|m|h)`}
	ruleNumber     = lexer.SimpleRule{Name: "Number", Pattern: `[-+]?(\d*\.)?\d+`}
	rulePunct      = lexer.SimpleRule{Name: "Punct", Pattern: `[(),;]`}
	ruleWhitespace = lexer.SimpleRule{Name: "Whitespace", Pattern: `[ \t\r\n]+`}
)

var patternLexer = lexer.MustSimple([]lexer.SimpleRule{
	ruleWhitespace,
	ruleDuration,
	ruleNumber,
	ruleIdent,
	rulePunct,
})

var patternParser = participle.MustBuild[Pattern](
	participle.Lexer(patternLexer),
	participle.Elide(ruleWhitespace.Name),
)

// Duration is a time.Duration parsed from Go duration syntax.
type Duration time.Duration

func (d *Duration) Capture(values []string) error {
	parsed, err := time.ParseDuration(values[0])
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Step is one pattern element: either an intensity command or a delay.
type Step struct {
	Set  *float64  `parser:"'set' '(' @Number ')' ';'?"`
	Wait *Duration `parser:"| 'wait' '(' @Duration ')' ';'?"`
}

// Pattern is an ordered haptic intensity sequence.
type Pattern struct {
	Steps []Step `parser:"@@+"`
}

// Parse compiles a pattern string. Intensities must stay within [0, 1].
func Parse(input string) (Pattern, error) {
	result, err := patternParser.ParseString("", input)
	if err != nil {
		return Pattern{}, err
	}
	for _, step := range result.Steps {
		if step.Set != nil && (*step.Set < 0 || *step.Set > 1) {
			return Pattern{}, fmt.Errorf("intensity %v out of range [0, 1]", *step.Set)
		}
		if step.Wait != nil && *step.Wait < 0 {
			return Pattern{}, fmt.Errorf("negative wait %v", time.Duration(*step.Wait))
		}
	}
	return *result, nil
}

// Apply schedules the pattern onto a vibration channel builder.
func (p Pattern) Apply(b *vrinput.VibeBuilder) {
	for _, step := range p.Steps {
		switch {
		case step.Set != nil:
			b.Set(*step.Set)
		case step.Wait != nil:
			b.Wait(time.Duration(*step.Wait))
		}
	}
}

// Duration returns the total virtual time the pattern spans.
func (p Pattern) Duration() time.Duration {
	var total time.Duration
	for _, step := range p.Steps {
		if step.Wait != nil {
			total += time.Duration(*step.Wait)
		}
	}
	return total
}
