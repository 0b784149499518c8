package backtest

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

// Replacements lists the phrases in a forecast prompt that name its target
// period. Literals are replaced verbatim; Patterns are case-insensitive
// regular expressions.
type Replacements struct {
	Literals []string `yaml:"literals" mapstructure:"literals"`
	Patterns []string `yaml:"patterns" mapstructure:"patterns"`

	compiled []*regexp.Regexp
}

// Empty reports whether there is nothing to replace.
func (r Replacements) Empty() bool {
	return len(r.Literals) == 0 && len(r.Patterns) == 0
}

// Compile validates and caches the patterns.
func (r *Replacements) Compile() error {
	r.compiled = make([]*regexp.Regexp, 0, len(r.Patterns))
	for _, p := range r.Patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return eris.Wrapf(err, "backtest: compile period pattern %q", p)
		}
		r.compiled = append(r.compiled, re)
	}
	return nil
}

// RewritePeriod replaces every configured period phrase in prompt with
// target. Invalid patterns are skipped; call Compile to surface them.
func RewritePeriod(prompt string, r Replacements, target string) string {
	for _, lit := range r.Literals {
		if lit == "" {
			continue
		}
		prompt = strings.ReplaceAll(prompt, lit, target)
	}

	patterns := r.compiled
	if len(patterns) != len(r.Patterns) {
		patterns = patterns[:0:0]
		for _, p := range r.Patterns {
			if re, err := regexp.Compile("(?i)" + p); err == nil {
				patterns = append(patterns, re)
			}
		}
	}
	for _, re := range patterns {
		prompt = re.ReplaceAllLiteralString(prompt, target)
	}
	return prompt
}
