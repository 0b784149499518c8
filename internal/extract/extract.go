// Package extract pulls a bounded numeric forecast out of free-text model output.
package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// DefaultMarkerPattern matches the labeled answer line the prompts ask for.
const DefaultMarkerPattern = `(?i)final\s+forecast\s*:\s*\**\s*(\d+(?:\.\d+)?)`

// numberPattern matches standalone numeric tokens: an integer optionally
// followed by a decimal part.
var numberPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// Range is the inclusive interval a forecast must fall in.
type Range struct {
	Min float64 `yaml:"min" mapstructure:"min"`
	Max float64 `yaml:"max" mapstructure:"max"`
}

// Contains reports whether v lies within the range.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Validate checks that the range is well formed.
func (r Range) Validate() error {
	if math.IsNaN(r.Min) || math.IsNaN(r.Max) {
		return eris.New("extract: range bounds must be numbers")
	}
	if r.Min > r.Max {
		return eris.Errorf("extract: range min %.2f exceeds max %.2f", r.Min, r.Max)
	}
	return nil
}

// Outcome is the verdict a Strategy reaches on a piece of text.
type Outcome int

const (
	// NoMatch means the strategy found nothing; the next strategy is tried.
	NoMatch Outcome = iota
	// Accepted means the strategy produced a validated value.
	Accepted
	// Rejected means the strategy claimed the text but its value failed
	// validation; extraction stops with no value.
	Rejected
)

// Strategy inspects text and proposes a value.
type Strategy struct {
	Name string
	Find func(text string) (float64, Outcome)
}

// Options configures an Extractor.
type Options struct {
	Range Range
	// MarkerPattern is a regular expression whose first group captures the
	// labeled number. Empty uses DefaultMarkerPattern.
	MarkerPattern string
	// PreferredShape, when set, is matched against each numeric token to
	// favor candidates that look like a domain value (e.g. `^\d\.\d$`).
	PreferredShape string
}

// Extractor runs an ordered list of strategies until one decides.
type Extractor struct {
	rng        Range
	strategies []Strategy
}

// New builds an Extractor with the standard strategy order: labeled
// marker, preferred shape (when configured), last in-range candidate.
func New(opts Options) (*Extractor, error) {
	if err := opts.Range.Validate(); err != nil {
		return nil, err
	}

	pattern := opts.MarkerPattern
	if pattern == "" {
		pattern = DefaultMarkerPattern
	}
	marker, err := regexp.Compile(pattern)
	if err != nil {
		return nil, eris.Wrapf(err, "extract: compile marker pattern %q", pattern)
	}
	if marker.NumSubexp() < 1 {
		return nil, eris.Errorf("extract: marker pattern %q has no capture group", pattern)
	}

	strategies := []Strategy{LabeledMarker(marker, opts.Range)}

	if opts.PreferredShape != "" {
		shape, err := regexp.Compile(opts.PreferredShape)
		if err != nil {
			return nil, eris.Wrapf(err, "extract: compile preferred shape %q", opts.PreferredShape)
		}
		strategies = append(strategies, PreferredShape(shape, opts.Range))
	}
	strategies = append(strategies, LastInRange(opts.Range))

	return &Extractor{rng: opts.Range, strategies: strategies}, nil
}

// NewWithStrategies builds an Extractor over an explicit strategy list.
func NewWithStrategies(rng Range, strategies ...Strategy) *Extractor {
	return &Extractor{rng: rng, strategies: strategies}
}

// Range returns the validation range.
func (e *Extractor) Range() Range {
	return e.rng
}

// Strategies returns the strategy names in the order they are tried.
func (e *Extractor) Strategies() []string {
	names := make([]string, len(e.strategies))
	for i, s := range e.strategies {
		names[i] = s.Name
	}
	return names
}

// Extract returns the forecast in text, or false when none validates.
func (e *Extractor) Extract(text string) (float64, bool) {
	if strings.TrimSpace(text) == "" {
		return 0, false
	}
	for _, s := range e.strategies {
		v, outcome := s.Find(text)
		switch outcome {
		case Accepted:
			return v, true
		case Rejected:
			return 0, false
		}
	}
	return 0, false
}

// LabeledMarker accepts the number following an explicit answer label.
// A label whose number is out of range rejects the text outright.
func LabeledMarker(marker *regexp.Regexp, rng Range) Strategy {
	return Strategy{
		Name: "labeled_marker",
		Find: func(text string) (float64, Outcome) {
			m := marker.FindStringSubmatch(text)
			if m == nil {
				return 0, NoMatch
			}
			v, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				return 0, NoMatch
			}
			v = round1(v)
			if !rng.Contains(v) {
				return 0, Rejected
			}
			return v, Accepted
		},
	}
}

// PreferredShape accepts the last in-range candidate whose token matches
// shape.
func PreferredShape(shape *regexp.Regexp, rng Range) Strategy {
	return Strategy{
		Name: "preferred_shape",
		Find: func(text string) (float64, Outcome) {
			cands := Candidates(text)
			for i := len(cands) - 1; i >= 0; i-- {
				c := cands[i]
				if shape.MatchString(c.Token) && rng.Contains(c.Value) {
					return c.Value, Accepted
				}
			}
			return 0, NoMatch
		},
	}
}

// LastInRange accepts the last candidate in document order that lies in
// range; conclusions tend to come at the end of a reasoning chain.
func LastInRange(rng Range) Strategy {
	return Strategy{
		Name: "last_in_range",
		Find: func(text string) (float64, Outcome) {
			cands := Candidates(text)
			for i := len(cands) - 1; i >= 0; i-- {
				if rng.Contains(cands[i].Value) {
					return cands[i].Value, Accepted
				}
			}
			return 0, NoMatch
		},
	}
}

// Candidate is one numeric token found in text.
type Candidate struct {
	Token string
	Value float64
}

// Candidates lists every standalone numeric token in document order, each
// value rounded to one decimal place.
func Candidates(text string) []Candidate {
	tokens := numberPattern.FindAllString(text, -1)
	out := make([]Candidate, 0, len(tokens))
	for _, tok := range tokens {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			continue
		}
		out = append(out, Candidate{Token: tok, Value: round1(v)})
	}
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Preset returns the Options for a named forecasting domain.
func Preset(domain string) (Options, error) {
	switch domain {
	case "ratings", "":
		return Options{Range: Range{Min: 1, Max: 5}, PreferredShape: `^\d\.\d$`}, nil
	case "posts":
		return Options{Range: Range{Min: 0, Max: 100}}, nil
	default:
		return Options{}, eris.Errorf("extract: unknown domain %q", domain)
	}
}
