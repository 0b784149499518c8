package backtest

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// VariantSet is a backtest definition: the historical day or period to
// replay, the prompt variants, and how to rewrite their period phrases.
type VariantSet struct {
	TargetPeriod string       `yaml:"target_period"`
	Date         string       `yaml:"date"`
	EndDate      string       `yaml:"end_date,omitempty"`
	Metric       string       `yaml:"metric,omitempty"`
	Temperature  *float64     `yaml:"temperature,omitempty"`
	Replacements Replacements `yaml:"replacements"`
	Variants     []Variant    `yaml:"variants"`
}

// Start returns the parsed Date.
func (s *VariantSet) Start() (time.Time, error) {
	t, err := time.Parse("2006-01-02", s.Date)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "backtest: parse date %q", s.Date)
	}
	return t, nil
}

// End returns the parsed EndDate, or Start when unset.
func (s *VariantSet) End() (time.Time, error) {
	if s.EndDate == "" {
		return s.Start()
	}
	t, err := time.Parse("2006-01-02", s.EndDate)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "backtest: parse end date %q", s.EndDate)
	}
	return t, nil
}

// LoadVariantSet reads a variant set from YAML. Variants without an inline
// prompt load it from prompt_file, resolved relative to the YAML file. An
// unreadable prompt_file marks only that variant with LoadErr.
func LoadVariantSet(path string) (*VariantSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "backtest: read variants %s", path)
	}

	var wrapper struct {
		Backtest VariantSet `yaml:"backtest"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "backtest: parse variants")
	}
	set := &wrapper.Backtest

	if set.Date == "" {
		return nil, eris.New("backtest: variants file has no date")
	}
	if _, err := set.Start(); err != nil {
		return nil, err
	}
	if set.TargetPeriod == "" {
		set.TargetPeriod = set.Date
	}
	if len(set.Variants) == 0 {
		return nil, eris.New("backtest: variants file lists no variants")
	}
	if err := set.Replacements.Compile(); err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	seen := make(map[string]bool, len(set.Variants))
	for i := range set.Variants {
		v := &set.Variants[i]
		if v.ID == "" {
			v.ID = v.PromptFile
		}
		if v.ID == "" {
			return nil, eris.Errorf("backtest: variant %d has neither id nor prompt_file", i)
		}
		if seen[v.ID] {
			return nil, eris.Errorf("backtest: duplicate variant id %q", v.ID)
		}
		seen[v.ID] = true

		if v.Prompt != "" {
			continue
		}
		if v.PromptFile == "" {
			return nil, eris.Errorf("backtest: variant %q has no prompt", v.ID)
		}
		p := v.PromptFile
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		body, err := os.ReadFile(p)
		if err != nil {
			zap.L().Warn("backtest: prompt file unreadable", zap.String("variant", v.ID), zap.Error(err))
			v.LoadErr = eris.Wrapf(err, "backtest: read prompt for variant %q", v.ID)
			continue
		}
		v.Prompt = string(body)
	}

	return set, nil
}
