package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks the settings a command mode depends on and reports every
// problem at once.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "forecast":
		errs = append(errs, c.validateEnsemble()...)
		if c.Ensemble.PromptFile == "" {
			errs = append(errs, "ensemble.prompt_file is required")
		}
		if c.Ensemble.Concurrency < 1 || c.Ensemble.Concurrency > 32 {
			errs = append(errs, "ensemble.concurrency must be between 1 and 32")
		}
		keyed := 0
		for _, t := range c.Ensemble.Targets {
			if p, ok := c.Providers.Get(t.Provider); ok && p.Key != "" {
				keyed++
			}
		}
		if len(c.Ensemble.Targets) > 0 && keyed == 0 {
			errs = append(errs, "no provider key is configured for any ensemble target")
		}
	case "aggregate", "revise":
		if c.Ensemble.Period == "" {
			errs = append(errs, "ensemble.period is required")
		}
	case "backtest":
		if c.Backtest.Variants == "" {
			errs = append(errs, "backtest.variants is required")
		}
		errs = append(errs, c.validateProvider("backtest", c.Backtest.Provider)...)
		errs = append(errs, c.validateGroundTruth()...)
	case "critique":
		errs = append(errs, c.validateProvider("critique", c.Critique.Provider)...)
	case "groundtruth", "metrics":
		errs = append(errs, c.validateGroundTruth()...)
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "store":
		switch c.Store.Driver {
		case "postgres":
			if c.Store.DatabaseURL == "" {
				errs = append(errs, "store.database_url is required for the postgres driver")
			}
		case "sqlite":
			if c.Store.SQLitePath == "" {
				errs = append(errs, "store.sqlite_path is required for the sqlite driver")
			}
		case "none", "":
		default:
			errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Extract.Min != nil && c.Extract.Max != nil && *c.Extract.Min >= *c.Extract.Max {
		errs = append(errs, "extract.min must be less than extract.max")
	}
	switch c.Providers.Perplexity.SearchRecency {
	case "", "day", "week", "month", "year":
	default:
		errs = append(errs, "providers.perplexity.search_recency must be day, week, month or year")
	}
	if c.Retry.MaxAttempts < 0 {
		errs = append(errs, "retry.max_attempts must be >= 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateEnsemble() []string {
	var errs []string
	if c.Ensemble.Period == "" {
		errs = append(errs, "ensemble.period is required")
	}
	if len(c.Ensemble.Temperatures) == 0 {
		errs = append(errs, "ensemble.temperatures must not be empty")
	}
	for _, t := range c.Ensemble.Temperatures {
		if t < 0 || t > 2 {
			errs = append(errs, fmt.Sprintf("ensemble.temperatures value %.2f must be between 0 and 2", t))
		}
	}
	if len(c.Ensemble.Targets) == 0 {
		errs = append(errs, "ensemble.targets must not be empty")
	}
	for i, t := range c.Ensemble.Targets {
		if _, ok := c.Providers.Get(t.Provider); !ok {
			errs = append(errs, fmt.Sprintf("ensemble.targets[%d].provider %q is not supported", i, t.Provider))
		}
		if t.Model == "" {
			errs = append(errs, fmt.Sprintf("ensemble.targets[%d].model is required", i))
		}
	}
	return errs
}

func (c *Config) validateProvider(section, name string) []string {
	p, ok := c.Providers.Get(name)
	if !ok {
		return []string{fmt.Sprintf("%s.provider %q is not supported", section, name)}
	}
	if p.Key == "" {
		return []string{fmt.Sprintf("providers.%s.key is required", strings.ToLower(name))}
	}
	return nil
}

func (c *Config) validateGroundTruth() []string {
	var errs []string
	if c.GroundTruth.TimestampField == "" {
		errs = append(errs, "groundtruth.timestamp_field is required")
	}
	if c.GroundTruth.WindowDays <= 0 {
		errs = append(errs, "groundtruth.window_days must be > 0")
	}
	return errs
}
