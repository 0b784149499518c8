package provider

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/forecast-cli/internal/extract"
	"github.com/sells-group/forecast-cli/internal/model"
)

// Messages recorded on SourceRecord.ErrorMessage.
const (
	ErrPrefix     = "API call error: "
	ErrNoResponse = "no response from API"
)

// Target is one provider model to query with a prompt.
type Target struct {
	Provider   string
	Model      string
	PromptFile string
	Prompt     string
}

// Collector queries every target at every temperature and turns each call
// into a SourceRecord.
type Collector struct {
	Providers   Registry
	Caller      *Caller
	Extractor   *extract.Extractor
	Concurrency int
}

// NewCollector creates a Collector.
func NewCollector(reg Registry, caller *Caller, ex *extract.Extractor, concurrency int) *Collector {
	if caller == nil {
		caller = &Caller{}
	}
	return &Collector{Providers: reg, Caller: caller, Extractor: ex, Concurrency: concurrency}
}

type job struct {
	provider    Provider
	target      Target
	temperature float64
}

// Collect returns one record per (target, temperature) whose provider is
// registered, in target-major order. Targets whose provider has no
// credentials are skipped with a warning.
func (c *Collector) Collect(ctx context.Context, targets []Target, temperatures []float64) []model.SourceRecord {
	var jobs []job
	skipped := map[string]bool{}
	for _, t := range targets {
		p, ok := c.Providers.Get(t.Provider)
		if !ok {
			name := Normalize(t.Provider)
			if !skipped[name] {
				zap.L().Warn("provider: skipping provider without API key", zap.String("provider", name))
				skipped[name] = true
			}
			continue
		}
		for _, temp := range temperatures {
			jobs = append(jobs, job{provider: p, target: t, temperature: temp})
		}
	}

	records := make([]model.SourceRecord, len(jobs))
	if len(jobs) == 0 {
		return records
	}

	limit := c.Concurrency
	if limit < 1 {
		limit = 1
	}

	zap.L().Info("provider: collecting forecasts",
		zap.Int("calls", len(jobs)),
		zap.Int("concurrency", limit),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, j := range jobs {
		g.Go(func() error {
			records[i] = c.collectOne(gctx, j)
			return nil // a failed call is recorded, never fatal
		})
	}
	_ = g.Wait()

	var valid int
	for _, r := range records {
		if r.Contributes() {
			valid++
		}
	}
	spent, calls := c.Caller.Spent()
	zap.L().Info("provider: collection complete",
		zap.Int("records", len(records)),
		zap.Int("valid", valid),
		zap.Int("successful_calls", calls),
		zap.Float64("estimated_cost_usd", spent),
	)
	return records
}

func (c *Collector) collectOne(ctx context.Context, j job) model.SourceRecord {
	rec := model.SourceRecord{
		Provider:    j.provider.Name(),
		ModelName:   j.target.Model,
		Temperature: j.temperature,
		PromptFile:  j.target.PromptFile,
	}
	log := zap.L().With(
		zap.String("provider", rec.Provider),
		zap.String("model", rec.ModelName),
		zap.Float64("temperature", rec.Temperature),
	)

	comp, err := c.Caller.Call(ctx, j.provider, Request{
		Model:       j.target.Model,
		Prompt:      j.target.Prompt,
		Temperature: j.temperature,
	})
	if err != nil {
		log.Error("provider: call failed", zap.Error(err))
		rec.ErrorMessage = fmt.Sprintf("%s%v", ErrPrefix, err)
		return rec
	}
	if strings.TrimSpace(comp.Text) == "" {
		log.Warn("provider: empty response")
		rec.ErrorMessage = ErrNoResponse
		return rec
	}

	rec.RawResponse = comp.Text
	if c.Extractor == nil {
		return rec
	}
	if v, ok := c.Extractor.Extract(comp.Text); ok {
		rec.ExtractedForecast = model.Float(v)
		log.Info("provider: forecast extracted", zap.Float64("forecast", v))
	} else {
		log.Warn("provider: could not extract forecast from response")
	}
	return rec
}

// Targets expands configured targets with their prompt text. load is called
// once per distinct prompt file; an empty PromptFile uses defaultFile.
func Targets(cfgTargets []Target, defaultFile string, load func(path string) (string, error)) ([]Target, error) {
	cache := map[string]string{}
	out := make([]Target, 0, len(cfgTargets))
	for _, t := range cfgTargets {
		file := t.PromptFile
		if file == "" {
			file = defaultFile
		}
		text, ok := cache[file]
		if !ok {
			var err error
			text, err = load(file)
			if err != nil {
				return nil, err
			}
			cache[file] = text
		}
		t.PromptFile = file
		t.Prompt = text
		out = append(out, t)
	}
	return out, nil
}
