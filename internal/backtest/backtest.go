// Package backtest replays prompt variants against a past period with a
// known outcome and scores each variant's forecast.
package backtest

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/forecast-cli/internal/ensemble"
	"github.com/sells-group/forecast-cli/internal/extract"
	"github.com/sells-group/forecast-cli/internal/model"
)

// Failure reasons recorded on BacktestResult.ErrorReason.
const (
	ReasonParse      = "could not parse forecast from response"
	ReasonNoResponse = "no response from API"
	ReasonNoPrompt   = "prompt file not found"
)

// Responder produces raw text for a prompt. It is the only place latency or
// external failure enters an evaluation.
type Responder func(ctx context.Context, prompt string, temperature float64) (string, error)

// Variant is one prompt formulation under test.
type Variant struct {
	ID         string `yaml:"id" json:"id"`
	PromptFile string `yaml:"prompt_file,omitempty" json:"prompt_file,omitempty"`
	Prompt     string `yaml:"prompt,omitempty" json:"prompt,omitempty"`

	// LoadErr is set when PromptFile could not be read.
	LoadErr error `yaml:"-" json:"-"`
}

// Evaluator scores prompt variants. It performs no retries; wrap the
// Responder for that.
type Evaluator struct {
	Extractor   *extract.Extractor
	Temperature float64
	// Rewrite, when non-empty, swaps the prompt's forecast-period phrases
	// for the backtest period before each call.
	Rewrite Replacements
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(ex *extract.Extractor, temperature float64, rewrite Replacements) *Evaluator {
	return &Evaluator{Extractor: ex, Temperature: temperature, Rewrite: rewrite}
}

// Run evaluates variants in order and returns one result per variant. A
// failing variant never stops the batch.
func (e *Evaluator) Run(ctx context.Context, variants []Variant, period string, groundTruth float64, responder Responder) []model.BacktestResult {
	results := make([]model.BacktestResult, 0, len(variants))
	for _, v := range variants {
		results = append(results, e.evaluate(ctx, v, period, groundTruth, responder))
	}
	return results
}

func (e *Evaluator) evaluate(ctx context.Context, v Variant, period string, groundTruth float64, responder Responder) model.BacktestResult {
	log := zap.L().With(zap.String("variant", v.ID), zap.String("period", period))

	res := model.BacktestResult{
		VariantID:    v.ID,
		PromptFile:   v.PromptFile,
		TargetPeriod: period,
		GroundTruth:  groundTruth,
	}

	if v.LoadErr != nil {
		log.Warn("backtest: skipping variant without prompt", zap.Error(v.LoadErr))
		res.ErrorReason = ReasonNoPrompt
		return res
	}

	prompt := v.Prompt
	if !e.Rewrite.Empty() {
		prompt = RewritePeriod(prompt, e.Rewrite, period)
	}

	raw, err := responder(ctx, prompt, e.Temperature)
	if err != nil {
		log.Warn("backtest: responder failed", zap.Error(err))
		res.ErrorReason = fmt.Sprintf("API call error: %v", err)
		return res
	}
	if strings.TrimSpace(raw) == "" {
		log.Warn("backtest: empty response")
		res.ErrorReason = ReasonNoResponse
		return res
	}
	res.RawResponse = raw

	forecast, ok := e.Extractor.Extract(raw)
	if !ok {
		log.Warn("backtest: could not parse forecast")
		res.ErrorReason = ReasonParse
		return res
	}

	res.Forecast = model.Float(forecast)
	res.AbsoluteError = model.Float(ensemble.Round2(math.Abs(forecast - groundTruth)))
	log.Info("backtest: variant scored",
		zap.Float64("forecast", forecast),
		zap.Float64("ground_truth", groundTruth),
		zap.Float64("absolute_error", *res.AbsoluteError),
	)
	return res
}
