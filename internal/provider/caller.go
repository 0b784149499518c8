package provider

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/forecast-cli/internal/config"
	"github.com/sells-group/forecast-cli/internal/cost"
	"github.com/sells-group/forecast-cli/internal/resilience"
)

// Caller wraps single provider calls with rate limiting, retries, circuit
// breaking, a per-call timeout and cost accounting. A zero Caller uses the
// default retry policy with no limits.
type Caller struct {
	Retry    resilience.RetryConfig
	Breakers *resilience.Breakers
	Limiters Limiters
	Timeout  time.Duration
	Cost     *cost.Calculator

	mu    sync.Mutex
	spent float64
	calls int
}

// Limiters holds a request rate limiter per provider.
type Limiters map[string]*rate.Limiter

// NewLimiters builds limiters from requests-per-minute settings. Providers
// with a non-positive rate are unlimited.
func NewLimiters(rpm map[string]int) Limiters {
	l := Limiters{}
	for name, n := range rpm {
		if n <= 0 {
			continue
		}
		l[Normalize(name)] = rate.NewLimiter(rate.Limit(float64(n)/60.0), 1)
	}
	return l
}

// Wait blocks until provider may make another request.
func (l Limiters) Wait(ctx context.Context, provider string) error {
	lim, ok := l[provider]
	if !ok {
		return nil
	}
	return lim.Wait(ctx)
}

// NewCaller builds a Caller from configuration.
func NewCaller(cfg *config.Config, calc *cost.Calculator) *Caller {
	return &Caller{
		Retry: resilience.FromRetryConfig(
			cfg.Retry.MaxAttempts,
			cfg.Retry.InitialBackoffMs,
			cfg.Retry.MaxBackoffMs,
			cfg.Retry.Multiplier,
			cfg.Retry.JitterFraction,
		),
		Breakers: resilience.NewBreakers(resilience.BreakerConfig{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			Cooldown:         time.Duration(cfg.Breaker.CooldownSecs) * time.Second,
		}),
		Limiters: NewLimiters(map[string]int{
			OpenAI:     cfg.Providers.OpenAI.RequestsPerMinute,
			Anthropic:  cfg.Providers.Anthropic.RequestsPerMinute,
			Google:     cfg.Providers.Google.RequestsPerMinute,
			Perplexity: cfg.Providers.Perplexity.RequestsPerMinute,
		}),
		Timeout: time.Duration(cfg.Ensemble.CallTimeoutSecs) * time.Second,
		Cost:    calc,
	}
}

// Call makes one completion request through p.
func (c *Caller) Call(ctx context.Context, p Provider, req Request) (Completion, error) {
	name := p.Name()
	if err := c.Breakers.Allow(name); err != nil {
		return Completion{}, err
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	retry := c.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger(name, req.Model)
	}

	start := time.Now()
	comp, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (Completion, error) {
		if err := c.Limiters.Wait(ctx, name); err != nil {
			return Completion{}, err
		}
		return p.Complete(ctx, req)
	})
	c.Breakers.Record(name, err)
	if err != nil {
		return Completion{}, err
	}

	usd := c.track(name, req.Model, comp)
	zap.L().Debug("provider: call complete",
		zap.String("provider", name),
		zap.String("model", req.Model),
		zap.Float64("temperature", req.Temperature),
		zap.Int("input_tokens", comp.InputTokens),
		zap.Int("output_tokens", comp.OutputTokens),
		zap.Float64("cost_usd", usd),
		zap.Duration("elapsed", time.Since(start)),
	)
	return comp, nil
}

func (c *Caller) track(provider, model string, comp Completion) float64 {
	var usd float64
	if c.Cost != nil {
		usd = c.Cost.Call(provider, model, comp.InputTokens, comp.OutputTokens)
	}
	c.mu.Lock()
	c.spent += usd
	c.calls++
	c.mu.Unlock()
	return usd
}

// Spent returns the estimated cost and number of successful calls so far.
func (c *Caller) Spent() (float64, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spent, c.calls
}

// Responder returns a function that sends a prompt to p's model and returns
// the raw text. It matches backtest.Responder.
func (c *Caller) Responder(p Provider, model string) func(ctx context.Context, prompt string, temperature float64) (string, error) {
	return func(ctx context.Context, prompt string, temperature float64) (string, error) {
		comp, err := c.Call(ctx, p, Request{Model: model, Prompt: prompt, Temperature: temperature})
		if err != nil {
			return "", err
		}
		return comp.Text, nil
	}
}
