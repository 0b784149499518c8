// Package provider adapts the LLM API clients to one completion interface and
// collects ensemble forecasts across them.
package provider

import (
	"context"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/forecast-cli/internal/config"
	"github.com/sells-group/forecast-cli/pkg/anthropic"
	"github.com/sells-group/forecast-cli/pkg/gemini"
	"github.com/sells-group/forecast-cli/pkg/openai"
	"github.com/sells-group/forecast-cli/pkg/perplexity"
)

// Provider names used in SourceRecord.Provider.
const (
	OpenAI     = "openai"
	Anthropic  = "anthropic"
	Google     = "google"
	Perplexity = "perplexity"
)

const defaultMaxTokens = 1024

// Request is one single-turn completion.
type Request struct {
	Model       string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Completion is a provider's answer and its token usage.
type Completion struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Provider produces completions from one vendor API.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (Completion, error)
}

// Normalize maps provider aliases to their canonical name.
func Normalize(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "gemini" {
		return Google
	}
	return n
}

func maxTokens(req, def int) int {
	if req > 0 {
		return req
	}
	if def > 0 {
		return def
	}
	return defaultMaxTokens
}

type openAIProvider struct {
	client    openai.Client
	maxTokens int
}

// NewOpenAI adapts an OpenAI chat completions client.
func NewOpenAI(client openai.Client, maxTokens int) Provider {
	return &openAIProvider{client: client, maxTokens: maxTokens}
}

func (p *openAIProvider) Name() string { return OpenAI }

func (p *openAIProvider) Complete(ctx context.Context, req Request) (Completion, error) {
	temp := req.Temperature
	resp, err := p.client.ChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    []openai.Message{{Role: "user", Content: req.Prompt}},
		Temperature: &temp,
		MaxTokens:   maxTokens(req.MaxTokens, p.maxTokens),
	})
	if err != nil {
		return Completion{}, err
	}
	return Completion{
		Text:         resp.Text(),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

type anthropicProvider struct {
	client    anthropic.Client
	maxTokens int
}

// NewAnthropic adapts an Anthropic messages client.
func NewAnthropic(client anthropic.Client, maxTokens int) Provider {
	return &anthropicProvider{client: client, maxTokens: maxTokens}
}

func (p *anthropicProvider) Name() string { return Anthropic }

func (p *anthropicProvider) Complete(ctx context.Context, req Request) (Completion, error) {
	temp := req.Temperature
	resp, err := p.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       req.Model,
		MaxTokens:   int64(maxTokens(req.MaxTokens, p.maxTokens)),
		Messages:    []anthropic.Message{{Role: "user", Content: req.Prompt}},
		Temperature: &temp,
	})
	if err != nil {
		return Completion{}, err
	}
	return Completion{
		Text:         resp.Text(),
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}, nil
}

type geminiProvider struct {
	client    gemini.Client
	maxTokens int
}

// NewGemini adapts a Gemini generateContent client.
func NewGemini(client gemini.Client, maxTokens int) Provider {
	return &geminiProvider{client: client, maxTokens: maxTokens}
}

func (p *geminiProvider) Name() string { return Google }

func (p *geminiProvider) Complete(ctx context.Context, req Request) (Completion, error) {
	temp := req.Temperature
	resp, err := p.client.GenerateContent(ctx, gemini.GenerateRequest{
		Model:    req.Model,
		Contents: gemini.UserText(req.Prompt),
		GenerationConfig: gemini.GenerationConfig{
			Temperature:     &temp,
			MaxOutputTokens: maxTokens(req.MaxTokens, p.maxTokens),
		},
	})
	if err != nil {
		return Completion{}, err
	}
	return Completion{
		Text:         resp.Text(),
		InputTokens:  resp.UsageMetadata.PromptTokenCount,
		OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
	}, nil
}

type perplexityProvider struct {
	client    perplexity.Client
	maxTokens int
}

// NewPerplexity adapts a Perplexity chat completions client.
func NewPerplexity(client perplexity.Client, maxTokens int) Provider {
	return &perplexityProvider{client: client, maxTokens: maxTokens}
}

func (p *perplexityProvider) Name() string { return Perplexity }

func (p *perplexityProvider) Complete(ctx context.Context, req Request) (Completion, error) {
	temp := req.Temperature
	mt := maxTokens(req.MaxTokens, p.maxTokens)
	resp, err := p.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    []perplexity.Message{{Role: "user", Content: req.Prompt}},
		Temperature: &temp,
		MaxTokens:   &mt,
	})
	if err != nil {
		return Completion{}, err
	}
	return Completion{
		Text:         resp.Text(),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

// Registry holds the providers that have credentials.
type Registry map[string]Provider

// Get returns the provider registered under name or one of its aliases.
func (r Registry) Get(name string) (Provider, bool) {
	p, ok := r[Normalize(name)]
	return p, ok
}

// Names lists the registered providers in sorted order.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for n := range r {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// FromConfig builds a Registry from the configured provider credentials.
// Providers without an API key are left out.
func FromConfig(cfg config.ProvidersConfig) Registry {
	reg := Registry{}

	if c := cfg.OpenAI; c.Key != "" {
		var opts []openai.Option
		if c.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(c.BaseURL))
		}
		reg[OpenAI] = NewOpenAI(openai.NewClient(c.Key, opts...), c.MaxTokens)
	}
	if c := cfg.Anthropic; c.Key != "" {
		var opts []anthropic.Option
		if c.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(c.BaseURL))
		}
		reg[Anthropic] = NewAnthropic(anthropic.NewClient(c.Key, opts...), c.MaxTokens)
	}
	if c := cfg.Google; c.Key != "" {
		var opts []gemini.Option
		if c.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(c.BaseURL))
		}
		reg[Google] = NewGemini(gemini.NewClient(c.Key, opts...), c.MaxTokens)
	}
	if c := cfg.Perplexity; c.Key != "" {
		var opts []perplexity.Option
		if c.BaseURL != "" {
			opts = append(opts, perplexity.WithBaseURL(c.BaseURL))
		}
		if c.SearchRecency != "" {
			opts = append(opts, perplexity.WithRecency(c.SearchRecency))
		}
		reg[Perplexity] = NewPerplexity(perplexity.NewClient(c.Key, opts...), c.MaxTokens)
	}

	zap.L().Debug("provider: registry built", zap.Strings("providers", reg.Names()))
	return reg
}

// Require returns the named provider or an error naming the missing key.
func (r Registry) Require(name string) (Provider, error) {
	p, ok := r.Get(name)
	if !ok {
		return nil, eris.Errorf("provider: %s is not configured (missing API key?)", Normalize(name))
	}
	return p, nil
}
