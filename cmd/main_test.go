package main

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/forecast-cli/internal/config"
	"github.com/sells-group/forecast-cli/internal/model"
	"github.com/sells-group/forecast-cli/internal/provider"
	"github.com/sells-group/forecast-cli/internal/records"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

// setupConfig loads defaults inside a fresh working directory with the
// archive disabled and no provider keys.
func setupConfig(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	for _, k := range []string{"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY", "PERPLEXITY_API_KEY"} {
		t.Setenv(k, "")
	}

	c, err := config.Load()
	require.NoError(t, err)
	c.Store.Driver = "none"
	c.Retry.InitialBackoffMs = 1
	c.Retry.MaxBackoffMs = 2
	for _, p := range []*config.ProviderConfig{&c.Providers.OpenAI, &c.Providers.Anthropic, &c.Providers.Google, &c.Providers.Perplexity} {
		p.RequestsPerMinute = 60000
	}

	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}

type fakeProvider struct {
	name string
	fn   func(req provider.Request) (string, error)

	mu      sync.Mutex
	prompts []string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(_ context.Context, req provider.Request) (provider.Completion, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, req.Prompt)
	f.mu.Unlock()

	text, err := f.fn(req)
	if err != nil {
		return provider.Completion{}, err
	}
	return provider.Completion{Text: text, InputTokens: 100, OutputTokens: 20}, nil
}

func (f *fakeProvider) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

func replyText(text string) func(provider.Request) (string, error) {
	return func(provider.Request) (string, error) { return text, nil }
}

func rec(p, m string, temp float64, v *float64) model.SourceRecord {
	return model.SourceRecord{Provider: p, ModelName: m, Temperature: temp, ExtractedForecast: v}
}

// sampleRecords returns six contributing forecasts and one failed call.
func sampleRecords() []model.SourceRecord {
	return []model.SourceRecord{
		rec("openai", "gpt-4o", 0.2, model.Float(4.0)),
		rec("openai", "gpt-4o", 0.7, model.Float(4.5)),
		rec("anthropic", "claude-3-opus-20240229", 0.2, model.Float(4.0)),
		rec("anthropic", "claude-3-opus-20240229", 0.7, model.Float(3.0)),
		rec("google", "gemini-1.5-pro-latest", 0.2, model.Float(4.2)),
		rec("google", "gemini-1.5-pro-latest", 0.7, model.Float(3.8)),
		{Provider: "perplexity", ModelName: "sonar", Temperature: 0.2, ErrorMessage: "API call error: timeout"},
	}
}

func writeRecords(t *testing.T, path string, v any) {
	t.Helper()
	require.NoError(t, records.WriteFile(path, v))
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	require.NoError(t, os.WriteFile(name, []byte(content), 0o644))
	abs, err := filepath.Abs(name)
	require.NoError(t, err)
	return abs
}
