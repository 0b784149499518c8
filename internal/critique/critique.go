// Package critique asks a model to review an aggregated forecast.
package critique

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/forecast-cli/internal/model"
	"github.com/sells-group/forecast-cli/internal/records"
)

// Placeholder is replaced with the aggregate's JSON document.
const Placeholder = "{forecast_json}"

// DefaultTemperature keeps the critique focused.
const DefaultTemperature = 0.3

// DefaultTemplate is the built-in critic prompt. Besides Placeholder it
// understands {period}, {mean}, {std_dev}, {count} and
// {individual_forecasts}.
const DefaultTemplate = `You are an expert forecast analyst. You have been provided with an ensemble forecast for {period} in JSON format.
Critically evaluate this forecast, considering:

1.  **Forecast Plausibility:** Is the mean of {mean} with a standard deviation of {std_dev} plausible? The individual forecasts are {individual_forecasts}. Is the range wide or narrow, and do any values look like questionable outliers?
2.  **Methodology:** The forecast aggregates {count} predictions from several large language models at different temperatures. What are the strengths and weaknesses of such an ensemble for this task? Does it mitigate bias or could it amplify shared errors?
3.  **Information Basis:** Does the forecast seem to anchor on baseline statistics, or does it deviate from recent history in ways that need explanation?
4.  **Potential Biases:** Which biases (training data, recency, anchoring, prompt formulation) may have shaped the forecast?
5.  **Missing Considerations:** Which factors that models cannot see without real-time information might have been overlooked?
6.  **Confidence and Actionability:** How much confidence would you place in this forecast? Is the standard deviation useful for decisions, and what caveats apply?

Please provide a structured critique. Be specific and constructive.

Here is the forecast data:

` + "```json\n" + Placeholder + "\n```" + `

End your critique with a summary of the top 2-3 most important concerns or limitations.
`

// Responder sends a prompt at a temperature and returns the raw text.
type Responder func(ctx context.Context, prompt string, temperature float64) (string, error)

// Critic renders the critic prompt and sends it to one model.
type Critic struct {
	Template    string
	Temperature float64
}

// New creates a Critic. An empty template uses DefaultTemplate.
func New(template string, temperature float64) (*Critic, error) {
	if template == "" {
		template = DefaultTemplate
	}
	if !strings.Contains(template, Placeholder) {
		return nil, eris.Errorf("critique: template has no %s placeholder", Placeholder)
	}
	return &Critic{Template: template, Temperature: temperature}, nil
}

// LoadTemplate reads a template file. An empty path returns DefaultTemplate.
func LoadTemplate(path string) (string, error) {
	if path == "" {
		return DefaultTemplate, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "critique: read template %s", path)
	}
	return string(data), nil
}

// Render fills the template with agg.
func (c *Critic) Render(agg model.AggregateResult) (string, error) {
	var buf bytes.Buffer
	if err := records.Encode(&buf, agg); err != nil {
		return "", eris.Wrap(err, "critique: encode forecast")
	}

	r := strings.NewReplacer(
		Placeholder, strings.TrimSpace(buf.String()),
		"{period}", agg.ForecastPeriod,
		"{mean}", formatOptional(agg.Mean),
		"{std_dev}", formatOptional(agg.StdDev),
		"{count}", strconv.Itoa(agg.Count),
		"{individual_forecasts}", formatValues(agg.IndividualValidForecasts),
	)
	return r.Replace(c.Template), nil
}

// Critique sends the rendered prompt and returns the trimmed critique.
func (c *Critic) Critique(ctx context.Context, agg model.AggregateResult, respond Responder) (string, error) {
	prompt, err := c.Render(agg)
	if err != nil {
		return "", err
	}

	zap.L().Info("critique: requesting critique",
		zap.String("period", agg.ForecastPeriod),
		zap.Int("count", agg.Count),
		zap.Float64("temperature", c.Temperature),
	)

	text, err := respond(ctx, prompt, c.Temperature)
	if err != nil {
		return "", eris.Wrap(err, "critique: request critique")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", eris.New("critique: empty response")
	}
	return text, nil
}

func formatOptional(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func formatValues(vals []float64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return fmt.Sprintf("[%s]", strings.Join(parts, ", "))
}
