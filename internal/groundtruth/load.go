package groundtruth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/forecast-cli/internal/fetcher"
	"github.com/sells-group/forecast-cli/internal/model"
)

// ErrMissingField is returned when a required column is absent from the
// historical data. The wrapped message names the column.
var ErrMissingField = errors.New("groundtruth: missing required field")

// PostTimestampKeys are tried in order to find a post's timestamp.
var PostTimestampKeys = []string{"createdAt", "date", "created_at", "timestamp", "created"}

// Fields names the timestamp and value columns of a table.
type Fields struct {
	Timestamp string `yaml:"timestamp" mapstructure:"timestamp_field"`
	Value     string `yaml:"value" mapstructure:"value_field"`
}

// FromTable converts table rows to observations. Both named columns must
// exist; rows whose value does not parse are dropped.
func FromTable(t *fetcher.Table, fields Fields) ([]model.Observation, error) {
	tsCol, ok := t.Column(fields.Timestamp)
	if !ok {
		return nil, missing(fields.Timestamp)
	}
	valCol, ok := t.Column(fields.Value)
	if !ok {
		return nil, missing(fields.Value)
	}

	obs := make([]model.Observation, 0, len(t.Rows))
	dropped := 0
	for _, row := range t.Rows {
		v, err := strconv.ParseFloat(strings.TrimSpace(t.Cell(row, valCol)), 64)
		if err != nil {
			dropped++
			continue
		}
		obs = append(obs, model.Observation{Timestamp: t.Cell(row, tsCol), Value: v})
	}
	if dropped > 0 {
		zap.L().Debug("groundtruth: dropped rows with unparseable values",
			zap.String("field", fields.Value),
			zap.Int("dropped", dropped),
		)
	}
	return obs, nil
}

func missing(name string) error {
	return eris.Wrapf(ErrMissingField, "groundtruth: missing field %q", name)
}

// postTimestamp returns the first present key in PostTimestampKeys.
func postTimestamp(p map[string]any) (string, bool) {
	for _, key := range PostTimestampKeys {
		raw, ok := p[key]
		if !ok || raw == nil {
			continue
		}
		switch v := raw.(type) {
		case string:
			return v, true
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), true
		default:
			return fmt.Sprint(v), true
		}
	}
	return "", false
}

// Load reads observations from a local path, an http(s) URL or a ZIP
// archive holding one data file. Remote and archived data is staged in a
// temporary directory that is removed before Load returns.
func Load(ctx context.Context, f fetcher.Fetcher, location string, fields Fields) ([]model.Observation, error) {
	if !fetcher.IsRemote(location) && !strings.EqualFold(filepath.Ext(location), ".zip") {
		return LoadFile(ctx, location, fields)
	}

	dir, err := os.MkdirTemp("", "forecast-observations-*")
	if err != nil {
		return nil, eris.Wrap(err, "groundtruth: create staging dir")
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	path, err := fetcher.Resolve(ctx, f, location, dir)
	if err != nil {
		return nil, eris.Wrapf(err, "groundtruth: resolve %s", location)
	}
	return LoadFile(ctx, path, fields)
}

// LoadFile reads observations from a CSV, XLSX or JSON posts file, chosen by
// extension. Fields are ignored for JSON posts.
func LoadFile(ctx context.Context, path string, fields Fields) ([]model.Observation, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		t, err := fetcher.ReadXLSXTable(path, fetcher.XLSXOptions{})
		if err != nil {
			return nil, eris.Wrapf(err, "groundtruth: read %s", path)
		}
		return FromTable(t, fields)
	case ".json":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "groundtruth: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return LoadPosts(ctx, f)
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "groundtruth: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return LoadCSV(ctx, f, fields)
	}
}

// LoadCSV reads observations from CSV with a header row.
func LoadCSV(ctx context.Context, r io.Reader, fields Fields) ([]model.Observation, error) {
	t, err := fetcher.ReadCSVTable(ctx, r)
	if err != nil {
		return nil, eris.Wrap(err, "groundtruth: read csv")
	}
	return FromTable(t, fields)
}

// LoadPosts reads a JSON array of post objects. Posts without a timestamp
// are skipped.
func LoadPosts(ctx context.Context, r io.Reader) ([]model.Observation, error) {
	var obs []model.Observation
	err := fetcher.EachJSONElement(ctx, r, func(p map[string]any) error {
		if ts, ok := postTimestamp(p); ok {
			obs = append(obs, model.Observation{Timestamp: ts, Value: 1})
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "groundtruth: decode posts")
	}
	return obs, nil
}
