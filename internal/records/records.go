// Package records reads and writes the JSON record collections passed between
// pipeline stages.
package records

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"

	"github.com/sells-group/forecast-cli/internal/model"
)

const indent = "    "

// ReadSourceRecords loads a SourceRecord collection from path.
func ReadSourceRecords(path string) ([]model.SourceRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "records: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	recs, err := DecodeSourceRecords(f)
	if err != nil {
		return nil, eris.Wrapf(err, "records: read %s", path)
	}
	return recs, nil
}

// DecodeSourceRecords decodes a JSON array of SourceRecords. A null or empty
// document yields an empty collection.
func DecodeSourceRecords(r io.Reader) ([]model.SourceRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "records: read input")
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return []model.SourceRecord{}, nil
	}

	var recs []model.SourceRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, eris.Wrap(err, "records: decode source records")
	}
	if recs == nil {
		recs = []model.SourceRecord{}
	}
	return recs, nil
}

// ReadAggregate loads an AggregateResult from path.
func ReadAggregate(path string) (model.AggregateResult, error) {
	var res model.AggregateResult
	if err := readFile(path, &res); err != nil {
		return model.AggregateResult{}, err
	}
	return res, nil
}

// ReadBacktestResults loads a BacktestResult collection from path.
func ReadBacktestResults(path string) ([]model.BacktestResult, error) {
	var res []model.BacktestResult
	if err := readFile(path, &res); err != nil {
		return nil, err
	}
	return res, nil
}

func readFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "records: open %s", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return eris.Wrapf(err, "records: decode %s", path)
	}
	return nil
}

// Encode writes v as indented JSON.
func Encode(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", indent)
	if err != nil {
		return eris.Wrap(err, "records: marshal")
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return eris.Wrap(err, "records: write")
	}
	return nil
}

// WriteFile writes v as indented JSON to path. The file is written to a
// temporary sibling and renamed so readers never see a partial document.
func WriteFile(path string, v any) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrapf(err, "records: create temp file for %s", path)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if err := Encode(tmp, v); err != nil {
		tmp.Close() //nolint:errcheck,gosec
		return err
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "records: close %s", tmpName)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return eris.Wrapf(err, "records: chmod %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return eris.Wrapf(err, "records: rename to %s", path)
	}
	return nil
}
