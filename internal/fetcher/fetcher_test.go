package fetcher

import (
	"archive/zip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/forecast-cli/internal/resilience"
)

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
}

func TestReadCSVTable(t *testing.T) {
	in := "iso_date , rating\n2025-05-07, 4\n2025-05-07,5,extra\n2025-05-08\n"
	tbl, err := ReadCSVTable(context.Background(), strings.NewReader(in))
	require.NoError(t, err)

	col, ok := tbl.Column("ISO_DATE")
	require.True(t, ok)
	assert.Equal(t, 0, col)
	rating, ok := tbl.Column("rating")
	require.True(t, ok)

	require.Len(t, tbl.Rows, 3)
	assert.Equal(t, "4", tbl.Cell(tbl.Rows[0], rating))
	assert.Equal(t, "", tbl.Cell(tbl.Rows[2], rating))

	_, ok = tbl.Column("missing")
	assert.False(t, ok)
}

func TestReadCSVTable_Empty(t *testing.T) {
	_, err := ReadCSVTable(context.Background(), strings.NewReader(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing header row")
}

func TestReadCSVTable_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ReadCSVTable(ctx, strings.NewReader("a,b\n1,2\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func writeXLSX(t *testing.T, path string, rows [][]string) {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("reviews")
	require.NoError(t, err)
	for _, r := range rows {
		row := sheet.AddRow()
		for _, v := range r {
			row.AddCell().Value = v
		}
	}
	require.NoError(t, f.Save(path))
}

func TestReadXLSXTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reviews.xlsx")
	writeXLSX(t, path, [][]string{
		{"iso_date", "rating"},
		{"2025-05-07", "4"},
		{"2025-05-08", " 5 "},
	})

	tbl, err := ReadXLSXTable(path, XLSXOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"iso_date", "rating"}, tbl.Header)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, "5", tbl.Rows[1][1])

	tbl, err = ReadXLSXTable(path, XLSXOptions{SheetName: "reviews"})
	require.NoError(t, err)
	assert.Len(t, tbl.Rows, 2)

	_, err = ReadXLSXTable(path, XLSXOptions{SheetName: "other"})
	assert.Error(t, err)
	_, err = ReadXLSXTable(path, XLSXOptions{SheetIndex: 3})
	assert.Error(t, err)
}

func TestEachJSONElement(t *testing.T) {
	type post struct {
		CreatedAt string `json:"createdAt"`
	}
	var got []post
	err := EachJSONElement(context.Background(),
		strings.NewReader(`[{"createdAt":"2025-05-07T10:00:00Z"},{"createdAt":"2025-05-08T10:00:00Z"}]`),
		func(p post) error {
			got = append(got, p)
			return nil
		})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2025-05-08T10:00:00Z", got[1].CreatedAt)
}

func TestEachJSONElement_Errors(t *testing.T) {
	visit := func(in string) error {
		return EachJSONElement(context.Background(), strings.NewReader(in), func(map[string]any) error { return nil })
	}

	assert.NoError(t, visit(""))
	assert.NoError(t, visit("[]"))
	assert.ErrorContains(t, visit(`{"a":1}`), "want array")
	assert.ErrorContains(t, visit(`[{"a":1}, nope]`), "decode element 1")
}

func TestEachJSONElement_StopsOnCallbackError(t *testing.T) {
	stop := errors.New("stop")
	calls := 0
	err := EachJSONElement(context.Background(), strings.NewReader(`[1, 2, 3]`), func(int) error {
		calls++
		if calls == 2 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 2, calls)
}

func TestEachJSONElement_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := EachJSONElement(ctx, strings.NewReader(`[1]`), func(int) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHTTPFetcher_RetriesTransient(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "forecast-cli/1.0", r.Header.Get("User-Agent"))
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("iso_date,rating\n2025-05-07,4\n"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{Retry: fastRetry(), RequestsPerSecond: 1000})
	body, err := f.Download(context.Background(), srv.URL+"/reviews.csv")
	require.NoError(t, err)
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "2025-05-07")
	assert.Equal(t, int32(2), hits.Load())
}

func TestHTTPFetcher_PermanentStatus(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{Retry: fastRetry(), RequestsPerSecond: 1000})
	_, err := f.Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
	assert.Equal(t, int32(1), hits.Load())
}

func TestIsRemote(t *testing.T) {
	assert.True(t, IsRemote("https://example.com/data.csv"))
	assert.True(t, IsRemote("http://example.com/data.csv"))
	assert.False(t, IsRemote("data/reviews.csv"))
	assert.False(t, IsRemote("ftp://example.com/data.csv"))
	assert.False(t, IsRemote("C:\\data\\reviews.csv"))
}

func writeZIP(t *testing.T, path string, files map[string]string) {
	t.Helper()
	out, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(out)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, out.Close())
}

func TestExtractDataFile(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "reviews.zip")
	writeZIP(t, archive, map[string]string{
		"README.txt":                  "ignored",
		"data/reviews.csv":            "iso_date,rating\n",
		"__MACOSX/data/._reviews.csv": "junk",
	})

	path, err := ExtractDataFile(archive, filepath.Join(dir, "out"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "out", "data", "reviews.csv"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "iso_date,rating\n", string(data))
}

func TestExtractDataFile_Ambiguous(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "many.zip")
	writeZIP(t, archive, map[string]string{"a.csv": "x", "b.json": "[]"})

	_, err := ExtractDataFile(archive, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "got 2")
}

func TestExtractDataFile_ZipSlip(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.zip")
	writeZIP(t, archive, map[string]string{"../../evil.csv": "x"})

	_, err := ExtractDataFile(archive, filepath.Join(dir, "out"))
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "..", "evil.csv"))
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()

	path, err := Resolve(context.Background(), nil, "local.csv", dir)
	require.NoError(t, err)
	assert.Equal(t, "local.csv", path)

	_, err = Resolve(context.Background(), nil, "https://example.com/x.csv", dir)
	require.Error(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".zip") {
			zw := zip.NewWriter(w)
			fw, _ := zw.Create("posts.json")
			_, _ = fw.Write([]byte(`[]`))
			_ = zw.Close()
			return
		}
		_, _ = w.Write([]byte("iso_date,rating\n"))
	}))
	defer srv.Close()
	f := NewHTTPFetcher(HTTPOptions{Retry: fastRetry(), RequestsPerSecond: 1000})

	path, err = Resolve(context.Background(), f, srv.URL+"/reviews.csv", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "reviews.csv"), path)

	path, err = Resolve(context.Background(), f, srv.URL+"/posts.zip", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "posts.json"), path)
}
