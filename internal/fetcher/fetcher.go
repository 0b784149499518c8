// Package fetcher reads historical observation data from local files, HTTP
// downloads and ZIP archives into header-addressed tables.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Fetcher downloads remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// DataExtensions are the file types observation loading understands.
var DataExtensions = []string{".csv", ".xlsx", ".json"}

// IsDataFile reports whether name has one of DataExtensions.
func IsDataFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range DataExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// IsRemote reports whether location is an http or https URL.
func IsRemote(location string) bool {
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Resolve returns a local data file for location. Remote locations are
// downloaded into dir. ZIP archives are unpacked into dir and the data file
// inside is returned.
func Resolve(ctx context.Context, f Fetcher, location, dir string) (string, error) {
	path := location
	if IsRemote(location) {
		if f == nil {
			return "", eris.Errorf("fetcher: no downloader configured for %s", location)
		}
		u, _ := url.Parse(location)
		name := filepath.Base(u.Path)
		if name == "." || name == "/" || name == "" {
			name = "download"
		}
		path = filepath.Join(dir, name)

		n, err := f.DownloadToFile(ctx, location, path)
		if err != nil {
			return "", eris.Wrapf(err, "fetcher: download %s", location)
		}
		zap.L().Debug("fetcher: downloaded observations",
			zap.String("url", location),
			zap.Int64("bytes", n),
		)
	}

	if strings.EqualFold(filepath.Ext(path), ".zip") {
		return ExtractDataFile(path, dir)
	}
	return path, nil
}
