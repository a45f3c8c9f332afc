package ingest

import (
	"context"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lionmetrics/zonescope/internal/fetcher"
)

// Source is where a dataset's raw payload comes from: a remote URL tried
// first, then a local fallback file. Both empty or both failing is a hard
// failure for the run.
type Source struct {
	URL          string `yaml:"url" mapstructure:"url"`
	FallbackPath string `yaml:"fallback_path" mapstructure:"fallback_path"`
}

// Label is the identifier recorded on the ingestion snapshot.
func (s Source) Label() string {
	if s.URL != "" {
		return s.URL
	}
	return "local"
}

// Open returns the payload stream and the label of the origin actually
// used. A remote failure falls back to the local file with a warning; the
// fallback failing too (or neither being configured) is the caller's
// fatal-fetch case.
func (s Source) Open(ctx context.Context, f fetcher.Fetcher) (io.ReadCloser, string, error) {
	if s.URL != "" {
		body, err := f.Download(ctx, s.URL)
		if err == nil {
			return body, s.URL, nil
		}
		if s.FallbackPath == "" {
			return nil, "", eris.Wrapf(err, "ingest: fetch %s", s.URL)
		}
		zap.L().Warn("remote fetch failed, using local fallback",
			zap.String("url", s.URL),
			zap.String("fallback", s.FallbackPath),
			zap.Error(err),
		)
	}

	if s.FallbackPath == "" {
		return nil, "", eris.New("ingest: no source configured")
	}
	file, err := os.Open(s.FallbackPath)
	if err != nil {
		return nil, "", eris.Wrapf(err, "ingest: open fallback %s", s.FallbackPath)
	}
	return file, "local", nil
}

// ReadAll opens the source and slurps it. Dataset payloads are city-scale,
// well within memory.
func (s Source) ReadAll(ctx context.Context, f fetcher.Fetcher) ([]byte, string, error) {
	body, label, err := s.Open(ctx, f)
	if err != nil {
		return nil, "", err
	}
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, "", eris.Wrapf(err, "ingest: read source %s", label)
	}
	return data, label, nil
}
