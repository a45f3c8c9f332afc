package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lionmetrics/zonescope/internal/fetcher"
)

func TestSource_Label(t *testing.T) {
	assert.Equal(t, "https://x.test/data", Source{URL: "https://x.test/data"}.Label())
	assert.Equal(t, "local", Source{FallbackPath: "/tmp/x.json"}.Label())
}

func TestSource_RemotePreferred(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`remote-data`))
	}))
	defer srv.Close()

	fallback := filepath.Join(t.TempDir(), "fallback.json")
	require.NoError(t, os.WriteFile(fallback, []byte(`local-data`), 0o644))

	src := Source{URL: srv.URL, FallbackPath: fallback}
	data, label, err := src.ReadAll(context.Background(), fetcher.NewMultiFetcher("test"))
	require.NoError(t, err)
	assert.Equal(t, "remote-data", string(data))
	assert.Equal(t, srv.URL, label)
}

func TestSource_FallsBackOnRemoteFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	fallback := filepath.Join(t.TempDir(), "fallback.json")
	require.NoError(t, os.WriteFile(fallback, []byte(`local-data`), 0o644))

	src := Source{URL: srv.URL, FallbackPath: fallback}
	data, label, err := src.ReadAll(context.Background(), fetcher.NewMultiFetcher("test"))
	require.NoError(t, err)
	assert.Equal(t, "local-data", string(data))
	assert.Equal(t, "local", label)
}

func TestSource_BothUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	src := Source{URL: srv.URL, FallbackPath: filepath.Join(t.TempDir(), "missing.json")}
	_, _, err := src.ReadAll(context.Background(), fetcher.NewMultiFetcher("test"))
	require.Error(t, err)
}

func TestSource_NothingConfigured(t *testing.T) {
	_, _, err := Source{}.ReadAll(context.Background(), fetcher.NewMultiFetcher("test"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no source configured")
}
