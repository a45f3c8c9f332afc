// Package fetcher downloads raw dataset payloads over HTTP(S) and FTP.
package fetcher

import (
	"context"
	"io"
	"net/url"

	"github.com/rotisserie/eris"
)

// Fetcher downloads remote dataset payloads.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// MultiFetcher dispatches on the URL scheme: http/https to the HTTP fetcher,
// ftp to the FTP fetcher.
type MultiFetcher struct {
	HTTP Fetcher
	FTP  Fetcher
}

// NewMultiFetcher builds the default scheme-dispatching fetcher.
func NewMultiFetcher(userAgent string) *MultiFetcher {
	return &MultiFetcher{
		HTTP: NewHTTPFetcher(HTTPOptions{UserAgent: userAgent}),
		FTP:  NewFTPFetcher(FTPOptions{}),
	}
}

func (m *MultiFetcher) pick(rawURL string) (Fetcher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse url %s", rawURL)
	}
	switch u.Scheme {
	case "http", "https":
		return m.HTTP, nil
	case "ftp":
		return m.FTP, nil
	default:
		return nil, eris.Errorf("fetcher: unsupported scheme %q in %s", u.Scheme, rawURL)
	}
}

// Download implements Fetcher.
func (m *MultiFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	f, err := m.pick(rawURL)
	if err != nil {
		return nil, err
	}
	return f.Download(ctx, rawURL)
}

// DownloadToFile implements Fetcher.
func (m *MultiFetcher) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	f, err := m.pick(rawURL)
	if err != nil {
		return 0, err
	}
	return f.DownloadToFile(ctx, rawURL, path)
}
