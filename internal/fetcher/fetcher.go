// Package fetcher downloads registry and chain documents over HTTP.
package fetcher

import (
	"context"
)

// Fetcher defines the interface for downloading remote documents.
type Fetcher interface {
	// Get fetches the URL and returns the response body, capped at the
	// configured size limit.
	Get(ctx context.Context, url string) ([]byte, error)

	// DownloadToFile fetches the URL and writes it to path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}
