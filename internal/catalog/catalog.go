// Package catalog fetches candidate features from the upstream
// web-platform feature catalog.
//
// Three sources are supported: the webstatus.dev query API (paginated),
// the web-features release asset (a JSON map keyed by feature id), and
// an RSS feed (items keyed by title). All of them return []ir.Feature in
// a stable order with unique ids.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/roach88/baselinewatch/internal/ir"
)

// UserAgent is sent with every upstream request.
const UserAgent = "baselinewatch (+https://github.com/roach88/baselinewatch)"

// Source produces the candidate feature set for one run.
type Source interface {
	// Name identifies the source in logs.
	Name() string
	// Fetch returns the current candidates in a stable order.
	// Any failure is a *FetchError; callers treat it as fatal for the run.
	Fetch(ctx context.Context) ([]ir.Feature, error)
}

// ErrUpstream is matched by every FetchError.
var ErrUpstream = errors.New("upstream fetch failed")

// FetchError reports a failure to obtain the candidate set.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrUpstream) hold for every FetchError.
func (e *FetchError) Is(target error) bool {
	return target == ErrUpstream
}

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// get issues a GET and returns the body of a 2xx response.
func get(ctx context.Context, client *http.Client, url string) (io.ReadCloser, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json, application/rss+xml, */*")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	return resp.Body, nil
}

// dedupe keeps the first occurrence of every id and drops features
// without one. Upstream pages can overlap and feed titles can repeat;
// the detector refuses batches with duplicate ids.
func dedupe(features []ir.Feature, logger *slog.Logger) []ir.Feature {
	seen := make(map[string]bool, len(features))
	out := features[:0]
	for _, f := range features {
		if f.ID == "" {
			logger.Warn("dropping feature without id")
			continue
		}
		if seen[f.ID] {
			logger.Warn("dropping duplicate feature", "id", f.ID)
			continue
		}
		seen[f.ID] = true
		out = append(out, f)
	}
	return out
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
