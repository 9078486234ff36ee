package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"slices"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/roach88/baselinewatch/internal/ir"
)

// DefaultReleaseURL is the latest web-features data asset.
const DefaultReleaseURL = "https://github.com/web-platform-dx/web-features/releases/latest/download/data.json"

// ReleaseSource downloads a web-features release asset: a JSON document
// whose "features" member (or the document itself) maps feature ids to
// records. Assets ending in .gz or .zst are decompressed.
type ReleaseSource struct {
	// URL defaults to DefaultReleaseURL.
	URL string
	// BaselineOnly keeps only features whose status.baseline is "low" or "high".
	BaselineOnly bool

	Client *http.Client
	Logger *slog.Logger

	schema *Schema
}

// Name implements Source.
func (s *ReleaseSource) Name() string {
	return "release"
}

// Fetch implements Source. Features are returned in id order; entries
// that do not satisfy the catalog schema are dropped with a warning.
func (s *ReleaseSource) Fetch(ctx context.Context) ([]ir.Feature, error) {
	logger := loggerOrDefault(s.Logger)
	u := s.URL
	if u == "" {
		u = DefaultReleaseURL
	}

	if s.schema == nil {
		schema, err := LoadSchema()
		if err != nil {
			return nil, &FetchError{Source: s.Name(), Err: err}
		}
		s.schema = schema
	}

	data, err := s.download(ctx, u)
	if err != nil {
		return nil, &FetchError{Source: s.Name(), Err: err}
	}

	entries, err := releaseEntries(data)
	if err != nil {
		return nil, &FetchError{Source: s.Name(), Err: err}
	}

	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	features := make([]ir.Feature, 0, len(ids))
	dropped := 0
	for _, id := range ids {
		rec, err := ir.UnmarshalRecord(entries[id])
		if err != nil {
			return nil, &FetchError{Source: s.Name(), Err: fmt.Errorf("feature %q: %w", id, err)}
		}
		if err := s.schema.Validate(rec); err != nil {
			logger.Debug("dropping entry that is not a feature", "id", id, "error", err)
			dropped++
			continue
		}
		if s.BaselineOnly && !isBaseline(rec) {
			continue
		}
		features = append(features, ir.Feature{ID: id, Record: rec})
	}

	logger.Info("fetched catalog", "source", s.Name(), "features", len(features), "dropped", dropped)
	return features, nil
}

func (s *ReleaseSource) download(ctx context.Context, u string) ([]byte, error) {
	body, err := get(ctx, s.Client, u)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var r io.Reader = body
	switch assetExt(u) {
	case ".gz":
		gz, err := gzip.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer gz.Close()
		r = gz
	case ".zst":
		dec, err := zstd.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		defer dec.Close()
		r = dec
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read asset: %w", err)
	}
	return data, nil
}

// assetExt returns the extension of the URL path, ignoring the query.
func assetExt(u string) string {
	p := u
	if parsed, err := url.Parse(u); err == nil {
		p = parsed.Path
	}
	return path.Ext(p)
}

// releaseEntries extracts the id -> record map.
func releaseEntries(data []byte) (map[string]json.RawMessage, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("decode asset: %w", err)
	}
	raw, ok := top["features"]
	if !ok {
		return top, nil
	}
	var features map[string]json.RawMessage
	if err := json.Unmarshal(raw, &features); err != nil {
		return nil, fmt.Errorf("decode features: %w", err)
	}
	return features, nil
}

func isBaseline(rec ir.IRValue) bool {
	obj, ok := rec.(ir.IRObject)
	if !ok {
		return false
	}
	switch obj.Object("status").String("baseline") {
	case "low", "high":
		return true
	}
	return false
}
