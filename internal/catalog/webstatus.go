package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/baselinewatch/internal/ir"
)

// DefaultWebStatusURL is the public webstatus.dev API.
const DefaultWebStatusURL = "https://api.webstatus.dev"

const (
	defaultPageSize = 100
	defaultMaxPages = 50
)

// WebStatusSource queries the webstatus.dev features endpoint for
// features whose baseline date falls inside a window.
type WebStatusSource struct {
	// BaseURL defaults to DefaultWebStatusURL.
	BaseURL string
	// Window is evaluated on every Fetch. Defaults to the last 24 hours.
	Window func() Window
	// PageSize and MaxPages bound pagination.
	PageSize int
	MaxPages int

	Client *http.Client
	Logger *slog.Logger
}

// webStatusPage mirrors the paginated list response.
type webStatusPage struct {
	Data     []json.RawMessage `json:"data"`
	Metadata struct {
		NextPageToken string `json:"next_page_token"`
		Total         int    `json:"total"`
	} `json:"metadata"`
}

// Name implements Source.
func (s *WebStatusSource) Name() string {
	return "webstatus"
}

// Fetch implements Source. Pages are followed until the API stops
// returning a next_page_token.
func (s *WebStatusSource) Fetch(ctx context.Context) ([]ir.Feature, error) {
	logger := loggerOrDefault(s.Logger)
	window := s.window()
	maxPages := s.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}

	var features []ir.Feature
	token := ""
	for page := 1; ; page++ {
		if page > maxPages {
			return nil, &FetchError{Source: s.Name(), Err: fmt.Errorf("more than %d pages", maxPages)}
		}

		p, err := s.fetchPage(ctx, window, token)
		if err != nil {
			return nil, &FetchError{Source: s.Name(), Err: err}
		}
		for i, raw := range p.Data {
			f, err := webStatusFeature(raw)
			if err != nil {
				return nil, &FetchError{Source: s.Name(), Err: fmt.Errorf("page %d item %d: %w", page, i, err)}
			}
			features = append(features, f)
		}
		logger.Debug("fetched webstatus page", "page", page, "items", len(p.Data), "total", p.Metadata.Total)

		token = p.Metadata.NextPageToken
		if token == "" {
			break
		}
	}

	logger.Info("fetched catalog", "source", s.Name(), "window", window.String(), "features", len(features))
	return dedupe(features, logger), nil
}

func (s *WebStatusSource) window() Window {
	if s.Window != nil {
		return s.Window()
	}
	return Recent(time.Now(), 24*time.Hour)
}

func (s *WebStatusSource) fetchPage(ctx context.Context, window Window, token string) (*webStatusPage, error) {
	base := s.BaseURL
	if base == "" {
		base = DefaultWebStatusURL
	}
	pageSize := s.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	q := url.Values{}
	q.Set("q", window.Query())
	q.Set("page_size", strconv.Itoa(pageSize))
	if token != "" {
		q.Set("page_token", token)
	}
	u := strings.TrimRight(base, "/") + "/v1/features?" + q.Encode()

	body, err := get(ctx, s.Client, u)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var p webStatusPage
	if err := json.NewDecoder(body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	return &p, nil
}

// webStatusFeature keys a list item by its feature_id.
func webStatusFeature(raw json.RawMessage) (ir.Feature, error) {
	rec, err := ir.UnmarshalRecord(raw)
	if err != nil {
		return ir.Feature{}, err
	}
	obj, ok := rec.(ir.IRObject)
	if !ok {
		return ir.Feature{}, fmt.Errorf("expected object, got %T", rec)
	}
	id := obj.String("feature_id")
	if id == "" {
		return ir.Feature{}, fmt.Errorf("item has no feature_id")
	}
	return ir.Feature{ID: id, Record: obj}, nil
}
