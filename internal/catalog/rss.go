package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/roach88/baselinewatch/internal/ir"
)

// RSSSource reads a feed and keys every item by its title.
type RSSSource struct {
	URL    string
	Client *http.Client
	Logger *slog.Logger
}

// Name implements Source.
func (s *RSSSource) Name() string {
	return "rss"
}

// Fetch implements Source. Items keep feed order.
func (s *RSSSource) Fetch(ctx context.Context) ([]ir.Feature, error) {
	logger := loggerOrDefault(s.Logger)
	if s.URL == "" {
		return nil, &FetchError{Source: s.Name(), Err: fmt.Errorf("no feed URL configured")}
	}

	body, err := get(ctx, s.Client, s.URL)
	if err != nil {
		return nil, &FetchError{Source: s.Name(), Err: err}
	}
	defer body.Close()

	feed, err := gofeed.NewParser().Parse(body)
	if err != nil {
		return nil, &FetchError{Source: s.Name(), Err: fmt.Errorf("parse feed: %w", err)}
	}

	features := make([]ir.Feature, 0, len(feed.Items))
	for _, item := range feed.Items {
		features = append(features, ir.Feature{
			ID:     strings.TrimSpace(item.Title),
			Record: itemRecord(item),
		})
	}

	logger.Info("fetched catalog", "source", s.Name(), "features", len(features))
	return dedupe(features, logger), nil
}

// itemRecord keeps the fields that describe the item's content. Empty
// fields are omitted so a feed that starts emitting them does not look
// like a change.
func itemRecord(item *gofeed.Item) ir.IRObject {
	rec := ir.IRObject{}
	put := func(k, v string) {
		if v = strings.TrimSpace(v); v != "" {
			rec[k] = ir.IRString(v)
		}
	}
	put("title", item.Title)
	put("link", item.Link)
	put("guid", item.GUID)
	put("description", item.Description)
	put("content", item.Content)
	put("published", item.Published)
	put("updated", item.Updated)
	if len(item.Categories) > 0 {
		cats := make(ir.IRArray, len(item.Categories))
		for i, c := range item.Categories {
			cats[i] = ir.IRString(c)
		}
		rec["categories"] = cats
	}
	return rec
}
