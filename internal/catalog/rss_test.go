package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/baselinewatch/internal/ir"
)

const testFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Baseline</title>
    <link>https://example.com/</link>
    <description>New baseline features</description>
    <item>
      <title> CSS Grid </title>
      <link>https://example.com/grid</link>
      <guid>grid-1</guid>
      <description>Grid is widely available.</description>
      <pubDate>Mon, 01 Jan 2024 00:00:00 GMT</pubDate>
      <category>css</category>
    </item>
    <item>
      <title>Popover</title>
      <link>https://example.com/popover</link>
    </item>
    <item>
      <title>CSS Grid</title>
      <link>https://example.com/grid-again</link>
    </item>
  </channel>
</rss>`

func TestRSS_KeysItemsByTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, testFeed)
	}))
	defer srv.Close()

	src := &RSSSource{URL: srv.URL, Client: srv.Client()}
	features, err := src.Fetch(context.Background())
	require.NoError(t, err)

	// The repeated title keeps its first occurrence.
	assert.Equal(t, []string{"CSS Grid", "Popover"}, ir.IDs(features))

	grid := features[0].Record.(ir.IRObject)
	assert.Equal(t, "CSS Grid", grid.String("title"))
	assert.Equal(t, "https://example.com/grid", grid.String("link"))
	assert.Equal(t, "grid-1", grid.String("guid"))
	assert.Equal(t, ir.IRArray{ir.IRString("css")}, grid["categories"])

	popover := features[1].Record.(ir.IRObject)
	_, hasGUID := popover["guid"]
	assert.False(t, hasGUID, "empty fields are omitted")
}

func TestRSS_ParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "this is not a feed")
	}))
	defer srv.Close()

	src := &RSSSource{URL: srv.URL, Client: srv.Client()}
	_, err := src.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUpstream))
}

func TestRSS_NoURL(t *testing.T) {
	_, err := (&RSSSource{}).Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUpstream))
}
