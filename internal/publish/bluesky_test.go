package publish

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/baselinewatch/internal/ir"
)

// fakePDS implements the two XRPC procedures the publisher uses.
type fakePDS struct {
	mu       sync.Mutex
	logins   int
	sessions int
	posts    []map[string]any
	auth     []string
	expireAt int // number of posts after which the first token expires
	failPost bool
}

func (f *fakePDS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.URL.Path {
	case "/xrpc/com.atproto.server.createSession":
		f.logins++
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["identifier"] != "bot.example.com" || body["password"] != "app-password" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"AuthenticationRequired","message":"Invalid identifier or password"}`))
			return
		}
		f.sessions++
		json.NewEncoder(w).Encode(map[string]string{
			"accessJwt": "token-" + string(rune('0'+f.sessions)),
			"did":       "did:plc:bot",
		})
	case "/xrpc/com.atproto.repo.createRecord":
		if f.failPost {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"InvalidRequest","message":"bad record"}`))
			return
		}
		if r.Header.Get("Authorization") == "Bearer token-1" && f.expireAt > 0 && len(f.posts) >= f.expireAt {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"ExpiredToken","message":"Token has expired"}`))
			return
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		f.posts = append(f.posts, body)
		f.auth = append(f.auth, r.Header.Get("Authorization"))
		w.Write([]byte(`{"uri":"at://did:plc:bot/app.bsky.feed.post/1","cid":"x"}`))
	default:
		http.NotFound(w, r)
	}
}

func newTestPublisher(t *testing.T, pds *fakePDS) *BlueskyPublisher {
	t.Helper()
	srv := httptest.NewServer(pds)
	t.Cleanup(srv.Close)
	return &BlueskyPublisher{
		Service:  srv.URL,
		Handle:   "bot.example.com",
		Password: "app-password",
		Client:   srv.Client(),
		Now:      func() time.Time { return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC) },
	}
}

func gridFeature() ir.Feature {
	return ir.Feature{ID: "grid", Record: ir.IRObject{
		"name":   ir.IRString("Grid"),
		"status": ir.IRObject{"baseline": ir.IRString("high")},
	}}
}

func TestBluesky_Publish(t *testing.T) {
	pds := &fakePDS{}
	p := newTestPublisher(t, pds)

	require.NoError(t, p.Publish(context.Background(), gridFeature()))
	require.NoError(t, p.Publish(context.Background(), gridFeature()))

	assert.Equal(t, 1, pds.sessions, "session is reused")
	require.Len(t, pds.posts, 2)

	body := pds.posts[0]
	assert.Equal(t, "did:plc:bot", body["repo"])
	assert.Equal(t, "app.bsky.feed.post", body["collection"])

	record := body["record"].(map[string]any)
	assert.Equal(t, "app.bsky.feed.post", record["$type"])
	assert.Equal(t, "2024-03-15T12:00:00Z", record["createdAt"])
	assert.Equal(t, FormatPost(gridFeature()).Text, record["text"])

	facets := record["facets"].([]any)
	require.Len(t, facets, 1)
	facet := facets[0].(map[string]any)
	features := facet["features"].([]any)
	link := features[0].(map[string]any)
	assert.Equal(t, "app.bsky.richtext.facet#link", link["$type"])
	assert.Equal(t, "https://webstatus.dev/features/grid", link["uri"])

	want := FormatPost(gridFeature()).Facets[0]
	index := facet["index"].(map[string]any)
	assert.Equal(t, float64(want.ByteStart), index["byteStart"])
	assert.Equal(t, float64(want.ByteEnd), index["byteEnd"])

	assert.Equal(t, []string{"Bearer token-1", "Bearer token-1"}, pds.auth)
}

func TestBluesky_RefreshesExpiredSession(t *testing.T) {
	pds := &fakePDS{expireAt: 1}
	p := newTestPublisher(t, pds)

	require.NoError(t, p.Publish(context.Background(), gridFeature()))
	require.NoError(t, p.Publish(context.Background(), gridFeature()))

	assert.Equal(t, 2, pds.sessions)
	assert.Len(t, pds.posts, 2)
	assert.Equal(t, []string{"Bearer token-1", "Bearer token-2"}, pds.auth)
}

func TestBluesky_BadCredentials(t *testing.T) {
	pds := &fakePDS{}
	p := newTestPublisher(t, pds)
	p.Password = "wrong"

	err := p.Publish(context.Background(), gridFeature())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPublish))

	var pe *PublishError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "grid", pe.ID)
	assert.Contains(t, err.Error(), "AuthenticationRequired")
	assert.Equal(t, 1, pds.logins, "a failed login is not retried")
}

func TestBluesky_MissingCredentials(t *testing.T) {
	p := &BlueskyPublisher{}
	err := p.Publish(context.Background(), gridFeature())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credentials")
}

func TestBluesky_RejectedRecord(t *testing.T) {
	pds := &fakePDS{failPost: true}
	p := newTestPublisher(t, pds)

	err := p.Publish(context.Background(), gridFeature())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "InvalidRequest")
	assert.Equal(t, 1, pds.sessions, "a rejected record does not trigger a new session")
}

func TestBluesky_OverlongPostNotSent(t *testing.T) {
	pds := &fakePDS{}
	p := newTestPublisher(t, pds)
	f := ir.Feature{ID: "x", Record: ir.IRObject{
		"title": ir.IRString("X"),
		"link":  ir.IRString("https://example.com/" + strings.Repeat("a", MaxPostRunes)),
	}}

	err := p.Publish(context.Background(), f)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPublish)
	assert.ErrorIs(t, err, ErrPostTooLong)
	assert.Equal(t, 0, pds.logins)
	assert.Empty(t, pds.posts)
}

func TestLogPublisher(t *testing.T) {
	p := &LogPublisher{}
	assert.NoError(t, p.Publish(context.Background(), gridFeature()))
}
