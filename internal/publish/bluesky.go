package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	lexutil "github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"

	"github.com/roach88/baselinewatch/internal/ir"
)

// DefaultBlueskyService is the PDS used when none is configured.
const DefaultBlueskyService = "https://bsky.social"

// BlueskyPublisher posts to Bluesky over XRPC. A session is created on
// first use and reused; an expired session is recreated once per post.
type BlueskyPublisher struct {
	Service  string
	Handle   string
	Password string

	Client *http.Client
	Logger *slog.Logger
	// Now stamps createdAt. Defaults to time.Now.
	Now func() time.Time

	mu sync.Mutex
	xc *xrpc.Client
}

// Publish implements Publisher.
func (p *BlueskyPublisher) Publish(ctx context.Context, f ir.Feature) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	formatted := FormatPost(f)
	if err := formatted.Check(); err != nil {
		return &PublishError{ID: f.ID, Err: err}
	}
	post := p.record(formatted)
	err := p.post(ctx, post)
	if p.xc != nil && p.xc.Auth != nil && expiredToken(err) {
		p.logger().Debug("bluesky session expired", "id", f.ID)
		p.xc.Auth = nil
		err = p.post(ctx, post)
	}
	if err != nil {
		return &PublishError{ID: f.ID, Err: err}
	}
	p.logger().Info("posted", "id", f.ID)
	return nil
}

func (p *BlueskyPublisher) post(ctx context.Context, post *bsky.FeedPost) error {
	if err := p.login(ctx); err != nil {
		return err
	}
	_, err := atproto.RepoCreateRecord(ctx, p.xc, &atproto.RepoCreateRecord_Input{
		Repo:       p.xc.Auth.Did,
		Collection: "app.bsky.feed.post",
		Record:     &lexutil.LexiconTypeDecoder{Val: post},
	})
	return err
}

// login creates a session unless one is held.
func (p *BlueskyPublisher) login(ctx context.Context) error {
	if p.xc == nil {
		service := p.Service
		if service == "" {
			service = DefaultBlueskyService
		}
		client := p.Client
		if client == nil {
			client = http.DefaultClient
		}
		p.xc = &xrpc.Client{Host: strings.TrimRight(service, "/"), Client: client}
	}
	if p.xc.Auth != nil {
		return nil
	}
	if p.Handle == "" || p.Password == "" {
		return errors.New("bluesky credentials not configured")
	}

	out, err := atproto.ServerCreateSession(ctx, p.xc, &atproto.ServerCreateSession_Input{
		Identifier: p.Handle,
		Password:   p.Password,
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	p.xc.Auth = &xrpc.AuthInfo{
		AccessJwt:  out.AccessJwt,
		RefreshJwt: out.RefreshJwt,
		Handle:     out.Handle,
		Did:        out.Did,
	}
	p.logger().Debug("bluesky session created", "did", out.Did)
	return nil
}

func (p *BlueskyPublisher) record(post Post) *bsky.FeedPost {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	rec := &bsky.FeedPost{
		LexiconTypeID: "app.bsky.feed.post",
		Text:          post.Text,
		CreatedAt:     now().UTC().Format(time.RFC3339Nano),
		Langs:         []string{"en"},
	}
	for _, f := range post.Facets {
		rec.Facets = append(rec.Facets, &bsky.RichtextFacet{
			Index: &bsky.RichtextFacet_ByteSlice{
				ByteStart: int64(f.ByteStart),
				ByteEnd:   int64(f.ByteEnd),
			},
			Features: []*bsky.RichtextFacet_Features_Elem{{
				RichtextFacet_Link: &bsky.RichtextFacet_Link{
					LexiconTypeID: "app.bsky.richtext.facet#link",
					Uri:           f.URI,
				},
			}},
		})
	}
	return rec
}

// expiredToken reports whether err asks for a new session.
func expiredToken(err error) bool {
	var xe *xrpc.XRPCError
	if errors.As(err, &xe) && xe.ErrStr == "ExpiredToken" {
		return true
	}
	var he *xrpc.Error
	return errors.As(err, &he) && he.StatusCode == http.StatusUnauthorized
}

func (p *BlueskyPublisher) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}
