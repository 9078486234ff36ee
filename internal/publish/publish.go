// Package publish turns changed features into social posts.
//
// The detector never calls into this package. The runner hands it the
// changed features in order, one at a time.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/baselinewatch/internal/ir"
)

// Publisher delivers one post per changed feature.
type Publisher interface {
	Publish(ctx context.Context, f ir.Feature) error
}

// ErrPublish is matched by every PublishError.
var ErrPublish = errors.New("publish failed")

// PublishError reports a feature whose post was not delivered. Its
// fingerprint is already recorded, so it will not be offered again.
type PublishError struct {
	ID  string
	Err error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %q: %v", e.ID, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrPublish) hold.
func (e *PublishError) Is(target error) bool {
	return target == ErrPublish
}

// LogPublisher writes posts to a logger instead of delivering them.
// Used for dry runs.
type LogPublisher struct {
	Logger *slog.Logger
}

// Publish implements Publisher.
func (p *LogPublisher) Publish(ctx context.Context, f ir.Feature) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	post := FormatPost(f)
	logger.Info("dry run: would post", "id", f.ID, "text", post.Text, "facets", len(post.Facets))
	return nil
}
