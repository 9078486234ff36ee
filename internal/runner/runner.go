// Package runner performs one fetch, detect and publish cycle.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/baselinewatch/internal/catalog"
	"github.com/roach88/baselinewatch/internal/detect"
	"github.com/roach88/baselinewatch/internal/metrics"
	"github.com/roach88/baselinewatch/internal/publish"
)

// Summary describes one finished run.
type Summary struct {
	RunID     string        `json:"run_id"`
	Source    string        `json:"source"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	Fetched   int           `json:"fetched"`
	Changed   []string      `json:"changed"`
	Unchanged int           `json:"unchanged"`
	Skipped   []string      `json:"skipped,omitempty"`
	Published int           `json:"published"`
	Failed    []string      `json:"failed,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// OK reports whether the run finished without any error.
func (s *Summary) OK() bool {
	return s.Error == ""
}

// Runner wires a source, a detector and a publisher.
type Runner struct {
	Source    catalog.Source
	Detector  *detect.Detector
	Publisher publish.Publisher
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
	// NewRunID defaults to a UUIDv7.
	NewRunID func() string
}

// RunOnce fetches the catalog, detects changes and publishes them in
// order.
//
// A fetch failure ends the run with zero changes. A detection failure
// ends it before anything is published, even if some changes were
// already recorded. A publish failure is logged and counted; the
// remaining features are still published and the failures are joined
// into the returned error. The Summary is returned in every case.
func (r *Runner) RunOnce(ctx context.Context) (*Summary, error) {
	now := r.now()
	start := now()
	sum := &Summary{
		RunID:     r.runID(),
		Source:    r.Source.Name(),
		StartedAt: start,
		Changed:   []string{},
	}
	logger := r.logger().With("run_id", sum.RunID)
	logger.Info("run started", "source", sum.Source)

	result, err := r.cycle(ctx, logger, sum)
	if err != nil {
		sum.Error = err.Error()
	}
	sum.Duration = now().Sub(start)

	r.Metrics.ObserveRun(result, metrics.RunStats{
		Changed:   len(sum.Changed),
		Skipped:   len(sum.Skipped),
		Published: sum.Published,
		Failed:    len(sum.Failed),
	}, start.Add(sum.Duration), sum.Duration)

	if err != nil {
		logger.Error("run failed", "result", result, "error", err,
			"changed", len(sum.Changed), "published", sum.Published)
		return sum, err
	}
	logger.Info("run finished",
		"fetched", sum.Fetched,
		"changed", len(sum.Changed),
		"unchanged", sum.Unchanged,
		"published", sum.Published,
		"duration", sum.Duration)
	return sum, nil
}

func (r *Runner) cycle(ctx context.Context, logger *slog.Logger, sum *Summary) (string, error) {
	features, err := r.Source.Fetch(ctx)
	if err != nil {
		if !errors.Is(err, catalog.ErrUpstream) {
			err = &catalog.FetchError{Source: sum.Source, Err: err}
		}
		return metrics.ResultFetchError, err
	}
	sum.Fetched = len(features)

	res, err := r.Detector.Detect(ctx, features)
	if res != nil {
		for _, s := range res.Skipped {
			sum.Skipped = append(sum.Skipped, s.ID)
		}
		for _, f := range res.Changed {
			sum.Changed = append(sum.Changed, f.ID)
		}
		sum.Unchanged = res.Unchanged
	}
	if err != nil {
		return metrics.ResultDetectError, fmt.Errorf("detect: %w", err)
	}

	var errs []error
	for _, f := range res.Changed {
		if err := r.Publisher.Publish(ctx, f); err != nil {
			var pe *publish.PublishError
			if !errors.As(err, &pe) {
				err = &publish.PublishError{ID: f.ID, Err: err}
			}
			logger.Warn("publish failed; change stays recorded", "id", f.ID, "error", err)
			sum.Failed = append(sum.Failed, f.ID)
			errs = append(errs, err)
			continue
		}
		sum.Published++
	}
	if len(errs) > 0 {
		return metrics.ResultPublishFail, errors.Join(errs...)
	}
	return metrics.ResultSuccess, nil
}

func (r *Runner) now() func() time.Time {
	if r.Now != nil {
		return r.Now
	}
	return time.Now
}

func (r *Runner) runID() string {
	if r.NewRunID != nil {
		return r.NewRunID()
	}
	return uuid.Must(uuid.NewV7()).String()
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}
