package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/baselinewatch/internal/detect"
	"github.com/roach88/baselinewatch/internal/ir"
	"github.com/roach88/baselinewatch/internal/migrate"
	"github.com/roach88/baselinewatch/internal/store"
	"github.com/roach88/baselinewatch/internal/testutil"
)

// Harness executes scenario runs against one store.
type Harness struct {
	store    *store.Store
	detector *detect.Detector
	logger   *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Execution flow:
//  1. Seed the store from Setup
//  2. For each run: optional reset, optional migrations, detection
//  3. Check run expectations
//  4. Evaluate assertions against the trace and the store
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	h := &Harness{
		store:    st,
		detector: detect.New(st, detect.WithLogger(logger)),
		logger:   logger,
	}

	ctx := context.Background()
	if err := h.executeSetup(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Runs {
		if err := h.executeRun(ctx, i+1, step, result); err != nil {
			return nil, fmt.Errorf("run %d: %w", i+1, err)
		}
	}

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}
	return result, nil
}

func (h *Harness) executeSetup(ctx context.Context, setup *Setup) error {
	if setup == nil {
		return nil
	}
	for _, kv := range setup.Keys {
		if err := h.store.Set(ctx, store.Key(kv.Key), kv.Value); err != nil {
			return err
		}
	}
	for i, spec := range setup.Stored {
		f, err := spec.feature()
		if err != nil {
			return fmt.Errorf("stored[%d]: %w", i, err)
		}
		fp, err := ir.Fingerprint(f.Record)
		if err != nil {
			return fmt.Errorf("stored[%d]: %w", i, err)
		}
		if err := h.store.SetFingerprint(ctx, f.ID, fp); err != nil {
			return err
		}
	}
	if setup.Version != nil {
		if err := h.store.SetVersion(ctx, *setup.Version); err != nil {
			return err
		}
	}
	return nil
}

// executeRun performs one run. Expectation mismatches are recorded on
// result; only infrastructure failures are returned.
func (h *Harness) executeRun(ctx context.Context, run int, step RunStep, result *Result) error {
	features := make([]ir.Feature, len(step.Features))
	for i, spec := range step.Features {
		f, err := spec.feature()
		if err != nil {
			return fmt.Errorf("features[%d]: %w", i, err)
		}
		features[i] = f
	}

	if step.Reset {
		if err := migrate.Reset(ctx, h.store); err != nil {
			return err
		}
		result.AddTrace(TraceEvent{Run: run, Type: EventReset})
	}

	if step.Migrate {
		src := testutil.NewStaticSource(features...)
		runner := migrate.NewRunner(h.logger, migrate.Builtin(src, h.logger)...)
		n, err := runner.Apply(ctx, h.store)
		if err != nil {
			return err
		}
		result.AddTrace(TraceEvent{Run: run, Type: EventMigrate, Applied: n})
	}

	res, err := h.detector.Detect(ctx, features)
	if res != nil {
		traceDetection(run, features, res, result)
	}
	if err != nil {
		result.AddTrace(TraceEvent{Run: run, Type: EventError, Error: err.Error()})
	}

	checkRun(run, step, res, err, result)
	return nil
}

// traceDetection emits one event per candidate that was processed.
func traceDetection(run int, features []ir.Feature, res *detect.Result, result *Result) {
	changed := make(map[string]bool, len(res.Changed))
	for _, f := range res.Changed {
		changed[f.ID] = true
	}
	skipped := make(map[string]bool, len(res.Skipped))
	for _, s := range res.Skipped {
		skipped[s.ID] = true
	}

	processed := len(res.Changed) + len(res.Skipped) + res.Unchanged
	for _, f := range features[:processed] {
		ev := TraceEvent{Run: run, ID: f.ID, Type: EventUnchanged}
		switch {
		case changed[f.ID]:
			ev.Type = EventChanged
		case skipped[f.ID]:
			ev.Type = EventSkipped
		}
		result.AddTrace(ev)
	}
}

func checkRun(run int, step RunStep, res *detect.Result, err error, result *Result) {
	if step.ExpectError != "" {
		if err == nil {
			result.AddError(fmt.Sprintf("run %d: expected error containing %q, got none", run, step.ExpectError))
		} else if !strings.Contains(err.Error(), step.ExpectError) {
			result.AddError(fmt.Sprintf("run %d: expected error containing %q, got %q", run, step.ExpectError, err.Error()))
		}
	} else if err != nil {
		result.AddError(fmt.Sprintf("run %d: unexpected error: %v", run, err))
	}

	var changed, skipped []string
	if res != nil {
		changed = ir.IDs(res.Changed)
		for _, s := range res.Skipped {
			skipped = append(skipped, s.ID)
		}
	}
	if !slices.Equal(changed, step.ExpectChanged) {
		result.AddError(fmt.Sprintf("run %d: expected changed %v, got %v", run, step.ExpectChanged, changed))
	}
	if step.ExpectSkipped != nil && !slices.Equal(skipped, step.ExpectSkipped) {
		result.AddError(fmt.Sprintf("run %d: expected skipped %v, got %v", run, step.ExpectSkipped, skipped))
	}
}
