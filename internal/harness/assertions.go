package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/baselinewatch/internal/ir"
	"github.com/roach88/baselinewatch/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] run %d %s %s\n", i+1, ev.Run, ev.Type, ev.ID)
		}
	}
	return buf.String()
}

// AssertionContext gives assertions access to the final store.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluateAssertion(result, a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return errs
}

func evaluateAssertion(result *Result, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertTraceContains:
		return assertTraceContains(result.Trace, a)
	case AssertTraceOrder:
		return assertTraceOrder(result, a)
	case AssertTraceCount:
		return assertTraceCount(result.Trace, a)
	case AssertStored:
		return assertStored(actx, a)
	case AssertAbsent:
		return assertAbsent(actx, a)
	case AssertVersion:
		return assertVersion(actx, a)
	case AssertFeatureCount:
		return assertFeatureCount(actx, a)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

// assertTraceContains checks for an event of the given type for id.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if ev.Type == a.Event && ev.ID == a.ID {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("%s event for %s", a.Event, a.ID),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the ids were reported as changed in the
// given relative order. Other changes may appear in between.
func assertTraceOrder(result *Result, a Assertion) error {
	changed := result.Changed(0)
	pos := 0
	for _, id := range a.IDs {
		i := slices.Index(changed[pos:], id)
		if i < 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("changes in order: %v", a.IDs),
				Actual:   fmt.Sprintf("%s not reported after position %d in %v", id, pos, changed),
				Trace:    result.Trace,
			}
		}
		pos += i + 1
	}
	return nil
}

// assertTraceCount checks the number of events of the given type.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Type == a.Event {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d %s events", a.Count, a.Event),
			Actual:   fmt.Sprintf("%d events", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertStored checks that id's stored fingerprint is that of a.Record.
func assertStored(actx *AssertionContext, a Assertion) error {
	want, err := ir.Fingerprint(a.Record)
	if err != nil {
		return err
	}
	got, ok, err := actx.Store.GetFingerprint(actx.Ctx, a.ID)
	if err != nil {
		return err
	}
	if !ok {
		return &AssertionError{
			Type:     AssertStored,
			Expected: fmt.Sprintf("fingerprint %s for %s", want, a.ID),
			Actual:   "no entry",
		}
	}
	if got != want {
		return &AssertionError{
			Type:     AssertStored,
			Expected: fmt.Sprintf("fingerprint %s for %s", want, a.ID),
			Actual:   fmt.Sprintf("fingerprint %s", got),
		}
	}
	return nil
}

func assertAbsent(actx *AssertionContext, a Assertion) error {
	got, ok, err := actx.Store.GetFingerprint(actx.Ctx, a.ID)
	if err != nil {
		return err
	}
	if ok {
		return &AssertionError{
			Type:     AssertAbsent,
			Expected: fmt.Sprintf("no entry for %s", a.ID),
			Actual:   fmt.Sprintf("fingerprint %s", got),
		}
	}
	return nil
}

func assertVersion(actx *AssertionContext, a Assertion) error {
	v, ok, err := actx.Store.GetVersion(actx.Ctx)
	if err != nil {
		return err
	}
	if !ok {
		v = -1
	}
	if v != a.Version {
		return &AssertionError{
			Type:     AssertVersion,
			Expected: fmt.Sprintf("version %d", a.Version),
			Actual:   fmt.Sprintf("version %d", v),
		}
	}
	return nil
}

func assertFeatureCount(actx *AssertionContext, a Assertion) error {
	features, err := actx.Store.ListFeatures(actx.Ctx)
	if err != nil {
		return err
	}
	if len(features) != a.Count {
		return &AssertionError{
			Type:     AssertFeatureCount,
			Expected: fmt.Sprintf("%d stored features", a.Count),
			Actual:   fmt.Sprintf("%d stored features", len(features)),
		}
	}
	return nil
}
