package catalog

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Window bounds the baseline dates a query asks for. Both ends are
// inclusive calendar days in UTC.
type Window struct {
	From time.Time
	To   time.Time
}

// DebugWindow is the fixed, wide window used in debug mode so every
// baseline feature is returned regardless of today's date.
var DebugWindow = Window{
	From: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
	To:   time.Date(2099, 12, 31, 0, 0, 0, 0, time.UTC),
}

// Recent returns the window [now-lookback, now], truncated to days.
func Recent(now time.Time, lookback time.Duration) Window {
	to := now.UTC().Truncate(24 * time.Hour)
	return Window{From: to.Add(-lookback), To: to}
}

// Query renders the window as a webstatus search term.
func (w Window) Query() string {
	return fmt.Sprintf("baseline_date:%s..%s", w.From.Format(dateLayout), w.To.Format(dateLayout))
}

// String implements fmt.Stringer.
func (w Window) String() string {
	return w.From.Format(dateLayout) + ".." + w.To.Format(dateLayout)
}
