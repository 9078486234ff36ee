// Package migrate applies the ordered, one-time setup steps a fingerprint
// store needs before change detection may run against it.
//
// The store's version counter equals the number of migrations applied.
// Apply runs migrations [version, len) in order and bumps the counter only
// after the whole range succeeded, so a crash part-way re-runs the range on
// the next start. Every migration must therefore tolerate re-application.
//
// Reset is the only operation that lowers the counter.
package migrate
