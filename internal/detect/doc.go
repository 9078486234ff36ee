// Package detect decides which candidate features are new or changed
// since the previous run.
//
// A Detector compares each candidate's fingerprint with the one recorded
// in a FingerprintStore. Changed features are returned in input order and
// their new fingerprint is written immediately (mark-on-detect): a crash
// part-way through leaves the store consistent with the changes recorded
// so far, and a retry will not report them again.
//
// The store is updated before anything is published. A feature whose
// publication later fails is not re-reported; callers wanting
// exactly-once delivery need their own outbox on top of this package.
//
// Concurrent Detect calls against one store are not coordinated. Two
// processes sharing a database can race between the read and the write
// of the same feature; the later write wins.
package detect
