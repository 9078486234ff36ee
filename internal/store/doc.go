// Package store provides the SQLite-backed fingerprint store.
//
// The store is a small key-value table addressed by hierarchical keys
// (Key is a []string). Two namespaces are used:
//
//   - ["features", <feature id>] -> last-seen fingerprint
//   - ["db_version"]             -> number of migrations applied
//
// # Guarantees
//
//   - Every operation is atomic at single-key granularity.
//   - Writes are applied in call order on one connection, so a version
//     written after a migration's writes never becomes visible without them.
//   - Reset clears feature entries and the version in one transaction.
//   - Any failure of the medium surfaces as a *StorageError matching
//     ErrStorageUnavailable. Callers must not assume partial success.
//
// The store provides no cross-process locking. Two processes detecting
// against the same file may interleave their get/set pairs; the later
// writer wins.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// The default driver is github.com/mattn/go-sqlite3 (cgo). Building with
// -tags purego switches to modernc.org/sqlite.
package store
