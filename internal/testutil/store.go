package testutil

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/roach88/baselinewatch/internal/store"
)

// OpenStore opens a fresh store in t.TempDir and closes it on cleanup.
func OpenStore(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "baselinewatch.db"))
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// CountingStore wraps a store and counts calls that can modify it.
type CountingStore struct {
	*store.Store
	writes atomic.Int64
}

// NewCountingStore wraps s.
func NewCountingStore(s *store.Store) *CountingStore {
	return &CountingStore{Store: s}
}

// Writes returns the number of mutating calls made so far.
func (c *CountingStore) Writes() int64 {
	return c.writes.Load()
}

func (c *CountingStore) Set(ctx context.Context, key store.Key, value string) error {
	c.writes.Add(1)
	return c.Store.Set(ctx, key, value)
}

func (c *CountingStore) Delete(ctx context.Context, key store.Key) error {
	c.writes.Add(1)
	return c.Store.Delete(ctx, key)
}

func (c *CountingStore) DeletePrefix(ctx context.Context, prefix store.Key) (int64, error) {
	c.writes.Add(1)
	return c.Store.DeletePrefix(ctx, prefix)
}

func (c *CountingStore) SetFingerprint(ctx context.Context, id, fingerprint string) error {
	c.writes.Add(1)
	return c.Store.SetFingerprint(ctx, id, fingerprint)
}

func (c *CountingStore) SetVersion(ctx context.Context, version int) error {
	c.writes.Add(1)
	return c.Store.SetVersion(ctx, version)
}

func (c *CountingStore) Reset(ctx context.Context) error {
	c.writes.Add(1)
	return c.Store.Reset(ctx)
}
