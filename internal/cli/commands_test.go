package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/baselinewatch/internal/ir"
	"github.com/roach88/baselinewatch/internal/store"
)

func openForTest(t *testing.T, path string) *store.Store {
	t.Helper()
	st, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestMigrate_AppliesOnceAndReportsPending(t *testing.T) {
	f := newFixture(t, "text", grid, nesting)

	out, err := execute(NewMigrateCommand(f.opts), "--pending")
	require.NoError(t, err)
	assert.Contains(t, out, "2 pending migration(s) at version 0")
	assert.Contains(t, out, "- drop-legacy-rss-entries")
	assert.Contains(t, out, "- seed-current-features")
	assert.Equal(t, 0, f.source.Calls(), "--pending must not run migrations")

	out, err = execute(NewMigrateCommand(f.opts))
	require.NoError(t, err)
	assert.Contains(t, out, "Applied 2 migration(s), store at version 2")

	out, err = execute(NewMigrateCommand(f.opts))
	require.NoError(t, err)
	assert.Contains(t, out, "Applied 0 migration(s), store at version 2")
	assert.Equal(t, 1, f.source.Calls())

	out, err = execute(NewMigrateCommand(f.opts), "--pending")
	require.NoError(t, err)
	assert.Contains(t, out, "Store is up to date (version 2)")
}

func TestMigrate_JSON(t *testing.T) {
	f := newFixture(t, "json", grid)

	out, err := execute(NewMigrateCommand(f.opts))
	require.NoError(t, err)

	var resp struct {
		Status string          `json:"status"`
		Data   MigrationReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, MigrationReport{Version: 2, Applied: 2}, resp.Data)
}

func TestReset_ClearsStore(t *testing.T) {
	f := newFixture(t, "text", grid, nesting)
	_, err := execute(NewMigrateCommand(f.opts))
	require.NoError(t, err)

	out, err := execute(NewResetCommand(f.opts))
	require.NoError(t, err)
	assert.Contains(t, out, "Store reset: "+f.opts.Database)

	st := openForTest(t, f.opts.Database)
	features, err := st.ListFeatures(context.Background())
	require.NoError(t, err)
	assert.Empty(t, features)
	_, ok, err := st.GetVersion(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStatus_FreshAndSeeded(t *testing.T) {
	f := newFixture(t, "text", grid, nesting)

	out, err := execute(NewStatusCommand(f.opts))
	require.NoError(t, err)
	assert.Contains(t, out, "Version:  not initialized")
	assert.Contains(t, out, "Features: 0")

	_, err = execute(NewMigrateCommand(f.opts))
	require.NoError(t, err)

	out, err = execute(NewStatusCommand(f.opts), "--list")
	require.NoError(t, err)
	assert.Contains(t, out, "Version:  2")
	assert.Contains(t, out, "Features: 2")
	assert.Contains(t, out, ir.MustFingerprint(grid.Record)[:12]+"  css.grid")
}

func TestStatus_JSON(t *testing.T) {
	f := newFixture(t, "json", grid)
	_, err := execute(NewMigrateCommand(f.opts))
	require.NoError(t, err)

	out, err := execute(NewStatusCommand(f.opts), "--list")
	require.NoError(t, err)

	var resp struct {
		Data StoreStatus `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Data.Initialized)
	assert.Equal(t, 2, resp.Data.Version)
	assert.Equal(t, 1, resp.Data.Features)
	require.Len(t, resp.Data.Entries, 1)
	assert.Equal(t, store.FeatureEntry{ID: "css.grid", Fingerprint: ir.MustFingerprint(grid.Record)}, resp.Data.Entries[0])
}

func TestFingerprint_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"Grid","usage":1.0}`), 0644))

	out, err := execute(NewFingerprintCommand(&RootOptions{Format: "text"}), path, "--canonical")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, ir.MustFingerprint(map[string]any{"usage": 1, "name": "Grid"}), lines[0])
	assert.Equal(t, `{"name":"Grid","usage":1}`, lines[1])
}

func TestFingerprint_Stdin(t *testing.T) {
	cmd := NewFingerprintCommand(&RootOptions{Format: "json"})
	cmd.SetIn(strings.NewReader(`{"b":2,"a":1}`))

	out, err := execute(cmd, "-")
	require.NoError(t, err)

	var resp struct {
		Data FingerprintResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, ir.MustFingerprint(map[string]any{"a": 1, "b": 2}), resp.Data.Fingerprint)
	assert.Empty(t, resp.Data.Canonical)
}

func TestFingerprint_Errors(t *testing.T) {
	_, err := execute(NewFingerprintCommand(&RootOptions{Format: "text"}), filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "file not found")

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":`), 0644))
	_, err = execute(NewFingerprintCommand(&RootOptions{Format: "text"}), path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid record")
}

func TestServe_InvalidSchedule(t *testing.T) {
	f := newFixture(t, "text", grid)

	_, err := execute(NewServeCommand(f.opts), "--schedule", "every tuesday")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `invalid schedule "every tuesday"`)
	assert.Equal(t, 0, f.source.Calls())
}

func TestServe_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	f := newFixture(t, "text", grid)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := NewServeCommand(f.opts)
	cmd.SetContext(ctx)

	done := make(chan error, 1)
	go func() {
		_, err := execute(cmd, "--addr", "127.0.0.1:0", "--schedule", "@every 1h", "--now")
		done <- err
	}()

	// One fetch seeds the store, the next is the immediate cycle.
	require.Eventually(t, func() bool { return f.source.Calls() >= 2 }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
	assert.Empty(t, f.publisher.Published())
}
