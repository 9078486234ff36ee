package detect

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/baselinewatch/internal/ir"
	"github.com/roach88/baselinewatch/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "detect.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func rec(name, baseline string) ir.IRObject {
	return ir.IRObject{
		"name":   ir.IRString(name),
		"status": ir.IRObject{"baseline": ir.IRString(baseline)},
	}
}

func TestDetect_FirstSight(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	r1 := rec("Grid", "high")

	res, err := New(s).Detect(ctx, []ir.Feature{{ID: "css.grid", Record: r1}})
	require.NoError(t, err)
	require.Len(t, res.Changed, 1)
	assert.Equal(t, "css.grid", res.Changed[0].ID)
	assert.Equal(t, r1, res.Changed[0].Record)

	fp, ok, err := s.GetFingerprint(ctx, "css.grid")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ir.MustFingerprint(r1), fp)
}

func TestDetect_Stability(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	r1 := rec("Grid", "high")
	require.NoError(t, s.SetFingerprint(ctx, "css.grid", ir.MustFingerprint(r1)))

	res, err := New(s).Detect(ctx, []ir.Feature{{ID: "css.grid", Record: r1}})
	require.NoError(t, err)
	assert.Empty(t, res.Changed)
	assert.Equal(t, 1, res.Unchanged)
}

func TestDetect_ChangePropagation(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	r1 := rec("Grid", "low")
	r2 := rec("Grid", "high")
	require.NoError(t, s.SetFingerprint(ctx, "css.grid", ir.MustFingerprint(r1)))

	res, err := New(s).Detect(ctx, []ir.Feature{{ID: "css.grid", Record: r2}})
	require.NoError(t, err)
	assert.Equal(t, []string{"css.grid"}, ir.IDs(res.Changed))

	fp, _, err := s.GetFingerprint(ctx, "css.grid")
	require.NoError(t, err)
	assert.Equal(t, ir.MustFingerprint(r2), fp)
}

func TestDetect_OrderPreserved(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	batch := []ir.Feature{
		{ID: "e", Record: rec("E", "low")},
		{ID: "a", Record: rec("A", "low")},
		{ID: "d", Record: rec("D", "low")},
		{ID: "b", Record: rec("B", "low")},
		{ID: "c", Record: rec("C", "low")},
	}
	// a and b are already known.
	require.NoError(t, s.SetFingerprint(ctx, "a", ir.MustFingerprint(batch[1].Record)))
	require.NoError(t, s.SetFingerprint(ctx, "b", ir.MustFingerprint(batch[3].Record)))

	res, err := New(s).Detect(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, []string{"e", "d", "c"}, ir.IDs(res.Changed))
	assert.Equal(t, 2, res.Unchanged)
}

func TestDetect_EndToEnd(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	d := New(s)

	a := rec("Grid", "high")
	b := rec("Nesting", "low")
	c := rec("Nesting", "high")

	res, err := d.Detect(ctx, []ir.Feature{{ID: "css.grid", Record: a}, {ID: "css.nesting", Record: b}})
	require.NoError(t, err)
	assert.Equal(t, []string{"css.grid", "css.nesting"}, ir.IDs(res.Changed))

	features, err := s.ListFeatures(ctx)
	require.NoError(t, err)
	assert.Equal(t, []store.FeatureEntry{
		{ID: "css.grid", Fingerprint: ir.MustFingerprint(a)},
		{ID: "css.nesting", Fingerprint: ir.MustFingerprint(b)},
	}, features)

	res, err = d.Detect(ctx, []ir.Feature{{ID: "css.grid", Record: a}, {ID: "css.nesting", Record: c}})
	require.NoError(t, err)
	require.Len(t, res.Changed, 1)
	assert.Equal(t, "css.nesting", res.Changed[0].ID)
	assert.Equal(t, c, res.Changed[0].Record)

	// Third run: nothing left to report.
	res, err = d.Detect(ctx, []ir.Feature{{ID: "css.grid", Record: a}, {ID: "css.nesting", Record: c}})
	require.NoError(t, err)
	assert.Empty(t, res.Changed)
	assert.Equal(t, 2, res.Unchanged)
}

func TestDetect_KeyOrderDoesNotMatter(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	d := New(s)

	first, err := ir.UnmarshalRecord([]byte(`{"name":"Grid","status":{"baseline":"high","since":1.0}}`))
	require.NoError(t, err)
	second, err := ir.UnmarshalRecord([]byte(`{"status":{"since":1,"baseline":"high"},"name":"Grid"}`))
	require.NoError(t, err)

	_, err = d.Detect(ctx, []ir.Feature{{ID: "css.grid", Record: first}})
	require.NoError(t, err)

	res, err := d.Detect(ctx, []ir.Feature{{ID: "css.grid", Record: second}})
	require.NoError(t, err)
	assert.Empty(t, res.Changed)
}

func TestDetect_EmptyBatch(t *testing.T) {
	res, err := New(openStore(t)).Detect(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Changed)
	assert.Zero(t, res.Unchanged)
}

func TestDetect_SerializationErrorSkipsItem(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	good := rec("Grid", "high")
	bad := ir.IRObject{"usage": ir.IRFloat(math.NaN())}

	// A previous good fingerprint must survive.
	old := ir.MustFingerprint(rec("Popover", "low"))
	require.NoError(t, s.SetFingerprint(ctx, "html.popover", old))

	res, err := New(s).Detect(ctx, []ir.Feature{
		{ID: "html.popover", Record: bad},
		{ID: "css.grid", Record: good},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"css.grid"}, ir.IDs(res.Changed))
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "html.popover", res.Skipped[0].ID)
	assert.True(t, ir.IsSerializationError(res.Skipped[0].Err))

	fp, _, err := s.GetFingerprint(ctx, "html.popover")
	require.NoError(t, err)
	assert.Equal(t, old, fp)
}

func TestDetect_RejectsDuplicateIDs(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	res, err := New(s).Detect(ctx, []ir.Feature{
		{ID: "css.grid", Record: rec("Grid", "low")},
		{ID: "css.nesting", Record: rec("Nesting", "low")},
		{ID: "css.grid", Record: rec("Grid", "high")},
	})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, ErrDuplicateFeature))
	assert.True(t, IsInvalidBatch(err))

	var dup *DuplicateFeatureError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "css.grid", dup.ID)
	assert.Equal(t, 0, dup.First)
	assert.Equal(t, 2, dup.Second)

	features, err := s.ListFeatures(ctx)
	require.NoError(t, err)
	assert.Empty(t, features, "nothing is written for a rejected batch")
}

func TestDetect_RejectsEmptyID(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	_, err := New(s).Detect(ctx, []ir.Feature{
		{ID: "css.grid", Record: rec("Grid", "low")},
		{ID: "", Record: rec("?", "low")},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyFeatureID))

	_, ok, err := s.GetFingerprint(ctx, "css.grid")
	require.NoError(t, err)
	assert.False(t, ok)
}

// flakyStore fails SetFingerprint for one id.
type flakyStore struct {
	fps    map[string]string
	failOn string
}

func (f *flakyStore) GetFingerprint(_ context.Context, id string) (string, bool, error) {
	fp, ok := f.fps[id]
	return fp, ok, nil
}

func (f *flakyStore) SetFingerprint(_ context.Context, id, fp string) error {
	if id == f.failOn {
		return errors.New("disk full")
	}
	f.fps[id] = fp
	return nil
}

func TestDetect_StoreFailureReturnsPartialResult(t *testing.T) {
	s := &flakyStore{fps: map[string]string{}, failOn: "b"}

	res, err := New(s).Detect(context.Background(), []ir.Feature{
		{ID: "a", Record: rec("A", "low")},
		{ID: "b", Record: rec("B", "low")},
		{ID: "c", Record: rec("C", "low")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"b"`)
	require.NotNil(t, res)
	assert.Equal(t, []string{"a"}, ir.IDs(res.Changed))
	assert.Contains(t, s.fps, "a")
	assert.NotContains(t, s.fps, "c", "processing stops at the failure")
}

func TestDetect_ClosedStoreIsUnavailable(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Close())

	_, err := New(s).Detect(context.Background(), []ir.Feature{{ID: "a", Record: rec("A", "low")}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrStorageUnavailable))
}

func TestDetect_RetryAfterCrashSkipsRecorded(t *testing.T) {
	ctx := context.Background()
	s := &flakyStore{fps: map[string]string{}, failOn: "b"}
	batch := []ir.Feature{
		{ID: "a", Record: rec("A", "low")},
		{ID: "b", Record: rec("B", "low")},
	}

	_, err := New(s).Detect(ctx, batch)
	require.Error(t, err)

	s.failOn = ""
	res, err := New(s).Detect(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ir.IDs(res.Changed))
	assert.Equal(t, 1, res.Unchanged)
}
