package store

import (
	"context"
	"fmt"
	"strconv"
)

const featuresNamespace = "features"

// FeaturesPrefix is the namespace holding one fingerprint per feature.
var FeaturesPrefix = Key{featuresNamespace}

// VersionKey holds the number of migrations applied.
var VersionKey = Key{"db_version"}

// FeatureKey returns the key under which id's fingerprint is stored.
func FeatureKey(id string) Key {
	return Key{featuresNamespace, id}
}

// FeatureEntry is a recorded (feature id, fingerprint) pair.
type FeatureEntry struct {
	ID          string `json:"id"`
	Fingerprint string `json:"fingerprint"`
}

// GetFingerprint returns the last recorded fingerprint for id.
// ok is false if the feature was never recorded.
func (s *Store) GetFingerprint(ctx context.Context, id string) (fingerprint string, ok bool, err error) {
	return s.Get(ctx, FeatureKey(id))
}

// SetFingerprint records fingerprint as the latest for id, overwriting silently.
func (s *Store) SetFingerprint(ctx context.Context, id, fingerprint string) error {
	return s.Set(ctx, FeatureKey(id), fingerprint)
}

// ListFeatures returns every recorded feature ordered by id.
func (s *Store) ListFeatures(ctx context.Context) ([]FeatureEntry, error) {
	entries, err := s.List(ctx, FeaturesPrefix)
	if err != nil {
		return nil, err
	}

	features := make([]FeatureEntry, 0, len(entries))
	for _, e := range entries {
		if len(e.Key) != 2 {
			continue
		}
		features = append(features, FeatureEntry{ID: e.Key[1], Fingerprint: e.Value})
	}
	return features, nil
}

// DeleteAllFeatures removes every feature entry. Other namespaces,
// including the version, are not touched.
func (s *Store) DeleteAllFeatures(ctx context.Context) error {
	_, err := s.DeletePrefix(ctx, FeaturesPrefix)
	return err
}

// GetVersion returns the stored schema version. ok is false when the
// store was never initialized.
func (s *Store) GetVersion(ctx context.Context) (version int, ok bool, err error) {
	raw, ok, err := s.Get(ctx, VersionKey)
	if err != nil || !ok {
		return 0, ok, err
	}
	return parseVersion(raw)
}

func parseVersion(raw string) (int, bool, error) {
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, false, storageErr("get version", VersionKey, fmt.Errorf("corrupt version %q", raw))
	}
	return v, true, nil
}

// SetVersion stores version. It refuses to lower an existing version:
// the counter only moves backwards through Reset.
func (s *Store) SetVersion(ctx context.Context, version int) error {
	if version < 0 {
		return fmt.Errorf("set version: negative version %d", version)
	}

	db, err := s.conn()
	if err != nil {
		return storageErr("set version", VersionKey, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("set version", VersionKey, err)
	}
	defer tx.Rollback() // No-op if committed

	raw, ok, err := get(ctx, tx, VersionKey)
	if err != nil {
		return err
	}
	if ok {
		current, _, err := parseVersion(raw)
		if err != nil {
			return err
		}
		if version < current {
			return fmt.Errorf("set version %d (current %d): %w", version, current, ErrVersionRegression)
		}
	}

	if err := set(ctx, tx, VersionKey, strconv.Itoa(version)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageErr("set version", VersionKey, err)
	}
	return nil
}

// Reset returns the store to the never-initialized state: every feature
// entry and the version are removed in a single transaction.
func (s *Store) Reset(ctx context.Context) error {
	db, err := s.conn()
	if err != nil {
		return storageErr("reset", nil, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("reset", nil, err)
	}
	defer tx.Rollback()

	if _, err := deletePrefix(ctx, tx, FeaturesPrefix); err != nil {
		return err
	}
	if err := del(ctx, tx, VersionKey); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageErr("reset", nil, err)
	}
	return nil
}
