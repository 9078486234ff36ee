package migrate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/baselinewatch/internal/catalog"
	"github.com/roach88/baselinewatch/internal/ir"
	"github.com/roach88/baselinewatch/internal/store"
)

// LegacyRSSPrefix is the namespace the feed-based bot recorded titles under.
var LegacyRSSPrefix = store.Key{"rss"}

// Builtin returns the production migration list. Order is part of the
// on-disk format: append, never reorder or remove.
func Builtin(src catalog.Source, logger *slog.Logger) []Migration {
	return []Migration{
		DropLegacyRSSEntries(logger),
		SeedCurrentFeatures(src, logger),
	}
}

// DropLegacyRSSEntries removes the ["rss", *] entries left by the
// feed-based bot. Running it again deletes nothing.
func DropLegacyRSSEntries(logger *slog.Logger) Migration {
	if logger == nil {
		logger = slog.Default()
	}
	return Migration{
		Name: "drop-legacy-rss-entries",
		Up: func(ctx context.Context, s Store) error {
			n, err := s.DeletePrefix(ctx, LegacyRSSPrefix)
			if err != nil {
				return err
			}
			logger.Info("dropped legacy rss entries", "count", n)
			return nil
		},
	}
}

// SeedCurrentFeatures records a fingerprint for every feature src returns
// today, without publishing anything, so that a fresh store does not
// announce the whole catalog on its first run.
//
// Re-running rewrites fingerprints for the catalog as it is at that time.
// Records with no canonical encoding are skipped; the detector will skip
// them again.
func SeedCurrentFeatures(src catalog.Source, logger *slog.Logger) Migration {
	if logger == nil {
		logger = slog.Default()
	}
	return Migration{
		Name: "seed-current-features",
		Up: func(ctx context.Context, s Store) error {
			if src == nil {
				return fmt.Errorf("no catalog source configured")
			}
			features, err := src.Fetch(ctx)
			if err != nil {
				return err
			}

			seeded := 0
			for _, f := range features {
				if f.ID == "" {
					logger.Warn("skipping feature without id")
					continue
				}
				fp, err := ir.Fingerprint(f.Record)
				if err != nil {
					logger.Warn("skipping unserializable feature", "id", f.ID, "error", err)
					continue
				}
				if err := s.SetFingerprint(ctx, f.ID, fp); err != nil {
					return err
				}
				seeded++
			}
			logger.Info("seeded feature fingerprints", "source", src.Name(), "count", seeded)
			return nil
		},
	}
}
