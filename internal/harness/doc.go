// Package harness runs detection scenarios described in YAML.
//
// A scenario prepares a fingerprint store, feeds it one or more batches
// of candidate features through the change detector, and checks what was
// reported and what ended up stored. The resulting trace can be compared
// against a golden file.
//
// # Scenario Format
//
//	name: nesting_update
//	description: "Only the changed record is reported on the second run"
//	setup:
//	  version: 2
//	  stored:
//	    - id: css.grid
//	      record: { name: Grid }
//	  keys:
//	    - key: [rss, "CSS Grid"]
//	      value: seen
//	runs:
//	  - migrate: true
//	    features:
//	      - id: css.grid
//	        record: { name: Grid }
//	    expect_changed: []
//	  - features:
//	      - id: css.nesting
//	        record: { name: Nesting }
//	    expect_changed: [css.nesting]
//	assertions:
//	  - type: stored
//	    id: css.nesting
//	    record: { name: Nesting }
//	  - type: version
//	    version: 2
//
// Each run may first reset the store (reset: true) and then apply the
// built-in migrations (migrate: true) with the run's features as the
// seeding catalog. Detection always follows.
//
// # Trace
//
// Every candidate produces one event in input order: "changed",
// "unchanged" or "skipped". Resets, migrations and detector errors are
// traced too. Events carry the 1-based run number.
//
// # Assertion Types
//
//   - trace_contains: an event of the given type exists for id
//   - trace_order: the ids were reported as changed in this order
//   - trace_count: exactly count events of the given type
//   - stored: the store holds the fingerprint of record for id
//   - absent: the store holds nothing for id
//   - version: the stored version equals version (-1 for absent)
//   - feature_count: the store holds exactly count features
package harness
