package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/baselinewatch/internal/ir"
)

// Scenario defines a detection scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Setup seeds the store before the first run.
	Setup *Setup `yaml:"setup,omitempty"`

	// Runs are executed in order against the same store.
	Runs []RunStep `yaml:"runs"`

	// Assertions validate the final trace and store.
	Assertions []Assertion `yaml:"assertions"`
}

// Setup describes the store before the first run.
type Setup struct {
	// Version, if set, is written as the schema version.
	Version *int `yaml:"version,omitempty"`

	// Stored features are recorded with the fingerprint of their record.
	Stored []FeatureSpec `yaml:"stored,omitempty"`

	// Keys are raw entries, e.g. legacy namespaces.
	Keys []KeyValue `yaml:"keys,omitempty"`
}

// KeyValue is a raw store entry.
type KeyValue struct {
	Key   []string `yaml:"key"`
	Value string   `yaml:"value"`
}

// FeatureSpec is a candidate feature as written in YAML.
type FeatureSpec struct {
	ID     string `yaml:"id"`
	Record any    `yaml:"record"`
}

// RunStep is one detection run.
type RunStep struct {
	// Reset clears the store before anything else.
	Reset bool `yaml:"reset,omitempty"`

	// Migrate applies the built-in migrations, seeding from Features.
	Migrate bool `yaml:"migrate,omitempty"`

	// Features is the candidate batch, in order.
	Features []FeatureSpec `yaml:"features"`

	// ExpectChanged lists the ids the run must report, in order.
	// Omitted means nothing changes.
	ExpectChanged []string `yaml:"expect_changed"`

	// ExpectSkipped, if present, lists the ids that cannot be fingerprinted.
	ExpectSkipped []string `yaml:"expect_skipped,omitempty"`

	// ExpectError, if set, must be a substring of the detector's error.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	Type string `yaml:"type"`

	// ID is the feature id (trace_contains, stored, absent).
	ID string `yaml:"id,omitempty"`

	// Event is the trace event type (trace_contains, trace_count).
	Event string `yaml:"event,omitempty"`

	// IDs is the expected change order (trace_order).
	IDs []string `yaml:"ids,omitempty"`

	// Record is the record whose fingerprint must be stored (stored).
	Record any `yaml:"record,omitempty"`

	// Count is the expected number (trace_count, feature_count).
	Count int `yaml:"count,omitempty"`

	// Version is the expected schema version (version), -1 for absent.
	Version int `yaml:"version,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertStored        = "stored"
	AssertAbsent        = "absent"
	AssertVersion       = "version"
	AssertFeatureCount  = "feature_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Runs) == 0 {
		return fmt.Errorf("runs list is required and must be non-empty")
	}

	if s.Setup != nil {
		for i, f := range s.Setup.Stored {
			if f.ID == "" {
				return fmt.Errorf("setup.stored[%d]: id is required", i)
			}
		}
		for i, kv := range s.Setup.Keys {
			if len(kv.Key) == 0 {
				return fmt.Errorf("setup.keys[%d]: key is required", i)
			}
		}
	}

	// Empty ids are allowed in runs: rejecting them is the detector's job.
	for i, run := range s.Runs {
		if run.Features == nil && !run.Reset && !run.Migrate {
			return fmt.Errorf("runs[%d]: features is required (use [] for an empty batch)", i)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.ID == "" || a.Event == "" {
			return fmt.Errorf("assertions[%d]: id and event are required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.IDs) == 0 {
			return fmt.Errorf("assertions[%d]: ids list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertStored:
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for stored", index)
		}
		if _, err := ir.ToRecord(a.Record); err != nil {
			return fmt.Errorf("assertions[%d]: record: %w", index, err)
		}
	case AssertAbsent:
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for absent", index)
		}
	case AssertVersion:
		if a.Version < -1 {
			return fmt.Errorf("assertions[%d]: version must be -1 or more", index)
		}
	case AssertFeatureCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for feature_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func (f FeatureSpec) feature() (ir.Feature, error) {
	return ir.NewFeature(f.ID, f.Record)
}
