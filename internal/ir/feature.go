package ir

// Feature is one catalog entry as handed to the change detector: a stable
// identifier plus the opaque record it was fetched with.
type Feature struct {
	// ID is the catalog key (webstatus feature_id, release map key) or,
	// for feed sources, the item title.
	ID string `json:"id"`

	// Record is never interpreted by the detector; it is only fingerprinted.
	Record IRValue `json:"record"`
}

// NewFeature converts record with ToRecord and pairs it with id.
func NewFeature(id string, record any) (Feature, error) {
	v, err := ToRecord(record)
	if err != nil {
		return Feature{}, err
	}
	return Feature{ID: id, Record: v}, nil
}

// MustFeature is like NewFeature but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustFeature(id string, record any) Feature {
	f, err := NewFeature(id, record)
	if err != nil {
		panic(err)
	}
	return f
}

// IDs returns the feature identifiers in order.
func IDs(features []Feature) []string {
	ids := make([]string, len(features))
	for i, f := range features {
		ids[i] = f.ID
	}
	return ids
}
