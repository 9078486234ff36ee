package testutil

import (
	"context"
	"sync"

	"github.com/roach88/baselinewatch/internal/ir"
)

// StaticSource is a catalog source that returns a fixed batch.
// Set Err to make Fetch fail.
type StaticSource struct {
	mu       sync.Mutex
	features []ir.Feature
	err      error
	calls    int
}

// NewStaticSource returns a source serving features.
func NewStaticSource(features ...ir.Feature) *StaticSource {
	return &StaticSource{features: features}
}

// Name implements catalog.Source.
func (s *StaticSource) Name() string {
	return "static"
}

// Fetch implements catalog.Source. The returned slice is a copy.
func (s *StaticSource) Fetch(context.Context) ([]ir.Feature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return append([]ir.Feature(nil), s.features...), nil
}

// Set replaces the batch served by later calls.
func (s *StaticSource) Set(features ...ir.Feature) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.features = features
}

// Fail makes later calls return err; nil restores normal behaviour.
func (s *StaticSource) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Calls returns how many times Fetch ran.
func (s *StaticSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
