package testutil

import (
	"context"
	"sync"

	"github.com/roach88/baselinewatch/internal/ir"
)

// RecordingPublisher records every feature it is asked to publish.
// Ids registered with FailOn fail and are not recorded.
type RecordingPublisher struct {
	mu        sync.Mutex
	published []ir.Feature
	failIDs   map[string]error
}

// NewRecordingPublisher returns an empty recorder.
func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{failIDs: map[string]error{}}
}

// FailOn makes Publish return err for id.
func (p *RecordingPublisher) FailOn(id string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failIDs[id] = err
}

// Publish implements publish.Publisher.
func (p *RecordingPublisher) Publish(_ context.Context, f ir.Feature) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.failIDs[f.ID]; ok {
		return err
	}
	p.published = append(p.published, f)
	return nil
}

// Published returns the ids published so far, in order.
func (p *RecordingPublisher) Published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ir.IDs(p.published)
}
