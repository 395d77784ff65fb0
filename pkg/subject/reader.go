// Package subject defines the boundary to the system that owns subject
// entities. The auto-approval evaluator reads current subject attributes
// through it; subject storage and lifecycle stay external.
package subject

import (
	"context"
	"fmt"
	"sync"
)

// AttributeReader fetches the current attributes of a subject for condition
// evaluation.
type AttributeReader interface {
	Attributes(ctx context.Context, subjectID string) (map[string]any, error)
}

// StaticReader serves attributes from an in-memory map. Used in tests and
// single-node deployments where subject data is seeded directly.
type StaticReader struct {
	mu       sync.RWMutex
	subjects map[string]map[string]any
}

// NewStaticReader creates an empty static reader.
func NewStaticReader() *StaticReader {
	return &StaticReader{subjects: make(map[string]map[string]any)}
}

// Set replaces the attributes of a subject.
func (r *StaticReader) Set(subjectID string, attributes map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.subjects[subjectID] = attributes
}

// Attributes returns the stored attributes of a subject.
func (r *StaticReader) Attributes(_ context.Context, subjectID string) (map[string]any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	attributes, ok := r.subjects[subjectID]
	if !ok {
		return nil, fmt.Errorf("no attributes for subject %s", subjectID)
	}

	return attributes, nil
}
