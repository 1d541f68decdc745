// Package memory provides in-memory store implementations for development
// and testing.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/oceansat/geoharvest/internal/harvest"
)

// ObjectStore keeps harvest objects in memory.
type ObjectStore struct {
	mu      sync.RWMutex
	objects []*harvest.Object
}

// NewObjectStore constructs an ObjectStore.
func NewObjectStore() *ObjectStore {
	return &ObjectStore{}
}

// Save inserts a freshly gathered object.
func (s *ObjectStore) Save(_ context.Context, obj *harvest.Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.objects {
		if existing.ID == obj.ID {
			return errors.New("object already exists")
		}
	}
	s.objects = append(s.objects, cloneObject(obj))
	return nil
}

// Update rewrites an object in place.
func (s *ObjectStore) Update(_ context.Context, obj *harvest.Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.objects {
		if existing.ID == obj.ID {
			s.objects[i] = cloneObject(obj)
			return nil
		}
	}
	return harvest.ErrNotFound
}

// MostRecent returns the most recently gathered current object for a source.
func (s *ObjectStore) MostRecent(_ context.Context, sourceID string) (*harvest.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *harvest.Object
	for _, obj := range s.objects {
		if obj.SourceID != sourceID || !obj.Current {
			continue
		}
		if latest == nil || obj.GatheredAt.After(latest.GatheredAt) {
			latest = obj
		}
	}
	if latest == nil {
		return nil, harvest.ErrNotFound
	}
	return cloneObject(latest), nil
}

// MarkSuperseded clears the current flag on older objects sharing a guid.
func (s *ObjectStore) MarkSuperseded(_ context.Context, sourceID, guid, keepID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, obj := range s.objects {
		if obj.SourceID == sourceID && obj.GUID == guid && obj.ID != keepID {
			obj.Current = false
		}
	}
	return nil
}

// All returns a snapshot of every stored object, for tests.
func (s *ObjectStore) All() []*harvest.Object {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*harvest.Object, 0, len(s.objects))
	for _, obj := range s.objects {
		out = append(out, cloneObject(obj))
	}
	return out
}

func cloneObject(obj *harvest.Object) *harvest.Object {
	clone := *obj
	clone.Extras = make(map[string]string, len(obj.Extras))
	for k, v := range obj.Extras {
		clone.Extras[k] = v
	}
	if obj.ImportedAt != nil {
		ts := *obj.ImportedAt
		clone.ImportedAt = &ts
	}
	return &clone
}
