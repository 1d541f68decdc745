// Package restart computes the resume point for the next crawl from
// previously recorded harvest objects.
package restart

import (
	"context"
	"errors"
	"fmt"

	"github.com/oceansat/geoharvest/internal/harvest"
)

// Tracker derives restart cursors from the object store. The cursor is a
// high-water mark: objects are gathered oldest-to-newest, so the restart
// date of the most recently gathered current object is where the next cycle
// picks up.
type Tracker struct {
	objects harvest.ObjectStore
}

// New constructs a Tracker over an object store.
func New(objects harvest.ObjectStore) *Tracker {
	return &Tracker{objects: objects}
}

// ResumeCursor returns the restart date recorded by the previous cycle, or
// the wildcard marker when no prior object exists. Callers use this value
// only when the job configuration omits an explicit start boundary; an
// explicitly configured start date always takes precedence.
func (t *Tracker) ResumeCursor(ctx context.Context, sourceID string) (string, error) {
	obj, err := t.objects.MostRecent(ctx, sourceID)
	if errors.Is(err, harvest.ErrNotFound) {
		return harvest.Wildcard, nil
	}
	if err != nil {
		return "", fmt.Errorf("query last object: %w", err)
	}
	if cursor := obj.RestartDate(); cursor != "" {
		return cursor, nil
	}
	return harvest.Wildcard, nil
}
