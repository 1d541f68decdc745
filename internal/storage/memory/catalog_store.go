package memory

import (
	"context"
	"strconv"
	"sync"

	"github.com/oceansat/geoharvest/internal/harvest"
)

// CatalogStore keeps datasets and resources in memory. It stands in for the
// external catalog backend in tests and development.
type CatalogStore struct {
	mu        sync.RWMutex
	datasets  map[string]harvest.Dataset // keyed by dataset id
	byGUID    map[string]string          // guid -> dataset id
	resources map[string][]harvest.Resource
	nextID    int
}

// NewCatalogStore constructs a CatalogStore.
func NewCatalogStore() *CatalogStore {
	return &CatalogStore{
		datasets:  make(map[string]harvest.Dataset),
		byGUID:    make(map[string]string),
		resources: make(map[string][]harvest.Resource),
	}
}

// DatasetByGUID returns the dataset currently owning a guid.
func (s *CatalogStore) DatasetByGUID(_ context.Context, guid string) (harvest.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byGUID[guid]
	if !ok {
		return harvest.Dataset{}, harvest.ErrNotFound
	}
	return s.datasets[id], nil
}

// CreateOrUpdate stores the submitted item and resources.
func (s *CatalogStore) CreateOrUpdate(
	_ context.Context,
	item harvest.CanonicalItem,
	resources []harvest.Resource,
	existingID string,
) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := existingID
	if id == "" {
		s.nextID++
		id = "ds-" + strconv.Itoa(s.nextID)
	}

	extras := make(map[string]string, len(item.Extras))
	for k, v := range item.Extras {
		extras[k] = v
	}
	s.datasets[id] = harvest.Dataset{ID: id, Name: item.Name, Extras: extras}
	s.byGUID[item.GUID] = id
	s.resources[id] = append([]harvest.Resource(nil), resources...)
	return id, nil
}

// ResourcesOf lists a dataset's resources.
func (s *CatalogStore) ResourcesOf(_ context.Context, datasetID string) ([]harvest.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.datasets[datasetID]; !ok {
		return nil, harvest.ErrNotFound
	}
	return append([]harvest.Resource(nil), s.resources[datasetID]...), nil
}

// Seed installs a dataset directly, for tests.
func (s *CatalogStore) Seed(ds harvest.Dataset, guid string, resources []harvest.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets[ds.ID] = ds
	s.byGUID[guid] = ds.ID
	s.resources[ds.ID] = append([]harvest.Resource(nil), resources...)
}
