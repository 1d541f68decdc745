package harvest

import (
	"context"
	"time"
)

// ObjectStore persists harvest objects and their restart bookkeeping.
type ObjectStore interface {
	// Save inserts a freshly gathered object.
	Save(ctx context.Context, obj *Object) error
	// Update rewrites an object after import (extras, current flag,
	// dataset id, imported timestamp).
	Update(ctx context.Context, obj *Object) error
	// MostRecent returns the most recently gathered current object for a
	// source, or ErrNotFound.
	MostRecent(ctx context.Context, sourceID string) (*Object, error)
	// MarkSuperseded clears the current flag on every object for the
	// source sharing the guid, except the one identified by keepID.
	MarkSuperseded(ctx context.Context, sourceID, guid, keepID string) error
}

// CatalogStore is the external backend that owns datasets and resources.
type CatalogStore interface {
	// DatasetByGUID returns the current dataset for a guid, or ErrNotFound.
	DatasetByGUID(ctx context.Context, guid string) (Dataset, error)
	// CreateOrUpdate submits a canonical item plus its reconciled
	// resources. An empty existingID creates a dataset; otherwise the
	// dataset is updated in place. Returns the dataset id.
	CreateOrUpdate(ctx context.Context, item CanonicalItem, resources []Resource, existingID string) (string, error)
	// ResourcesOf lists the resources currently attached to a dataset.
	ResourcesOf(ctx context.Context, datasetID string) ([]Resource, error)
}

// PageRequest describes one catalog page fetch.
type PageRequest struct {
	URL      string
	Timeout  time.Duration
	Username string
	Password string
}

// PageResponse is the raw result of one catalog page fetch.
type PageResponse struct {
	StatusCode int
	Body       []byte
	Elapsed    time.Duration
}

// PageFetcher retrieves one catalog page over HTTP.
type PageFetcher interface {
	Fetch(ctx context.Context, req PageRequest) (PageResponse, error)
}

// Crawler walks a remote catalog and emits classified objects.
type Crawler interface {
	Crawl(ctx context.Context, job Job) CrawlResult
}

// Publisher pushes dataset mutation events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces harvest object ids.
type IDGenerator interface {
	NewID() (string, error)
}
