package harvest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EntriesGathered tracks feed entries turned into harvest objects.
	EntriesGathered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geoharvest_entries_gathered_total",
		Help: "The total number of feed entries gathered into harvest objects.",
	})
	// EntriesSkipped tracks malformed entries skipped during a crawl.
	EntriesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geoharvest_entries_skipped_total",
		Help: "The total number of malformed feed entries skipped.",
	})
	// DuplicatesDropped tracks duplicate guids dropped within one crawl window.
	DuplicatesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geoharvest_duplicates_dropped_total",
		Help: "The total number of duplicate guids dropped during crawls.",
	})
	// TransportFailures tracks page or directory fetches that aborted a cycle.
	TransportFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geoharvest_transport_failures_total",
		Help: "The total number of transport failures that ended a crawl cycle.",
	})
	// DatasetsCreated tracks datasets created in the catalog backend.
	DatasetsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geoharvest_datasets_created_total",
		Help: "The total number of datasets created.",
	})
	// DatasetsUpdated tracks datasets updated in the catalog backend.
	DatasetsUpdated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geoharvest_datasets_updated_total",
		Help: "The total number of datasets updated.",
	})
	// DatasetsUnchanged tracks objects that required no catalog mutation.
	DatasetsUnchanged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geoharvest_datasets_unchanged_total",
		Help: "The total number of objects imported without a catalog mutation.",
	})
	// ObjectsFailed tracks objects that failed during import.
	ObjectsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geoharvest_objects_failed_total",
		Help: "The total number of harvest objects that failed to import.",
	})
)
