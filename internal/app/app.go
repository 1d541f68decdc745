// Package app wires configuration, stores, and per-source harvest runners
// into a runnable application.
package app

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/oceansat/geoharvest/internal/catalog/ckan"
	"github.com/oceansat/geoharvest/internal/clock/system"
	"github.com/oceansat/geoharvest/internal/config"
	collyfetcher "github.com/oceansat/geoharvest/internal/fetcher/colly"
	"github.com/oceansat/geoharvest/internal/ftpdir"
	"github.com/oceansat/geoharvest/internal/harvest"
	"github.com/oceansat/geoharvest/internal/id/uuid"
	"github.com/oceansat/geoharvest/internal/lifecycle"
	"github.com/oceansat/geoharvest/internal/normalize"
	"github.com/oceansat/geoharvest/internal/opensearch"
	"github.com/oceansat/geoharvest/internal/profile"
	pubsubpublisher "github.com/oceansat/geoharvest/internal/publisher/pubsub"
	"github.com/oceansat/geoharvest/internal/restart"
	"github.com/oceansat/geoharvest/internal/storage/gcs"
	"github.com/oceansat/geoharvest/internal/storage/memory"
	"github.com/oceansat/geoharvest/internal/storage/postgres"
	"github.com/oceansat/geoharvest/internal/worker"
)

// App holds the shared service components.
type App struct {
	Cfg      config.Config
	Logger   *zap.Logger
	Profiles map[string]*profile.Profile

	Objects   harvest.ObjectStore
	Catalog   harvest.CatalogStore
	Blobs     harvest.BlobStore
	Publisher harvest.Publisher
	Clock     harvest.Clock
	IDs       harvest.IDGenerator

	closers []func()
}

// New builds an App from loaded configuration. Optional backends (blob
// archive, event publishing) stay nil when unconfigured; Postgres falls back
// to the in-memory object store when no DSN is set.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	a := &App{
		Cfg:    cfg,
		Logger: logger,
		Clock:  system.New(),
		IDs:    uuid.New(),
	}

	profiles, err := profile.NewLoader(cfg.Profiles.Dir).LoadAll()
	if err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	a.Profiles = profiles

	if cfg.DB.DSN != "" {
		if err := postgres.Migrate(cfg.DB.DSN); err != nil {
			return nil, err
		}
		store, err := postgres.NewObjectStore(ctx, postgres.ObjectStoreConfig{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		})
		if err != nil {
			return nil, err
		}
		a.Objects = store
		a.closers = append(a.closers, store.Close)
	} else {
		logger.Warn("db.dsn not set, using in-memory object store")
		a.Objects = memory.NewObjectStore()
	}

	if cfg.Catalog.URL != "" {
		client, err := ckan.New(ckan.Config{
			BaseURL: cfg.Catalog.URL,
			APIKey:  cfg.Catalog.APIKey,
			Owner:   cfg.Catalog.Owner,
			Timeout: cfg.CatalogTimeout(),
		}, logger.Named("catalog"))
		if err != nil {
			return nil, err
		}
		a.Catalog = client
	} else {
		logger.Warn("catalog.url not set, using in-memory catalog store")
		a.Catalog = memory.NewCatalogStore()
	}

	if cfg.Archive.GCSBucket != "" {
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		blobs, err := gcs.New(client, gcs.Config{Bucket: cfg.Archive.GCSBucket})
		if err != nil {
			return nil, err
		}
		a.Blobs = blobs
		a.closers = append(a.closers, func() { _ = client.Close() })
	}

	if cfg.PubSub.ProjectID != "" && cfg.PubSub.TopicName != "" {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("init pubsub client: %w", err)
		}
		pub := pubsubpublisher.New(client)
		a.Publisher = pub
		a.closers = append(a.closers, func() {
			pub.Stop()
			_ = client.Close()
		})
	}

	return a, nil
}

// Close releases held backend connections.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// Runners builds one harvest runner per configured source.
func (a *App) Runners() (map[string]*SourceRunner, error) {
	runners := make(map[string]*SourceRunner, len(a.Cfg.Sources))
	for name, src := range a.Cfg.Sources {
		runner, err := a.Runner(name, src)
		if err != nil {
			return nil, err
		}
		runners[name] = runner
	}
	return runners, nil
}

// Runner builds the harvest runner for one source.
func (a *App) Runner(name string, src config.SourceConfig) (*SourceRunner, error) {
	p, ok := a.Profiles[src.Profile]
	if !ok {
		return nil, fmt.Errorf("source %s references unknown profile %s", name, src.Profile)
	}
	// Directory-listing sources never resume from a cursor: the window must
	// be configured up front.
	if p.Protocol == profile.ProtocolFTP {
		if src.Settings.StartDate == "" {
			return nil, &harvest.ConfigError{
				Field:  fmt.Sprintf("sources.%s.settings.start_date", name),
				Reason: "required for ftp profiles",
			}
		}
		if src.Settings.EndDate == "" {
			return nil, &harvest.ConfigError{
				Field:  fmt.Sprintf("sources.%s.settings.end_date", name),
				Reason: "required for ftp profiles",
			}
		}
	}
	logger := a.Logger.Named("harvest").With(zap.String("source", name))

	controller := lifecycle.New(
		p,
		a.Objects,
		a.Catalog,
		normalize.New(p, logger.Named("normalize")),
		a.Blobs,
		a.Publisher,
		a.Clock,
		lifecycle.Config{
			ArchivePrefix:      a.Cfg.Archive.Prefix,
			ArchiveContentType: a.Cfg.Archive.ContentType,
			Topic:              a.Cfg.PubSub.TopicName,
		},
		logger.Named("lifecycle"),
	)

	return &SourceRunner{
		profile:    p,
		controller: controller,
		tracker:    restart.New(a.Objects),
		objects:    a.Objects,
		fetcher: collyfetcher.New(collyfetcher.Config{
			UserAgent: a.Cfg.Fetch.UserAgent,
			Timeout:   a.Cfg.FetchTimeout(),
		}),
		clock:  a.Clock,
		ids:    a.IDs,
		logger: logger,
	}, nil
}

// SourceRunner executes harvest jobs for one source. The crawler is rebuilt
// per job so classification can honor the job's update_all setting.
type SourceRunner struct {
	profile    *profile.Profile
	controller *lifecycle.Controller
	tracker    *restart.Tracker
	objects    harvest.ObjectStore
	fetcher    harvest.PageFetcher
	clock      harvest.Clock
	ids        harvest.IDGenerator
	logger     *zap.Logger
}

// RunJob executes one harvest cycle.
func (r *SourceRunner) RunJob(ctx context.Context, job harvest.Job) (harvest.Summary, error) {
	classify := func(ctx context.Context, guid string) (harvest.Status, error) {
		return r.controller.ClassifyGUID(ctx, guid, job.Settings.UpdateAll)
	}

	var crawler harvest.Crawler
	var wcfg worker.Config
	switch r.profile.Protocol {
	case profile.ProtocolFTP:
		crawler = ftpdir.New(r.profile, nil, classify, r.clock, r.ids, r.logger.Named("ftpdir"))
		wcfg = worker.Config{
			DateLayout:    r.profile.FTP.DateLayout,
			ResolveNow:    true,
			RequireWindow: true,
		}
	default:
		crawler = opensearch.New(r.profile, r.fetcher, classify, r.clock, r.ids, r.logger.Named("opensearch"))
	}

	engine := worker.New(r.tracker, crawler, r.controller, r.objects, r.clock, wcfg, r.logger)
	return engine.RunJob(ctx, job)
}
