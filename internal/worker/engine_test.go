package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oceansat/geoharvest/internal/harvest"
	"github.com/oceansat/geoharvest/internal/lifecycle"
	"github.com/oceansat/geoharvest/internal/normalize"
	"github.com/oceansat/geoharvest/internal/profile"
	"github.com/oceansat/geoharvest/internal/restart"
	"github.com/oceansat/geoharvest/internal/storage/memory"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fakeCrawler struct {
	result harvest.CrawlResult
	job    harvest.Job
	called bool
}

func (f *fakeCrawler) Crawl(_ context.Context, job harvest.Job) harvest.CrawlResult {
	f.called = true
	f.job = job
	return f.result
}

func engineProfile() *profile.Profile {
	return &profile.Profile{
		ID:         "esa",
		Protocol:   profile.ProtocolOpenSearch,
		BaseURL:    "https://catalog.example/search",
		QueryField: "ingestiondate",
		Fields: []profile.FieldMapping{
			{Name: "identifier", Key: normalize.KeyIdentifier},
		},
	}
}

func gathered(id, guid string, status harvest.Status) *harvest.Object {
	return &harvest.Object{
		ID:       id,
		SourceID: "esa",
		GUID:     guid,
		Content:  fmt.Sprintf("<entry><identifier>%s</identifier></entry>", guid),
		Extras: map[string]string{
			harvest.ExtraStatus:      string(status),
			harvest.ExtraRestartDate: "2024-01-15T00:00:00Z",
		},
		GatheredAt: time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC),
	}
}

type engineFixture struct {
	engine  *Engine
	crawler *fakeCrawler
	objects *memory.ObjectStore
	catalog *memory.CatalogStore
}

func newEngineFixture(t *testing.T, result harvest.CrawlResult, now time.Time, cfg Config) *engineFixture {
	t.Helper()
	objects := memory.NewObjectStore()
	catalog := memory.NewCatalogStore()
	p := engineProfile()
	controller := lifecycle.New(
		p, objects, catalog,
		normalize.New(p, nil),
		nil, nil,
		fixedClock{t: now},
		lifecycle.Config{},
		nil,
	)
	crawler := &fakeCrawler{result: result}
	return &engineFixture{
		engine:  New(restart.New(objects), crawler, controller, objects, fixedClock{t: now}, cfg, nil),
		crawler: crawler,
		objects: objects,
		catalog: catalog,
	}
}

// ftpWindowConfig mirrors how directory-listing sources run: symbolic dates
// fully resolved in the profile's layout and a mandatory window.
func ftpWindowConfig(layout string) Config {
	return Config{DateLayout: layout, ResolveNow: true, RequireWindow: true}
}

func TestRunJobImportsGatheredObjects(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	f := newEngineFixture(t, harvest.CrawlResult{
		Objects: []*harvest.Object{
			gathered("obj-1", "G1", harvest.StatusNew),
			gathered("obj-2", "G2", harvest.StatusNew),
		},
		Reason: harvest.StopExhausted,
	}, now, Config{})

	summary, err := f.engine.RunJob(context.Background(), harvest.Job{
		ID:       "job-1",
		SourceID: "esa",
		Settings: harvest.JobSettings{StartDate: "2024-01-01"},
	})
	require.NoError(t, err)

	require.Equal(t, 2, summary.Gathered)
	require.Equal(t, 2, summary.Created)
	require.Zero(t, summary.Failed)
	require.Equal(t, harvest.StopExhausted, summary.StopReason)
	require.Equal(t, now, summary.StartedAt)

	_, err = f.catalog.DatasetByGUID(context.Background(), "G1")
	require.NoError(t, err)
}

func TestRunJobResumesFromCursor(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	f := newEngineFixture(t, harvest.CrawlResult{Reason: harvest.StopExhausted}, now, Config{})

	prior := gathered("obj-prev", "G0", harvest.StatusNew)
	prior.Current = true
	require.NoError(t, f.objects.Save(context.Background(), prior))

	_, err := f.engine.RunJob(context.Background(), harvest.Job{
		SourceID: "esa",
		Settings: harvest.JobSettings{},
	})
	require.NoError(t, err)
	require.Equal(t, "2024-01-15T00:00:00Z", f.crawler.job.Settings.StartDate)
}

func TestRunJobWildcardWithoutHistory(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	f := newEngineFixture(t, harvest.CrawlResult{Reason: harvest.StopExhausted}, now, Config{})

	_, err := f.engine.RunJob(context.Background(), harvest.Job{
		SourceID: "esa",
		Settings: harvest.JobSettings{},
	})
	require.NoError(t, err)
	require.Equal(t, harvest.Wildcard, f.crawler.job.Settings.StartDate)
}

func TestRunJobExplicitStartDateWins(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	f := newEngineFixture(t, harvest.CrawlResult{Reason: harvest.StopExhausted}, now, Config{})

	prior := gathered("obj-prev", "G0", harvest.StatusNew)
	prior.Current = true
	require.NoError(t, f.objects.Save(context.Background(), prior))

	_, err := f.engine.RunJob(context.Background(), harvest.Job{
		SourceID: "esa",
		Settings: harvest.JobSettings{StartDate: "2023-06-01"},
	})
	require.NoError(t, err)
	require.Equal(t, "2023-06-01", f.crawler.job.Settings.StartDate)
}

func TestRunJobResolvesSymbolicDates(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	f := newEngineFixture(t, harvest.CrawlResult{Reason: harvest.StopExhausted}, now, Config{})

	_, err := f.engine.RunJob(context.Background(), harvest.Job{
		SourceID: "esa",
		Settings: harvest.JobSettings{StartDate: DateYesterday, EndDate: DateToday},
	})
	require.NoError(t, err)
	require.Equal(t, "2024-01-31", f.crawler.job.Settings.StartDate)
	require.Equal(t, "2024-02-01", f.crawler.job.Settings.EndDate)
}

func TestRunJobResolvesSymbolicDatesInProfileLayout(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	f := newEngineFixture(t, harvest.CrawlResult{Reason: harvest.StopExhausted}, now,
		ftpWindowConfig("2006/01/02"))

	_, err := f.engine.RunJob(context.Background(), harvest.Job{
		SourceID: "cmems",
		Settings: harvest.JobSettings{StartDate: DateYesterday, EndDate: DateToday},
	})
	require.NoError(t, err)
	require.Equal(t, "2024/01/31", f.crawler.job.Settings.StartDate)
	require.Equal(t, "2024/02/01", f.crawler.job.Settings.EndDate)
}

func TestRunJobResolvesEndDateNowForWindowedSources(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	f := newEngineFixture(t, harvest.CrawlResult{Reason: harvest.StopExhausted}, now,
		ftpWindowConfig("2006-01-02"))

	_, err := f.engine.RunJob(context.Background(), harvest.Job{
		SourceID: "cmems",
		Settings: harvest.JobSettings{StartDate: DateYesterday, EndDate: DateNow},
	})
	require.NoError(t, err)
	require.Equal(t, "2024-02-01", f.crawler.job.Settings.EndDate)
}

func TestRunJobEndDateNowPassesThrough(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	f := newEngineFixture(t, harvest.CrawlResult{Reason: harvest.StopExhausted}, now, Config{})

	_, err := f.engine.RunJob(context.Background(), harvest.Job{
		SourceID: "esa",
		Settings: harvest.JobSettings{StartDate: "2024-01-01", EndDate: DateNow},
	})
	require.NoError(t, err)
	require.Equal(t, DateNow, f.crawler.job.Settings.EndDate)
}

func TestRunJobRequiresWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)

	t.Run("missing start date", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t, harvest.CrawlResult{}, now, ftpWindowConfig("2006-01-02"))
		_, err := f.engine.RunJob(context.Background(), harvest.Job{
			SourceID: "cmems",
			Settings: harvest.JobSettings{EndDate: "2024-02-01"},
		})
		var cfgErr *harvest.ConfigError
		require.ErrorAs(t, err, &cfgErr)
		require.Equal(t, "start_date", cfgErr.Field)
		require.False(t, f.crawler.called)
	})

	t.Run("missing end date", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t, harvest.CrawlResult{}, now, ftpWindowConfig("2006-01-02"))
		_, err := f.engine.RunJob(context.Background(), harvest.Job{
			SourceID: "cmems",
			Settings: harvest.JobSettings{StartDate: "2024-01-31"},
		})
		var cfgErr *harvest.ConfigError
		require.ErrorAs(t, err, &cfgErr)
		require.Equal(t, "end_date", cfgErr.Field)
		require.False(t, f.crawler.called)
	})
}

func TestRunJobRejectsMalformedWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	f := newEngineFixture(t, harvest.CrawlResult{}, now, ftpWindowConfig("2006/01/02"))

	_, err := f.engine.RunJob(context.Background(), harvest.Job{
		SourceID: "cmems",
		Settings: harvest.JobSettings{StartDate: "2024-01-31", EndDate: "2024/02/01"},
	})
	var cfgErr *harvest.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, "start_date", cfgErr.Field)
	require.False(t, f.crawler.called)
}

func TestRunJobRecordsTransportStop(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	f := newEngineFixture(t, harvest.CrawlResult{
		Objects: []*harvest.Object{gathered("obj-1", "G1", harvest.StatusNew)},
		Reason:  harvest.StopTransport,
		Err:     &harvest.TransportError{Op: "page fetch", Err: fmt.Errorf("timeout")},
	}, now, Config{})

	summary, err := f.engine.RunJob(context.Background(), harvest.Job{
		SourceID: "esa",
		Settings: harvest.JobSettings{StartDate: "2024-01-01"},
	})
	require.NoError(t, err)

	// Partial results are still imported.
	require.Equal(t, 1, summary.Created)
	require.Equal(t, harvest.StopTransport, summary.StopReason)
	require.Contains(t, summary.TransportError, "page fetch")
}

func TestRunJobCountsFailedImports(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	empty := gathered("obj-1", "G1", harvest.StatusNew)
	empty.Content = ""
	f := newEngineFixture(t, harvest.CrawlResult{
		Objects: []*harvest.Object{empty},
		Reason:  harvest.StopExhausted,
	}, now, Config{})

	summary, err := f.engine.RunJob(context.Background(), harvest.Job{
		SourceID: "esa",
		Settings: harvest.JobSettings{StartDate: "2024-01-01"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Failed)
	require.Zero(t, summary.Created)
}
