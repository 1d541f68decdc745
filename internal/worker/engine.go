// Package worker implements the harvest job execution loop.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/oceansat/geoharvest/internal/harvest"
	"github.com/oceansat/geoharvest/internal/lifecycle"
	"github.com/oceansat/geoharvest/internal/restart"
)

// Symbolic date values accepted in job settings.
const (
	DateYesterday = "YESTERDAY"
	DateToday     = "TODAY"
	DateNow       = "NOW"
)

const dayLayout = "2006-01-02"

// Config tunes window handling per protocol. OpenSearch catalogs accept the
// literal NOW in range queries, so end dates keep it; FTP directory names
// are concrete dates in the profile's layout, so every symbolic value must
// resolve there and the window is mandatory.
type Config struct {
	// DateLayout formats resolved symbolic dates. Defaults to 2006-01-02.
	DateLayout string
	// ResolveNow maps an end date of NOW to today instead of passing the
	// literal through.
	ResolveNow bool
	// RequireWindow rejects the job before any crawl unless both window
	// dates are present and parse against DateLayout.
	RequireWindow bool
}

// Engine runs one harvest job end to end: resume cursor, crawl, then one
// sequential import per gathered object. Execution is single-threaded
// within a job; entries are fetched, normalized, and applied one page and
// one object at a time.
type Engine struct {
	tracker    *restart.Tracker
	crawler    harvest.Crawler
	controller *lifecycle.Controller
	objects    harvest.ObjectStore
	clock      harvest.Clock
	cfg        Config
	logger     *zap.Logger
}

// New constructs an Engine.
func New(
	tracker *restart.Tracker,
	crawler harvest.Crawler,
	controller *lifecycle.Controller,
	objects harvest.ObjectStore,
	clock harvest.Clock,
	cfg Config,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DateLayout == "" {
		cfg.DateLayout = dayLayout
	}
	return &Engine{
		tracker:    tracker,
		crawler:    crawler,
		controller: controller,
		objects:    objects,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
}

// RunJob executes one cycle. An explicitly configured start date is
// authoritative; the restart cursor applies only when the configuration
// omits one. A bad window is fatal before the crawl starts; a transport
// failure mid-crawl aborts the remaining pages but the objects already
// produced are still imported.
func (e *Engine) RunJob(ctx context.Context, job harvest.Job) (harvest.Summary, error) {
	summary := harvest.Summary{
		SourceID:  job.SourceID,
		JobID:     job.ID,
		StartedAt: e.clock.Now(),
	}

	e.resolveSymbolicDates(&job.Settings, e.clock.Now())
	if err := e.validateWindow(job.Settings); err != nil {
		return summary, err
	}

	if job.Settings.StartDate == "" {
		cursor, err := e.tracker.ResumeCursor(ctx, job.SourceID)
		if err != nil {
			return summary, err
		}
		job.Settings.StartDate = cursor
		e.logger.Debug("resuming from cursor",
			zap.String("source", job.SourceID),
			zap.String("cursor", cursor))
	}

	result := e.crawler.Crawl(ctx, job)
	summary.Gathered = len(result.Objects)
	summary.Skipped = result.Skipped
	summary.Duplicates = result.Duplicates
	summary.StopReason = result.Reason
	if result.Err != nil {
		summary.TransportError = result.Err.Error()
		e.logger.Warn("crawl stopped early",
			zap.String("source", job.SourceID),
			zap.Error(result.Err))
	}

	for _, obj := range result.Objects {
		if err := e.objects.Save(ctx, obj); err != nil {
			summary.Failed++
			e.logger.Error("save gathered object",
				zap.String("guid", obj.GUID),
				zap.Error(err))
			continue
		}

		res := e.controller.Apply(ctx, obj)
		switch res.Outcome {
		case harvest.OutcomeCreated:
			summary.Created++
		case harvest.OutcomeUpdated:
			summary.Updated++
		case harvest.OutcomeUnchanged:
			summary.Unchanged++
		default:
			summary.Failed++
		}
	}

	summary.FinishedAt = e.clock.Now()
	e.logger.Info("harvest cycle finished",
		zap.String("source", job.SourceID),
		zap.Int("gathered", summary.Gathered),
		zap.Int("created", summary.Created),
		zap.Int("updated", summary.Updated),
		zap.Int("unchanged", summary.Unchanged),
		zap.Int("failed", summary.Failed),
		zap.String("stop_reason", string(summary.StopReason)))
	return summary, nil
}

// resolveSymbolicDates replaces YESTERDAY/TODAY/NOW markers with concrete
// dates relative to now, formatted in the configured layout.
func (e *Engine) resolveSymbolicDates(settings *harvest.JobSettings, now time.Time) {
	switch settings.StartDate {
	case DateYesterday:
		settings.StartDate = now.AddDate(0, 0, -1).Format(e.cfg.DateLayout)
	case DateToday, DateNow:
		settings.StartDate = now.Format(e.cfg.DateLayout)
	}
	switch settings.EndDate {
	case DateYesterday:
		settings.EndDate = now.AddDate(0, 0, -1).Format(e.cfg.DateLayout)
	case DateToday:
		settings.EndDate = now.Format(e.cfg.DateLayout)
	case DateNow:
		if e.cfg.ResolveNow {
			settings.EndDate = now.Format(e.cfg.DateLayout)
		}
	}
}

// validateWindow enforces the crawl window for window-bound protocols.
func (e *Engine) validateWindow(settings harvest.JobSettings) error {
	if !e.cfg.RequireWindow {
		return nil
	}
	if settings.StartDate == "" {
		return &harvest.ConfigError{Field: "start_date", Reason: "required"}
	}
	if settings.EndDate == "" {
		return &harvest.ConfigError{Field: "end_date", Reason: "required"}
	}
	if _, err := time.Parse(e.cfg.DateLayout, settings.StartDate); err != nil {
		return &harvest.ConfigError{Field: "start_date", Reason: err.Error()}
	}
	if _, err := time.Parse(e.cfg.DateLayout, settings.EndDate); err != nil {
		return &harvest.ConfigError{Field: "end_date", Reason: err.Error()}
	}
	return nil
}
