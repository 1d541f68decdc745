// Package lifecycle decides, per harvest object, whether to create, update,
// or skip a dataset, and performs the restart bookkeeping that keeps future
// cycles correct.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/oceansat/geoharvest/internal/harvest"
	"github.com/oceansat/geoharvest/internal/normalize"
	"github.com/oceansat/geoharvest/internal/profile"
	"github.com/oceansat/geoharvest/internal/reconcile"
)

// Config controls optional controller behavior.
type Config struct {
	// ArchivePrefix is the blob path prefix for raw entry archives.
	ArchivePrefix string
	// ArchiveContentType is stored alongside archived payloads.
	ArchiveContentType string
	// Topic, when set together with a publisher, receives one event per
	// dataset mutation.
	Topic string
}

// Controller applies classified harvest objects to the catalog backend.
type Controller struct {
	profile    *profile.Profile
	objects    harvest.ObjectStore
	catalog    harvest.CatalogStore
	normalizer *normalize.Normalizer
	blobs      harvest.BlobStore
	publisher  harvest.Publisher
	clock      harvest.Clock
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Controller. The blob store and publisher are optional.
func New(
	p *profile.Profile,
	objects harvest.ObjectStore,
	catalog harvest.CatalogStore,
	normalizer *normalize.Normalizer,
	blobs harvest.BlobStore,
	publisher harvest.Publisher,
	clock harvest.Clock,
	cfg Config,
	logger *zap.Logger,
) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ArchiveContentType == "" {
		cfg.ArchiveContentType = "application/xml"
	}
	return &Controller{
		profile:    p,
		objects:    objects,
		catalog:    catalog,
		normalizer: normalizer,
		blobs:      blobs,
		publisher:  publisher,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
}

// ClassifyGUID resolves the mutation status for a guid at gather time.
func (c *Controller) ClassifyGUID(ctx context.Context, guid string, updateAll bool) (harvest.Status, error) {
	ds, err := c.catalog.DatasetByGUID(ctx, guid)
	if errors.Is(err, harvest.ErrNotFound) {
		return harvest.StatusNew, nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup dataset for guid %s: %w", guid, err)
	}

	flaggedConfigured := c.profile.FlaggedExtra != ""
	extraPresent := flaggedConfigured && ds.Extras[c.profile.FlaggedExtra] != ""
	return Classify(flaggedConfigured, extraPresent, updateAll), nil
}

// Apply runs one object through the import state machine. Failures are
// reported on the result and never abort the job; the caller moves on to
// the next object.
func (c *Controller) Apply(ctx context.Context, obj *harvest.Object) harvest.ApplyResult {
	if obj.Content == "" {
		return c.fail(ctx, obj, &harvest.EmptyContentError{ObjectID: obj.ID})
	}

	status := obj.Status()
	var datasetID string

	if status == harvest.StatusUnchanged {
		ds, err := c.catalog.DatasetByGUID(ctx, obj.GUID)
		if err != nil {
			return c.fail(ctx, obj, fmt.Errorf("lookup unchanged dataset: %w", err))
		}
		datasetID = ds.ID
	} else {
		id, err := c.submit(ctx, obj, status)
		if err != nil {
			return c.fail(ctx, obj, err)
		}
		datasetID = id
	}

	if err := c.finish(ctx, obj, status, datasetID); err != nil {
		return c.fail(ctx, obj, err)
	}

	switch status {
	case harvest.StatusNew:
		harvest.DatasetsCreated.Inc()
		return harvest.ApplyResult{Outcome: harvest.OutcomeCreated, DatasetID: datasetID}
	case harvest.StatusUpdated:
		harvest.DatasetsUpdated.Inc()
		return harvest.ApplyResult{Outcome: harvest.OutcomeUpdated, DatasetID: datasetID}
	default:
		harvest.DatasetsUnchanged.Inc()
		return harvest.ApplyResult{Outcome: harvest.OutcomeUnchanged, DatasetID: datasetID}
	}
}

// submit normalizes the object content, reconciles resources, and sends the
// create-or-update request to the catalog backend.
func (c *Controller) submit(ctx context.Context, obj *harvest.Object, status harvest.Status) (string, error) {
	item, err := c.normalizer.Normalize(obj.Content)
	if err != nil {
		return "", err
	}
	item.GUID = obj.GUID
	if c.profile.FlaggedExtra != "" && item.Extras[c.profile.FlaggedExtra] == "" {
		item.Extras[c.profile.FlaggedExtra] = "true"
	}

	var existingID string
	var old []harvest.Resource
	if status == harvest.StatusUpdated {
		ds, err := c.catalog.DatasetByGUID(ctx, obj.GUID)
		switch {
		case errors.Is(err, harvest.ErrNotFound):
			// The sibling dataset disappeared between gather and
			// import; fall through to a create.
		case err != nil:
			return "", fmt.Errorf("lookup dataset for update: %w", err)
		default:
			existingID = ds.ID
			old, err = c.catalog.ResourcesOf(ctx, ds.ID)
			if err != nil {
				return "", fmt.Errorf("list existing resources: %w", err)
			}
		}
	}

	resources := reconcile.Merge(old, item.Resources)

	id, err := c.catalog.CreateOrUpdate(ctx, item, resources, existingID)
	if err != nil {
		return "", &harvest.SubmissionError{GUID: obj.GUID, Err: err}
	}

	c.archive(ctx, obj)
	c.publish(ctx, obj, id, status)
	return id, nil
}

// finish marks older current objects superseded and records the final
// status and dataset id on this object.
func (c *Controller) finish(ctx context.Context, obj *harvest.Object, status harvest.Status, datasetID string) error {
	if err := c.objects.MarkSuperseded(ctx, obj.SourceID, obj.GUID, obj.ID); err != nil {
		return fmt.Errorf("supersede older objects: %w", err)
	}
	now := c.clock.Now()
	obj.Current = true
	obj.DatasetID = datasetID
	obj.ImportedAt = &now
	obj.Extras[harvest.ExtraStatus] = string(status)
	if err := c.objects.Update(ctx, obj); err != nil {
		return fmt.Errorf("record import: %w", err)
	}
	return nil
}

func (c *Controller) fail(ctx context.Context, obj *harvest.Object, err error) harvest.ApplyResult {
	harvest.ObjectsFailed.Inc()
	c.logger.Error("object import failed",
		zap.String("source", obj.SourceID),
		zap.String("guid", obj.GUID),
		zap.Error(err))

	obj.Current = false
	if uerr := c.objects.Update(ctx, obj); uerr != nil {
		c.logger.Warn("record object failure",
			zap.String("guid", obj.GUID),
			zap.Error(uerr))
	}
	return harvest.ApplyResult{Outcome: harvest.OutcomeFailed, Err: err}
}

// archive ships the raw entry payload to the blob store, best effort.
func (c *Controller) archive(ctx context.Context, obj *harvest.Object) {
	if c.blobs == nil {
		return
	}
	path := fmt.Sprintf("%s/%s/%s.xml", c.cfg.ArchivePrefix, obj.SourceID, obj.ID)
	uri, err := c.blobs.PutObject(ctx, path, c.cfg.ArchiveContentType, []byte(obj.Content))
	if err != nil {
		c.logger.Warn("archive raw content",
			zap.String("guid", obj.GUID),
			zap.Error(err))
		return
	}
	obj.Extras["archive_uri"] = uri
}

// publish emits one mutation event, best effort.
func (c *Controller) publish(ctx context.Context, obj *harvest.Object, datasetID string, status harvest.Status) {
	if c.publisher == nil || c.cfg.Topic == "" {
		return
	}
	payload := map[string]any{
		"source_id":  obj.SourceID,
		"guid":       obj.GUID,
		"dataset_id": datasetID,
		"status":     string(status),
		"timestamp":  c.clock.Now().UTC().Format(time.RFC3339),
	}
	if _, err := c.publisher.Publish(ctx, c.cfg.Topic, payload); err != nil {
		c.logger.Warn("publish mutation event",
			zap.String("guid", obj.GUID),
			zap.Error(err))
	}
}
