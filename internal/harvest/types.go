// Package harvest defines core types shared across subsystems.
package harvest

import (
	"time"
)

// Status classifies the mutation a gathered entry implies for its dataset.
type Status string

// Mutation status values recorded in the object extras at gather time.
const (
	StatusNew       Status = "new"
	StatusUpdated   Status = "updated"
	StatusUnchanged Status = "unchanged"
)

// Well-known extras keys persisted on harvest objects.
const (
	ExtraStatus      = "status"
	ExtraRestartDate = "restart_date"
	ExtraIdentifier  = "identifier"
)

// Wildcard is the resume cursor returned when no prior object exists for a
// source. It means "no lower bound": gather the full configured window.
const Wildcard = "*"

// JobSettings captures per-source configuration for one harvest run.
type JobSettings struct {
	StartDate string `json:"start_date" mapstructure:"start_date"`
	EndDate   string `json:"end_date" mapstructure:"end_date"`
	PageSize  int    `json:"page_size" mapstructure:"page_size"`
	Limit     int    `json:"limit" mapstructure:"limit"`
	Timeout   int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	Username  string `json:"username" mapstructure:"username"`
	Password  string `json:"password" mapstructure:"password"`
	UpdateAll bool   `json:"update_all" mapstructure:"update_all"`
	SkipRaw   bool   `json:"skip_raw" mapstructure:"skip_raw"`
}

// Job identifies one scheduled run against one source.
type Job struct {
	ID        string      `json:"id"`
	SourceID  string      `json:"source_id"`
	Settings  JobSettings `json:"settings"`
	StartedAt time.Time   `json:"started_at"`
}

// Object is one feed entry captured for a job. An empty Content means the
// payload is fetched out of band during import. A guid is unique among
// current objects for a source; importing an object supersedes any older
// current object sharing its guid.
type Object struct {
	ID         string            `json:"id"`
	SourceID   string            `json:"source_id"`
	GUID       string            `json:"guid"`
	Content    string            `json:"content,omitempty"`
	Extras     map[string]string `json:"extras"`
	Current    bool              `json:"current"`
	DatasetID  string            `json:"dataset_id,omitempty"`
	GatheredAt time.Time         `json:"gathered_at"`
	ImportedAt *time.Time        `json:"imported_at,omitempty"`
}

// Status returns the mutation status recorded at gather time.
func (o *Object) Status() Status {
	return Status(o.Extras[ExtraStatus])
}

// RestartDate returns the restart cursor value carried by this object.
func (o *Object) RestartDate() string {
	return o.Extras[ExtraRestartDate]
}

// Tag is one keyword attached to a canonical item.
type Tag struct {
	Name string `json:"name"`
}

// Resource is one downloadable artifact attached to a dataset. ResourceType
// is the reconciliation key; Order determines display and merge precedence.
type Resource struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	URL          string `json:"url"`
	Format       string `json:"format"`
	MimeType     string `json:"mimetype"`
	ResourceType string `json:"resource_type"`
	Order        int    `json:"order"`
}

// CanonicalItem is the normalized, provider-agnostic record derived from one
// entry. Spatial is a GeoJSON Polygon or empty; partial bounding boxes are
// never emitted.
type CanonicalItem struct {
	Title      string            `json:"title"`
	Notes      string            `json:"notes"`
	Identifier string            `json:"identifier"`
	GUID       string            `json:"guid"`
	Name       string            `json:"name"`
	StartTime  string            `json:"StartTime,omitempty"`
	StopTime   string            `json:"StopTime,omitempty"`
	Spatial    string            `json:"spatial,omitempty"`
	Tags       []Tag             `json:"tags"`
	Extras     map[string]string `json:"extras,omitempty"`
	Resources  []Resource        `json:"resources,omitempty"`
}

// Dataset is the external catalog entity a harvest produces or updates.
type Dataset struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Extras map[string]string `json:"extras"`
}

// Outcome is the terminal result of applying one object.
type Outcome string

// Apply outcomes consumed by the job summary.
const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeFailed    Outcome = "failed"
)

// ApplyResult reports what the lifecycle controller did with one object.
type ApplyResult struct {
	Outcome   Outcome `json:"outcome"`
	DatasetID string  `json:"dataset_id,omitempty"`
	Err       error   `json:"-"`
}

// StopReason explains why a crawl stopped emitting records.
type StopReason string

// Crawl stop reasons. A transport stop still carries everything gathered so
// far; retries happen only on the next externally scheduled cycle.
const (
	StopLimit     StopReason = "limit"
	StopExhausted StopReason = "exhausted"
	StopTransport StopReason = "transport"
)

// CrawlResult is the partial-success outcome of one crawl cycle.
type CrawlResult struct {
	Objects    []*Object  `json:"objects"`
	Reason     StopReason `json:"reason"`
	Skipped    int        `json:"skipped"`
	Duplicates int        `json:"duplicates"`
	Err        error      `json:"-"`
}

// Summary aggregates one job run for operators.
type Summary struct {
	SourceID       string     `json:"source_id"`
	JobID          string     `json:"job_id"`
	Gathered       int        `json:"gathered"`
	Created        int        `json:"created"`
	Updated        int        `json:"updated"`
	Unchanged      int        `json:"unchanged"`
	Failed         int        `json:"failed"`
	Skipped        int        `json:"skipped"`
	Duplicates     int        `json:"duplicates"`
	StopReason     StopReason `json:"stop_reason"`
	TransportError string     `json:"transport_error,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     time.Time  `json:"finished_at"`
}
