package harvest

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when no row matches.
var ErrNotFound = errors.New("not found")

// ConfigError reports missing or invalid job configuration. It is fatal
// before any crawl starts.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

// TransportError reports a network or FTP failure. It aborts the remaining
// pages or dates of the current cycle but preserves partial results.
type TransportError struct {
	Op   string
	Code string
	Err  error
}

func (e *TransportError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("transport %s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError reports one malformed entry. The entry is skipped and the
// crawl continues.
type ParseError struct {
	GUID   string
	Reason string
}

func (e *ParseError) Error() string {
	if e.GUID != "" {
		return fmt.Sprintf("parse entry %s: %s", e.GUID, e.Reason)
	}
	return fmt.Sprintf("parse entry: %s", e.Reason)
}

// EmptyContentError is fatal for one object, not the job.
type EmptyContentError struct {
	ObjectID string
}

func (e *EmptyContentError) Error() string {
	return fmt.Sprintf("empty content for object %s", e.ObjectID)
}

// GeometryError reports an unusable bounding box. The spatial field is
// omitted from the canonical item; nothing else fails.
type GeometryError struct {
	Reason string
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("geometry: %s", e.Reason)
}

// SubmissionError reports a create-or-update the catalog backend rejected.
// The object is marked failed and the job continues.
type SubmissionError struct {
	GUID string
	Err  error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit dataset %s: %v", e.GUID, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }
