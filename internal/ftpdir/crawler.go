// Package ftpdir implements the directory-listing crawl variant for
// FTP-style providers: one remote directory per covered date, file names
// becoming harvest object identities.
package ftpdir

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"go.uber.org/zap"

	"github.com/oceansat/geoharvest/internal/harvest"
	"github.com/oceansat/geoharvest/internal/profile"
)

// Element names used in the synthesized entry payload. FTP profiles map
// these through their field tables like any other provider elements.
const (
	ElementIdentifier = "identifier"
	ElementDatestamp  = "datestamp"
	ElementLocation   = "location"
)

// DefaultTimeout bounds dial and listing operations when the job does not
// configure one.
const DefaultTimeout = 30 * time.Second

// ClassifyFunc decides the mutation status for a guid against the known
// datasets of the catalog backend.
type ClassifyFunc func(ctx context.Context, guid string) (harvest.Status, error)

// Conn is the slice of an FTP connection the crawler needs.
type Conn interface {
	NameList(path string) ([]string, error)
	Quit() error
}

// Dialer opens FTP connections; swapped out in tests.
type Dialer interface {
	Dial(ctx context.Context, addr, username, password string, timeout time.Duration) (Conn, error)
}

// NetDialer dials real FTP servers using jlaffaye/ftp.
type NetDialer struct{}

// Dial connects and logs in.
func (NetDialer) Dial(ctx context.Context, addr, username, password string, timeout time.Duration) (Conn, error) {
	conn, err := ftp.Dial(addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("ftp dial %s: %w", addr, err)
	}
	if username != "" {
		if err := conn.Login(username, password); err != nil {
			_ = conn.Quit()
			return nil, fmt.Errorf("ftp login: %w", err)
		}
	}
	return conn, nil
}

// Crawler lists files under date-named remote directories between the
// configured start and end date. A connection or listing failure aborts the
// remaining dates but keeps everything gathered so far.
type Crawler struct {
	profile  *profile.Profile
	dialer   Dialer
	classify ClassifyFunc
	clock    harvest.Clock
	ids      harvest.IDGenerator
	logger   *zap.Logger
}

// New constructs a Crawler.
func New(
	p *profile.Profile,
	dialer Dialer,
	classify ClassifyFunc,
	clock harvest.Clock,
	ids harvest.IDGenerator,
	logger *zap.Logger,
) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dialer == nil {
		dialer = NetDialer{}
	}
	return &Crawler{
		profile:  p,
		dialer:   dialer,
		classify: classify,
		clock:    clock,
		ids:      ids,
		logger:   logger,
	}
}

// Crawl walks one directory per date in [start, end).
func (c *Crawler) Crawl(ctx context.Context, job harvest.Job) harvest.CrawlResult {
	result := harvest.CrawlResult{Reason: harvest.StopExhausted}

	layout := c.profile.FTP.DateLayout
	start, err := time.Parse(layout, job.Settings.StartDate)
	if err != nil {
		result.Err = &harvest.ConfigError{Field: "start_date", Reason: err.Error()}
		result.Reason = harvest.StopTransport
		return result
	}
	end, err := time.Parse(layout, job.Settings.EndDate)
	if err != nil {
		result.Err = &harvest.ConfigError{Field: "end_date", Reason: err.Error()}
		result.Reason = harvest.StopTransport
		return result
	}

	timeout := DefaultTimeout
	if job.Settings.Timeout > 0 {
		timeout = time.Duration(job.Settings.Timeout) * time.Second
	}
	limit := job.Settings.Limit

	conn, err := c.dialer.Dial(ctx, c.profile.FTP.Address, job.Settings.Username, job.Settings.Password, timeout)
	if err != nil {
		harvest.TransportFailures.Inc()
		result.Reason = harvest.StopTransport
		result.Err = transportError("ftp connect", err)
		return result
	}
	defer func() {
		if qerr := conn.Quit(); qerr != nil {
			c.logger.Warn("ftp quit failed", zap.Error(qerr))
		}
	}()

	seen := make(map[string]struct{})
	for date := start; date.Before(end); date = date.AddDate(0, 0, 1) {
		// Directory names follow the profile layout; the datestamp carried
		// into entry payloads and restart extras is always ISO.
		dateStr := date.Format("2006-01-02")
		dir := strings.ReplaceAll(c.profile.FTP.PathTemplate, "{date}", date.Format(layout))

		names, err := conn.NameList(dir)
		if err != nil {
			harvest.TransportFailures.Inc()
			result.Reason = harvest.StopTransport
			result.Err = transportError("ftp list "+dir, err)
			return result
		}
		c.logger.Info("directory listed",
			zap.String("provider", c.profile.ID),
			zap.String("dir", dir),
			zap.Int("files", len(names)))

		for _, name := range names {
			if name == "" || name == "." || name == ".." {
				continue
			}
			guid := name
			if _, dup := seen[guid]; dup {
				harvest.DuplicatesDropped.Inc()
				result.Duplicates++
				continue
			}
			seen[guid] = struct{}{}

			status, err := c.classify(ctx, guid)
			if err != nil {
				result.Reason = harvest.StopTransport
				result.Err = &harvest.TransportError{Op: "classify guid", Err: err}
				return result
			}

			obj, err := c.fileObject(job, name, dateStr, dir)
			if err != nil {
				harvest.EntriesSkipped.Inc()
				result.Skipped++
				continue
			}
			obj.Extras[harvest.ExtraStatus] = string(status)

			harvest.EntriesGathered.Inc()
			result.Objects = append(result.Objects, obj)
			if limit > 0 && len(result.Objects) >= limit {
				result.Reason = harvest.StopLimit
				return result
			}
		}
	}
	return result
}

// fileObject synthesizes an entry payload for one remote file so the
// generic normalizer can run an FTP profile's field table over it.
func (c *Crawler) fileObject(job harvest.Job, name, date, dir string) (*harvest.Object, error) {
	objID, err := c.ids.NewID()
	if err != nil {
		return nil, &harvest.ParseError{GUID: name, Reason: "generate object id: " + err.Error()}
	}

	location := "ftp://" + c.profile.FTP.Address + strings.TrimSuffix("/"+strings.TrimPrefix(dir, "/"), "/") + "/" + name
	content := fmt.Sprintf("<entry><%s>%s</%s><%s>%s</%s><%s>%s</%s></entry>",
		ElementIdentifier, escape(name), ElementIdentifier,
		ElementDatestamp, escape(date), ElementDatestamp,
		ElementLocation, escape(location), ElementLocation)

	return &harvest.Object{
		ID:       objID,
		SourceID: job.SourceID,
		GUID:     name,
		Content:  content,
		Extras: map[string]string{
			harvest.ExtraIdentifier:  name,
			harvest.ExtraRestartDate: date,
		},
		GatheredAt: c.clock.Now(),
	}, nil
}

// transportError surfaces the raw FTP protocol code and message when the
// server replied with one.
func transportError(op string, err error) *harvest.TransportError {
	var proto *textproto.Error
	if errors.As(err, &proto) {
		return &harvest.TransportError{Op: op, Code: strconv.Itoa(proto.Code), Err: err}
	}
	return &harvest.TransportError{Op: op, Err: err}
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
