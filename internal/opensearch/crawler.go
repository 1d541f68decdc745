// Package opensearch implements the paginated, resumable crawl loop over
// OpenSearch/Atom catalog endpoints.
package opensearch

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"

	"github.com/oceansat/geoharvest/internal/harvest"
	"github.com/oceansat/geoharvest/internal/profile"
)

// Defaults mirroring typical catalog contracts.
const (
	DefaultPageSize = 100
	DefaultLimit    = 1000
	DefaultTimeout  = 4 * time.Second
)

// ClassifyFunc decides the mutation status for a guid against the known
// datasets of the catalog backend.
type ClassifyFunc func(ctx context.Context, guid string) (harvest.Status, error)

// Crawler walks a catalog page by page, applying the provider profile's
// selectors to each entry and emitting one classified object per entry.
// Entries are processed in ascending restart-date order, which is what
// allows the restart cursor to be a simple high-water mark.
type Crawler struct {
	profile  *profile.Profile
	fetcher  harvest.PageFetcher
	classify ClassifyFunc
	clock    harvest.Clock
	ids      harvest.IDGenerator
	logger   *zap.Logger
}

// New constructs a Crawler.
func New(
	p *profile.Profile,
	fetcher harvest.PageFetcher,
	classify ClassifyFunc,
	clock harvest.Clock,
	ids harvest.IDGenerator,
	logger *zap.Logger,
) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{
		profile:  p,
		fetcher:  fetcher,
		classify: classify,
		clock:    clock,
		ids:      ids,
		logger:   logger,
	}
}

// Crawl issues paged GET requests until the result limit is reached, a page
// comes back short (end of available results), or a transport/parse failure
// ends the cycle. On early stop everything gathered so far is returned
// along with the stop reason; nothing is retried in-process.
func (c *Crawler) Crawl(ctx context.Context, job harvest.Job) harvest.CrawlResult {
	settings := job.Settings
	pageSize := settings.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	limit := settings.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	timeout := DefaultTimeout
	if settings.Timeout > 0 {
		timeout = time.Duration(settings.Timeout) * time.Second
	}
	end := settings.EndDate
	if end == "" {
		end = "NOW"
	}

	result := harvest.CrawlResult{Reason: harvest.StopExhausted}
	seen := make(map[string]struct{})

	for offset := 0; ; offset += pageSize {
		pageURL := buildPageURL(queryParams{
			base:       c.profile.BaseURL,
			queryField: c.profile.QueryField,
			start:      settings.StartDate,
			end:        end,
			skipRaw:    settings.SkipRaw,
			filter:     c.profile.RestartFilter,
			offset:     offset,
			rows:       pageSize,
		})

		entries, err := c.fetchPage(ctx, pageURL, timeout, settings)
		if err != nil {
			harvest.TransportFailures.Inc()
			result.Reason = harvest.StopTransport
			result.Err = err
			return result
		}

		for _, entry := range entries {
			obj, err := c.entryObject(entry, job)
			if err != nil {
				harvest.EntriesSkipped.Inc()
				result.Skipped++
				c.logger.Debug("skipping malformed entry",
					zap.String("source", job.SourceID),
					zap.Error(err))
				continue
			}
			if _, dup := seen[obj.GUID]; dup {
				harvest.DuplicatesDropped.Inc()
				result.Duplicates++
				continue
			}
			seen[obj.GUID] = struct{}{}

			status, err := c.classify(ctx, obj.GUID)
			if err != nil {
				result.Reason = harvest.StopTransport
				result.Err = &harvest.TransportError{Op: "classify guid", Err: err}
				return result
			}
			obj.Extras[harvest.ExtraStatus] = string(status)

			harvest.EntriesGathered.Inc()
			result.Objects = append(result.Objects, obj)
			if len(result.Objects) >= limit {
				result.Reason = harvest.StopLimit
				return result
			}
		}

		if len(entries) < pageSize {
			result.Reason = harvest.StopExhausted
			return result
		}
	}
}

// fetchPage retrieves and parses one catalog page, returning its entries.
func (c *Crawler) fetchPage(
	ctx context.Context,
	pageURL string,
	timeout time.Duration,
	settings harvest.JobSettings,
) ([]*xmlquery.Node, error) {
	requestStart := c.clock.Now()
	resp, err := c.fetcher.Fetch(ctx, harvest.PageRequest{
		URL:      pageURL,
		Timeout:  timeout,
		Username: settings.Username,
		Password: settings.Password,
	})
	if err != nil {
		return nil, &harvest.TransportError{Op: "page fetch", Err: err}
	}

	c.logger.Info("catalog page fetched",
		zap.String("provider", c.profile.ID),
		zap.Time("request_start", requestStart),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", resp.Elapsed))

	if resp.StatusCode != 200 {
		return nil, &harvest.TransportError{
			Op:   "page fetch",
			Code: strconv.Itoa(resp.StatusCode),
			Err:  errStatus(resp.StatusCode),
		}
	}

	doc, err := xmlquery.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, &harvest.TransportError{Op: "page parse", Err: err}
	}
	return findEntries(doc), nil
}

// entryObject applies the profile selectors to one entry and captures its
// raw payload. A missing required selector value fails only this entry.
func (c *Crawler) entryObject(entry *xmlquery.Node, job harvest.Job) (*harvest.Object, error) {
	identifier := extractSelector(entry, c.profile.IDSelector)
	if identifier == "" {
		return nil, &harvest.ParseError{Reason: "id element missing"}
	}
	guid := extractSelector(entry, c.profile.GUIDSelector)
	if guid == "" {
		return nil, &harvest.ParseError{Reason: "guid element missing"}
	}
	restartDate := extractSelector(entry, c.profile.RestartDateSelector)
	if restartDate == "" {
		return nil, &harvest.ParseError{GUID: guid, Reason: "restart date element missing"}
	}

	objID, err := c.ids.NewID()
	if err != nil {
		return nil, &harvest.ParseError{GUID: guid, Reason: "generate object id: " + err.Error()}
	}

	return &harvest.Object{
		ID:       objID,
		SourceID: job.SourceID,
		GUID:     guid,
		Content:  entry.OutputXML(true),
		Extras: map[string]string{
			harvest.ExtraIdentifier:  identifier,
			harvest.ExtraRestartDate: restartDate,
		},
		GatheredAt: c.clock.Now(),
	}, nil
}

type statusError int

func errStatus(code int) error { return statusError(code) }

func (e statusError) Error() string {
	return "unexpected status " + strconv.Itoa(int(e))
}

// findEntries returns every element whose local name is "entry".
func findEntries(doc *xmlquery.Node) []*xmlquery.Node {
	var entries []*xmlquery.Node
	walkNodes(doc, func(node *xmlquery.Node) bool {
		if strings.EqualFold(node.Data, "entry") {
			entries = append(entries, node)
			return false
		}
		return true
	})
	return entries
}

// extractSelector finds the first descendant matching the selector's tag
// name and attribute constraints and returns its transformed text.
func extractSelector(entry *xmlquery.Node, sel profile.Selector) string {
	var value string
	walkNodes(entry, func(node *xmlquery.Node) bool {
		if value != "" {
			return false
		}
		if !matchesSelector(node, sel) {
			return true
		}
		value = strings.TrimSpace(node.InnerText())
		return false
	})
	return sel.Apply(value)
}

func matchesSelector(node *xmlquery.Node, sel profile.Selector) bool {
	name := node.Data
	if node.Prefix != "" {
		name = node.Prefix + ":" + node.Data
	}
	if !strings.EqualFold(name, sel.Name) && !strings.EqualFold(node.Data, sel.Name) {
		return false
	}
	for attr, want := range sel.Attrs {
		got, ok := attrValue(node, attr)
		if !ok || got != want {
			return false
		}
	}
	return true
}

func attrValue(node *xmlquery.Node, name string) (string, bool) {
	for _, attr := range node.Attr {
		if strings.EqualFold(attr.Name.Local, name) {
			return attr.Value, true
		}
	}
	return "", false
}

// walkNodes visits element nodes in document order; the callback returns
// false to stop descending into a subtree.
func walkNodes(node *xmlquery.Node, fn func(*xmlquery.Node) bool) {
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			if !fn(child) {
				continue
			}
		}
		walkNodes(child, fn)
	}
}
