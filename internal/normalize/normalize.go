// Package normalize turns raw feed-entry XML into canonical item records
// using the declarative field tables of a provider profile.
package normalize

import (
	"errors"
	"regexp"
	"strings"

	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"

	"github.com/oceansat/geoharvest/internal/harvest"
	"github.com/oceansat/geoharvest/internal/profile"
)

// Canonical keys a field mapping may target directly. Any other key lands
// in the item extras.
const (
	KeyTitle      = "title"
	KeyNotes      = "notes"
	KeyIdentifier = "identifier"
	KeyStartTime  = "StartTime"
	KeyStopTime   = "StopTime"
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// Normalizer maps raw entry content into canonical item records. Normalize
// is a pure function of its input: identical content yields identical items.
type Normalizer struct {
	profile *profile.Profile
	logger  *zap.Logger
}

// New constructs a Normalizer for one provider profile.
func New(p *profile.Profile, logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{profile: p, logger: logger}
}

// Normalize parses one entry payload and returns the canonical item.
func (n *Normalizer) Normalize(content string) (harvest.CanonicalItem, error) {
	doc, err := xmlquery.Parse(strings.NewReader(content))
	if err != nil {
		return harvest.CanonicalItem{}, &harvest.ParseError{Reason: err.Error()}
	}

	fields := make(map[string]string)
	bounds := make(map[string]string)
	walk(doc, func(node *xmlquery.Node) {
		name := qualifiedName(node)
		for _, m := range n.profile.Fields {
			if strings.EqualFold(name, m.Name) {
				fields[m.Key] = strings.TrimSpace(node.InnerText())
			}
		}
		if n.profile.Bounds.Declared() {
			switch {
			case strings.EqualFold(name, n.profile.Bounds.West):
				bounds["west"] = strings.TrimSpace(node.InnerText())
			case strings.EqualFold(name, n.profile.Bounds.East):
				bounds["east"] = strings.TrimSpace(node.InnerText())
			case strings.EqualFold(name, n.profile.Bounds.South):
				bounds["south"] = strings.TrimSpace(node.InnerText())
			case strings.EqualFold(name, n.profile.Bounds.North):
				bounds["north"] = strings.TrimSpace(node.InnerText())
			}
		}
	})

	identifier := fields[KeyIdentifier]
	if identifier == "" {
		return harvest.CanonicalItem{}, &harvest.ParseError{Reason: "identifier element missing"}
	}
	identifier = unsafeChars.ReplaceAllString(identifier, "_")

	item := harvest.CanonicalItem{
		Title:      fields[KeyTitle],
		Notes:      fields[KeyNotes],
		Identifier: identifier,
		Name:       strings.ToLower(identifier),
		StartTime:  fields[KeyStartTime],
		StopTime:   fields[KeyStopTime],
		Extras:     make(map[string]string),
	}
	for key, value := range fields {
		switch key {
		case KeyTitle, KeyNotes, KeyIdentifier, KeyStartTime, KeyStopTime:
		default:
			item.Extras[key] = value
		}
	}

	n.expandDayCoverage(&item)
	n.applySpatial(&item, bounds)
	n.collectLinks(doc, &item)
	n.applyCollection(&item)

	item.Tags = n.tags(item.Identifier)
	item.Resources = n.deriveResources(item)

	return item, nil
}

// expandDayCoverage synthesizes a whole-day window when the provider only
// publishes a single day-granularity timestamp.
func (n *Normalizer) expandDayCoverage(item *harvest.CanonicalItem) {
	if item.StartTime == "" || item.StopTime != "" {
		return
	}
	item.StopTime = item.StartTime
	if !strings.HasSuffix(item.StartTime, "Z") {
		item.StartTime += "T00:00:00.000Z"
		item.StopTime += "T23:59:59.999Z"
	}
}

// applySpatial converts the collected bounds into GeoJSON. If any of the
// four bounds is absent or unparsable the whole spatial group is dropped.
func (n *Normalizer) applySpatial(item *harvest.CanonicalItem, bounds map[string]string) {
	if len(bounds) == 0 {
		return
	}
	polygon, err := ToPolygon(bounds["west"], bounds["east"], bounds["south"], bounds["north"])
	if err != nil {
		var geomErr *harvest.GeometryError
		if errors.As(err, &geomErr) {
			n.logger.Debug("dropping spatial field",
				zap.String("identifier", item.Identifier),
				zap.String("reason", geomErr.Reason))
		}
		return
	}
	item.Spatial = polygon
}

// collectLinks walks the profile's link table, routing online-resource URLs
// into the item extras by name match.
func (n *Normalizer) collectLinks(doc *xmlquery.Node, item *harvest.CanonicalItem) {
	table := n.profile.Links
	if table == nil {
		return
	}
	walk(doc, func(node *xmlquery.Node) {
		if !strings.EqualFold(qualifiedName(node), table.Element) {
			return
		}
		name := childText(node, table.NameElement)
		url := childText(node, table.URLElement)
		if url == "" {
			return
		}
		for _, m := range table.Matches {
			if strings.Contains(name, m.Substring) {
				item.Extras[m.Key] = url
				return
			}
		}
	})
}

// applyCollection overrides title and notes with fixed collection metadata
// when the identifier selects one.
func (n *Normalizer) applyCollection(item *harvest.CanonicalItem) {
	c, ok := n.profile.CollectionFor(item.Identifier)
	if !ok {
		return
	}
	item.Title = c.Title
	item.Notes = c.Description
	item.Extras["collection_id"] = c.ID
	item.Extras["collection_name"] = c.Title
}

func (n *Normalizer) tags(identifier string) []harvest.Tag {
	names := n.profile.TagsFor(identifier)
	if len(names) == 0 {
		n.logger.Debug("no tags for identifier", zap.String("identifier", identifier))
		return []harvest.Tag{}
	}
	tags := make([]harvest.Tag, 0, len(names))
	for _, name := range names {
		tags = append(tags, harvest.Tag{Name: name})
	}
	return tags
}

// walk visits every element node in document order.
func walk(node *xmlquery.Node, fn func(*xmlquery.Node)) {
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			fn(child)
		}
		walk(child, fn)
	}
}

// qualifiedName returns prefix:local when the element carries a namespace
// prefix, matching the selector notation used in profiles.
func qualifiedName(node *xmlquery.Node) string {
	if node.Prefix != "" {
		return node.Prefix + ":" + node.Data
	}
	return node.Data
}

// childText returns the trimmed text of the first descendant with the given
// qualified name.
func childText(node *xmlquery.Node, name string) string {
	var text string
	found := false
	walk(node, func(child *xmlquery.Node) {
		if !found && strings.EqualFold(qualifiedName(child), name) {
			text = strings.TrimSpace(child.InnerText())
			found = true
		}
	})
	return text
}
