// Package profile holds the declarative per-provider field mappings that
// drive the generic harvesting engine. A profile identifies the XML elements
// carrying the entry id, guid, and restart date, the field table used during
// normalization, and the lookup tables for collections, tags, and derived
// resources. One engine consumes these tables; there is no per-provider
// subclassing.
package profile

import (
	"fmt"
	"strings"
)

// Supported selector transforms.
const (
	TransformNone            = ""
	TransformLowercase       = "lowercase"
	TransformLastPathSegment = "last_path_segment"
)

// Protocols a profile can declare.
const (
	ProtocolOpenSearch = "opensearch"
	ProtocolFTP        = "ftp"
)

// Selector identifies an XML element by tag name plus required attribute
// name/value constraints, disambiguating same-named elements. An empty Attrs
// map matches the first element with the tag name.
type Selector struct {
	Name      string            `yaml:"name"`
	Attrs     map[string]string `yaml:"attrs"`
	Transform string            `yaml:"transform"`
}

// Apply runs the selector's post-processing transform on an extracted value.
func (s Selector) Apply(value string) string {
	switch s.Transform {
	case TransformLowercase:
		return strings.ToLower(value)
	case TransformLastPathSegment:
		if i := strings.LastIndexAny(value, ":/"); i >= 0 {
			return value[i+1:]
		}
		return value
	default:
		return value
	}
}

// FieldMapping routes the text of every descendant element named Name into
// the canonical key Key.
type FieldMapping struct {
	Name string `yaml:"name"`
	Key  string `yaml:"key"`
}

// Bounds names the four elements carrying the bounding-box scalars.
type Bounds struct {
	West  string `yaml:"west"`
	East  string `yaml:"east"`
	South string `yaml:"south"`
	North string `yaml:"north"`
}

// Declared reports whether the profile carries a bounds table at all.
func (b Bounds) Declared() bool {
	return b.West != "" || b.East != "" || b.South != "" || b.North != ""
}

// Collection supplies fixed human-readable metadata selected by identifier
// prefix, for feeds that carry no usable title of their own.
type Collection struct {
	Prefix      string `yaml:"prefix"`
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

// TagRule attaches a fixed tag set to identifiers matching a prefix.
type TagRule struct {
	Prefix string   `yaml:"prefix"`
	Tags   []string `yaml:"tags"`
}

// LinkMatch routes an online-resource entry whose name contains Substring
// into the item extras under Key.
type LinkMatch struct {
	Substring string `yaml:"substring"`
	Key       string `yaml:"key"`
}

// LinkTable describes how to collect download links from repeated
// online-resource elements (name + URL child pairs).
type LinkTable struct {
	Element     string      `yaml:"element"`
	NameElement string      `yaml:"name_element"`
	URLElement  string      `yaml:"url_element"`
	Matches     []LinkMatch `yaml:"matches"`
}

// ResourceRule derives one resource candidate from an item extras field.
// The candidate is only produced when the field holds a URL.
type ResourceRule struct {
	Field       string `yaml:"field"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Format      string `yaml:"format"`
	MimeType    string `yaml:"mimetype"`
	Type        string `yaml:"type"`
	Order       int    `yaml:"order"`
}

// FTPSettings configure the directory-listing protocol variant.
type FTPSettings struct {
	Address      string `yaml:"address"`
	PathTemplate string `yaml:"path_template"`
	DateLayout   string `yaml:"date_layout"`
}

// Profile is one provider integration, immutable per job.
type Profile struct {
	ID       string `yaml:"id"`
	Protocol string `yaml:"protocol"`
	BaseURL  string `yaml:"base_url"`

	// QueryField is the restart-date field referenced in the catalog
	// query (q=<field>:[start TO end]&orderby=<field> asc).
	QueryField    string `yaml:"query_field"`
	RestartFilter string `yaml:"restart_filter"`
	FlaggedExtra  string `yaml:"flagged_extra"`

	IDSelector          Selector `yaml:"id_selector"`
	GUIDSelector        Selector `yaml:"guid_selector"`
	RestartDateSelector Selector `yaml:"restart_date_selector"`

	Fields        []FieldMapping `yaml:"fields"`
	Bounds        Bounds         `yaml:"bounds"`
	Collections   []Collection   `yaml:"collections"`
	TagRules      []TagRule      `yaml:"tag_rules"`
	Links         *LinkTable     `yaml:"links"`
	ResourceRules []ResourceRule `yaml:"resources"`

	FTP FTPSettings `yaml:"ftp"`
}

// Validate enforces the fields the engine cannot run without.
func (p *Profile) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("profile id is required")
	}
	switch p.Protocol {
	case ProtocolOpenSearch:
		if p.BaseURL == "" {
			return fmt.Errorf("profile %s: base_url is required", p.ID)
		}
		if p.QueryField == "" {
			return fmt.Errorf("profile %s: query_field is required", p.ID)
		}
		if p.IDSelector.Name == "" {
			return fmt.Errorf("profile %s: id_selector.name is required", p.ID)
		}
		if p.GUIDSelector.Name == "" {
			return fmt.Errorf("profile %s: guid_selector.name is required", p.ID)
		}
		if p.RestartDateSelector.Name == "" {
			return fmt.Errorf("profile %s: restart_date_selector.name is required", p.ID)
		}
	case ProtocolFTP:
		if p.FTP.Address == "" {
			return fmt.Errorf("profile %s: ftp.address is required", p.ID)
		}
		if p.FTP.PathTemplate == "" {
			return fmt.Errorf("profile %s: ftp.path_template is required", p.ID)
		}
	default:
		return fmt.Errorf("profile %s: unknown protocol %q", p.ID, p.Protocol)
	}
	for _, t := range []string{p.IDSelector.Transform, p.GUIDSelector.Transform, p.RestartDateSelector.Transform} {
		switch t {
		case TransformNone, TransformLowercase, TransformLastPathSegment:
		default:
			return fmt.Errorf("profile %s: unknown transform %q", p.ID, t)
		}
	}
	for _, r := range p.ResourceRules {
		if r.Field == "" || r.Type == "" {
			return fmt.Errorf("profile %s: resource rules need field and type", p.ID)
		}
	}
	return nil
}

// CollectionFor returns the collection matching an identifier, if any.
// Matching is prefix-based against the lowercased identifier.
func (p *Profile) CollectionFor(identifier string) (Collection, bool) {
	lowered := strings.ToLower(identifier)
	for _, c := range p.Collections {
		if strings.HasPrefix(lowered, strings.ToLower(c.Prefix)) {
			return c, true
		}
	}
	return Collection{}, false
}

// TagsFor returns the tag names declared for an identifier. Unmatched
// identifiers yield an empty list.
func (p *Profile) TagsFor(identifier string) []string {
	lowered := strings.ToLower(identifier)
	for _, r := range p.TagRules {
		if strings.HasPrefix(lowered, strings.ToLower(r.Prefix)) {
			return r.Tags
		}
	}
	return nil
}
