package normalize

import (
	"github.com/oceansat/geoharvest/internal/harvest"
)

// deriveResources produces the resource candidates declared by the
// profile's resource rules. A rule only yields a candidate when the item
// carries a URL in the rule's field, so the list is deterministic for a
// given item.
func (n *Normalizer) deriveResources(item harvest.CanonicalItem) []harvest.Resource {
	var resources []harvest.Resource
	for _, rule := range n.profile.ResourceRules {
		url := item.Extras[rule.Field]
		if url == "" {
			continue
		}
		resources = append(resources, harvest.Resource{
			Name:         rule.Name,
			Description:  rule.Description,
			URL:          url,
			Format:       rule.Format,
			MimeType:     rule.MimeType,
			ResourceType: rule.Type,
			Order:        rule.Order,
		})
	}
	return resources
}
