// Package reconcile merges newly derived resource candidates with the
// resources already persisted on a dataset.
package reconcile

import (
	"sort"

	"github.com/oceansat/geoharvest/internal/harvest"
)

// Merge combines old resources with new candidates into the final ordered
// list. Every old resource whose resource_type is not re-derived (and which
// has a defined order) is retained; all candidates are appended; the result
// is sorted ascending by order. Re-running Merge on its own output with the
// same candidates yields an identical list, so a provider can re-derive an
// existing type without creating duplicates.
func Merge(old, candidates []harvest.Resource) []harvest.Resource {
	merged := make([]harvest.Resource, 0, len(old)+len(candidates))

	if len(old) > 0 {
		newTypes := make(map[string]struct{}, len(candidates))
		for _, c := range candidates {
			newTypes[c.ResourceType] = struct{}{}
		}
		for _, r := range old {
			if _, replaced := newTypes[r.ResourceType]; replaced {
				continue
			}
			if r.Order == 0 {
				continue
			}
			merged = append(merged, r)
		}
	}
	merged = append(merged, candidates...)

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Order < merged[j].Order
	})
	return merged
}
