package lifecycle

import (
	"github.com/oceansat/geoharvest/internal/harvest"
)

// Classify decides the mutation status for a guid that already has a
// dataset. The flagged extra is a cross-provider coordination marker: when
// it is configured but absent from the existing dataset's extras, a sibling
// provider owns the dataset and this harvester takes it over (updated).
// Otherwise the dataset is left alone unless the job forces update_all.
// The no-dataset case is classified as new by the caller.
func Classify(flaggedConfigured, extraPresent, updateAll bool) harvest.Status {
	if flaggedConfigured && !extraPresent {
		return harvest.StatusUpdated
	}
	if updateAll {
		return harvest.StatusUpdated
	}
	return harvest.StatusUnchanged
}
