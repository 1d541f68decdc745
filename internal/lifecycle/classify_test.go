package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oceansat/geoharvest/internal/harvest"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name              string
		flaggedConfigured bool
		extraPresent      bool
		updateAll         bool
		want              harvest.Status
	}{
		{
			name:              "flagged configured but extra absent takes over",
			flaggedConfigured: true,
			extraPresent:      false,
			want:              harvest.StatusUpdated,
		},
		{
			name:              "flagged configured and extra present stays put",
			flaggedConfigured: true,
			extraPresent:      true,
			want:              harvest.StatusUnchanged,
		},
		{
			name:      "update all forces update",
			updateAll: true,
			want:      harvest.StatusUpdated,
		},
		{
			name:              "flagged present with update all still updates",
			flaggedConfigured: true,
			extraPresent:      true,
			updateAll:         true,
			want:              harvest.StatusUpdated,
		},
		{
			name: "default is unchanged",
			want: harvest.StatusUnchanged,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Classify(tc.flaggedConfigured, tc.extraPresent, tc.updateAll)
			require.Equal(t, tc.want, got)
		})
	}
}
