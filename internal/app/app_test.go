package app

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/oceansat/geoharvest/internal/config"
	"github.com/oceansat/geoharvest/internal/harvest"
	"github.com/oceansat/geoharvest/internal/profile"
	"github.com/oceansat/geoharvest/internal/storage/memory"
)

func testApp() *App {
	return &App{
		Logger: zap.NewNop(),
		Profiles: map[string]*profile.Profile{
			"cmems": {
				ID:       "cmems",
				Protocol: profile.ProtocolFTP,
				FTP: profile.FTPSettings{
					Address:      "ftp.example:21",
					PathTemplate: "/products/{date}",
					DateLayout:   "2006-01-02",
				},
			},
		},
		Objects: memory.NewObjectStore(),
		Catalog: memory.NewCatalogStore(),
	}
}

func TestRunnerRequiresWindowForFTPSources(t *testing.T) {
	t.Parallel()

	a := testApp()

	_, err := a.Runner("cmems", config.SourceConfig{
		Profile:  "cmems",
		Settings: harvest.JobSettings{EndDate: "TODAY"},
	})
	var cfgErr *harvest.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, "sources.cmems.settings.start_date", cfgErr.Field)

	_, err = a.Runner("cmems", config.SourceConfig{
		Profile:  "cmems",
		Settings: harvest.JobSettings{StartDate: "YESTERDAY"},
	})
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, "sources.cmems.settings.end_date", cfgErr.Field)

	runner, err := a.Runner("cmems", config.SourceConfig{
		Profile:  "cmems",
		Settings: harvest.JobSettings{StartDate: "YESTERDAY", EndDate: "TODAY"},
	})
	require.NoError(t, err)
	require.NotNil(t, runner)
}

func TestRunnerRejectsUnknownProfile(t *testing.T) {
	t.Parallel()

	a := testApp()
	_, err := a.Runner("esa", config.SourceConfig{Profile: "nope"})
	require.ErrorContains(t, err, "unknown profile")
}
