package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.True(t, cfg.Logging.Development)
	require.Equal(t, "profiles", cfg.Profiles.Dir)
	require.Equal(t, 15*time.Second, cfg.FetchTimeout())
	require.Equal(t, 30*time.Second, cfg.CatalogTimeout())
	require.Equal(t, "application/xml", cfg.Archive.ContentType)
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
server:
  port: 9090
auth:
  enabled: true
  api_key: sekrit
db:
  dsn: postgres://localhost/harvest
catalog:
  url: https://catalog.example
  api_key: catalog-key
archive:
  gcs_bucket: harvest-raw
pubsub:
  project_id: proj
  topic_name: harvest-events
profiles:
  dir: /etc/geoharvest/profiles
sources:
  esa:
    profile: esa
    settings:
      start_date: "2024-01-01"
      page_size: 100
      limit: 1000
      skip_raw: true
  cmems:
    profile: cmems
    settings:
      start_date: YESTERDAY
      end_date: TODAY
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "postgres://localhost/harvest", cfg.DB.DSN)
	require.Equal(t, "harvest-raw", cfg.Archive.GCSBucket)
	require.Len(t, cfg.Sources, 2)

	esa := cfg.Sources["esa"]
	require.Equal(t, "esa", esa.Profile)
	require.Equal(t, "2024-01-01", esa.Settings.StartDate)
	require.Equal(t, 100, esa.Settings.PageSize)
	require.True(t, esa.Settings.SkipRaw)

	cmems := cfg.Sources["cmems"]
	require.Equal(t, "YESTERDAY", cmems.Settings.StartDate)
	require.Equal(t, "TODAY", cmems.Settings.EndDate)
}

func TestLoadRejectsAuthWithoutKey(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
auth:
  enabled: true
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "auth.api_key")
}

func TestLoadRejectsSourceWithoutProfile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
sources:
  esa:
    settings:
      limit: 10
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "sources.esa.profile")
}

func TestLoadRejectsMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorContains(t, err, "read config")
}
