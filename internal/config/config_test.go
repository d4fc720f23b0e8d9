package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "./medbrief.db", cfg.Database.Path)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "./PPT", cfg.Decks.Dir)
	require.Equal(t, time.Hour, cfg.Schedule.ParseCheckInterval())
	require.Equal(t, 60*time.Second, cfg.Generation.ParseTimeout())
	require.Equal(t, "Chinese", cfg.Generation.Language)
	require.Equal(t, 12, cfg.Generation.SlideCount)
	require.NotEmpty(t, cfg.Fetch.Feeds)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  path: /var/lib/medbrief/data.db
server:
  port: 9090
schedule:
  check_interval: 30m
fetch:
  feeds:
    - name: europepmc
      url_template: "https://europepmc.org/rss?query=%s"
compare:
  extractor_url: http://extractor:5000
generation:
  outline_url: http://agents:8001/outline
  deck_url: http://agents:8002/deck
  timeout: 2m
push:
  app_push:
    enabled: true
    url: http://gateway/push
    secret: shh
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "/var/lib/medbrief/data.db", cfg.Database.Path)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 30*time.Minute, cfg.Schedule.ParseCheckInterval())
	require.Len(t, cfg.Fetch.Feeds, 1)
	require.Equal(t, "europepmc", cfg.Fetch.Feeds[0].Name)
	require.Equal(t, "http://extractor:5000", cfg.Compare.ExtractorURL)
	require.Equal(t, 2*time.Minute, cfg.Generation.ParseTimeout())
	require.True(t, cfg.Push.AppPush.Enabled)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MEDBRIEF_DB_PATH", "/tmp/override.db")
	t.Setenv("ANTHROPIC_API_KEY", "test-key")

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "/tmp/override.db", cfg.Database.Path)
	require.True(t, cfg.Compare.LLM.Enabled)
	require.Equal(t, "anthropic", cfg.Compare.LLM.Provider)
	require.Equal(t, "test-key", cfg.Compare.LLM.APIKey)
}

func TestBadIntervalFallsBack(t *testing.T) {
	cfg := Default()
	cfg.Schedule.CheckInterval = "often"
	require.Equal(t, time.Hour, cfg.Schedule.ParseCheckInterval())

	cfg.Generation.Timeout = "soon"
	require.Equal(t, 60*time.Second, cfg.Generation.ParseTimeout())
}
