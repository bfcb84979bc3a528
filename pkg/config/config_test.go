package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)

	assert.Equal(t, 100, cfg.Harvest.PerPage)
	assert.Equal(t, 1, cfg.Harvest.StartPage)
	assert.Equal(t, 1*time.Second, cfg.Harvest.PoliteDelay)
	assert.Equal(t, 4, cfg.Harvest.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Harvest.RequestTimeout)
	assert.False(t, cfg.Harvest.StopOnShortPage)

	assert.True(t, cfg.Sync.DownloadImages)
	assert.True(t, cfg.Sync.SaveMetadata)
	assert.True(t, cfg.Sync.SkipExisting)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.SelfCheckRun)
}

func TestResolveCollectionDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ResolveCollection()

	assert.Equal(t, DefaultCollection, cfg.Harvest.Collection)
	assert.Equal(t, "https://www.loc.gov/collections/brady-handy/", cfg.Harvest.BaseURL)
	assert.Equal(t, filepath.Join("output", "brady-handy"), cfg.Harvest.OutputDir)
}

func TestResolveCollectionExplicitName(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Harvest.Collection = "bain"
	cfg.ResolveCollection()

	assert.Equal(t, "https://www.loc.gov/collections/bain/", cfg.Harvest.BaseURL)
	assert.Equal(t, "bain", cfg.Harvest.OutputDir)
}

func TestResolveCollectionExplicitFlagsWin(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Harvest.Collection = "bain"
	cfg.Harvest.BaseURL = "https://example.org/custom/"
	cfg.Harvest.OutputDir = "my-output"
	cfg.ResolveCollection()

	assert.Equal(t, "https://example.org/custom/", cfg.Harvest.BaseURL)
	assert.Equal(t, "my-output", cfg.Harvest.OutputDir)
}

func TestResolveCollectionBaseURLOnly(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Harvest.BaseURL = "https://example.org/collections/civil-war/"
	cfg.ResolveCollection()

	assert.Equal(t, "civil-war", cfg.Harvest.OutputDir)
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := DefaultConfig()

	cfg.MergeCommandLineFlags(map[string]interface{}{
		"collection":      "brady-handy",
		"per-page":        25,
		"start-page":      3,
		"polite-delay":    250 * time.Millisecond,
		"max-retries":     2,
		"download-images": false,
		"skip-existing":   false,
		"log-level":       "debug",
		"self-check-run":  true,
	})

	assert.Equal(t, "brady-handy", cfg.Harvest.Collection)
	assert.Equal(t, 25, cfg.Harvest.PerPage)
	assert.Equal(t, 3, cfg.Harvest.StartPage)
	assert.Equal(t, 250*time.Millisecond, cfg.Harvest.PoliteDelay)
	assert.Equal(t, 2, cfg.Harvest.MaxRetries)
	assert.False(t, cfg.Sync.DownloadImages)
	assert.False(t, cfg.Sync.SkipExisting)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.SelfCheckRun)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LOCHARVEST_COLLECTION", "stereographs")
	t.Setenv("LOCHARVEST_PER_PAGE", "50")
	t.Setenv("LOCHARVEST_POLITE_DELAY", "500ms")
	t.Setenv("LOCHARVEST_SKIP_EXISTING", "false")
	t.Setenv("LOCHARVEST_LOG_LEVEL", "warn")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "stereographs", cfg.Harvest.Collection)
	assert.Equal(t, 50, cfg.Harvest.PerPage)
	assert.Equal(t, 500*time.Millisecond, cfg.Harvest.PoliteDelay)
	assert.False(t, cfg.Sync.SkipExisting)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `harvest:
  collection: bain
  per_page: 10
  max_retries: 2
sync:
  download_images: false
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, "bain", cfg.Harvest.Collection)
	assert.Equal(t, 10, cfg.Harvest.PerPage)
	assert.Equal(t, 2, cfg.Harvest.MaxRetries)
	assert.False(t, cfg.Sync.DownloadImages)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Untouched fields keep their defaults.
	assert.Equal(t, 1, cfg.Harvest.StartPage)
	assert.True(t, cfg.Sync.SaveMetadata)
}

func TestLoadFromFileDurationStrings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `harvest:
  polite_delay: 2500ms
  request_timeout: 45s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, 2500*time.Millisecond, cfg.Harvest.PoliteDelay)
	assert.Equal(t, 45*time.Second, cfg.Harvest.RequestTimeout)
}

func TestLoadFromFileBadDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("harvest:\n  polite_delay: soon\n"), 0644))

	cfg := DefaultConfig()
	assert.Error(t, cfg.LoadFromFile(path))
}

func TestConfigYAMLRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Harvest.Collection = "bain"
	cfg.ResolveCollection()

	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)

	// The rendered form parses back to the same harvest settings.
	reloaded := DefaultConfig()
	require.NoError(t, yaml.Unmarshal(out, reloaded))
	assert.Equal(t, cfg.Harvest, reloaded.Harvest)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"bad base URL", func(c *Config) { c.Harvest.BaseURL = "://nope" }, true},
		{"non-http scheme", func(c *Config) { c.Harvest.BaseURL = "ftp://example.org/" }, true},
		{"zero per-page", func(c *Config) { c.Harvest.PerPage = 0 }, true},
		{"zero start page", func(c *Config) { c.Harvest.StartPage = 0 }, true},
		{"zero retries", func(c *Config) { c.Harvest.MaxRetries = 0 }, true},
		{"empty output dir", func(c *Config) { c.Harvest.OutputDir = "" }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.ResolveCollection()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("harvest:\n  per_page: 10\n"), 0644))

	t.Setenv("LOCHARVEST_PER_PAGE", "20")

	cfg, err := Load(path, map[string]interface{}{"per-page": 30})
	require.NoError(t, err)

	// Flags beat env which beats file.
	assert.Equal(t, 30, cfg.Harvest.PerPage)
}
