package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultCollection is harvested when no collection or base URL is given.
const DefaultCollection = "brady-handy"

// Config holds all configuration options for the harvester
type Config struct {
	// Harvest settings (collection, pagination, retries)
	Harvest HarvestConfig `yaml:"harvest" json:"harvest"`

	// Sync settings (what to write, when to skip)
	Sync SyncConfig `yaml:"sync" json:"sync"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// SelfCheckRun marks this process as a self-verification child.
	// Set only from the hidden command line flag, never from file or env.
	SelfCheckRun bool `yaml:"-" json:"-"`
}

// HarvestConfig holds collection and pagination configuration
type HarvestConfig struct {
	Collection      string        `yaml:"collection" json:"collection"`
	BaseURL         string        `yaml:"base_url" json:"base_url"`
	OutputDir       string        `yaml:"output_dir" json:"output_dir"`
	PerPage         int           `yaml:"per_page" json:"per_page"`
	StartPage       int           `yaml:"start_page" json:"start_page"`
	PoliteDelay     time.Duration `yaml:"polite_delay" json:"polite_delay"`
	MaxRetries      int           `yaml:"max_retries" json:"max_retries"`
	RequestTimeout  time.Duration `yaml:"request_timeout" json:"request_timeout"`
	StopOnShortPage bool          `yaml:"stop_on_short_page" json:"stop_on_short_page"`
}

// UnmarshalYAML decodes the harvest section, accepting Go duration strings
// ("1s", "500ms") for the delay and timeout fields. Absent fields leave the
// existing values alone so file loading composes with defaults.
func (h *HarvestConfig) UnmarshalYAML(value *yaml.Node) error {
	type rawHarvest struct {
		Collection      *string `yaml:"collection"`
		BaseURL         *string `yaml:"base_url"`
		OutputDir       *string `yaml:"output_dir"`
		PerPage         *int    `yaml:"per_page"`
		StartPage       *int    `yaml:"start_page"`
		PoliteDelay     *string `yaml:"polite_delay"`
		MaxRetries      *int    `yaml:"max_retries"`
		RequestTimeout  *string `yaml:"request_timeout"`
		StopOnShortPage *bool   `yaml:"stop_on_short_page"`
	}

	var raw rawHarvest
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.Collection != nil {
		h.Collection = *raw.Collection
	}
	if raw.BaseURL != nil {
		h.BaseURL = *raw.BaseURL
	}
	if raw.OutputDir != nil {
		h.OutputDir = *raw.OutputDir
	}
	if raw.PerPage != nil {
		h.PerPage = *raw.PerPage
	}
	if raw.StartPage != nil {
		h.StartPage = *raw.StartPage
	}
	if raw.PoliteDelay != nil {
		d, err := time.ParseDuration(*raw.PoliteDelay)
		if err != nil {
			return fmt.Errorf("invalid polite_delay: %w", err)
		}
		h.PoliteDelay = d
	}
	if raw.MaxRetries != nil {
		h.MaxRetries = *raw.MaxRetries
	}
	if raw.RequestTimeout != nil {
		d, err := time.ParseDuration(*raw.RequestTimeout)
		if err != nil {
			return fmt.Errorf("invalid request_timeout: %w", err)
		}
		h.RequestTimeout = d
	}
	if raw.StopOnShortPage != nil {
		h.StopOnShortPage = *raw.StopOnShortPage
	}

	return nil
}

// MarshalYAML renders the durations as strings so the output of "config
// show" can be fed back in as a config file.
func (h HarvestConfig) MarshalYAML() (interface{}, error) {
	type rendered struct {
		Collection      string `yaml:"collection"`
		BaseURL         string `yaml:"base_url"`
		OutputDir       string `yaml:"output_dir"`
		PerPage         int    `yaml:"per_page"`
		StartPage       int    `yaml:"start_page"`
		PoliteDelay     string `yaml:"polite_delay"`
		MaxRetries      int    `yaml:"max_retries"`
		RequestTimeout  string `yaml:"request_timeout"`
		StopOnShortPage bool   `yaml:"stop_on_short_page"`
	}

	return rendered{
		Collection:      h.Collection,
		BaseURL:         h.BaseURL,
		OutputDir:       h.OutputDir,
		PerPage:         h.PerPage,
		StartPage:       h.StartPage,
		PoliteDelay:     h.PoliteDelay.String(),
		MaxRetries:      h.MaxRetries,
		RequestTimeout:  h.RequestTimeout.String(),
		StopOnShortPage: h.StopOnShortPage,
	}, nil
}

// SyncConfig holds the per-record synchronization toggles
type SyncConfig struct {
	DownloadImages bool `yaml:"download_images" json:"download_images"`
	SaveMetadata   bool `yaml:"save_metadata" json:"save_metadata"`
	SkipExisting   bool `yaml:"skip_existing" json:"skip_existing"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Harvest: HarvestConfig{
			PerPage:         100,
			StartPage:       1,
			PoliteDelay:     1 * time.Second,
			MaxRetries:      4,
			RequestTimeout:  30 * time.Second,
			StopOnShortPage: false,
		},
		Sync: SyncConfig{
			DownloadImages: true,
			SaveMetadata:   true,
			SkipExisting:   true,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// CollectionBaseURL maps a collection name to its JSON API base URL.
func CollectionBaseURL(collection string) string {
	return fmt.Sprintf("https://www.loc.gov/collections/%s/", collection)
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if collection := os.Getenv("LOCHARVEST_COLLECTION"); collection != "" {
		c.Harvest.Collection = collection
	}
	if baseURL := os.Getenv("LOCHARVEST_BASE_URL"); baseURL != "" {
		c.Harvest.BaseURL = baseURL
	}
	if outputDir := os.Getenv("LOCHARVEST_OUTPUT_DIR"); outputDir != "" {
		c.Harvest.OutputDir = outputDir
	}
	if perPage := os.Getenv("LOCHARVEST_PER_PAGE"); perPage != "" {
		var val int
		fmt.Sscanf(perPage, "%d", &val)
		if val > 0 {
			c.Harvest.PerPage = val
		}
	}
	if retries := os.Getenv("LOCHARVEST_MAX_RETRIES"); retries != "" {
		var val int
		fmt.Sscanf(retries, "%d", &val)
		if val > 0 {
			c.Harvest.MaxRetries = val
		}
	}
	if delay := os.Getenv("LOCHARVEST_POLITE_DELAY"); delay != "" {
		if d, err := time.ParseDuration(delay); err == nil && d >= 0 {
			c.Harvest.PoliteDelay = d
		}
	}
	if skip := os.Getenv("LOCHARVEST_SKIP_EXISTING"); skip != "" {
		c.Sync.SkipExisting = strings.ToLower(skip) == "true"
	}
	if logLevel := os.Getenv("LOCHARVEST_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".locharvest.yaml",
		".locharvest.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "locharvest", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "locharvest", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".locharvest.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if collection, ok := flags["collection"].(string); ok && collection != "" {
		c.Harvest.Collection = collection
	}
	if baseURL, ok := flags["base-url"].(string); ok && baseURL != "" {
		c.Harvest.BaseURL = baseURL
	}
	if outputDir, ok := flags["output-dir"].(string); ok && outputDir != "" {
		c.Harvest.OutputDir = outputDir
	}
	if perPage, ok := flags["per-page"].(int); ok && perPage > 0 {
		c.Harvest.PerPage = perPage
	}
	if startPage, ok := flags["start-page"].(int); ok && startPage > 0 {
		c.Harvest.StartPage = startPage
	}
	if delay, ok := flags["polite-delay"].(time.Duration); ok && delay >= 0 {
		c.Harvest.PoliteDelay = delay
	}
	if retries, ok := flags["max-retries"].(int); ok && retries > 0 {
		c.Harvest.MaxRetries = retries
	}
	if v, ok := flags["download-images"].(bool); ok {
		c.Sync.DownloadImages = v
	}
	if v, ok := flags["save-metadata"].(bool); ok {
		c.Sync.SaveMetadata = v
	}
	if v, ok := flags["skip-existing"].(bool); ok {
		c.Sync.SkipExisting = v
	}
	if v, ok := flags["stop-on-short-page"].(bool); ok {
		c.Harvest.StopOnShortPage = v
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if v, ok := flags["self-check-run"].(bool); ok {
		c.SelfCheckRun = v
	}
}

// ResolveCollection fills in the base URL and output directory from the
// collection name. An explicitly given base URL or output directory always
// wins. When nothing at all was specified, the default collection is used
// and output goes under output/<collection>.
func (c *Config) ResolveCollection() {
	defaulted := false
	if c.Harvest.Collection == "" && c.Harvest.BaseURL == "" {
		c.Harvest.Collection = DefaultCollection
		defaulted = true
	}

	if c.Harvest.BaseURL == "" {
		c.Harvest.BaseURL = CollectionBaseURL(c.Harvest.Collection)
	}

	if c.Harvest.OutputDir == "" {
		switch {
		case defaulted:
			c.Harvest.OutputDir = filepath.Join("output", c.Harvest.Collection)
		case c.Harvest.Collection != "":
			c.Harvest.OutputDir = c.Harvest.Collection
		default:
			// Custom base URL with no output dir: use its last path segment.
			if u, err := url.Parse(c.Harvest.BaseURL); err == nil {
				segs := strings.Split(strings.Trim(u.Path, "/"), "/")
				if last := segs[len(segs)-1]; last != "" {
					c.Harvest.OutputDir = last
				}
			}
			if c.Harvest.OutputDir == "" {
				c.Harvest.OutputDir = "output"
			}
		}
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.Harvest.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("invalid base URL: %q", c.Harvest.BaseURL))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, fmt.Errorf("unsupported base URL scheme: %q", u.Scheme))
	}

	if c.Harvest.OutputDir == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if c.Harvest.PerPage <= 0 {
		errs = append(errs, errors.New("per-page count must be positive"))
	}
	if c.Harvest.StartPage <= 0 {
		errs = append(errs, errors.New("start page must be positive"))
	}
	if c.Harvest.MaxRetries <= 0 {
		errs = append(errs, errors.New("max retries must be positive"))
	}
	if c.Harvest.PoliteDelay < 0 {
		errs = append(errs, errors.New("polite delay cannot be negative"))
	}
	if c.Harvest.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".locharvest.env"))

	// Start with defaults
	config := DefaultConfig()

	// Load from config file
	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// Override with environment variables (includes values from .env)
	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Override with command line flags
	config.MergeCommandLineFlags(flags)

	// Derive base URL and output dir from the collection name
	config.ResolveCollection()

	// Validate final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
