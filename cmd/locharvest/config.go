package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"locharvest/pkg/config"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage locharvest configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (LOCHARVEST_*)
  - Configuration file
  - Default values (lowest priority)`,
}

// configInitCmd represents the config init command
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file will be created in the current directory as '.locharvest.yaml'
unless a different path is specified with the --config flag.`,
	RunE: runConfigInit,
}

// configShowCmd represents the config show command
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration",
	Long: `Show the configuration as the harvester would use it, after merging all
sources and resolving the collection name into a base URL and output
directory.`,
	RunE: runConfigShow,
}

// configValidateCmd represents the config validate command
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

const exampleConfig = `# locharvest configuration file
#
# Every option can also be set through environment variables prefixed with
# LOCHARVEST_, for example LOCHARVEST_COLLECTION or LOCHARVEST_POLITE_DELAY.

harvest:
  # Collection name; its API base URL and output directory are derived.
  collection: "` + config.DefaultCollection + `"

  # Explicit API endpoint; overrides the collection-derived URL.
  # base_url: "https://www.loc.gov/collections/brady-handy/"

  # Where record directories are created.
  # output_dir: "output/brady-handy"

  # Records requested per page.
  per_page: 100

  # Page to start the walk from.
  start_page: 1

  # Minimum delay between page requests.
  polite_delay: 1s

  # Total fetch attempts per page before the run stops.
  max_retries: 4

  # Per-request timeout.
  request_timeout: 30s

sync:
  # Download image assets.
  download_images: true

  # Write per-record metadata JSON.
  save_metadata: true

  # Skip files that are already current on disk.
  skip_existing: true

logging:
  # debug, info, warn, or error.
  level: "info"

  # Also append logs to a file.
  # file: "locharvest.log"
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = ".locharvest.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists: %s", configPath)
	}

	if err := os.WriteFile(configPath, []byte(exampleConfig), 0644); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	fmt.Printf("Created %s\n", configPath)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}

	fmt.Print(string(out))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultConfig()
	if err := cfg.LoadFromFile(configFile); err != nil {
		return err
	}
	cfg.ResolveCollection()
	if err := cfg.Validate(); err != nil {
		return err
	}

	fmt.Println("Configuration is valid")
	return nil
}
