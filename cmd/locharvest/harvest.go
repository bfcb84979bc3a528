package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"locharvest/pkg/config"
	"locharvest/pkg/harvester"
	"locharvest/pkg/logger"
)

var (
	// Harvest command flags
	baseURL         string
	outputDir       string
	perPage         int
	startPage       int
	politeDelay     time.Duration
	maxRetries      int
	downloadImages  bool
	saveMetadata    bool
	skipExisting    bool
	stopOnShortPage bool
)

// harvestCmd represents the harvest command
var harvestCmd = &cobra.Command{
	Use:   "harvest [collection]",
	Short: "Walk a collection, saving metadata and downloading images",
	Long: `Walk the numbered pages of a collection's JSON API, in order. For each
record a directory is created under the output root, the record's metadata
is written as JSON, and every discovered image is downloaded at the highest
available resolution.

With no collection argument the default collection is harvested into
output/` + config.DefaultCollection + `. A custom endpoint can be given with --base-url instead
of a collection name.`,
	Example: `  # Harvest the default collection
  locharvest harvest

  # Harvest a named collection into a directory of the same name
  locharvest harvest civil-war-glass-negatives

  # Metadata only, no image downloads
  locharvest harvest bain --download-images=false

  # Custom endpoint with a slower request pace
  locharvest harvest --base-url https://www.loc.gov/photos/ --polite-delay 3s`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHarvest(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(harvestCmd)
	addHarvestFlags(harvestCmd)
}

// addHarvestFlags binds the harvest flags on cmd. They are registered on both
// the harvest command and the bare root command.
func addHarvestFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&baseURL, "base-url", "", "collection API base URL (overrides the collection name)")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "output directory (default: derived from the collection)")
	cmd.Flags().IntVar(&perPage, "per-page", 100, "records requested per page")
	cmd.Flags().IntVar(&startPage, "start-page", 1, "page number to start from")
	cmd.Flags().DurationVar(&politeDelay, "polite-delay", time.Second, "minimum delay between page requests")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 4, "total fetch attempts per page")
	cmd.Flags().BoolVar(&downloadImages, "download-images", true, "download image assets")
	cmd.Flags().BoolVar(&saveMetadata, "save-metadata", true, "write per-record metadata JSON")
	cmd.Flags().BoolVar(&skipExisting, "skip-existing", true, "skip files that are already current")
	cmd.Flags().BoolVar(&stopOnShortPage, "stop-on-short-page", false, "treat a short page as the end of the collection")
}

func runHarvest(cmd *cobra.Command, args []string) error {
	// Only flags the user actually set override the config file and env.
	flags := make(map[string]interface{})
	if len(args) == 1 {
		flags["collection"] = strings.TrimSpace(args[0])
	}
	if cmd.Flags().Changed("base-url") {
		flags["base-url"] = baseURL
	}
	if cmd.Flags().Changed("output-dir") {
		flags["output-dir"] = outputDir
	}
	if cmd.Flags().Changed("per-page") {
		flags["per-page"] = perPage
	}
	if cmd.Flags().Changed("start-page") {
		flags["start-page"] = startPage
	}
	if cmd.Flags().Changed("polite-delay") {
		flags["polite-delay"] = politeDelay
	}
	if cmd.Flags().Changed("max-retries") {
		flags["max-retries"] = maxRetries
	}
	if cmd.Flags().Changed("download-images") {
		flags["download-images"] = downloadImages
	}
	if cmd.Flags().Changed("save-metadata") {
		flags["save-metadata"] = saveMetadata
	}
	if cmd.Flags().Changed("skip-existing") {
		flags["skip-existing"] = skipExisting
	}
	if cmd.Flags().Changed("stop-on-short-page") {
		flags["stop-on-short-page"] = stopOnShortPage
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}
	if selfCheckRun {
		flags["self-check-run"] = true
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()

	h, err := harvester.New(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, runErr := h.Run(ctx)

	sets, bytes := h.Tracker().Snapshot()
	log.InfoWithFields("harvest finished", map[string]interface{}{
		"status":     result.Status.String(),
		"pages":      result.PagesVisited,
		"records":    result.RecordsProcessed,
		"image_sets": sets,
		"bytes":      bytes,
		"elapsed":    h.Tracker().Elapsed(),
	})
	fmt.Println(result.Summary())

	if runErr != nil {
		// The summary already went to the operator; keep the exit status
		// non-zero without repeating the error through cobra.
		cmd.SilenceUsage = true
		return runErr
	}
	return nil
}
