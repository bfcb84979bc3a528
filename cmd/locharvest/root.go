package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"locharvest/pkg/selfcheck"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile   string
	logLevel     string
	selfCheckRun bool
)

// rootCmd represents the base command when called without any subcommands.
// Running it bare harvests the default collection, so the tool stays usable
// as a single command.
var rootCmd = &cobra.Command{
	Use:   "locharvest [collection]",
	Short: "A polite, resumable harvester for Library of Congress collections",
	Long: `locharvest walks a Library of Congress collection page by page, saving
each record's metadata as JSON and downloading the highest-resolution copy
of every image it finds.

Runs are resumable by construction: the output directory is the only state,
and anything already current on disk is skipped. Re-running over a finished
collection is cheap and writes nothing.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHarvest(cmd, args)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is .locharvest.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	// Internal marker set on self-verification children; hidden from help.
	markerName := strings.TrimPrefix(selfcheck.MarkerFlag, "--")
	rootCmd.PersistentFlags().BoolVar(&selfCheckRun, markerName, false, "")
	rootCmd.PersistentFlags().MarkHidden(markerName)

	addHarvestFlags(rootCmd)

	rootCmd.SetVersionTemplate(`locharvest {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
