package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/reubengazer/GBS-GALEX-analysis/internal/catalog"
	"github.com/reubengazer/GBS-GALEX-analysis/internal/config"
	"github.com/reubengazer/GBS-GALEX-analysis/internal/sky"
)

// Exit statuses reported by main.
const (
	exitOK    = 0
	exitError = 1
	exitInput = 2 // bad catalog schema, malformed values or tolerance
)

var (
	cfg        *config.Config
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "gbs",
	Short: "Galactic Bulge Survey catalog cleaning and counterpart matching",
	Long:  "Cleans GALEX NUV and Chandra X-ray catalogs of the Galactic Bulge Survey, collapses near-duplicate detections, and matches X-ray sources to UV counterparts.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.LoadFile(configPath)
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		if logLevel != "" {
			c.Log.Level = logLevel
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&configPath, "config", "", "config file (default ./config.yaml if present)")
	f.StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
}

// execute runs cmd and reports a failure on stderr, returning the exit status.
func execute(cmd *cobra.Command, stderr io.Writer) int {
	err := cmd.Execute()
	if err == nil {
		return exitOK
	}
	fmt.Fprintf(stderr, "%s: %v\n", cmd.Name(), err)
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, catalog.ErrSchema),
		errors.Is(err, catalog.ErrMalformedInput),
		errors.Is(err, sky.ErrInvalidTolerance):
		return exitInput
	default:
		return exitError
	}
}

func main() {
	os.Exit(execute(rootCmd, os.Stderr))
}
