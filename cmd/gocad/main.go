package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/philipparndt/gocad/internal/logging"
	"github.com/philipparndt/gocad/version"
)

var (
	flagLogLevel  string
	flagLogFormat string
	flagConfig    string

	cfg *config
)

var rootCmd = &cobra.Command{
	Use:   "gocad",
	Short: "A command-line tool for converting and analyzing CAD models",
	Long: `gocad converts STEP and STL models into viewer-ready meshes and reports
their geometric properties: volume, surface area, topology and bounds.
STEP files carrying polygonal data are read in-process; everything else
falls back to an installed FreeCAD.`,
	Version: version.GetFullVersion(),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logging.ParseLevel(flagLogLevel)
		if err != nil {
			return err
		}
		logging.Init(level, flagLogFormat)

		cfg, err = loadConfig(flagConfig)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to a gocad.yaml configuration file")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
