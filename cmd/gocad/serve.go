package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/philipparndt/gocad/internal/server"
)

var (
	flagListen string
	flagJobTTL time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the model upload server",
	Long: `Serve the conversion pipeline over HTTP: POST a model to /api/models,
download the converted artifacts, and follow per-backend progress on the
/events websocket. Jobs are held in memory and expire after --ttl.`,
	Args: cobra.NoArgs,
	Run:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagListen, "listen", "", "listen address (default :8080)")
	serveCmd.Flags().DurationVar(&flagJobTTL, "ttl", 15*time.Minute, "how long finished jobs stay available")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	opts, err := cfg.convertOptions()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	addr := flagListen
	if addr == "" {
		addr = cfg.Listen
	}

	s := server.New(server.Config{
		Addr:     addr,
		JobTTL:   flagJobTTL,
		Backends: cfg.backends(),
		Options:  opts,
	})
	if err := s.Run(cmd.Context()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
