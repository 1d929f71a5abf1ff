package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/philipparndt/gocad/pkg/watcher"
)

var (
	watchArtifacts artifactFlags
	flagDebounce   time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch [file]",
	Short: "Re-convert a CAD file whenever it changes",
	Long: `Convert a file immediately and again after every change, writing the
selected artifacts each time. Useful next to a CAD tool that keeps
exporting the same path.`,
	Args: cobra.ExactArgs(1),
	Run:  runWatch,
}

func init() {
	watchArtifacts.register(watchCmd)
	watchCmd.Flags().DurationVar(&flagDebounce, "debounce", 500*time.Millisecond, "quiet period before re-converting")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) {
	path := args[0]
	watchArtifacts.normalize()

	convertOnce := func() {
		m, report, attempts, err := runPipeline(cmd.Context(), path)
		if err != nil {
			printFailure(os.Stderr, path, attempts, err)
			return
		}
		written, err := writeArtifacts(m, report, path, watchArtifacts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			return
		}
		fmt.Printf("%s: %d vertices, %d faces -> %d artifacts\n",
			path, report.Vertices, report.Faces, len(written))
	}

	convertOnce()

	w, err := watcher.New(flagDebounce)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer w.Close()

	if err := w.Watch(path, func(string) { convertOnce() }); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	w.Start()

	fmt.Printf("Watching %s (Ctrl+C to stop)\n", path)
	<-cmd.Context().Done()
}
