package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	convertArtifacts artifactFlags
	flagParallel     int
)

var convertCmd = &cobra.Command{
	Use:   "convert [files...]",
	Short: "Convert CAD files to viewer-ready mesh formats",
	Long: `Convert one or more STEP or STL files, writing the selected artifacts
next to each input (or into --out). Without artifact flags, a GLB and the
JSON report are written.`,
	Args: cobra.MinimumNArgs(1),
	Run:  runConvert,
}

func init() {
	convertArtifacts.register(convertCmd)
	convertCmd.Flags().IntVarP(&flagParallel, "parallel", "p", 2, "number of files converted concurrently")
	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) {
	convertArtifacts.normalize()
	if flagParallel < 1 {
		flagParallel = 1
	}

	var outputMu sync.Mutex
	failed := 0

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(flagParallel)
	for _, path := range args {
		g.Go(func() error {
			m, report, attempts, err := runPipeline(ctx, path)

			outputMu.Lock()
			defer outputMu.Unlock()
			if err != nil {
				printFailure(os.Stderr, path, attempts, err)
				failed++
				return nil
			}

			written, err := writeArtifacts(m, report, path, convertArtifacts)
			for _, p := range written {
				fmt.Printf("%s: wrote %s\n", path, p)
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
				failed++
				return nil
			}

			volume := "undefined"
			if report.Volume != nil {
				volume = fmt.Sprintf("%.6f", *report.Volume)
			}
			fmt.Printf("%s: %d vertices, %d faces, volume %s\n",
				path, report.Vertices, report.Faces, volume)
			return nil
		})
	}
	g.Wait()

	if failed > 0 {
		fmt.Fprintf(os.Stderr, "\n%d of %d files failed\n", failed, len(args))
		os.Exit(1)
	}
}
