package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/philipparndt/gocad/pkg/analysis"
	"github.com/philipparndt/gocad/pkg/convert"
	"github.com/philipparndt/gocad/pkg/gltf"
	"github.com/philipparndt/gocad/pkg/mesh"
	"github.com/philipparndt/gocad/pkg/obj"
	"github.com/philipparndt/gocad/pkg/stl"
)

// artifactFlags select which output files a conversion writes and where.
type artifactFlags struct {
	stl    bool
	obj    bool
	glb    bool
	report bool
	outDir string
}

func (f *artifactFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.stl, "stl", false, "write a binary STL")
	cmd.Flags().BoolVar(&f.obj, "obj", false, "write a Wavefront OBJ")
	cmd.Flags().BoolVar(&f.glb, "glb", false, "write a GLB (binary glTF)")
	cmd.Flags().BoolVar(&f.report, "report", false, "write the JSON report")
	cmd.Flags().StringVarP(&f.outDir, "out", "o", "", "output directory (default: next to the input)")
}

// normalize applies the default selection when no artifact flag is set:
// the viewer format plus the report.
func (f *artifactFlags) normalize() {
	if !f.stl && !f.obj && !f.glb && !f.report {
		f.glb = true
		f.report = true
	}
}

// runPipeline converts one file with the configured backend chain and
// analyzes the result.
func runPipeline(ctx context.Context, path string) (*mesh.Mesh, *analysis.Report, []convert.Attempt, error) {
	src, err := convert.SourceFromFile(path)
	if err != nil {
		return nil, nil, nil, err
	}

	opts, err := cfg.convertOptions()
	if err != nil {
		return nil, nil, nil, err
	}

	pipeline := convert.New(cfg.backends(), opts)
	m, attempts, err := pipeline.Convert(ctx, src)
	if err != nil {
		return nil, nil, attempts, err
	}

	report, err := analysis.Analyze(m)
	if err != nil {
		return nil, nil, attempts, err
	}
	return m, report, attempts, nil
}

// writeArtifacts renders the selected formats next to the input file (or
// into the chosen directory) and returns the written paths.
func writeArtifacts(m *mesh.Mesh, report *analysis.Report, input string, f artifactFlags) ([]string, error) {
	name := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	dir := f.outDir
	if dir == "" {
		dir = filepath.Dir(input)
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	base := filepath.Join(dir, name)

	var written []string
	if f.stl {
		path := base + ".stl"
		if err := stl.WriteFile(path, m, name); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	if f.obj {
		path := base + ".obj"
		if err := obj.WriteFile(path, m, obj.Options{Name: name}); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	if f.glb {
		path := base + ".glb"
		if err := gltf.WriteGLBFile(path, m, gltf.Options{Name: name}); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	if f.report {
		path := base + ".report.json"
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return written, err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return written, fmt.Errorf("failed to write report: %w", err)
		}
		written = append(written, path)
	}
	return written, nil
}

// printFailure explains a conversion failure, including the attempt log
// and remediation when every backend was exhausted.
func printFailure(w io.Writer, path string, attempts []convert.Attempt, err error) {
	var pipeErr *convert.PipelineError
	if !errors.As(err, &pipeErr) {
		fmt.Fprintf(w, "%s: %v\n", path, err)
		return
	}

	fmt.Fprintf(w, "%s: %v\n", path, convert.ErrNoBackend)
	if len(attempts) > 0 {
		fmt.Fprintln(w, "\nBackends tried:")
		for _, a := range attempts {
			if a.Err != "" {
				fmt.Fprintf(w, "  %-18s %s (%s)\n", a.Backend, a.Outcome, a.Err)
			} else {
				fmt.Fprintf(w, "  %-18s %s\n", a.Backend, a.Outcome)
			}
		}
	}
	fmt.Fprintf(w, "\n%s\n", pipeErr.Remediation)
}
