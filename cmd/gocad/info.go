package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/philipparndt/gocad/pkg/analysis"
	"github.com/philipparndt/gocad/pkg/convert"
)

var (
	flagInfoJSON     bool
	flagInfoMaterial string
)

var infoCmd = &cobra.Command{
	Use:   "info [file]",
	Short: "Display geometric information about a CAD file",
	Long: `Convert a STEP or STL file and show its geometric report: counts,
topology, volume, surface area, bounds and suggested manufacturing
operations. With --material, mass and raw material cost are estimated.`,
	Args: cobra.ExactArgs(1),
	Run:  runInfo,
}

func init() {
	infoCmd.Flags().BoolVar(&flagInfoJSON, "json", false, "print the raw JSON report")
	infoCmd.Flags().StringVar(&flagInfoMaterial, "material", "", "estimate mass and cost for a material (e.g. Steel)")
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) {
	path := args[0]

	_, report, attempts, err := runPipeline(cmd.Context(), path)
	if err != nil {
		printFailure(os.Stderr, path, attempts, err)
		os.Exit(1)
	}

	if flagInfoJSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
		return
	}

	printReport(path, report, attempts)

	if flagInfoMaterial != "" {
		if err := printEstimate(report, flagInfoMaterial); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
}

func printReport(path string, r *analysis.Report, attempts []convert.Attempt) {
	fmt.Println("CAD Model Information")
	fmt.Println("=====================")
	fmt.Printf("File: %s\n", path)
	fmt.Printf("Converted by: %s\n\n", attempts[len(attempts)-1].Backend)

	fmt.Println("Topology:")
	fmt.Printf("  Vertices: %d\n", r.Vertices)
	fmt.Printf("  Edges: %d\n", r.Edges)
	fmt.Printf("  Faces: %d\n", r.Faces)
	fmt.Printf("  Euler characteristic: %d\n", r.Euler)
	fmt.Printf("  Watertight: %t\n\n", r.Watertight)

	fmt.Println("Geometry:")
	if r.Volume != nil {
		fmt.Printf("  Volume: %.6f mm³\n", *r.Volume)
	} else {
		fmt.Println("  Volume: undefined (mesh is not watertight)")
	}
	fmt.Printf("  Surface Area: %.6f mm²\n", r.SurfaceArea)
	if r.Convex != nil {
		fmt.Printf("  Convex: %t\n", *r.Convex)
	}
	if r.HullDeviation != nil {
		fmt.Printf("  Hull deviation: %.4f\n", *r.HullDeviation)
	}
	fmt.Println()

	fmt.Println("Bounding Box:")
	fmt.Printf("  Min: (%.4f, %.4f, %.4f)\n", r.BoundsMin[0], r.BoundsMin[1], r.BoundsMin[2])
	fmt.Printf("  Max: (%.4f, %.4f, %.4f)\n", r.BoundsMax[0], r.BoundsMax[1], r.BoundsMax[2])
	fmt.Printf("  Dimensions: %.4f × %.4f × %.4f mm\n",
		r.Dimensions[0], r.Dimensions[1], r.Dimensions[2])
	fmt.Printf("  Centroid: (%.4f, %.4f, %.4f)\n\n", r.Centroid[0], r.Centroid[1], r.Centroid[2])

	fmt.Println("Suggested Operations:")
	for _, op := range analysis.DetectOperations(r) {
		fmt.Printf("  %s: %s\n", op.Kind, op.Detail)
	}
}

func printEstimate(r *analysis.Report, name string) error {
	materials, err := cfg.materials()
	if err != nil {
		return err
	}
	material, ok := analysis.FindMaterial(materials, name)
	if !ok {
		return fmt.Errorf("unknown material %q", name)
	}

	mass, err := material.EstimateMass(r)
	if err != nil {
		return fmt.Errorf("cannot estimate for %s: %w", material.Name, err)
	}
	cost, err := material.EstimateCost(r)
	if err != nil {
		return err
	}

	fmt.Printf("\nMaterial Estimate (%s):\n", material.Name)
	fmt.Printf("  Mass: %.3f kg\n", mass)
	fmt.Printf("  Raw material cost: %.2f\n", cost)
	return nil
}
