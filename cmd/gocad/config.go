package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/philipparndt/gocad/pkg/analysis"
	"github.com/philipparndt/gocad/pkg/convert"
)

// config is the optional YAML configuration. Flags override nothing here;
// the file covers the knobs that have no flag, mainly tolerances and the
// kernel candidate list.
type config struct {
	// MergeEpsilon is the vertex merge tolerance. Zero derives it from the
	// model's bounding box.
	MergeEpsilon float64 `yaml:"merge_epsilon"`

	// DeflectionRatio controls external tessellation fineness as a
	// fraction of the bounding box diagonal.
	DeflectionRatio float64 `yaml:"deflection_ratio"`

	// Timeout bounds one external kernel run, e.g. "180s".
	Timeout string `yaml:"timeout"`

	// FreeCAD overrides the kernel executable candidates probed for.
	FreeCAD []string `yaml:"freecad_candidates"`

	// Materials points to a YAML file replacing the built-in material
	// table.
	Materials string `yaml:"materials"`

	// Listen is the default address for the serve command.
	Listen string `yaml:"listen"`
}

// loadConfig reads the given file, or gocad.yaml in the working directory
// when it exists, or returns an empty configuration.
func loadConfig(path string) (*config, error) {
	if path == "" {
		if _, err := os.Stat("gocad.yaml"); err != nil {
			return &config{}, nil
		}
		path = "gocad.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg := &config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

func (c *config) convertOptions() (convert.Options, error) {
	opts := convert.Options{
		MergeEpsilon:    c.MergeEpsilon,
		DeflectionRatio: c.DeflectionRatio,
	}
	if c.Timeout != "" {
		timeout, err := time.ParseDuration(c.Timeout)
		if err != nil {
			return opts, fmt.Errorf("invalid timeout %q: %w", c.Timeout, err)
		}
		opts.Timeout = timeout
	}
	return opts, nil
}

func (c *config) backends() []convert.Backend {
	if len(c.FreeCAD) > 0 {
		return convert.DefaultBackends(convert.DetectWith(c.FreeCAD))
	}
	return convert.DefaultBackends(convert.Detect())
}

func (c *config) materials() ([]analysis.Material, error) {
	if c.Materials != "" {
		return analysis.LoadMaterials(c.Materials)
	}
	return analysis.DefaultMaterials(), nil
}
