package analysis

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNoVolume means a mass or cost estimate was requested for a mesh whose
// volume is undefined. Estimates refuse rather than assume zero.
var ErrNoVolume = errors.New("volume undefined: mesh is not watertight")

//go:embed materials.yaml
var defaultMaterialsYAML []byte

// Material describes one stock material for mass and cost estimation.
type Material struct {
	Name string `yaml:"name" json:"name"`

	// Density in g/cm³.
	Density float64 `yaml:"density" json:"density"`

	// CostPerKg is the raw stock price per kilogram.
	CostPerKg float64 `yaml:"cost_per_kg" json:"cost_per_kg"`
}

type materialsFile struct {
	Materials []Material `yaml:"materials"`
}

var defaultMaterials = mustParseMaterials(defaultMaterialsYAML)

// DefaultMaterials returns the built-in material table.
func DefaultMaterials() []Material {
	out := make([]Material, len(defaultMaterials))
	copy(out, defaultMaterials)
	return out
}

// LoadMaterials reads a user material table, replacing the built-in one.
func LoadMaterials(path string) ([]Material, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read materials file: %w", err)
	}
	materials, err := parseMaterials(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return materials, nil
}

// FindMaterial looks a material up by name, case-insensitively.
func FindMaterial(materials []Material, name string) (Material, bool) {
	for _, m := range materials {
		if strings.EqualFold(m.Name, name) {
			return m, true
		}
	}
	return Material{}, false
}

// EstimateMass returns the part mass in kg. The mesh's native unit is
// treated as mm, so the volume converts to cm³ before applying the density.
func (m Material) EstimateMass(r *Report) (float64, error) {
	if r.Volume == nil {
		return 0, ErrNoVolume
	}
	volumeCm3 := *r.Volume / 1000
	return volumeCm3 * m.Density / 1000, nil
}

// EstimateCost returns the raw material cost for the part.
func (m Material) EstimateCost(r *Report) (float64, error) {
	mass, err := m.EstimateMass(r)
	if err != nil {
		return 0, err
	}
	return mass * m.CostPerKg, nil
}

func parseMaterials(data []byte) ([]Material, error) {
	var file materialsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if len(file.Materials) == 0 {
		return nil, errors.New("no materials defined")
	}
	for _, m := range file.Materials {
		if m.Name == "" || m.Density <= 0 {
			return nil, fmt.Errorf("material %q needs a name and a positive density", m.Name)
		}
	}
	return file.Materials, nil
}

func mustParseMaterials(data []byte) []Material {
	materials, err := parseMaterials(data)
	if err != nil {
		panic("embedded materials table is broken: " + err.Error())
	}
	return materials
}
