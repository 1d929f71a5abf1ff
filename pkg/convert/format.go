// Package convert runs CAD files through an ordered chain of conversion
// backends until one produces a usable triangle mesh.
package convert

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Format is the declared format of a source file, derived from its
// extension.
type Format string

const (
	FormatUnknown Format = ""
	FormatSTEP    Format = "step"
	FormatSTL     Format = "stl"
)

// FormatFromPath maps a filename extension to its format. Unknown
// extensions return FormatUnknown.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".step", ".stp":
		return FormatSTEP
	case ".stl":
		return FormatSTL
	}
	return FormatUnknown
}

// Source is an input file held in memory: immutable bytes plus the format
// its name declares.
type Source struct {
	Name   string
	Format Format
	Data   []byte
}

// SourceFromFile reads a file into a Source, deriving the format from its
// extension.
func SourceFromFile(path string) (Source, error) {
	format := FormatFromPath(path)
	if format == FormatUnknown {
		return Source{}, fmt.Errorf("unrecognized file extension %q, expected .step, .stp or .stl", filepath.Ext(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Source{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Source{Name: filepath.Base(path), Format: format, Data: data}, nil
}
