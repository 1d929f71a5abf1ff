// Package obj writes meshes as Wavefront OBJ, the text interchange format.
package obj

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/philipparndt/gocad/pkg/mesh"
)

// Options tune the OBJ output.
type Options struct {
	// Name becomes the object name (the "o" line). Empty omits it.
	Name string

	// Normals adds per-vertex "vn" lines and references them from faces.
	Normals bool
}

// Write encodes the mesh as OBJ text: one "v" line per vertex and one
// 1-indexed "f" line per triangle.
func Write(w io.Writer, m *mesh.Mesh, opts Options) error {
	bw := bufio.NewWriter(w)

	if opts.Name != "" {
		fmt.Fprintf(bw, "o %s\n", opts.Name)
	}
	for _, v := range m.Vertices {
		fmt.Fprintf(bw, "v %g %g %g\n", v.X, v.Y, v.Z)
	}
	if opts.Normals {
		for _, n := range m.VertexNormals() {
			fmt.Fprintf(bw, "vn %g %g %g\n", n.X, n.Y, n.Z)
		}
		for _, face := range m.Faces {
			fmt.Fprintf(bw, "f %d//%d %d//%d %d//%d\n",
				face[0]+1, face[0]+1, face[1]+1, face[1]+1, face[2]+1, face[2]+1)
		}
	} else {
		for _, face := range m.Faces {
			fmt.Fprintf(bw, "f %d %d %d\n", face[0]+1, face[1]+1, face[2]+1)
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write OBJ: %w", err)
	}
	return nil
}

// WriteFile encodes the mesh as OBJ into a new file.
func WriteFile(filename string, m *mesh.Mesh, opts Options) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := Write(file, m, opts); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
