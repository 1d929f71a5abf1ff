package stl

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/philipparndt/gocad/pkg/geometry"
	"github.com/philipparndt/gocad/pkg/mesh"
)

// Write encodes the mesh as binary STL: an 80-byte header, the triangle
// count, then one 50-byte record per face. The name lands in the header,
// clipped to fit.
func Write(w io.Writer, m *mesh.Mesh, name string) error {
	bw := bufio.NewWriter(w)

	header := make([]byte, 80)
	copy(header, name)
	if _, err := bw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(m.Faces))); err != nil {
		return fmt.Errorf("failed to write triangle count: %w", err)
	}

	for i, face := range m.Faces {
		record := struct {
			Normal     [3]float32
			V1, V2, V3 [3]float32
			Attribute  uint16
		}{
			Normal: f32(m.FaceNormal(i)),
			V1:     f32(m.Vertices[face[0]]),
			V2:     f32(m.Vertices[face[1]]),
			V3:     f32(m.Vertices[face[2]]),
		}
		if err := binary.Write(bw, binary.LittleEndian, &record); err != nil {
			return fmt.Errorf("failed to write triangle %d: %w", i, err)
		}
	}

	return bw.Flush()
}

// WriteFile encodes the mesh as binary STL into a new file.
func WriteFile(filename string, m *mesh.Mesh, name string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := Write(file, m, name); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func f32(v geometry.Vector3) [3]float32 {
	return [3]float32{float32(v.X), float32(v.Y), float32(v.Z)}
}
