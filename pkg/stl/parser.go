package stl

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/philipparndt/gocad/pkg/geometry"
)

// Parse decodes STL data and returns a Model. The format is detected
// automatically: ASCII files start with "solid" and actually contain facet
// statements, everything else is treated as the 50-byte-record binary
// layout. Some exporters write "solid" into a binary header, so the prefix
// alone is not trusted.
func Parse(data []byte) (*Model, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty input")
	}

	if looksASCII(data) {
		return parseASCII(bytes.NewReader(data))
	}
	return parseBinary(data)
}

// ParseFile reads and decodes an STL file.
func ParseFile(filename string) (*Model, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data)
}

func looksASCII(data []byte) bool {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	trimmed := bytes.TrimLeft(head, " \t\r\n")
	if !bytes.HasPrefix(trimmed, []byte("solid")) {
		return false
	}
	return bytes.Contains(head, []byte("facet")) || bytes.Contains(head, []byte("endsolid"))
}

// parseASCII parses an ASCII STL body
func parseASCII(reader io.Reader) (*Model, error) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	model := NewModel("")

	var currentNormal geometry.Vector3
	var vertices []geometry.Vector3
	closed := false

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		fields := strings.Fields(line)

		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "solid":
			if len(fields) > 1 {
				model.Name = strings.Join(fields[1:], " ")
			}

		case "facet":
			if len(fields) >= 5 && fields[1] == "normal" {
				x, _ := strconv.ParseFloat(fields[2], 64)
				y, _ := strconv.ParseFloat(fields[3], 64)
				z, _ := strconv.ParseFloat(fields[4], 64)
				currentNormal = geometry.NewVector3(x, y, z)
			}

		case "vertex":
			if len(fields) >= 4 {
				x, err1 := strconv.ParseFloat(fields[1], 64)
				y, err2 := strconv.ParseFloat(fields[2], 64)
				z, err3 := strconv.ParseFloat(fields[3], 64)
				if err1 != nil || err2 != nil || err3 != nil {
					return nil, fmt.Errorf("malformed vertex line %q", line)
				}
				vertices = append(vertices, geometry.NewVector3(x, y, z))
			}

		case "endfacet":
			if len(vertices) != 3 {
				return nil, fmt.Errorf("facet with %d vertices, expected 3", len(vertices))
			}
			model.AddTriangle(geometry.NewTriangle(
				currentNormal,
				vertices[0],
				vertices[1],
				vertices[2],
			))
			vertices = vertices[:0]

		case "endsolid":
			closed = true
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading ASCII STL: %w", err)
	}
	if !closed && model.TriangleCount() == 0 {
		return nil, fmt.Errorf("no facets and no endsolid, not an STL body")
	}

	return model, nil
}

// parseBinary parses a binary STL body
func parseBinary(data []byte) (*Model, error) {
	if len(data) < 84 {
		return nil, fmt.Errorf("binary STL too short: %d bytes", len(data))
	}

	model := NewModel("")

	// The 80-byte header often carries an exporter comment or a name.
	headerStr := string(bytes.TrimRight(data[:80], "\x00 "))
	if len(headerStr) > 0 {
		model.Name = headerStr
	}

	triangleCount := binary.LittleEndian.Uint32(data[80:84])
	expected := 84 + int64(triangleCount)*50
	if int64(len(data)) < expected {
		return nil, fmt.Errorf("binary STL truncated: header promises %d triangles (%d bytes), have %d", triangleCount, expected, len(data))
	}

	reader := bytes.NewReader(data[84:])
	for i := uint32(0); i < triangleCount; i++ {
		var record struct {
			Normal     [3]float32
			V1, V2, V3 [3]float32
			Attribute  uint16
		}
		if err := binary.Read(reader, binary.LittleEndian, &record); err != nil {
			return nil, fmt.Errorf("failed to read triangle %d: %w", i, err)
		}

		model.AddTriangle(geometry.NewTriangle(
			vec(record.Normal),
			vec(record.V1),
			vec(record.V2),
			vec(record.V3),
		))
	}

	return model, nil
}

func vec(v [3]float32) geometry.Vector3 {
	return geometry.NewVector3(float64(v[0]), float64(v[1]), float64(v[2]))
}
