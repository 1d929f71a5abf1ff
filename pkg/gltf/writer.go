// Package gltf writes meshes as GLB, the binary glTF 2.0 container browsers
// render directly. One buffer, one mesh, one node: positions, normals,
// an optional baked vertex color and 32-bit indices.
package gltf

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/philipparndt/gocad/pkg/mesh"
)

// GLB framing constants from the glTF 2.0 specification.
const (
	glbMagic      = 0x46546C67 // "glTF"
	glbVersion    = 2
	chunkTypeJSON = 0x4E4F534A // "JSON"
	chunkTypeBIN  = 0x004E4942 // "BIN\0"
)

// glTF component and target codes.
const (
	componentUnsignedByte = 5121
	componentUnsignedInt  = 5125
	componentFloat        = 5126

	targetArrayBuffer        = 34962
	targetElementArrayBuffer = 34963
)

// DefaultColor is the light blue the viewer historically shaded models in.
var DefaultColor = [3]uint8{173, 216, 230}

// Options tune the GLB output.
type Options struct {
	// Name becomes the node name. Empty omits it.
	Name string

	// Color is baked into a COLOR_0 vertex attribute. Nil selects
	// DefaultColor; Uncolored drops the attribute entirely.
	Color     *[3]uint8
	Uncolored bool
}

type document struct {
	Asset       asset        `json:"asset"`
	Scene       int          `json:"scene"`
	Scenes      []scene      `json:"scenes"`
	Nodes       []node       `json:"nodes"`
	Meshes      []meshEntry  `json:"meshes"`
	Materials   []material   `json:"materials"`
	Accessors   []accessor   `json:"accessors"`
	BufferViews []bufferView `json:"bufferViews"`
	Buffers     []buffer     `json:"buffers"`
}

type asset struct {
	Version   string `json:"version"`
	Generator string `json:"generator,omitempty"`
}

type scene struct {
	Nodes []int `json:"nodes"`
}

type node struct {
	Name string `json:"name,omitempty"`
	Mesh int    `json:"mesh"`
}

type meshEntry struct {
	Primitives []primitive `json:"primitives"`
}

type primitive struct {
	Attributes map[string]int `json:"attributes"`
	Indices    int            `json:"indices"`
	Material   int            `json:"material"`
}

type material struct {
	Name        string `json:"name,omitempty"`
	DoubleSided bool   `json:"doubleSided"`
	PBR         pbr    `json:"pbrMetallicRoughness"`
}

type pbr struct {
	MetallicFactor  *float64 `json:"metallicFactor,omitempty"`
	RoughnessFactor *float64 `json:"roughnessFactor,omitempty"`
}

type accessor struct {
	BufferView    int       `json:"bufferView"`
	ComponentType int       `json:"componentType"`
	Normalized    bool      `json:"normalized,omitempty"`
	Count         int       `json:"count"`
	Type          string    `json:"type"`
	Min           []float64 `json:"min,omitempty"`
	Max           []float64 `json:"max,omitempty"`
}

type bufferView struct {
	Buffer     int `json:"buffer"`
	ByteOffset int `json:"byteOffset"`
	ByteLength int `json:"byteLength"`
	Target     int `json:"target,omitempty"`
}

type buffer struct {
	ByteLength int `json:"byteLength"`
}

// WriteGLB encodes the mesh as a GLB container: the 12-byte header, a
// space-padded JSON chunk and a zero-padded BIN chunk.
func WriteGLB(w io.Writer, m *mesh.Mesh, opts Options) error {
	bin, doc := encodePayload(m, opts)

	jsonChunk, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode glTF document: %w", err)
	}
	jsonChunk = pad(jsonChunk, ' ')
	binChunk := pad(bin, 0)

	total := 12 + 8 + len(jsonChunk) + 8 + len(binChunk)

	bw := bufio.NewWriter(w)
	header := []uint32{
		glbMagic, glbVersion, uint32(total),
		uint32(len(jsonChunk)), chunkTypeJSON,
	}
	if err := binary.Write(bw, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("failed to write GLB header: %w", err)
	}
	if _, err := bw.Write(jsonChunk); err != nil {
		return fmt.Errorf("failed to write JSON chunk: %w", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, []uint32{uint32(len(binChunk)), chunkTypeBIN}); err != nil {
		return fmt.Errorf("failed to write BIN chunk header: %w", err)
	}
	if _, err := bw.Write(binChunk); err != nil {
		return fmt.Errorf("failed to write BIN chunk: %w", err)
	}
	return bw.Flush()
}

// WriteGLBFile encodes the mesh as GLB into a new file.
func WriteGLBFile(filename string, m *mesh.Mesh, opts Options) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := WriteGLB(file, m, opts); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// encodePayload lays out the binary buffer and the matching document. All
// section offsets stay 4-aligned: 12 bytes per vertex for positions and
// normals, 4 for the color, 12 per face for indices.
func encodePayload(m *mesh.Mesh, opts Options) ([]byte, *document) {
	vertexCount := len(m.Vertices)
	indexCount := len(m.Faces) * 3
	withColor := !opts.Uncolored

	binSize := vertexCount*24 + indexCount*4
	if withColor {
		binSize += vertexCount * 4
	}
	bin := make([]byte, 0, binSize)

	min := [3]float64{math.Inf(1), math.Inf(1), math.Inf(1)}
	max := [3]float64{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	for _, v := range m.Vertices {
		// Accessor min/max must describe the stored float32 values.
		for i, c := range v.Array() {
			f := float64(float32(c))
			min[i] = math.Min(min[i], f)
			max[i] = math.Max(max[i], f)
			bin = binary.LittleEndian.AppendUint32(bin, math.Float32bits(float32(c)))
		}
	}

	for _, n := range m.VertexNormals() {
		for _, c := range n.Array() {
			bin = binary.LittleEndian.AppendUint32(bin, math.Float32bits(float32(c)))
		}
	}

	if withColor {
		color := DefaultColor
		if opts.Color != nil {
			color = *opts.Color
		}
		for i := 0; i < vertexCount; i++ {
			bin = append(bin, color[0], color[1], color[2], 0xFF)
		}
	}

	indexOffset := len(bin)
	for _, face := range m.Faces {
		for _, idx := range face {
			bin = binary.LittleEndian.AppendUint32(bin, uint32(idx))
		}
	}

	attributes := map[string]int{"POSITION": 0, "NORMAL": 1}
	metallic, roughness := 0.1, 0.8
	doc := &document{
		Asset:  asset{Version: "2.0", Generator: "gocad"},
		Scene:  0,
		Scenes: []scene{{Nodes: []int{0}}},
		Nodes:  []node{{Name: opts.Name, Mesh: 0}},
		Materials: []material{{
			DoubleSided: true,
			PBR:         pbr{MetallicFactor: &metallic, RoughnessFactor: &roughness},
		}},
		Accessors: []accessor{
			{
				BufferView: 0, ComponentType: componentFloat, Count: vertexCount,
				Type: "VEC3", Min: min[:], Max: max[:],
			},
			{BufferView: 1, ComponentType: componentFloat, Count: vertexCount, Type: "VEC3"},
		},
		BufferViews: []bufferView{
			{Buffer: 0, ByteOffset: 0, ByteLength: vertexCount * 12, Target: targetArrayBuffer},
			{Buffer: 0, ByteOffset: vertexCount * 12, ByteLength: vertexCount * 12, Target: targetArrayBuffer},
		},
		Buffers: []buffer{{ByteLength: len(bin)}},
	}

	if withColor {
		attributes["COLOR_0"] = len(doc.Accessors)
		doc.Accessors = append(doc.Accessors, accessor{
			BufferView: len(doc.BufferViews), ComponentType: componentUnsignedByte,
			Normalized: true, Count: vertexCount, Type: "VEC4",
		})
		doc.BufferViews = append(doc.BufferViews, bufferView{
			Buffer: 0, ByteOffset: vertexCount * 24, ByteLength: vertexCount * 4,
			Target: targetArrayBuffer,
		})
	}

	indices := len(doc.Accessors)
	doc.Accessors = append(doc.Accessors, accessor{
		BufferView: len(doc.BufferViews), ComponentType: componentUnsignedInt,
		Count: indexCount, Type: "SCALAR",
	})
	doc.BufferViews = append(doc.BufferViews, bufferView{
		Buffer: 0, ByteOffset: indexOffset, ByteLength: indexCount * 4,
		Target: targetElementArrayBuffer,
	})

	doc.Meshes = []meshEntry{{Primitives: []primitive{{
		Attributes: attributes,
		Indices:    indices,
		Material:   0,
	}}}}

	return bin, doc
}

// pad extends data to a multiple of four bytes with the given filler.
func pad(data []byte, filler byte) []byte {
	for len(data)%4 != 0 {
		data = append(data, filler)
	}
	return data
}
