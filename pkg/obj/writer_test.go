package obj

import (
	"bytes"
	"strings"
	"testing"

	"github.com/philipparndt/gocad/pkg/geometry"
	"github.com/philipparndt/gocad/pkg/mesh"
)

func triangleMesh() *mesh.Mesh {
	return &mesh.Mesh{
		Vertices: []geometry.Vector3{
			geometry.NewVector3(0, 0, 0),
			geometry.NewVector3(1, 0, 0),
			geometry.NewVector3(0, 1, 0),
		},
		Faces: [][3]int{{0, 1, 2}},
	}
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, triangleMesh(), Options{Name: "tri"}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	expected := "o tri\nv 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n"
	if buf.String() != expected {
		t.Errorf("output failed:\n%q\nexpected:\n%q", buf.String(), expected)
	}
}

func TestWriteWithNormals(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, triangleMesh(), Options{Normals: true}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	var v, vn, f int
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "vn "):
			vn++
		case strings.HasPrefix(line, "v "):
			v++
		case strings.HasPrefix(line, "f "):
			f++
		}
	}
	if v != 3 || vn != 3 || f != 1 {
		t.Errorf("line counts failed: v=%d vn=%d f=%d", v, vn, f)
	}

	// The triangle lies in the XY plane wound towards +Z.
	if !strings.Contains(buf.String(), "vn 0 0 1\n") {
		t.Errorf("normal line failed:\n%s", buf.String())
	}
	if lines[len(lines)-1] != "f 1//1 2//2 3//3" {
		t.Errorf("face line failed: %q", lines[len(lines)-1])
	}
}

func TestWriteIndicesAreOneBased(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, triangleMesh(), Options{}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if strings.Contains(buf.String(), "f 0") {
		t.Error("face indices must be 1-based")
	}
}
