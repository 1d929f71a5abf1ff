package analysis

import (
	"strings"
	"testing"
)

func floatPtr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool        { return &v }

func kinds(ops []Operation) []string {
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = op.Kind
	}
	return out
}

func hasKind(ops []Operation, kind string) bool {
	for _, op := range ops {
		if op.Kind == kind {
			return true
		}
	}
	return false
}

func findKind(t *testing.T, ops []Operation, kind string) Operation {
	t.Helper()
	for _, op := range ops {
		if op.Kind == kind {
			return op
		}
	}
	t.Fatalf("operation %q missing in %v", kind, kinds(ops))
	return Operation{}
}

func TestDetectOperationsConvexPart(t *testing.T) {
	// A watertight cube: no holes, nothing to mill, footprint square
	// enough for the lathe.
	r := &Report{
		Faces: 12, Euler: 2, Watertight: true,
		Volume:            floatPtr(1000),
		BoundingBoxVolume: 1000,
		Dimensions:        [3]float64{10, 10, 10},
		Convex:            boolPtr(true),
	}

	ops := DetectOperations(r)
	if !hasKind(ops, "stock") || !hasKind(ops, "turning") {
		t.Errorf("operations failed: %v", kinds(ops))
	}
	if hasKind(ops, "drilling") || hasKind(ops, "milling") || hasKind(ops, "casting") {
		t.Errorf("unexpected operations: %v", kinds(ops))
	}

	stock := findKind(t, ops, "stock")
	if stock.Detail != "1.0 × 1.0 × 1.0 cm" {
		t.Errorf("stock detail failed: %q", stock.Detail)
	}
}

func TestDetectOperationsDrilling(t *testing.T) {
	// Euler 0 on a watertight surface means genus 1: one through-hole.
	r := &Report{
		Faces: 400, Euler: 0, Watertight: true,
		Volume:            floatPtr(500),
		BoundingBoxVolume: 1000,
		Dimensions:        [3]float64{20, 20, 10},
		Convex:            boolPtr(false),
	}

	ops := DetectOperations(r)
	drilling := findKind(t, ops, "drilling")
	if !strings.HasPrefix(drilling.Detail, "Ø") {
		t.Errorf("drilling detail failed: %q", drilling.Detail)
	}

	r.Euler = -2 // genus 2
	ops = DetectOperations(r)
	drilling = findKind(t, ops, "drilling")
	if !strings.HasPrefix(drilling.Detail, "2 holes") {
		t.Errorf("drilling detail failed: %q", drilling.Detail)
	}
}

func TestDetectOperationsMilling(t *testing.T) {
	r := &Report{
		Faces: 100, Euler: 2, Watertight: true,
		Volume:            floatPtr(600),
		BoundingBoxVolume: 1000,
		Dimensions:        [3]float64{10, 10, 10},
		Convex:            boolPtr(false),
	}

	ops := DetectOperations(r)
	milling := findKind(t, ops, "milling")
	if milling.Detail != "40.0% material removal" {
		t.Errorf("milling detail failed: %q", milling.Detail)
	}
}

func TestDetectOperationsSurfaceWork(t *testing.T) {
	r := &Report{
		Faces: 25000, Euler: 2, Watertight: true,
		Volume:            floatPtr(600),
		BoundingBoxVolume: 1000,
		SurfaceArea:       12345,
		Dimensions:        [3]float64{10, 10, 10},
		Convex:            boolPtr(false),
	}

	ops := DetectOperations(r)
	finishing := findKind(t, ops, "finishing")
	if finishing.Detail != "123.5 cm² area" {
		t.Errorf("finishing detail failed: %q", finishing.Detail)
	}
	if !hasKind(ops, "grinding") {
		t.Errorf("grinding missing: %v", kinds(ops))
	}
}

func TestDetectOperationsCastingFallback(t *testing.T) {
	// Open shell: volume undefined, convexity unknown. Nothing machinable
	// is detected, so the part falls back to casting.
	r := &Report{
		Faces: 10, Euler: 1, Watertight: false,
		BoundingBoxVolume: 1000,
		Dimensions:        [3]float64{10, 10, 10},
	}

	ops := DetectOperations(r)
	if !hasKind(ops, "casting") {
		t.Errorf("casting missing: %v", kinds(ops))
	}
	if hasKind(ops, "milling") || hasKind(ops, "turning") || hasKind(ops, "drilling") {
		t.Errorf("unexpected operations: %v", kinds(ops))
	}
}

func TestDetectOperationsElongatedPartSkipsTurning(t *testing.T) {
	r := &Report{
		Faces: 12, Euler: 2, Watertight: true,
		Volume:            floatPtr(8000),
		BoundingBoxVolume: 8000,
		Dimensions:        [3]float64{100, 10, 10},
		Convex:            boolPtr(true),
	}

	if ops := DetectOperations(r); hasKind(ops, "turning") {
		t.Errorf("turning must be skipped for an elongated footprint: %v", kinds(ops))
	}
}
