package analysis

import (
	"fmt"
	"math"
)

// Face-count thresholds above which surface work is suggested.
const (
	finishingFaceCount = 5000
	grindingFaceCount  = 20000
)

// holeDiameterRatio estimates a hole diameter from the smallest part
// dimension when the topology implies through-holes.
const holeDiameterRatio = 0.1

// turningAspectRatio is the allowed footprint asymmetry for a part to still
// be considered lathe work.
const turningAspectRatio = 0.3

// Operation is one suggested manufacturing step with a human-readable
// dimension string. Dimensions are in cm; the mesh's native unit is treated
// as mm.
type Operation struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// DetectOperations derives manufacturing-operation suggestions from a
// report. The heuristics are deliberately coarse: topology implies
// drilling, hull deviation implies milling, face count implies surface
// work, and a convex near-round footprint implies turning. A part that
// needs none of those falls back to casting.
func DetectOperations(r *Report) []Operation {
	length := r.Dimensions[0] / 10
	width := r.Dimensions[1] / 10
	height := r.Dimensions[2] / 10

	var ops []Operation
	machining := 0

	// Through-holes show up as genus: each handle in a watertight surface
	// is a hole through the part.
	if genus := r.Genus(); r.Watertight && genus > 0 {
		diameter := math.Min(length, math.Min(width, height)) * holeDiameterRatio
		detail := fmt.Sprintf("Ø%.1f cm", diameter)
		if genus > 1 {
			detail = fmt.Sprintf("%d holes, Ø%.1f cm", genus, diameter)
		}
		ops = append(ops, Operation{Kind: "drilling", Detail: detail})
		machining++
	}

	// Non-convex watertight parts need material removed from stock.
	if r.Convex != nil && !*r.Convex && r.Watertight && r.Volume != nil && r.BoundingBoxVolume > 0 {
		removal := (r.BoundingBoxVolume - *r.Volume) / r.BoundingBoxVolume * 100
		ops = append(ops, Operation{
			Kind:   "milling",
			Detail: fmt.Sprintf("%.1f%% material removal", removal),
		})
		machining++
	}

	ops = append(ops, Operation{
		Kind:   "stock",
		Detail: fmt.Sprintf("%.1f × %.1f × %.1f cm", length, width, height),
	})

	if r.Faces > finishingFaceCount {
		ops = append(ops, Operation{
			Kind:   "finishing",
			Detail: fmt.Sprintf("%.1f cm² area", r.SurfaceArea/100),
		})
		machining++
	}
	if r.Faces > grindingFaceCount {
		ops = append(ops, Operation{Kind: "grinding", Detail: "fine surface (Ra < 0.8 μm)"})
		machining++
	}

	// Convex genus-0 parts with a near-square footprint read as lathe work.
	if r.Convex != nil && *r.Convex && r.Genus() == 0 {
		maxDim := math.Max(length, math.Max(width, height))
		if math.Abs(length-width) < maxDim*turningAspectRatio {
			ops = append(ops, Operation{
				Kind:   "turning",
				Detail: fmt.Sprintf("Ø%.1f cm × %.1f cm", math.Max(length, width), height),
			})
			machining++
		}
	}

	if machining == 0 {
		ops = append(ops, Operation{
			Kind:   "casting",
			Detail: fmt.Sprintf("%.1f × %.1f × %.1f cm", length, width, height),
		})
	}

	return ops
}
