package track

import "math"

// Rect is an axis-aligned bounding box in frame pixel coordinates.
type Rect struct {
	X1, Y1, X2, Y2 float64
}

func (r Rect) Width() float64  { return r.X2 - r.X1 }
func (r Rect) Height() float64 { return r.Y2 - r.Y1 }
func (r Rect) Area() float64   { return r.Width() * r.Height() }

// Center returns the box centre.
func (r Rect) Center() (float64, float64) {
	return (r.X1 + r.X2) / 2, (r.Y1 + r.Y2) / 2
}

// Valid reports whether the box has positive area and finite coordinates.
func (r Rect) Valid() bool {
	for _, v := range [4]float64{r.X1, r.Y1, r.X2, r.Y2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return r.X2 > r.X1 && r.Y2 > r.Y1
}

// IoU computes intersection-over-union of two boxes. A small epsilon keeps
// the division defined for degenerate inputs.
func IoU(a, b Rect) float64 {
	interW := math.Min(a.X2, b.X2) - math.Max(a.X1, b.X1)
	interH := math.Min(a.Y2, b.Y2) - math.Max(a.Y1, b.Y1)
	if interW <= 0 || interH <= 0 {
		return 0
	}
	inter := interW * interH
	return inter / (a.Area() + b.Area() - inter + 1e-6)
}
