package tree

// Point represents an immutable vector stored in the cover tree.
type Point struct {
	Vector []float32
}

// NewPoint constructs a point for the given vector.
func NewPoint(vector ...float32) *Point {
	return &Point{Vector: vector}
}

// Dim returns the point dimensionality.
func (p *Point) Dim() int {
	if p == nil {
		return 0
	}
	return len(p.Vector)
}
