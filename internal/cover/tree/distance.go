package tree

import (
	"math"

	"github.com/viant/vec/search"
)

// DistanceFunc computes the distance between two points. It must be a metric.
type DistanceFunc func(p1, p2 *Point) float32

// EuclideanDistance returns the Euclidean distance between two points.
func EuclideanDistance(p1, p2 *Point) float32 {
	return search.Float32s(p1.Vector).EuclideanDistance(p2.Vector)
}

// CovDist returns the covering distance of a level, 2^level.
func CovDist(level int32) float32 {
	return float32(math.Ldexp(1, int(level)))
}

// SepDist returns the separation distance of a level, 2^(level-1).
func SepDist(level int32) float32 {
	return float32(math.Ldexp(1, int(level)-1))
}

// DescendantBound bounds the distance between a node at level and any of its
// descendants: 2^level + 2^(level-1) + ... < 2^(level+1).
func DescendantBound(level int32) float32 {
	return CovDist(level + 1)
}
