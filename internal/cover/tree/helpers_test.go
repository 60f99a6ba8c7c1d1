package tree

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func randomPoints(rng *rand.Rand, n, dim int, scale float32) []*Point {
	result := make([]*Point, n)
	for i := range result {
		vector := make([]float32, dim)
		for j := range vector {
			vector[j] = (rng.Float32()*2 - 1) * scale
		}
		result[i] = NewPoint(vector...)
	}
	return result
}

func buildTree(t *testing.T, points []*Point, level int32, opts ...Option) *Tree {
	t.Helper()
	tree, err := New(points[0], level, opts...)
	require.NoError(t, err)
	for _, p := range points[1:] {
		require.NoError(t, tree.Insert(p))
	}
	return tree
}

func vectors(points []*Point) [][]float32 {
	result := make([][]float32, len(points))
	for i, p := range points {
		result[i] = p.Vector
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		for k := range a {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return false
	})
	return result
}

func bruteNearest(points []*Point, query *Point) float32 {
	best := EuclideanDistance(query, points[0])
	for _, p := range points[1:] {
		if d := EuclideanDistance(query, p); d < best {
			best = d
		}
	}
	return best
}

func bruteKNearest(points []*Point, query *Point, k int) []float32 {
	dists := make([]float32, len(points))
	for i, p := range points {
		dists[i] = EuclideanDistance(query, p)
	}
	sort.Slice(dists, func(i, j int) bool { return dists[i] < dists[j] })
	if k > len(dists) {
		k = len(dists)
	}
	return dists[:k]
}
