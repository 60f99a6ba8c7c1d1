package tree

import (
	"math/rand"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTree_Merge_Scenario(t *testing.T) {
	a := buildTree(t, []*Point{NewPoint(0, 0, 0), NewPoint(1, 1, 1)}, 0)
	b := buildTree(t, []*Point{NewPoint(4, 4, 4), NewPoint(5, 5, 5)}, 2)
	require.NotEqual(t, a.Root().Level, b.Root().Level)

	stats, err := a.Merge(b)
	require.NoError(t, err)
	assert.Equal(t, 4, a.Len())
	assert.Equal(t, 0, b.Len())
	require.NoError(t, a.Validate())
	assert.Equal(t, 2, stats.Grafted+stats.Descended+stats.Reinserted)

	expected := []*Point{NewPoint(0, 0, 0), NewPoint(1, 1, 1), NewPoint(4, 4, 4), NewPoint(5, 5, 5)}
	assert.Equal(t, vectors(expected), vectors(a.Points()))
	for _, p := range expected {
		_, d, ok := a.NearestNeighbor(p)
		require.True(t, ok)
		assert.Zero(t, d)
	}
}

func TestTree_Merge_Random(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	testCases := []struct {
		description string
		sizeA       int
		sizeB       int
		levelA      int32
		levelB      int32
		scaleB      float32
	}{
		{description: "same level overlapping", sizeA: 100, sizeB: 100, scaleB: 10},
		{description: "taller argument", sizeA: 50, sizeB: 150, levelA: -3, levelB: 4, scaleB: 10},
		{description: "taller receiver", sizeA: 150, sizeB: 50, levelA: 5, levelB: -2, scaleB: 10},
		{description: "distant clusters", sizeA: 80, sizeB: 80, scaleB: 1000},
		{description: "single point argument", sizeA: 60, sizeB: 1, levelB: 8, scaleB: 10},
		{description: "single point receiver", sizeA: 1, sizeB: 60, levelA: -8, scaleB: 10},
	}
	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			pointsA := randomPoints(rng, tc.sizeA, 3, 10)
			pointsB := randomPoints(rng, tc.sizeB, 3, tc.scaleB)
			a := buildTree(t, pointsA, tc.levelA)
			b := buildTree(t, pointsB, tc.levelB)

			stats, err := a.Merge(b)
			require.NoError(t, err)
			require.NoError(t, a.Validate())
			assert.Equal(t, tc.sizeA+tc.sizeB, a.Len())
			assert.Equal(t, 0, b.Len())
			absorbed := stats.Grafted + stats.Descended + stats.Reinserted
			assert.True(t, absorbed == tc.sizeA || absorbed == tc.sizeB, "absorbed %d", absorbed)
			assert.Equal(t, vectors(append(pointsA, pointsB...)), vectors(a.Points()))
		})
	}
}

func TestTree_Merge_Associative(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	pa := randomPoints(rng, 40, 2, 5)
	pb := randomPoints(rng, 40, 2, 50)
	pc := randomPoints(rng, 40, 2, 500)

	left := buildTree(t, pa, 0)
	_, err := left.Merge(buildTree(t, pb, 1))
	require.NoError(t, err)
	_, err = left.Merge(buildTree(t, pc, 2))
	require.NoError(t, err)

	right := buildTree(t, pb, 1)
	_, err = right.Merge(buildTree(t, pc, 2))
	require.NoError(t, err)
	a := buildTree(t, pa, 0)
	_, err = a.Merge(right)
	require.NoError(t, err)

	require.NoError(t, left.Validate())
	require.NoError(t, a.Validate())
	assert.Equal(t, vectors(left.Points()), vectors(a.Points()))
}

func TestTree_Merge_EdgeCases(t *testing.T) {
	t.Run("self", func(t *testing.T) {
		tree := buildTree(t, []*Point{NewPoint(1)}, 0)
		_, err := tree.Merge(tree)
		assert.ErrorIs(t, err, ErrSelfMerge)
	})

	t.Run("dimension", func(t *testing.T) {
		a := buildTree(t, []*Point{NewPoint(1)}, 0)
		b := buildTree(t, []*Point{NewPoint(1, 2)}, 0)
		_, err := a.Merge(b)
		assert.ErrorIs(t, err, ErrDimension)
		assert.Equal(t, 1, a.Len())
		assert.Equal(t, 1, b.Len())
	})

	t.Run("empty argument", func(t *testing.T) {
		a := buildTree(t, []*Point{NewPoint(1), NewPoint(2)}, 0)
		_, err := a.Merge(&Tree{})
		require.NoError(t, err)
		_, err = a.Merge(nil)
		require.NoError(t, err)
		assert.Equal(t, 2, a.Len())
	})

	t.Run("empty receiver", func(t *testing.T) {
		var a Tree
		b := buildTree(t, []*Point{NewPoint(1), NewPoint(2), NewPoint(3)}, 0)
		_, err := a.Merge(b)
		require.NoError(t, err)
		assert.Equal(t, 3, a.Len())
		assert.Equal(t, 0, b.Len())
		require.NoError(t, a.Validate())
		require.NoError(t, b.Validate())
		require.NoError(t, b.Insert(NewPoint(7)))
		assert.Equal(t, 1, b.Len())
	})

	t.Run("duplicates", func(t *testing.T) {
		a := buildTree(t, []*Point{NewPoint(1, 1), NewPoint(1, 1)}, 0)
		b := buildTree(t, []*Point{NewPoint(1, 1), NewPoint(1, 1), NewPoint(1, 1)}, 0)
		_, err := a.Merge(b)
		require.NoError(t, err)
		assert.Equal(t, 5, a.Len())
		require.NoError(t, a.Validate())
	})
}

func TestTree_Merge_Metrics(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry(), "test")
	rng := rand.New(rand.NewSource(9))
	a := buildTree(t, randomPoints(rng, 30, 2, 10), 0, WithMetrics(metrics))
	b := buildTree(t, randomPoints(rng, 30, 2, 10), 0)
	stats, err := a.Merge(b)
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Merges))
	assert.Equal(t, float64(stats.Grafted), testutil.ToFloat64(metrics.Grafted))
	assert.Equal(t, float64(stats.Reinserted), testutil.ToFloat64(metrics.Reinserted))
}
