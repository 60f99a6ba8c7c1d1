package tree

import (
	"math"
	"math/rand"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistances(t *testing.T) {
	assert.Equal(t, float32(1), CovDist(0))
	assert.Equal(t, float32(8), CovDist(3))
	assert.Equal(t, float32(0.25), CovDist(-2))
	assert.Equal(t, float32(0.5), SepDist(0))
	assert.Equal(t, float32(4), SepDist(3))
	assert.Equal(t, CovDist(4), DescendantBound(3))

	d := EuclideanDistance(NewPoint(0, 0), NewPoint(3, 4))
	assert.InDelta(t, 5, d, 1e-6)
	assert.Equal(t, d, EuclideanDistance(NewPoint(3, 4), NewPoint(0, 0)))
}

func TestNew(t *testing.T) {
	tree, err := New(NewPoint(1, 2, 3), 5)
	require.NoError(t, err)
	assert.Equal(t, 1, tree.Len())
	assert.Equal(t, 3, tree.Dim())
	assert.Equal(t, Position{Level: 5, Index: 0}, tree.Root())
	assert.Equal(t, tree.Root(), tree.Bottom())
	assert.Equal(t, 1, tree.Height())
	require.NoError(t, tree.Validate())

	node, ok := tree.Node(tree.Root())
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2, 3}, node.Point().Vector)
	_, hasParent := node.Parent()
	assert.False(t, hasParent)
	assert.Empty(t, node.Children())

	_, err = New(NewPoint(), 0)
	assert.ErrorIs(t, err, ErrInvalidPoint)
	_, err = New(nil, 0)
	assert.ErrorIs(t, err, ErrInvalidPoint)
}

func TestTree_Insert_Scenario(t *testing.T) {
	tree, err := New(NewPoint(0, 0, 0), 1)
	require.NoError(t, err)
	for _, p := range []*Point{NewPoint(2, 2, 2), NewPoint(1, 1, 1), NewPoint(0.5, 0.5, 0.5)} {
		require.NoError(t, tree.Insert(p))
		root, _ := tree.Node(tree.Root())
		assert.LessOrEqual(t, EuclideanDistance(p, root.Point()), CovDist(tree.Root().Level))
	}
	assert.Equal(t, 4, tree.Len())
	assert.Equal(t, int32(2), tree.Root().Level)
	assert.Equal(t, int32(0), tree.Bottom().Level)
	assert.Equal(t, []int32{2, 1, 0}, tree.Levels())
	assert.Equal(t, 3, tree.Height())
	require.NoError(t, tree.Validate())

	// [1,1,1] descends into [2,2,2]; [0.5,0.5,0.5] stays directly under the root.
	bottom, ok := tree.Node(tree.Bottom())
	require.True(t, ok)
	assert.Equal(t, []float32{1, 1, 1}, bottom.Point().Vector)
	parentIndex, ok := bottom.Parent()
	require.True(t, ok)
	parent, ok := tree.Node(Position{Level: 1, Index: parentIndex})
	require.True(t, ok)
	assert.Equal(t, []float32{2, 2, 2}, parent.Point().Vector)

	for _, level := range tree.Levels() {
		assert.NotEmpty(t, tree.levels[level].nodes)
	}
}

func TestTree_Insert_Random(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, descent := range []Descent{DescentFirst, DescentNearest} {
		points := randomPoints(rng, 500, 4, 100)
		tree, err := New(points[0], 0, WithDescent(descent))
		require.NoError(t, err)
		for i, p := range points[1:] {
			require.NoError(t, tree.Insert(p))
			assert.Equal(t, i+2, tree.Len())
			assert.LessOrEqual(t, tree.Distance(p), CovDist(tree.Root().Level))
		}
		require.NoError(t, tree.Validate())
		assert.Equal(t, vectors(points), vectors(tree.Points()))
	}
}

func TestTree_Insert_Duplicates(t *testing.T) {
	tree, err := New(NewPoint(1, 1), 0)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.NoError(t, tree.Insert(NewPoint(1, 1)))
	}
	assert.Equal(t, 11, tree.Len())
	require.NoError(t, tree.Validate())
	assert.Len(t, tree.Points(), 11)
}

func TestTree_Insert_Errors(t *testing.T) {
	tree, err := New(NewPoint(0, 0), 0)
	require.NoError(t, err)
	assert.ErrorIs(t, tree.Insert(NewPoint(1, 2, 3)), ErrDimension)
	assert.ErrorIs(t, tree.Insert(NewPoint(float32(math.NaN()), 0)), ErrInvalidPoint)
	assert.ErrorIs(t, tree.Insert(NewPoint(float32(math.Inf(1)), 0)), ErrInvalidPoint)
	assert.Equal(t, 1, tree.Len())
}

func TestTree_Insert_ZeroValue(t *testing.T) {
	var tree Tree
	_, _, ok := tree.NearestNeighbor(NewPoint(1))
	assert.False(t, ok)
	require.NoError(t, tree.Insert(NewPoint(1)))
	require.NoError(t, tree.Insert(NewPoint(10)))
	assert.Equal(t, 2, tree.Len())
	require.NoError(t, tree.Validate())
}

func TestTree_MoveLeafToRoot(t *testing.T) {
	t.Run("single node", func(t *testing.T) {
		tree, err := New(NewPoint(3, 3), -1)
		require.NoError(t, err)
		require.NoError(t, tree.MoveLeafToRoot())
		assert.Equal(t, Position{Level: 0}, tree.Root())
		assert.Equal(t, tree.Root(), tree.Bottom())
		assert.Equal(t, []int32{0}, tree.Levels())
		require.NoError(t, tree.Validate())
	})

	t.Run("many nodes", func(t *testing.T) {
		rng := rand.New(rand.NewSource(11))
		points := randomPoints(rng, 200, 3, 10)
		tree := buildTree(t, points, 0)
		for i := 0; i < 5; i++ {
			rootLevel := tree.Root().Level
			oldRoot := tree.Root()
			require.NoError(t, tree.MoveLeafToRoot())
			assert.Equal(t, rootLevel+1, tree.Root().Level)
			assert.Equal(t, 200, tree.Len())
			root, _ := tree.Node(tree.Root())
			assert.Equal(t, []int32{oldRoot.Index}, root.Children())
			require.NoError(t, tree.Validate())
		}
		assert.Equal(t, vectors(points), vectors(tree.Points()))
	})

	t.Run("drains levels", func(t *testing.T) {
		tree := buildTree(t, []*Point{NewPoint(0), NewPoint(0.75)}, 0)
		require.Equal(t, []int32{0, -1}, tree.Levels())
		require.NoError(t, tree.MoveLeafToRoot())
		assert.Equal(t, []int32{1, 0}, tree.Levels())
		root, _ := tree.Node(tree.Root())
		assert.Equal(t, []float32{0.75}, root.Point().Vector)
		assert.Equal(t, Position{Level: 0}, tree.Bottom())
		require.NoError(t, tree.Validate())
	})
}

func TestTree_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")
	tree, err := New(NewPoint(0), 0, WithMetrics(metrics))
	require.NoError(t, err)
	require.NoError(t, tree.Insert(NewPoint(0.5)))
	require.NoError(t, tree.Insert(NewPoint(5)))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.Inserts))
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.Promotions))
}

func TestTree_Validate_DetectsCorruption(t *testing.T) {
	tree := buildTree(t, []*Point{NewPoint(0), NewPoint(0.5), NewPoint(0.9)}, 0)
	require.NoError(t, tree.Validate())
	root, _ := tree.Node(tree.Root())
	root.children = append(root.children, 42)
	assert.ErrorIs(t, tree.Validate(), ErrInconsistent)
}
