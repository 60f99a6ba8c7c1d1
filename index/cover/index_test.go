package cover

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/covertree/index"
	"github.com/viant/covertree/index/bruteforce"
)

var (
	_ index.Index = (*Index)(nil)
	_ index.Index = (*bruteforce.Index)(nil)
)

func dataset(rng *rand.Rand, n, dim int) ([]string, [][]float32) {
	ids := make([]string, n)
	vectors := make([][]float32, n)
	for i := range vectors {
		ids[i] = fmt.Sprintf("id-%d", i)
		vectors[i] = make([]float32, dim)
		for j := range vectors[i] {
			vectors[i][j] = rng.Float32()*200 - 100
		}
	}
	return ids, vectors
}

func TestIndex_Build_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	ids, vectors := dataset(rng, 2000, 6)
	baseline := &bruteforce.Index{}
	require.NoError(t, baseline.Build(ids, vectors))

	testCases := []struct {
		description string
		opts        []Option
	}{
		{description: "single shard", opts: []Option{WithBuildParallelism(1)}},
		{description: "many shards", opts: []Option{WithBuildParallelism(7)}},
		{description: "nearest descent", opts: []Option{WithBuildParallelism(4), WithDescent(DescentNearest)}},
		{description: "per node bound", opts: []Option{WithBuildParallelism(4), WithBoundStrategy(BoundPerNode)}},
		{description: "best first", opts: []Option{WithBuildParallelism(3), WithBestFirst(true), WithLevel(-4)}},
	}
	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			idx := New(tc.opts...)
			require.NoError(t, idx.Build(ids, vectors))
			require.NoError(t, idx.Validate())
			assert.Equal(t, len(ids), idx.Len())

			for q := 0; q < 30; q++ {
				query := vectors[rng.Intn(len(vectors))]
				if q%2 == 1 {
					_, qs := dataset(rng, 1, 6)
					query = qs[0]
				}
				_, want, err := baseline.Query(query, 10)
				require.NoError(t, err)
				gotIDs, got, err := idx.Query(query, 10)
				require.NoError(t, err)
				assert.Equal(t, want, got)
				require.Len(t, gotIDs, 10)

				id, d, ok := idx.Nearest(query)
				require.True(t, ok)
				assert.Equal(t, want[0], float64(d))
				assert.NotEmpty(t, id)
			}
		})
	}
}

func TestIndex_Build_Report(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	ids, vectors := dataset(rng, 500, 3)
	idx := New(WithBuildParallelism(4))
	require.NoError(t, idx.Build(ids, vectors))
	report := idx.LastBuild()
	assert.Equal(t, 500, report.Points)
	assert.Equal(t, 4, report.Shards)
	assert.Equal(t, 2, report.Rounds)
	absorbed := report.Merge.Grafted + report.Merge.Descended + report.Merge.Reinserted
	assert.Greater(t, absorbed, 0)
	assert.Less(t, absorbed, 500)

	stats := idx.Stats()
	assert.Equal(t, 500, stats.Size)
	assert.Equal(t, int(stats.RootLevel-stats.BottomLevel)+1, stats.Height)

	require.NoError(t, idx.Build(nil, nil))
	assert.Equal(t, 0, idx.Len())
	assert.Equal(t, Stats{}, idx.Stats())
	ids2, _, err := idx.Query([]float32{1, 2, 3}, 3)
	require.NoError(t, err)
	assert.Nil(t, ids2)
}

func TestIndex_Query_IDs(t *testing.T) {
	idx := New(WithBuildParallelism(2))
	require.NoError(t, idx.Build(
		[]string{"origin", "far", "near", "twin"},
		[][]float32{{0, 0}, {10, 10}, {1, 1}, {1, 1}},
	))
	ids, dists, err := idx.Query([]float32{0.1, 0.1}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"origin"}, ids[:1])
	assert.InDelta(t, 0.1414, dists[0], 1e-3)
	assert.Contains(t, []string{"near", "twin"}, ids[1])

	ids, _, err = idx.Query([]float32{9, 9}, 0)
	require.NoError(t, err)
	assert.Len(t, ids, 4)
	assert.Equal(t, "far", ids[0])

	_, _, err = idx.Query([]float32{1}, 1)
	assert.ErrorIs(t, err, ErrDimension)
	_, _, ok := idx.Nearest([]float32{1})
	assert.False(t, ok)
}

func TestIndex_Build_Errors(t *testing.T) {
	idx := New()
	assert.Error(t, idx.Build([]string{"a"}, nil))
	assert.ErrorIs(t, idx.Build([]string{"a", "b"}, [][]float32{{1}, {1, 2}}), ErrDimension)
	assert.ErrorIs(t, idx.Build([]string{"a"}, [][]float32{{}}), ErrInvalidPoint)
	assert.Equal(t, 0, idx.Len())
}

func TestIndex_InsertAndMerge(t *testing.T) {
	rng := rand.New(rand.NewSource(31))
	idsA, vectorsA := dataset(rng, 300, 4)
	idsB, vectorsB := dataset(rng, 200, 4)

	a := New(WithBuildParallelism(3))
	require.NoError(t, a.Build(idsA, vectorsA))
	b := New()
	for j := range idsB {
		require.NoError(t, b.Insert(idsB[j], vectorsB[j]))
	}
	require.NoError(t, b.Validate())

	_, err := a.Merge(a)
	assert.ErrorIs(t, err, ErrSelfMerge)

	_, err = a.Merge(b)
	require.NoError(t, err)
	assert.Equal(t, 500, a.Len())
	assert.Equal(t, 0, b.Len())
	require.NoError(t, a.Validate())
	for j := range idsB {
		id, d, ok := a.Nearest(vectorsB[j])
		require.True(t, ok)
		assert.Zero(t, d)
		assert.Equal(t, idsB[j], id)
	}

	empty := New()
	_, err = empty.Merge(a)
	require.NoError(t, err)
	assert.Equal(t, 500, empty.Len())
	require.NoError(t, empty.Validate())
}

func TestIndex_Merge_Dimension(t *testing.T) {
	a := New()
	require.NoError(t, a.Insert("a", []float32{1, 2}))
	b := New()
	require.NoError(t, b.Insert("b", []float32{1, 2, 3}))
	_, err := a.Merge(b)
	assert.ErrorIs(t, err, ErrDimension)
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 1, b.Len())
	require.NoError(t, b.Validate())
}

func TestIndex_Concurrent(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	ids, vectors := dataset(rng, 400, 3)
	idx := New()
	require.NoError(t, idx.Build(ids[:100], vectors[:100]))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for j := 100; j < len(ids); j++ {
			assert.NoError(t, idx.Insert(ids[j], vectors[j]))
		}
	}()
	go func() {
		defer wg.Done()
		for j := 0; j < 200; j++ {
			_, _, err := idx.Query(vectors[j%100], 5)
			assert.NoError(t, err)
		}
	}()
	wg.Wait()
	assert.Equal(t, 400, idx.Len())
	require.NoError(t, idx.Validate())
}

func TestIndex_Metrics(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry(), "test")
	rng := rand.New(rand.NewSource(6))
	ids, vectors := dataset(rng, 100, 2)
	idx := New(WithMetrics(metrics), WithBuildParallelism(2))
	require.NoError(t, idx.Build(ids, vectors))
	assert.Equal(t, float64(100), testutil.ToFloat64(metrics.Size))
	assert.Equal(t, float64(idx.Stats().Height), testutil.ToFloat64(metrics.Height))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Builds))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.tree.Merges))
	reinserted := idx.LastBuild().Merge.Reinserted
	assert.Equal(t, float64(98+reinserted), testutil.ToFloat64(metrics.tree.Inserts))
}
