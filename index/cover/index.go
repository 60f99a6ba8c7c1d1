package cover

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/viant/covertree/internal/cover/tree"
)

var (
	// ErrInconsistent reports a broken internal link; the index must be discarded.
	ErrInconsistent = tree.ErrInconsistent
	// ErrDimension reports a vector whose length differs from the index dimension.
	ErrDimension = tree.ErrDimension
	// ErrInvalidPoint reports an empty or non-finite vector.
	ErrInvalidPoint = tree.ErrInvalidPoint
	// ErrSelfMerge reports an attempt to merge an index into itself.
	ErrSelfMerge = tree.ErrSelfMerge
)

// MergeStats describes how a merged tree was absorbed.
type MergeStats = tree.MergeStats

// Stats summarises the index shape.
type Stats struct {
	Size        int
	Height      int
	RootLevel   int32
	BottomLevel int32
}

// BuildReport describes the most recent Build.
type BuildReport struct {
	Points   int
	Shards   int
	Rounds   int
	Duration time.Duration
	Merge    MergeStats
}

// Index is a cover tree index over (id, vector) pairs. It is safe for
// concurrent readers and a single writer at a time.
type Index struct {
	mu     sync.RWMutex
	tree   *tree.Tree
	ids    map[*tree.Point]string
	report BuildReport
	options
}

// New creates an empty index.
func New(opts ...Option) *Index {
	return &Index{options: newOptions(opts), ids: map[*tree.Point]string{}}
}

// Build replaces the index content with the given ids and vectors. Vectors
// are copied.
func (i *Index) Build(ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("cover: ids and vectors length mismatch: %d != %d", len(ids), len(vectors))
	}
	started := time.Now()
	points := make([]*tree.Point, len(vectors))
	table := make(map[*tree.Point]string, len(vectors))
	for j, v := range vectors {
		if len(v) != len(vectors[0]) {
			return fmt.Errorf("cover: vector %d has dim %d, want %d: %w", j, len(v), len(vectors[0]), ErrDimension)
		}
		p := tree.NewPoint(slices.Clone(v)...)
		points[j] = p
		table[p] = ids[j]
	}
	built, report, err := i.build(points)
	if err != nil {
		return fmt.Errorf("cover: build: %w", err)
	}
	if built != nil && i.bound == BoundPerNode {
		built.RefreshRadii()
	}
	report.Duration = time.Since(started)

	i.mu.Lock()
	i.tree, i.ids, i.report = built, table, report
	i.mu.Unlock()

	if m := i.metrics; m != nil {
		m.Builds.Inc()
		m.BuildDuration.Observe(report.Duration.Seconds())
		m.observeShape(built)
	}
	i.logger.Info().
		Int("points", report.Points).
		Int("shards", report.Shards).
		Int("rounds", report.Rounds).
		Int("grafted", report.Merge.Grafted).
		Int("reinserted", report.Merge.Reinserted).
		Dur("duration", report.Duration).
		Msg("cover index built")
	return nil
}

// Insert adds a single vector under id.
func (i *Index) Insert(id string, vector []float32) error {
	p := tree.NewPoint(slices.Clone(vector)...)
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.tree == nil || i.tree.Len() == 0 {
		t, err := tree.New(p, i.level, i.treeOptions()...)
		if err != nil {
			return fmt.Errorf("cover: %w", err)
		}
		i.tree = t
	} else if err := i.tree.Insert(p); err != nil {
		return fmt.Errorf("cover: insert %q: %w", id, err)
	}
	i.ids[p] = id
	i.metrics.observeShape(i.tree)
	return nil
}

// Merge moves the content of other into i, leaving other empty.
func (i *Index) Merge(other *Index) (MergeStats, error) {
	var stats MergeStats
	if other == i {
		return stats, ErrSelfMerge
	}
	if other == nil {
		return stats, nil
	}
	other.mu.Lock()
	otherTree, otherIDs := other.tree, other.ids
	other.tree, other.ids = nil, map[*tree.Point]string{}
	other.mu.Unlock()
	other.metrics.observeShape(nil)
	if otherTree == nil || otherTree.Len() == 0 {
		return stats, nil
	}

	stats, err := i.absorb(otherTree, otherIDs)
	if errors.Is(err, ErrDimension) {
		other.restore(otherTree, otherIDs)
	}
	return stats, err
}

func (i *Index) absorb(otherTree *tree.Tree, otherIDs map[*tree.Point]string) (MergeStats, error) {
	var stats MergeStats
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.tree == nil || i.tree.Len() == 0 {
		i.tree = tree.Adopt(otherTree, i.treeOptions()...)
	} else {
		if otherTree.Dim() != i.tree.Dim() {
			return stats, fmt.Errorf("cover: merging %d-d index into %d-d index: %w", otherTree.Dim(), i.tree.Dim(), ErrDimension)
		}
		var err error
		if stats, err = i.tree.Merge(otherTree); err != nil {
			return stats, fmt.Errorf("cover: %w", err)
		}
	}
	for p, id := range otherIDs {
		i.ids[p] = id
	}
	if i.bound == BoundPerNode {
		i.tree.RefreshRadii()
	}
	i.metrics.observeShape(i.tree)
	i.logger.Debug().
		Int("size", i.tree.Len()).
		Int("grafted", stats.Grafted).
		Int("descended", stats.Descended).
		Int("reinserted", stats.Reinserted).
		Msg("cover index merged")
	return stats, nil
}

func (i *Index) restore(t *tree.Tree, ids map[*tree.Point]string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.tree == nil || i.tree.Len() == 0 {
		i.tree, i.ids = t, ids
	}
	i.metrics.observeShape(i.tree)
}

// Query returns up to k ids with their Euclidean distances, nearest first.
// A non-positive k returns every entry.
func (i *Index) Query(query []float32, k int) ([]string, []float64, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.tree == nil || i.tree.Len() == 0 {
		return nil, nil, nil
	}
	if len(query) != i.tree.Dim() {
		return nil, nil, fmt.Errorf("cover: query dim %d != index dim %d: %w", len(query), i.tree.Dim(), ErrDimension)
	}
	if k <= 0 || k > i.tree.Len() {
		k = i.tree.Len()
	}
	point := tree.NewPoint(query...)
	var neighbors []*tree.Neighbor
	if i.bestFirst {
		neighbors = i.tree.KNearestNeighborsBestFirst(point, k)
	} else {
		neighbors = i.tree.KNearestNeighbors(point, k)
	}
	ids := make([]string, len(neighbors))
	dists := make([]float64, len(neighbors))
	for n, neighbor := range neighbors {
		ids[n] = i.ids[neighbor.Point]
		dists[n] = float64(neighbor.Distance)
	}
	return ids, dists, nil
}

// Nearest returns the id of the closest vector and its distance. It reports
// false for an empty index or a query of the wrong dimension.
func (i *Index) Nearest(query []float32) (string, float32, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.tree == nil {
		return "", 0, false
	}
	point, d, ok := i.tree.NearestNeighbor(tree.NewPoint(query...))
	if !ok {
		return "", 0, false
	}
	return i.ids[point], d, true
}

// Len returns the number of indexed vectors.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.tree == nil {
		return 0
	}
	return i.tree.Len()
}

// Stats returns the current index shape.
func (i *Index) Stats() Stats {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.tree == nil || i.tree.Len() == 0 {
		return Stats{}
	}
	return Stats{
		Size:        i.tree.Len(),
		Height:      i.tree.Height(),
		RootLevel:   i.tree.Root().Level,
		BottomLevel: i.tree.Bottom().Level,
	}
}

// LastBuild returns the report of the most recent Build.
func (i *Index) LastBuild() BuildReport {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.report
}

// Validate checks the tree invariants and that every stored point has an id.
func (i *Index) Validate() error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.tree == nil {
		return nil
	}
	if err := i.tree.Validate(); err != nil {
		return fmt.Errorf("cover: %w", err)
	}
	if len(i.ids) != i.tree.Len() {
		return fmt.Errorf("cover: %d ids for %d points: %w", len(i.ids), i.tree.Len(), ErrInconsistent)
	}
	for _, p := range i.tree.All() {
		if _, ok := i.ids[p]; !ok {
			return fmt.Errorf("cover: point %v has no id: %w", p.Vector, ErrInconsistent)
		}
	}
	return nil
}
