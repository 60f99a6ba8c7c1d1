package tree

// Descent selects which qualifying child an insertion descends into.
type Descent int

const (
	// DescentFirst follows the first covering child in ascending index order.
	DescentFirst Descent = iota
	// DescentNearest follows the covering child closest to the point.
	DescentNearest
)

// BoundStrategy selects which radius to use when pruning searches.
type BoundStrategy int

const (
	// BoundLevel uses the geometric descendant bound derived from the node level.
	BoundLevel BoundStrategy = iota
	// BoundPerNode uses the cached per-node subtree radius when it is fresh
	// (see RefreshRadii), falling back to BoundLevel otherwise.
	BoundPerNode
)

// Option configures a Tree.
type Option func(t *Tree)

// WithDescent sets the insertion descent policy.
func WithDescent(d Descent) Option {
	return func(t *Tree) { t.descent = d }
}

// WithBoundStrategy sets the search pruning strategy.
func WithBoundStrategy(s BoundStrategy) Option {
	return func(t *Tree) { t.boundStrategy = s }
}

// WithDistance overrides the Euclidean metric. fn must satisfy the triangle inequality.
func WithDistance(fn DistanceFunc) Option {
	return func(t *Tree) {
		if fn != nil {
			t.distanceFunc = fn
		}
	}
}

// WithMetrics attaches structural counters.
func WithMetrics(m *Metrics) Option {
	return func(t *Tree) { t.metrics = m }
}
