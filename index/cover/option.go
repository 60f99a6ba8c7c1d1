package cover

import (
	"runtime"

	"github.com/rs/zerolog"
	"github.com/viant/covertree/internal/cover/tree"
)

// Descent selects which qualifying child an insertion descends into.
type Descent = tree.Descent

// BoundStrategy selects the radius used to prune searches.
type BoundStrategy = tree.BoundStrategy

const (
	DescentFirst   = tree.DescentFirst
	DescentNearest = tree.DescentNearest
	BoundLevel     = tree.BoundLevel
	BoundPerNode   = tree.BoundPerNode
)

type options struct {
	level       int32
	descent     Descent
	bound       BoundStrategy
	parallelism int
	bestFirst   bool
	logger      zerolog.Logger
	metrics     *Metrics
}

func newOptions(opts []Option) options {
	o := options{
		parallelism: runtime.GOMAXPROCS(0),
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.parallelism < 1 {
		o.parallelism = 1
	}
	return o
}

func (o *options) treeOptions() []tree.Option {
	result := []tree.Option{tree.WithDescent(o.descent), tree.WithBoundStrategy(o.bound)}
	if o.metrics != nil {
		result = append(result, tree.WithMetrics(o.metrics.tree))
	}
	return result
}

// Option configures an Index.
type Option func(o *options)

// WithLevel sets the level of the first node of every tree the index creates.
func WithLevel(level int32) Option {
	return func(o *options) { o.level = level }
}

// WithDescent sets the insertion descent policy.
func WithDescent(d Descent) Option {
	return func(o *options) { o.descent = d }
}

// WithBoundStrategy sets the search pruning strategy. With BoundPerNode the
// index refreshes cached radii after every Build and Merge.
func WithBoundStrategy(s BoundStrategy) Option {
	return func(o *options) { o.bound = s }
}

// WithBuildParallelism sets the number of shards built concurrently.
func WithBuildParallelism(n int) Option {
	return func(o *options) { o.parallelism = n }
}

// WithBestFirst makes Query use the best-first search instead of the
// depth-first one.
func WithBestFirst(enabled bool) Option {
	return func(o *options) { o.bestFirst = enabled }
}

// WithLogger sets the build logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics attaches prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}
