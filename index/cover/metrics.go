package cover

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/viant/covertree/internal/cover/tree"
)

// Metrics groups index gauges with the structural counters of its trees.
type Metrics struct {
	Size          prometheus.Gauge
	Height        prometheus.Gauge
	Builds        prometheus.Counter
	BuildDuration prometheus.Histogram
	tree          *tree.Metrics
}

// NewMetrics registers index metrics with the supplied registerer.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Size: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cover_index_size",
			Help:      "Points held by the index.",
		}),
		Height: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cover_index_height",
			Help:      "Levels spanned by the index tree.",
		}),
		Builds: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cover_index_builds_total",
			Help:      "Completed index builds.",
		}),
		BuildDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cover_index_build_duration_seconds",
			Help:      "Wall time of index builds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		tree: tree.NewMetrics(reg, namespace),
	}
}

func (m *Metrics) observeShape(t *tree.Tree) {
	if m == nil {
		return
	}
	size, height := 0, 0
	if t != nil {
		size, height = t.Len(), t.Height()
	}
	m.Size.Set(float64(size))
	m.Height.Set(float64(height))
}
