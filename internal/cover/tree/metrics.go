package tree

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds optional structural counters. Nil fields are ignored, and a
// single Metrics value may be shared by trees built on separate goroutines.
type Metrics struct {
	Inserts    prometheus.Counter
	Promotions prometheus.Counter
	Merges     prometheus.Counter
	Grafted    prometheus.Counter
	Reinserted prometheus.Counter
}

// NewMetrics registers cover tree counters with the supplied registerer.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Inserts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cover_tree_inserts_total",
			Help:      "Points inserted through the descent primitive.",
		}),
		Promotions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cover_tree_root_promotions_total",
			Help:      "Leaf-to-root promotions.",
		}),
		Merges: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cover_tree_merges_total",
			Help:      "Completed two-tree merges.",
		}),
		Grafted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cover_tree_merge_grafted_nodes_total",
			Help:      "Nodes attached structurally during merges.",
		}),
		Reinserted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cover_tree_merge_reinserted_points_total",
			Help:      "Merge leftovers reinserted point by point.",
		}),
	}
}

func (m *Metrics) observeInsert() {
	if m != nil {
		add(m.Inserts, 1)
	}
}

func (m *Metrics) observePromotion() {
	if m != nil {
		add(m.Promotions, 1)
	}
}

func (m *Metrics) observeMerge(stats MergeStats) {
	if m == nil {
		return
	}
	add(m.Merges, 1)
	add(m.Grafted, stats.Grafted)
	add(m.Reinserted, stats.Reinserted)
}

func add(c prometheus.Counter, v int) {
	if c != nil && v > 0 {
		c.Add(float64(v))
	}
}
