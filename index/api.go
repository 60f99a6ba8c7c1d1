package index

// Index defines a metric vector index built from (id, embedding) pairs.
type Index interface {
	// Build constructs the index from the given ids and vectors, replacing any
	// previous content. ids and vectors must have the same length and all
	// vectors must share one dimension.
	Build(ids []string, vectors [][]float32) error

	// Query runs a kNN search with the provided query vector and returns up to
	// k matches as parallel slices of ids and Euclidean distances, ordered by
	// ascending distance. A non-positive k returns every entry.
	Query(query []float32, k int) (ids []string, distances []float64, err error)
}
