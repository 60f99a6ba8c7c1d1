package vector

import (
	"context"
)

// Document represents an input record held in the docs table. Embedding is
// the point a cover tree is built from.
type Document struct {
	// ID is the logical identifier of the document.
	ID string

	// Content holds the main text/body of the document.
	Content string

	// Metadata is an opaque JSON payload associated with the document.
	Metadata string

	// Embedding is the vector representation of the document content.
	Embedding []float32
}

// Store defines the durable point source the index is built from.
type Store interface {
	// AddDocuments inserts documents into the store and returns their IDs.
	// Every Document must have ID set.
	AddDocuments(ctx context.Context, docs []Document) ([]string, error)

	// LoadEmbeddings returns the ids and embeddings of every document that has
	// one, in insertion order.
	LoadEmbeddings(ctx context.Context) ([]string, [][]float32, error)

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)

	// Remove deletes the document with the given ID.
	Remove(ctx context.Context, id string) error
}
