// Package index defines a minimal abstraction for metric vector indexes that
// can be built from embeddings and queried for kNN. Implementations in this
// module include an exhaustive baseline and a cover tree.
package index
