// Package bruteforce provides a vector index that answers kNN queries by
// scanning all vectors and ranking them by Euclidean distance. It serves as
// the correctness baseline for the cover tree.
package bruteforce
