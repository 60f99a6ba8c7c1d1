// Package tree implements a cover tree: a hierarchical metric index whose
// nodes live in a per-level store addressed by (level, index) pairs. Level L
// has covering distance 2^L and separation distance 2^(L-1).
//
// The tree supports incremental insertion with root promotion, structural
// merging of two independently built trees, and branch-and-bound nearest
// neighbour search.
package tree
