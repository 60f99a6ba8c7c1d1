// Package knn implements the cover_knn SQLite virtual table: nearest-neighbor
// search with MATCH semantics backed by an in-memory cover tree index.
//
// Each virtual table reads (id, embedding) rows from a documents table, by
// default _cover_<name>, or the table named with source=<table>. The index is
// built on the first MATCH, shared across connections, and dropped by triggers
// whenever the documents table changes.
//
//	CREATE VIRTUAL TABLE nn USING cover_knn(doc_id, descent=nearest, bound=node);
//	SELECT doc_id, distance FROM nn WHERE doc_id MATCH ? AND k = 5;
//	SELECT doc_id FROM nn WHERE doc_id MATCH '[1,0]' AND distance <= 0.5;
//
// Supported options are source, level, descent (first|nearest),
// bound (level|node), parallel (auto|N) and search (depth_first|best_first).
package knn
