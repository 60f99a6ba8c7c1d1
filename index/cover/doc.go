// Package cover provides a concurrency-safe cover tree index. Build shards the
// input, constructs one private tree per shard in parallel and reduces the
// trees with structural merges.
package cover
