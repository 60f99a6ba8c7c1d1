package cover

import (
	"errors"
	"sync"

	"github.com/minio/highwayhash"
	"github.com/viant/covertree/internal/cover/tree"
	"github.com/viant/covertree/vector"
)

var shardKey = []byte("0123456789ABCDEF0123456789ABCDEF")

// shardOf assigns a vector to one of n shards by the hash of its encoding.
func shardOf(v []float32, n int) int {
	if n <= 1 {
		return 0
	}
	encoded, _ := vector.EncodeEmbedding(v)
	return int(highwayhash.Sum64(encoded, shardKey) % uint64(n))
}

func partition(points []*tree.Point, n int) [][]*tree.Point {
	if n > len(points) {
		n = len(points)
	}
	buckets := make([][]*tree.Point, n)
	for _, p := range points {
		s := shardOf(p.Vector, n)
		buckets[s] = append(buckets[s], p)
	}
	result := buckets[:0]
	for _, bucket := range buckets {
		if len(bucket) > 0 {
			result = append(result, bucket)
		}
	}
	return result
}

// build constructs one tree per shard concurrently and reduces them with
// pairwise merges, each round running its merges in parallel.
func (i *Index) build(points []*tree.Point) (*tree.Tree, BuildReport, error) {
	report := BuildReport{Points: len(points)}
	if len(points) == 0 {
		return nil, report, nil
	}
	shards := partition(points, i.parallelism)
	report.Shards = len(shards)

	trees := make([]*tree.Tree, len(shards))
	errs := make([]error, len(shards))
	var wg sync.WaitGroup
	for s, shard := range shards {
		wg.Add(1)
		go func(s int, shard []*tree.Point) {
			defer wg.Done()
			trees[s], errs[s] = i.buildShard(shard)
			if errs[s] == nil {
				i.logger.Debug().Int("shard", s).Int("points", len(shard)).Int("height", trees[s].Height()).Msg("shard built")
			}
		}(s, shard)
	}
	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		return nil, report, err
	}

	for len(trees) > 1 {
		next := make([]*tree.Tree, (len(trees)+1)/2)
		stats := make([]MergeStats, len(next))
		errs = make([]error, len(next))
		for j := 0; j < len(trees); j += 2 {
			next[j/2] = trees[j]
			if j+1 == len(trees) {
				continue
			}
			wg.Add(1)
			go func(j int) {
				defer wg.Done()
				stats[j/2], errs[j/2] = trees[j].Merge(trees[j+1])
			}(j)
		}
		wg.Wait()
		if err := errors.Join(errs...); err != nil {
			return nil, report, err
		}
		for _, s := range stats {
			report.Merge.Grafted += s.Grafted
			report.Merge.Descended += s.Descended
			report.Merge.Reinserted += s.Reinserted
			report.Merge.Recursions += s.Recursions
		}
		report.Rounds++
		i.logger.Debug().Int("round", report.Rounds).Int("trees", len(next)).Msg("merge round done")
		trees = next
	}
	return trees[0], report, nil
}

func (i *Index) buildShard(points []*tree.Point) (*tree.Tree, error) {
	t, err := tree.New(points[0], i.level, i.treeOptions()...)
	if err != nil {
		return nil, err
	}
	for _, p := range points[1:] {
		if err = t.Insert(p); err != nil {
			return nil, err
		}
	}
	return t, nil
}
