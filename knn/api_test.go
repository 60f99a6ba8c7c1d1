package knn

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	covidx "github.com/viant/covertree/index/cover"
	"github.com/viant/covertree/vector"
)

func TestParseTableOptions(t *testing.T) {
	var testCases = []struct {
		description string
		args        []string
		expect      tableOptions
		expectErr   bool
	}{
		{description: "defaults", expect: tableOptions{}},
		{
			description: "all options",
			args:        []string{"source=docs", "level=-2", "descent=nearest", "bound=node", "parallel=4", "search=best_first"},
			expect: tableOptions{
				source:    "docs",
				level:     -2,
				descent:   covidx.DescentNearest,
				bound:     covidx.BoundPerNode,
				parallel:  4,
				bestFirst: true,
			},
		},
		{description: "quoted and auto", args: []string{" source = 'my_docs' ", "parallel=auto"}, expect: tableOptions{source: "my_docs"}},
		{description: "bad source", args: []string{"source=docs;drop"}, expectErr: true},
		{description: "bad level", args: []string{"level=high"}, expectErr: true},
		{description: "bad descent", args: []string{"descent=random"}, expectErr: true},
		{description: "bad parallel", args: []string{"parallel=0"}, expectErr: true},
		{description: "unknown key", args: []string{"metric=cosine"}, expectErr: true},
		{description: "missing value", args: []string{"level"}, expectErr: true},
	}
	for _, testCase := range testCases {
		actual, err := parseTableOptions(testCase.args)
		if testCase.expectErr {
			assert.Error(t, err, testCase.description)
			continue
		}
		require.NoError(t, err, testCase.description)
		assert.Equal(t, testCase.expect, actual, testCase.description)
	}
}

func TestDecodeMatchArg(t *testing.T) {
	blob, err := vector.EncodeEmbedding([]float32{0.5, -1})
	require.NoError(t, err)

	var testCases = []struct {
		description string
		arg         interface{}
		expect      []float32
		expectErr   bool
	}{
		{description: "blob", arg: blob, expect: []float32{0.5, -1}},
		{description: "json", arg: "[0.5, -1]", expect: []float32{0.5, -1}},
		{description: "csv", arg: " 0.5, -1 ", expect: []float32{0.5, -1}},
		{description: "base64", arg: base64.StdEncoding.EncodeToString(blob), expect: []float32{0.5, -1}},
		{description: "single coordinate", arg: "3", expect: []float32{3}},
		{description: "empty", arg: "  ", expectErr: true},
		{description: "bad json", arg: "[1,", expectErr: true},
		{description: "bad csv", arg: "1,x", expectErr: true},
		{description: "unsupported type", arg: int64(3), expectErr: true},
	}
	for _, testCase := range testCases {
		actual, err := decodeMatchArg(testCase.arg)
		if testCase.expectErr {
			assert.Error(t, err, testCase.description)
			continue
		}
		require.NoError(t, err, testCase.description)
		assert.Equal(t, testCase.expect, actual, testCase.description)
	}
}

func TestInvalidateCache(t *testing.T) {
	entry := getCacheEntry(cacheKey("/tmp/x.sqlite", "_cover_unit"))
	entry.set(covidx.New(), map[string]int64{})
	other := getCacheEntry(cacheKey("/tmp/x.sqlite", "_cover_other"))
	other.set(covidx.New(), map[string]int64{})

	assert.Equal(t, 1, InvalidateCache("main._cover_unit"))
	idx, _ := entry.get()
	assert.Nil(t, idx)
	idx, _ = other.get()
	assert.NotNil(t, idx)
}
