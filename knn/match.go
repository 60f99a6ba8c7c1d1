package knn

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/viant/covertree/source"
	"github.com/viant/covertree/vector"
)

// decodeMatchArg accepts an encoded embedding BLOB, a JSON array, a base64
// encoded embedding or a comma separated float list.
func decodeMatchArg(v interface{}) ([]float32, error) {
	switch val := v.(type) {
	case []byte:
		return vector.DecodeEmbedding(val)
	case string:
		return decodeMatchString(val)
	default:
		return nil, fmt.Errorf("knn: expected MATCH arg as BLOB or string, got %T", v)
	}
}

func decodeMatchString(raw string) ([]float32, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, fmt.Errorf("knn: MATCH string is empty")
	}
	if strings.HasPrefix(s, "[") {
		var floats []float32
		if err := json.Unmarshal([]byte(s), &floats); err != nil {
			return nil, fmt.Errorf("knn: invalid MATCH array: %w", err)
		}
		return floats, nil
	}
	if strings.Contains(s, ",") {
		vec, err := source.ParseVector(s)
		if err != nil {
			return nil, fmt.Errorf("knn: %w", err)
		}
		return vec, nil
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		if vec, err := vector.DecodeEmbedding(b); err == nil {
			return vec, nil
		}
	}
	// A single coordinate has no comma.
	vec, err := source.ParseVector(s)
	if err != nil {
		return nil, fmt.Errorf("knn: MATCH string must be a base64 embedding or a JSON/CSV float list")
	}
	return vec, nil
}
