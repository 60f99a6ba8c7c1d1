package engine

import (
	"database/sql"
	"database/sql/driver"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/viant/covertree/internal/cover/tree"
	"github.com/viant/vec/search"
	sqlite "modernc.org/sqlite"
)

var registerOnce sync.Once

// RegisterCoverFunctions registers cover_l2, cover_covdist and cover_sepdist
// with the driver so they are available on new connections opened after this
// call. Existing open connections will not see new functions.
func RegisterCoverFunctions(_ *sql.DB) error {
	var err error
	registerOnce.Do(func() {
		if err = sqlite.RegisterDeterministicScalarFunction("cover_l2", 2, coverL2Impl); err != nil {
			return
		}
		if err = sqlite.RegisterDeterministicScalarFunction("cover_covdist", 1, levelDistance("cover_covdist", tree.CovDist)); err != nil {
			return
		}
		err = sqlite.RegisterDeterministicScalarFunction("cover_sepdist", 1, levelDistance("cover_sepdist", tree.SepDist))
	})
	return err
}

func asEmbedding(arg driver.Value) ([]float32, error) {
	switch v := arg.(type) {
	case nil:
		return nil, nil
	case []byte:
		return decodeEmbedding(v)
	default:
		return nil, fmt.Errorf("cover: unsupported argument type %T for embedding; want BLOB", arg)
	}
}

func asLevel(arg driver.Value) (int32, error) {
	switch v := arg.(type) {
	case int64:
		if v < math.MinInt32 || v > math.MaxInt32 {
			return 0, fmt.Errorf("cover: level %d out of range", v)
		}
		return int32(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("cover: level %v is not an integer", v)
		}
		return asLevel(int64(v))
	default:
		return 0, fmt.Errorf("cover: unsupported argument type %T for level; want INTEGER", arg)
	}
}

func coverL2Impl(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("cover_l2: expected 2 arguments, got %d", len(args))
	}
	a, err := asEmbedding(args[0])
	if err != nil {
		return nil, err
	}
	b, err := asEmbedding(args[1])
	if err != nil {
		return nil, err
	}
	if a == nil || b == nil {
		return nil, nil
	}
	if len(a) != len(b) {
		return nil, fmt.Errorf("cover_l2: dim mismatch %d vs %d", len(a), len(b))
	}
	return float64(search.Float32s(a).EuclideanDistance(b)), nil
}

func levelDistance(name string, fn func(level int32) float32) func(*sqlite.FunctionContext, []driver.Value) (driver.Value, error) {
	return func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("%s: expected 1 argument, got %d", name, len(args))
		}
		if args[0] == nil {
			return nil, nil
		}
		level, err := asLevel(args[0])
		if err != nil {
			return nil, err
		}
		return float64(fn(level)), nil
	}
}

// Local minimal helpers to avoid import cycles in tests.
func decodeEmbedding(b []byte) ([]float32, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("cover: invalid embedding blob length %d", len(b))
	}
	n := len(b) / 4
	v := make([]float32, n)
	for i := 0; i < n; i++ {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
