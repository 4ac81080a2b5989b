package validation

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/vaisu-bhut/GeniQ/pkg/models"
)

// Coerce converts a raw generator value to the column's declared type.
// Results are JSON-friendly: int64, float64, bool, string, and datetimes as
// RFC3339 strings.
func Coerce(dtype models.DType, raw interface{}) (interface{}, error) {
	if raw == nil {
		return nil, fmt.Errorf("value is null")
	}
	switch dtype {
	case models.DTypeInt:
		return toInt(raw)
	case models.DTypeFloat:
		return toFloat(raw)
	case models.DTypeBool:
		return toBool(raw)
	case models.DTypeStr:
		return toStr(raw), nil
	case models.DTypeDatetime:
		t, err := toTime(raw)
		if err != nil {
			return nil, err
		}
		return t.Format(time.RFC3339), nil
	}
	return nil, fmt.Errorf("unknown dtype %q", dtype)
}

func toFloat(raw interface{}) (float64, error) {
	var (
		f   float64
		err error
	)
	switch v := raw.(type) {
	case bool:
		return 0, fmt.Errorf("bool %v is not numeric", v)
	case string:
		f, err = cast.ToFloat64E(strings.TrimSpace(v))
	default:
		f, err = cast.ToFloat64E(v)
	}
	if err != nil {
		return 0, fmt.Errorf("not numeric: %w", err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number")
	}
	return f, nil
}

func toInt(raw interface{}) (int64, error) {
	f, err := toFloat(raw)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%v is not an integer", raw)
	}
	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
	if f >= 1<<63 || f < math.MinInt64 {
		return 0, fmt.Errorf("%v overflows int64", raw)
	}
	return int64(f), nil
}

func toBool(raw interface{}) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes":
			return true, nil
		case "false", "0", "no":
			return false, nil
		}
		return false, fmt.Errorf("%q is not a boolean", v)
	}
	// Numbers are rejected: only native booleans and the listed strings count.
	return false, fmt.Errorf("%v is not a boolean", raw)
}

func toStr(raw interface{}) string {
	if s, err := cast.ToStringE(raw); err == nil {
		return s
	}
	return fmt.Sprint(raw)
}

func toTime(raw interface{}) (time.Time, error) {
	switch v := raw.(type) {
	case bool:
		return time.Time{}, fmt.Errorf("bool %v is not a datetime", v)
	case string:
		raw = strings.TrimSpace(v)
	}
	t, err := cast.ToTimeE(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("not a datetime: %w", err)
	}
	return t, nil
}
