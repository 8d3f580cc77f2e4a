package wire

import (
	"math"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/types/known/structpb"
)

// ErrInvalidValue indicates a value outside null, bool, number, string, list and map.
var ErrInvalidValue = errors.New("invalid value")

// Normalize converts v to the canonical dynamic representation used in the
// shared state: nil, bool, float64, string, []any or map[string]any.
// Integer types are widened to float64. NaN and infinite numbers are rejected.
func Normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	pv, err := structpb.NewValue(v)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidValue, "%v", err)
	}
	if err := checkFinite(pv); err != nil {
		return nil, err
	}
	return pv.AsInterface(), nil
}

func checkFinite(v *structpb.Value) error {
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		if math.IsNaN(k.NumberValue) || math.IsInf(k.NumberValue, 0) {
			return errors.Wrapf(ErrInvalidValue, "non-finite number %v", k.NumberValue)
		}
	case *structpb.Value_ListValue:
		for _, e := range k.ListValue.GetValues() {
			if err := checkFinite(e); err != nil {
				return err
			}
		}
	case *structpb.Value_StructValue:
		for key, e := range k.StructValue.GetFields() {
			if err := checkFinite(e); err != nil {
				return errors.Wrapf(err, "field %q", key)
			}
		}
	}
	return nil
}

// AsNumber returns v as a float64 if it is numeric.
func AsNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
