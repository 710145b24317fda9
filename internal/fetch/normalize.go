package fetch

import (
	"errors"
	"fmt"
	"runtime"
)

// Normalize turns any failure value into an error whose message is the
// value's string form. Errors pass through unchanged.
func Normalize(v any) error {
	switch x := v.(type) {
	case nil:
		return errors.New("null")
	case *runtime.PanicNilError:
		return errors.New("undefined")
	case error:
		return x
	case string:
		return errors.New(x)
	case fmt.Stringer:
		return errors.New(x.String())
	case bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, uintptr,
		float32, float64:
		return errors.New(fmt.Sprint(x))
	default:
		return errors.New("[object Object]")
	}
}
