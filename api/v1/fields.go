package apiv1

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"
)

// Int reads an integral number field. Missing fields read as def.
func Int(s *structpb.Struct, key string, def int) (int, error) {
	v, ok := s.GetFields()[key]
	if !ok {
		return def, nil
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("field %q: expected number", key)
	}
	i, err := toInt(n.NumberValue)
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", key, err)
	}
	return i, nil
}

// toInt converts a Struct number to a uid-sized integer. Uids are 32-bit;
// anything wider would wrap or lose precision and alias another uid.
func toInt(f float64) (int, error) {
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("expected integer, got %v", f)
	}
	if f < math.MinInt32 || f > math.MaxInt32 {
		return 0, fmt.Errorf("%v is outside the 32-bit uid range", f)
	}
	return int(f), nil
}

// String reads a string field. Missing fields read as "".
func String(s *structpb.Struct, key string) (string, error) {
	v, ok := s.GetFields()[key]
	if !ok {
		return "", nil
	}
	str, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", fmt.Errorf("field %q: expected string", key)
	}
	return str.StringValue, nil
}

// Ints reads a list of integral numbers. Missing fields read as nil.
func Ints(s *structpb.Struct, key string) ([]int, error) {
	v, ok := s.GetFields()[key]
	if !ok {
		return nil, nil
	}
	list := v.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("field %q: expected list", key)
	}
	out := make([]int, 0, len(list.GetValues()))
	for i, item := range list.GetValues() {
		n, ok := item.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("field %q[%d]: expected number", key, i)
		}
		uid, err := toInt(n.NumberValue)
		if err != nil {
			return nil, fmt.Errorf("field %q[%d]: %w", key, i, err)
		}
		out = append(out, uid)
	}
	return out, nil
}

// IntList converts uids to a list value for a response.
func IntList(uids []int) []any {
	out := make([]any, len(uids))
	for i, u := range uids {
		out[i] = u
	}
	return out
}

// StringList converts names to a list value for a response.
func StringList(names []string) []any {
	out := make([]any, len(names))
	for i, n := range names {
		out[i] = n
	}
	return out
}
