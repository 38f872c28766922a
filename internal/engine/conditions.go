package engine

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

// condExprPattern matches operator expressions like ">= 50" or "<3.5".
var condExprPattern = regexp.MustCompile(`^(>=|<=|>|<|==|=)\s*(-?\d+(\.\d+)?)$`)

// EvaluateCondition reports whether an attribute snapshot satisfies a
// declarative condition map. All pairs must match (logical AND); an empty
// map matches unconditionally.
//
// Per-pair grammar:
//   - numeric expr: type-coerced numeric equality against the attribute
//   - operator-string expr (">= 50" etc.): numeric comparison; a missing
//     or non-numeric attribute fails
//   - any other string expr: exact, case-sensitive string equality; a
//     missing attribute fails
//   - anything else: strict equality
func EvaluateCondition(condition map[string]interface{}, attributes map[string]interface{}) bool {
	for key, expr := range condition {
		if !evaluatePair(attributes, key, expr) {
			return false
		}
	}
	return true
}

func evaluatePair(attributes map[string]interface{}, key string, expr interface{}) bool {
	value, present := attributes[key]

	if want, ok := toNumber(expr); ok {
		got, ok := toNumber(value)
		return ok && got == want
	}

	if s, ok := expr.(string); ok {
		if m := condExprPattern.FindStringSubmatch(strings.TrimSpace(s)); m != nil {
			got, ok := toNumber(value)
			if !ok {
				return false
			}
			want, _ := strconv.ParseFloat(m[2], 64)
			return compareNumbers(m[1], got, want)
		}
		if !present {
			return false
		}
		return stringify(value) == s
	}

	if !present {
		return false
	}
	return reflect.DeepEqual(value, expr)
}

func compareNumbers(op string, got, want float64) bool {
	switch op {
	case ">=":
		return got >= want
	case "<=":
		return got <= want
	case ">":
		return got > want
	case "<":
		return got < want
	case "==", "=":
		return got == want
	}
	return false
}

// toNumber coerces JSON-decoded values to float64.
func toNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func stringify(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
