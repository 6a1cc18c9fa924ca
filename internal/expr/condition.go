package expr

import (
	"fmt"
	"strings"
)

// comparators are tried longest-first so "<=" isn't mistaken for "<".
var comparators = []string{"==", "!=", "<=", ">=", "<", ">"}

// EvaluateCondition evaluates an if.condition. When the expression contains a
// top-level comparator it compares both sides (numerically if both parse as
// numbers, else by string ordinal); otherwise it evaluates the whole
// expression and applies Truthy.
func EvaluateCondition(ctx *Context, condition string) (bool, error) {
	condition = strings.TrimSpace(condition)

	if left, op, right, ok := splitComparison(condition); ok {
		leftVal, err := Evaluate(ctx, strings.TrimSpace(left))
		if err != nil {
			return false, err
		}
		rightVal, err := Evaluate(ctx, strings.TrimSpace(right))
		if err != nil {
			return false, err
		}
		return compare(leftVal, op, rightVal), nil
	}

	val, err := Evaluate(ctx, condition)
	if err != nil {
		return false, err
	}
	return Truthy(val), nil
}

// splitComparison finds a top-level (outside parens) comparator and splits
// the expression around it.
func splitComparison(condition string) (left, op, right string, ok bool) {
	depth := 0
	for i := 0; i < len(condition); i++ {
		switch condition[i] {
		case '(':
			depth++
			continue
		case ')':
			depth--
			continue
		}
		if depth != 0 {
			continue
		}
		for _, c := range comparators {
			if strings.HasPrefix(condition[i:], c) {
				return condition[:i], c, condition[i+len(c):], true
			}
		}
	}
	return "", "", "", false
}

func compare(left any, op string, right any) bool {
	if lf, lok := parseNumber(left); lok {
		if rf, rok := parseNumber(right); rok {
			return compareOrdered(lf, rf, op)
		}
	}
	return compareOrdered(toOrdinalString(left), toOrdinalString(right), op)
}

func compareOrdered[T string | float64](left T, right T, op string) bool {
	switch op {
	case "==":
		return left == right
	case "!=":
		return left != right
	case "<":
		return left < right
	case "<=":
		return left <= right
	case ">":
		return left > right
	case ">=":
		return left >= right
	default:
		return false
	}
}

func toOrdinalString(val any) string {
	if s, ok := val.(string); ok {
		return s
	}
	if val == nil {
		return ""
	}
	return fmt.Sprint(val)
}

// Truthy applies the boolean coercion rule: non-null, non-empty string,
// non-false boolean, non-null JSON value is truthy.
func Truthy(val any) bool {
	switch v := val.(type) {
	case nil:
		return false
	case string:
		return v != ""
	case bool:
		return v
	default:
		return true
	}
}
