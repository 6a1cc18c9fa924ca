package expr

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/harmonix-run/harmonix/pkg/models"
)

// ValidSyntaxPrefixes lists the expression prefixes allowed by the syntactic
// guard applied to extract-input mappings and if.condition.
var validSyntaxPrefixes = []string{"$vars.", "$input.", "$len(", "$map("}

// ValidateSyntax enforces the guard: expressions used in extract-input and
// if.condition must begin with one of the allowed forms.
func ValidateSyntax(expression string) error {
	trimmed := strings.TrimSpace(expression)
	for _, prefix := range validSyntaxPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return nil
		}
	}
	return models.NewError(models.KindExecutionError, "Invalid expression syntax")
}

// Evaluate resolves expression against ctx. Supported forms: $vars.path,
// $input.path, $len(expr), $map(expr, 'prop').
func Evaluate(ctx *Context, expression string) (any, error) {
	expression = strings.TrimSpace(expression)

	switch {
	case strings.HasPrefix(expression, "$len("):
		inner, err := callArg(expression, "$len(")
		if err != nil {
			return nil, err
		}
		val, err := Evaluate(ctx, inner)
		if err != nil {
			return nil, err
		}
		return lengthOf(val), nil

	case strings.HasPrefix(expression, "$map("):
		exprArg, propArg, err := mapArgs(expression)
		if err != nil {
			return nil, err
		}
		val, err := Evaluate(ctx, exprArg)
		if err != nil {
			return nil, err
		}
		return mapProp(val, propArg), nil

	case strings.HasPrefix(expression, "$vars."):
		v, _ := resolveDotPath(ctx.Vars, strings.TrimPrefix(expression, "$vars."))
		return v, nil

	case strings.HasPrefix(expression, "$input."):
		v, _ := resolveDotPath(ctx.Input, strings.TrimPrefix(expression, "$input."))
		return v, nil

	default:
		return nil, models.NewError(models.KindExecutionError, "Invalid expression syntax")
	}
}

// callArg extracts the argument text of a single-argument call like
// "$len(...)", matching parentheses so nested calls are handled correctly.
func callArg(expression, prefix string) (string, error) {
	if !strings.HasSuffix(expression, ")") {
		return "", models.NewError(models.KindExecutionError, "unterminated call in expression")
	}
	return expression[len(prefix) : len(expression)-1], nil
}

// mapArgs splits "$map(expr, 'prop')" into expr and prop, respecting a
// top-level comma (the expr argument may itself contain commas only inside
// balanced parens, which this depth-aware scan accounts for).
func mapArgs(expression string) (exprArg, propArg string, err error) {
	inner, err := callArg(expression, "$map(")
	if err != nil {
		return "", "", err
	}
	depth := 0
	splitAt := -1
	for i, r := range inner {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				splitAt = i
			}
		}
		if splitAt >= 0 {
			break
		}
	}
	if splitAt < 0 {
		return "", "", models.NewError(models.KindExecutionError, "$map requires two arguments")
	}
	exprArg = strings.TrimSpace(inner[:splitAt])
	propArg = strings.TrimSpace(inner[splitAt+1:])
	propArg = strings.Trim(propArg, "'\"")
	return exprArg, propArg, nil
}

// resolveDotPath walks a dotted path ("a.b.c") starting from a
// case-insensitive root map, descending into nested map[string]any values.
func resolveDotPath(root models.CaseInsensitiveMap[any], path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	segments := strings.Split(path, ".")
	current, ok := root.Get(segments[0])
	if !ok {
		return nil, false
	}
	for _, seg := range segments[1:] {
		current, ok = lookupField(current, seg)
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// lookupField resolves one dotted segment against a nested value, matching
// map keys case-insensitively.
func lookupField(value any, key string) (any, bool) {
	switch m := value.(type) {
	case map[string]any:
		for k, v := range m {
			if strings.EqualFold(k, key) {
				return v, true
			}
		}
		return nil, false
	case models.CaseInsensitiveMap[any]:
		return m.Get(key)
	default:
		return nil, false
	}
}

// lengthOf implements $len: array length, string code-point count, map
// element count, else 0.
func lengthOf(val any) int {
	switch v := val.(type) {
	case nil:
		return 0
	case []any:
		return len(v)
	case string:
		return utf8.RuneCountInString(v)
	case map[string]any:
		return len(v)
	default:
		return 0
	}
}

// mapProp implements $map: for an array of objects, the list of each
// object's prop value; anything else yields an empty list.
func mapProp(val any, prop string) []any {
	arr, ok := val.([]any)
	if !ok {
		return []any{}
	}
	out := make([]any, 0, len(arr))
	for _, item := range arr {
		obj, ok := item.(map[string]any)
		if !ok {
			out = append(out, nil)
			continue
		}
		v, _ := lookupField(obj, prop)
		out = append(out, v)
	}
	return out
}

// parseNumber reports whether s parses as a JSON number, and its value.
func parseNumber(val any) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
