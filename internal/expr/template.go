package expr

import (
	"encoding/json"
	"regexp"
	"strings"
)

var templatePlaceholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.]+)\s*\}\}`)

// Render replaces {{ path }} occurrences whose path starts with "vars." or
// "input." with the resolved value rendered as text; placeholders that don't
// match either prefix, or whose path doesn't resolve, pass through verbatim.
func Render(ctx *Context, template string) string {
	return templatePlaceholder.ReplaceAllStringFunc(template, func(match string) string {
		groups := templatePlaceholder.FindStringSubmatch(match)
		path := groups[1]

		var root string
		switch {
		case strings.HasPrefix(path, "vars."):
			root, path = "vars", strings.TrimPrefix(path, "vars.")
		case strings.HasPrefix(path, "input."):
			root, path = "input", strings.TrimPrefix(path, "input.")
		default:
			return match
		}

		var val any
		var ok bool
		if root == "vars" {
			val, ok = resolveDotPath(ctx.Vars, path)
		} else {
			val, ok = resolveDotPath(ctx.Input, path)
		}
		if !ok {
			return match
		}
		return renderValue(val)
	})
}

func renderValue(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}
