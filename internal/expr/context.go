// Package expr implements the Harmony expression and template language used
// by script steps: dot-path variable resolution, $len/$map built-ins, boolean
// comparisons, and {{ path }} template rendering.
package expr

import "github.com/harmonix-run/harmonix/pkg/models"

// Context is the read-only evaluation environment for one step: the
// session's variable bag and the per-call input bag, both keyed
// case-insensitively.
type Context struct {
	Vars  models.CaseInsensitiveMap[any]
	Input models.CaseInsensitiveMap[any]
}

// NewContext builds a Context from a vars map and an input map, copying
// neither — callers that need isolation should Clone the maps first.
func NewContext(vars, input models.CaseInsensitiveMap[any]) *Context {
	return &Context{Vars: vars, Input: input}
}
