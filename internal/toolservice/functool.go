package toolservice

import "context"

// FuncTool adapts a plain function to the Tool interface, the common case
// for simple, side-effect-free tools registered in tests or small deployments.
type FuncTool struct {
	name string
	fn   func(ctx context.Context, args map[string]any) (any, error)
}

// NewFuncTool wraps fn as a named Tool.
func NewFuncTool(name string, fn func(ctx context.Context, args map[string]any) (any, error)) *FuncTool {
	return &FuncTool{name: name, fn: fn}
}

func (t *FuncTool) Name() string { return t.name }

func (t *FuncTool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	return t.fn(ctx, args)
}
