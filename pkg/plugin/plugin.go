package plugin

import (
	"context"
	"net/http"
)

// Result is a terminal or transformed pipeline response.
type Result struct {
	Status  int
	Body    any
	Headers http.Header
}

// Rejected reports whether the result carries an error status.
func (r *Result) Rejected() bool {
	return r != nil && r.Status >= http.StatusBadRequest
}

// Hook is a single pipeline stage. Before-hooks return a non-nil Result to
// short-circuit the chain. After-hooks receive the current response via
// pc and return a non-nil Result to replace it, or nil to leave it as is.
// Hooks must not retain pc beyond the call.
type Hook func(ctx context.Context, pc *Context, resp *Result) (*Result, error)

// Route is an additional operation a plugin contributes to the engine's
// router.
type Route struct {
	Method  string
	Pattern string
	Handler http.HandlerFunc
}

// Plugin bundles an identifier with hook registrations and optional routes.
type Plugin struct {
	// ID uniquely identifies the plugin; it is carried by HookError.
	ID string

	// Hooks maps extension points to this plugin's handlers, executed in
	// slice order within the plugin and in registration order across
	// plugins.
	Hooks map[Point][]Hook

	// Routes are mounted on the engine router under its base path.
	Routes []Route
}
