package plugin

import (
	"context"
	"net/http"
)

type boundHook struct {
	pluginID string
	fn       Hook
}

// Registry holds registered plugins and dispatches their hooks. All
// registration happens at engine construction; afterwards the registry is
// shared read-only across concurrent requests.
type Registry struct {
	plugins []Plugin
	ids     map[string]struct{}
	hooks   map[Point][]boundHook
}

// NewRegistry creates an empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		ids:   make(map[string]struct{}),
		hooks: make(map[Point][]boundHook),
	}
}

// Register appends a plugin. Hook order across plugins follows registration
// order. Returns ErrDuplicatePlugin if the ID is taken.
func (r *Registry) Register(p Plugin) error {
	if p.ID == "" {
		return ErrMissingID
	}
	if _, exists := r.ids[p.ID]; exists {
		return ErrDuplicatePlugin
	}

	r.ids[p.ID] = struct{}{}
	r.plugins = append(r.plugins, p)

	for point, hooks := range p.Hooks {
		for _, fn := range hooks {
			r.hooks[point] = append(r.hooks[point], boundHook{pluginID: p.ID, fn: fn})
		}
	}

	return nil
}

// Plugins returns the registered plugins in registration order.
func (r *Registry) Plugins() []Plugin {
	return r.plugins
}

// Routes returns every plugin-contributed route in registration order.
func (r *Registry) Routes() []Route {
	var routes []Route
	for _, p := range r.plugins {
		routes = append(routes, p.Routes...)
	}
	return routes
}

// RunBefore executes the before-hooks of a point in registration order. The
// first hook returning a non-nil Result short-circuits the chain: later
// hooks do not run and the result is terminal. A hook error aborts the run
// with a *HookError.
func (r *Registry) RunBefore(ctx context.Context, point Point, pc *Context) (*Result, error) {
	for _, h := range r.hooks[point] {
		result, err := h.fn(ctx, pc, nil)
		if err != nil {
			return nil, &HookError{PluginID: h.pluginID, Point: point, Err: err}
		}
		if result != nil {
			pc.shortCircuited = true
			return result, nil
		}
	}
	return nil, nil
}

// RunAfter executes the after-hooks of a point in registration order,
// threading the response through them. A hook returning a non-nil Result
// replaces the response, unless the run was short-circuited and the hook
// attempts to turn the terminal rejection into a success, which is refused.
func (r *Registry) RunAfter(ctx context.Context, point Point, pc *Context, resp *Result) (*Result, error) {
	for _, h := range r.hooks[point] {
		result, err := h.fn(ctx, pc, resp)
		if err != nil {
			return resp, &HookError{PluginID: h.pluginID, Point: point, Err: err}
		}
		if result == nil {
			continue
		}
		if pc.ShortCircuited() && resp.Rejected() && result.Status < http.StatusBadRequest {
			// A short-circuited request stays rejected.
			continue
		}
		resp = result
	}
	return resp, nil
}
