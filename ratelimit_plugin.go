package authkit

import (
	"context"
	"net/http"
	"strconv"

	"github.com/dmitrymomot/authkit/pkg/clientip"
	"github.com/dmitrymomot/authkit/pkg/plugin"
)

// rateLimitPlugin guards credential operations with the engine's token
// bucket, keyed by client IP and operation so one noisy endpoint cannot
// exhaust the budget of another.
func (e *Engine) rateLimitPlugin() plugin.Plugin {
	hook := func(ctx context.Context, pc *plugin.Context, _ *plugin.Result) (*plugin.Result, error) {
		if pc.Request == nil || pc.Request.HTTP == nil {
			return nil, nil
		}

		key := clientip.FromRequest(pc.Request.HTTP) + ":" + pc.Request.Operation
		result, err := e.limiter.Allow(ctx, key)
		if err != nil {
			return nil, err
		}
		if result.Allowed() {
			return nil, nil
		}

		headers := http.Header{}
		headers.Set("Retry-After", strconv.Itoa(int(result.RetryAfter().Seconds())+1))
		return &plugin.Result{
			Status:  http.StatusTooManyRequests,
			Body:    errorBody{Error: "rate_limited"},
			Headers: headers,
		}, nil
	}

	return plugin.Plugin{
		ID: "ratelimit",
		Hooks: map[plugin.Point][]plugin.Hook{
			plugin.BeforeSignUp: {hook},
			plugin.BeforeSignIn: {hook},
			plugin.BeforeVerify: {hook},
		},
	}
}
