package plugin_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authkit/pkg/plugin"
)

func recordingHook(log *[]string, name string) plugin.Hook {
	return func(ctx context.Context, pc *plugin.Context, resp *plugin.Result) (*plugin.Result, error) {
		*log = append(*log, name)
		return nil, nil
	}
}

func rejectingHook(status int) plugin.Hook {
	return func(ctx context.Context, pc *plugin.Context, resp *plugin.Result) (*plugin.Result, error) {
		return &plugin.Result{Status: status, Body: map[string]string{"error": "rejected"}}, nil
	}
}

func TestRegistry_Register(t *testing.T) {
	t.Parallel()

	t.Run("duplicate id", func(t *testing.T) {
		t.Parallel()

		registry := plugin.NewRegistry()
		require.NoError(t, registry.Register(plugin.Plugin{ID: "a"}))
		assert.ErrorIs(t, registry.Register(plugin.Plugin{ID: "a"}), plugin.ErrDuplicatePlugin)
	})

	t.Run("missing id", func(t *testing.T) {
		t.Parallel()

		registry := plugin.NewRegistry()
		assert.ErrorIs(t, registry.Register(plugin.Plugin{}), plugin.ErrMissingID)
	})

	t.Run("collects plugin routes in order", func(t *testing.T) {
		t.Parallel()

		registry := plugin.NewRegistry()
		require.NoError(t, registry.Register(plugin.Plugin{ID: "a", Routes: []plugin.Route{{Method: "GET", Pattern: "/a"}}}))
		require.NoError(t, registry.Register(plugin.Plugin{ID: "b", Routes: []plugin.Route{{Method: "POST", Pattern: "/b"}}}))

		routes := registry.Routes()
		require.Len(t, routes, 2)
		assert.Equal(t, "/a", routes[0].Pattern)
		assert.Equal(t, "/b", routes[1].Pattern)
	})
}

func TestRegistry_RunBefore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("runs hooks in registration order", func(t *testing.T) {
		t.Parallel()

		var log []string
		registry := plugin.NewRegistry()
		require.NoError(t, registry.Register(plugin.Plugin{
			ID:    "first",
			Hooks: map[plugin.Point][]plugin.Hook{plugin.BeforeSignIn: {recordingHook(&log, "first")}},
		}))
		require.NoError(t, registry.Register(plugin.Plugin{
			ID:    "second",
			Hooks: map[plugin.Point][]plugin.Hook{plugin.BeforeSignIn: {recordingHook(&log, "second")}},
		}))

		pc := plugin.NewContext(&plugin.Request{Operation: "sign_in.email"})
		result, err := registry.RunBefore(ctx, plugin.BeforeSignIn, pc)
		require.NoError(t, err)
		assert.Nil(t, result)
		assert.Equal(t, []string{"first", "second"}, log)
		assert.False(t, pc.ShortCircuited())
	})

	t.Run("short-circuit skips later hooks", func(t *testing.T) {
		t.Parallel()

		var log []string
		registry := plugin.NewRegistry()
		require.NoError(t, registry.Register(plugin.Plugin{
			ID:    "gate",
			Hooks: map[plugin.Point][]plugin.Hook{plugin.BeforeSignIn: {rejectingHook(http.StatusForbidden)}},
		}))
		require.NoError(t, registry.Register(plugin.Plugin{
			ID:    "later",
			Hooks: map[plugin.Point][]plugin.Hook{plugin.BeforeSignIn: {recordingHook(&log, "later")}},
		}))

		pc := plugin.NewContext(&plugin.Request{Operation: "sign_in.email"})
		result, err := registry.RunBefore(ctx, plugin.BeforeSignIn, pc)
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, http.StatusForbidden, result.Status)
		assert.Empty(t, log)
		assert.True(t, pc.ShortCircuited())
	})

	t.Run("hook error carries plugin id", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		registry := plugin.NewRegistry()
		require.NoError(t, registry.Register(plugin.Plugin{
			ID: "flaky",
			Hooks: map[plugin.Point][]plugin.Hook{plugin.BeforeSignUp: {
				func(ctx context.Context, pc *plugin.Context, resp *plugin.Result) (*plugin.Result, error) {
					return nil, boom
				},
			}},
		}))

		pc := plugin.NewContext(&plugin.Request{Operation: "sign_up.email"})
		_, err := registry.RunBefore(ctx, plugin.BeforeSignUp, pc)
		require.Error(t, err)

		var hookErr *plugin.HookError
		require.ErrorAs(t, err, &hookErr)
		assert.Equal(t, "flaky", hookErr.PluginID)
		assert.Equal(t, plugin.BeforeSignUp, hookErr.Point)
		assert.ErrorIs(t, err, boom)
	})
}

func TestRegistry_RunAfter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("transforms response in order", func(t *testing.T) {
		t.Parallel()

		registry := plugin.NewRegistry()
		require.NoError(t, registry.Register(plugin.Plugin{
			ID: "decorator",
			Hooks: map[plugin.Point][]plugin.Hook{plugin.AfterSignIn: {
				func(ctx context.Context, pc *plugin.Context, resp *plugin.Result) (*plugin.Result, error) {
					body := resp.Body.(map[string]any)
					body["decorated"] = true
					return &plugin.Result{Status: resp.Status, Body: body}, nil
				},
			}},
		}))

		pc := plugin.NewContext(&plugin.Request{Operation: "sign_in.email"})
		resp := &plugin.Result{Status: http.StatusOK, Body: map[string]any{"ok": true}}

		got, err := registry.RunAfter(ctx, plugin.AfterSignIn, pc, resp)
		require.NoError(t, err)
		assert.Equal(t, true, got.Body.(map[string]any)["decorated"])
	})

	t.Run("cannot resurrect a short-circuited request", func(t *testing.T) {
		t.Parallel()

		registry := plugin.NewRegistry()
		require.NoError(t, registry.Register(plugin.Plugin{
			ID:    "gate",
			Hooks: map[plugin.Point][]plugin.Hook{plugin.BeforeSignIn: {rejectingHook(http.StatusForbidden)}},
		}))
		require.NoError(t, registry.Register(plugin.Plugin{
			ID: "necromancer",
			Hooks: map[plugin.Point][]plugin.Hook{plugin.AfterSignIn: {
				func(ctx context.Context, pc *plugin.Context, resp *plugin.Result) (*plugin.Result, error) {
					return &plugin.Result{Status: http.StatusOK, Body: "resurrected"}, nil
				},
			}},
		}))

		pc := plugin.NewContext(&plugin.Request{Operation: "sign_in.email"})
		terminal, err := registry.RunBefore(ctx, plugin.BeforeSignIn, pc)
		require.NoError(t, err)
		require.NotNil(t, terminal)

		got, err := registry.RunAfter(ctx, plugin.AfterSignIn, pc, terminal)
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, got.Status)
	})

	t.Run("after-hook error keeps current response", func(t *testing.T) {
		t.Parallel()

		registry := plugin.NewRegistry()
		require.NoError(t, registry.Register(plugin.Plugin{
			ID: "flaky",
			Hooks: map[plugin.Point][]plugin.Hook{plugin.AfterSignIn: {
				func(ctx context.Context, pc *plugin.Context, resp *plugin.Result) (*plugin.Result, error) {
					return nil, errors.New("boom")
				},
			}},
		}))

		pc := plugin.NewContext(&plugin.Request{Operation: "sign_in.email"})
		resp := &plugin.Result{Status: http.StatusOK}

		got, err := registry.RunAfter(ctx, plugin.AfterSignIn, pc, resp)
		require.Error(t, err)
		assert.Equal(t, http.StatusOK, got.Status)
	})
}

func TestContext_Bag(t *testing.T) {
	t.Parallel()

	pc := plugin.NewContext(&plugin.Request{Operation: "x"})

	pc.Set("role", "admin")
	role, ok := pc.GetString("role")
	assert.True(t, ok)
	assert.Equal(t, "admin", role)

	pc.Set("count", 3)
	_, ok = pc.GetString("count")
	assert.False(t, ok)

	pc.Delete("role")
	_, ok = pc.Get("role")
	assert.False(t, ok)
}
