package plugin

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicatePlugin indicates a plugin ID was registered twice.
	ErrDuplicatePlugin = errors.New("plugin.duplicate_id")

	// ErrMissingID indicates a plugin was registered without an identifier.
	ErrMissingID = errors.New("plugin.missing_id")
)

// HookError reports that a hook aborted the pipeline. It carries the
// originating plugin's identifier and wraps the hook's error.
type HookError struct {
	PluginID string
	Point    Point
	Err      error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("plugin %q hook at %s: %v", e.PluginID, e.Point, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}
