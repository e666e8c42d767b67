package plugin

import (
	"net/http"

	"github.com/google/uuid"
)

// Request is the pipeline's view of the operation under processing.
type Request struct {
	// Operation names the core operation, e.g. "sign_in.email".
	Operation string

	// HTTP is the inbound request; nil when the pipeline runs outside an
	// HTTP context (tests, embedded callers).
	HTTP *http.Request

	// Payload carries the parsed wire fields relevant to hooks
	// (email, provider, ...). Secrets are never placed here.
	Payload map[string]any
}

// Context is the ephemeral, request-scoped bag shared across the hooks of a
// single pipeline run. It is never persisted and never shared between
// requests. Hooks of one run execute sequentially, so no locking is done.
type Context struct {
	Request *Request

	// UserID is set by the engine once the subject is known
	// (authenticated operations).
	UserID uuid.UUID

	shortCircuited bool
	values         map[string]any
}

// NewContext creates a pipeline context for one request.
func NewContext(req *Request) *Context {
	return &Context{
		Request: req,
		values:  make(map[string]any),
	}
}

// ShortCircuited reports whether a before-hook terminated the run.
func (c *Context) ShortCircuited() bool {
	return c != nil && c.shortCircuited
}

// Get retrieves a value from the context bag.
func (c *Context) Get(key string) (any, bool) {
	if c == nil || c.values == nil {
		return nil, false
	}
	v, ok := c.values[key]
	return v, ok
}

// GetString retrieves a string value from the context bag.
func (c *Context) GetString(key string) (string, bool) {
	v, ok := c.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Set stores a value in the context bag.
func (c *Context) Set(key string, value any) {
	if c == nil {
		return
	}
	if c.values == nil {
		c.values = make(map[string]any)
	}
	c.values[key] = value
}

// Delete removes a value from the context bag.
func (c *Context) Delete(key string) {
	if c == nil || c.values == nil {
		return
	}
	delete(c.values, key)
}
