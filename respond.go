package authkit

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/authkit/pkg/plugin"
)

// errorBody is the JSON shape of every error response. The message is a
// stable machine code, never the internal error text.
type errorBody struct {
	Error string `json:"error"`
}

func (e *Engine) respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		e.logger.Error("failed to encode response", slog.Any("error", err))
	}
}

func (e *Engine) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := httpStatus(err)
	if status >= http.StatusInternalServerError {
		e.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
	}
	e.respondJSON(w, status, errorBody{Error: code})
}

// respondResult renders a plugin pipeline result.
func (e *Engine) respondResult(w http.ResponseWriter, result *plugin.Result) {
	for key, values := range result.Headers {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	status := result.Status
	if status == 0 {
		status = http.StatusOK
	}
	e.respondJSON(w, status, result.Body)
}
