package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/anvilops/flowline/pkg/schema"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v) //nolint:errcheck
	}
}

// writeError maps FlowError codes onto HTTP status codes. Unknown errors
// become opaque 500s.
func writeError(w http.ResponseWriter, err error) {
	var fe *schema.FlowError
	if !errors.As(err, &fe) {
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Code:    schema.ErrCodeExecution,
			Message: "internal error",
		})
		return
	}

	status := http.StatusInternalServerError
	switch fe.Code {
	case schema.ErrCodeValidation:
		status = http.StatusBadRequest
	case schema.ErrCodeNotFound:
		status = http.StatusNotFound
	case schema.ErrCodeConflict, schema.ErrCodeInvalidTransition:
		status = http.StatusConflict
	case schema.ErrCodeRetryExhausted, schema.ErrCodeExecution:
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, errorBody{
		Code:    fe.Code,
		Message: fe.Message,
		Details: fe.Details,
	})
}
