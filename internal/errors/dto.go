package errors

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrorResponse represents the standard error response structure
type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Display       string         `json:"message"`
	InternalError string         `json:"internal_error,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
}

// NewErrorResponse builds the wire representation of an error: user facing
// hints become the display message, reportable details are unpacked from the
// safe detail payloads attached by the builder.
func NewErrorResponse(err error) *ErrorResponse {
	if err == nil {
		return nil
	}

	resp := &ErrorResponse{
		Success: false,
		Error: ErrorDetail{
			InternalError: err.Error(),
		},
	}

	hints := errors.GetAllHints(err)
	if len(hints) > 0 {
		resp.Error.Display = hints[0]
	} else {
		resp.Error.Display = err.Error()
	}

	for _, d := range errors.GetAllSafeDetails(err) {
		for _, payload := range d.SafeDetails {
			idx := strings.Index(payload, "__json__:")
			if idx < 0 {
				continue
			}
			var details map[string]any
			if jsonErr := json.Unmarshal([]byte(payload[idx+len("__json__:"):]), &details); jsonErr == nil {
				resp.Error.Details = details
			}
		}
	}

	return resp
}
