package security

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the failure shape of the service-wide response
// envelope: success is always false and data always null.
type ErrorResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	Data          any    `json:"data"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// WriteJSONError writes an envelope-shaped failure with the given status
// and message, echoing the request's correlation id.
func WriteJSONError(w http.ResponseWriter, r *http.Request, status int, message string) {
	cid := CorrelationIDFromContext(r.Context())
	if cid != "" {
		w.Header().Set(CorrelationIDHeader, cid)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Success:       false,
		Message:       message,
		CorrelationID: cid,
	})
}
