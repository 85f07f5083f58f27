package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/example/bank-ledger/internal/ledger"
	"github.com/example/bank-ledger/internal/security"
)

// Response is the envelope returned on every /api route.
type Response struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	Data          any    `json:"data"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, message string, data any) {
	cid := security.CorrelationIDFromContext(r.Context())
	if cid != "" {
		w.Header().Set(security.CorrelationIDHeader, cid)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{
		Success:       true,
		Message:       message,
		Data:          data,
		CorrelationID: cid,
	})
}

// writeError maps a ledger error kind to an HTTP status and writes the
// failure envelope. Unrecognized errors become an opaque 500 so internal
// detail never leaks.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"

	var le *ledger.Error
	if errors.As(err, &le) {
		message = le.Msg
		switch le.Kind {
		case ledger.KindAccountNotFound:
			status = http.StatusNotFound
		case ledger.KindInvalidAmount, ledger.KindInsufficientBalance, ledger.KindInvalidOperation:
			status = http.StatusBadRequest
		case ledger.KindDuplicateKey, ledger.KindConflict:
			status = http.StatusConflict
		case ledger.KindGenerationExhausted:
			status = http.StatusServiceUnavailable
		default:
			status = http.StatusInternalServerError
			message = "internal server error"
		}
	}

	security.WriteJSONError(w, r, status, message)
}
