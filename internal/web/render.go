package web

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/relaynote/relaynote/internal/errors"
)

// writeJSON renders v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

// writeError renders an error as a JSON error envelope. SyncErrors keep
// their code and status; anything else is reported as a generic internal
// error so SQL text and file paths never leak to clients.
func writeError(w http.ResponseWriter, err error) {
	sErr, ok := err.(*errors.SyncError)
	if !ok {
		sErr = errors.NewInternal(nil)
	}

	errorObj := map[string]any{
		"code":    sErr.Code,
		"message": sErr.Message,
		"status":  sErr.Status,
	}
	if sErr.Code != errors.ErrInternal && sErr.Details != nil {
		errorObj["details"] = sErr.Details
	}

	writeJSON(w, sErr.Status, map[string]any{"error": errorObj})
}
