package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// writeError writes the API's error envelope. Handlers use the same shape.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"message": message,
	})
	if err != nil {
		slog.Error("failed to write error response", "error", err)
	}
}
