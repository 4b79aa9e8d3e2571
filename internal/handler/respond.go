package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/templui/storyline/internal/apperr"
	"github.com/templui/storyline/internal/ctxkeys"
)

// maxJSONBody caps request bodies for JSON endpoints.
const maxJSONBody = 1 << 20

// envelope is the response shape of every endpoint.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

func ok(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

// fail maps err to a status and writes it. Domain errors expose their
// message and payload. Anything else is logged and hidden from the client.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)

	e, isDomain := apperr.As(err)
	if !isDomain {
		slog.ErrorContext(r.Context(), "request failed",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", ctxkeys.RequestID(r.Context()),
		)
		writeJSON(w, status, envelope{Message: "internal server error"})
		return
	}

	body := envelope{Message: e.Error()}
	if len(e.Data) > 0 {
		body.Data = e.Data
	}
	writeJSON(w, status, body)
}

// decode reads a JSON body into dst. Malformed input is a client error.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	err := dec.Decode(dst)
	if errors.Is(err, io.EOF) {
		return apperr.New(apperr.KindMissingField, "request body is required")
	}
	if err != nil {
		return apperr.New(apperr.KindInvalidField, "request body is not valid JSON")
	}
	return nil
}
