package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/moussadar/moussadar/internal/portal/schema"
)

// envelope wraps every route response.
type envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
	Error   any  `json:"error,omitempty"`
	Count   *int `json:"count,omitempty"`
}

// faultBody is the error object used by the server shell: unknown routes,
// recovered panics, oversized bodies and rate limiting.
type faultBody struct {
	Message   string `json:"message"`
	Status    int    `json:"status"`
	Timestamp string `json:"timestamp"`
	Stack     string `json:"stack,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func writeList[T any](w http.ResponseWriter, items []T) {
	n := len(items)
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: items, Count: &n})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Error: message})
}

func writeFault(w http.ResponseWriter, status int, message, stack string) {
	writeJSON(w, status, envelope{
		Success: false,
		Error: faultBody{
			Message:   message,
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Stack:     stack,
		},
	})
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// writeDecodeError answers a body decoding failure. Oversized bodies get
// 413, everything else 400.
func writeDecodeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeFault(w, http.StatusRequestEntityTooLarge, "Request body too large", "")
		return
	}
	writeError(w, http.StatusBadRequest, "Invalid JSON body")
}

// langParam reads ?lang=, defaulting to French. It answers 400 itself and
// reports false on an unsupported value.
func langParam(w http.ResponseWriter, r *http.Request) (schema.Lang, bool) {
	lang, err := schema.ParseLang(r.URL.Query().Get("lang"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unsupported language")
		return "", false
	}
	return lang, true
}
