package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jgirmay/circle_realtime/pkg/http/dto"
)

// Error codes
const (
	codeBadRequest = "BAD_REQUEST"
	codeNotFound   = "NOT_FOUND"
	codeConflict   = "CONFLICT"
	codeInternal   = "INTERNAL_ERROR"
)

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes an error response
func writeError(w http.ResponseWriter, statusCode int, message, code string) {
	response := &dto.ErrorResponse{
		Error:     code,
		Message:   message,
		Code:      code,
		Timestamp: time.Now().UTC(),
	}
	writeJSON(w, statusCode, response)
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
