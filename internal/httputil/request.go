package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// DefaultBodyLimit caps request bodies unless a route asks for more.
const DefaultBodyLimit = 1 << 20

// ParseJSON decodes a JSON request body into dest, capped at DefaultBodyLimit.
func ParseJSON(w http.ResponseWriter, r *http.Request, dest interface{}) error {
	return ParseJSONLimit(w, r, dest, DefaultBodyLimit)
}

// ParseJSONLimit decodes a JSON request body of at most limit bytes.
// The writer is needed so oversized bodies close the connection properly.
func ParseJSONLimit(w http.ResponseWriter, r *http.Request, dest interface{}, limit int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}
