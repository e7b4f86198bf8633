package httpmw

import (
	"encoding/json"
	"net/http"
)

// WriteJSON sends v with status as an uncacheable JSON response.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
