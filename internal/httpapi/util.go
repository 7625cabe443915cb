package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func readBodyJSON(r *http.Request, maxBytes int64, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

// siteID resolves the site scope from query or header.
func siteID(r *http.Request) string {
	if s := r.URL.Query().Get("site_id"); s != "" {
		return s
	}
	return r.Header.Get("X-Site-Id")
}

// callerUID resolves the explicit caller identity.
// Core operations never read ambient auth state; the uid travels with the request.
func callerUID(r *http.Request) string {
	return r.Header.Get("X-User-Id")
}
