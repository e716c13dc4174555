package handlers

import "net/http"

// Health is the liveness probe mounted at GET /healthz.
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
