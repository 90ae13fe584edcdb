// Package handlers agrupa os handlers HTTP do serviço.
package handlers

import (
	"net/http"
)

// Health reports that the process is serving requests.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
