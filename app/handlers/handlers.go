// Package handlers has small handlers that don't need the App.
package handlers

import (
	"io"
	"net/http"
)

// HandleRobotsTXT keeps crawlers off the API entirely.
func HandleRobotsTXT(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	for _, line := range []string{"User-agent: *", "Disallow: /"} {
		_, _ = io.WriteString(w, line+"\r\n")
	}
}
