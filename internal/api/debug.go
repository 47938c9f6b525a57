package api

import (
	"net/http"
	"time"

	"slotbook/internal/buildinfo"
)

// DebugJSON reports build info and the effective non-secret settings.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"build":    buildinfo.Info(),
		"time":     time.Now().UTC().Format(time.RFC3339),
		"uptime":   time.Since(s.started).Round(time.Second).String(),
		"settings": s.Settings,
		"zones":    len(s.Booking.Zones()),
	})
}
