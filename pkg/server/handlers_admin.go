package server

import (
	"net/http"

	"github.com/wsaadi/nova/pkg/version"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "healthy",
		"version":       version.Version,
		"agents_loaded": s.rt.Loader.Count(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	agents := s.rt.Loader.ListAll()
	active := 0
	for _, agent := range agents {
		if agent.Status() == "active" {
			active++
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":        true,
		"agents_total":   len(agents),
		"agents_active":  active,
		"sessions":       s.rt.Sessions.Count(),
		"llm_providers":  s.rt.LLMs.Providers(),
		"uptime_seconds": int64(s.rt.Uptime().Seconds()),
	})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.rt.Loader.Reload(); err != nil {
		writeError(w, http.StatusInternalServerError, "reload failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"agents_loaded": s.rt.Loader.Count(),
	})
}
