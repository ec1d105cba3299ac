package server

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wsaadi/nova/pkg/adl"
)

// agentSummary is the listing shape for one agent.
type agentSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
	Icon        string `json:"icon,omitempty"`
	Category    string `json:"category,omitempty"`
	Status      string `json:"status"`
	Workflows   int    `json:"workflows"`
	Tools       int    `json:"tools"`
}

func summarize(agent *adl.Agent) agentSummary {
	return agentSummary{
		ID:          agent.ID(),
		Name:        agent.Name(),
		Slug:        agent.Slug,
		Description: agent.Doc.Identity.Description,
		Icon:        agent.Doc.Identity.Icon,
		Category:    agent.Doc.Identity.Category,
		Status:      string(agent.Status()),
		Workflows:   len(agent.Doc.Workflows.Workflows),
		Tools:       len(agent.Doc.Tools.Tools),
	}
}

// resolveAgent looks an agent up by id or slug, writing the 404 itself.
func (s *Server) resolveAgent(w http.ResponseWriter, r *http.Request) (*adl.Agent, bool) {
	ref := chi.URLParam(r, "agentRef")
	agent, ok := s.rt.Loader.Resolve(ref)
	if !ok {
		writeError(w, http.StatusNotFound, "agent not found: "+ref)
		return nil, false
	}
	return agent, true
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	var agents []*adl.Agent
	if category := r.URL.Query().Get("category"); category != "" {
		agents = s.rt.Loader.ListByCategory(category)
	} else {
		agents = s.rt.Loader.ListActive()
	}

	summaries := make([]agentSummary, 0, len(agents))
	for _, agent := range agents {
		summaries = append(summaries, summarize(agent))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"agents":  summaries,
		"count":   len(summaries),
	})
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, ok := s.resolveAgent(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"agent":     summarize(agent),
		"metadata":  agent.Doc.Metadata,
		"loaded_at": agent.LoadedAt,
	})
}

func (s *Server) handleGetDefinition(w http.ResponseWriter, r *http.Request) {
	agent, ok := s.resolveAgent(w, r)
	if !ok {
		return
	}

	// The raw mapping preserves opaque sections (ui, security) verbatim.
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"definition": agent.Doc.Raw,
	})
}

func (s *Server) handleGetUI(w http.ResponseWriter, r *http.Request) {
	agent, ok := s.resolveAgent(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"ui":      agent.Doc.UI,
	})
}

// handleImportAgent validates and registers an ADL document posted as the
// request body. Schema or reference problems are a 400, not a skip.
func (s *Server) handleImportAgent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 2<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body: "+err.Error())
		return
	}

	agent, err := s.rt.Loader.Register(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "import rejected: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"agent":   summarize(agent),
	})
}
