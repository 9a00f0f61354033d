package web

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// handleDashboard returns the current state, loading it first when the view
// has never produced a result.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	state := s.view.Snapshot()
	if state.UpdatedAt.IsZero() && state.Err == nil {
		if err := s.view.Load(r.Context()); err != nil {
			s.logger.Warn("on-demand dashboard load failed", zap.Error(err))
		}
		state = s.view.Snapshot()
	}

	s.writeJSON(w, http.StatusOK, newDashboardResponse(state))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	if err := s.view.Refresh(r.Context()); err != nil {
		s.logger.Warn("dashboard refresh failed", zap.Error(err))
		status = http.StatusBadGateway
	}

	s.writeJSON(w, status, newDashboardResponse(s.view.Snapshot()))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("write json response", zap.Error(err))
	}
}
