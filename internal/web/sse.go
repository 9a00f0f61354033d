package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const sseHeartbeatInterval = 20 * time.Second

// handleStream pushes the full state as an SSE "dashboard" event on connect
// and after every change.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	changes, unsubscribe := s.view.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// comment heartbeats keep proxies from closing an idle stream
	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	var seq uint64
	send := func() error {
		payload, err := json.Marshal(newDashboardResponse(s.view.Snapshot()))
		if err != nil {
			return err
		}
		seq++
		fmt.Fprintf(w, "id: %d\n", seq)
		fmt.Fprintf(w, "event: dashboard\n")
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
		return nil
	}

	if err := send(); err != nil {
		s.logger.Error("dashboard stream initial send", zap.Error(err))
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case _, ok := <-changes:
			if !ok {
				return
			}
			if err := send(); err != nil {
				s.logger.Warn("dashboard stream send", zap.Error(err))
			}
		}
	}
}
