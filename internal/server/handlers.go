package server

import (
	"encoding/json"
	"net/http"
)

const rootMessage = "Socket Server Running!"

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(rootMessage))
}

type healthResponse struct {
	Status      string  `json:"status"`
	Connections int     `json:"connections"`
	Uptime      float64 `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{
		Status:      "ok",
		Connections: s.manager.Len(),
		Uptime:      s.clock.Since(s.startTime).Seconds(),
	})
}

// handleWebSocket upgrades the request and hands the connection to the relay.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.manager.Full() {
		http.Error(w, "connection limit reached", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		s.logger.Warn("websocket upgrade failed", "error", err, "origin", r.Header.Get("Origin"))
		return
	}

	if _, err := s.manager.Accept(conn); err != nil {
		s.logger.Warn("connection rejected", "error", err)
	}
}
