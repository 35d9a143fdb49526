// Package server is the ingestion front door: transcription fragments
// arrive over an HTTP webhook or a WebSocket stream and are fed to the
// session buffer manager. The server acknowledges buffering only; all
// memory work happens downstream of the pause-based finalization.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/harkhq/hark/session"
)

// Config configures the server.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string
}

// Frame is one ingestion message, shared by the webhook and the
// WebSocket stream.
type Frame struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id,omitempty"`
	Text      string `json:"text"`

	// Final forces immediate finalization after this fragment, used by
	// clients that know the utterance ended (e.g. on hangup).
	Final bool `json:"final,omitempty"`
}

// Server exposes the ingestion endpoints.
type Server struct {
	sessions *session.Manager
	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

// New creates a server feeding the given session manager.
func New(cfg Config, sessions *session.Manager) *Server {
	s := &Server{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Transcription feeds come from trusted backends, not
			// browsers; origin checking is a deployment concern.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/webhook", s.handleWebhook)
	mux.HandleFunc("/finalize", s.handleFinalize)
	mux.HandleFunc("/ws", s.handleWS)

	s.httpSrv = &http.Server{Addr: cfg.Addr, Handler: mux}
	return s
}

// Handler exposes the route mux, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	log.Printf("[SERVER] Listening on %s", s.httpSrv.Addr)
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleWebhook ingests a single fragment per POST, mirroring the
// transcription provider's webhook contract.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var frame Frame
	if err := json.NewDecoder(r.Body).Decode(&frame); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed JSON body"})
		return
	}

	if err := s.ingest(frame); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "buffered",
		"session_id": frame.SessionID,
	})
}

// handleFinalize is the explicit finalize signal for session teardown.
func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "session_id is required"})
		return
	}

	s.sessions.Finalize(req.SessionID)
	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "finalized",
		"session_id": req.SessionID,
	})
}

// handleWS streams frames over a WebSocket for live transcription
// feeds. Malformed frames get an error message back; the stream stays
// open until the client closes it.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[SERVER] WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[SERVER] WebSocket read error: %v", err)
			}
			return
		}

		if err := s.ingest(frame); err != nil {
			conn.WriteJSON(map[string]string{"error": err.Error()})
			continue
		}
		conn.WriteJSON(map[string]string{
			"status":     "buffered",
			"session_id": frame.SessionID,
		})
	}
}

func (s *Server) ingest(frame Frame) error {
	if err := s.sessions.Ingest(frame.SessionID, frame.UserID, frame.Text); err != nil {
		return err
	}
	if frame.Final {
		s.sessions.Finalize(frame.SessionID)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
