package monitor

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/GoSim-25-26J-441/simtune/pkg/logger"
	"github.com/GoSim-25-26J-441/simtune/pkg/models"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPingPeriod = 30 * time.Second
)

// Stream message types
const (
	MessageProgress   = "progress"
	MessageEvaluation = "evaluation"
	MessageFinished   = "finished"
)

// StreamMessage is one websocket frame of /v1/progress/stream
type StreamMessage struct {
	Type       string             `json:"type"`
	Progress   *Progress          `json:"progress,omitempty"`
	Evaluation *models.Evaluation `json:"evaluation,omitempty"`
}

type HTTPServer struct {
	mux      *http.ServeMux
	store    *Store
	upgrader websocket.Upgrader
	log      *slog.Logger
}

// NewHTTPServer serves the progress endpoints. metrics, when non-nil, is
// mounted at /metrics.
func NewHTTPServer(store *Store, metrics http.Handler, log *slog.Logger) *HTTPServer {
	s := &HTTPServer{
		mux:   http.NewServeMux(),
		store: store,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log: logger.Or(log).With("component", "http"),
	}

	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/v1/progress", s.handleProgress)
	s.mux.HandleFunc("/v1/progress/history", s.handleHistory)
	s.mux.HandleFunc("/v1/progress/stream", s.handleStream)
	s.mux.HandleFunc("/v1/run:stop", s.handleStop)
	if metrics != nil {
		s.mux.Handle("/metrics", metrics)
	}

	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.mux
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleProgress handles GET /v1/progress
func (s *HTTPServer) handleProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	p, err := s.store.Progress()
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

// handleHistory handles GET /v1/progress/history?limit=N
func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	if _, err := s.store.Progress(); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"evaluations": s.store.History(limit),
	})
}

// handleStop handles POST /v1/run:stop
func (s *HTTPServer) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.store.Stop(); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.log.Info("stop requested", "remote", r.RemoteAddr)
	p, _ := s.store.Progress()
	s.writeJSON(w, http.StatusAccepted, p)
}

// handleStream handles GET /v1/progress/stream (websocket)
func (s *HTTPServer) handleStream(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.Progress(); err != nil {
		s.writeStoreError(w, err)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, cancel := s.store.Subscribe(0)
	defer cancel()

	// Reads only detect the peer going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if p, err := s.store.Progress(); err == nil {
		if err := s.writeFrame(conn, StreamMessage{Type: MessageProgress, Progress: p}); err != nil {
			return
		}
	}

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				p, _ := s.store.Progress()
				_ = s.writeFrame(conn, StreamMessage{Type: MessageFinished, Progress: p})
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"),
					time.Now().Add(streamWriteWait))
				return
			}
			if err := s.writeFrame(conn, StreamMessage{Type: MessageEvaluation, Evaluation: &ev}); err != nil {
				return
			}
		}
	}
}

func (s *HTTPServer) writeFrame(conn *websocket.Conn, msg StreamMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	if err := conn.WriteJSON(msg); err != nil {
		s.log.Debug("websocket write failed", "error", err)
		return err
	}
	return nil
}

func (s *HTTPServer) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNoActiveRun):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrRunTerminal):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("failed to encode JSON response", "error", err)
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"error": message,
	})
}
