package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"easel/internal/config"
	"easel/internal/logging"
	"easel/internal/notify"
	"easel/internal/orchestrator"
	"easel/internal/question"
	"easel/internal/transcript"
)

// apiServer exposes a read-only JSON view of the engine for an external UI.
// Disabled when no bind address is configured.
type apiServer struct {
	bind   string
	logger *slog.Logger
	engine *Engine

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, e *Engine, logger *slog.Logger) *apiServer {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		engine: e,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", srv.handleStatus)
	mux.HandleFunc("/api/queue", srv.handleQueue)
	mux.HandleFunc("/api/toasts", srv.handleToasts)
	mux.HandleFunc("/api/transcript", srv.handleTranscript)
	mux.HandleFunc("/api/chat", srv.handleChat)
	mux.HandleFunc("/api/question", srv.handleQuestion)
	mux.HandleFunc("/api/question/answer", srv.handleAnswer)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.engine.Status()
	if health, err := s.engine.ServerHealth(r.Context()); err == nil {
		status.ServerStatus = health.Status
		status.ServerVersion = health.Version
	} else {
		status.ServerStatus = "unreachable"
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *apiServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.engine.Queue())
}

func (s *apiServer) handleToasts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	payload := struct {
		Toasts       []notify.Toast `json:"toasts"`
		RecentErrors []string       `json:"recent_errors"`
	}{
		Toasts:       s.engine.Toasts(),
		RecentErrors: s.engine.RecentErrors(),
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleTranscript(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	entries, err := s.engine.Transcript(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, struct {
		Entries []transcript.Entry `json:"entries"`
	}{Entries: entries})
}

func (s *apiServer) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.Message) == "" {
		s.writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if err := s.engine.SendMessage(r.Context(), payload.Message); err != nil {
		if errors.Is(err, orchestrator.ErrBusy) {
			s.writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) handleQuestion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q, ok := s.engine.PendingQuestion()
	s.writeJSON(w, http.StatusOK, struct {
		Pending  bool              `json:"pending"`
		Question question.Question `json:"question,omitempty"`
	}{Pending: ok, Question: q})
}

func (s *apiServer) handleAnswer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var payload struct {
		Answer  string `json:"answer"`
		Dismiss bool   `json:"dismiss"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	var resolved bool
	if payload.Dismiss {
		resolved = s.engine.DismissQuestion()
	} else {
		if strings.TrimSpace(payload.Answer) == "" {
			s.writeError(w, http.StatusBadRequest, "answer is required")
			return
		}
		resolved = s.engine.AnswerQuestion(payload.Answer)
	}
	if !resolved {
		s.writeError(w, http.StatusNotFound, "no question pending")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String("component", "api-server"))
	}
	return logging.NewNop()
}
