package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/akshata29/aisearchmm-sub000/internal/backend"
	"github.com/akshata29/aisearchmm-sub000/internal/chat"
	"github.com/akshata29/aisearchmm-sub000/internal/slack"
	"github.com/akshata29/aisearchmm-sub000/internal/stream"
)

// Asker mirrors the bot's answering dependency so the HTTP surface and
// the mention pipeline share one backend client.
type Asker interface {
	Ask(ctx context.Context, question string, opts backend.Options) (backend.Answer, error)
}

type Server struct {
	router *chi.Mux
	port   int
	asker  Asker
	opts   backend.Options
	logger *slog.Logger
}

func NewServer(port int, asker Asker, opts backend.Options, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		port:   port,
		asker:  asker,
		opts:   opts,
		logger: logger,
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/searchbot/status", s.status)
	router.Post("/api/v1/searchbot/ask", s.ask)

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"agent":  "searchbot",
		"status": "ready",
	})
}

type askRequest struct {
	Question string         `json:"question"`
	History  []chat.Message `json:"history,omitempty"`
}

type askResponse struct {
	Answer    string                `json:"answer"`
	Citations []chat.CitationRecord `json:"citations,omitempty"`
	Sources   []string              `json:"sources,omitempty"`
}

// ask answers one question synchronously through the retrying client,
// the same path the mention pipeline takes.
func (s *Server) ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question required"})
		return
	}

	opts := s.opts
	opts.History = req.History

	answer, err := s.asker.Ask(r.Context(), question, opts)
	if err != nil {
		s.logger.Error("ask failed", "error", err)
		status := http.StatusBadGateway
		if errors.Is(err, stream.ErrTimeout) {
			status = http.StatusGatewayTimeout
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	text, sources := slack.FormatAnswer(answer.Text, answer.Citations)
	writeJSON(w, http.StatusOK, askResponse{
		Answer:    text,
		Citations: answer.Citations,
		Sources:   sources,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
