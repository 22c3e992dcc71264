// Package web exposes the providers over HTTP and WebSocket.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"cryptoverse/internal/domain"
	"cryptoverse/internal/infra"
	"cryptoverse/internal/service"
)

// MarketViewer renders the market table
type MarketViewer interface {
	View(search string) service.MarketView
}

// HistoryController renders the price chart and accepts chart input
type HistoryController interface {
	View() service.HistoryView
	SetWindow(days int) error
	Hover(ts int64) bool
	Leave()
}

// Accounts handles the sign-up and sign-in forms
type Accounts interface {
	Register(ctx context.Context, req service.RegisterRequest) (string, error)
	Login(ctx context.Context, req service.LoginRequest) (string, error)
}

// Deps are the collaborators of the server. Icons and Metrics may be nil.
type Deps struct {
	Market   MarketViewer
	History  HistoryController
	Accounts Accounts
	Icons    domain.IconSource
	Metrics  *infra.Metrics
}

// Server serves the landing page data API.
type Server struct {
	deps   Deps
	hub    *Hub
	http   *http.Server
	logger *slog.Logger
}

// NewServer creates a server listening on addr
func NewServer(addr string, deps Deps) *Server {
	s := &Server{
		deps:   deps,
		hub:    NewHub(deps.Market, deps.History, deps.Metrics),
		logger: slog.Default().With("module", "web"),
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Hub returns the WebSocket hub for wiring provider change notifications
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/market", s.handleMarket)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("PUT /api/history/window", s.handleWindow)
	mux.HandleFunc("POST /api/history/hover", s.handleHover)
	mux.HandleFunc("DELETE /api/history/hover", s.handleLeave)
	mux.HandleFunc("GET /api/icons/{id}", s.handleIcon)
	mux.HandleFunc("POST /api/register", s.handleRegister)
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("GET /api/metrics", s.handleMetrics)
	mux.Handle("GET /ws", s.hub)
	return s.logRequests(mux)
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("🌐 Web server started", slog.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown closes WebSocket clients and drains HTTP requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.http.Shutdown(ctx)
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Market.View(r.URL.Query().Get("q")))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.History.View())
}

type windowRequest struct {
	Days int `json:"days"`
}

func (s *Server) handleWindow(w http.ResponseWriter, r *http.Request) {
	var req windowRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.deps.History.SetWindow(req.Days); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.deps.History.View())
}

type hoverRequest struct {
	Timestamp int64 `json:"timestamp"`
}

func (s *Server) handleHover(w http.ResponseWriter, r *http.Request) {
	var req hoverRequest
	if !decode(w, r, &req) {
		return
	}
	if !s.deps.History.Hover(req.Timestamp) {
		writeError(w, http.StatusConflict, "no price data to hover")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.History.View())
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	s.deps.History.Leave()
	writeJSON(w, http.StatusOK, s.deps.History.View())
}

func (s *Server) handleIcon(w http.ResponseWriter, r *http.Request) {
	if s.deps.Icons == nil {
		http.NotFound(w, r)
		return
	}

	id := r.PathValue("id")
	data, ok := s.deps.Icons.Get(id)
	if !ok {
		imageURL := s.imageURL(id)
		if imageURL == "" {
			http.NotFound(w, r)
			return
		}
		var err error
		if data, err = s.deps.Icons.Fetch(r.Context(), id, imageURL); err != nil {
			s.logger.Warn("Icon fetch failed", slog.String("id", id), slog.Any("error", err))
			writeError(w, http.StatusBadGateway, "icon unavailable")
			return
		}
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Write(data)
}

// imageURL looks up the upstream icon of id in the current snapshot
func (s *Server) imageURL(id string) string {
	for _, row := range s.deps.Market.View("").Rows {
		if row.ID == id {
			return row.ImageURL
		}
	}
	return ""
}

type messageResponse struct {
	Message string `json:"message"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterRequest
	if !decode(w, r, &req) {
		return
	}
	msg, err := s.deps.Accounts.Register(r.Context(), req)
	s.writeAccountResult(w, msg, err)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req service.LoginRequest
	if !decode(w, r, &req) {
		return
	}
	msg, err := s.deps.Accounts.Login(r.Context(), req)
	s.writeAccountResult(w, msg, err)
}

func (s *Server) writeAccountResult(w http.ResponseWriter, msg string, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, messageResponse{Message: msg})
	case service.IsValidationError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	m := s.deps.Metrics
	if m == nil {
		m = infra.GlobalMetrics
	}
	writeJSON(w, http.StatusOK, m.Snapshot())
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("Request served",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("elapsed", time.Since(start)))
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
