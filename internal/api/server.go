// Package api is the HTTP caller layer in front of the exchange core:
// request validation, the symbol allow-list and response shaping.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"exchange_core/internal/infra"
	"exchange_core/internal/infra/notify"
	"exchange_core/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// UserHeader carries the authenticated user id. Authentication itself
// happens in front of this service.
const UserHeader = "X-User-ID"

type contextKey string

const userIDKey contextKey = "user_id"

// Server handles REST requests, websocket subscriptions and metrics.
type Server struct {
	exchange *service.Exchange
	market   infra.MarketConfig
	hub      *notify.Hub
	metrics  http.Handler
	router   *mux.Router
	validate *validator.Validate
	logger   *slog.Logger
}

// NewServer creates the HTTP surface. metrics may be nil.
func NewServer(exchange *service.Exchange, market infra.MarketConfig, hub *notify.Hub, metrics http.Handler) *Server {
	s := &Server{
		exchange: exchange,
		market:   market,
		hub:      hub,
		metrics:  metrics,
		router:   mux.NewRouter(),
		validate: validator.New(),
		logger:   slog.Default().With("module", "api"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(requireUser)

	api.HandleFunc("/profile", s.handleProfile).Methods("GET")
	api.HandleFunc("/orders", s.handleListOrders).Methods("GET")
	api.HandleFunc("/orders", s.handlePlaceOrder).Methods("POST")
	api.HandleFunc("/orders/{id:[0-9]+}/cancel", s.handleCancelOrder).Methods("POST")

	if s.hub != nil {
		s.router.Handle("/ws", requireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.hub.ServeWS(w, r, userID(r))
		}))).Methods("GET")
	}
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods("GET")
	}
	s.router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")
}

// Handler returns the router wrapped with CORS.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", UserHeader},
	})
	return c.Handler(s.router)
}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(r.Header.Get(UserHeader), 10, 64)
		if err != nil || id == 0 {
			respondError(w, http.StatusUnauthorized, "Unauthenticated.")
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userID(r *http.Request) uint64 {
	id, _ := r.Context().Value(userIDKey).(uint64)
	return id
}

type response struct {
	Status  string            `json:"status"`
	Message string            `json:"message,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
	Data    interface{}       `json:"data,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, response{Status: "error", Message: message})
}
