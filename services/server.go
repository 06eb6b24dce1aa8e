package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/rehearsal-ai/backend/models"
	"github.com/rehearsal-ai/backend/repository"
	ws "github.com/rehearsal-ai/backend/websocket"
)

// Server holds all server dependencies
type Server struct {
	config           *Config
	store            repository.Store
	pricing          *PricingTable
	providers        *ProviderRegistry
	locks            *SessionLocks
	mediaStorage     *MediaStorage
	tracker          *TokenTracker
	evaluator        *EvaluationManager
	sessions         *SessionManager
	interviewer      *AIInterviewer
	comms            *CommunicationManager
	reaper           *SessionReaper
	authService      *AuthService
	authEndpoints    *AuthEndpoints
	sessionEndpoints *SessionEndpoints
	resumeEndpoints  *ResumeEndpoints
	websocketHandler *WebSocketHandler
	wsHub            *ws.Hub
	upgrader         websocket.Upgrader
}

// NewServer creates a new server instance
func NewServer(config *Config) *Server {
	return &Server{
		config: config,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return checkOrigin(r, config.WebSocket.AllowedOrigins)
			},
		},
	}
}

// SetStore sets the persistence layer. Callers wrap the concrete store
// in the retry decorator before handing it over.
func (s *Server) SetStore(store repository.Store) {
	s.store = store
}

// InitializeServices initializes all server services
func (s *Server) InitializeServices() error {
	if s.store == nil {
		slog.Warn("Store not configured, falling back to the in-memory store")
		s.store = repository.NewStore(repository.NewMemoryStore(), s.config.Store.RetryPolicy())
	}

	s.pricing = NewPricingTable()
	s.providers = NewProviderRegistry(s.config.AI, s.pricing)
	s.locks = NewSessionLocks()
	s.mediaStorage = NewMediaStorage(s.config.Media.Root)
	s.tracker = NewTokenTracker(s.store, s.pricing)
	slog.Info("Provider registry initialized", "pairings", len(s.pricing.Pairings()))

	s.evaluator = NewEvaluationManager(s.store, s.providers, s.tracker, s.locks, s.config.AI)
	s.sessions = NewSessionManager(s.store, s.locks, s.pricing, s.evaluator)
	s.interviewer = NewAIInterviewer(s.store, s.providers, s.tracker, s.locks, s.config.AI)
	s.comms = NewCommunicationManager(s.store, s.mediaStorage, s.locks)
	s.reaper = NewSessionReaper(s.sessions, s.config.Sessions)
	slog.Info("Session services initialized", "media_root", s.config.Media.Root)

	// Initialize authentication services
	if s.config.JWT.Secret != "" {
		s.authService = NewAuthService(s.store, s.config.JWT.Secret)
		s.authEndpoints = NewAuthEndpoints(s.authService)
		slog.Info("Authentication service initialized")
	} else {
		slog.Warn("JWT secret not configured, protected routes are disabled")
	}

	s.sessionEndpoints = NewSessionEndpoints(s.sessions, s.interviewer, s.comms, s.evaluator, s.tracker)
	s.resumeEndpoints = NewResumeEndpoints(s.store)
	s.websocketHandler = NewWebSocketHandler(s.sessions, s.interviewer, s.comms)

	// Initialize WebSocket hub
	s.wsHub = ws.NewHub()
	go s.wsHub.Run()

	return nil
}

// SetupRoutes configures all HTTP routes
func (s *Server) SetupRoutes() *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health endpoint
	r.Get("/health", s.healthHandler)

	// API v1 route group
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.apiV1Handler)
		r.Get("/capabilities", s.capabilitiesHandler)

		// WebSocket route (protected)
		if s.authService != nil {
			r.Group(func(r chi.Router) {
				r.Use(s.authService.Middleware)
				r.Get("/ws", s.websocketHandlerFunc)
			})
		} else {
			r.Get("/ws", s.websocketHandlerFunc)
		}

		// Authentication routes
		if s.authEndpoints != nil {
			r.Route("/auth", func(r chi.Router) {
				// Public auth routes (no middleware)
				r.Post("/login", s.authEndpoints.LoginHandler)
				r.Post("/signup", s.authEndpoints.SignupHandler)
				r.Post("/refresh", s.authEndpoints.RefreshHandler)
				r.Post("/logout", s.authEndpoints.LogoutHandler)

				// Protected auth routes (with middleware)
				r.Group(func(r chi.Router) {
					r.Use(s.authService.Middleware)
					r.Get("/me", s.authEndpoints.MeHandler)
				})
			})
		}

		// Session and resume routes (protected)
		if s.authService != nil {
			r.Group(func(r chi.Router) {
				r.Use(s.authService.Middleware)
				s.sessionEndpoints.RegisterRoutes(r)
				s.resumeEndpoints.RegisterRoutes(r)
			})
		}
	})

	return r
}

// Start starts the HTTP server and the idle-session reaper
func (s *Server) Start() {
	port := s.config.Server.Port
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: s.SetupRoutes(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go s.reaper.Run(ctx)

	// Graceful shutdown
	go func() {
		slog.Info("Starting server", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	<-ctx.Done()

	slog.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server exited")
}

// checkOrigin validates the origin of WebSocket connections to prevent CSRF attacks
func checkOrigin(r *http.Request, allowedOriginsStr string) bool {
	origin := r.Header.Get("Origin")

	// If no allowed origins are configured, deny all requests for security
	if allowedOriginsStr == "" {
		slog.Warn("WebSocket connection rejected: no allowed origins configured", "origin", origin)
		return false
	}

	// Parse allowed origins (comma-separated list)
	allowedOrigins := strings.Split(allowedOriginsStr, ",")

	// Trim whitespace from origins
	for i := range allowedOrigins {
		allowedOrigins[i] = strings.TrimSpace(allowedOrigins[i])
	}

	// Check if origin is in allowed list
	for _, allowed := range allowedOrigins {
		if allowed == origin {
			slog.Info("WebSocket connection accepted", "origin", origin)
			return true
		}
	}

	slog.Warn("WebSocket connection rejected: origin not allowed", "origin", origin, "allowed_origins", allowedOriginsStr)
	return false
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	storeStatus := "up"

	if err := s.store.HealthCheck(r.Context()); err != nil {
		status = "degraded"
		storeStatus = "down"
		slog.Error("Store health check failed", "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"` + status + `","store":"` + storeStatus + `"}`))

	slog.Info("Health check", "status", status, "store", storeStatus)
}

func (s *Server) apiV1Handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"message":"API v1","version":"1.0.0"}`))

	slog.Info("API v1 accessed")
}

// capabilitiesHandler lists what sessions can be configured with: the
// recognized provider/model pairings and the known communication modes.
func (s *Server) capabilitiesHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"provider_models":     s.pricing.Pairings(),
		"communication_modes": models.KnownModes,
	})
}

func (s *Server) websocketHandlerFunc(w http.ResponseWriter, r *http.Request) {
	// Get user from context (set by auth middleware)
	user := CurrentUser(r)
	if user == nil {
		slog.Error("WebSocket connection failed - user not found in context")
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	// The socket is bound to one existing session owned by the caller
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		slog.Error("WebSocket connection requires session_id parameter")
		http.Error(w, "Session ID is required", http.StatusBadRequest)
		return
	}

	session, err := s.sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		slog.Error("Failed to load session for WebSocket", "error", err, "session_id", sessionID)
		writeServiceError(w, err)
		return
	}
	if session == nil || session.UserID != user.ID {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	slog.Info("WebSocket connection established", "user_id", user.ID, "session_id", sessionID)

	// Register client with hub
	client := s.wsHub.RegisterClient(conn, user.ID, sessionID)

	// Route inbound frames to the interview and communication services
	client.MessageHandler = func(c *ws.Client, messageBytes []byte) {
		s.websocketHandler.HandleWebSocketMessage(c, messageBytes)
	}

	go client.WritePump()
	s.websocketHandler.HandleWebSocketConnection(client)

	// ReadPump blocks until the connection drops and unregisters the
	// client on its way out
	client.ReadPump()
}
