package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/chatconnect/chatconnect/internal/config"
	"github.com/chatconnect/chatconnect/internal/messages"
	"github.com/chatconnect/chatconnect/internal/pairing"
	"github.com/chatconnect/chatconnect/internal/profile"
	"github.com/chatconnect/chatconnect/internal/stats"
	"github.com/gorilla/handlers"
)

type Server struct {
	log            *log.Logger
	profiles       *profile.Service
	pairing        *pairing.Service
	messages       *messages.Service
	stats          stats.Provider
	mux            *http.Server
	signingKey     []byte
	allowedOrigins []string
}

func NewServer(mux *http.ServeMux, logger *log.Logger, ps *profile.Service, rs *pairing.Service, ms *messages.Service, sp stats.Provider, cfg *config.Config) *Server {
	s := &Server{
		log:            logger,
		profiles:       ps,
		pairing:        rs,
		messages:       ms,
		stats:          sp,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.Handle("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.Handle("POST /api/rooms", s.authMiddleware(s.createRoom))
	mux.Handle("GET /api/rooms", s.authMiddleware(s.getRooms))
	mux.Handle("POST /api/rooms/join", s.authMiddleware(s.joinRoom))
	mux.Handle("DELETE /api/rooms", s.authMiddleware(s.deleteRoom))
	mux.Handle("GET /api/messages", s.authMiddleware(s.getMessages))
	mux.Handle("POST /api/messages", s.authMiddleware(s.sendMessage))
	mux.Handle("GET /api/friends", s.authMiddleware(s.getFriends))
	mux.Handle("GET /api/friends/requests", s.authMiddleware(s.getFriendRequests))
	mux.Handle("POST /api/friends/requests", s.authMiddleware(s.sendFriendRequest))
	mux.Handle("POST /api/friends/accept", s.authMiddleware(s.acceptFriendRequest))
	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *Server) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
