package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/carebridge/carebridge/internal/config"
	"github.com/carebridge/carebridge/internal/database"
	"github.com/carebridge/carebridge/internal/server"
	"github.com/carebridge/carebridge/internal/stats"
	"github.com/gorilla/handlers"
	"github.com/teris-io/shortid"
)

type CareBridgeApp struct {
	log            *log.Logger
	db             database.CareRepository
	mux            *http.Server
	cs             *server.ChatServer
	notifier       server.Notifier
	stats          stats.StatsProvider
	signingKey     []byte
	allowedOrigins []string
	// generateShortId produces external room ids; a field so tests can
	// pin it.
	generateShortId func() (string, error)
}

func NewCareBridgeApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, db database.CareRepository,
	sp stats.StatsProvider, cfg *config.Config) *CareBridgeApp {
	s := &CareBridgeApp{
		log:             logger,
		db:              db,
		cs:              cs,
		stats:           sp,
		signingKey:      cfg.SigningKey,
		allowedOrigins:  cfg.AllowedOrigins,
		generateShortId: shortid.Generate,
	}
	if cs != nil {
		s.notifier = cs
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.HandleFunc("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.HandleFunc("POST /api/rooms", s.authMiddleware(s.createRoom))
	mux.HandleFunc("GET /api/rooms", s.authMiddleware(s.getRooms))
	mux.HandleFunc("GET /api/rooms/{id}/messages", s.authMiddleware(s.getRoomMessages))
	mux.HandleFunc("POST /api/rooms/{id}/messages", s.authMiddleware(s.postRoomMessage))
	mux.HandleFunc("POST /api/rooms/{id}/read", s.authMiddleware(s.markRoomRead))
	mux.HandleFunc("POST /api/appointments", s.authMiddleware(s.createAppointment))
	mux.HandleFunc("GET /api/appointments", s.authMiddleware(s.getAppointments))
	mux.HandleFunc("PUT /api/appointments/{id}", s.authMiddleware(s.updateAppointment))
	mux.HandleFunc("POST /api/prescriptions", s.authMiddleware(s.createPrescription))
	mux.HandleFunc("GET /api/prescriptions", s.authMiddleware(s.getPrescriptions))
	mux.HandleFunc("GET /ws", s.serveWs)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
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

func (s *CareBridgeApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *CareBridgeApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}

// notify fans a one-shot event out to a user's connection. Failures are
// logged and swallowed: notifications never fail the triggering action.
func (s *CareBridgeApp) notify(userId int, event string, data any) {
	if s.notifier == nil {
		return
	}
	s.notifier.NotifyUser(userId, event, data)
}

func (s *CareBridgeApp) broadcast(roomId string, frame *server.ServerFrame) {
	if s.cs == nil {
		return
	}
	s.cs.BroadcastToRoom(roomId, frame)
}
