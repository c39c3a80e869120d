package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-plaza/internal/chat"
	"github.com/npezzotti/go-plaza/internal/config"
	"github.com/npezzotti/go-plaza/internal/database"
	"github.com/npezzotti/go-plaza/internal/presence"
	"github.com/npezzotti/go-plaza/internal/rooms"
	"github.com/npezzotti/go-plaza/internal/server"
)

type GoPlazaApp struct {
	log            *slog.Logger
	db             database.GoPlazaRepository
	srv            *http.Server
	cs             *server.ChatServer
	registry       *presence.Registry
	rooms          *rooms.Directory
	chat           *chat.Service
	signingKey     []byte
	allowedOrigins []string
	moderators     []int64
}

// NewGoPlazaApp builds the HTTP surface. stats may be nil.
func NewGoPlazaApp(logger *slog.Logger, cs *server.ChatServer, registry *presence.Registry, db database.GoPlazaRepository,
	dir *rooms.Directory, chatSvc *chat.Service, stats http.Handler, cfg *config.Config) *GoPlazaApp {
	s := &GoPlazaApp{
		log:            logger,
		db:             db,
		cs:             cs,
		registry:       registry,
		rooms:          dir,
		chat:           chatSvc,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.Server.AllowedOrigins,
		moderators:     cfg.Auth.Moderators,
	}

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.Server.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(s.routes(stats))

	h = s.errorHandler(h)

	s.srv = &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: h,
	}

	return s
}

func (s *GoPlazaApp) routes(stats http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", s.healthCheck)
	if stats != nil {
		r.Method(http.MethodGet, "/debug/vars", stats)
	}
	r.With(s.identityMiddleware).Get("/ws", s.serveWs)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/presence", s.getPresence)

		r.Route("/rooms", func(r chi.Router) {
			r.Get("/", s.listRooms)
			r.Post("/", s.createRoom)
			r.Route("/{roomId}", func(r chi.Router) {
				r.Get("/", s.getRoom)
				r.Delete("/", s.deleteRoom)
				r.Put("/items/{itemId}", s.placeItem)
				r.Delete("/items/{itemId}", s.removeItem)
			})
		})

		r.Route("/chatrooms", func(r chi.Router) {
			r.Get("/", s.listChatRooms)
			r.Post("/", s.openChatRoom)
			r.Get("/unread", s.unreadCounts)
			r.Route("/{chatRoomId}", func(r chi.Router) {
				r.Get("/participants", s.getParticipants)
				r.Get("/unread", s.unreadCount)
				r.Post("/read", s.markRead)
				r.Post("/join", s.joinChatRoom)
			})
		})

		r.Route("/messages", func(r chi.Router) {
			r.Get("/", s.pageMessages)
			r.Post("/", s.sendMessage)
			r.Get("/recent", s.recentMessages)
			r.Post("/direct/read", s.markDirectRead)
			r.Delete("/{messageId}", s.deleteMessage)
		})
	})

	return r
}

func (s *GoPlazaApp) Handler() http.Handler {
	return s.srv.Handler
}

func (s *GoPlazaApp) Start() error {
	s.log.Info("starting server", "addr", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *GoPlazaApp) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
