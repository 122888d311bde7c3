// Package api exposes the notification feed, channel settings, Telegram linking and ticket read state over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/cyverse-de/helpdesk-notifier/linking"
	"github.com/cyverse-de/helpdesk-notifier/logging"
	"github.com/cyverse-de/helpdesk-notifier/model"
	"github.com/cyverse-de/helpdesk-notifier/verification"
)

var log = logging.Log.WithField("package", "api")

// Notifier dispatches notification events.
type Notifier interface {
	Notify(ctx context.Context, event model.Event) error
	NotifyStaff(ctx context.Context, event model.Event) (int, error)
}

// Feed reads and updates the in-app feed.
type Feed interface {
	List(ctx context.Context, recipient model.Actor, opts model.ListOptions) ([]model.Notification, error)
	MarkRead(ctx context.Context, id int64, recipient model.Actor) error
	MarkAllRead(ctx context.Context, recipient model.Actor) (int64, error)
	UnreadCount(ctx context.Context, recipient model.Actor) (int64, error)
}

// EmailSettings manages client notification email addresses.
type EmailSettings interface {
	State(ctx context.Context, clientID int64) (*verification.EmailState, error)
	RequestVerification(ctx context.Context, clientID int64, email string) error
	Verify(ctx context.Context, clientID int64, code string) error
	Unbind(ctx context.Context, clientID int64) error
	SetPreferences(ctx context.Context, clientID int64, prefs model.Preferences, enabled bool) error
}

// Linker manages Telegram bindings.
type Linker interface {
	Status(ctx context.Context, actor model.Actor) (*linking.BindingStatus, error)
	IssueToken(ctx context.Context, actor model.Actor) (*linking.ConnectionLink, error)
	Disconnect(ctx context.Context, actor model.Actor) error
}

// ReadState answers ticket unread queries.
type ReadState interface {
	IsUnread(ctx context.Context, ticketID int64, viewer model.Actor) (bool, error)
	MarkViewed(ctx context.Context, ticketID int64, viewer model.Actor) error
	Order(ctx context.Context, rows []model.TicketRow, viewer model.Actor) ([]model.TicketRow, error)
}

// Server holds the components behind the HTTP API.
type Server struct {
	Notifier  Notifier
	Feed      Feed
	Email     EmailSettings
	Linker    Linker
	ReadState ReadState
}

// Router builds the HTTP handler. Every route lives under /api/v1.
func (s *Server) Router(allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/healthz", s.handleHealth)

		r.Post("/events", s.handleNotify)
		r.Post("/events/staff", s.handleNotifyStaff)

		r.Route("/actors/{actorType}/{actorID}", func(r chi.Router) {
			r.Get("/notifications", s.handleListNotifications)
			r.Get("/notifications/unread-count", s.handleUnreadCount)
			r.Post("/notifications/read-all", s.handleMarkAllRead)
			r.Post("/notifications/{notificationID}/read", s.handleMarkRead)

			r.Get("/telegram", s.handleTelegramStatus)
			r.Post("/telegram/token", s.handleIssueToken)
			r.Delete("/telegram", s.handleDisconnect)
		})

		r.Route("/clients/{clientID}/email", func(r chi.Router) {
			r.Get("/", s.handleEmailState)
			r.Post("/", s.handleRequestVerification)
			r.Delete("/", s.handleUnbindEmail)
			r.Post("/verify", s.handleVerifyEmail)
			r.Put("/preferences", s.handleSetPreferences)
		})

		r.Post("/tickets/unread", s.handleOrderTickets)
		r.Get("/tickets/{ticketID}/unread", s.handleIsUnread)
		r.Post("/tickets/{ticketID}/viewed", s.handleMarkViewed)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
