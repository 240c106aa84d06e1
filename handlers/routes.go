package handlers

import (
	"log/slog"
	"net/http"

	"remindbot/logging"
	"remindbot/middleware"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers groups everything the router serves. Backend may be nil.
type Handlers struct {
	Auth      *AuthHandler
	Reminders *ReminderHandler
	Guilds    *GuildHandler
	Backend   *BackendHandler
	Hub       *Hub
}

// NewRouter wires the command API. gatherer may be nil to omit /metrics.
func NewRouter(auth *middleware.Auth, h Handlers, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	withAuth := func(next http.HandlerFunc) http.Handler {
		return auth.Middleware(next)
	}

	mux := http.NewServeMux()

	// Public routes
	mux.HandleFunc("POST /api/auth/token", h.Auth.Token)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	mux.Handle("GET /api/auth/me", withAuth(h.Auth.Me))
	mux.Handle("GET /api/ws", withAuth(h.Hub.HandleWebSocket))

	// Reminders
	mux.Handle("GET /api/reminders", withAuth(h.Reminders.List))
	mux.Handle("POST /api/reminders", withAuth(h.Reminders.Create))
	mux.Handle("PATCH /api/reminders/{id}", withAuth(h.Reminders.Edit))
	mux.Handle("DELETE /api/reminders/{id}", withAuth(h.Reminders.Delete))
	mux.Handle("GET /api/guilds/{guild}/reminders", withAuth(h.Reminders.ListGuild))

	// Guild administration
	mux.Handle("GET /api/guilds/{guild}/admins", withAuth(h.Guilds.ListAdmins))
	mux.Handle("POST /api/guilds/{guild}/admins", withAuth(h.Guilds.AddAdmin))
	mux.Handle("DELETE /api/guilds/{guild}/admins", withAuth(h.Guilds.RemoveAdmin))
	mux.Handle("GET /api/guilds/{guild}/usermanagers", withAuth(h.Guilds.ListUserManagers))
	mux.Handle("POST /api/guilds/{guild}/usermanagers", withAuth(h.Guilds.AddUserManager))
	mux.Handle("DELETE /api/guilds/{guild}/usermanagers", withAuth(h.Guilds.RemoveUserManager))
	mux.Handle("GET /api/guilds/{guild}/default-delivery", withAuth(h.Guilds.GetDefaultDelivery))
	mux.Handle("PUT /api/guilds/{guild}/default-delivery", withAuth(h.Guilds.SetDefaultDelivery))
	mux.Handle("GET /api/guilds/{guild}/update-channels", withAuth(h.Guilds.ListUpdateChannels))
	mux.Handle("POST /api/guilds/{guild}/update-channels", withAuth(h.Guilds.AddUpdateChannel))
	mux.Handle("DELETE /api/guilds/{guild}/update-channels", withAuth(h.Guilds.RemoveUpdateChannel))

	// Operator commands
	if h.Backend != nil {
		mux.Handle("GET /api/backend/status", withAuth(h.Backend.Status))
		mux.Handle("POST /api/backend/update", withAuth(h.Backend.Update))
		mux.Handle("POST /api/backend/supportinvite", withAuth(h.Backend.SupportInvite))
		mux.Handle("GET /api/backend/admins", withAuth(h.Backend.Admins))
		mux.Handle("GET /api/backend/usermanagers", withAuth(h.Backend.UserManagers))
		mux.Handle("GET /api/backend/guilddefaults", withAuth(h.Backend.GuildDefaults))
		mux.Handle("POST /api/backend/reload", withAuth(h.Backend.Reload))
		mux.Handle("POST /api/backend/restart", withAuth(h.Backend.Restart))
		mux.Handle("POST /api/backend/stop", withAuth(h.Backend.Stop))
		mux.Handle("GET /api/backend/audit", withAuth(h.Backend.Audit))
	}

	logger = logging.OrNop(logger).With("component", "http")
	return middleware.CORS(middleware.RequestLog(logger)(mux))
}
