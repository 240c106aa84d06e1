package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"remindbot/clock"
	"remindbot/logging"
	"remindbot/middleware"
	"remindbot/models"
	"remindbot/permissions"
	"remindbot/platform"
	"remindbot/store"
)

// Env holds the collaborators shared by the command handlers.
type Env struct {
	Store    *store.Store
	Audit    *store.AuditLog // optional
	Platform platform.Platform
	Clock    clock.Clock
	Hub      *Hub // optional
	Logger   *slog.Logger

	perms *permissions.Resolver
}

func (e *Env) init() *Env {
	if e.perms == nil {
		e.perms = permissions.NewResolver(e.Store, e.Platform)
	}
	e.Logger = logging.OrNop(e.Logger)
	return e
}

// actor looks up the caller's live membership. Outside a guild only the user id is known.
func (e *Env) actor(ctx context.Context, guildID, userID string) (models.Actor, error) {
	if guildID == "" {
		return models.Actor{UserID: userID}, nil
	}
	member, err := e.Platform.Member(ctx, guildID, userID)
	if err != nil {
		return models.Actor{}, err
	}
	return models.ActorFromMember(member), nil
}

// command is one audited request against the command API.
type command struct {
	name   string
	guild  string
	action permissions.Action
	actor  models.Actor
}

// authorize resolves the caller and checks action in guildID, writing the
// error response and the audit entry on refusal. Commands outside a guild
// are limited to the caller's own reminders.
func (e *Env) authorize(w http.ResponseWriter, r *http.Request, name, guildID string, action permissions.Action) (*command, bool) {
	userID := middleware.GetUserID(r)
	c := &command{name: name, guild: guildID, action: action, actor: models.Actor{UserID: userID}}

	actor, err := e.actor(r.Context(), guildID, userID)
	switch {
	case errors.Is(err, platform.ErrNotFound):
		e.audit(c, false, "not a guild member")
		permissionDenied(w, "you are not a member of this guild")
		return c, false
	case err != nil:
		e.Logger.Error("resolve actor", "command", name, "guild_id", guildID, "user_id", userID, "error", err)
		e.audit(c, false, "member lookup failed")
		internalError(w, "failed to look up guild member")
		return c, false
	}
	c.actor = actor

	if guildID == "" {
		if permissions.RequiredTier(action) > models.TierRegular {
			e.invalid(w, c, "guild_id is required for this command")
			return c, false
		}
		return c, true
	}

	allowed, err := e.perms.Allowed(r.Context(), guildID, actor, action)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			e.audit(c, false, "unknown guild")
			notFound(w, "guild not found")
			return c, false
		}
		e.Logger.Error("resolve tier", "command", name, "guild_id", guildID, "error", err)
		e.audit(c, false, "tier lookup failed")
		internalError(w, "failed to resolve permissions")
		return c, false
	}
	if !allowed {
		e.audit(c, false, "insufficient tier")
		permissionDenied(w, "you do not have permission to use this command")
		return c, false
	}
	return c, true
}

// invalid rejects c as bad input.
func (e *Env) invalid(w http.ResponseWriter, c *command, msg string) {
	e.audit(c, false, msg)
	invalidInput(w, msg)
}

// failed reports a store error for c.
func (e *Env) failed(w http.ResponseWriter, c *command, err error) {
	e.audit(c, false, err.Error())
	if !errors.Is(err, store.ErrReminderNotFound) && !errors.Is(err, store.ErrReminderInFlight) &&
		!errors.Is(err, store.ErrInvalidReminder) && !errors.Is(err, store.ErrUnknownAuthority) {
		e.Logger.Error("command failed", "command", c.name, "guild_id", c.guild, "user_id", c.actor.UserID, "error", err)
	}
	storeError(w, err)
}

func (e *Env) succeeded(c *command) {
	e.audit(c, true, "")
	e.Logger.Info("command", "command", c.name, "guild_id", c.guild, "user_id", c.actor.UserID)
}

func (e *Env) audit(c *command, success bool, reason string) {
	if e.Audit == nil {
		return
	}
	err := e.Audit.RecordCommand(models.CommandRecord{
		Command:    c.name,
		UserID:     c.actor.UserID,
		GuildID:    c.guild,
		Permission: string(c.action),
		Success:    success,
		Reason:     reason,
		CreatedAt:  e.Clock.Now(),
	})
	if err != nil {
		e.Logger.Warn("audit command", "command", c.name, "error", err)
	}
}

func (e *Env) publish(eventType string, r models.Reminder) {
	if e.Hub != nil {
		e.Hub.ReminderChanged(eventType, r)
	}
}
