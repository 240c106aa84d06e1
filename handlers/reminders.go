package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"remindbot/middleware"
	"remindbot/models"
	"remindbot/permissions"
	"remindbot/platform"
	"remindbot/targets"
	"remindbot/timespec"
)

type ReminderHandler struct {
	*Env
	targets *targets.Resolver
}

func NewReminderHandler(env *Env) *ReminderHandler {
	return &ReminderHandler{Env: env.init(), targets: targets.NewResolver(env.Platform)}
}

func (h *ReminderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateReminderRequest
	if err := decode(w, r, &req); err != nil {
		invalidInput(w, "invalid request body")
		return
	}

	c, ok := h.authorize(w, r, "remind", req.GuildID, permissions.ActionCreateReminder)
	if !ok {
		return
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		h.invalid(w, c, "message is required")
		return
	}
	dueAt, err := timespec.Parse(req.Time, h.Clock.Now())
	if err != nil {
		h.invalid(w, c, err.Error())
		return
	}

	mode, err := models.ParseDeliveryMode(req.Delivery)
	if err != nil {
		h.invalid(w, c, err.Error())
		return
	}
	if mode == "" {
		mode = h.defaultDelivery(req.GuildID)
	}

	reminderReq := models.ReminderRequest{
		OwnerUserID:  c.actor.UserID,
		GuildID:      req.GuildID,
		Message:      message,
		DueAt:        dueAt,
		DeliveryMode: mode,
	}
	if mode.NeedsChannel() {
		channelID := strings.TrimSpace(req.ChannelID)
		if msg := h.checkChannel(r.Context(), req.GuildID, channelID, mode); msg != "" {
			h.invalid(w, c, msg)
			return
		}
		target, msg := h.resolveTarget(r.Context(), c, req.Target)
		if msg != "" {
			h.invalid(w, c, msg)
			return
		}
		reminderReq.ChannelID = channelID
		reminderReq.TargetMention = target.Mention()
	}

	reminder, err := h.Store.AddReminder(reminderReq)
	if err != nil {
		h.failed(w, c, err)
		return
	}
	h.succeeded(c)
	h.publish(models.WSTypeReminderCreated, *reminder)
	writeJSON(w, http.StatusCreated, reminder)
}

// List returns the caller's reminders, optionally limited to one guild.
func (h *ReminderHandler) List(w http.ResponseWriter, r *http.Request) {
	guildID := r.URL.Query().Get("guild_id")
	c, ok := h.authorize(w, r, "myreminders", guildID, permissions.ActionListOwn)
	if !ok {
		return
	}
	reminders := h.Store.RemindersForUser(guildID, c.actor.UserID)
	h.succeeded(c)
	writeJSON(w, http.StatusOK, reminders)
}

// ListGuild returns every reminder of a guild, or of one member when user_id is given.
func (h *ReminderHandler) ListGuild(w http.ResponseWriter, r *http.Request) {
	guildID := r.PathValue("guild")
	c, ok := h.authorize(w, r, "listreminders", guildID, permissions.ActionListAny)
	if !ok {
		return
	}

	var reminders []models.Reminder
	if userID := r.URL.Query().Get("user_id"); userID != "" {
		reminders = h.Store.RemindersForUser(guildID, userID)
	} else {
		reminders = h.Store.RemindersForGuild(guildID)
	}
	h.succeeded(c)
	writeJSON(w, http.StatusOK, reminders)
}

func (h *ReminderHandler) Edit(w http.ResponseWriter, r *http.Request) {
	var req models.EditReminderRequest
	if err := decode(w, r, &req); err != nil {
		invalidInput(w, "invalid request body")
		return
	}

	existing, c, ok := h.authorizeReminder(w, r, "editreminder", permissions.ActionEditOwn)
	if !ok {
		return
	}

	var edit models.ReminderEdit
	if req.Message != nil {
		message := strings.TrimSpace(*req.Message)
		if message == "" {
			h.invalid(w, c, "message is required")
			return
		}
		edit.Message = &message
	}
	if req.Time != nil {
		dueAt, err := timespec.Parse(*req.Time, h.Clock.Now())
		if err != nil {
			h.invalid(w, c, err.Error())
			return
		}
		edit.DueAt = &dueAt
	}

	mode := existing.DeliveryMode
	if req.Delivery != nil {
		parsed, err := models.ParseDeliveryMode(*req.Delivery)
		if err != nil || parsed == "" {
			h.invalid(w, c, fmt.Sprintf("unknown delivery mode %q", *req.Delivery))
			return
		}
		mode = parsed
		edit.DeliveryMode = &mode
	}
	channelID := existing.ChannelID
	if req.ChannelID != nil {
		channelID = strings.TrimSpace(*req.ChannelID)
		edit.ChannelID = &channelID
	}
	if mode.NeedsChannel() && (edit.DeliveryMode != nil || edit.ChannelID != nil) {
		if msg := h.checkChannel(r.Context(), existing.GuildID, channelID, mode); msg != "" {
			h.invalid(w, c, msg)
			return
		}
	}
	if req.Target != nil {
		if !mode.NeedsChannel() {
			h.invalid(w, c, "direct message reminders have no target")
			return
		}
		target, msg := h.resolveTarget(r.Context(), c, *req.Target)
		if msg != "" {
			h.invalid(w, c, msg)
			return
		}
		mention := target.Mention()
		edit.TargetMention = &mention
	}

	updated, err := h.Store.EditReminder(existing.ID, edit)
	if err != nil {
		h.failed(w, c, err)
		return
	}
	h.succeeded(c)
	h.publish(models.WSTypeReminderUpdated, *updated)
	writeJSON(w, http.StatusOK, updated)
}

func (h *ReminderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	existing, c, ok := h.authorizeReminder(w, r, "cancelreminder", permissions.ActionCancelOwn)
	if !ok {
		return
	}

	removed, err := h.Store.RemoveReminder(existing.ID)
	if err != nil {
		h.failed(w, c, err)
		return
	}
	h.succeeded(c)
	if removed {
		h.publish(models.WSTypeReminderCancelled, *existing)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled", "id": existing.ID})
}

// authorizeReminder loads the reminder named in the path and checks that the
// caller owns it, or manages its guild. Reminders created outside a guild are
// visible to their owner only.
func (h *ReminderHandler) authorizeReminder(w http.ResponseWriter, r *http.Request, name string, own permissions.Action) (*models.Reminder, *command, bool) {
	reminder, err := h.Store.Reminder(r.PathValue("id"))
	if err != nil {
		storeError(w, err)
		return nil, nil, false
	}

	userID := middleware.GetUserID(r)
	action := own
	if reminder.OwnerUserID != userID {
		if reminder.GuildID == "" {
			notFound(w, "reminder not found")
			return nil, nil, false
		}
		action = permissions.ActionCancelAny
	}
	c, ok := h.authorize(w, r, name, reminder.GuildID, action)
	return reminder, c, ok
}

func (h *ReminderHandler) defaultDelivery(guildID string) models.DeliveryMode {
	if guildID == "" {
		return models.DeliveryDM
	}
	if mode := h.Store.GuildConfig(guildID).DefaultDelivery; mode.Valid() {
		return mode
	}
	return models.DeliveryDM
}

// checkChannel returns a rejection message when channelID cannot carry mode.
func (h *ReminderHandler) checkChannel(ctx context.Context, guildID, channelID string, mode models.DeliveryMode) string {
	if guildID == "" {
		return fmt.Sprintf("%s delivery is only available inside a guild", mode)
	}
	if channelID == "" {
		return fmt.Sprintf("%s delivery requires channel_id", mode)
	}
	kind, err := h.Platform.ChannelKind(ctx, channelID)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) || errors.Is(err, platform.ErrForbidden) {
			return fmt.Sprintf("channel %s is not reachable", channelID)
		}
		h.Logger.Warn("channel lookup", "channel_id", channelID, "error", err)
		return fmt.Sprintf("channel %s could not be checked", channelID)
	}
	switch {
	case kind == models.ChannelDM:
		return "a direct message channel cannot be a delivery channel"
	case mode == models.DeliveryForum && kind != models.ChannelForum && kind != models.ChannelThread:
		return fmt.Sprintf("channel %s is not a forum or thread", channelID)
	case mode != models.DeliveryForum && kind == models.ChannelForum:
		return fmt.Sprintf("channel %s is a forum, use forum delivery", channelID)
	}
	return ""
}

func (h *ReminderHandler) resolveTarget(ctx context.Context, c *command, spec string) (*models.Target, string) {
	target, err := h.targets.Resolve(ctx, c.guild, c.actor, spec)
	if err != nil {
		h.Logger.Warn("resolve target", "guild_id", c.guild, "target", spec, "error", err)
		return nil, "target lookup failed"
	}
	if target == nil {
		return nil, fmt.Sprintf("could not resolve target %q, or you are not allowed to ping it", spec)
	}
	return target, ""
}
