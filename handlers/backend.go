package handlers

import (
	"cmp"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"time"

	"remindbot/control"
	"remindbot/middleware"
	"remindbot/models"
	"remindbot/permissions"
	"remindbot/platform"
	"remindbot/scheduler"
	"remindbot/settings"
)

// actionBackend marks operator commands in the audit log.
const actionBackend permissions.Action = "backend"

// StateReporter exposes the scheduling loop's phase.
type StateReporter interface {
	State() scheduler.State
}

// BackendHandler serves the operator commands. Callers must be listed in the
// dev_ids setting and, when backend_guild_id is set, belong to that guild.
type BackendHandler struct {
	*Env
	settings  *settings.Manager
	loop      StateReporter
	control   *control.File
	shutdown  func()
	startedAt time.Time
}

type BackendOption func(*BackendHandler)

// WithControl lets restart and stop set launcher flags and end the process.
func WithControl(file *control.File, shutdown func()) BackendOption {
	return func(h *BackendHandler) {
		h.control = file
		h.shutdown = shutdown
	}
}

func WithLoop(loop StateReporter) BackendOption {
	return func(h *BackendHandler) { h.loop = loop }
}

func NewBackendHandler(env *Env, manager *settings.Manager, opts ...BackendOption) *BackendHandler {
	h := &BackendHandler{Env: env.init(), settings: manager}
	h.startedAt = h.Clock.Now()
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *BackendHandler) operator(w http.ResponseWriter, r *http.Request, name string) (*command, bool) {
	userID := middleware.GetUserID(r)
	current := h.settings.Current()
	c := &command{name: "backend " + name, guild: current.BackendGuildID, action: actionBackend, actor: models.Actor{UserID: userID}}

	if !current.IsDeveloper(userID) {
		h.audit(c, false, "not an operator")
		permissionDenied(w, "you are not authorized to use backend commands")
		return c, false
	}
	if current.BackendGuildID != "" {
		_, err := h.Platform.Member(r.Context(), current.BackendGuildID, userID)
		if errors.Is(err, platform.ErrNotFound) {
			h.audit(c, false, "not in backend guild")
			permissionDenied(w, "backend commands are only available to members of the backend guild")
			return c, false
		}
		if err != nil {
			h.Logger.Error("backend guild lookup", "guild_id", current.BackendGuildID, "error", err)
			h.audit(c, false, "member lookup failed")
			internalError(w, "failed to look up backend guild member")
			return c, false
		}
	}
	return c, true
}

func (h *BackendHandler) Status(w http.ResponseWriter, r *http.Request) {
	c, ok := h.operator(w, r, "status")
	if !ok {
		return
	}
	current := h.settings.Current()
	state := "unknown"
	if h.loop != nil {
		state = h.loop.State().String()
	}
	h.succeeded(c)
	writeJSON(w, http.StatusOK, models.StatusResponse{
		Uptime:          h.Clock.Now().Sub(h.startedAt).Round(time.Second).String(),
		RemindersStored: h.Store.Count(),
		SchedulerState:  state,
		LogLevel:        current.LogLevel,
		CheckInterval:   current.CheckIntervalSeconds,
	})
}

// Update posts an announcement to every guild's update channels.
func (h *BackendHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req models.BroadcastRequest
	if err := decode(w, r, &req); err != nil {
		invalidInput(w, "invalid request body")
		return
	}
	c, ok := h.operator(w, r, "update")
	if !ok {
		return
	}
	if req.Message == "" {
		h.invalid(w, c, "message is required")
		return
	}

	content := fmt.Sprintf("📢 **Bot Update**\n%s\n\n_Sent by %s_", req.Message, models.UserMention(c.actor.UserID))
	channels := h.Store.UpdateChannels()
	guilds := make([]string, 0, len(channels))
	for guildID := range channels {
		guilds = append(guilds, guildID)
	}
	slices.Sort(guilds)

	var result models.BroadcastResult
	for _, guildID := range guilds {
		for _, channelID := range channels[guildID] {
			if err := h.Platform.Send(r.Context(), channelID, content); err != nil {
				result.Failed++
				h.Logger.Warn("update broadcast failed", "guild_id", guildID, "channel_id", channelID, "error", err)
				continue
			}
			result.Sent++
		}
	}
	h.succeeded(c)
	h.Logger.Info("update broadcast", "user_id", c.actor.UserID, "sent", result.Sent, "failed", result.Failed)
	writeJSON(w, http.StatusOK, result)
}

// SupportInvite DMs the support invite to every guild owner and listed admin,
// once per user.
func (h *BackendHandler) SupportInvite(w http.ResponseWriter, r *http.Request) {
	c, ok := h.operator(w, r, "supportinvite")
	if !ok {
		return
	}
	invite := h.settings.Current().SupportInvite
	if invite == "" {
		h.invalid(w, c, "no support invite is set in settings")
		return
	}

	guilds, err := h.Platform.Guilds(r.Context())
	if err != nil {
		h.Logger.Error("list guilds", "error", err)
		h.audit(c, false, "guild listing failed")
		internalError(w, "failed to list guilds")
		return
	}

	var result models.BroadcastResult
	messaged := make(map[string]bool)
	for _, guild := range guilds {
		userIDs := h.Store.GuildConfig(guild.ID).AdminUserIDs
		if guild.OwnerID != "" {
			userIDs = models.CanonicalSet(append(userIDs, guild.OwnerID))
		}
		for _, userID := range userIDs {
			if messaged[userID] {
				continue
			}
			member, err := h.Platform.Member(r.Context(), guild.ID, userID)
			if err != nil {
				continue
			}
			content := fmt.Sprintf("Hello %s,\n\nYou are listed as an admin on **%s**.\nJoin our support server here: %s",
				member.Username, guild.Name, invite)
			if err := h.sendDM(r, userID, content); err != nil {
				result.Failed++
				h.Logger.Warn("support invite failed", "guild_id", guild.ID, "user_id", userID, "error", err)
				continue
			}
			messaged[userID] = true
			result.Sent++
		}
	}
	h.succeeded(c)
	writeJSON(w, http.StatusOK, result)
}

func (h *BackendHandler) sendDM(r *http.Request, userID, content string) error {
	channelID, err := h.Platform.DMChannel(r.Context(), userID)
	if err != nil {
		return err
	}
	return h.Platform.Send(r.Context(), channelID, content)
}

type guildAuthority struct {
	models.AuthorityList
	GuildName string `json:"guild_name"`
}

func (h *BackendHandler) Admins(w http.ResponseWriter, r *http.Request) {
	h.authorityOverview(w, r, "listadmins", models.TierAdminManager)
}

func (h *BackendHandler) UserManagers(w http.ResponseWriter, r *http.Request) {
	h.authorityOverview(w, r, "listusermanagers", models.TierUserManager)
}

func (h *BackendHandler) authorityOverview(w http.ResponseWriter, r *http.Request, name string, tier models.Tier) {
	c, ok := h.operator(w, r, name)
	if !ok {
		return
	}
	guilds, ok := h.guilds(w, r, c)
	if !ok {
		return
	}
	out := make([]guildAuthority, 0, len(guilds))
	for _, guild := range guilds {
		cfg := h.Store.GuildConfig(guild.ID)
		out = append(out, guildAuthority{
			AuthorityList: models.AuthorityList{
				GuildID: guild.ID,
				Users:   *cfg.List(tier, models.AuthorityUser),
				Roles:   *cfg.List(tier, models.AuthorityRole),
			},
			GuildName: guild.Name,
		})
	}
	h.succeeded(c)
	writeJSON(w, http.StatusOK, out)
}

type guildDefault struct {
	GuildID         string `json:"guild_id"`
	GuildName       string `json:"guild_name"`
	DefaultDelivery string `json:"default_delivery"`
}

func (h *BackendHandler) GuildDefaults(w http.ResponseWriter, r *http.Request) {
	c, ok := h.operator(w, r, "guilddefaults")
	if !ok {
		return
	}
	guilds, ok := h.guilds(w, r, c)
	if !ok {
		return
	}
	out := make([]guildDefault, 0, len(guilds))
	for _, guild := range guilds {
		mode := string(h.Store.GuildConfig(guild.ID).DefaultDelivery)
		if mode == "" {
			mode = "not set"
		}
		out = append(out, guildDefault{GuildID: guild.ID, GuildName: guild.Name, DefaultDelivery: mode})
	}
	h.succeeded(c)
	writeJSON(w, http.StatusOK, out)
}

func (h *BackendHandler) guilds(w http.ResponseWriter, r *http.Request, c *command) ([]models.Guild, bool) {
	guilds, err := h.Platform.Guilds(r.Context())
	if err != nil {
		h.Logger.Error("list guilds", "error", err)
		h.audit(c, false, "guild listing failed")
		internalError(w, "failed to list guilds")
		return nil, false
	}
	slices.SortFunc(guilds, func(a, b models.Guild) int { return cmp.Compare(a.ID, b.ID) })
	return guilds, true
}

// Reload forces a settings re-read.
func (h *BackendHandler) Reload(w http.ResponseWriter, r *http.Request) {
	c, ok := h.operator(w, r, "reload")
	if !ok {
		return
	}
	s, err := h.settings.Reload()
	if err != nil {
		h.audit(c, false, err.Error())
		internalError(w, "reload failed, previous settings kept: "+err.Error())
		return
	}
	h.succeeded(c)
	writeJSON(w, http.StatusOK, s)
}

func (h *BackendHandler) Restart(w http.ResponseWriter, r *http.Request) {
	h.requestExit(w, r, "restart", true)
}

func (h *BackendHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.requestExit(w, r, "stop", false)
}

// requestExit sets the launcher flag, answers, then shuts the process down.
func (h *BackendHandler) requestExit(w http.ResponseWriter, r *http.Request, name string, restart bool) {
	c, ok := h.operator(w, r, name)
	if !ok {
		return
	}
	if h.control == nil {
		h.audit(c, false, "no control file")
		internalError(w, "process control is not configured")
		return
	}

	var err error
	if restart {
		err = h.control.SetRestart(true)
	} else {
		err = h.control.SetStop(true)
	}
	if err != nil {
		h.Logger.Error("set control flag", "flag", name, "error", err)
		h.audit(c, false, err.Error())
		internalError(w, "failed to write control file")
		return
	}
	h.succeeded(c)
	h.Logger.Warn("shutdown requested", "flag", name, "user_id", c.actor.UserID)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": name + " requested"})
	if h.shutdown != nil {
		go h.shutdown()
	}
}

type auditResponse struct {
	Commands   []models.CommandRecord  `json:"commands,omitempty"`
	Deliveries []models.DeliveryRecord `json:"deliveries,omitempty"`
}

// Audit lists recent audit entries. kind selects commands or deliveries; both
// are returned when it is empty.
func (h *BackendHandler) Audit(w http.ResponseWriter, r *http.Request) {
	c, ok := h.operator(w, r, "audit")
	if !ok {
		return
	}
	if h.Env.Audit == nil {
		notFound(w, "audit log is disabled")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			h.invalid(w, c, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	var resp auditResponse
	var err error
	switch kind := r.URL.Query().Get("kind"); kind {
	case "commands":
		resp.Commands, err = h.Env.Audit.RecentCommands(limit)
	case "deliveries":
		resp.Deliveries, err = h.Env.Audit.RecentDeliveries(limit)
	case "":
		if resp.Commands, err = h.Env.Audit.RecentCommands(limit); err == nil {
			resp.Deliveries, err = h.Env.Audit.RecentDeliveries(limit)
		}
	default:
		h.invalid(w, c, "kind must be commands or deliveries")
		return
	}
	if err != nil {
		h.Logger.Error("read audit log", "error", err)
		internalError(w, "failed to read audit log")
		return
	}
	h.succeeded(c)
	writeJSON(w, http.StatusOK, resp)
}
