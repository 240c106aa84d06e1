package handlers

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"remindbot/models"
	"remindbot/permissions"
	"remindbot/platform"
)

// GuildHandler manages the authority lists and guild-wide settings.
type GuildHandler struct {
	*Env
}

func NewGuildHandler(env *Env) *GuildHandler {
	return &GuildHandler{Env: env.init()}
}

func (h *GuildHandler) ListAdmins(w http.ResponseWriter, r *http.Request) {
	h.listAuthority(w, r, "listadmins", models.TierAdminManager)
}

func (h *GuildHandler) AddAdmin(w http.ResponseWriter, r *http.Request) {
	h.changeAuthority(w, r, "addadmin", models.TierAdminManager, true)
}

func (h *GuildHandler) RemoveAdmin(w http.ResponseWriter, r *http.Request) {
	h.changeAuthority(w, r, "removeadmin", models.TierAdminManager, false)
}

func (h *GuildHandler) ListUserManagers(w http.ResponseWriter, r *http.Request) {
	h.listAuthority(w, r, "listusermanagers", models.TierUserManager)
}

func (h *GuildHandler) AddUserManager(w http.ResponseWriter, r *http.Request) {
	h.changeAuthority(w, r, "addusermanager", models.TierUserManager, true)
}

func (h *GuildHandler) RemoveUserManager(w http.ResponseWriter, r *http.Request) {
	h.changeAuthority(w, r, "removeusermanager", models.TierUserManager, false)
}

func (h *GuildHandler) listAuthority(w http.ResponseWriter, r *http.Request, name string, tier models.Tier) {
	guildID := r.PathValue("guild")
	c, ok := h.authorize(w, r, name, guildID, permissions.ActionListAny)
	if !ok {
		return
	}
	cfg := h.Store.GuildConfig(guildID)
	h.succeeded(c)
	writeJSON(w, http.StatusOK, models.AuthorityList{
		GuildID: guildID,
		Users:   *cfg.List(tier, models.AuthorityUser),
		Roles:   *cfg.List(tier, models.AuthorityRole),
	})
}

func (h *GuildHandler) changeAuthority(w http.ResponseWriter, r *http.Request, name string, tier models.Tier, add bool) {
	var req models.AuthorityRequest
	if err := decode(w, r, &req); err != nil {
		invalidInput(w, "invalid request body")
		return
	}

	guildID := r.PathValue("guild")
	c, ok := h.authorize(w, r, name, guildID, permissions.ActionManageAuthority)
	if !ok {
		return
	}

	userID, roleID := strings.TrimSpace(req.UserID), strings.TrimSpace(req.RoleID)
	if (userID == "") == (roleID == "") {
		h.invalid(w, c, "exactly one of user_id or role_id is required")
		return
	}
	kind, id := models.AuthorityUser, userID
	if roleID != "" {
		kind, id = models.AuthorityRole, roleID
	}

	// Only additions need a live user or role; stale entries must stay removable.
	if add {
		if msg := h.checkAuthority(r, guildID, kind, id); msg != "" {
			h.invalid(w, c, msg)
			return
		}
	}

	var changed bool
	var err error
	if add {
		changed, err = h.Store.AddAuthority(guildID, tier, kind, id)
	} else {
		changed, err = h.Store.RemoveAuthority(guildID, tier, kind, id)
	}
	if err != nil {
		h.failed(w, c, err)
		return
	}
	h.succeeded(c)

	cfg := h.Store.GuildConfig(guildID)
	writeJSON(w, http.StatusOK, map[string]any{
		"changed": changed,
		"list": models.AuthorityList{
			GuildID: guildID,
			Users:   *cfg.List(tier, models.AuthorityUser),
			Roles:   *cfg.List(tier, models.AuthorityRole),
		},
	})
}

func (h *GuildHandler) checkAuthority(r *http.Request, guildID string, kind models.AuthorityKind, id string) string {
	if kind == models.AuthorityUser {
		_, err := h.Platform.Member(r.Context(), guildID, id)
		switch {
		case errors.Is(err, platform.ErrNotFound):
			return "user " + id + " is not a member of this guild"
		case err != nil:
			h.Logger.Warn("member lookup", "guild_id", guildID, "user_id", id, "error", err)
			return "member lookup failed"
		}
		return ""
	}

	roles, err := h.Platform.Roles(r.Context(), guildID)
	if err != nil {
		h.Logger.Warn("role lookup", "guild_id", guildID, "error", err)
		return "role lookup failed"
	}
	if !slices.ContainsFunc(roles, func(role models.Role) bool { return role.ID == id }) {
		return "role " + id + " does not exist in this guild"
	}
	return ""
}

type defaultDeliveryResponse struct {
	GuildID string              `json:"guild_id"`
	Mode    models.DeliveryMode `json:"mode"`
	// Explicit is false when the guild never chose a default and dm applies.
	Explicit bool `json:"explicit"`
}

func (h *GuildHandler) GetDefaultDelivery(w http.ResponseWriter, r *http.Request) {
	guildID := r.PathValue("guild")
	c, ok := h.authorize(w, r, "getdefaultdelivery", guildID, permissions.ActionListOwn)
	if !ok {
		return
	}
	mode := h.Store.GuildConfig(guildID).DefaultDelivery
	resp := defaultDeliveryResponse{GuildID: guildID, Mode: mode, Explicit: mode.Valid()}
	if !resp.Explicit {
		resp.Mode = models.DeliveryDM
	}
	h.succeeded(c)
	writeJSON(w, http.StatusOK, resp)
}

func (h *GuildHandler) SetDefaultDelivery(w http.ResponseWriter, r *http.Request) {
	var req models.DefaultDeliveryRequest
	if err := decode(w, r, &req); err != nil {
		invalidInput(w, "invalid request body")
		return
	}

	guildID := r.PathValue("guild")
	c, ok := h.authorize(w, r, "setdefaultdelivery", guildID, permissions.ActionManageGuild)
	if !ok {
		return
	}
	mode, err := models.ParseDeliveryMode(req.Mode)
	if err != nil || mode == "" {
		h.invalid(w, c, "mode must be one of dm, channel, forum, both")
		return
	}
	if err := h.Store.SetDefaultDelivery(guildID, mode); err != nil {
		h.failed(w, c, err)
		return
	}
	h.succeeded(c)
	writeJSON(w, http.StatusOK, defaultDeliveryResponse{GuildID: guildID, Mode: mode, Explicit: true})
}

type updateChannelsResponse struct {
	GuildID    string   `json:"guild_id"`
	ChannelIDs []string `json:"channel_ids"`
}

func (h *GuildHandler) ListUpdateChannels(w http.ResponseWriter, r *http.Request) {
	guildID := r.PathValue("guild")
	c, ok := h.authorize(w, r, "listupdatechannels", guildID, permissions.ActionManageGuild)
	if !ok {
		return
	}
	h.succeeded(c)
	writeJSON(w, http.StatusOK, updateChannelsResponse{
		GuildID:    guildID,
		ChannelIDs: h.Store.GuildConfig(guildID).UpdateChannelIDs,
	})
}

func (h *GuildHandler) AddUpdateChannel(w http.ResponseWriter, r *http.Request) {
	h.changeUpdateChannel(w, r, "setupdatechannel", true)
}

func (h *GuildHandler) RemoveUpdateChannel(w http.ResponseWriter, r *http.Request) {
	h.changeUpdateChannel(w, r, "removeupdatechannel", false)
}

func (h *GuildHandler) changeUpdateChannel(w http.ResponseWriter, r *http.Request, name string, add bool) {
	var req models.UpdateChannelRequest
	if err := decode(w, r, &req); err != nil {
		invalidInput(w, "invalid request body")
		return
	}

	guildID := r.PathValue("guild")
	c, ok := h.authorize(w, r, name, guildID, permissions.ActionManageGuild)
	if !ok {
		return
	}
	channelID := strings.TrimSpace(req.ChannelID)
	if channelID == "" {
		h.invalid(w, c, "channel_id is required")
		return
	}

	var err error
	if add {
		kind, kerr := h.Platform.ChannelKind(r.Context(), channelID)
		if kerr != nil || kind == models.ChannelDM || kind == models.ChannelForum {
			h.invalid(w, c, "channel "+channelID+" cannot receive announcements")
			return
		}
		_, err = h.Store.AddUpdateChannel(guildID, channelID)
	} else {
		_, err = h.Store.RemoveUpdateChannel(guildID, channelID)
	}
	if err != nil {
		h.failed(w, c, err)
		return
	}
	h.succeeded(c)
	writeJSON(w, http.StatusOK, updateChannelsResponse{
		GuildID:    guildID,
		ChannelIDs: h.Store.GuildConfig(guildID).UpdateChannelIDs,
	})
}
