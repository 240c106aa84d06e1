// Package permissions decides an actor's authority tier within a guild and
// whether that tier may perform an action.
package permissions

import (
	"context"
	"fmt"
	"slices"

	"remindbot/models"
	"remindbot/platform"
)

// Action is something an actor asks to do.
type Action string

const (
	ActionCreateReminder  Action = "create_reminder"
	ActionListOwn         Action = "list_own"
	ActionCancelOwn       Action = "cancel_own"
	ActionEditOwn         Action = "edit_own"
	ActionListAny         Action = "list_any"
	ActionCancelAny       Action = "cancel_any"
	ActionManageAuthority Action = "manage_authority"
	ActionManageGuild     Action = "manage_guild"
)

// Actions lists every action.
var Actions = []Action{
	ActionCreateReminder, ActionListOwn, ActionCancelOwn, ActionEditOwn,
	ActionListAny, ActionCancelAny, ActionManageAuthority, ActionManageGuild,
}

// RequiredTier is the lowest tier allowed to perform action. Unknown actions
// require the owner.
func RequiredTier(action Action) models.Tier {
	switch action {
	case ActionCreateReminder, ActionListOwn, ActionCancelOwn, ActionEditOwn:
		return models.TierRegular
	case ActionListAny, ActionCancelAny:
		return models.TierUserManager
	case ActionManageAuthority, ActionManageGuild:
		return models.TierAdminManager
	default:
		return models.TierOwner
	}
}

// Can reports whether tier may perform action.
func Can(action Action, tier models.Tier) bool {
	return tier >= RequiredTier(action)
}

// Tier ranks actor within a guild: the owner first, then direct user entries,
// then role entries. The highest match wins.
func Tier(cfg models.GuildConfig, ownerID string, actor models.Actor) models.Tier {
	if actor.UserID == "" {
		return models.TierRegular
	}
	if actor.UserID == ownerID {
		return models.TierOwner
	}
	if slices.Contains(cfg.AdminUserIDs, actor.UserID) {
		return models.TierAdminManager
	}
	if slices.ContainsFunc(cfg.AdminRoleIDs, actor.HasRole) {
		return models.TierAdminManager
	}
	if slices.Contains(cfg.UserManagerIDs, actor.UserID) {
		return models.TierUserManager
	}
	if slices.ContainsFunc(cfg.UserManagerRoleIDs, actor.HasRole) {
		return models.TierUserManager
	}
	return models.TierRegular
}

// GuildConfigs supplies guild configuration; *store.Store satisfies it.
type GuildConfigs interface {
	GuildConfig(guildID string) models.GuildConfig
}

type Resolver struct {
	configs   GuildConfigs
	directory platform.Directory
}

func NewResolver(configs GuildConfigs, directory platform.Directory) *Resolver {
	return &Resolver{configs: configs, directory: directory}
}

// Tier looks up the guild owner and ranks actor.
func (r *Resolver) Tier(ctx context.Context, guildID string, actor models.Actor) (models.Tier, error) {
	guild, err := r.directory.Guild(ctx, guildID)
	if err != nil {
		return models.TierRegular, fmt.Errorf("resolve guild %s: %w", guildID, err)
	}
	return Tier(r.configs.GuildConfig(guildID), guild.OwnerID, actor), nil
}

// Allowed combines Tier and Can. The error reports lookup failures only;
// a denial is a plain false.
func (r *Resolver) Allowed(ctx context.Context, guildID string, actor models.Actor, action Action) (bool, error) {
	tier, err := r.Tier(ctx, guildID, actor)
	if err != nil {
		return false, err
	}
	return Can(action, tier), nil
}
