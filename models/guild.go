package models

import (
	"slices"
	"strings"
)

// GuildConfig holds the per-guild authority lists and defaults.
type GuildConfig struct {
	AdminUserIDs       []string     `json:"admin_user_ids"`
	AdminRoleIDs       []string     `json:"admin_role_ids"`
	UserManagerIDs     []string     `json:"user_manager_ids"`
	UserManagerRoleIDs []string     `json:"user_manager_role_ids"`
	DefaultDelivery    DeliveryMode `json:"default_delivery,omitempty"`
	UpdateChannelIDs   []string     `json:"update_channel_ids"`
}

// Clone returns a deep copy.
func (g GuildConfig) Clone() GuildConfig {
	return GuildConfig{
		AdminUserIDs:       slices.Clone(g.AdminUserIDs),
		AdminRoleIDs:       slices.Clone(g.AdminRoleIDs),
		UserManagerIDs:     slices.Clone(g.UserManagerIDs),
		UserManagerRoleIDs: slices.Clone(g.UserManagerRoleIDs),
		DefaultDelivery:    g.DefaultDelivery,
		UpdateChannelIDs:   slices.Clone(g.UpdateChannelIDs),
	}
}

// AuthorityKind distinguishes user and role entries in the authority lists.
type AuthorityKind string

const (
	AuthorityUser AuthorityKind = "user"
	AuthorityRole AuthorityKind = "role"
)

// List returns a pointer to the id set for the given tier and kind, or nil when the
// tier has no list (Owner, Regular).
func (g *GuildConfig) List(tier Tier, kind AuthorityKind) *[]string {
	switch {
	case tier == TierAdminManager && kind == AuthorityUser:
		return &g.AdminUserIDs
	case tier == TierAdminManager && kind == AuthorityRole:
		return &g.AdminRoleIDs
	case tier == TierUserManager && kind == AuthorityUser:
		return &g.UserManagerIDs
	case tier == TierUserManager && kind == AuthorityRole:
		return &g.UserManagerRoleIDs
	}
	return nil
}

// Normalize sorts and de-duplicates the authority sets.
func (g *GuildConfig) Normalize() {
	for _, list := range []*[]string{&g.AdminUserIDs, &g.AdminRoleIDs, &g.UserManagerIDs, &g.UserManagerRoleIDs} {
		*list = CanonicalSet(*list)
	}
	if g.UpdateChannelIDs == nil {
		g.UpdateChannelIDs = []string{}
	}
}

// CanonicalSet trims, drops empties, sorts and removes duplicates. It never returns nil.
func CanonicalSet(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Tier is an actor's authority level within a guild. Higher values outrank lower ones.
type Tier int

const (
	TierRegular Tier = iota
	TierUserManager
	TierAdminManager
	TierOwner
)

func (t Tier) String() string {
	switch t {
	case TierOwner:
		return "owner"
	case TierAdminManager:
		return "admin_manager"
	case TierUserManager:
		return "user_manager"
	default:
		return "regular"
	}
}

// Guild is the platform's view of a guild.
type Guild struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	OwnerID string `json:"owner_id"`
}

type Role struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Member is a guild member as reported by the platform.
type Member struct {
	UserID             string   `json:"user_id"`
	Username           string   `json:"username"`
	DisplayName        string   `json:"display_name"`
	RoleIDs            []string `json:"role_ids"`
	CanMentionEveryone bool     `json:"can_mention_everyone"`
}

// Actor is whoever issues a command: the user plus the role memberships and
// broadcast permission they hold at that moment.
type Actor struct {
	UserID             string
	RoleIDs            []string
	CanMentionEveryone bool
}

// ActorFromMember builds an Actor from a live membership.
func ActorFromMember(m *Member) Actor {
	if m == nil {
		return Actor{}
	}
	return Actor{UserID: m.UserID, RoleIDs: m.RoleIDs, CanMentionEveryone: m.CanMentionEveryone}
}

// HasRole reports whether the actor currently holds roleID.
func (a Actor) HasRole(roleID string) bool {
	return slices.Contains(a.RoleIDs, roleID)
}

// ChannelKind classifies a delivery channel.
type ChannelKind int

const (
	ChannelText ChannelKind = iota
	ChannelThread
	ChannelForum
	ChannelDM
)
