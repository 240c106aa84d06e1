// Package targets turns a free-form destination specifier into the mention a
// channel reminder pings.
package targets

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"remindbot/models"
	"remindbot/platform"
)

var (
	userMentionPattern = regexp.MustCompile(`^<@!?(\d+)>$`)
	roleMentionPattern = regexp.MustCompile(`^<@&(\d+)>$`)
	snowflakePattern   = regexp.MustCompile(`^\d+$`)
)

type Resolver struct {
	directory platform.Directory
}

func NewResolver(directory platform.Directory) *Resolver {
	return &Resolver{directory: directory}
}

// Resolve interprets spec on behalf of actor. It returns nil when nothing
// matches or the actor may not ping the match; callers must reject the
// request in that case. The error only reports platform lookup failures.
func (r *Resolver) Resolve(ctx context.Context, guildID string, actor models.Actor, spec string) (*models.Target, error) {
	spec = strings.TrimSpace(spec)

	switch lower := strings.ToLower(spec); lower {
	case "", "self", "me":
		return models.UserTarget(actor.UserID), nil
	case "everyone", "@everyone", "here", "@here":
		if !actor.CanMentionEveryone {
			return nil, nil
		}
		return models.BroadcastTarget(strings.TrimPrefix(lower, "@")), nil
	}

	if m := userMentionPattern.FindStringSubmatch(spec); m != nil {
		return r.member(ctx, guildID, m[1])
	}
	if m := roleMentionPattern.FindStringSubmatch(spec); m != nil {
		return r.role(ctx, guildID, actor, func(role models.Role) bool { return role.ID == m[1] })
	}
	if snowflakePattern.MatchString(spec) {
		target, err := r.member(ctx, guildID, spec)
		if target != nil || err != nil {
			return target, err
		}
		return r.role(ctx, guildID, actor, func(role models.Role) bool { return role.ID == spec })
	}
	return r.byName(ctx, guildID, actor, strings.TrimPrefix(spec, "@"))
}

func (r *Resolver) member(ctx context.Context, guildID, userID string) (*models.Target, error) {
	m, err := r.directory.Member(ctx, guildID, userID)
	if errors.Is(err, platform.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return models.UserTarget(m.UserID), nil
}

// role finds a role and checks the actor may ping it: they must hold the
// role or have the broadcast permission.
func (r *Resolver) role(ctx context.Context, guildID string, actor models.Actor, match func(models.Role) bool) (*models.Target, error) {
	roles, err := r.directory.Roles(ctx, guildID)
	if err != nil {
		return nil, err
	}
	for _, role := range roles {
		if !match(role) {
			continue
		}
		if !actor.HasRole(role.ID) && !actor.CanMentionEveryone {
			return nil, nil
		}
		return models.RoleTarget(role.ID), nil
	}
	return nil, nil
}

func (r *Resolver) byName(ctx context.Context, guildID string, actor models.Actor, name string) (*models.Target, error) {
	members, err := r.directory.Members(ctx, guildID)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		if m.Username == name {
			return models.UserTarget(m.UserID), nil
		}
	}
	for _, m := range members {
		if m.DisplayName != "" && m.DisplayName == name {
			return models.UserTarget(m.UserID), nil
		}
	}
	return r.role(ctx, guildID, actor, func(role models.Role) bool { return role.Name == name })
}
