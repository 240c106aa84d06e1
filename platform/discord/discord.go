// Package discord implements the platform interfaces on top of discordgo.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"remindbot/logging"
	"remindbot/models"
	"remindbot/platform"

	"github.com/bwmarrin/discordgo"
)

// threadArchiveMinutes is how long a forum post created for a reminder stays active.
const threadArchiveMinutes = 1440

// memberPageSize is the maximum page size of the guild members endpoint.
const memberPageSize = 1000

type Platform struct {
	session *discordgo.Session
	log     *slog.Logger
}

var _ platform.Platform = (*Platform)(nil)

// New creates a session for a bot token. Open must be called before use.
func New(token string, logger *slog.Logger) (*Platform, error) {
	if token == "" {
		return nil, fmt.Errorf("discord token is empty")
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers | discordgo.IntentsDirectMessages

	p := &Platform{session: session, log: logging.OrNop(logger).With("component", "discord")}
	session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		p.log.Info("connected to discord", "user", r.User.Username, "guilds", len(r.Guilds))
	})
	return p, nil
}

func (p *Platform) Open() error {
	return p.session.Open()
}

func (p *Platform) Close() error {
	return p.session.Close()
}

// classify maps REST failures onto the platform sentinel errors.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		switch restErr.Response.StatusCode {
		case http.StatusForbidden:
			return fmt.Errorf("%w: %v", platform.ErrForbidden, err)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %v", platform.ErrNotFound, err)
		}
	}
	return err
}

// Directory

func (p *Platform) Guild(ctx context.Context, guildID string) (*models.Guild, error) {
	g, err := p.session.State.Guild(guildID)
	if err != nil {
		g, err = p.session.Guild(guildID, discordgo.WithContext(ctx))
		if err != nil {
			return nil, classify(err)
		}
	}
	return &models.Guild{ID: g.ID, Name: g.Name, OwnerID: g.OwnerID}, nil
}

func (p *Platform) Guilds(_ context.Context) ([]models.Guild, error) {
	p.session.State.RLock()
	defer p.session.State.RUnlock()

	out := make([]models.Guild, 0, len(p.session.State.Guilds))
	for _, g := range p.session.State.Guilds {
		out = append(out, models.Guild{ID: g.ID, Name: g.Name, OwnerID: g.OwnerID})
	}
	return out, nil
}

func (p *Platform) Member(ctx context.Context, guildID, userID string) (*models.Member, error) {
	m, err := p.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify(err)
	}
	roles, err := p.guildRoles(ctx, guildID)
	if err != nil {
		return nil, err
	}
	ownerID := ""
	if g, err := p.Guild(ctx, guildID); err == nil {
		ownerID = g.OwnerID
	}
	member := toMember(m, guildID, ownerID, roles)
	return &member, nil
}

func (p *Platform) Members(ctx context.Context, guildID string) ([]models.Member, error) {
	roles, err := p.guildRoles(ctx, guildID)
	if err != nil {
		return nil, err
	}
	ownerID := ""
	if g, err := p.Guild(ctx, guildID); err == nil {
		ownerID = g.OwnerID
	}

	var out []models.Member
	after := ""
	for {
		page, err := p.session.GuildMembers(guildID, after, memberPageSize, discordgo.WithContext(ctx))
		if err != nil {
			return nil, classify(err)
		}
		for _, m := range page {
			out = append(out, toMember(m, guildID, ownerID, roles))
		}
		if len(page) < memberPageSize {
			return out, nil
		}
		after = page[len(page)-1].User.ID
	}
}

func (p *Platform) Roles(ctx context.Context, guildID string) ([]models.Role, error) {
	roles, err := p.guildRoles(ctx, guildID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Role, 0, len(roles))
	for _, r := range roles {
		out = append(out, models.Role{ID: r.ID, Name: r.Name})
	}
	return out, nil
}

func (p *Platform) guildRoles(ctx context.Context, guildID string) ([]*discordgo.Role, error) {
	roles, err := p.session.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify(err)
	}
	return roles, nil
}

// toMember resolves the guild-level mention-everyone permission from the
// member's roles plus the implicit @everyone role.
func toMember(m *discordgo.Member, guildID, ownerID string, roles []*discordgo.Role) models.Member {
	var perms int64
	for _, r := range roles {
		if r.ID == guildID || slices.Contains(m.Roles, r.ID) {
			perms |= r.Permissions
		}
	}
	canMention := m.User.ID == ownerID ||
		perms&discordgo.PermissionAdministrator != 0 ||
		perms&discordgo.PermissionMentionEveryone != 0

	display := m.Nick
	if display == "" {
		display = m.User.GlobalName
	}
	return models.Member{
		UserID:             m.User.ID,
		Username:           m.User.Username,
		DisplayName:        display,
		RoleIDs:            slices.Clone(m.Roles),
		CanMentionEveryone: canMention,
	}
}

// Messenger

func (p *Platform) DMChannel(ctx context.Context, userID string) (string, error) {
	ch, err := p.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", classify(err)
	}
	return ch.ID, nil
}

func (p *Platform) ChannelKind(ctx context.Context, channelID string) (models.ChannelKind, error) {
	ch, err := p.session.State.Channel(channelID)
	if err != nil {
		ch, err = p.session.Channel(channelID, discordgo.WithContext(ctx))
		if err != nil {
			return 0, classify(err)
		}
	}
	switch ch.Type {
	case discordgo.ChannelTypeGuildForum:
		return models.ChannelForum, nil
	case discordgo.ChannelTypeGuildPublicThread, discordgo.ChannelTypeGuildPrivateThread, discordgo.ChannelTypeGuildNewsThread:
		return models.ChannelThread, nil
	case discordgo.ChannelTypeDM, discordgo.ChannelTypeGroupDM:
		return models.ChannelDM, nil
	default:
		return models.ChannelText, nil
	}
}

func (p *Platform) Send(ctx context.Context, channelID, content string) error {
	_, err := p.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	return classify(err)
}

func (p *Platform) CreateThread(ctx context.Context, forumID, title, content string) (string, error) {
	th, err := p.session.ForumThreadStart(forumID, title, threadArchiveMinutes, content, discordgo.WithContext(ctx))
	if err != nil {
		return "", classify(err)
	}
	return th.ID, nil
}
