// Package platform abstracts the chat service reminders are delivered on.
package platform

import (
	"context"
	"errors"

	"remindbot/models"
)

var (
	// ErrForbidden means the bot lacks permission, e.g. the user closed DMs.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound means the channel, user or guild no longer exists.
	ErrNotFound = errors.New("not found")
)

// Directory answers questions about guilds, members and roles.
type Directory interface {
	Guild(ctx context.Context, guildID string) (*models.Guild, error)
	Guilds(ctx context.Context) ([]models.Guild, error)
	Member(ctx context.Context, guildID, userID string) (*models.Member, error)
	Members(ctx context.Context, guildID string) ([]models.Member, error)
	Roles(ctx context.Context, guildID string) ([]models.Role, error)
}

// Messenger sends messages.
type Messenger interface {
	DMChannel(ctx context.Context, userID string) (string, error)
	ChannelKind(ctx context.Context, channelID string) (models.ChannelKind, error)
	Send(ctx context.Context, channelID, content string) error
	// CreateThread opens a forum post titled title with content as its first message.
	CreateThread(ctx context.Context, forumID, title, content string) (string, error)
}

type Platform interface {
	Directory
	Messenger
}
