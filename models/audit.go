package models

import "time"

// CommandRecord is one audited command attempt.
type CommandRecord struct {
	ID         int64     `json:"id"`
	Command    string    `json:"command"`
	UserID     string    `json:"user_id"`
	GuildID    string    `json:"guild_id,omitempty"`
	Permission string    `json:"permission"`
	Success    bool      `json:"success"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// DeliveryRecord is one audited delivery attempt.
type DeliveryRecord struct {
	ID          int64       `json:"id"`
	ReminderID  string      `json:"reminder_id"`
	OwnerUserID string      `json:"owner_user_id"`
	GuildID     string      `json:"guild_id,omitempty"`
	Destination Destination `json:"destination"`
	ChannelID   string      `json:"channel_id,omitempty"`
	Failure     FailureKind `json:"failure,omitempty"`
	Error       string      `json:"error,omitempty"`
	Missed      bool        `json:"missed"`
	CreatedAt   time.Time   `json:"created_at"`
}
