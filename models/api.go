package models

import "time"

// Error categories returned by the command API.
const (
	ErrorInvalidInput     = "invalid_input"
	ErrorPermissionDenied = "permission_denied"
	ErrorNotFound         = "not_found"
	ErrorInternal         = "internal"
)

type ErrorResponse struct {
	Category string `json:"category"`
	Error    string `json:"error"`
}

type TokenRequest struct {
	UserID string `json:"user_id"`
	Secret string `json:"secret"`
}

type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthorityRequest names a user or a role to add to or remove from an authority list.
type AuthorityRequest struct {
	UserID string `json:"user_id,omitempty"`
	RoleID string `json:"role_id,omitempty"`
}

type AuthorityList struct {
	GuildID string   `json:"guild_id"`
	Users   []string `json:"users"`
	Roles   []string `json:"roles"`
}

type DefaultDeliveryRequest struct {
	Mode string `json:"mode"`
}

type UpdateChannelRequest struct {
	ChannelID string `json:"channel_id"`
}

type BroadcastRequest struct {
	Message string `json:"message"`
}

type BroadcastResult struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

type StatusResponse struct {
	Uptime          string `json:"uptime"`
	RemindersStored int    `json:"reminders_stored"`
	SchedulerState  string `json:"scheduler_state"`
	LogLevel        string `json:"log_level"`
	CheckInterval   int    `json:"check_interval_seconds"`
}
