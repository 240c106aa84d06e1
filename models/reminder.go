package models

import (
	"fmt"
	"strings"
	"time"
)

// DeliveryMode is the destination class of a reminder.
type DeliveryMode string

const (
	DeliveryDM      DeliveryMode = "dm"
	DeliveryChannel DeliveryMode = "channel"
	DeliveryForum   DeliveryMode = "forum"
	DeliveryBoth    DeliveryMode = "both"
)

// DeliveryModes lists the accepted modes in display order.
var DeliveryModes = []DeliveryMode{DeliveryDM, DeliveryChannel, DeliveryForum, DeliveryBoth}

func (m DeliveryMode) Valid() bool {
	switch m {
	case DeliveryDM, DeliveryChannel, DeliveryForum, DeliveryBoth:
		return true
	}
	return false
}

// NeedsChannel reports whether the mode posts somewhere other than the owner's DMs.
func (m DeliveryMode) NeedsChannel() bool {
	return m == DeliveryChannel || m == DeliveryForum || m == DeliveryBoth
}

// ParseDeliveryMode normalizes user input. An empty string yields an empty mode and no error.
func ParseDeliveryMode(s string) (DeliveryMode, error) {
	m := DeliveryMode(strings.ToLower(strings.TrimSpace(s)))
	if m == "" || m.Valid() {
		return m, nil
	}
	return "", fmt.Errorf("unknown delivery mode %q (choose one of dm, channel, forum, both)", s)
}

type Reminder struct {
	ID            string       `json:"id"`
	OwnerUserID   string       `json:"owner_user_id"`
	GuildID       string       `json:"guild_id,omitempty"`
	Message       string       `json:"message"`
	DueAt         time.Time    `json:"due_at"`
	DeliveryMode  DeliveryMode `json:"delivery_mode"`
	TargetMention string       `json:"target_mention"`
	ChannelID     string       `json:"channel_id,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	// Malformed marks a stored record that cannot be scheduled. It can still
	// be listed and cancelled.
	Malformed bool `json:"malformed,omitempty"`
}

// Validate checks the mode/channel pairing every stored reminder must satisfy.
func (r *Reminder) Validate() error {
	if r.OwnerUserID == "" {
		return fmt.Errorf("reminder %s has no owner", r.ID)
	}
	if !r.DeliveryMode.Valid() {
		return fmt.Errorf("reminder %s has invalid delivery mode %q", r.ID, r.DeliveryMode)
	}
	if r.DeliveryMode.NeedsChannel() && r.ChannelID == "" {
		return fmt.Errorf("reminder %s uses %s delivery without a channel", r.ID, r.DeliveryMode)
	}
	return nil
}

// ReminderRequest carries the fields of a new reminder. Optional fields are empty when omitted.
type ReminderRequest struct {
	OwnerUserID   string
	GuildID       string
	Message       string
	DueAt         time.Time
	DeliveryMode  DeliveryMode
	TargetMention string
	ChannelID     string
}

// ReminderEdit lists the fields an edit replaces. Nil fields are left untouched.
type ReminderEdit struct {
	Message       *string
	DueAt         *time.Time
	DeliveryMode  *DeliveryMode
	TargetMention *string
	ChannelID     *string
}

type CreateReminderRequest struct {
	GuildID   string `json:"guild_id,omitempty"`
	Time      string `json:"time"`
	Message   string `json:"message"`
	Delivery  string `json:"delivery,omitempty"`
	Target    string `json:"target,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
}

type EditReminderRequest struct {
	Time      *string `json:"time,omitempty"`
	Message   *string `json:"message,omitempty"`
	Delivery  *string `json:"delivery,omitempty"`
	Target    *string `json:"target,omitempty"`
	ChannelID *string `json:"channel_id,omitempty"`
}

// UserMention renders the mention token of a user id.
func UserMention(userID string) string {
	return "<@" + userID + ">"
}

// RoleMention renders the mention token of a role id.
func RoleMention(roleID string) string {
	return "<@&" + roleID + ">"
}
