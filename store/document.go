package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"time"

	"remindbot/models"
)

// document is the on-disk layout of the data file.
type document struct {
	Reminders []record                      `json:"reminders"`
	Guilds    map[string]models.GuildConfig `json:"guilds"`
}

func emptyDocument() document {
	return document{Reminders: []record{}, Guilds: map[string]models.GuildConfig{}}
}

func (d document) clone() document {
	out := document{
		Reminders: slices.Clone(d.Reminders),
		Guilds:    make(map[string]models.GuildConfig, len(d.Guilds)),
	}
	if out.Reminders == nil {
		out.Reminders = []record{}
	}
	for id, cfg := range d.Guilds {
		out.Guilds[id] = cfg.Clone()
	}
	return out
}

func (d document) index(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(d.Reminders, func(r record) bool { return r.ID == id })
}

// record keeps timestamps as text so a malformed entry survives a load/save
// cycle untouched instead of failing the whole file. An entry that does not
// decode at all keeps its original bytes in raw and is written back verbatim.
type record struct {
	ID            string              `json:"id"`
	OwnerUserID   models.Snowflake    `json:"owner_user_id"`
	GuildID       models.Snowflake    `json:"guild_id,omitempty"`
	Message       string              `json:"message"`
	DueAt         string              `json:"due_at"`
	DeliveryMode  models.DeliveryMode `json:"delivery_mode"`
	TargetMention string              `json:"target_mention"`
	ChannelID     models.Snowflake    `json:"channel_id,omitempty"`
	CreatedAt     string              `json:"created_at,omitempty"`

	raw     json.RawMessage
	problem error
}

// plainRecord drops the custom codec so record can decode its own fields.
type plainRecord record

func (rec *record) UnmarshalJSON(data []byte) error {
	var plain plainRecord
	if err := json.Unmarshal(data, &plain); err != nil {
		*rec = salvageRecord(data, err)
		return nil
	}
	*rec = record(plain)
	return nil
}

func (rec record) MarshalJSON() ([]byte, error) {
	if rec.raw != nil {
		return rec.raw, nil
	}
	return json.Marshal(plainRecord(rec))
}

// salvageRecord recovers whatever fields of an undecodable entry still read
// cleanly, so the entry stays addressable by id and owner.
func salvageRecord(data []byte, cause error) record {
	rec := record{raw: bytes.Clone(data), problem: cause}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return rec
	}
	salvage := func(key string, dst any) {
		if v, ok := fields[key]; ok {
			_ = json.Unmarshal(v, dst)
		}
	}
	salvage("id", &rec.ID)
	salvage("owner_user_id", &rec.OwnerUserID)
	salvage("guild_id", &rec.GuildID)
	salvage("message", &rec.Message)
	salvage("delivery_mode", &rec.DeliveryMode)
	salvage("target_mention", &rec.TargetMention)
	salvage("channel_id", &rec.ChannelID)
	return rec
}

func newRecord(r *models.Reminder) record {
	rec := record{
		ID:            r.ID,
		OwnerUserID:   models.Snowflake(r.OwnerUserID),
		GuildID:       models.Snowflake(r.GuildID),
		Message:       r.Message,
		DueAt:         r.DueAt.Format(time.RFC3339Nano),
		DeliveryMode:  r.DeliveryMode,
		TargetMention: r.TargetMention,
		ChannelID:     models.Snowflake(r.ChannelID),
	}
	if !r.CreatedAt.IsZero() {
		rec.CreatedAt = r.CreatedAt.Format(time.RFC3339Nano)
	}
	return rec
}

// naiveLayouts are accepted for timestamps written without an offset; they
// are read in the configured zone.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

func parseTimestamp(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unreadable timestamp %q", s)
}

func (rec record) reminder(loc *time.Location) (models.Reminder, error) {
	if rec.problem != nil {
		return models.Reminder{}, fmt.Errorf("undecodable record: %w", rec.problem)
	}
	due, err := parseTimestamp(rec.DueAt, loc)
	if err != nil {
		return models.Reminder{}, fmt.Errorf("due_at: %w", err)
	}
	r := models.Reminder{
		ID:            rec.ID,
		OwnerUserID:   rec.OwnerUserID.String(),
		GuildID:       rec.GuildID.String(),
		Message:       rec.Message,
		DueAt:         due,
		DeliveryMode:  rec.DeliveryMode,
		TargetMention: rec.TargetMention,
		ChannelID:     rec.ChannelID.String(),
	}
	if rec.CreatedAt != "" {
		if created, err := parseTimestamp(rec.CreatedAt, loc); err == nil {
			r.CreatedAt = created
		}
	}
	return r, nil
}

// partial returns the readable fields of a record whose reminder() fails,
// flagged as malformed. DueAt is left zero.
func (rec record) partial() models.Reminder {
	return models.Reminder{
		ID:            rec.ID,
		OwnerUserID:   rec.OwnerUserID.String(),
		GuildID:       rec.GuildID.String(),
		Message:       rec.Message,
		DeliveryMode:  rec.DeliveryMode,
		TargetMention: rec.TargetMention,
		ChannelID:     rec.ChannelID.String(),
		Malformed:     true,
	}
}

// guildRecord accepts both current and legacy authority key names.
type guildRecord struct {
	AdminUserIDs       []models.Snowflake `json:"admin_user_ids"`
	AdminRoleIDs       []models.Snowflake `json:"admin_role_ids"`
	UserManagerIDs     []models.Snowflake `json:"user_manager_ids"`
	UserManagerRoleIDs []models.Snowflake `json:"user_manager_role_ids"`
	DefaultDelivery    string             `json:"default_delivery"`
	UpdateChannelIDs   []models.Snowflake `json:"update_channel_ids"`

	Admins           []models.Snowflake `json:"admins"`
	AdminRoles       []models.Snowflake `json:"admin_roles"`
	UserManagers     []models.Snowflake `json:"user_managers"`
	UserManagerRoles []models.Snowflake `json:"user_manager_roles"`
}

func (g guildRecord) legacy() bool {
	return g.Admins != nil || g.AdminRoles != nil || g.UserManagers != nil || g.UserManagerRoles != nil
}

func (g guildRecord) config() models.GuildConfig {
	cfg := models.GuildConfig{
		AdminUserIDs:       models.Strings(append(g.AdminUserIDs, g.Admins...)),
		AdminRoleIDs:       models.Strings(append(g.AdminRoleIDs, g.AdminRoles...)),
		UserManagerIDs:     models.Strings(append(g.UserManagerIDs, g.UserManagers...)),
		UserManagerRoleIDs: models.Strings(append(g.UserManagerRoleIDs, g.UserManagerRoles...)),
		UpdateChannelIDs:   models.Strings(g.UpdateChannelIDs),
	}
	if mode := models.DeliveryMode(g.DefaultDelivery); mode.Valid() {
		cfg.DefaultDelivery = mode
	}
	cfg.Normalize()
	return cfg
}

// readDocument loads the data file. The boolean reports whether legacy keys
// were migrated and the file should be rewritten.
func readDocument(path string) (document, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return document{}, false, err
	}

	var raw struct {
		Reminders      []record                    `json:"reminders"`
		Guilds         map[string]guildRecord      `json:"guilds"`
		Settings       map[string]guildRecord      `json:"settings"`
		UpdateChannels map[string]models.Snowflake `json:"update_channels"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return document{}, false, fmt.Errorf("decode: %w", err)
	}

	doc := emptyDocument()
	if raw.Reminders != nil {
		doc.Reminders = raw.Reminders
	}

	migrated := raw.Settings != nil || raw.UpdateChannels != nil
	for id, g := range raw.Settings {
		doc.Guilds[id] = g.config()
	}
	for id, g := range raw.Guilds {
		migrated = migrated || g.legacy()
		doc.Guilds[id] = g.config()
	}
	for id, channel := range raw.UpdateChannels {
		if channel == "" {
			continue
		}
		cfg := doc.Guilds[id]
		if !slices.Contains(cfg.UpdateChannelIDs, channel.String()) {
			cfg.UpdateChannelIDs = append(cfg.UpdateChannelIDs, channel.String())
		}
		cfg.Normalize()
		doc.Guilds[id] = cfg
	}
	return doc, migrated, nil
}
