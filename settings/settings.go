// Package settings loads the runtime settings file and keeps the current
// values available to the rest of the engine while it changes on disk.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"remindbot/fsutil"
	"remindbot/logging"
	"remindbot/models"
)

const (
	DefaultCheckInterval = 60
	DefaultLogLevel      = "INFO"
)

// Settings are the hot-reloadable runtime values.
type Settings struct {
	Token                string   `json:"-"`
	TestGuildID          string   `json:"test_guild_id"`
	BackendGuildID       string   `json:"backend_guild_id"`
	BackendLogChannelID  string   `json:"backend_log_channel_id"`
	SupportInvite        string   `json:"support_invite"`
	CheckIntervalSeconds int      `json:"check_interval_seconds"`
	LogLevel             string   `json:"log_level"`
	AutoRestart          bool     `json:"auto_restart"`
	DevIDs               []string `json:"dev_ids"`
}

// CheckInterval is the scheduler poll interval, never less than one second.
func (s Settings) CheckInterval() time.Duration {
	if s.CheckIntervalSeconds < 1 {
		return time.Second
	}
	return time.Duration(s.CheckIntervalSeconds) * time.Second
}

// IsDeveloper reports whether userID is a bot operator.
func (s Settings) IsDeveloper(userID string) bool {
	return userID != "" && slices.Contains(s.DevIDs, userID)
}

// defaults are written for every recognized key that is missing from the file.
var defaults = map[string]any{
	"token":                  "",
	"test_guild_id":          "",
	"backend_guild_id":       "",
	"backend_log_channel_id": "",
	"support_invite":         "",
	"check_interval_seconds": DefaultCheckInterval,
	"log_level":              DefaultLogLevel,
	"auto_restart":           false,
	"dev_ids":                []string{},
}

// fileSettings mirrors the file. Identifiers may be numbers or strings.
type fileSettings struct {
	Token                string             `json:"token"`
	TestGuildID          models.Snowflake   `json:"test_guild_id"`
	BackendGuildID       models.Snowflake   `json:"backend_guild_id"`
	BackendLogChannelID  models.Snowflake   `json:"backend_log_channel_id"`
	SupportInvite        string             `json:"support_invite"`
	CheckIntervalSeconds *int               `json:"check_interval_seconds"`
	LogLevel             string             `json:"log_level"`
	AutoRestart          bool               `json:"auto_restart"`
	DevIDs               []models.Snowflake `json:"dev_ids"`
}

func (f fileSettings) settings() Settings {
	s := Settings{
		Token:                f.Token,
		TestGuildID:          f.TestGuildID.String(),
		BackendGuildID:       f.BackendGuildID.String(),
		BackendLogChannelID:  f.BackendLogChannelID.String(),
		SupportInvite:        f.SupportInvite,
		CheckIntervalSeconds: DefaultCheckInterval,
		LogLevel:             f.LogLevel,
		AutoRestart:          f.AutoRestart,
		DevIDs:               models.CanonicalSet(models.Strings(f.DevIDs)),
	}
	if f.CheckIntervalSeconds != nil && *f.CheckIntervalSeconds > 0 {
		s.CheckIntervalSeconds = *f.CheckIntervalSeconds
	}
	if s.LogLevel == "" {
		s.LogLevel = DefaultLogLevel
	}
	return s
}

// Manager owns the settings file. Current is safe for concurrent use; a
// failed reload keeps the previous values.
type Manager struct {
	path    string
	log     *slog.Logger
	current atomic.Pointer[Settings]

	mu        sync.Mutex
	modTime   int64
	listeners []func(Settings)
}

// Load reads path, creating it with defaults when absent.
func Load(path string, logger *slog.Logger) (*Manager, error) {
	m := &Manager{path: path, log: logging.OrNop(logger).With("component", "settings")}

	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.read()
	if err != nil {
		return nil, err
	}
	m.current.Store(&s)
	return m, nil
}

// Static returns a Manager that serves fixed values and never touches disk.
func Static(s Settings) *Manager {
	m := &Manager{log: logging.Nop()}
	m.current.Store(&s)
	return m
}

func (m *Manager) Path() string {
	return m.path
}

// Current returns a copy of the active settings.
func (m *Manager) Current() Settings {
	s := *m.current.Load()
	s.DevIDs = slices.Clone(s.DevIDs)
	return s
}

// CheckInterval is a shortcut for Current().CheckInterval().
func (m *Manager) CheckInterval() time.Duration {
	return m.current.Load().CheckInterval()
}

// OnReload registers fn to run after each successful reload.
func (m *Manager) OnReload(fn func(Settings)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Changed reports whether the file's mtime differs from the last read.
func (m *Manager) Changed() bool {
	if m.path == "" {
		return false
	}
	mt, ok := fsutil.ModTime(m.path)
	m.mu.Lock()
	defer m.mu.Unlock()
	return ok && mt != m.modTime
}

// Reload re-reads the file. On error the previous settings stay active.
func (m *Manager) Reload() (Settings, error) {
	if m.path == "" {
		return m.Current(), nil
	}

	m.mu.Lock()
	s, err := m.read()
	if err != nil {
		m.mu.Unlock()
		m.log.Warn("settings reload failed, keeping previous values", "path", m.path, "error", err)
		return m.Current(), err
	}
	m.current.Store(&s)
	listeners := slices.Clone(m.listeners)
	m.mu.Unlock()

	m.log.Info("settings reloaded",
		"check_interval_seconds", s.CheckIntervalSeconds,
		"log_level", s.LogLevel,
		"dev_ids", len(s.DevIDs))
	for _, fn := range listeners {
		fn(s)
	}
	return s, nil
}

// read loads the file, fills in missing keys and rewrites it when needed.
// Unknown keys are preserved. Callers hold m.mu.
func (m *Manager) read() (Settings, error) {
	data, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		data = []byte("{}")
	} else if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}

	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Settings{}, fmt.Errorf("decode settings %s: %w", m.path, err)
	}

	missing := false
	for key, value := range defaults {
		if _, ok := raw[key]; ok {
			continue
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return Settings{}, err
		}
		raw[key] = encoded
		missing = true
	}

	filled, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return Settings{}, err
	}
	var f fileSettings
	if err := json.Unmarshal(filled, &f); err != nil {
		return Settings{}, fmt.Errorf("decode settings %s: %w", m.path, err)
	}

	if missing {
		if err := fsutil.WriteFileAtomic(m.path, filled, 0o600); err != nil {
			return Settings{}, fmt.Errorf("write settings defaults: %w", err)
		}
		m.log.Info("filled missing settings keys", "path", m.path)
	}
	if mt, ok := fsutil.ModTime(m.path); ok {
		m.modTime = mt
	}
	return f.settings(), nil
}
