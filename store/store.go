package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sort"
	"sync"
	"time"

	"remindbot/clock"
	"remindbot/fsutil"
	"remindbot/logging"
	"remindbot/metrics"
	"remindbot/models"

	"github.com/google/uuid"
)

var (
	ErrReminderNotFound = errors.New("reminder not found")
	ErrReminderInFlight = errors.New("reminder is being delivered")
	ErrInvalidReminder  = errors.New("invalid reminder")
	ErrUnknownAuthority = errors.New("unknown authority list")
)

// Store owns the reminder and guild configuration document. Every mutation is
// written to disk before it becomes visible in memory.
type Store struct {
	mu       sync.RWMutex
	path     string
	clock    clock.Clock
	log      *slog.Logger
	metrics  *metrics.Metrics
	doc      document
	inFlight map[string]struct{}
}

func New(path string, clk clock.Clock, logger *slog.Logger) (*Store, error) {
	s := &Store{
		path:     path,
		clock:    clk,
		log:      logging.OrNop(logger).With("component", "store"),
		inFlight: make(map[string]struct{}),
	}

	doc, migrated, err := readDocument(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		doc = emptyDocument()
		migrated = true
	case err != nil:
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if migrated {
		if err := writeDocument(path, doc); err != nil {
			return nil, fmt.Errorf("initialize %s: %w", path, err)
		}
	}
	s.doc = doc
	return s, nil
}

// SetMetrics attaches collectors for skipped records and persistence failures.
func (s *Store) SetMetrics(m *metrics.Metrics) {
	s.mu.Lock()
	s.metrics = m
	s.mu.Unlock()
	m.SetStored(s.Count())
}

// Path returns the data file location.
func (s *Store) Path() string {
	return s.path
}

// mutate applies fn to a copy of the document, persists the copy and only
// then swaps it in. On any error the previous state is kept.
func (s *Store) mutate(fn func(doc *document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.doc.clone()
	if err := fn(&next); err != nil {
		return err
	}
	if err := writeDocument(s.path, next); err != nil {
		s.metrics.RecordPersistError()
		return fmt.Errorf("persist %s: %w", s.path, err)
	}
	s.doc = next
	s.metrics.SetStored(len(next.Reminders))
	return nil
}

// Reminder operations

func (s *Store) AddReminder(req models.ReminderRequest) (*models.Reminder, error) {
	if req.OwnerUserID == "" {
		return nil, fmt.Errorf("%w: owner is required", ErrInvalidReminder)
	}
	if req.Message == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalidReminder)
	}
	if req.DueAt.IsZero() {
		return nil, fmt.Errorf("%w: due time is required", ErrInvalidReminder)
	}
	if req.DeliveryMode == "" {
		req.DeliveryMode = models.DeliveryDM
	}
	if req.TargetMention == "" {
		req.TargetMention = models.UserMention(req.OwnerUserID)
	}

	reminder := &models.Reminder{
		ID:            uuid.New().String(),
		OwnerUserID:   req.OwnerUserID,
		GuildID:       req.GuildID,
		Message:       req.Message,
		DueAt:         req.DueAt.In(s.clock.Location()),
		DeliveryMode:  req.DeliveryMode,
		TargetMention: req.TargetMention,
		ChannelID:     req.ChannelID,
		CreatedAt:     s.clock.Now(),
	}
	if err := reminder.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReminder, err)
	}

	err := s.mutate(func(doc *document) error {
		doc.Reminders = append(doc.Reminders, newRecord(reminder))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reminder, nil
}

// RemoveReminder deletes a reminder. Removing an absent id is not an error;
// the boolean reports whether anything was removed.
func (s *Store) RemoveReminder(id string) (bool, error) {
	removed := false
	err := s.mutate(func(doc *document) error {
		i := doc.index(id)
		if i < 0 {
			return errNoChange
		}
		doc.Reminders = slices.Delete(doc.Reminders, i, i+1)
		removed = true
		return nil
	})
	if errors.Is(err, errNoChange) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return removed, nil
}

// DueReminders returns every reminder due at or before now, oldest first.
// Records with unreadable timestamps or an inconsistent mode/channel pair are
// skipped with a warning and left in place. Reminders currently being
// delivered are not returned again.
func (s *Store) DueReminders(now time.Time) ([]models.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []models.Reminder
	for _, rec := range s.doc.Reminders {
		r, err := rec.reminder(s.clock.Location())
		if err != nil {
			s.log.Warn("skipping malformed reminder", "id", rec.ID, "error", err)
			s.metrics.RecordSkipped()
			continue
		}
		if err := r.Validate(); err != nil {
			s.log.Warn("skipping inconsistent reminder", "id", rec.ID, "error", err)
			s.metrics.RecordSkipped()
			continue
		}
		if _, busy := s.inFlight[r.ID]; busy {
			continue
		}
		if !r.DueAt.After(now) {
			due = append(due, r)
		}
	}
	sortByDue(due)
	return due, nil
}

// Reminder looks up a reminder by id. A malformed record is returned with
// Malformed set and only the fields that could be read.
func (s *Store) Reminder(id string) (*models.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.doc.index(id)
	if i < 0 {
		return nil, ErrReminderNotFound
	}
	rec := s.doc.Reminders[i]
	r, err := rec.reminder(s.clock.Location())
	if err != nil {
		r = rec.partial()
	}
	return &r, nil
}

// RemindersForGuild lists the reminders created in a guild, malformed ones included.
func (s *Store) RemindersForGuild(guildID string) []models.Reminder {
	return s.filter(func(r *models.Reminder) bool {
		return r.GuildID == guildID
	})
}

// RemindersForUser lists a user's reminders. An empty guildID matches every guild.
func (s *Store) RemindersForUser(guildID, userID string) []models.Reminder {
	return s.filter(func(r *models.Reminder) bool {
		return r.OwnerUserID == userID && (guildID == "" || r.GuildID == guildID)
	})
}

func (s *Store) filter(keep func(*models.Reminder) bool) []models.Reminder {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Reminder{}
	for _, rec := range s.doc.Reminders {
		r, err := rec.reminder(s.clock.Location())
		if err != nil {
			r = rec.partial()
		}
		if keep(&r) {
			out = append(out, r)
		}
	}
	sortByDue(out)
	return out
}

// Count returns the number of stored reminders, readable or not.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.doc.Reminders)
}

func (s *Store) EditReminder(id string, edit models.ReminderEdit) (*models.Reminder, error) {
	var updated models.Reminder
	err := s.mutate(func(doc *document) error {
		if _, busy := s.inFlight[id]; busy {
			return ErrReminderInFlight
		}
		i := doc.index(id)
		if i < 0 {
			return ErrReminderNotFound
		}
		r, err := doc.Reminders[i].reminder(s.clock.Location())
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidReminder, err)
		}
		if edit.Message != nil {
			if *edit.Message == "" {
				return fmt.Errorf("%w: message is required", ErrInvalidReminder)
			}
			r.Message = *edit.Message
		}
		if edit.DueAt != nil {
			r.DueAt = edit.DueAt.In(s.clock.Location())
		}
		if edit.DeliveryMode != nil {
			r.DeliveryMode = *edit.DeliveryMode
		}
		if edit.TargetMention != nil {
			r.TargetMention = *edit.TargetMention
		}
		if edit.ChannelID != nil {
			r.ChannelID = *edit.ChannelID
		}
		if err := r.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidReminder, err)
		}
		doc.Reminders[i] = newRecord(&r)
		updated = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// MarkInFlight excludes a reminder from due scans and edits until ClearInFlight.
// It reports false when the reminder is already in flight or does not exist.
func (s *Store) MarkInFlight(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.inFlight[id]; busy || s.doc.index(id) < 0 {
		return false
	}
	s.inFlight[id] = struct{}{}
	return true
}

func (s *Store) ClearInFlight(id string) {
	s.mu.Lock()
	delete(s.inFlight, id)
	s.mu.Unlock()
}

// Guild operations

// GuildConfig returns the configuration of a guild, or an empty one when the
// guild has never been configured. Reading never creates an entry.
func (s *Store) GuildConfig(guildID string) models.GuildConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg := s.doc.Guilds[guildID].Clone()
	cfg.Normalize()
	return cfg
}

// Guilds lists the ids of configured guilds.
func (s *Store) Guilds() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.doc.Guilds))
	for id := range s.doc.Guilds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AddAuthority grants tier to a user or role. It reports whether the list changed.
func (s *Store) AddAuthority(guildID string, tier models.Tier, kind models.AuthorityKind, id string) (bool, error) {
	return s.updateGuild(guildID, func(cfg *models.GuildConfig) (bool, error) {
		list := cfg.List(tier, kind)
		if list == nil {
			return false, fmt.Errorf("%w: %s %s", ErrUnknownAuthority, tier, kind)
		}
		if slices.Contains(*list, id) {
			return false, nil
		}
		*list = models.CanonicalSet(append(*list, id))
		return true, nil
	})
}

func (s *Store) RemoveAuthority(guildID string, tier models.Tier, kind models.AuthorityKind, id string) (bool, error) {
	return s.updateGuild(guildID, func(cfg *models.GuildConfig) (bool, error) {
		list := cfg.List(tier, kind)
		if list == nil {
			return false, fmt.Errorf("%w: %s %s", ErrUnknownAuthority, tier, kind)
		}
		i := slices.Index(*list, id)
		if i < 0 {
			return false, nil
		}
		*list = slices.Delete(*list, i, i+1)
		return true, nil
	})
}

func (s *Store) SetDefaultDelivery(guildID string, mode models.DeliveryMode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: unknown delivery mode %q", ErrInvalidReminder, mode)
	}
	_, err := s.updateGuild(guildID, func(cfg *models.GuildConfig) (bool, error) {
		if cfg.DefaultDelivery == mode {
			return false, nil
		}
		cfg.DefaultDelivery = mode
		return true, nil
	})
	return err
}

func (s *Store) AddUpdateChannel(guildID, channelID string) (bool, error) {
	return s.updateGuild(guildID, func(cfg *models.GuildConfig) (bool, error) {
		if slices.Contains(cfg.UpdateChannelIDs, channelID) {
			return false, nil
		}
		cfg.UpdateChannelIDs = append(cfg.UpdateChannelIDs, channelID)
		return true, nil
	})
}

func (s *Store) RemoveUpdateChannel(guildID, channelID string) (bool, error) {
	return s.updateGuild(guildID, func(cfg *models.GuildConfig) (bool, error) {
		i := slices.Index(cfg.UpdateChannelIDs, channelID)
		if i < 0 {
			return false, nil
		}
		cfg.UpdateChannelIDs = slices.Delete(cfg.UpdateChannelIDs, i, i+1)
		return true, nil
	})
}

// UpdateChannels maps each guild to its announcement channels.
func (s *Store) UpdateChannels() map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]string)
	for id, cfg := range s.doc.Guilds {
		if len(cfg.UpdateChannelIDs) > 0 {
			out[id] = slices.Clone(cfg.UpdateChannelIDs)
		}
	}
	return out
}

func (s *Store) updateGuild(guildID string, fn func(cfg *models.GuildConfig) (bool, error)) (bool, error) {
	if guildID == "" {
		return false, fmt.Errorf("%w: guild is required", ErrInvalidReminder)
	}
	err := s.mutate(func(doc *document) error {
		cfg := doc.Guilds[guildID].Clone()
		cfg.Normalize()
		changed, err := fn(&cfg)
		if err != nil {
			return err
		}
		if !changed {
			return errNoChange
		}
		doc.Guilds[guildID] = cfg
		return nil
	})
	if errors.Is(err, errNoChange) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// sortByDue orders reminders oldest first with malformed records last.
func sortByDue(reminders []models.Reminder) {
	sort.SliceStable(reminders, func(i, j int) bool {
		a, b := reminders[i], reminders[j]
		if a.Malformed != b.Malformed {
			return b.Malformed
		}
		return a.DueAt.Before(b.DueAt)
	})
}

// errNoChange aborts a mutation without touching the file.
var errNoChange = errors.New("no change")

func writeDocument(path string, doc document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(path, data, 0o644)
}
