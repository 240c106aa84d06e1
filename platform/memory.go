package platform

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"remindbot/logging"
	"remindbot/models"

	"github.com/google/uuid"
)

// SentMessage is a message recorded by Memory.
type SentMessage struct {
	ChannelID string
	Content   string
}

// Thread is a forum post created on Memory.
type Thread struct {
	ID      string
	ForumID string
	Title   string
}

// Memory is an in-process platform. It backs dry runs and tests.
type Memory struct {
	mu       sync.Mutex
	log      *slog.Logger
	guilds   map[string]models.Guild
	members  map[string][]models.Member
	roles    map[string][]models.Role
	channels map[string]models.ChannelKind
	dms      map[string]string
	failures map[string]error
	dmFails  map[string]error

	sent    []SentMessage
	threads []Thread
}

func NewMemory(logger *slog.Logger) *Memory {
	return &Memory{
		log:      logging.OrNop(logger).With("component", "platform.memory"),
		guilds:   make(map[string]models.Guild),
		members:  make(map[string][]models.Member),
		roles:    make(map[string][]models.Role),
		channels: make(map[string]models.ChannelKind),
		dms:      make(map[string]string),
		failures: make(map[string]error),
		dmFails:  make(map[string]error),
	}
}

// Setup

func (m *Memory) AddGuild(g models.Guild) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guilds[g.ID] = g
}

func (m *Memory) AddMember(guildID string, member models.Member) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[guildID] = append(m.members[guildID], member)
}

func (m *Memory) AddRole(guildID string, role models.Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roles[guildID] = append(m.roles[guildID], role)
}

func (m *Memory) AddChannel(channelID string, kind models.ChannelKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[channelID] = kind
}

// FailChannel makes every send to channelID return err. A nil err clears it.
func (m *Memory) FailChannel(channelID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, channelID)
		return
	}
	m.failures[channelID] = err
}

// FailDM makes opening the DM channel of userID return err.
func (m *Memory) FailDM(userID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.dmFails, userID)
		return
	}
	m.dmFails[userID] = err
}

// Inspection

func (m *Memory) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.sent)
}

// SentTo returns the contents sent to channelID in order.
func (m *Memory) SentTo(channelID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, msg := range m.sent {
		if msg.ChannelID == channelID {
			out = append(out, msg.Content)
		}
	}
	return out
}

func (m *Memory) Threads() []Thread {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.threads)
}

// DMChannelID is the channel id Memory uses for a user's DMs.
func DMChannelID(userID string) string {
	return "dm-" + userID
}

// Directory

func (m *Memory) Guild(_ context.Context, guildID string) (*models.Guild, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.guilds[guildID]
	if !ok {
		return nil, fmt.Errorf("guild %s: %w", guildID, ErrNotFound)
	}
	return &g, nil
}

func (m *Memory) Guilds(_ context.Context) ([]models.Guild, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Guild, 0, len(m.guilds))
	for _, g := range m.guilds {
		out = append(out, g)
	}
	slices.SortFunc(out, func(a, b models.Guild) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (m *Memory) Member(_ context.Context, guildID, userID string) (*models.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, member := range m.members[guildID] {
		if member.UserID == userID {
			member.RoleIDs = slices.Clone(member.RoleIDs)
			return &member, nil
		}
	}
	return nil, fmt.Errorf("member %s of guild %s: %w", userID, guildID, ErrNotFound)
}

func (m *Memory) Members(_ context.Context, guildID string) ([]models.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.members[guildID]), nil
}

func (m *Memory) Roles(_ context.Context, guildID string) ([]models.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.roles[guildID]), nil
}

// Messenger

func (m *Memory) DMChannel(_ context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.dmFails[userID]; err != nil {
		return "", err
	}
	id, ok := m.dms[userID]
	if !ok {
		id = DMChannelID(userID)
		m.dms[userID] = id
		m.channels[id] = models.ChannelDM
	}
	return id, nil
}

func (m *Memory) ChannelKind(_ context.Context, channelID string) (models.ChannelKind, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kind, ok := m.channels[channelID]
	if !ok {
		return 0, fmt.Errorf("channel %s: %w", channelID, ErrNotFound)
	}
	return kind, nil
}

func (m *Memory) Send(_ context.Context, channelID, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures[channelID]; err != nil {
		return err
	}
	if _, ok := m.channels[channelID]; !ok {
		return fmt.Errorf("channel %s: %w", channelID, ErrNotFound)
	}
	m.sent = append(m.sent, SentMessage{ChannelID: channelID, Content: content})
	m.log.Info("message sent", "channel_id", channelID, "content", content)
	return nil
}

func (m *Memory) CreateThread(_ context.Context, forumID, title, content string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures[forumID]; err != nil {
		return "", err
	}
	if kind, ok := m.channels[forumID]; !ok || kind != models.ChannelForum {
		return "", fmt.Errorf("forum %s: %w", forumID, ErrNotFound)
	}
	id := uuid.New().String()
	m.channels[id] = models.ChannelThread
	m.threads = append(m.threads, Thread{ID: id, ForumID: forumID, Title: title})
	m.sent = append(m.sent, SentMessage{ChannelID: id, Content: content})
	m.log.Info("forum post created", "forum_id", forumID, "thread_id", id, "title", title)
	return id, nil
}
