package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"remindbot/clock"
	"remindbot/control"
	"remindbot/middleware"
	"remindbot/models"
	"remindbot/platform"
	"remindbot/settings"
	"remindbot/store"

	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)

// Guild 100 members: 1 owner, 2 admin, 3 user manager, 4 regular holding
// role 50, 5 regular with broadcast permission, 9 operator.
const (
	guildID   = "100"
	ownerID   = "1"
	adminID   = "2"
	managerID = "3"
	regularID = "4"
	pingerID  = "5"
	opID      = "9"

	textChannel   = "200"
	forumChannel  = "300"
	threadChannel = "400"
)

type fixture struct {
	t        *testing.T
	store    *store.Store
	audit    *store.AuditLog
	platform *platform.Memory
	clock    *clock.Fake
	auth     *middleware.Auth
	hub      *Hub
	control  *control.File
	exits    chan struct{}
	router   http.Handler
}

func newFixture(t *testing.T, s settings.Settings) *fixture {
	t.Helper()
	return newFixtureWithData(t, s, "")
}

// newFixtureWithData starts from a pre-written data file when data is set.
func newFixtureWithData(t *testing.T, s settings.Settings, data string) *fixture {
	t.Helper()
	dir := t.TempDir()
	if data != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "reminders.json"), []byte(data), 0o644))
	}

	clk := clock.NewFake(now)
	st, err := store.New(filepath.Join(dir, "reminders.json"), clk, nil)
	require.NoError(t, err)
	audit, err := store.OpenAuditLog(filepath.Join(dir, "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { audit.Close() })

	plat := platform.NewMemory(nil)
	plat.AddGuild(models.Guild{ID: guildID, Name: "Home", OwnerID: ownerID})
	for _, m := range []models.Member{
		{UserID: ownerID, Username: "owner"},
		{UserID: adminID, Username: "admin"},
		{UserID: managerID, Username: "manager"},
		{UserID: regularID, Username: "regular", RoleIDs: []string{"50"}},
		{UserID: pingerID, Username: "pinger", CanMentionEveryone: true},
		{UserID: opID, Username: "operator"},
	} {
		plat.AddMember(guildID, m)
	}
	plat.AddRole(guildID, models.Role{ID: "50", Name: "raiders"})
	plat.AddChannel(textChannel, models.ChannelText)
	plat.AddChannel(forumChannel, models.ChannelForum)
	plat.AddChannel(threadChannel, models.ChannelThread)

	_, err = st.AddAuthority(guildID, models.TierAdminManager, models.AuthorityUser, adminID)
	require.NoError(t, err)
	_, err = st.AddAuthority(guildID, models.TierUserManager, models.AuthorityUser, managerID)
	require.NoError(t, err)

	auth, err := middleware.NewAuth("test-secret-0123456789", time.Hour)
	require.NoError(t, err)

	if s.CheckIntervalSeconds == 0 {
		s.CheckIntervalSeconds = settings.DefaultCheckInterval
	}
	if s.LogLevel == "" {
		s.LogLevel = settings.DefaultLogLevel
	}

	f := &fixture{
		t:        t,
		store:    st,
		audit:    audit,
		platform: plat,
		clock:    clk,
		auth:     auth,
		hub:      NewHub(nil),
		control:  control.NewFile(filepath.Join(dir, "launcher_control.json")),
		exits:    make(chan struct{}, 1),
	}
	env := &Env{Store: st, Audit: audit, Platform: plat, Clock: clk, Hub: f.hub}
	f.router = NewRouter(auth, Handlers{
		Auth:      NewAuthHandler(auth, "", nil),
		Reminders: NewReminderHandler(env),
		Guilds:    NewGuildHandler(env),
		Backend: NewBackendHandler(env, settings.Static(s),
			WithControl(f.control, func() { f.exits <- struct{}{} })),
		Hub: f.hub,
	}, nil, nil)
	return f
}

func (f *fixture) do(method, path, userID string, body any) *httptest.ResponseRecorder {
	f.t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(f.t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		token, _, err := f.auth.GenerateToken(userID)
		require.NoError(f.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func requireError(t *testing.T, rec *httptest.ResponseRecorder, status int, category string) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	resp := decodeBody[models.ErrorResponse](t, rec)
	require.Equal(t, category, resp.Category)
	require.NotEmpty(t, resp.Error)
}
