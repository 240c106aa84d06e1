package handlers

import (
	"net/http"
	"testing"
	"time"

	"remindbot/models"
	"remindbot/settings"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateReminderDefaultsToDM(t *testing.T) {
	f := newFixture(t, settings.Settings{})

	rec := f.do(http.MethodPost, "/api/reminders", regularID, models.CreateReminderRequest{
		GuildID: guildID,
		Time:    "in 5 minutes",
		Message: "  standup  ",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	r := decodeBody[models.Reminder](t, rec)
	assert.Equal(t, regularID, r.OwnerUserID)
	assert.Equal(t, "standup", r.Message)
	assert.Equal(t, models.DeliveryDM, r.DeliveryMode)
	assert.Equal(t, "<@4>", r.TargetMention)
	assert.True(t, r.DueAt.Equal(now.Add(5*time.Minute)))
	assert.Equal(t, 1, f.store.Count())

	records, err := f.audit.RecentCommands(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "remind", records[0].Command)
	assert.True(t, records[0].Success)
}

func TestCreateReminderWithoutGuild(t *testing.T) {
	f := newFixture(t, settings.Settings{})

	rec := f.do(http.MethodPost, "/api/reminders", "77", models.CreateReminderRequest{
		Time: "2h", Message: "stretch",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(http.MethodPost, "/api/reminders", "77", models.CreateReminderRequest{
		Time: "2h", Message: "stretch", Delivery: "channel", ChannelID: textChannel,
	})
	requireError(t, rec, http.StatusBadRequest, models.ErrorInvalidInput)
	assert.Equal(t, 1, f.store.Count())
}

func TestCreateReminderUsesGuildDefault(t *testing.T) {
	f := newFixture(t, settings.Settings{})
	require.NoError(t, f.store.SetDefaultDelivery(guildID, models.DeliveryChannel))

	rec := f.do(http.MethodPost, "/api/reminders", regularID, models.CreateReminderRequest{
		GuildID: guildID, Time: "1h", Message: "raid",
	})
	requireError(t, rec, http.StatusBadRequest, models.ErrorInvalidInput)

	rec = f.do(http.MethodPost, "/api/reminders", regularID, models.CreateReminderRequest{
		GuildID: guildID, Time: "1h", Message: "raid", ChannelID: textChannel,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	r := decodeBody[models.Reminder](t, rec)
	assert.Equal(t, models.DeliveryChannel, r.DeliveryMode)
	assert.Equal(t, textChannel, r.ChannelID)
	assert.Equal(t, "<@4>", r.TargetMention)
}

func TestCreateReminderEveryoneNeedsBroadcastPermission(t *testing.T) {
	f := newFixture(t, settings.Settings{})
	req := models.CreateReminderRequest{
		GuildID: guildID, Time: "1h", Message: "town hall",
		Delivery: "channel", ChannelID: textChannel, Target: "everyone",
	}

	rec := f.do(http.MethodPost, "/api/reminders", regularID, req)
	requireError(t, rec, http.StatusBadRequest, models.ErrorInvalidInput)
	assert.Zero(t, f.store.Count())

	rec = f.do(http.MethodPost, "/api/reminders", pingerID, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "@everyone", decodeBody[models.Reminder](t, rec).TargetMention)
}

func TestCreateReminderRoleTarget(t *testing.T) {
	f := newFixture(t, settings.Settings{})

	rec := f.do(http.MethodPost, "/api/reminders", regularID, models.CreateReminderRequest{
		GuildID: guildID, Time: "1h", Message: "raid", Delivery: "both",
		ChannelID: threadChannel, Target: "raiders",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "<@&50>", decodeBody[models.Reminder](t, rec).TargetMention)
}

func TestCreateReminderValidation(t *testing.T) {
	tests := []struct {
		name string
		req  models.CreateReminderRequest
	}{
		{"empty message", models.CreateReminderRequest{GuildID: guildID, Time: "1h", Message: "   "}},
		{"bad time", models.CreateReminderRequest{GuildID: guildID, Time: "whenever", Message: "x"}},
		{"past time", models.CreateReminderRequest{GuildID: guildID, Time: "2020-01-01 10:00", Message: "x"}},
		{"unknown mode", models.CreateReminderRequest{GuildID: guildID, Time: "1h", Message: "x", Delivery: "pigeon"}},
		{"forum mode on text channel", models.CreateReminderRequest{GuildID: guildID, Time: "1h", Message: "x", Delivery: "forum", ChannelID: textChannel}},
		{"channel mode on forum", models.CreateReminderRequest{GuildID: guildID, Time: "1h", Message: "x", Delivery: "channel", ChannelID: forumChannel}},
		{"unknown channel", models.CreateReminderRequest{GuildID: guildID, Time: "1h", Message: "x", Delivery: "channel", ChannelID: "999"}},
		{"unknown target", models.CreateReminderRequest{GuildID: guildID, Time: "1h", Message: "x", Delivery: "channel", ChannelID: textChannel, Target: "nobody"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, settings.Settings{})
			rec := f.do(http.MethodPost, "/api/reminders", regularID, tt.req)
			requireError(t, rec, http.StatusBadRequest, models.ErrorInvalidInput)
			assert.Zero(t, f.store.Count())
		})
	}
}

func TestCreateReminderRejectsNonMember(t *testing.T) {
	f := newFixture(t, settings.Settings{})
	rec := f.do(http.MethodPost, "/api/reminders", "77", models.CreateReminderRequest{
		GuildID: guildID, Time: "1h", Message: "x",
	})
	requireError(t, rec, http.StatusForbidden, models.ErrorPermissionDenied)
}

func TestRequestsNeedToken(t *testing.T) {
	f := newFixture(t, settings.Settings{})
	rec := f.do(http.MethodGet, "/api/reminders", "", nil)
	requireError(t, rec, http.StatusUnauthorized, models.ErrorPermissionDenied)
}

func createDM(t *testing.T, f *fixture, userID string) models.Reminder {
	t.Helper()
	rec := f.do(http.MethodPost, "/api/reminders", userID, models.CreateReminderRequest{
		GuildID: guildID, Time: "1h", Message: "water plants",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[models.Reminder](t, rec)
}

func TestListOwnReminders(t *testing.T) {
	f := newFixture(t, settings.Settings{})
	mine := createDM(t, f, regularID)
	createDM(t, f, pingerID)

	rec := f.do(http.MethodGet, "/api/reminders?guild_id="+guildID, regularID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[[]models.Reminder](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, mine.ID, list[0].ID)

	rec = f.do(http.MethodGet, "/api/reminders", regularID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]models.Reminder](t, rec), 1)
}

func TestListGuildRemindersRequiresManager(t *testing.T) {
	f := newFixture(t, settings.Settings{})
	createDM(t, f, regularID)
	createDM(t, f, pingerID)

	rec := f.do(http.MethodGet, "/api/guilds/"+guildID+"/reminders", regularID, nil)
	requireError(t, rec, http.StatusForbidden, models.ErrorPermissionDenied)

	rec = f.do(http.MethodGet, "/api/guilds/"+guildID+"/reminders", managerID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]models.Reminder](t, rec), 2)

	rec = f.do(http.MethodGet, "/api/guilds/"+guildID+"/reminders?user_id="+pingerID, ownerID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[[]models.Reminder](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, pingerID, list[0].OwnerUserID)
}

func TestCancelReminder(t *testing.T) {
	f := newFixture(t, settings.Settings{})
	r := createDM(t, f, regularID)

	rec := f.do(http.MethodDelete, "/api/reminders/"+r.ID, pingerID, nil)
	requireError(t, rec, http.StatusForbidden, models.ErrorPermissionDenied)

	rec = f.do(http.MethodDelete, "/api/reminders/"+r.ID, managerID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Zero(t, f.store.Count())

	rec = f.do(http.MethodDelete, "/api/reminders/"+r.ID, regularID, nil)
	requireError(t, rec, http.StatusNotFound, models.ErrorNotFound)
}

func TestMalformedReminderCanBeListedAndCancelled(t *testing.T) {
	f := newFixtureWithData(t, settings.Settings{}, `{
		"reminders": [
			{"id": "broken", "owner_user_id": 4, "guild_id": 100, "message": "old", "due_at": 1715328000, "delivery_mode": "dm"}
		],
		"guilds": {}
	}`)

	rec := f.do(http.MethodGet, "/api/reminders?guild_id="+guildID, regularID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	list := decodeBody[[]models.Reminder](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "broken", list[0].ID)
	assert.True(t, list[0].Malformed)

	message := "new"
	rec = f.do(http.MethodPatch, "/api/reminders/broken", regularID, models.EditReminderRequest{Message: &message})
	requireError(t, rec, http.StatusBadRequest, models.ErrorInvalidInput)

	rec = f.do(http.MethodDelete, "/api/reminders/broken", pingerID, nil)
	requireError(t, rec, http.StatusForbidden, models.ErrorPermissionDenied)

	rec = f.do(http.MethodDelete, "/api/reminders/broken", managerID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Zero(t, f.store.Count())
}

func TestCancelOwnReminder(t *testing.T) {
	f := newFixture(t, settings.Settings{})
	r := createDM(t, f, regularID)

	rec := f.do(http.MethodDelete, "/api/reminders/"+r.ID, regularID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Zero(t, f.store.Count())
}

func TestEditReminder(t *testing.T) {
	f := newFixture(t, settings.Settings{})
	r := createDM(t, f, regularID)

	message, when := "water the big plant", "tomorrow"
	rec := f.do(http.MethodPatch, "/api/reminders/"+r.ID, regularID, models.EditReminderRequest{
		Message: &message, Time: &when,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	edited := decodeBody[models.Reminder](t, rec)
	assert.Equal(t, message, edited.Message)
	assert.True(t, edited.DueAt.Equal(now.Add(24*time.Hour)))

	mode, channel, target := "channel", textChannel, "raiders"
	rec = f.do(http.MethodPatch, "/api/reminders/"+r.ID, regularID, models.EditReminderRequest{
		Delivery: &mode, ChannelID: &channel, Target: &target,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	edited = decodeBody[models.Reminder](t, rec)
	assert.Equal(t, models.DeliveryChannel, edited.DeliveryMode)
	assert.Equal(t, "<@&50>", edited.TargetMention)

	stored, err := f.store.Reminder(r.ID)
	require.NoError(t, err)
	assert.Equal(t, message, stored.Message)
	assert.Equal(t, textChannel, stored.ChannelID)
	assert.Equal(t, "<@&50>", stored.TargetMention)
}

func TestEditReminderRejections(t *testing.T) {
	f := newFixture(t, settings.Settings{})
	r := createDM(t, f, regularID)

	empty := " "
	rec := f.do(http.MethodPatch, "/api/reminders/"+r.ID, regularID, models.EditReminderRequest{Message: &empty})
	requireError(t, rec, http.StatusBadRequest, models.ErrorInvalidInput)

	mode := "forum"
	rec = f.do(http.MethodPatch, "/api/reminders/"+r.ID, regularID, models.EditReminderRequest{Delivery: &mode})
	requireError(t, rec, http.StatusBadRequest, models.ErrorInvalidInput)

	message := "other"
	rec = f.do(http.MethodPatch, "/api/reminders/"+r.ID, pingerID, models.EditReminderRequest{Message: &message})
	requireError(t, rec, http.StatusForbidden, models.ErrorPermissionDenied)

	require.True(t, f.store.MarkInFlight(r.ID))
	rec = f.do(http.MethodPatch, "/api/reminders/"+r.ID, regularID, models.EditReminderRequest{Message: &message})
	require.Equal(t, http.StatusConflict, rec.Code)

	stored, err := f.store.Reminder(r.ID)
	require.NoError(t, err)
	assert.Equal(t, "water plants", stored.Message)
}
