package handlers

import (
	"net/http"
	"testing"

	"remindbot/models"
	"remindbot/settings"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type authorityChange struct {
	Changed bool                 `json:"changed"`
	List    models.AuthorityList `json:"list"`
}

func TestAddUserManagerPromotesMember(t *testing.T) {
	f := newFixture(t, settings.Settings{})
	path := "/api/guilds/" + guildID + "/usermanagers"

	rec := f.do(http.MethodGet, "/api/guilds/"+guildID+"/reminders", regularID, nil)
	requireError(t, rec, http.StatusForbidden, models.ErrorPermissionDenied)

	rec = f.do(http.MethodPost, path, adminID, models.AuthorityRequest{UserID: regularID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	change := decodeBody[authorityChange](t, rec)
	assert.True(t, change.Changed)
	assert.Equal(t, []string{managerID, regularID}, change.List.Users)

	rec = f.do(http.MethodPost, path, adminID, models.AuthorityRequest{UserID: regularID})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[authorityChange](t, rec).Changed)

	rec = f.do(http.MethodGet, "/api/guilds/"+guildID+"/reminders", regularID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodDelete, path, adminID, models.AuthorityRequest{UserID: regularID})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{managerID}, decodeBody[authorityChange](t, rec).List.Users)
}

func TestAuthorityChangesNeedAdmin(t *testing.T) {
	f := newFixture(t, settings.Settings{})

	rec := f.do(http.MethodPost, "/api/guilds/"+guildID+"/admins", managerID, models.AuthorityRequest{UserID: regularID})
	requireError(t, rec, http.StatusForbidden, models.ErrorPermissionDenied)

	rec = f.do(http.MethodPost, "/api/guilds/"+guildID+"/admins", ownerID, models.AuthorityRequest{RoleID: "50"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"50"}, f.store.GuildConfig(guildID).AdminRoleIDs)

	// role 50 now makes the regular member an admin
	rec = f.do(http.MethodPost, "/api/guilds/"+guildID+"/usermanagers", regularID, models.AuthorityRequest{UserID: pingerID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestAuthorityRequestValidation(t *testing.T) {
	f := newFixture(t, settings.Settings{})
	path := "/api/guilds/" + guildID + "/admins"

	for _, req := range []models.AuthorityRequest{
		{},
		{UserID: regularID, RoleID: "50"},
		{UserID: "77"},
		{RoleID: "51"},
	} {
		rec := f.do(http.MethodPost, path, ownerID, req)
		requireError(t, rec, http.StatusBadRequest, models.ErrorInvalidInput)
	}
	assert.Equal(t, []string{adminID}, f.store.GuildConfig(guildID).AdminUserIDs)

	// stale ids can still be removed
	_, err := f.store.AddAuthority(guildID, models.TierAdminManager, models.AuthorityUser, "77")
	require.NoError(t, err)
	rec := f.do(http.MethodDelete, path, ownerID, models.AuthorityRequest{UserID: "77"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{adminID}, f.store.GuildConfig(guildID).AdminUserIDs)
}

func TestListAdmins(t *testing.T) {
	f := newFixture(t, settings.Settings{})

	rec := f.do(http.MethodGet, "/api/guilds/"+guildID+"/admins", regularID, nil)
	requireError(t, rec, http.StatusForbidden, models.ErrorPermissionDenied)

	rec = f.do(http.MethodGet, "/api/guilds/"+guildID+"/admins", managerID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[models.AuthorityList](t, rec)
	assert.Equal(t, []string{adminID}, list.Users)
	assert.Empty(t, list.Roles)
}

func TestDefaultDelivery(t *testing.T) {
	f := newFixture(t, settings.Settings{})
	path := "/api/guilds/" + guildID + "/default-delivery"

	rec := f.do(http.MethodGet, path, regularID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[defaultDeliveryResponse](t, rec)
	assert.Equal(t, models.DeliveryDM, got.Mode)
	assert.False(t, got.Explicit)

	rec = f.do(http.MethodPut, path, managerID, models.DefaultDeliveryRequest{Mode: "channel"})
	requireError(t, rec, http.StatusForbidden, models.ErrorPermissionDenied)

	rec = f.do(http.MethodPut, path, adminID, models.DefaultDeliveryRequest{Mode: "pigeon"})
	requireError(t, rec, http.StatusBadRequest, models.ErrorInvalidInput)

	rec = f.do(http.MethodPut, path, adminID, models.DefaultDeliveryRequest{Mode: "Forum"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.DeliveryForum, f.store.GuildConfig(guildID).DefaultDelivery)

	rec = f.do(http.MethodGet, path, regularID, nil)
	got = decodeBody[defaultDeliveryResponse](t, rec)
	assert.Equal(t, models.DeliveryForum, got.Mode)
	assert.True(t, got.Explicit)
}

func TestUpdateChannels(t *testing.T) {
	f := newFixture(t, settings.Settings{})
	path := "/api/guilds/" + guildID + "/update-channels"

	rec := f.do(http.MethodPost, path, managerID, models.UpdateChannelRequest{ChannelID: textChannel})
	requireError(t, rec, http.StatusForbidden, models.ErrorPermissionDenied)

	rec = f.do(http.MethodPost, path, adminID, models.UpdateChannelRequest{ChannelID: forumChannel})
	requireError(t, rec, http.StatusBadRequest, models.ErrorInvalidInput)

	rec = f.do(http.MethodPost, path, adminID, models.UpdateChannelRequest{ChannelID: textChannel})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{textChannel}, decodeBody[updateChannelsResponse](t, rec).ChannelIDs)

	rec = f.do(http.MethodDelete, path, adminID, models.UpdateChannelRequest{ChannelID: textChannel})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[updateChannelsResponse](t, rec).ChannelIDs)
}

func TestUnknownGuild(t *testing.T) {
	f := newFixture(t, settings.Settings{})
	rec := f.do(http.MethodGet, "/api/guilds/555/admins", adminID, nil)
	requireError(t, rec, http.StatusForbidden, models.ErrorPermissionDenied)
}
