package delivery

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"remindbot/clock"
	"remindbot/models"
	"remindbot/platform"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

func setup() (*Deliverer, *platform.Memory) {
	mem := platform.NewMemory(nil)
	mem.AddChannel("100", models.ChannelText)
	mem.AddChannel("200", models.ChannelForum)
	mem.AddChannel("300", models.ChannelThread)
	return New(mem, clock.NewFake(now), nil), mem
}

func reminder(mode models.DeliveryMode, channel string) models.Reminder {
	return models.Reminder{
		ID:            "abcdef12-3456",
		OwnerUserID:   "42",
		GuildID:       "7",
		Message:       "standup",
		DueAt:         now,
		DeliveryMode:  mode,
		TargetMention: "<@&900>",
		ChannelID:     channel,
	}
}

func TestDeliverDM(t *testing.T) {
	d, mem := setup()

	outcome := d.Deliver(context.Background(), reminder(models.DeliveryDM, ""), false)
	require.Len(t, outcome.Attempts, 1)
	assert.True(t, outcome.Attempts[0].OK())
	assert.Equal(t, now, outcome.CompletedAt)
	assert.Equal(t, []string{"⏰ Reminder (abcdef12): standup"}, mem.SentTo(platform.DMChannelID("42")))
}

func TestDeliverChannelCarriesMention(t *testing.T) {
	d, mem := setup()

	outcome := d.Deliver(context.Background(), reminder(models.DeliveryChannel, "100"), false)
	assert.False(t, outcome.Failed())
	assert.Equal(t, []string{"⏰ Reminder (abcdef12): <@&900> standup"}, mem.SentTo("100"))
}

func TestDeliverMissedIsMarked(t *testing.T) {
	d, mem := setup()
	r := reminder(models.DeliveryDM, "")
	r.DueAt = now.Add(-3 * time.Hour)

	outcome := d.Deliver(context.Background(), r, true)
	assert.True(t, outcome.Missed)
	sent := mem.SentTo(platform.DMChannelID("42"))
	require.Len(t, sent, 1)
	assert.True(t, strings.HasPrefix(sent[0], "⏰ Missed reminder (abcdef12, was due 2024-05-10 06:00 UTC)"), sent[0])
}

func TestDeliverForumThreadPostsDirectly(t *testing.T) {
	d, mem := setup()

	outcome := d.Deliver(context.Background(), reminder(models.DeliveryForum, "300"), false)
	require.True(t, outcome.Attempts[0].OK())
	assert.Len(t, mem.SentTo("300"), 1)
	assert.Empty(t, mem.Threads())
}

func TestDeliverForumContainerOpensPost(t *testing.T) {
	d, mem := setup()
	r := reminder(models.DeliveryForum, "200")
	r.Message = strings.Repeat("é", 60)

	outcome := d.Deliver(context.Background(), r, false)
	require.True(t, outcome.Attempts[0].OK())

	threads := mem.Threads()
	require.Len(t, threads, 1)
	assert.Equal(t, "200", threads[0].ForumID)
	assert.Equal(t, strings.Repeat("é", 50), threads[0].Title)
	assert.Equal(t, threads[0].ID, outcome.Attempts[0].ChannelID)
	assert.Len(t, mem.SentTo(threads[0].ID), 1)
}

func TestDeliverBothPartialFailure(t *testing.T) {
	d, mem := setup()
	mem.FailDM("42", platform.ErrForbidden)

	outcome := d.Deliver(context.Background(), reminder(models.DeliveryBoth, "100"), false)
	require.Len(t, outcome.Attempts, 2)
	assert.Equal(t, models.DestinationDM, outcome.Attempts[0].Destination)
	assert.Equal(t, models.FailureForbidden, outcome.Attempts[0].Failure)
	assert.True(t, outcome.Attempts[1].OK())
	assert.Equal(t, 1, outcome.Succeeded())
	assert.False(t, outcome.Failed())
	assert.Len(t, mem.SentTo("100"), 1)
}

func TestDeliverBothFail(t *testing.T) {
	d, mem := setup()
	mem.FailDM("42", platform.ErrForbidden)
	mem.FailChannel("100", errors.New("gateway timeout"))

	outcome := d.Deliver(context.Background(), reminder(models.DeliveryBoth, "100"), false)
	assert.True(t, outcome.Failed())
	assert.Equal(t, models.FailureTransient, outcome.Attempts[1].Failure)
}

func TestDeliverUnknownChannelIsUnreachable(t *testing.T) {
	d, _ := setup()

	outcome := d.Deliver(context.Background(), reminder(models.DeliveryForum, "999"), false)
	assert.Equal(t, models.FailureUnreachable, outcome.Attempts[0].Failure)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, models.FailureNone, Classify(nil))
	assert.Equal(t, models.FailureForbidden, Classify(platform.ErrForbidden))
	assert.Equal(t, models.FailureUnreachable, Classify(errors.Join(errors.New("x"), platform.ErrNotFound)))
	assert.Equal(t, models.FailureTransient, Classify(context.DeadlineExceeded))
}
