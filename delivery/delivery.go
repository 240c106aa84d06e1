// Package delivery sends a due reminder to each of its destinations.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"remindbot/clock"
	"remindbot/logging"
	"remindbot/models"
	"remindbot/platform"
)

// maxThreadTitle is the rune limit for forum post titles built from a message.
const maxThreadTitle = 50

type Deliverer struct {
	messenger platform.Messenger
	clock     clock.Clock
	log       *slog.Logger
}

func New(messenger platform.Messenger, clk clock.Clock, logger *slog.Logger) *Deliverer {
	return &Deliverer{
		messenger: messenger,
		clock:     clk,
		log:       logging.OrNop(logger).With("component", "delivery"),
	}
}

// Deliver attempts every destination of r once. A failed destination never
// prevents the others from being tried.
func (d *Deliverer) Deliver(ctx context.Context, r models.Reminder, missed bool) models.DeliveryOutcome {
	outcome := models.DeliveryOutcome{ReminderID: r.ID, Missed: missed}

	switch r.DeliveryMode {
	case models.DeliveryChannel:
		outcome.Attempts = append(outcome.Attempts, d.toChannel(ctx, r, missed))
	case models.DeliveryForum:
		outcome.Attempts = append(outcome.Attempts, d.toForum(ctx, r, missed))
	case models.DeliveryBoth:
		outcome.Attempts = append(outcome.Attempts, d.toDM(ctx, r, missed), d.toChannel(ctx, r, missed))
	default:
		outcome.Attempts = append(outcome.Attempts, d.toDM(ctx, r, missed))
	}

	outcome.CompletedAt = d.clock.Now()
	for _, a := range outcome.Attempts {
		log := d.log.With("reminder_id", r.ID, "destination", a.Destination, "channel_id", a.ChannelID, "missed", missed)
		if a.OK() {
			log.Info("reminder delivered")
		} else {
			log.Warn("reminder delivery failed", "failure", a.Failure, "error", a.Error)
		}
	}
	return outcome
}

func (d *Deliverer) toDM(ctx context.Context, r models.Reminder, missed bool) models.Attempt {
	attempt := models.Attempt{Destination: models.DestinationDM}
	channelID, err := d.messenger.DMChannel(ctx, r.OwnerUserID)
	if err != nil {
		return failed(attempt, err)
	}
	attempt.ChannelID = channelID
	return failed(attempt, d.messenger.Send(ctx, channelID, d.format(r, missed, "")))
}

func (d *Deliverer) toChannel(ctx context.Context, r models.Reminder, missed bool) models.Attempt {
	attempt := models.Attempt{Destination: models.DestinationChannel, ChannelID: r.ChannelID}
	return failed(attempt, d.messenger.Send(ctx, r.ChannelID, d.format(r, missed, r.TargetMention)))
}

// toForum posts into a thread directly, or opens a new post when channel_id
// is a forum container.
func (d *Deliverer) toForum(ctx context.Context, r models.Reminder, missed bool) models.Attempt {
	attempt := models.Attempt{Destination: models.DestinationForum, ChannelID: r.ChannelID}
	kind, err := d.messenger.ChannelKind(ctx, r.ChannelID)
	if err != nil {
		return failed(attempt, err)
	}
	content := d.format(r, missed, r.TargetMention)
	if kind != models.ChannelForum {
		return failed(attempt, d.messenger.Send(ctx, r.ChannelID, content))
	}
	threadID, err := d.messenger.CreateThread(ctx, r.ChannelID, ThreadTitle(r.Message), content)
	if err != nil {
		return failed(attempt, err)
	}
	attempt.ChannelID = threadID
	return attempt
}

func (d *Deliverer) format(r models.Reminder, missed bool, mention string) string {
	body := r.Message
	if mention != "" {
		body = mention + " " + body
	}
	if missed {
		due := r.DueAt.In(d.clock.Location()).Format("2006-01-02 15:04 MST")
		return fmt.Sprintf("⏰ Missed reminder (%s, was due %s): %s", ShortID(r.ID), due, body)
	}
	return fmt.Sprintf("⏰ Reminder (%s): %s", ShortID(r.ID), body)
}

// ShortID is the prefix of a reminder id shown to users.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// ThreadTitle is the first maxThreadTitle runes of message.
func ThreadTitle(message string) string {
	runes := []rune(message)
	if len(runes) > maxThreadTitle {
		runes = runes[:maxThreadTitle]
	}
	return string(runes)
}

// Classify maps a platform error to a failure kind.
func Classify(err error) models.FailureKind {
	switch {
	case err == nil:
		return models.FailureNone
	case errors.Is(err, platform.ErrForbidden):
		return models.FailureForbidden
	case errors.Is(err, platform.ErrNotFound):
		return models.FailureUnreachable
	default:
		return models.FailureTransient
	}
}

func failed(a models.Attempt, err error) models.Attempt {
	if err != nil {
		a.Failure = Classify(err)
		a.Error = err.Error()
	}
	return a
}
