package models

import "time"

// Destination is one place a reminder is sent to.
type Destination string

const (
	DestinationDM      Destination = "dm"
	DestinationChannel Destination = "channel"
	DestinationForum   Destination = "forum"
)

// FailureKind classifies a failed delivery attempt.
type FailureKind string

const (
	FailureNone        FailureKind = ""
	FailureUnreachable FailureKind = "unreachable"
	FailureForbidden   FailureKind = "forbidden"
	FailureTransient   FailureKind = "transient"
)

// Attempt records the result of sending to a single destination.
type Attempt struct {
	Destination Destination `json:"destination"`
	ChannelID   string      `json:"channel_id,omitempty"`
	Failure     FailureKind `json:"failure,omitempty"`
	Error       string      `json:"error,omitempty"`
}

func (a Attempt) OK() bool { return a.Failure == FailureNone }

// DeliveryOutcome is the per-destination result of delivering one reminder.
type DeliveryOutcome struct {
	ReminderID  string    `json:"reminder_id"`
	Missed      bool      `json:"missed"`
	Attempts    []Attempt `json:"attempts"`
	CompletedAt time.Time `json:"completed_at"`
}

// Succeeded counts successful attempts.
func (o DeliveryOutcome) Succeeded() int {
	n := 0
	for _, a := range o.Attempts {
		if a.OK() {
			n++
		}
	}
	return n
}

// Failed is true only when every configured destination failed.
func (o DeliveryOutcome) Failed() bool {
	return len(o.Attempts) > 0 && o.Succeeded() == 0
}
