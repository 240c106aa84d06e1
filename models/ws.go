package models

// WebSocket message types
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

const (
	WSTypeReminderCreated   = "reminder_created"
	WSTypeReminderUpdated   = "reminder_updated"
	WSTypeReminderCancelled = "reminder_cancelled"
	WSTypeReminderDelivered = "reminder_delivered"
	WSTypeReminderMissed    = "reminder_missed"
)

// ReminderEventPayload accompanies delivery events.
type ReminderEventPayload struct {
	Reminder Reminder        `json:"reminder"`
	Outcome  DeliveryOutcome `json:"outcome"`
}
