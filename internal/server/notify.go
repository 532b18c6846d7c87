package server

import (
	"github.com/carebridge/carebridge/internal/stats"
)

// Notification events emitted by domain workflows.
const (
	EventNewPrescription      = "new-prescription"
	EventAppointmentRequested = "appointment-requested"
	EventAppointmentUpdated   = "appointment-updated"
)

// Notifier delivers one-shot events to a user's live connection.
type Notifier interface {
	NotifyUser(userId int, event string, data any)
}

// NotifyUser queues a notification frame on the user's connection if one
// exists. Delivery is best effort and never reports failure to the caller:
// a notification must not fail the business operation that triggered it.
func (cs *ChatServer) NotifyUser(userId int, event string, data any) {
	c := cs.registry.Resolve(userId)
	if c == nil {
		cs.log.Printf("user %d not connected, dropping %q notification", userId, event)
		return
	}

	if !c.queueFrame(NotificationFrame(event, data)) {
		cs.log.Printf("failed to queue %q notification for user %d", event, userId)
		return
	}

	cs.stats.Incr(stats.NotificationsSent)
}
