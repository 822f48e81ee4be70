package domain

import (
	"encoding/json"
	"time"
)

// OutboxEvent is a durably recorded intent-to-notify, written with the state change it describes.
type OutboxEvent struct {
	ID          string
	EventType   string
	TicketID    int64
	Actor       Actor
	Payload     json.RawMessage
	CreatedAt   time.Time
	PublishedAt *time.Time
	Attempts    int
	LastError   *string
	// DeliveredTo names the publishers that already accepted the event.
	DeliveredTo []string
}

// DeliveredVia reports whether the named publisher already accepted the event.
func (e OutboxEvent) DeliveredVia(publisher string) bool {
	for _, name := range e.DeliveredTo {
		if name == publisher {
			return true
		}
	}
	return false
}
