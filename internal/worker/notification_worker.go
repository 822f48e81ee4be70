package worker

import (
	"github.com/sst-resolve/resolve-service/internal/events"
	"github.com/sst-resolve/resolve-service/internal/service"
)

// StartNotificationWorker registers the notification handlers on dispatcher and
// returns the publisher the outbox relay uses to reach them. A nil service still
// yields a working publisher with no subscribers.
func StartNotificationWorker(dispatcher events.Dispatcher, notifications *service.NotificationService) events.Publisher {
	if notifications != nil {
		notifications.RegisterHandlers()
	}
	return events.NewDispatcherPublisher(dispatcher)
}
