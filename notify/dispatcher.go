package notify

import (
	"context"

	"github.com/mmdatafocus/billing_backend/config"
	"github.com/mmdatafocus/billing_backend/models"
	"github.com/sirupsen/logrus"
)

// Deliverer pushes an already-recorded notification out over a channel
// (email, telegram, push). Implementations live outside this service; the
// built-in one only logs.
type Deliverer interface {
	Deliver(ctx context.Context, client models.Client, notification models.Notification) error
}

// Dispatcher records a notification row first, then delivers best-effort.
// The row is what the reminder scans dedup against, so it must land even when
// every delivery channel is down; a delivery error is logged and swallowed.
type Dispatcher struct {
	Logger    *logrus.Logger
	Deliverer Deliverer
}

func NewDispatcher(logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		Logger:    logger,
		Deliverer: LogDeliverer{Logger: logger},
	}
}

func (d *Dispatcher) Send(ctx context.Context, clientId int, notificationType models.NotificationType, title string, message string) (*models.Notification, error) {
	notification := &models.Notification{
		ClientId: clientId,
		Type:     notificationType,
		Title:    title,
		Message:  message,
	}
	if err := models.CreateNotification(ctx, notification); err != nil {
		return nil, err
	}

	client, err := models.GetClient(ctx, clientId)
	if err != nil {
		config.LogError(d.Logger, "dispatcher.go", "Send", "loading client for delivery", map[string]interface{}{
			"client_id": clientId,
			"type":      notificationType,
		}, err)
		return notification, nil
	}

	if d.Deliverer != nil {
		if err := d.Deliverer.Deliver(ctx, *client, *notification); err != nil {
			config.LogError(d.Logger, "dispatcher.go", "Send", "delivering notification", map[string]interface{}{
				"client_id": clientId,
				"type":      notificationType,
			}, err)
		}
	}
	return notification, nil
}

// LogDeliverer is the default channel: it writes the notification to the
// service log. Real email/telegram transports replace it at wiring time.
type LogDeliverer struct {
	Logger *logrus.Logger
}

func (d LogDeliverer) Deliver(ctx context.Context, client models.Client, notification models.Notification) error {
	d.Logger.WithFields(logrus.Fields{
		"field":     "Notify",
		"client_id": client.ID,
		"email":     client.Email,
		"type":      notification.Type,
		"title":     notification.Title,
	}).Info("notification recorded")
	return nil
}
