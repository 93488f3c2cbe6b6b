package reminders

import (
	"context"
	"time"

	"github.com/mmdatafocus/billing_backend/models"
)

// Deduper decides whether a new notification of a given type for a client
// would duplicate one already recorded. It only reads notification history;
// it never writes.
type Deduper struct{}

// IsSuppressed reports whether a notification of notificationType for the
// client should be withheld: true iff one already exists that was created
// after ref and still falls inside window counting back from now.
//
// Pass the transaction's creation time as ref for per-transaction checks, or
// the zero time to make any notification inside the window suppressing.
func (Deduper) IsSuppressed(ctx context.Context, clientId int, notificationType models.NotificationType, ref time.Time, window time.Duration) (bool, error) {
	latest, err := models.LatestNotification(ctx, clientId, notificationType)
	if err != nil {
		return false, err
	}
	return suppressedBy(latest, ref, window, time.Now()), nil
}

func suppressedBy(latest *models.Notification, ref time.Time, window time.Duration, now time.Time) bool {
	if latest == nil {
		return false
	}
	if !latest.CreatedAt.After(ref) {
		return false
	}
	return now.Sub(latest.CreatedAt) < window
}
