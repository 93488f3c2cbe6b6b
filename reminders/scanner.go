package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/billing_backend/config"
	"github.com/mmdatafocus/billing_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	// DefaultPendingAge is how old a pending charge must be before it is
	// worth reminding about.
	DefaultPendingAge = 24 * time.Hour
	// DefaultPendingWindow suppresses repeat payment reminders.
	DefaultPendingWindow = 24 * time.Hour
	// DefaultLowBalanceWindow suppresses repeat low-balance reminders.
	DefaultLowBalanceWindow = 7 * 24 * time.Hour
)

// notifier is the slice of notify.Dispatcher the scans need.
type notifier interface {
	Send(ctx context.Context, clientId int, notificationType models.NotificationType, title string, message string) (*models.Notification, error)
}

// Scanner walks local state for clients owing a reminder. Both scans are
// read-then-act: eligibility is decided for the whole batch first, then
// notifications are requested one by one, and a failure for one client never
// stops the rest.
type Scanner struct {
	DB       *gorm.DB
	Logger   *logrus.Logger
	Notifier notifier
	Deduper  Deduper

	PendingAge       time.Duration
	PendingWindow    time.Duration
	LowBalanceWindow time.Duration
}

func NewScanner(db *gorm.DB, logger *logrus.Logger, notifier notifier) *Scanner {
	return &Scanner{
		DB:               db,
		Logger:           logger,
		Notifier:         notifier,
		PendingAge:       DefaultPendingAge,
		PendingWindow:    DefaultPendingWindow,
		LowBalanceWindow: DefaultLowBalanceWindow,
	}
}

type pendingChargeRow struct {
	ID          int
	ClientId    int
	Amount      decimal.Decimal
	Description string
	PeriodEnd   *time.Time
	CreatedAt   time.Time
	ServiceName *string
}

// ScanPendingPayments surfaces charge transactions that have sat pending for
// longer than PendingAge and still lack a recent payment_required
// notification. The suppression check is per transaction: a charge created
// after the last reminder always surfaces, even when older charges for the
// same client are already covered.
func (s *Scanner) ScanPendingPayments(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.PendingAge)

	var rows []pendingChargeRow
	err := s.DB.WithContext(ctx).
		Model(&models.Transaction{}).
		Select("transactions.id, transactions.client_id, transactions.amount, transactions.description, transactions.period_end, transactions.created_at, services.name AS service_name").
		Joins("LEFT JOIN services ON services.id = transactions.service_id").
		Where("transactions.type = ? AND transactions.status = ? AND transactions.created_at < ?",
			models.TransactionTypeCharge, models.TransactionStatusPending, cutoff).
		Order("transactions.client_id, transactions.created_at").
		Scan(&rows).Error
	if err != nil {
		return 0, err
	}

	// Decide the whole batch before acting so a notification sent for one
	// charge cannot suppress another charge picked up by this same scan.
	eligible := make([]pendingChargeRow, 0, len(rows))
	for _, row := range rows {
		suppressed, err := s.Deduper.IsSuppressed(ctx, row.ClientId, models.NotificationTypePaymentRequired, row.CreatedAt, s.PendingWindow)
		if err != nil {
			config.LogError(s.Logger, "scanner.go", "ScanPendingPayments", "dedup check", map[string]interface{}{
				"transaction_id": row.ID,
				"client_id":      row.ClientId,
			}, err)
			continue
		}
		if !suppressed {
			eligible = append(eligible, row)
		}
	}

	count := 0
	for _, row := range eligible {
		title, message := composePaymentRequired(row)
		if _, err := s.Notifier.Send(ctx, row.ClientId, models.NotificationTypePaymentRequired, title, message); err != nil {
			config.LogError(s.Logger, "scanner.go", "ScanPendingPayments", "requesting notification", map[string]interface{}{
				"transaction_id": row.ID,
				"client_id":      row.ClientId,
			}, err)
			continue
		}
		count++
	}

	s.Logger.WithFields(logrus.Fields{
		"field":      "Reminders",
		"scan":       "pending_payments",
		"candidates": len(rows),
		"notified":   count,
	}).Info("scan finished")
	return count, nil
}

// ScanLowBalance reminds clients whose balance dropped strictly below
// threshold, at most once per LowBalanceWindow.
func (s *Scanner) ScanLowBalance(ctx context.Context, threshold decimal.Decimal) (int, error) {
	var clients []models.Client
	err := s.DB.WithContext(ctx).
		Where("balance < ?", threshold).
		Order("id").
		Find(&clients).Error
	if err != nil {
		return 0, err
	}

	eligible := make([]models.Client, 0, len(clients))
	for _, client := range clients {
		suppressed, err := s.Deduper.IsSuppressed(ctx, client.ID, models.NotificationTypeLowBalance, time.Time{}, s.LowBalanceWindow)
		if err != nil {
			config.LogError(s.Logger, "scanner.go", "ScanLowBalance", "dedup check", map[string]interface{}{
				"client_id": client.ID,
			}, err)
			continue
		}
		if !suppressed {
			eligible = append(eligible, client)
		}
	}

	count := 0
	for _, client := range eligible {
		title := "Low balance"
		message := fmt.Sprintf("Your balance is %s. Please top up your account.", client.Balance.StringFixed(2))
		if _, err := s.Notifier.Send(ctx, client.ID, models.NotificationTypeLowBalance, title, message); err != nil {
			config.LogError(s.Logger, "scanner.go", "ScanLowBalance", "requesting notification", map[string]interface{}{
				"client_id": client.ID,
			}, err)
			continue
		}
		count++
	}

	s.Logger.WithFields(logrus.Fields{
		"field":      "Reminders",
		"scan":       "low_balance",
		"candidates": len(clients),
		"notified":   count,
	}).Info("scan finished")
	return count, nil
}

func composePaymentRequired(row pendingChargeRow) (string, string) {
	serviceName := "Service"
	if row.ServiceName != nil && *row.ServiceName != "" {
		serviceName = *row.ServiceName
	}
	period := ""
	if row.PeriodEnd != nil {
		period = fmt.Sprintf(" for the period until %s", row.PeriodEnd.Format("02.01.2006"))
	}
	title := "Payment required"
	message := fmt.Sprintf("Please pay %s in the amount of %s%s.", serviceName, row.Amount.StringFixed(2), period)
	return title, message
}
