package reminders

import (
	"context"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/mmdatafocus/billing_backend/config"
	"github.com/mmdatafocus/billing_backend/models"
	"github.com/mmdatafocus/billing_backend/notify"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// These tests need a running MySQL (set INTEGRATION_TESTS=true plus the DB_*
// env vars). They exercise the scan selection queries and the suppression
// windows against real rows.

func integrationClient(t *testing.T, balance decimal.Decimal) *models.Client {
	t.Helper()
	if os.Getenv("INTEGRATION_TESTS") != "true" {
		t.Skip("set INTEGRATION_TESTS=true to run against MySQL")
	}
	config.ConnectDatabaseWithRetry()
	models.MigrateTable()

	client := &models.Client{
		Email:        fmt.Sprintf("reminder-test-%d@example.com", time.Now().UnixNano()),
		Name:         "Reminder Test",
		PasswordHash: "x",
		Balance:      balance,
	}
	if err := config.GetDB().Create(client).Error; err != nil {
		t.Fatalf("creating client: %v", err)
	}
	t.Cleanup(func() {
		db := config.GetDB()
		db.Where("client_id = ?", client.ID).Delete(&models.Transaction{})
		db.Where("client_id = ?", client.ID).Delete(&models.Notification{})
		db.Delete(client)
	})
	return client
}

func integrationScanner() *Scanner {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewScanner(config.GetDB(), logger, notify.NewDispatcher(logger))
}

func countNotifications(t *testing.T, clientId int, notificationType models.NotificationType) int64 {
	t.Helper()
	var count int64
	err := config.GetDB().Model(&models.Notification{}).
		Where("client_id = ? AND type = ?", clientId, notificationType).
		Count(&count).Error
	if err != nil {
		t.Fatalf("counting notifications: %v", err)
	}
	return count
}

func TestScanLowBalance_ThresholdAndWindow(t *testing.T) {
	below := integrationClient(t, decimal.NewFromInt(999))
	atThreshold := integrationClient(t, decimal.NewFromInt(1000))

	scanner := integrationScanner()
	threshold := decimal.NewFromInt(1000)
	ctx := context.Background()

	if _, err := scanner.ScanLowBalance(ctx, threshold); err != nil {
		t.Fatalf("first scan: %v", err)
	}
	if got := countNotifications(t, below.ID, models.NotificationTypeLowBalance); got != 1 {
		t.Errorf("balance 999 should be selected: got %d notifications", got)
	}
	if got := countNotifications(t, atThreshold.ID, models.NotificationTypeLowBalance); got != 0 {
		t.Errorf("balance exactly 1000 must not be selected: got %d notifications", got)
	}

	// The recorded notification keeps the client quiet for the whole window.
	if _, err := scanner.ScanLowBalance(ctx, threshold); err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if got := countNotifications(t, below.ID, models.NotificationTypeLowBalance); got != 1 {
		t.Errorf("client should stay excluded after a reminder: got %d notifications", got)
	}
}

func TestScanPendingPayments_SurfacesOnce(t *testing.T) {
	client := integrationClient(t, decimal.NewFromInt(5000))

	charge := models.Transaction{
		ClientId:  client.ID,
		Type:      models.TransactionTypeCharge,
		Amount:    decimal.NewFromInt(1500),
		Status:    models.TransactionStatusPending,
		CreatedAt: time.Now().Add(-48 * time.Hour),
	}
	if err := config.GetDB().Create(&charge).Error; err != nil {
		t.Fatalf("creating charge: %v", err)
	}

	scanner := integrationScanner()
	ctx := context.Background()

	if _, err := scanner.ScanPendingPayments(ctx); err != nil {
		t.Fatalf("first scan: %v", err)
	}
	if got := countNotifications(t, client.ID, models.NotificationTypePaymentRequired); got != 1 {
		t.Errorf("48h-old pending charge should surface: got %d notifications", got)
	}

	if _, err := scanner.ScanPendingPayments(ctx); err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if got := countNotifications(t, client.ID, models.NotificationTypePaymentRequired); got != 1 {
		t.Errorf("same charge must not re-surface inside the window: got %d notifications", got)
	}
}
