package models

// TransactionType classifies ledger entries.
type TransactionType string

const (
	TransactionTypeCharge  TransactionType = "charge"
	TransactionTypePayment TransactionType = "payment"
	TransactionTypeRefund  TransactionType = "refund"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

// BillingPeriod is how often a service bills.
type BillingPeriod string

const (
	BillingPeriodMonthly   BillingPeriod = "monthly"
	BillingPeriodQuarterly BillingPeriod = "quarterly"
	BillingPeriodYearly    BillingPeriod = "yearly"
	BillingPeriodOneTime   BillingPeriod = "one_time"
)

// Sync attempt categories and outcomes (one SbisSyncLog row per attempt).
const (
	SyncTypeServices = "services"
	SyncTypeInvoices = "invoices"
)

const (
	SyncStatusCompleted = "completed"
	SyncStatusFailed    = "failed"
)

const (
	SyncTriggeredManual = "manual"
	SyncTriggeredSystem = "system"
)

// NotificationType drives the dedup window applied by the reminder scans.
type NotificationType string

const (
	NotificationTypePaymentRequired NotificationType = "payment_required"
	NotificationTypeLowBalance      NotificationType = "low_balance"
)
