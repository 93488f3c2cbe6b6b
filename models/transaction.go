package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/billing_backend/config"
	"github.com/shopspring/decimal"
)

// Transaction is one ledger entry. SbisInvoiceId is the idempotency key for
// provider ingestion: a nullable unique column, so provider-created charges can
// never be inserted twice while locally-created rows carry no ref at all.
// Rows are immutable once created except for status transitions.
type Transaction struct {
	ID            int               `gorm:"primary_key" json:"id"`
	ClientId      int               `gorm:"index;not null" json:"client_id"`
	ServiceId     *int              `gorm:"index" json:"service_id"`
	Type          TransactionType   `gorm:"size:50;not null" json:"type"`
	Amount        decimal.Decimal   `gorm:"type:decimal(12,2);not null" json:"amount"`
	Description   string            `gorm:"type:text" json:"description"`
	PeriodStart   *time.Time        `json:"period_start"`
	PeriodEnd     *time.Time        `json:"period_end"`
	SbisInvoiceId *string           `gorm:"size:255;uniqueIndex" json:"sbis_invoice_id"`
	Status        TransactionStatus `gorm:"size:50;not null;default:'pending'" json:"status"`
	CreatedAt     time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

type TransactionFilter struct {
	ClientId  int
	Type      TransactionType
	StartDate *time.Time
	EndDate   *time.Time
	Page      int
	Limit     int
}

type TransactionPage struct {
	Transactions []Transaction `json:"transactions"`
	Page         int           `json:"page"`
	Limit        int           `json:"limit"`
	Total        int64         `json:"total"`
}

// ListTransactions returns a client's payment history, newest first.
func ListTransactions(ctx context.Context, filter TransactionFilter) (*TransactionPage, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 || filter.Limit > 100 {
		filter.Limit = config.SearchLimit
	}

	query := config.GetDB().WithContext(ctx).
		Model(&Transaction{}).
		Where("client_id = ?", filter.ClientId)
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.StartDate != nil {
		query = query.Where("created_at >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		query = query.Where("created_at <= ?", *filter.EndDate)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	var transactions []Transaction
	err := query.
		Order("created_at DESC").
		Limit(filter.Limit).
		Offset((filter.Page - 1) * filter.Limit).
		Find(&transactions).Error
	if err != nil {
		return nil, err
	}

	return &TransactionPage{
		Transactions: transactions,
		Page:         filter.Page,
		Limit:        filter.Limit,
		Total:        total,
	}, nil
}
