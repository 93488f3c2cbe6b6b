package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Service is a local catalog entry. The code is assigned the first time a
// provider service descriptor maps to it and never changes afterwards.
type Service struct {
	ID            int             `gorm:"primary_key" json:"id"`
	Name          string          `gorm:"size:255;not null" json:"name"`
	Code          string          `gorm:"size:100;uniqueIndex;not null" json:"code"`
	Description   string          `gorm:"type:text" json:"description"`
	Price         decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"price"`
	BillingPeriod BillingPeriod   `gorm:"size:50;default:'monthly'" json:"billing_period"`
	IsActive      *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}
