package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/billing_backend/config"
	"github.com/mmdatafocus/billing_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Client struct {
	ID             int             `gorm:"primary_key" json:"id"`
	Email          string          `gorm:"size:255;uniqueIndex;not null" json:"email" binding:"required"`
	Phone          string          `gorm:"size:50" json:"phone"`
	Name           string          `gorm:"size:255;not null" json:"name" binding:"required"`
	PasswordHash   string          `gorm:"size:255;not null" json:"-"`
	Balance        decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"balance"`
	SbisContractId string          `gorm:"size:255;index" json:"sbis_contract_id"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetClient(ctx context.Context, id int) (*Client, error) {
	var client Client
	if err := config.GetDB().WithContext(ctx).First(&client, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &client, nil
}

// ListSyncableClients returns every client with a configured SBIS contract id,
// i.e. the population the daily sync pass fans out over.
func ListSyncableClients(ctx context.Context) ([]Client, error) {
	var clients []Client
	err := config.GetDB().WithContext(ctx).
		Where("sbis_contract_id IS NOT NULL AND sbis_contract_id <> ''").
		Order("id").
		Find(&clients).Error
	return clients, err
}
