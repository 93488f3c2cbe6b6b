package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/billing_backend/config"
	"gorm.io/gorm"
)

type Notification struct {
	ID        int              `gorm:"primary_key" json:"id"`
	ClientId  int              `gorm:"index:idx_notification_client_type,priority:1;not null" json:"client_id"`
	Type      NotificationType `gorm:"index:idx_notification_client_type,priority:2;size:50;not null" json:"type"`
	Title     string           `gorm:"size:255;not null" json:"title"`
	Message   string           `gorm:"type:text" json:"message"`
	IsRead    *bool            `gorm:"not null;default:false" json:"is_read"`
	CreatedAt time.Time        `gorm:"autoCreateTime" json:"created_at"`
}

func CreateNotification(ctx context.Context, notification *Notification) error {
	return config.GetDB().WithContext(ctx).Create(notification).Error
}

// LatestNotification returns the newest notification of the given type for the
// client, or nil when none exists.
func LatestNotification(ctx context.Context, clientId int, notificationType NotificationType) (*Notification, error) {
	var notification Notification
	err := config.GetDB().WithContext(ctx).
		Where("client_id = ? AND type = ?", clientId, notificationType).
		Order("created_at DESC").
		First(&notification).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &notification, nil
}

func MarkNotificationRead(ctx context.Context, clientId int, id int) error {
	return config.GetDB().WithContext(ctx).
		Model(&Notification{}).
		Where("id = ? AND client_id = ?", id, clientId).
		Update("is_read", true).Error
}

func ListNotifications(ctx context.Context, clientId int, limit int) ([]Notification, error) {
	if limit < 1 || limit > 100 {
		limit = config.SearchLimit
	}
	var notifications []Notification
	err := config.GetDB().WithContext(ctx).
		Where("client_id = ?", clientId).
		Order("created_at DESC").
		Limit(limit).
		Find(&notifications).Error
	return notifications, err
}
