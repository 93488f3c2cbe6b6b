package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mmdatafocus/billing_backend/config"
)

// SbisSyncLog is the append-only audit trail: exactly one row per
// reconciliation attempt, success or failure. Rows are never updated or
// deleted, which is what lets operators tell "never synced" apart from
// "synced but empty".
type SbisSyncLog struct {
	ID           int       `gorm:"primary_key" json:"id"`
	ClientId     int       `gorm:"index:idx_sync_log_client_created,priority:1;not null" json:"client_id"`
	SyncType     string    `gorm:"size:50;not null" json:"sync_type"`
	Status       string    `gorm:"size:50;not null" json:"status"`
	Data         []byte    `gorm:"type:json" json:"data"`
	ErrorMessage string    `gorm:"type:text" json:"error_message"`
	CreatedAt    time.Time `gorm:"autoCreateTime;index:idx_sync_log_client_created,priority:2" json:"created_at"`
}

// AppendSyncLog writes one audit row on the root DB handle. Callers invoke it
// outside any reconciliation transaction so a failure row survives the
// rollback of the unit it describes.
func AppendSyncLog(ctx context.Context, clientId int, syncType string, status string, counts map[string]int, errMessage string) error {
	var data []byte
	if counts != nil {
		data, _ = json.Marshal(counts)
	}
	row := SbisSyncLog{
		ClientId:     clientId,
		SyncType:     syncType,
		Status:       status,
		Data:         data,
		ErrorMessage: errMessage,
	}
	return config.GetDB().WithContext(ctx).Create(&row).Error
}

func ListSyncLogs(ctx context.Context, clientId int, limit int) ([]SbisSyncLog, error) {
	if limit < 1 || limit > 200 {
		limit = config.SearchLimit
	}
	query := config.GetDB().WithContext(ctx).Model(&SbisSyncLog{})
	if clientId > 0 {
		query = query.Where("client_id = ?", clientId)
	}
	var logs []SbisSyncLog
	err := query.Order("created_at DESC").Limit(limit).Find(&logs).Error
	return logs, err
}
