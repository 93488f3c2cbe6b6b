package models

import "time"

// ClientService links a client to a catalog service. SbisServiceId is the
// provider-side subscription id; the unique index on (client_id,
// sbis_service_id) is what keeps repeated syncs from duplicating links.
type ClientService struct {
	ID            int        `gorm:"primary_key" json:"id"`
	ClientId      int        `gorm:"uniqueIndex:idx_client_sbis_service,priority:1;not null" json:"client_id"`
	ServiceId     int        `gorm:"index;not null" json:"service_id"`
	SbisServiceId string     `gorm:"uniqueIndex:idx_client_sbis_service,priority:2;size:255;not null" json:"sbis_service_id"`
	StartDate     time.Time  `gorm:"not null" json:"start_date"`
	EndDate       *time.Time `json:"end_date"`
	IsActive      *bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
