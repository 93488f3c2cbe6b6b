package models

import (
	"log"

	"github.com/mmdatafocus/billing_backend/config"
)

// MigrateTable runs AutoMigrate for every entity this service owns.
func MigrateTable() {
	err := config.GetDB().AutoMigrate(
		&Client{},
		&Service{},
		&ClientService{},
		&Transaction{},
		&SbisSyncLog{},
		&Notification{},
	)
	if err != nil {
		log.Printf("auto migrate failed: %v", err)
	}
}
