package models

import (
	"log"

	"github.com/arkline-sg/backoffice_backend/config"
)

func MigrateTable() {
	db := config.GetDB()
	err := db.AutoMigrate(
		&User{},
		&Setting{},
		&Client{},
		&Vendor{},
		&Quotation{},
		&QuotationLine{},
		&Invoice{},
		&InvoiceLine{},
		&Bill{},
		&BillLine{},
		&Payment{},
		&XeroConnection{},
		&SyncLogEntry{},
		&Conflict{},
	)
	if err != nil {
		log.Printf("auto migrate failed: %v", err)
	}
}
