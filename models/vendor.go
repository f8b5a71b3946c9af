package models

import (
	"context"
	"time"

	"github.com/arkline-sg/backoffice_backend/config"
	"github.com/arkline-sg/backoffice_backend/utils"
)

// Vendor is a supplier the business buys from. Shares the Contact shape with
// Client on the ledger side; locally they are separate tables.
type Vendor struct {
	ID            int          `gorm:"primary_key" json:"id"`
	Name          string       `gorm:"size:100;not null" json:"name" binding:"required"`
	Email         string       `gorm:"size:100" json:"email"`
	Phone         string       `gorm:"size:20" json:"phone"`
	ContactPerson string       `gorm:"size:100" json:"contact_person"`
	PaymentTerms  PaymentTerms `gorm:"type:enum('Net15','Net30','Net60','DueOnReceipt');not null;default:'DueOnReceipt'" json:"payment_terms"`
	CurrencyCode  string       `gorm:"size:3;not null;default:'SGD'" json:"currency_code"`
	Notes         string       `gorm:"type:text" json:"notes"`
	IsActive      *bool        `gorm:"not null;default:true" json:"is_active"`

	XeroId       string     `gorm:"size:64;index" json:"xero_id"`
	LastSyncedAt *time.Time `json:"last_synced_at"`
	SyncHash     string     `gorm:"size:64" json:"sync_hash"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewVendor struct {
	Name          string       `json:"name" binding:"required"`
	Email         string       `json:"email"`
	Phone         string       `json:"phone"`
	ContactPerson string       `json:"contact_person"`
	PaymentTerms  PaymentTerms `json:"payment_terms"`
	CurrencyCode  string       `json:"currency_code"`
	Notes         string       `json:"notes"`
	IsActive      *bool        `json:"is_active"`
}

func (input *NewVendor) validate(ctx context.Context, id int) error {
	if err := utils.ValidateUnique[Vendor](ctx, "name", input.Name, id); err != nil {
		return err
	}
	return nil
}

func (input *NewVendor) fill(vendor *Vendor) {
	vendor.Name = input.Name
	vendor.Email = input.Email
	vendor.Phone = input.Phone
	vendor.ContactPerson = input.ContactPerson
	vendor.PaymentTerms = input.PaymentTerms
	if vendor.PaymentTerms == "" {
		vendor.PaymentTerms = PaymentTermsDueOnReceipt
	}
	vendor.CurrencyCode = input.CurrencyCode
	if vendor.CurrencyCode == "" {
		vendor.CurrencyCode = "SGD"
	}
	vendor.Notes = input.Notes
	if input.IsActive != nil {
		vendor.IsActive = input.IsActive
	}
}

func CreateVendor(ctx context.Context, input *NewVendor) (*Vendor, error) {
	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	vendor := Vendor{IsActive: utils.NewTrue()}
	input.fill(&vendor)

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&vendor).Error; err != nil {
		return nil, err
	}
	return &vendor, nil
}

func UpdateVendor(ctx context.Context, id int, input *NewVendor) (*Vendor, error) {
	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	db := config.GetDB()
	var vendor Vendor
	if err := db.WithContext(ctx).Where("id = ?", id).Take(&vendor).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	input.fill(&vendor)
	if err := db.WithContext(ctx).Save(&vendor).Error; err != nil {
		return nil, err
	}
	return &vendor, nil
}

func GetVendor(ctx context.Context, id int) (*Vendor, error) {
	db := config.GetDB()
	var vendor Vendor
	if err := db.WithContext(ctx).Where("id = ?", id).Take(&vendor).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &vendor, nil
}

func ListVendors(ctx context.Context) ([]Vendor, error) {
	db := config.GetDB()
	var vendors []Vendor
	if err := db.WithContext(ctx).Order("name").Find(&vendors).Error; err != nil {
		return nil, err
	}
	return vendors, nil
}
