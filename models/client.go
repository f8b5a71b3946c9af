package models

import (
	"context"
	"time"

	"github.com/arkline-sg/backoffice_backend/config"
	"github.com/arkline-sg/backoffice_backend/utils"
)

// Client is a customer of the business. The Xero* / sync fields are owned by
// the sync engine; everything else treats them as read-only.
type Client struct {
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

type NewClient struct {
	Name          string       `json:"name" binding:"required"`
	Email         string       `json:"email"`
	Phone         string       `json:"phone"`
	ContactPerson string       `json:"contact_person"`
	PaymentTerms  PaymentTerms `json:"payment_terms"`
	CurrencyCode  string       `json:"currency_code"`
	Notes         string       `json:"notes"`
	IsActive      *bool        `json:"is_active"`
}

func (input *NewClient) validate(ctx context.Context, id int) error {
	// validate unique name
	if err := utils.ValidateUnique[Client](ctx, "name", input.Name, id); err != nil {
		return err
	}
	if input.Email != "" {
		if err := utils.ValidateUnique[Client](ctx, "email", input.Email, id); err != nil {
			return err
		}
	}
	return nil
}

func (input *NewClient) fill(client *Client) {
	client.Name = input.Name
	client.Email = input.Email
	client.Phone = input.Phone
	client.ContactPerson = input.ContactPerson
	client.PaymentTerms = input.PaymentTerms
	if client.PaymentTerms == "" {
		client.PaymentTerms = PaymentTermsDueOnReceipt
	}
	client.CurrencyCode = input.CurrencyCode
	if client.CurrencyCode == "" {
		client.CurrencyCode = "SGD"
	}
	client.Notes = input.Notes
	if input.IsActive != nil {
		client.IsActive = input.IsActive
	}
}

func CreateClient(ctx context.Context, input *NewClient) (*Client, error) {
	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	client := Client{IsActive: utils.NewTrue()}
	input.fill(&client)

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&client).Error; err != nil {
		return nil, err
	}
	return &client, nil
}

func UpdateClient(ctx context.Context, id int, input *NewClient) (*Client, error) {
	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	db := config.GetDB()
	var client Client
	if err := db.WithContext(ctx).Where("id = ?", id).Take(&client).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	input.fill(&client)
	if err := db.WithContext(ctx).Save(&client).Error; err != nil {
		return nil, err
	}
	return &client, nil
}

func GetClient(ctx context.Context, id int) (*Client, error) {
	db := config.GetDB()
	var client Client
	if err := db.WithContext(ctx).Where("id = ?", id).Take(&client).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &client, nil
}

func ListClients(ctx context.Context) ([]Client, error) {
	db := config.GetDB()
	var clients []Client
	if err := db.WithContext(ctx).Order("name").Find(&clients).Error; err != nil {
		return nil, err
	}
	return clients, nil
}
