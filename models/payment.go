package models

import (
	"context"
	"errors"
	"time"

	"github.com/arkline-sg/backoffice_backend/config"
	"github.com/arkline-sg/backoffice_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Payment records money received against an invoice.
// Bulk sync pulls payments only; pushing a payment to the ledger happens
// per-record when it is created (see api.CreatePaymentHandler).
type Payment struct {
	ID          int             `gorm:"primary_key" json:"id"`
	InvoiceId   int             `gorm:"index;not null" json:"invoice_id" binding:"required"`
	Invoice     *Invoice        `json:"invoice,omitempty"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount" binding:"required"`
	PaymentDate time.Time       `gorm:"not null" json:"payment_date"`
	Reference   string          `gorm:"size:100" json:"reference"`
	AccountCode string          `gorm:"size:10" json:"account_code"`

	XeroId       string     `gorm:"size:64;index" json:"xero_id"`
	LastSyncedAt *time.Time `json:"last_synced_at"`
	SyncHash     string     `gorm:"size:64" json:"sync_hash"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPayment struct {
	InvoiceId   int             `json:"invoice_id" binding:"required"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	PaymentDate time.Time       `json:"payment_date"`
	Reference   string          `json:"reference"`
	AccountCode string          `json:"account_code"`
}

func CreatePayment(ctx context.Context, input *NewPayment) (*Payment, error) {
	invoice, err := GetInvoice(ctx, input.InvoiceId)
	if err != nil {
		return nil, err
	}
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("payment amount must be positive")
	}
	if input.Amount.GreaterThan(invoice.AmountDue) {
		return nil, errors.New("payment exceeds amount due")
	}

	payment := Payment{
		InvoiceId:   input.InvoiceId,
		Amount:      input.Amount,
		PaymentDate: input.PaymentDate,
		Reference:   input.Reference,
		AccountCode: input.AccountCode,
	}
	if payment.PaymentDate.IsZero() {
		payment.PaymentDate = time.Now()
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&payment).Error; err != nil {
			return err
		}
		newDue := invoice.AmountDue.Sub(input.Amount)
		updates := map[string]interface{}{"amount_due": newDue}
		if newDue.IsZero() {
			updates["status"] = InvoiceStatusPaid
		}
		return tx.Model(&Invoice{}).Where("id = ?", invoice.ID).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func GetPayment(ctx context.Context, id int) (*Payment, error) {
	db := config.GetDB()
	var payment Payment
	if err := db.WithContext(ctx).Where("id = ?", id).Take(&payment).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &payment, nil
}

func ListPayments(ctx context.Context) ([]Payment, error) {
	db := config.GetDB()
	var payments []Payment
	if err := db.WithContext(ctx).Order("payment_date desc").Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}
