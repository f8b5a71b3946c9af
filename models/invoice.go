package models

import (
	"context"
	"time"

	"github.com/arkline-sg/backoffice_backend/config"
	"github.com/arkline-sg/backoffice_backend/utils"
	"github.com/shopspring/decimal"
)

// Invoice is a receivable (ACCREC on the ledger side).
type Invoice struct {
	ID            int             `gorm:"primary_key" json:"id"`
	ClientId      int             `gorm:"index;not null" json:"client_id" binding:"required"`
	Client        *Client         `json:"client,omitempty"`
	InvoiceNumber string          `gorm:"size:50;not null" json:"invoice_number" binding:"required"`
	Reference     string          `gorm:"size:100" json:"reference"`
	InvoiceDate   time.Time       `gorm:"not null" json:"invoice_date"`
	DueDate       time.Time       `json:"due_date"`
	Status        InvoiceStatus   `gorm:"type:enum('Draft','Submitted','Authorised','Paid','Voided');not null;default:'Draft'" json:"status"`
	CurrencyCode  string          `gorm:"size:3;not null;default:'SGD'" json:"currency_code"`
	SubTotal      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"sub_total"`
	TotalTax      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_tax"`
	Total         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total"`
	AmountDue     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount_due"`
	Lines         []*InvoiceLine  `json:"lines"`

	XeroId       string     `gorm:"size:64;index" json:"xero_id"`
	LastSyncedAt *time.Time `json:"last_synced_at"`
	SyncHash     string     `gorm:"size:64" json:"sync_hash"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type InvoiceLine struct {
	ID          int             `gorm:"primary_key" json:"id"`
	InvoiceId   int             `gorm:"index;not null" json:"invoice_id"`
	Description string          `gorm:"size:255;not null" json:"description"`
	Quantity    decimal.Decimal `gorm:"type:decimal(20,4);default:1" json:"quantity"`
	UnitAmount  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_amount"`
	AccountCode string          `gorm:"size:10" json:"account_code"`
	TaxRate     decimal.Decimal `gorm:"type:decimal(10,4);default:0" json:"tax_rate"`
	LineAmount  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"line_amount"`
}

type NewInvoiceLine struct {
	Description string          `json:"description" binding:"required"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitAmount  decimal.Decimal `json:"unit_amount"`
	AccountCode string          `json:"account_code"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
}

type NewInvoice struct {
	ClientId      int              `json:"client_id" binding:"required"`
	InvoiceNumber string           `json:"invoice_number" binding:"required"`
	Reference     string           `json:"reference"`
	InvoiceDate   time.Time        `json:"invoice_date"`
	DueDate       time.Time        `json:"due_date"`
	Status        InvoiceStatus    `json:"status"`
	CurrencyCode  string           `json:"currency_code"`
	Lines         []NewInvoiceLine `json:"lines" binding:"required"`
}

func (line NewInvoiceLine) amount() decimal.Decimal {
	qty := line.Quantity
	if qty.IsZero() {
		qty = decimal.NewFromInt(1)
	}
	return qty.Mul(line.UnitAmount)
}

func (input *NewInvoice) totals() (subTotal, totalTax, total decimal.Decimal) {
	for _, line := range input.Lines {
		amount := line.amount()
		subTotal = subTotal.Add(amount)
		totalTax = totalTax.Add(amount.Mul(line.TaxRate).Div(decimal.NewFromInt(100)))
	}
	total = subTotal.Add(totalTax)
	return
}

func CreateInvoice(ctx context.Context, input *NewInvoice) (*Invoice, error) {
	if err := utils.ValidateResourceId[Client](ctx, input.ClientId); err != nil {
		return nil, err
	}
	if err := utils.ValidateUnique[Invoice](ctx, "invoice_number", input.InvoiceNumber, 0); err != nil {
		return nil, err
	}

	subTotal, totalTax, total := input.totals()
	invoice := Invoice{
		ClientId:      input.ClientId,
		InvoiceNumber: input.InvoiceNumber,
		Reference:     input.Reference,
		InvoiceDate:   input.InvoiceDate,
		DueDate:       input.DueDate,
		Status:        input.Status,
		CurrencyCode:  input.CurrencyCode,
		SubTotal:      subTotal,
		TotalTax:      totalTax,
		Total:         total,
		AmountDue:     total,
	}
	if invoice.Status == "" {
		invoice.Status = InvoiceStatusDraft
	}
	if invoice.CurrencyCode == "" {
		invoice.CurrencyCode = "SGD"
	}
	if invoice.InvoiceDate.IsZero() {
		invoice.InvoiceDate = time.Now()
	}
	for _, line := range input.Lines {
		qty := line.Quantity
		if qty.IsZero() {
			qty = decimal.NewFromInt(1)
		}
		invoice.Lines = append(invoice.Lines, &InvoiceLine{
			Description: line.Description,
			Quantity:    qty,
			UnitAmount:  line.UnitAmount,
			AccountCode: line.AccountCode,
			TaxRate:     line.TaxRate,
			LineAmount:  line.amount(),
		})
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&invoice).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func GetInvoice(ctx context.Context, id int) (*Invoice, error) {
	db := config.GetDB()
	var invoice Invoice
	if err := db.WithContext(ctx).Preload("Lines").Where("id = ?", id).Take(&invoice).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &invoice, nil
}

func ListInvoices(ctx context.Context) ([]Invoice, error) {
	db := config.GetDB()
	var invoices []Invoice
	if err := db.WithContext(ctx).Preload("Lines").Order("invoice_date desc").Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}
