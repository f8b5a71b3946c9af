package models

import (
	"context"
	"time"

	"github.com/arkline-sg/backoffice_backend/config"
	"github.com/arkline-sg/backoffice_backend/utils"
	"github.com/shopspring/decimal"
)

// Bill is a payable (ACCPAY on the ledger side).
type Bill struct {
	ID           int             `gorm:"primary_key" json:"id"`
	VendorId     int             `gorm:"index;not null" json:"vendor_id" binding:"required"`
	Vendor       *Vendor         `json:"vendor,omitempty"`
	BillNumber   string          `gorm:"size:50;not null" json:"bill_number" binding:"required"`
	Reference    string          `gorm:"size:100" json:"reference"`
	BillDate     time.Time       `gorm:"not null" json:"bill_date"`
	DueDate      time.Time       `json:"due_date"`
	Status       InvoiceStatus   `gorm:"type:enum('Draft','Submitted','Authorised','Paid','Voided');not null;default:'Draft'" json:"status"`
	CurrencyCode string          `gorm:"size:3;not null;default:'SGD'" json:"currency_code"`
	SubTotal     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"sub_total"`
	TotalTax     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_tax"`
	Total        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total"`
	AmountDue    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount_due"`
	Lines        []*BillLine     `json:"lines"`

	XeroId       string     `gorm:"size:64;index" json:"xero_id"`
	LastSyncedAt *time.Time `json:"last_synced_at"`
	SyncHash     string     `gorm:"size:64" json:"sync_hash"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type BillLine struct {
	ID          int             `gorm:"primary_key" json:"id"`
	BillId      int             `gorm:"index;not null" json:"bill_id"`
	Description string          `gorm:"size:255;not null" json:"description"`
	Quantity    decimal.Decimal `gorm:"type:decimal(20,4);default:1" json:"quantity"`
	UnitAmount  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_amount"`
	AccountCode string          `gorm:"size:10" json:"account_code"`
	TaxRate     decimal.Decimal `gorm:"type:decimal(10,4);default:0" json:"tax_rate"`
	LineAmount  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"line_amount"`
}

type NewBill struct {
	VendorId     int              `json:"vendor_id" binding:"required"`
	BillNumber   string           `json:"bill_number" binding:"required"`
	Reference    string           `json:"reference"`
	BillDate     time.Time        `json:"bill_date"`
	DueDate      time.Time        `json:"due_date"`
	Status       InvoiceStatus    `json:"status"`
	CurrencyCode string           `json:"currency_code"`
	Lines        []NewInvoiceLine `json:"lines" binding:"required"`
}

func CreateBill(ctx context.Context, input *NewBill) (*Bill, error) {
	if err := utils.ValidateResourceId[Vendor](ctx, input.VendorId); err != nil {
		return nil, err
	}
	if err := utils.ValidateUnique[Bill](ctx, "bill_number", input.BillNumber, 0); err != nil {
		return nil, err
	}

	var subTotal, totalTax decimal.Decimal
	bill := Bill{
		VendorId:     input.VendorId,
		BillNumber:   input.BillNumber,
		Reference:    input.Reference,
		BillDate:     input.BillDate,
		DueDate:      input.DueDate,
		Status:       input.Status,
		CurrencyCode: input.CurrencyCode,
	}
	if bill.Status == "" {
		bill.Status = InvoiceStatusDraft
	}
	if bill.CurrencyCode == "" {
		bill.CurrencyCode = "SGD"
	}
	if bill.BillDate.IsZero() {
		bill.BillDate = time.Now()
	}
	for _, line := range input.Lines {
		qty := line.Quantity
		if qty.IsZero() {
			qty = decimal.NewFromInt(1)
		}
		amount := qty.Mul(line.UnitAmount)
		subTotal = subTotal.Add(amount)
		totalTax = totalTax.Add(amount.Mul(line.TaxRate).Div(decimal.NewFromInt(100)))
		bill.Lines = append(bill.Lines, &BillLine{
			Description: line.Description,
			Quantity:    qty,
			UnitAmount:  line.UnitAmount,
			AccountCode: line.AccountCode,
			TaxRate:     line.TaxRate,
			LineAmount:  amount,
		})
	}
	bill.SubTotal = subTotal
	bill.TotalTax = totalTax
	bill.Total = subTotal.Add(totalTax)
	bill.AmountDue = bill.Total

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&bill).Error; err != nil {
		return nil, err
	}
	return &bill, nil
}

func GetBill(ctx context.Context, id int) (*Bill, error) {
	db := config.GetDB()
	var bill Bill
	if err := db.WithContext(ctx).Preload("Lines").Where("id = ?", id).Take(&bill).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &bill, nil
}

func ListBills(ctx context.Context) ([]Bill, error) {
	db := config.GetDB()
	var bills []Bill
	if err := db.WithContext(ctx).Preload("Lines").Order("bill_date desc").Find(&bills).Error; err != nil {
		return nil, err
	}
	return bills, nil
}
