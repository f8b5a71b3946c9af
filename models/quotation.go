package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arkline-sg/backoffice_backend/config"
	"github.com/arkline-sg/backoffice_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Quotation is a sales quote. Quotations never sync to the ledger directly;
// an accepted quotation becomes a Draft invoice which is then sync-eligible.
type Quotation struct {
	ID           int              `gorm:"primary_key" json:"id"`
	ClientId     int              `gorm:"index;not null" json:"client_id" binding:"required"`
	Client       *Client          `json:"client,omitempty"`
	QuoteNumber  string           `gorm:"size:50;not null" json:"quote_number" binding:"required"`
	QuoteDate    time.Time        `gorm:"not null" json:"quote_date"`
	ValidUntil   time.Time        `json:"valid_until"`
	Status       QuotationStatus  `gorm:"type:enum('Draft','Sent','Accepted','Declined');not null;default:'Draft'" json:"status"`
	CurrencyCode string           `gorm:"size:3;not null;default:'SGD'" json:"currency_code"`
	SubTotal     decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"sub_total"`
	TotalTax     decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"total_tax"`
	Total        decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"total"`
	Lines        []*QuotationLine `json:"lines"`
	InvoiceId    *int             `json:"invoice_id"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type QuotationLine struct {
	ID          int             `gorm:"primary_key" json:"id"`
	QuotationId int             `gorm:"index;not null" json:"quotation_id"`
	Description string          `gorm:"size:255;not null" json:"description"`
	Quantity    decimal.Decimal `gorm:"type:decimal(20,4);default:1" json:"quantity"`
	UnitAmount  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_amount"`
	TaxRate     decimal.Decimal `gorm:"type:decimal(10,4);default:0" json:"tax_rate"`
	LineAmount  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"line_amount"`
}

type NewQuotation struct {
	ClientId     int              `json:"client_id" binding:"required"`
	QuoteNumber  string           `json:"quote_number" binding:"required"`
	QuoteDate    time.Time        `json:"quote_date"`
	ValidUntil   time.Time        `json:"valid_until"`
	CurrencyCode string           `json:"currency_code"`
	Lines        []NewInvoiceLine `json:"lines" binding:"required"`
}

func CreateQuotation(ctx context.Context, input *NewQuotation) (*Quotation, error) {
	if err := utils.ValidateResourceId[Client](ctx, input.ClientId); err != nil {
		return nil, err
	}
	if err := utils.ValidateUnique[Quotation](ctx, "quote_number", input.QuoteNumber, 0); err != nil {
		return nil, err
	}

	var subTotal, totalTax decimal.Decimal
	quote := Quotation{
		ClientId:     input.ClientId,
		QuoteNumber:  input.QuoteNumber,
		QuoteDate:    input.QuoteDate,
		ValidUntil:   input.ValidUntil,
		Status:       QuotationStatusDraft,
		CurrencyCode: input.CurrencyCode,
	}
	if quote.CurrencyCode == "" {
		quote.CurrencyCode = "SGD"
	}
	if quote.QuoteDate.IsZero() {
		quote.QuoteDate = time.Now()
	}
	for _, line := range input.Lines {
		qty := line.Quantity
		if qty.IsZero() {
			qty = decimal.NewFromInt(1)
		}
		amount := qty.Mul(line.UnitAmount)
		subTotal = subTotal.Add(amount)
		totalTax = totalTax.Add(amount.Mul(line.TaxRate).Div(decimal.NewFromInt(100)))
		quote.Lines = append(quote.Lines, &QuotationLine{
			Description: line.Description,
			Quantity:    qty,
			UnitAmount:  line.UnitAmount,
			TaxRate:     line.TaxRate,
			LineAmount:  amount,
		})
	}
	quote.SubTotal = subTotal
	quote.TotalTax = totalTax
	quote.Total = subTotal.Add(totalTax)

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&quote).Error; err != nil {
		return nil, err
	}
	return &quote, nil
}

// AcceptQuotation marks the quote Accepted and creates the matching Draft invoice.
func AcceptQuotation(ctx context.Context, id int) (*Quotation, error) {
	db := config.GetDB()
	var quote Quotation
	if err := db.WithContext(ctx).Preload("Lines").Where("id = ?", id).Take(&quote).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	if quote.Status == QuotationStatusAccepted {
		return nil, errors.New("quotation already accepted")
	}
	if quote.Status == QuotationStatusDeclined {
		return nil, errors.New("quotation has been declined")
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice := Invoice{
			ClientId:      quote.ClientId,
			InvoiceNumber: fmt.Sprintf("INV-%s", quote.QuoteNumber),
			Reference:     quote.QuoteNumber,
			InvoiceDate:   time.Now(),
			Status:        InvoiceStatusDraft,
			CurrencyCode:  quote.CurrencyCode,
			SubTotal:      quote.SubTotal,
			TotalTax:      quote.TotalTax,
			Total:         quote.Total,
			AmountDue:     quote.Total,
		}
		for _, line := range quote.Lines {
			invoice.Lines = append(invoice.Lines, &InvoiceLine{
				Description: line.Description,
				Quantity:    line.Quantity,
				UnitAmount:  line.UnitAmount,
				TaxRate:     line.TaxRate,
				LineAmount:  line.LineAmount,
			})
		}
		if err := tx.Create(&invoice).Error; err != nil {
			return err
		}
		return tx.Model(&Quotation{}).Where("id = ?", quote.ID).Updates(map[string]interface{}{
			"status":     QuotationStatusAccepted,
			"invoice_id": invoice.ID,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	if err := db.WithContext(ctx).Preload("Lines").Where("id = ?", id).Take(&quote).Error; err != nil {
		return nil, err
	}
	return &quote, nil
}

func ListQuotations(ctx context.Context) ([]Quotation, error) {
	db := config.GetDB()
	var quotes []Quotation
	if err := db.WithContext(ctx).Preload("Lines").Order("quote_date desc").Find(&quotes).Error; err != nil {
		return nil, err
	}
	return quotes, nil
}
