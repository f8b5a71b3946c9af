package xerosync

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/arkline-sg/backoffice_backend/models"
	"github.com/arkline-sg/backoffice_backend/utils"
)

// Mapping between local records and ledger payloads. Fingerprints are taken
// over the mapped payload so both sides of a comparison always go through the
// same canonical form; a record that round-trips unchanged keeps its hash.

func clientToContact(c *models.Client) XeroContact {
	return XeroContact{
		ContactID:    c.XeroId,
		Name:         strings.TrimSpace(c.Name),
		EmailAddress: strings.TrimSpace(c.Email),
		Phone:        strings.TrimSpace(c.Phone),
		IsCustomer:   true,
	}
}

func vendorToContact(v *models.Vendor) XeroContact {
	return XeroContact{
		ContactID:    v.XeroId,
		Name:         strings.TrimSpace(v.Name),
		EmailAddress: strings.TrimSpace(v.Email),
		Phone:        strings.TrimSpace(v.Phone),
		IsSupplier:   true,
	}
}

func contactToClient(x XeroContact, into *models.Client) {
	into.Name = x.Name
	into.Email = x.EmailAddress
	into.Phone = x.Phone
	if into.PaymentTerms == "" {
		into.PaymentTerms = models.PaymentTermsDueOnReceipt
	}
	if into.CurrencyCode == "" {
		into.CurrencyCode = "SGD"
	}
	if into.IsActive == nil {
		into.IsActive = utils.NewTrue()
	}
	into.XeroId = x.ContactID
}

func contactToVendor(x XeroContact, into *models.Vendor) {
	into.Name = x.Name
	into.Email = x.EmailAddress
	into.Phone = x.Phone
	if into.PaymentTerms == "" {
		into.PaymentTerms = models.PaymentTermsDueOnReceipt
	}
	if into.CurrencyCode == "" {
		into.CurrencyCode = "SGD"
	}
	if into.IsActive == nil {
		into.IsActive = utils.NewTrue()
	}
	into.XeroId = x.ContactID
}

func invoiceToXero(inv *models.Invoice, contactXeroId string) XeroInvoice {
	x := XeroInvoice{
		InvoiceID:     inv.XeroId,
		Type:          invoiceTypeReceivable,
		Contact:       XeroContactRef{ContactID: contactXeroId},
		InvoiceNumber: inv.InvoiceNumber,
		Reference:     inv.Reference,
		Date:          inv.InvoiceDate,
		DueDate:       inv.DueDate,
		Status:        strings.ToUpper(string(inv.Status)),
		CurrencyCode:  inv.CurrencyCode,
		SubTotal:      inv.SubTotal,
		TotalTax:      inv.TotalTax,
		Total:         inv.Total,
		AmountDue:     inv.AmountDue,
	}
	for _, line := range inv.Lines {
		x.LineItems = append(x.LineItems, XeroLineItem{
			Description: line.Description,
			Quantity:    line.Quantity,
			UnitAmount:  line.UnitAmount,
			AccountCode: line.AccountCode,
			TaxRate:     line.TaxRate,
			LineAmount:  line.LineAmount,
		})
	}
	return x
}

func billToXero(bill *models.Bill, contactXeroId string) XeroInvoice {
	x := XeroInvoice{
		InvoiceID:     bill.XeroId,
		Type:          invoiceTypePayable,
		Contact:       XeroContactRef{ContactID: contactXeroId},
		InvoiceNumber: bill.BillNumber,
		Reference:     bill.Reference,
		Date:          bill.BillDate,
		DueDate:       bill.DueDate,
		Status:        strings.ToUpper(string(bill.Status)),
		CurrencyCode:  bill.CurrencyCode,
		SubTotal:      bill.SubTotal,
		TotalTax:      bill.TotalTax,
		Total:         bill.Total,
		AmountDue:     bill.AmountDue,
	}
	for _, line := range bill.Lines {
		x.LineItems = append(x.LineItems, XeroLineItem{
			Description: line.Description,
			Quantity:    line.Quantity,
			UnitAmount:  line.UnitAmount,
			AccountCode: line.AccountCode,
			TaxRate:     line.TaxRate,
			LineAmount:  line.LineAmount,
		})
	}
	return x
}

func xeroToInvoice(x XeroInvoice, clientId int, into *models.Invoice) {
	into.ClientId = clientId
	into.InvoiceNumber = x.InvoiceNumber
	into.Reference = x.Reference
	into.InvoiceDate = x.Date
	into.DueDate = x.DueDate
	into.Status = invoiceStatusFromXero(x.Status)
	into.CurrencyCode = x.CurrencyCode
	into.SubTotal = x.SubTotal
	into.TotalTax = x.TotalTax
	into.Total = x.Total
	into.AmountDue = x.AmountDue
	into.XeroId = x.InvoiceID
	into.Lines = nil
	for _, item := range x.LineItems {
		into.Lines = append(into.Lines, &models.InvoiceLine{
			InvoiceId:   into.ID,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitAmount:  item.UnitAmount,
			AccountCode: item.AccountCode,
			TaxRate:     item.TaxRate,
			LineAmount:  item.LineAmount,
		})
	}
}

func xeroToBill(x XeroInvoice, vendorId int, into *models.Bill) {
	into.VendorId = vendorId
	into.BillNumber = x.InvoiceNumber
	into.Reference = x.Reference
	into.BillDate = x.Date
	into.DueDate = x.DueDate
	into.Status = invoiceStatusFromXero(x.Status)
	into.CurrencyCode = x.CurrencyCode
	into.SubTotal = x.SubTotal
	into.TotalTax = x.TotalTax
	into.Total = x.Total
	into.AmountDue = x.AmountDue
	into.XeroId = x.InvoiceID
	into.Lines = nil
	for _, item := range x.LineItems {
		into.Lines = append(into.Lines, &models.BillLine{
			BillId:      into.ID,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitAmount:  item.UnitAmount,
			AccountCode: item.AccountCode,
			TaxRate:     item.TaxRate,
			LineAmount:  item.LineAmount,
		})
	}
}

func invoiceStatusFromXero(status string) models.InvoiceStatus {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "SUBMITTED":
		return models.InvoiceStatusSubmitted
	case "AUTHORISED":
		return models.InvoiceStatusAuthorised
	case "PAID":
		return models.InvoiceStatusPaid
	case "VOIDED", "DELETED":
		return models.InvoiceStatusVoided
	default:
		return models.InvoiceStatusDraft
	}
}

func paymentToXero(p *models.Payment, invoiceXeroId string) XeroPayment {
	return XeroPayment{
		PaymentID: p.XeroId,
		Invoice:   XeroInvoiceRef{InvoiceID: invoiceXeroId},
		Account:   XeroAccountRef{Code: p.AccountCode},
		Amount:    p.Amount,
		Date:      p.PaymentDate,
		Reference: p.Reference,
	}
}

func xeroToPayment(x XeroPayment, invoiceId int, into *models.Payment) {
	into.InvoiceId = invoiceId
	into.Amount = x.Amount
	into.PaymentDate = x.Date
	into.Reference = x.Reference
	into.AccountCode = x.Account.Code
	into.XeroId = x.PaymentID
}

// validateContactPush rejects records the ledger would bounce anyway, so bad
// data is counted as a per-record failure before we spend a round trip on it.
func validateContactPush(x XeroContact) error {
	if x.Name == "" {
		return fmt.Errorf("contact name is required")
	}
	if x.EmailAddress != "" && !utils.IsValidEmail(x.EmailAddress) {
		return fmt.Errorf("invalid email address %q", x.EmailAddress)
	}
	if x.Phone != "" {
		if err := utils.ValidatePhoneNumber(x.Phone, utils.CountryCode); err != nil {
			return fmt.Errorf("invalid phone number %q: %w", x.Phone, err)
		}
	}
	return nil
}

func fingerprint(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func contactFingerprint(x XeroContact) string {
	return fingerprint("contact", x.Name, x.EmailAddress, x.Phone)
}

func invoiceFingerprint(x XeroInvoice) string {
	parts := []string{
		"invoice", x.Type, x.InvoiceNumber, x.Reference,
		x.Date.UTC().Format("2006-01-02"), x.DueDate.UTC().Format("2006-01-02"),
		x.Status, x.CurrencyCode,
		x.SubTotal.StringFixed(4), x.TotalTax.StringFixed(4),
		x.Total.StringFixed(4), x.AmountDue.StringFixed(4),
	}
	for _, item := range x.LineItems {
		parts = append(parts, item.Description, item.Quantity.StringFixed(4),
			item.UnitAmount.StringFixed(4), item.AccountCode,
			item.TaxRate.StringFixed(4), item.LineAmount.StringFixed(4))
	}
	return fingerprint(parts...)
}

func paymentFingerprint(x XeroPayment) string {
	return fingerprint("payment",
		x.Amount.StringFixed(4), x.Date.UTC().Format("2006-01-02"),
		x.Reference, x.Account.Code)
}

// ClientFingerprint is the engine-owned fingerprint of a client's synced
// fields; exposed so the per-payment push path can stamp SyncHash correctly.
func ClientFingerprint(c *models.Client) string {
	return contactFingerprint(clientToContact(c))
}

func VendorFingerprint(v *models.Vendor) string {
	return contactFingerprint(vendorToContact(v))
}

func InvoiceFingerprint(inv *models.Invoice, contactXeroId string) string {
	return invoiceFingerprint(invoiceToXero(inv, contactXeroId))
}

func BillFingerprint(bill *models.Bill, contactXeroId string) string {
	return invoiceFingerprint(billToXero(bill, contactXeroId))
}

func PaymentFingerprint(p *models.Payment, invoiceXeroId string) string {
	return paymentFingerprint(paymentToXero(p, invoiceXeroId))
}
