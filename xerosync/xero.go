package xerosync

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Ledger payload shapes. Unknown fields returned by the ledger are kept in
// Extras and written back verbatim on the next push, so a round trip never
// drops data the local model does not understand.

type XeroContact struct {
	ContactID      string    `json:"ContactID,omitempty"`
	Name           string    `json:"Name"`
	EmailAddress   string    `json:"EmailAddress,omitempty"`
	Phone          string    `json:"Phone,omitempty"`
	IsCustomer     bool      `json:"IsCustomer"`
	IsSupplier     bool      `json:"IsSupplier"`
	UpdatedDateUTC time.Time `json:"UpdatedDateUTC,omitempty"`

	Extras map[string]json.RawMessage `json:"-"`
}

type XeroLineItem struct {
	Description string          `json:"Description"`
	Quantity    decimal.Decimal `json:"Quantity"`
	UnitAmount  decimal.Decimal `json:"UnitAmount"`
	AccountCode string          `json:"AccountCode,omitempty"`
	TaxRate     decimal.Decimal `json:"TaxRate"`
	LineAmount  decimal.Decimal `json:"LineAmount"`
}

type XeroContactRef struct {
	ContactID string `json:"ContactID"`
}

// XeroInvoice covers both receivables (Type ACCREC) and payables (Type ACCPAY).
type XeroInvoice struct {
	InvoiceID      string          `json:"InvoiceID,omitempty"`
	Type           string          `json:"Type"`
	Contact        XeroContactRef  `json:"Contact"`
	InvoiceNumber  string          `json:"InvoiceNumber"`
	Reference      string          `json:"Reference,omitempty"`
	Date           time.Time       `json:"Date"`
	DueDate        time.Time       `json:"DueDate,omitempty"`
	Status         string          `json:"Status"`
	CurrencyCode   string          `json:"CurrencyCode"`
	LineItems      []XeroLineItem  `json:"LineItems"`
	SubTotal       decimal.Decimal `json:"SubTotal"`
	TotalTax       decimal.Decimal `json:"TotalTax"`
	Total          decimal.Decimal `json:"Total"`
	AmountDue      decimal.Decimal `json:"AmountDue"`
	UpdatedDateUTC time.Time       `json:"UpdatedDateUTC,omitempty"`

	Extras map[string]json.RawMessage `json:"-"`
}

type XeroInvoiceRef struct {
	InvoiceID string `json:"InvoiceID"`
}

type XeroAccountRef struct {
	Code string `json:"Code"`
}

type XeroPayment struct {
	PaymentID      string          `json:"PaymentID,omitempty"`
	Invoice        XeroInvoiceRef  `json:"Invoice"`
	Account        XeroAccountRef  `json:"Account"`
	Amount         decimal.Decimal `json:"Amount"`
	Date           time.Time       `json:"Date"`
	Reference      string          `json:"Reference,omitempty"`
	UpdatedDateUTC time.Time       `json:"UpdatedDateUTC,omitempty"`

	Extras map[string]json.RawMessage `json:"-"`
}

const (
	invoiceTypeReceivable = "ACCREC"
	invoiceTypePayable    = "ACCPAY"
)

var (
	contactKnownKeys = keySet("ContactID", "Name", "EmailAddress", "Phone", "IsCustomer", "IsSupplier", "UpdatedDateUTC")
	invoiceKnownKeys = keySet("InvoiceID", "Type", "Contact", "InvoiceNumber", "Reference", "Date", "DueDate", "Status",
		"CurrencyCode", "LineItems", "SubTotal", "TotalTax", "Total", "AmountDue", "UpdatedDateUTC")
	paymentKnownKeys = keySet("PaymentID", "Invoice", "Account", "Amount", "Date", "Reference", "UpdatedDateUTC")
)

func keySet(keys ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

func splitExtras(data []byte, known map[string]struct{}) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	extras := map[string]json.RawMessage{}
	for k, v := range all {
		if _, ok := known[k]; !ok {
			extras[k] = v
		}
	}
	if len(extras) == 0 {
		return nil, nil
	}
	return extras, nil
}

func mergeExtras(base []byte, extras map[string]json.RawMessage) ([]byte, error) {
	if len(extras) == 0 {
		return base, nil
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(base, &all); err != nil {
		return nil, err
	}
	for k, v := range extras {
		if _, exists := all[k]; !exists {
			all[k] = v
		}
	}
	return json.Marshal(all)
}

type xeroContactAlias XeroContact

func (c XeroContact) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(xeroContactAlias(c))
	if err != nil {
		return nil, err
	}
	return mergeExtras(base, c.Extras)
}

func (c *XeroContact) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, (*xeroContactAlias)(c)); err != nil {
		return err
	}
	extras, err := splitExtras(data, contactKnownKeys)
	if err != nil {
		return err
	}
	c.Extras = extras
	return nil
}

type xeroInvoiceAlias XeroInvoice

func (i XeroInvoice) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(xeroInvoiceAlias(i))
	if err != nil {
		return nil, err
	}
	return mergeExtras(base, i.Extras)
}

func (i *XeroInvoice) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, (*xeroInvoiceAlias)(i)); err != nil {
		return err
	}
	extras, err := splitExtras(data, invoiceKnownKeys)
	if err != nil {
		return err
	}
	i.Extras = extras
	return nil
}

type xeroPaymentAlias XeroPayment

func (p XeroPayment) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(xeroPaymentAlias(p))
	if err != nil {
		return nil, err
	}
	return mergeExtras(base, p.Extras)
}

func (p *XeroPayment) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, (*xeroPaymentAlias)(p)); err != nil {
		return err
	}
	extras, err := splitExtras(data, paymentKnownKeys)
	if err != nil {
		return err
	}
	p.Extras = extras
	return nil
}
