package xerosync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/arkline-sg/backoffice_backend/models"
)

// Ledger is the surface of the external accounting system the sync engine
// needs. xeroClient is the real implementation; tests substitute a fake.
type Ledger interface {
	ListContacts(ctx context.Context, since time.Time) ([]XeroContact, error)
	UpsertContacts(ctx context.Context, contacts []XeroContact) ([]UpsertResult, error)
	ListInvoices(ctx context.Context, invoiceType string, since time.Time) ([]XeroInvoice, error)
	UpsertInvoices(ctx context.Context, invoices []XeroInvoice) ([]UpsertResult, error)
	ListPayments(ctx context.Context, since time.Time) ([]XeroPayment, error)
	CreatePayment(ctx context.Context, payment XeroPayment) (XeroPayment, error)
}

// UpsertResult reports the outcome for one record of a batched upsert, in the
// same order the records were submitted.
type UpsertResult struct {
	Index        int
	ID           string
	UpdatedUTC   time.Time
	ErrorMessage string // non-empty means the ledger rejected this one record
}

func (r UpsertResult) OK() bool { return r.ErrorMessage == "" }

const upsertBatchSize = 100

type xeroClient struct {
	baseURL    string
	token      string
	tenantName string
	http       *http.Client
	limiter    <-chan time.Time
}

func newXeroClient(conn *models.XeroConnection) (*xeroClient, error) {
	if conn == nil || strings.TrimSpace(conn.AccessToken) == "" {
		return nil, errors.New("xero access token is empty")
	}

	baseURL := strings.TrimSpace(os.Getenv("XERO_API_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.xero.com/api.xro/2.0"
	}
	rateLimitPerMin := int64(60)
	if v := strings.TrimSpace(os.Getenv("XERO_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	return &xeroClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      conn.AccessToken,
		tenantName: conn.TenantName,
		http:       &http.Client{Timeout: 30 * time.Second},
		limiter:    time.Tick(interval),
	}, nil
}

func (c *xeroClient) do(ctx context.Context, method string, path string, params url.Values, since time.Time, body interface{}) ([]byte, error) {
	<-c.limiter
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint = endpoint + "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Xero-Tenant-Id", c.tenantName)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if !since.IsZero() {
		req.Header.Set("If-Modified-Since", since.UTC().Format(http.TimeFormat))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotModified {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("xero api error %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}

type contactsEnvelope struct {
	Contacts []XeroContact `json:"Contacts"`
}

type invoicesEnvelope struct {
	Invoices []XeroInvoice `json:"Invoices"`
}

type paymentsEnvelope struct {
	Payments []XeroPayment `json:"Payments"`
}

func (c *xeroClient) ListContacts(ctx context.Context, since time.Time) ([]XeroContact, error) {
	raw, err := c.do(ctx, http.MethodGet, "/Contacts", nil, since, nil)
	if err != nil || raw == nil {
		return nil, err
	}
	var parsed contactsEnvelope
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, err
	}
	return parsed.Contacts, nil
}

func (c *xeroClient) UpsertContacts(ctx context.Context, contacts []XeroContact) ([]UpsertResult, error) {
	var results []UpsertResult
	for start := 0; start < len(contacts); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(contacts))
		batch := contacts[start:end]

		params := url.Values{}
		params.Set("summarizeErrors", "false")
		raw, err := c.do(ctx, http.MethodPost, "/Contacts", params, time.Time{}, contactsEnvelope{Contacts: batch})
		if err != nil {
			return results, err
		}
		var parsed contactsEnvelope
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return results, err
		}
		if len(parsed.Contacts) != len(batch) {
			return results, fmt.Errorf("xero returned %d contacts for a batch of %d", len(parsed.Contacts), len(batch))
		}
		for i, item := range parsed.Contacts {
			results = append(results, UpsertResult{
				Index:        start + i,
				ID:           item.ContactID,
				UpdatedUTC:   item.UpdatedDateUTC,
				ErrorMessage: validationMessage(item.Extras),
			})
		}
	}
	return results, nil
}

func (c *xeroClient) ListInvoices(ctx context.Context, invoiceType string, since time.Time) ([]XeroInvoice, error) {
	params := url.Values{}
	params.Set("where", fmt.Sprintf("Type==%q", invoiceType))
	raw, err := c.do(ctx, http.MethodGet, "/Invoices", params, since, nil)
	if err != nil || raw == nil {
		return nil, err
	}
	var parsed invoicesEnvelope
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, err
	}
	return parsed.Invoices, nil
}

func (c *xeroClient) UpsertInvoices(ctx context.Context, invoices []XeroInvoice) ([]UpsertResult, error) {
	var results []UpsertResult
	for start := 0; start < len(invoices); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(invoices))
		batch := invoices[start:end]

		params := url.Values{}
		params.Set("summarizeErrors", "false")
		raw, err := c.do(ctx, http.MethodPost, "/Invoices", params, time.Time{}, invoicesEnvelope{Invoices: batch})
		if err != nil {
			return results, err
		}
		var parsed invoicesEnvelope
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return results, err
		}
		if len(parsed.Invoices) != len(batch) {
			return results, fmt.Errorf("xero returned %d invoices for a batch of %d", len(parsed.Invoices), len(batch))
		}
		for i, item := range parsed.Invoices {
			results = append(results, UpsertResult{
				Index:        start + i,
				ID:           item.InvoiceID,
				UpdatedUTC:   item.UpdatedDateUTC,
				ErrorMessage: validationMessage(item.Extras),
			})
		}
	}
	return results, nil
}

func (c *xeroClient) ListPayments(ctx context.Context, since time.Time) ([]XeroPayment, error) {
	raw, err := c.do(ctx, http.MethodGet, "/Payments", nil, since, nil)
	if err != nil || raw == nil {
		return nil, err
	}
	var parsed paymentsEnvelope
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, err
	}
	return parsed.Payments, nil
}

func (c *xeroClient) CreatePayment(ctx context.Context, payment XeroPayment) (XeroPayment, error) {
	raw, err := c.do(ctx, http.MethodPut, "/Payments", nil, time.Time{}, paymentsEnvelope{Payments: []XeroPayment{payment}})
	if err != nil {
		return XeroPayment{}, err
	}
	var parsed paymentsEnvelope
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return XeroPayment{}, err
	}
	if len(parsed.Payments) != 1 {
		return XeroPayment{}, fmt.Errorf("xero returned %d payments for a single create", len(parsed.Payments))
	}
	created := parsed.Payments[0]
	if msg := validationMessage(created.Extras); msg != "" {
		return XeroPayment{}, errors.New(msg)
	}
	return created, nil
}

// validationMessage pulls the first ValidationErrors message off a response
// item. Validation errors ride along in Extras since they are response-only.
func validationMessage(extras map[string]json.RawMessage) string {
	raw, ok := extras["ValidationErrors"]
	if !ok {
		return ""
	}
	var errs []struct {
		Message string `json:"Message"`
	}
	if err := json.Unmarshal(raw, &errs); err != nil || len(errs) == 0 {
		return ""
	}
	return errs[0].Message
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
