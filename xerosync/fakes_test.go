package xerosync

// NOTE: These tests are intentionally DB-free. The in-memory store and fake
// ledger validate the sync engine's semantics: three-way conflict detection,
// partial failure isolation, single terminal log transition, dependency
// ordering, retry scoping.
//
// Full DB integration tests should be added in an environment that can run
// MySQL + Redis.

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/arkline-sg/backoffice_backend/models"
)

type memStore struct {
	conn      *models.XeroConnection
	clients   map[int]*models.Client
	vendors   map[int]*models.Vendor
	invoices  map[int]*models.Invoice
	bills     map[int]*models.Bill
	payments  map[int]*models.Payment
	logs      map[uint]*models.SyncLogEntry
	conflicts map[uint]*models.Conflict
	nextId    int
	nextLog   uint
	pingErr   error
}

func newMemStore() *memStore {
	now := time.Now().UTC().Add(2 * time.Hour)
	return &memStore{
		conn: &models.XeroConnection{
			ID:             1,
			TenantName:     "Arkline Pte Ltd",
			Status:         models.XeroConnectionStatusConnected,
			AccessToken:    "test-token",
			TokenExpiresAt: &now,
		},
		clients:   map[int]*models.Client{},
		vendors:   map[int]*models.Vendor{},
		invoices:  map[int]*models.Invoice{},
		bills:     map[int]*models.Bill{},
		payments:  map[int]*models.Payment{},
		logs:      map[uint]*models.SyncLogEntry{},
		conflicts: map[uint]*models.Conflict{},
	}
}

func (s *memStore) nextID() int {
	s.nextId++
	return s.nextId
}

func (s *memStore) Connection(ctx context.Context) (*models.XeroConnection, error) {
	if s.conn == nil {
		return nil, nil
	}
	copied := *s.conn
	return &copied, nil
}

func (s *memStore) SaveConnection(ctx context.Context, conn *models.XeroConnection) error {
	copied := *conn
	s.conn = &copied
	return nil
}

func (s *memStore) GetWatermarks(ctx context.Context) (Watermarks, error) {
	if s.conn == nil {
		return Watermarks{}, nil
	}
	return decodeWatermarks(s.conn.WatermarksJSON)
}

func (s *memStore) SetWatermark(ctx context.Context, entity models.SyncEntity, at time.Time) error {
	if s.conn == nil {
		return fmt.Errorf("no xero connection")
	}
	marks, err := decodeWatermarks(s.conn.WatermarksJSON)
	if err != nil {
		return err
	}
	marks[entity] = at.UTC()
	raw, err := encodeWatermarks(marks)
	if err != nil {
		return err
	}
	s.conn.WatermarksJSON = raw
	return nil
}

func (s *memStore) ClientsForPush(ctx context.Context, ids []int) ([]*models.Client, error) {
	var out []*models.Client
	for _, c := range s.clients {
		if len(ids) > 0 && !containsInt(ids, c.ID) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) VendorsForPush(ctx context.Context, ids []int) ([]*models.Vendor, error) {
	var out []*models.Vendor
	for _, v := range s.vendors {
		if len(ids) > 0 && !containsInt(ids, v.ID) {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) InvoicesForPush(ctx context.Context, ids []int) ([]*models.Invoice, error) {
	var out []*models.Invoice
	for _, inv := range s.invoices {
		if len(ids) > 0 && !containsInt(ids, inv.ID) {
			continue
		}
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) ClientByXeroID(ctx context.Context, xeroId string) (*models.Client, error) {
	for _, c := range s.clients {
		if c.XeroId == xeroId && xeroId != "" {
			return c, nil
		}
	}
	return nil, nil
}

func (s *memStore) VendorByXeroID(ctx context.Context, xeroId string) (*models.Vendor, error) {
	for _, v := range s.vendors {
		if v.XeroId == xeroId && xeroId != "" {
			return v, nil
		}
	}
	return nil, nil
}

func (s *memStore) InvoiceByXeroID(ctx context.Context, xeroId string) (*models.Invoice, error) {
	for _, inv := range s.invoices {
		if inv.XeroId == xeroId && xeroId != "" {
			return inv, nil
		}
	}
	return nil, nil
}

func (s *memStore) BillByXeroID(ctx context.Context, xeroId string) (*models.Bill, error) {
	for _, b := range s.bills {
		if b.XeroId == xeroId && xeroId != "" {
			return b, nil
		}
	}
	return nil, nil
}

func (s *memStore) PaymentByXeroID(ctx context.Context, xeroId string) (*models.Payment, error) {
	for _, p := range s.payments {
		if p.XeroId == xeroId && xeroId != "" {
			return p, nil
		}
	}
	return nil, nil
}

func (s *memStore) ClientByName(ctx context.Context, name string) (*models.Client, error) {
	for _, c := range s.clients {
		if c.Name == name {
			return c, nil
		}
	}
	return nil, nil
}

func (s *memStore) VendorByName(ctx context.Context, name string) (*models.Vendor, error) {
	for _, v := range s.vendors {
		if v.Name == name {
			return v, nil
		}
	}
	return nil, nil
}

func (s *memStore) ClientByID(ctx context.Context, id int) (*models.Client, error) {
	return s.clients[id], nil
}

func (s *memStore) VendorByID(ctx context.Context, id int) (*models.Vendor, error) {
	return s.vendors[id], nil
}

func (s *memStore) InvoiceByID(ctx context.Context, id int) (*models.Invoice, error) {
	return s.invoices[id], nil
}

func (s *memStore) BillByID(ctx context.Context, id int) (*models.Bill, error) {
	return s.bills[id], nil
}

func (s *memStore) SaveClient(ctx context.Context, c *models.Client) error {
	if c.ID == 0 {
		c.ID = s.nextID()
	}
	c.UpdatedAt = time.Now().UTC()
	s.clients[c.ID] = c
	return nil
}

func (s *memStore) SaveVendor(ctx context.Context, v *models.Vendor) error {
	if v.ID == 0 {
		v.ID = s.nextID()
	}
	v.UpdatedAt = time.Now().UTC()
	s.vendors[v.ID] = v
	return nil
}

func (s *memStore) SaveInvoice(ctx context.Context, inv *models.Invoice) error {
	if inv.ID == 0 {
		inv.ID = s.nextID()
	}
	inv.UpdatedAt = time.Now().UTC()
	s.invoices[inv.ID] = inv
	return nil
}

func (s *memStore) SaveBill(ctx context.Context, bill *models.Bill) error {
	if bill.ID == 0 {
		bill.ID = s.nextID()
	}
	bill.UpdatedAt = time.Now().UTC()
	s.bills[bill.ID] = bill
	return nil
}

func (s *memStore) SavePayment(ctx context.Context, p *models.Payment) error {
	if p.ID == 0 {
		p.ID = s.nextID()
	}
	s.payments[p.ID] = p
	return nil
}

func (s *memStore) MarkClientSynced(ctx context.Context, id int, xeroId, hash string, at time.Time) error {
	c := s.clients[id]
	if c == nil {
		return fmt.Errorf("client %d not found", id)
	}
	c.XeroId = xeroId
	c.SyncHash = hash
	c.LastSyncedAt = &at
	return nil
}

func (s *memStore) MarkVendorSynced(ctx context.Context, id int, xeroId, hash string, at time.Time) error {
	v := s.vendors[id]
	if v == nil {
		return fmt.Errorf("vendor %d not found", id)
	}
	v.XeroId = xeroId
	v.SyncHash = hash
	v.LastSyncedAt = &at
	return nil
}

func (s *memStore) MarkInvoiceSynced(ctx context.Context, id int, xeroId, hash string, at time.Time) error {
	inv := s.invoices[id]
	if inv == nil {
		return fmt.Errorf("invoice %d not found", id)
	}
	inv.XeroId = xeroId
	inv.SyncHash = hash
	inv.LastSyncedAt = &at
	return nil
}

func (s *memStore) MarkBillSynced(ctx context.Context, id int, xeroId, hash string, at time.Time) error {
	b := s.bills[id]
	if b == nil {
		return fmt.Errorf("bill %d not found", id)
	}
	b.XeroId = xeroId
	b.SyncHash = hash
	b.LastSyncedAt = &at
	return nil
}

func (s *memStore) MarkPaymentSynced(ctx context.Context, id int, xeroId, hash string, at time.Time) error {
	p := s.payments[id]
	if p == nil {
		return fmt.Errorf("payment %d not found", id)
	}
	p.XeroId = xeroId
	p.SyncHash = hash
	p.LastSyncedAt = &at
	return nil
}

func (s *memStore) CreateLog(ctx context.Context, entry *models.SyncLogEntry) error {
	s.nextLog++
	entry.ID = s.nextLog
	entry.CreatedAt = time.Now().UTC()
	copied := *entry
	s.logs[entry.ID] = &copied
	return nil
}

func (s *memStore) CompleteLog(ctx context.Context, entry *models.SyncLogEntry) error {
	stored := s.logs[entry.ID]
	if stored == nil {
		return fmt.Errorf("sync log %d not found", entry.ID)
	}
	if stored.Status != models.SyncLogStatusInProgress {
		return fmt.Errorf("sync log %d is not in progress", entry.ID)
	}
	copied := *entry
	copied.CreatedAt = stored.CreatedAt
	s.logs[entry.ID] = &copied
	return nil
}

func (s *memStore) GetLog(ctx context.Context, id uint) (*models.SyncLogEntry, error) {
	return s.logs[id], nil
}

func (s *memStore) ListLogs(ctx context.Context, filter LogFilter) ([]*models.SyncLogEntry, int64, error) {
	var out []*models.SyncLogEntry
	for _, entry := range s.logs {
		if filter.Entity != "" && entry.Entity != filter.Entity {
			continue
		}
		if filter.Direction != "" && entry.Direction != filter.Direction {
			continue
		}
		if filter.Status != "" && entry.Status != filter.Status {
			continue
		}
		if filter.Since != nil && entry.CreatedAt.Before(*filter.Since) {
			continue
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	total := int64(len(out))
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, total, nil
}

func (s *memStore) Stats(ctx context.Context, since time.Time) (*LogStats, error) {
	stats := &LogStats{}
	var terminalMs int64
	var terminalN int64
	for _, entry := range s.logs {
		if entry.CreatedAt.Before(since) {
			continue
		}
		stats.Total++
		switch entry.Status {
		case models.SyncLogStatusSuccess:
			stats.Succeeded++
		case models.SyncLogStatusWarning:
			stats.Warnings++
		case models.SyncLogStatusError:
			stats.Failed++
		case models.SyncLogStatusInProgress:
			stats.InProgress++
			continue
		}
		terminalMs += entry.DurationMs
		terminalN++
	}
	if terminalN > 0 {
		stats.SuccessRate = float64(stats.Succeeded+stats.Warnings) / float64(terminalN)
		stats.AvgDurationMs = float64(terminalMs) / float64(terminalN)
	}
	return stats, nil
}

func (s *memStore) RecentFailures(ctx context.Context, since time.Time, limit int) ([]*models.SyncLogEntry, error) {
	var out []*models.SyncLogEntry
	for _, entry := range s.logs {
		if entry.Status == models.SyncLogStatusError && !entry.CreatedAt.Before(since) {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) CreateConflict(ctx context.Context, c *models.Conflict) error {
	c.ID = uint(len(s.conflicts) + 1)
	c.CreatedAt = time.Now().UTC()
	s.conflicts[c.ID] = c
	return nil
}

func (s *memStore) HasPendingConflict(ctx context.Context, entity models.SyncEntity, entityId int) (bool, error) {
	for _, c := range s.conflicts {
		if c.Entity == entity && c.EntityId == entityId && c.Status == models.ConflictStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) PendingConflicts(ctx context.Context, entity models.SyncEntity) ([]*models.Conflict, error) {
	var out []*models.Conflict
	for _, c := range s.conflicts {
		if c.Status != models.ConflictStatusPending {
			continue
		}
		if entity != "" && c.Entity != entity {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) GetConflict(ctx context.Context, id uint) (*models.Conflict, error) {
	return s.conflicts[id], nil
}

func (s *memStore) ResolveConflict(ctx context.Context, c *models.Conflict) error {
	stored := s.conflicts[c.ID]
	if stored == nil {
		return fmt.Errorf("conflict %d not found", c.ID)
	}
	if stored.Status != models.ConflictStatusPending {
		return fmt.Errorf("conflict %d is not pending", c.ID)
	}
	stored.Status = models.ConflictStatusResolved
	stored.Resolution = c.Resolution
	stored.ResolvedBy = c.ResolvedBy
	stored.Notes = c.Notes
	stored.ResolvedAt = c.ResolvedAt
	return nil
}

func (s *memStore) EntityCounts(ctx context.Context) (map[models.SyncEntity]EntityCount, error) {
	counts := map[models.SyncEntity]EntityCount{}
	contact := EntityCount{}
	for _, c := range s.clients {
		contact.Total++
		if c.XeroId != "" {
			contact.Synced++
		}
	}
	for _, v := range s.vendors {
		contact.Total++
		if v.XeroId != "" {
			contact.Synced++
		}
	}
	counts[models.SyncEntityContacts] = contact

	inv := EntityCount{}
	for _, i := range s.invoices {
		inv.Total++
		if i.XeroId != "" {
			inv.Synced++
		}
	}
	counts[models.SyncEntityInvoices] = inv

	bill := EntityCount{}
	for _, b := range s.bills {
		bill.Total++
		if b.XeroId != "" {
			bill.Synced++
		}
	}
	counts[models.SyncEntityBills] = bill

	pay := EntityCount{}
	for _, p := range s.payments {
		pay.Total++
		if p.XeroId != "" {
			pay.Synced++
		}
	}
	counts[models.SyncEntityPayments] = pay
	return counts, nil
}

func (s *memStore) Ping(ctx context.Context) error {
	return s.pingErr
}

func containsInt(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// fakeLedger is an in-memory Xero. Error injection is keyed by record name so
// individual tests can fail specific records or whole calls.
type fakeLedger struct {
	contacts []XeroContact
	invoices []XeroInvoice
	payments []XeroPayment

	failContactNames map[string]string // name -> validation message
	failInvoiceNums  map[string]string
	listErr          error
	upsertErr        error
	nextId           int

	upsertedContacts [][]XeroContact
	upsertedInvoices [][]XeroInvoice
	createdPayments  []XeroPayment
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		failContactNames: map[string]string{},
		failInvoiceNums:  map[string]string{},
	}
}

func (l *fakeLedger) newID(prefix string) string {
	l.nextId++
	return fmt.Sprintf("%s-%04d", prefix, l.nextId)
}

func (l *fakeLedger) ListContacts(ctx context.Context, since time.Time) ([]XeroContact, error) {
	if l.listErr != nil {
		return nil, l.listErr
	}
	var out []XeroContact
	for _, c := range l.contacts {
		if since.IsZero() || c.UpdatedDateUTC.After(since) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (l *fakeLedger) UpsertContacts(ctx context.Context, contacts []XeroContact) ([]UpsertResult, error) {
	if l.upsertErr != nil {
		return nil, l.upsertErr
	}
	l.upsertedContacts = append(l.upsertedContacts, contacts)
	results := make([]UpsertResult, len(contacts))
	for i, c := range contacts {
		if msg, bad := l.failContactNames[c.Name]; bad {
			results[i] = UpsertResult{Index: i, ErrorMessage: msg}
			continue
		}
		id := c.ContactID
		if id == "" {
			id = l.newID("contact")
		}
		results[i] = UpsertResult{Index: i, ID: id, UpdatedUTC: time.Now().UTC()}
	}
	return results, nil
}

func (l *fakeLedger) ListInvoices(ctx context.Context, invoiceType string, since time.Time) ([]XeroInvoice, error) {
	if l.listErr != nil {
		return nil, l.listErr
	}
	var out []XeroInvoice
	for _, inv := range l.invoices {
		if inv.Type != invoiceType {
			continue
		}
		if since.IsZero() || inv.UpdatedDateUTC.After(since) {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (l *fakeLedger) UpsertInvoices(ctx context.Context, invoices []XeroInvoice) ([]UpsertResult, error) {
	if l.upsertErr != nil {
		return nil, l.upsertErr
	}
	l.upsertedInvoices = append(l.upsertedInvoices, invoices)
	results := make([]UpsertResult, len(invoices))
	for i, inv := range invoices {
		if msg, bad := l.failInvoiceNums[inv.InvoiceNumber]; bad {
			results[i] = UpsertResult{Index: i, ErrorMessage: msg}
			continue
		}
		id := inv.InvoiceID
		if id == "" {
			id = l.newID("invoice")
		}
		results[i] = UpsertResult{Index: i, ID: id, UpdatedUTC: time.Now().UTC()}
	}
	return results, nil
}

func (l *fakeLedger) ListPayments(ctx context.Context, since time.Time) ([]XeroPayment, error) {
	if l.listErr != nil {
		return nil, l.listErr
	}
	var out []XeroPayment
	for _, p := range l.payments {
		if since.IsZero() || p.UpdatedDateUTC.After(since) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (l *fakeLedger) CreatePayment(ctx context.Context, payment XeroPayment) (XeroPayment, error) {
	if l.upsertErr != nil {
		return XeroPayment{}, l.upsertErr
	}
	payment.PaymentID = l.newID("payment")
	payment.UpdatedDateUTC = time.Now().UTC()
	l.createdPayments = append(l.createdPayments, payment)
	return payment, nil
}
