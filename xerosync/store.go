package xerosync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/arkline-sg/backoffice_backend/models"
)

// Watermarks tracks, per entity, the newest UpdatedDateUTC seen on a pull.
// The next pull asks the ledger only for records modified after it.
type Watermarks map[models.SyncEntity]time.Time

func decodeWatermarks(raw []byte) (Watermarks, error) {
	marks := Watermarks{}
	if len(raw) == 0 {
		return marks, nil
	}
	if err := json.Unmarshal(raw, &marks); err != nil {
		return nil, fmt.Errorf("decode watermarks: %w", err)
	}
	return marks, nil
}

func encodeWatermarks(marks Watermarks) ([]byte, error) {
	return json.Marshal(marks)
}

// LogFilter narrows ListLogs. Zero values mean "no filter".
type LogFilter struct {
	Entity    models.SyncEntity
	Direction models.SyncDirection
	Status    models.SyncLogStatus
	Since     *time.Time
	Limit     int
	Offset    int
}

// LogStats is an aggregate over sync log rows newer than a cutoff.
type LogStats struct {
	Total         int64   `json:"total"`
	Succeeded     int64   `json:"succeeded"`
	Warnings      int64   `json:"warnings"`
	Failed        int64   `json:"failed"`
	InProgress    int64   `json:"in_progress"`
	SuccessRate   float64 `json:"success_rate"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
}

type EntityCount struct {
	Total  int64 `json:"total"`
	Synced int64 `json:"synced"`
}

// Store is everything the sync engine needs from the database. The gorm
// implementation below is the real one; tests use an in-memory fake.
type Store interface {
	Connection(ctx context.Context) (*models.XeroConnection, error)
	SaveConnection(ctx context.Context, conn *models.XeroConnection) error
	GetWatermarks(ctx context.Context) (Watermarks, error)
	SetWatermark(ctx context.Context, entity models.SyncEntity, at time.Time) error

	ClientsForPush(ctx context.Context, ids []int) ([]*models.Client, error)
	VendorsForPush(ctx context.Context, ids []int) ([]*models.Vendor, error)
	InvoicesForPush(ctx context.Context, ids []int) ([]*models.Invoice, error)

	ClientByXeroID(ctx context.Context, xeroId string) (*models.Client, error)
	VendorByXeroID(ctx context.Context, xeroId string) (*models.Vendor, error)
	InvoiceByXeroID(ctx context.Context, xeroId string) (*models.Invoice, error)
	BillByXeroID(ctx context.Context, xeroId string) (*models.Bill, error)
	PaymentByXeroID(ctx context.Context, xeroId string) (*models.Payment, error)
	ClientByName(ctx context.Context, name string) (*models.Client, error)
	VendorByName(ctx context.Context, name string) (*models.Vendor, error)
	ClientByID(ctx context.Context, id int) (*models.Client, error)
	VendorByID(ctx context.Context, id int) (*models.Vendor, error)
	InvoiceByID(ctx context.Context, id int) (*models.Invoice, error)
	BillByID(ctx context.Context, id int) (*models.Bill, error)

	SaveClient(ctx context.Context, c *models.Client) error
	SaveVendor(ctx context.Context, v *models.Vendor) error
	SaveInvoice(ctx context.Context, inv *models.Invoice) error
	SaveBill(ctx context.Context, bill *models.Bill) error
	SavePayment(ctx context.Context, p *models.Payment) error

	MarkClientSynced(ctx context.Context, id int, xeroId, hash string, at time.Time) error
	MarkVendorSynced(ctx context.Context, id int, xeroId, hash string, at time.Time) error
	MarkInvoiceSynced(ctx context.Context, id int, xeroId, hash string, at time.Time) error
	MarkBillSynced(ctx context.Context, id int, xeroId, hash string, at time.Time) error
	MarkPaymentSynced(ctx context.Context, id int, xeroId, hash string, at time.Time) error

	CreateLog(ctx context.Context, entry *models.SyncLogEntry) error
	CompleteLog(ctx context.Context, entry *models.SyncLogEntry) error
	GetLog(ctx context.Context, id uint) (*models.SyncLogEntry, error)
	ListLogs(ctx context.Context, filter LogFilter) ([]*models.SyncLogEntry, int64, error)
	Stats(ctx context.Context, since time.Time) (*LogStats, error)
	RecentFailures(ctx context.Context, since time.Time, limit int) ([]*models.SyncLogEntry, error)

	CreateConflict(ctx context.Context, c *models.Conflict) error
	HasPendingConflict(ctx context.Context, entity models.SyncEntity, entityId int) (bool, error)
	PendingConflicts(ctx context.Context, entity models.SyncEntity) ([]*models.Conflict, error)
	GetConflict(ctx context.Context, id uint) (*models.Conflict, error)
	ResolveConflict(ctx context.Context, c *models.Conflict) error

	EntityCounts(ctx context.Context) (map[models.SyncEntity]EntityCount, error)
	Ping(ctx context.Context) error
}

type gormStore struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Connection(ctx context.Context) (*models.XeroConnection, error) {
	var conn models.XeroConnection
	err := s.db.WithContext(ctx).Order("id").First(&conn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

func (s *gormStore) SaveConnection(ctx context.Context, conn *models.XeroConnection) error {
	return s.db.WithContext(ctx).Save(conn).Error
}

func (s *gormStore) GetWatermarks(ctx context.Context) (Watermarks, error) {
	conn, err := s.Connection(ctx)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return Watermarks{}, nil
	}
	return decodeWatermarks(conn.WatermarksJSON)
}

func (s *gormStore) SetWatermark(ctx context.Context, entity models.SyncEntity, at time.Time) error {
	conn, err := s.Connection(ctx)
	if err != nil {
		return err
	}
	if conn == nil {
		return fmt.Errorf("no xero connection")
	}
	marks, err := decodeWatermarks(conn.WatermarksJSON)
	if err != nil {
		return err
	}
	marks[entity] = at.UTC()
	raw, err := encodeWatermarks(marks)
	if err != nil {
		return err
	}
	conn.WatermarksJSON = raw
	return s.db.WithContext(ctx).Model(conn).Update("watermarks_json", raw).Error
}

func (s *gormStore) ClientsForPush(ctx context.Context, ids []int) ([]*models.Client, error) {
	var clients []*models.Client
	query := s.db.WithContext(ctx).Order("id")
	if len(ids) > 0 {
		query = query.Where("id IN ?", ids)
	}
	if err := query.Find(&clients).Error; err != nil {
		return nil, err
	}
	return clients, nil
}

func (s *gormStore) VendorsForPush(ctx context.Context, ids []int) ([]*models.Vendor, error) {
	var vendors []*models.Vendor
	query := s.db.WithContext(ctx).Order("id")
	if len(ids) > 0 {
		query = query.Where("id IN ?", ids)
	}
	if err := query.Find(&vendors).Error; err != nil {
		return nil, err
	}
	return vendors, nil
}

func (s *gormStore) InvoicesForPush(ctx context.Context, ids []int) ([]*models.Invoice, error) {
	var invoices []*models.Invoice
	query := s.db.WithContext(ctx).Preload("Lines").Order("id")
	if len(ids) > 0 {
		query = query.Where("id IN ?", ids)
	}
	if err := query.Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func firstOrNil[T any](db *gorm.DB, dest *T) (*T, error) {
	err := db.First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return dest, nil
}

func (s *gormStore) ClientByXeroID(ctx context.Context, xeroId string) (*models.Client, error) {
	return firstOrNil(s.db.WithContext(ctx).Where("xero_id = ?", xeroId), &models.Client{})
}

func (s *gormStore) VendorByXeroID(ctx context.Context, xeroId string) (*models.Vendor, error) {
	return firstOrNil(s.db.WithContext(ctx).Where("xero_id = ?", xeroId), &models.Vendor{})
}

func (s *gormStore) InvoiceByXeroID(ctx context.Context, xeroId string) (*models.Invoice, error) {
	return firstOrNil(s.db.WithContext(ctx).Preload("Lines").Where("xero_id = ?", xeroId), &models.Invoice{})
}

func (s *gormStore) BillByXeroID(ctx context.Context, xeroId string) (*models.Bill, error) {
	return firstOrNil(s.db.WithContext(ctx).Preload("Lines").Where("xero_id = ?", xeroId), &models.Bill{})
}

func (s *gormStore) PaymentByXeroID(ctx context.Context, xeroId string) (*models.Payment, error) {
	return firstOrNil(s.db.WithContext(ctx).Where("xero_id = ?", xeroId), &models.Payment{})
}

func (s *gormStore) ClientByName(ctx context.Context, name string) (*models.Client, error) {
	return firstOrNil(s.db.WithContext(ctx).Where("name = ?", name), &models.Client{})
}

func (s *gormStore) VendorByName(ctx context.Context, name string) (*models.Vendor, error) {
	return firstOrNil(s.db.WithContext(ctx).Where("name = ?", name), &models.Vendor{})
}

func (s *gormStore) ClientByID(ctx context.Context, id int) (*models.Client, error) {
	return firstOrNil(s.db.WithContext(ctx).Where("id = ?", id), &models.Client{})
}

func (s *gormStore) VendorByID(ctx context.Context, id int) (*models.Vendor, error) {
	return firstOrNil(s.db.WithContext(ctx).Where("id = ?", id), &models.Vendor{})
}

func (s *gormStore) InvoiceByID(ctx context.Context, id int) (*models.Invoice, error) {
	return firstOrNil(s.db.WithContext(ctx).Preload("Lines").Where("id = ?", id), &models.Invoice{})
}

func (s *gormStore) BillByID(ctx context.Context, id int) (*models.Bill, error) {
	return firstOrNil(s.db.WithContext(ctx).Preload("Lines").Where("id = ?", id), &models.Bill{})
}

func (s *gormStore) SaveClient(ctx context.Context, c *models.Client) error {
	return s.db.WithContext(ctx).Save(c).Error
}

func (s *gormStore) SaveVendor(ctx context.Context, v *models.Vendor) error {
	return s.db.WithContext(ctx).Save(v).Error
}

// SaveInvoice replaces the line items wholesale; pulled invoices carry the
// authoritative set of lines from the ledger.
func (s *gormStore) SaveInvoice(ctx context.Context, inv *models.Invoice) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if inv.ID != 0 {
			if err := tx.Where("invoice_id = ?", inv.ID).Delete(&models.InvoiceLine{}).Error; err != nil {
				return err
			}
		}
		return tx.Session(&gorm.Session{FullSaveAssociations: true}).Save(inv).Error
	})
}

func (s *gormStore) SaveBill(ctx context.Context, bill *models.Bill) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if bill.ID != 0 {
			if err := tx.Where("bill_id = ?", bill.ID).Delete(&models.BillLine{}).Error; err != nil {
				return err
			}
		}
		return tx.Session(&gorm.Session{FullSaveAssociations: true}).Save(bill).Error
	})
}

func (s *gormStore) SavePayment(ctx context.Context, p *models.Payment) error {
	return s.db.WithContext(ctx).Save(p).Error
}

func (s *gormStore) markSynced(ctx context.Context, model any, id int, xeroId, hash string, at time.Time) error {
	return s.db.WithContext(ctx).Model(model).Where("id = ?", id).Updates(map[string]any{
		"xero_id":        xeroId,
		"sync_hash":      hash,
		"last_synced_at": at,
	}).Error
}

func (s *gormStore) MarkClientSynced(ctx context.Context, id int, xeroId, hash string, at time.Time) error {
	return s.markSynced(ctx, &models.Client{}, id, xeroId, hash, at)
}

func (s *gormStore) MarkVendorSynced(ctx context.Context, id int, xeroId, hash string, at time.Time) error {
	return s.markSynced(ctx, &models.Vendor{}, id, xeroId, hash, at)
}

func (s *gormStore) MarkInvoiceSynced(ctx context.Context, id int, xeroId, hash string, at time.Time) error {
	return s.markSynced(ctx, &models.Invoice{}, id, xeroId, hash, at)
}

func (s *gormStore) MarkBillSynced(ctx context.Context, id int, xeroId, hash string, at time.Time) error {
	return s.markSynced(ctx, &models.Bill{}, id, xeroId, hash, at)
}

func (s *gormStore) MarkPaymentSynced(ctx context.Context, id int, xeroId, hash string, at time.Time) error {
	return s.markSynced(ctx, &models.Payment{}, id, xeroId, hash, at)
}

func (s *gormStore) CreateLog(ctx context.Context, entry *models.SyncLogEntry) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

// CompleteLog writes the terminal state. The status guard makes the
// IN_PROGRESS -> terminal transition happen at most once even if two callers
// race on the same row.
func (s *gormStore) CompleteLog(ctx context.Context, entry *models.SyncLogEntry) error {
	result := s.db.WithContext(ctx).Model(&models.SyncLogEntry{}).
		Where("id = ? AND status = ?", entry.ID, models.SyncLogStatusInProgress).
		Updates(map[string]any{
			"status":            entry.Status,
			"records_processed": entry.RecordsProcessed,
			"records_succeeded": entry.RecordsSucceeded,
			"records_failed":    entry.RecordsFailed,
			"message":           entry.Message,
			"details_json":      entry.DetailsJSON,
			"error_message":     entry.ErrorMessage,
			"error_stack":       entry.ErrorStack,
			"duration_ms":       entry.DurationMs,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("sync log %d is not in progress", entry.ID)
	}
	return nil
}

func (s *gormStore) GetLog(ctx context.Context, id uint) (*models.SyncLogEntry, error) {
	return firstOrNil(s.db.WithContext(ctx).Where("id = ?", id), &models.SyncLogEntry{})
}

func (s *gormStore) ListLogs(ctx context.Context, filter LogFilter) ([]*models.SyncLogEntry, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.SyncLogEntry{})
	if filter.Entity != "" {
		query = query.Where("entity = ?", filter.Entity)
	}
	if filter.Direction != "" {
		query = query.Where("direction = ?", filter.Direction)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Since != nil {
		query = query.Where("created_at >= ?", *filter.Since)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	var entries []*models.SyncLogEntry
	err := query.Order("created_at DESC, id DESC").Limit(limit).Offset(filter.Offset).Find(&entries).Error
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (s *gormStore) Stats(ctx context.Context, since time.Time) (*LogStats, error) {
	base := s.db.WithContext(ctx).Model(&models.SyncLogEntry{}).Where("created_at >= ?", since)
	stats := &LogStats{}
	type row struct {
		Status models.SyncLogStatus
		N      int64
		AvgMs  float64
	}
	var rows []row
	err := base.Select("status, COUNT(*) AS n, AVG(duration_ms) AS avg_ms").
		Group("status").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	var terminalMs float64
	var terminalN int64
	for _, r := range rows {
		stats.Total += r.N
		switch r.Status {
		case models.SyncLogStatusSuccess:
			stats.Succeeded = r.N
		case models.SyncLogStatusWarning:
			stats.Warnings = r.N
		case models.SyncLogStatusError:
			stats.Failed = r.N
		case models.SyncLogStatusInProgress:
			stats.InProgress = r.N
			continue
		}
		terminalMs += r.AvgMs * float64(r.N)
		terminalN += r.N
	}
	if terminalN > 0 {
		stats.SuccessRate = float64(stats.Succeeded+stats.Warnings) / float64(terminalN)
		stats.AvgDurationMs = terminalMs / float64(terminalN)
	}
	return stats, nil
}

func (s *gormStore) RecentFailures(ctx context.Context, since time.Time, limit int) ([]*models.SyncLogEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	var entries []*models.SyncLogEntry
	err := s.db.WithContext(ctx).
		Where("status = ? AND created_at >= ?", models.SyncLogStatusError, since).
		Order("created_at DESC").Limit(limit).Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *gormStore) CreateConflict(ctx context.Context, c *models.Conflict) error {
	return s.db.WithContext(ctx).Create(c).Error
}

func (s *gormStore) HasPendingConflict(ctx context.Context, entity models.SyncEntity, entityId int) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Conflict{}).
		Where("entity = ? AND entity_id = ? AND status = ?", entity, entityId, models.ConflictStatusPending).
		Count(&n).Error
	return n > 0, err
}

func (s *gormStore) PendingConflicts(ctx context.Context, entity models.SyncEntity) ([]*models.Conflict, error) {
	query := s.db.WithContext(ctx).Where("status = ?", models.ConflictStatusPending)
	if entity != "" {
		query = query.Where("entity = ?", entity)
	}
	var conflicts []*models.Conflict
	if err := query.Order("created_at DESC").Find(&conflicts).Error; err != nil {
		return nil, err
	}
	return conflicts, nil
}

func (s *gormStore) GetConflict(ctx context.Context, id uint) (*models.Conflict, error) {
	return firstOrNil(s.db.WithContext(ctx).Where("id = ?", id), &models.Conflict{})
}

// ResolveConflict flips PENDING to RESOLVED; the status guard keeps the
// transition one-shot under concurrent resolution attempts.
func (s *gormStore) ResolveConflict(ctx context.Context, c *models.Conflict) error {
	result := s.db.WithContext(ctx).Model(&models.Conflict{}).
		Where("id = ? AND status = ?", c.ID, models.ConflictStatusPending).
		Updates(map[string]any{
			"status":      models.ConflictStatusResolved,
			"resolution":  c.Resolution,
			"resolved_by": c.ResolvedBy,
			"notes":       c.Notes,
			"resolved_at": c.ResolvedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("conflict %d is not pending", c.ID)
	}
	return nil
}

func (s *gormStore) EntityCounts(ctx context.Context) (map[models.SyncEntity]EntityCount, error) {
	counts := map[models.SyncEntity]EntityCount{}
	count := func(model any, entity models.SyncEntity) error {
		var total, synced int64
		if err := s.db.WithContext(ctx).Model(model).Count(&total).Error; err != nil {
			return err
		}
		if err := s.db.WithContext(ctx).Model(model).Where("xero_id <> ''").Count(&synced).Error; err != nil {
			return err
		}
		prev := counts[entity]
		counts[entity] = EntityCount{Total: prev.Total + total, Synced: prev.Synced + synced}
		return nil
	}
	if err := count(&models.Client{}, models.SyncEntityContacts); err != nil {
		return nil, err
	}
	if err := count(&models.Vendor{}, models.SyncEntityContacts); err != nil {
		return nil, err
	}
	if err := count(&models.Invoice{}, models.SyncEntityInvoices); err != nil {
		return nil, err
	}
	if err := count(&models.Bill{}, models.SyncEntityBills); err != nil {
		return nil, err
	}
	if err := count(&models.Payment{}, models.SyncEntityPayments); err != nil {
		return nil, err
	}
	return counts, nil
}

func (s *gormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
