package xerosync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/bsm/redislock"

	"github.com/arkline-sg/backoffice_backend/config"
	"github.com/arkline-sg/backoffice_backend/models"
)

var (
	ErrNotConnected   = errors.New("xero is not connected")
	ErrSyncInProgress = errors.New("a sync for this entity and direction is already running")
)

// Options tunes one sync run. RecordIds scopes a push to specific local ids,
// which is how retries re-attempt only the records that failed last time.
type Options struct {
	UserId    int
	RecordIds []int
}

type RecordFailure struct {
	Id    int    `json:"id"`
	Name  string `json:"name,omitempty"`
	Error string `json:"error"`
}

// SyncResult summarizes one completed run; LogId points at the persisted
// SyncLogEntry for it.
type SyncResult struct {
	LogId     uint                 `json:"log_id"`
	Entity    models.SyncEntity    `json:"entity"`
	Direction models.SyncDirection `json:"direction"`
	Status    models.SyncLogStatus `json:"status"`
	Processed int                  `json:"records_processed"`
	Succeeded int                  `json:"records_succeeded"`
	Failed    int                  `json:"records_failed"`
	Conflicts int                  `json:"conflicts"`
	Failures  []RecordFailure      `json:"failures,omitempty"`
	Message   string               `json:"message"`
}

type logDetails struct {
	FailedRecordIds []int           `json:"failed_record_ids,omitempty"`
	Failures        []RecordFailure `json:"failures,omitempty"`
	Conflicts       int             `json:"conflicts,omitempty"`
}

const lockTTL = 10 * time.Minute

// RunEntitySync is the entry point for one entity. BOTH expands to a pull
// followed by a push, each with its own log entry; entities that only sync
// one way reject the other direction up front.
func RunEntitySync(ctx context.Context, store Store, ledger Ledger,
	entity models.SyncEntity, direction models.SyncDirection, opts Options) ([]*SyncResult, error) {

	directions := []models.SyncDirection{direction}
	if direction == models.SyncDirectionBoth {
		directions = []models.SyncDirection{models.SyncDirectionPull, models.SyncDirectionPush}
	}

	var results []*SyncResult
	var runErr error
	for _, dir := range directions {
		if dir == models.SyncDirectionPush && !pushable(entity) {
			if direction == models.SyncDirectionBoth {
				continue
			}
			return nil, fmt.Errorf("%s sync from this system to Xero is not supported", entity)
		}
		result, err := syncOne(ctx, store, ledger, entity, dir, opts)
		if result != nil {
			results = append(results, result)
		}
		if err != nil {
			if result == nil {
				return results, err
			}
			// systemic failure with a terminal ERROR log; surface it to the
			// caller instead of reporting the run as fine
			runErr = err
		}
	}
	return results, runErr
}

func pushable(entity models.SyncEntity) bool {
	return entity == models.SyncEntityContacts || entity == models.SyncEntityInvoices
}

// syncOne runs a single entity in a single direction under the advisory lock
// and writes exactly one sync log row for it. A returned error alongside a
// non-nil result means the run itself failed systemically; the result still
// describes the terminal log entry.
func syncOne(ctx context.Context, store Store, ledger Ledger,
	entity models.SyncEntity, direction models.SyncDirection, opts Options) (*SyncResult, error) {
	log := config.GetLogger()

	conn, err := store.Connection(ctx)
	if err != nil {
		return nil, err
	}
	if conn == nil || conn.Status != models.XeroConnectionStatusConnected {
		return nil, ErrNotConnected
	}

	lock, err := acquireSyncLock(ctx, entity, direction)
	if err != nil {
		return nil, err
	}
	if lock != nil {
		defer lock.Release(context.WithoutCancel(ctx))
	}

	entry := &models.SyncLogEntry{
		UserId:    opts.UserId,
		Direction: direction,
		Entity:    entity,
		Status:    models.SyncLogStatusInProgress,
	}
	if err := store.CreateLog(ctx, entry); err != nil {
		return nil, err
	}

	started := time.Now()
	result := &SyncResult{LogId: entry.ID, Entity: entity, Direction: direction}

	defer func() {
		if r := recover(); r != nil {
			entry.Status = models.SyncLogStatusError
			entry.ErrorMessage = fmt.Sprintf("panic: %v", r)
			entry.ErrorStack = string(debug.Stack())
			entry.DurationMs = time.Since(started).Milliseconds()
			if err := store.CompleteLog(ctx, entry); err != nil {
				log.WithField("logId", entry.ID).Error("failed to record panic in sync log: ", err)
			}
			panic(r)
		}
	}()

	var runErr error
	switch direction {
	case models.SyncDirectionPush:
		runErr = runPush(ctx, store, ledger, entity, opts, result)
	case models.SyncDirectionPull:
		runErr = runPull(ctx, store, ledger, entity, result)
	default:
		runErr = fmt.Errorf("unknown sync direction %q", direction)
	}

	result.Status = terminalStatus(result, runErr)
	result.Message = summaryMessage(entity, direction, result, runErr)

	entry.Status = result.Status
	entry.RecordsProcessed = result.Processed
	entry.RecordsSucceeded = result.Succeeded
	entry.RecordsFailed = result.Failed
	entry.Message = result.Message
	entry.DurationMs = time.Since(started).Milliseconds()
	if runErr != nil {
		entry.ErrorMessage = runErr.Error()
		entry.ErrorStack = string(debug.Stack())
	}
	details := logDetails{Failures: result.Failures, Conflicts: result.Conflicts}
	for _, failure := range result.Failures {
		details.FailedRecordIds = append(details.FailedRecordIds, failure.Id)
	}
	if raw, err := json.Marshal(details); err == nil {
		entry.DetailsJSON = raw
	}
	if err := store.CompleteLog(ctx, entry); err != nil {
		log.WithField("logId", entry.ID).Error("failed to complete sync log: ", err)
	}

	// Re-read the connection: the run may have advanced watermarks on it and
	// saving the snapshot from run start would write them back stale.
	now := time.Now().UTC()
	if fresh, err := store.Connection(ctx); err != nil || fresh == nil {
		log.Error("failed to reload connection for last sync stamp: ", err)
	} else {
		fresh.LastSyncAt = &now
		if err := store.SaveConnection(ctx, fresh); err != nil {
			log.Error("failed to stamp last sync time: ", err)
		}
	}

	log.WithFields(map[string]any{
		"logId":     entry.ID,
		"entity":    entity,
		"direction": direction,
		"status":    result.Status,
		"processed": result.Processed,
		"failed":    result.Failed,
		"conflicts": result.Conflicts,
		"ms":        entry.DurationMs,
	}).Info("xero sync finished")

	return result, runErr
}

// terminalStatus: a systemic error or a run where nothing succeeded is ERROR;
// record-level failures or new conflicts downgrade an otherwise good run to
// WARNING.
func terminalStatus(result *SyncResult, runErr error) models.SyncLogStatus {
	if runErr != nil {
		return models.SyncLogStatusError
	}
	if result.Failed > 0 && result.Succeeded == 0 && result.Processed > 0 {
		return models.SyncLogStatusError
	}
	if result.Failed > 0 || result.Conflicts > 0 {
		return models.SyncLogStatusWarning
	}
	return models.SyncLogStatusSuccess
}

func summaryMessage(entity models.SyncEntity, direction models.SyncDirection, result *SyncResult, runErr error) string {
	if runErr != nil {
		return fmt.Sprintf("%s %s sync aborted: %v", entity, direction, runErr)
	}
	msg := fmt.Sprintf("%s %s sync: %d processed, %d succeeded, %d failed",
		entity, direction, result.Processed, result.Succeeded, result.Failed)
	if result.Conflicts > 0 {
		msg += fmt.Sprintf(", %d conflicts detected", result.Conflicts)
	}
	return msg
}

func acquireSyncLock(ctx context.Context, entity models.SyncEntity, direction models.SyncDirection) (*redislock.Lock, error) {
	locker := config.GetRedisLock()
	if locker == nil {
		return nil, nil
	}
	key := fmt.Sprintf("xerosync:%s:%s", entity, direction)
	lock, err := locker.Obtain(ctx, key, lockTTL, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrSyncInProgress
	}
	if err != nil {
		return nil, err
	}
	return lock, nil
}

func runPush(ctx context.Context, store Store, ledger Ledger, entity models.SyncEntity, opts Options, result *SyncResult) error {
	switch entity {
	case models.SyncEntityContacts:
		return pushContacts(ctx, store, ledger, opts, result)
	case models.SyncEntityInvoices:
		return pushInvoices(ctx, store, ledger, opts, result)
	default:
		return fmt.Errorf("%s cannot be pushed", entity)
	}
}

func runPull(ctx context.Context, store Store, ledger Ledger, entity models.SyncEntity, result *SyncResult) error {
	switch entity {
	case models.SyncEntityContacts:
		return pullContacts(ctx, store, ledger, result)
	case models.SyncEntityInvoices:
		return pullInvoices(ctx, store, ledger, result)
	case models.SyncEntityBills:
		return pullBills(ctx, store, ledger, result)
	case models.SyncEntityPayments:
		return pullPayments(ctx, store, ledger, result)
	default:
		return fmt.Errorf("%s cannot be pulled", entity)
	}
}

// pushContacts sends dirty clients and vendors to the ledger as contacts.
// A record is dirty when it has never been pushed or its current fingerprint
// no longer matches the one stamped at the last sync. Records sitting behind
// a pending conflict are left alone until someone resolves it.
func pushContacts(ctx context.Context, store Store, ledger Ledger, opts Options, result *SyncResult) error {
	clients, err := store.ClientsForPush(ctx, opts.RecordIds)
	if err != nil {
		return err
	}
	vendors, err := store.VendorsForPush(ctx, opts.RecordIds)
	if err != nil {
		return err
	}

	type pending struct {
		id       int
		name     string
		isClient bool
		payload  XeroContact
	}
	var batch []pending

	for _, c := range clients {
		payload := clientToContact(c)
		if fp := contactFingerprint(payload); c.XeroId != "" && fp == c.SyncHash {
			continue
		}
		blocked, err := store.HasPendingConflict(ctx, models.SyncEntityContacts, c.ID)
		if err != nil {
			return err
		}
		if blocked {
			continue
		}
		result.Processed++
		if err := validateContactPush(payload); err != nil {
			result.Failed++
			result.Failures = append(result.Failures, RecordFailure{Id: c.ID, Name: c.Name, Error: err.Error()})
			continue
		}
		batch = append(batch, pending{id: c.ID, name: c.Name, isClient: true, payload: payload})
	}
	for _, v := range vendors {
		payload := vendorToContact(v)
		if fp := contactFingerprint(payload); v.XeroId != "" && fp == v.SyncHash {
			continue
		}
		blocked, err := store.HasPendingConflict(ctx, models.SyncEntityContacts, v.ID)
		if err != nil {
			return err
		}
		if blocked {
			continue
		}
		result.Processed++
		if err := validateContactPush(payload); err != nil {
			result.Failed++
			result.Failures = append(result.Failures, RecordFailure{Id: v.ID, Name: v.Name, Error: err.Error()})
			continue
		}
		batch = append(batch, pending{id: v.ID, name: v.Name, payload: payload})
	}

	if len(batch) == 0 {
		return nil
	}

	payloads := make([]XeroContact, len(batch))
	for i, p := range batch {
		payloads[i] = p.payload
	}
	upserted, err := ledger.UpsertContacts(ctx, payloads)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for i, p := range batch {
		if i >= len(upserted) || !upserted[i].OK() {
			msg := "no response from xero"
			if i < len(upserted) {
				msg = upserted[i].ErrorMessage
			}
			result.Failed++
			result.Failures = append(result.Failures, RecordFailure{Id: p.id, Name: p.name, Error: msg})
			continue
		}
		hash := contactFingerprint(p.payload)
		var markErr error
		if p.isClient {
			markErr = store.MarkClientSynced(ctx, p.id, upserted[i].ID, hash, now)
		} else {
			markErr = store.MarkVendorSynced(ctx, p.id, upserted[i].ID, hash, now)
		}
		if markErr != nil {
			result.Failed++
			result.Failures = append(result.Failures, RecordFailure{Id: p.id, Name: p.name, Error: markErr.Error()})
			continue
		}
		result.Succeeded++
	}
	return nil
}

// pushInvoices sends dirty receivable invoices. An invoice whose client has
// never been pushed fails on its own without stopping the rest of the batch.
func pushInvoices(ctx context.Context, store Store, ledger Ledger, opts Options, result *SyncResult) error {
	invoices, err := store.InvoicesForPush(ctx, opts.RecordIds)
	if err != nil {
		return err
	}

	type pending struct {
		id      int
		name    string
		payload XeroInvoice
	}
	var batch []pending

	for _, inv := range invoices {
		client, err := store.ClientByID(ctx, inv.ClientId)
		if err != nil {
			return err
		}
		contactXeroId := ""
		if client != nil {
			contactXeroId = client.XeroId
		}
		payload := invoiceToXero(inv, contactXeroId)
		if fp := invoiceFingerprint(payload); inv.XeroId != "" && fp == inv.SyncHash {
			continue
		}
		blocked, err := store.HasPendingConflict(ctx, models.SyncEntityInvoices, inv.ID)
		if err != nil {
			return err
		}
		if blocked {
			continue
		}
		result.Processed++
		if contactXeroId == "" {
			result.Failed++
			result.Failures = append(result.Failures, RecordFailure{
				Id: inv.ID, Name: inv.InvoiceNumber,
				Error: "client has not been synced to xero yet; push contacts first",
			})
			continue
		}
		if len(payload.LineItems) == 0 {
			result.Failed++
			result.Failures = append(result.Failures, RecordFailure{
				Id: inv.ID, Name: inv.InvoiceNumber, Error: "invoice has no line items",
			})
			continue
		}
		batch = append(batch, pending{id: inv.ID, name: inv.InvoiceNumber, payload: payload})
	}

	if len(batch) == 0 {
		return nil
	}

	payloads := make([]XeroInvoice, len(batch))
	for i, p := range batch {
		payloads[i] = p.payload
	}
	upserted, err := ledger.UpsertInvoices(ctx, payloads)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for i, p := range batch {
		if i >= len(upserted) || !upserted[i].OK() {
			msg := "no response from xero"
			if i < len(upserted) {
				msg = upserted[i].ErrorMessage
			}
			result.Failed++
			result.Failures = append(result.Failures, RecordFailure{Id: p.id, Name: p.name, Error: msg})
			continue
		}
		if err := store.MarkInvoiceSynced(ctx, p.id, upserted[i].ID, invoiceFingerprint(p.payload), now); err != nil {
			result.Failed++
			result.Failures = append(result.Failures, RecordFailure{Id: p.id, Name: p.name, Error: err.Error()})
			continue
		}
		result.Succeeded++
	}
	return nil
}

// pullContacts imports ledger contacts modified since the watermark.
// Divergence on both sides becomes a conflict, never a silent overwrite.
func pullContacts(ctx context.Context, store Store, ledger Ledger, result *SyncResult) error {
	marks, err := store.GetWatermarks(ctx)
	if err != nil {
		return err
	}
	contacts, err := ledger.ListContacts(ctx, marks[models.SyncEntityContacts])
	if err != nil {
		return err
	}

	var newest time.Time
	for _, contact := range contacts {
		result.Processed++
		if contact.UpdatedDateUTC.After(newest) {
			newest = contact.UpdatedDateUTC
		}
		if contact.IsSupplier && !contact.IsCustomer {
			if err := pullOneVendor(ctx, store, contact, result); err != nil {
				return err
			}
			continue
		}
		if err := pullOneClient(ctx, store, contact, result); err != nil {
			return err
		}
	}
	if !newest.IsZero() {
		if err := store.SetWatermark(ctx, models.SyncEntityContacts, newest); err != nil {
			return err
		}
	}
	return nil
}

func pullOneClient(ctx context.Context, store Store, contact XeroContact, result *SyncResult) error {
	remoteFP := contactFingerprint(contact)
	now := time.Now().UTC()

	existing, err := store.ClientByXeroID(ctx, contact.ContactID)
	if err != nil {
		return err
	}
	if existing != nil {
		localFP := contactFingerprint(clientToContact(existing))
		switch {
		case localFP == remoteFP:
			// both sides agree; refresh the sync point
			if err := store.MarkClientSynced(ctx, existing.ID, contact.ContactID, remoteFP, now); err != nil {
				return err
			}
			result.Succeeded++
		case localFP == existing.SyncHash:
			// local untouched since last sync; remote wins
			contactToClient(contact, existing)
			if err := store.SaveClient(ctx, existing); err != nil {
				return err
			}
			if err := store.MarkClientSynced(ctx, existing.ID, contact.ContactID, remoteFP, now); err != nil {
				return err
			}
			result.Succeeded++
		case remoteFP == existing.SyncHash:
			// remote unchanged, local edited; the push side will handle it
			result.Succeeded++
		default:
			if err := recordConflict(ctx, store, result, models.SyncEntityContacts, existing.ID, existing.Name,
				models.ConflictTypeDataMismatch, clientToContact(existing), contact,
				suggestAction(existing.UpdatedAt, contact.UpdatedDateUTC)); err != nil {
				return err
			}
		}
		return nil
	}

	// the same xero contact may already be linked as a vendor; creating a
	// client would leave two local records sharing one XeroId
	linked, err := store.VendorByXeroID(ctx, contact.ContactID)
	if err != nil {
		return err
	}
	if linked != nil {
		return recordConflict(ctx, store, result, models.SyncEntityContacts, linked.ID, linked.Name,
			models.ConflictTypeDuplicateDetected, vendorToContact(linked), contact,
			"This Xero contact is already linked to a local vendor; decide which side owns it before re-importing")
	}

	if contact.Name == "" {
		if err := recordConflict(ctx, store, result, models.SyncEntityContacts, 0, contact.ContactID,
			models.ConflictTypeValidationError, XeroContact{}, contact,
			"Xero contact has no name; fix it in Xero and re-import"); err != nil {
			return err
		}
		return nil
	}

	// name collision with an unlinked local record is a duplicate, not a create
	dup, err := store.ClientByName(ctx, contact.Name)
	if err != nil {
		return err
	}
	if dup != nil && dup.XeroId == "" {
		return recordConflict(ctx, store, result, models.SyncEntityContacts, dup.ID, dup.Name,
			models.ConflictTypeDuplicateDetected, clientToContact(dup), contact,
			"A local client with the same name exists but is not linked; use_xero links and overwrites it")
	}

	fresh := &models.Client{}
	contactToClient(contact, fresh)
	if err := store.SaveClient(ctx, fresh); err != nil {
		return err
	}
	if err := store.MarkClientSynced(ctx, fresh.ID, contact.ContactID, remoteFP, now); err != nil {
		return err
	}
	result.Succeeded++
	return nil
}

func pullOneVendor(ctx context.Context, store Store, contact XeroContact, result *SyncResult) error {
	remoteFP := contactFingerprint(contact)
	now := time.Now().UTC()

	existing, err := store.VendorByXeroID(ctx, contact.ContactID)
	if err != nil {
		return err
	}
	if existing != nil {
		localFP := contactFingerprint(vendorToContact(existing))
		switch {
		case localFP == remoteFP:
			if err := store.MarkVendorSynced(ctx, existing.ID, contact.ContactID, remoteFP, now); err != nil {
				return err
			}
			result.Succeeded++
		case localFP == existing.SyncHash:
			contactToVendor(contact, existing)
			if err := store.SaveVendor(ctx, existing); err != nil {
				return err
			}
			if err := store.MarkVendorSynced(ctx, existing.ID, contact.ContactID, remoteFP, now); err != nil {
				return err
			}
			result.Succeeded++
		case remoteFP == existing.SyncHash:
			result.Succeeded++
		default:
			if err := recordConflict(ctx, store, result, models.SyncEntityContacts, existing.ID, existing.Name,
				models.ConflictTypeDataMismatch, vendorToContact(existing), contact,
				suggestAction(existing.UpdatedAt, contact.UpdatedDateUTC)); err != nil {
				return err
			}
		}
		return nil
	}

	linked, err := store.ClientByXeroID(ctx, contact.ContactID)
	if err != nil {
		return err
	}
	if linked != nil {
		return recordConflict(ctx, store, result, models.SyncEntityContacts, linked.ID, linked.Name,
			models.ConflictTypeDuplicateDetected, clientToContact(linked), contact,
			"This Xero contact is already linked to a local client; decide which side owns it before re-importing")
	}

	if contact.Name == "" {
		return recordConflict(ctx, store, result, models.SyncEntityContacts, 0, contact.ContactID,
			models.ConflictTypeValidationError, XeroContact{}, contact,
			"Xero contact has no name; fix it in Xero and re-import")
	}

	dup, err := store.VendorByName(ctx, contact.Name)
	if err != nil {
		return err
	}
	if dup != nil && dup.XeroId == "" {
		return recordConflict(ctx, store, result, models.SyncEntityContacts, dup.ID, dup.Name,
			models.ConflictTypeDuplicateDetected, vendorToContact(dup), contact,
			"A local vendor with the same name exists but is not linked; use_xero links and overwrites it")
	}

	fresh := &models.Vendor{}
	contactToVendor(contact, fresh)
	if err := store.SaveVendor(ctx, fresh); err != nil {
		return err
	}
	if err := store.MarkVendorSynced(ctx, fresh.ID, contact.ContactID, remoteFP, now); err != nil {
		return err
	}
	result.Succeeded++
	return nil
}

func pullInvoices(ctx context.Context, store Store, ledger Ledger, result *SyncResult) error {
	marks, err := store.GetWatermarks(ctx)
	if err != nil {
		return err
	}
	invoices, err := ledger.ListInvoices(ctx, invoiceTypeReceivable, marks[models.SyncEntityInvoices])
	if err != nil {
		return err
	}

	var newest time.Time
	blocked := false
	now := time.Now().UTC()
	for _, remote := range invoices {
		result.Processed++
		if remote.UpdatedDateUTC.After(newest) {
			newest = remote.UpdatedDateUTC
		}
		remoteFP := invoiceFingerprint(remote)

		existing, err := store.InvoiceByXeroID(ctx, remote.InvoiceID)
		if err != nil {
			return err
		}
		if existing != nil {
			client, err := store.ClientByID(ctx, existing.ClientId)
			if err != nil {
				return err
			}
			contactXeroId := ""
			if client != nil {
				contactXeroId = client.XeroId
			}
			localFP := invoiceFingerprint(invoiceToXero(existing, contactXeroId))
			switch {
			case localFP == remoteFP:
				if err := store.MarkInvoiceSynced(ctx, existing.ID, remote.InvoiceID, remoteFP, now); err != nil {
					return err
				}
				result.Succeeded++
			case localFP == existing.SyncHash:
				xeroToInvoice(remote, existing.ClientId, existing)
				if err := store.SaveInvoice(ctx, existing); err != nil {
					return err
				}
				if err := store.MarkInvoiceSynced(ctx, existing.ID, remote.InvoiceID, remoteFP, now); err != nil {
					return err
				}
				result.Succeeded++
			case remoteFP == existing.SyncHash:
				result.Succeeded++
			default:
				if err := recordConflict(ctx, store, result, models.SyncEntityInvoices, existing.ID, existing.InvoiceNumber,
					models.ConflictTypeDataMismatch, invoiceToXero(existing, contactXeroId), remote,
					suggestAction(existing.UpdatedAt, remote.UpdatedDateUTC)); err != nil {
					return err
				}
			}
			continue
		}

		client, err := store.ClientByXeroID(ctx, remote.Contact.ContactID)
		if err != nil {
			return err
		}
		if client == nil {
			if err := recordConflict(ctx, store, result, models.SyncEntityInvoices, 0, remote.InvoiceNumber,
				models.ConflictTypeMissingDependency, XeroInvoice{}, remote,
				"The invoice's contact is not synced locally; pull contacts first, then re-import"); err != nil {
				return err
			}
			blocked = true
			continue
		}

		fresh := &models.Invoice{}
		xeroToInvoice(remote, client.ID, fresh)
		if err := store.SaveInvoice(ctx, fresh); err != nil {
			return err
		}
		if err := store.MarkInvoiceSynced(ctx, fresh.ID, remote.InvoiceID, remoteFP, now); err != nil {
			return err
		}
		result.Succeeded++
	}
	// A record with no importable local home holds the watermark back so the
	// next import sees it again once its dependency exists.
	if !newest.IsZero() && !blocked {
		if err := store.SetWatermark(ctx, models.SyncEntityInvoices, newest); err != nil {
			return err
		}
	}
	return nil
}

func pullBills(ctx context.Context, store Store, ledger Ledger, result *SyncResult) error {
	marks, err := store.GetWatermarks(ctx)
	if err != nil {
		return err
	}
	bills, err := ledger.ListInvoices(ctx, invoiceTypePayable, marks[models.SyncEntityBills])
	if err != nil {
		return err
	}

	var newest time.Time
	blocked := false
	now := time.Now().UTC()
	for _, remote := range bills {
		result.Processed++
		if remote.UpdatedDateUTC.After(newest) {
			newest = remote.UpdatedDateUTC
		}
		remoteFP := invoiceFingerprint(remote)

		existing, err := store.BillByXeroID(ctx, remote.InvoiceID)
		if err != nil {
			return err
		}
		if existing != nil {
			vendor, err := store.VendorByID(ctx, existing.VendorId)
			if err != nil {
				return err
			}
			contactXeroId := ""
			if vendor != nil {
				contactXeroId = vendor.XeroId
			}
			localFP := invoiceFingerprint(billToXero(existing, contactXeroId))
			switch {
			case localFP == remoteFP:
				if err := store.MarkBillSynced(ctx, existing.ID, remote.InvoiceID, remoteFP, now); err != nil {
					return err
				}
				result.Succeeded++
			case localFP == existing.SyncHash:
				xeroToBill(remote, existing.VendorId, existing)
				if err := store.SaveBill(ctx, existing); err != nil {
					return err
				}
				if err := store.MarkBillSynced(ctx, existing.ID, remote.InvoiceID, remoteFP, now); err != nil {
					return err
				}
				result.Succeeded++
			case remoteFP == existing.SyncHash:
				result.Succeeded++
			default:
				if err := recordConflict(ctx, store, result, models.SyncEntityBills, existing.ID, existing.BillNumber,
					models.ConflictTypeDataMismatch, billToXero(existing, contactXeroId), remote,
					suggestAction(existing.UpdatedAt, remote.UpdatedDateUTC)); err != nil {
					return err
				}
			}
			continue
		}

		vendor, err := store.VendorByXeroID(ctx, remote.Contact.ContactID)
		if err != nil {
			return err
		}
		if vendor == nil {
			if err := recordConflict(ctx, store, result, models.SyncEntityBills, 0, remote.InvoiceNumber,
				models.ConflictTypeMissingDependency, XeroInvoice{}, remote,
				"The bill's supplier is not synced locally; pull contacts first, then re-import"); err != nil {
				return err
			}
			blocked = true
			continue
		}

		fresh := &models.Bill{}
		xeroToBill(remote, vendor.ID, fresh)
		if err := store.SaveBill(ctx, fresh); err != nil {
			return err
		}
		if err := store.MarkBillSynced(ctx, fresh.ID, remote.InvoiceID, remoteFP, now); err != nil {
			return err
		}
		result.Succeeded++
	}
	if !newest.IsZero() && !blocked {
		if err := store.SetWatermark(ctx, models.SyncEntityBills, newest); err != nil {
			return err
		}
	}
	return nil
}

// pullPayments imports ledger payments. Payments never diverge: Xero is the
// system of record for anything it already holds, so an existing row is just
// re-stamped.
func pullPayments(ctx context.Context, store Store, ledger Ledger, result *SyncResult) error {
	marks, err := store.GetWatermarks(ctx)
	if err != nil {
		return err
	}
	payments, err := ledger.ListPayments(ctx, marks[models.SyncEntityPayments])
	if err != nil {
		return err
	}

	var newest time.Time
	blocked := false
	now := time.Now().UTC()
	for _, remote := range payments {
		result.Processed++
		if remote.UpdatedDateUTC.After(newest) {
			newest = remote.UpdatedDateUTC
		}
		remoteFP := paymentFingerprint(remote)

		existing, err := store.PaymentByXeroID(ctx, remote.PaymentID)
		if err != nil {
			return err
		}
		if existing != nil {
			if err := store.MarkPaymentSynced(ctx, existing.ID, remote.PaymentID, remoteFP, now); err != nil {
				return err
			}
			result.Succeeded++
			continue
		}

		invoice, err := store.InvoiceByXeroID(ctx, remote.Invoice.InvoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			if err := recordConflict(ctx, store, result, models.SyncEntityPayments, 0, remote.Reference,
				models.ConflictTypeMissingDependency, XeroPayment{}, remote,
				"The payment's invoice is not synced locally; pull invoices first, then re-import"); err != nil {
				return err
			}
			blocked = true
			continue
		}

		fresh := &models.Payment{}
		xeroToPayment(remote, invoice.ID, fresh)
		if err := store.SavePayment(ctx, fresh); err != nil {
			return err
		}
		if err := store.MarkPaymentSynced(ctx, fresh.ID, remote.PaymentID, remoteFP, now); err != nil {
			return err
		}
		result.Succeeded++
	}
	if !newest.IsZero() && !blocked {
		if err := store.SetWatermark(ctx, models.SyncEntityPayments, newest); err != nil {
			return err
		}
	}
	return nil
}

// recordConflict files a conflict unless the same record already has one
// pending; either way the run keeps going.
func recordConflict(ctx context.Context, store Store, result *SyncResult,
	entity models.SyncEntity, entityId int, entityName string,
	conflictType models.ConflictType, localData, xeroData any, suggested string) error {
	if entityId != 0 {
		pending, err := store.HasPendingConflict(ctx, entity, entityId)
		if err != nil {
			return err
		}
		if pending {
			result.Conflicts++
			return nil
		}
	} else {
		// no local record to key on; dedupe by name so a held watermark does
		// not file the same conflict again on every import
		pending, err := store.PendingConflicts(ctx, entity)
		if err != nil {
			return err
		}
		for _, p := range pending {
			if p.ConflictType == conflictType && p.EntityName == entityName {
				result.Conflicts++
				return nil
			}
		}
	}
	conflict, err := newConflict(entity, entityId, entityName, conflictType, localData, xeroData, suggested)
	if err != nil {
		return err
	}
	if err := store.CreateConflict(ctx, conflict); err != nil {
		return err
	}
	result.Conflicts++
	return nil
}

// PushPayment sends a single local payment to the ledger. Payments are not
// part of bulk pushes; this is called when a payment is recorded locally
// while a connection is active.
func PushPayment(ctx context.Context, store Store, ledger Ledger, payment *models.Payment) error {
	invoice, err := store.InvoiceByID(ctx, payment.InvoiceId)
	if err != nil {
		return err
	}
	if invoice == nil {
		return fmt.Errorf("invoice %d not found", payment.InvoiceId)
	}
	if invoice.XeroId == "" {
		return fmt.Errorf("invoice %s has not been synced to xero yet", invoice.InvoiceNumber)
	}
	payload := paymentToXero(payment, invoice.XeroId)
	created, err := ledger.CreatePayment(ctx, payload)
	if err != nil {
		return err
	}
	payload.PaymentID = created.PaymentID
	return store.MarkPaymentSynced(ctx, payment.ID, created.PaymentID, paymentFingerprint(payload), time.Now().UTC())
}
