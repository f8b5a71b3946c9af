package xerosync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/arkline-sg/backoffice_backend/config"
	"github.com/arkline-sg/backoffice_backend/models"
)

var (
	ErrConflictNotFound = errors.New("conflict not found")
	ErrConflictResolved = errors.New("conflict already resolved")
)

// bothSidesChanged is the three-way divergence test. syncHash is the
// fingerprint at the last common sync point; a record with no history counts
// as changed on the side that has it.
func bothSidesChanged(syncHash, localFP, remoteFP string) bool {
	if localFP == remoteFP {
		return false
	}
	return localFP != syncHash && remoteFP != syncHash
}

// suggestAction is advisory only: the side modified more recently is the
// likelier intended state, but a human still decides.
func suggestAction(localUpdated, remoteUpdated time.Time) string {
	if remoteUpdated.After(localUpdated) {
		return "Xero record was modified more recently; review and consider use_xero"
	}
	return "Local record was modified more recently; review and consider use_local"
}

func newConflict(entity models.SyncEntity, entityId int, entityName string,
	conflictType models.ConflictType, localData, xeroData any, suggested string) (*models.Conflict, error) {
	local, err := json.Marshal(localData)
	if err != nil {
		return nil, fmt.Errorf("encode local snapshot: %w", err)
	}
	remote, err := json.Marshal(xeroData)
	if err != nil {
		return nil, fmt.Errorf("encode xero snapshot: %w", err)
	}
	return &models.Conflict{
		Entity:          entity,
		EntityId:        entityId,
		EntityName:      entityName,
		ConflictType:    conflictType,
		LocalData:       local,
		XeroData:        remote,
		SuggestedAction: suggested,
		Status:          models.ConflictStatusPending,
	}, nil
}

// ResolveConflict applies one explicit resolution to a pending conflict.
// use_local pushes the local snapshot to the ledger, use_xero writes the
// ledger snapshot over the local record, manual records the decision without
// touching either side. Resolving a resolved conflict is an error so the
// caller learns nothing was done.
func ResolveConflict(ctx context.Context, store Store, ledger Ledger, id uint,
	resolution models.ConflictResolution, resolvedBy int, notes string) (*models.Conflict, error) {
	log := config.GetLogger()

	conflict, err := store.GetConflict(ctx, id)
	if err != nil {
		return nil, err
	}
	if conflict == nil {
		return nil, ErrConflictNotFound
	}
	if conflict.Status == models.ConflictStatusResolved {
		return nil, ErrConflictResolved
	}

	switch resolution {
	case models.ConflictResolutionUseLocal:
		if err := applyLocalSnapshot(ctx, store, ledger, conflict); err != nil {
			return nil, err
		}
	case models.ConflictResolutionUseXero:
		if err := applyXeroSnapshot(ctx, store, conflict); err != nil {
			return nil, err
		}
	case models.ConflictResolutionManual:
		// decision recorded, data untouched on both sides
	default:
		return nil, fmt.Errorf("unknown resolution %q", resolution)
	}

	now := time.Now().UTC()
	conflict.Resolution = resolution
	conflict.ResolvedBy = resolvedBy
	conflict.Notes = notes
	conflict.ResolvedAt = &now
	if err := store.ResolveConflict(ctx, conflict); err != nil {
		return nil, err
	}
	conflict.Status = models.ConflictStatusResolved

	log.WithFields(map[string]any{
		"conflictId": conflict.ID,
		"entity":     conflict.Entity,
		"entityId":   conflict.EntityId,
		"resolution": resolution,
	}).Info("xero conflict resolved")
	return conflict, nil
}

// applyLocalSnapshot pushes the conflict's local-side snapshot to the ledger
// and stamps the record synced at that state.
func applyLocalSnapshot(ctx context.Context, store Store, ledger Ledger, conflict *models.Conflict) error {
	now := time.Now().UTC()
	switch conflict.Entity {
	case models.SyncEntityContacts:
		var payload XeroContact
		if err := json.Unmarshal(conflict.LocalData, &payload); err != nil {
			return fmt.Errorf("decode local contact snapshot: %w", err)
		}
		results, err := ledger.UpsertContacts(ctx, []XeroContact{payload})
		if err != nil {
			return err
		}
		if len(results) == 0 {
			return fmt.Errorf("xero returned no result for contact upsert")
		}
		if !results[0].OK() {
			return fmt.Errorf("xero rejected contact: %s", results[0].ErrorMessage)
		}
		hash := contactFingerprint(payload)
		if payload.IsCustomer {
			return store.MarkClientSynced(ctx, conflict.EntityId, results[0].ID, hash, now)
		}
		return store.MarkVendorSynced(ctx, conflict.EntityId, results[0].ID, hash, now)
	case models.SyncEntityInvoices, models.SyncEntityBills:
		var payload XeroInvoice
		if err := json.Unmarshal(conflict.LocalData, &payload); err != nil {
			return fmt.Errorf("decode local invoice snapshot: %w", err)
		}
		results, err := ledger.UpsertInvoices(ctx, []XeroInvoice{payload})
		if err != nil {
			return err
		}
		if len(results) == 0 {
			return fmt.Errorf("xero returned no result for invoice upsert")
		}
		if !results[0].OK() {
			return fmt.Errorf("xero rejected invoice: %s", results[0].ErrorMessage)
		}
		hash := invoiceFingerprint(payload)
		if conflict.Entity == models.SyncEntityBills {
			return store.MarkBillSynced(ctx, conflict.EntityId, results[0].ID, hash, now)
		}
		return store.MarkInvoiceSynced(ctx, conflict.EntityId, results[0].ID, hash, now)
	default:
		return fmt.Errorf("use_local is not supported for %s", conflict.Entity)
	}
}

// applyXeroSnapshot overwrites the local record with the ledger-side snapshot.
func applyXeroSnapshot(ctx context.Context, store Store, conflict *models.Conflict) error {
	now := time.Now().UTC()
	switch conflict.Entity {
	case models.SyncEntityContacts:
		var payload XeroContact
		if err := json.Unmarshal(conflict.XeroData, &payload); err != nil {
			return fmt.Errorf("decode xero contact snapshot: %w", err)
		}
		if payload.IsSupplier && !payload.IsCustomer {
			vendor, err := store.VendorByID(ctx, conflict.EntityId)
			if err != nil {
				return err
			}
			if vendor == nil {
				return fmt.Errorf("vendor %d no longer exists", conflict.EntityId)
			}
			contactToVendor(payload, vendor)
			if err := store.SaveVendor(ctx, vendor); err != nil {
				return err
			}
			return store.MarkVendorSynced(ctx, vendor.ID, payload.ContactID, contactFingerprint(payload), now)
		}
		client, err := store.ClientByID(ctx, conflict.EntityId)
		if err != nil {
			return err
		}
		if client == nil {
			return fmt.Errorf("client %d no longer exists", conflict.EntityId)
		}
		contactToClient(payload, client)
		if err := store.SaveClient(ctx, client); err != nil {
			return err
		}
		return store.MarkClientSynced(ctx, client.ID, payload.ContactID, contactFingerprint(payload), now)
	case models.SyncEntityInvoices:
		var payload XeroInvoice
		if err := json.Unmarshal(conflict.XeroData, &payload); err != nil {
			return fmt.Errorf("decode xero invoice snapshot: %w", err)
		}
		if conflict.EntityId == 0 {
			// filed during a pull before the invoice had a local home
			client, err := store.ClientByXeroID(ctx, payload.Contact.ContactID)
			if err != nil {
				return err
			}
			if client == nil {
				return fmt.Errorf("the invoice's contact is still not synced locally; pull contacts first")
			}
			fresh := &models.Invoice{}
			xeroToInvoice(payload, client.ID, fresh)
			if err := store.SaveInvoice(ctx, fresh); err != nil {
				return err
			}
			return store.MarkInvoiceSynced(ctx, fresh.ID, payload.InvoiceID, invoiceFingerprint(payload), now)
		}
		invoice, err := store.InvoiceByID(ctx, conflict.EntityId)
		if err != nil {
			return err
		}
		if invoice == nil {
			return fmt.Errorf("invoice %d no longer exists", conflict.EntityId)
		}
		xeroToInvoice(payload, invoice.ClientId, invoice)
		if err := store.SaveInvoice(ctx, invoice); err != nil {
			return err
		}
		return store.MarkInvoiceSynced(ctx, invoice.ID, payload.InvoiceID, invoiceFingerprint(payload), now)
	case models.SyncEntityBills:
		var payload XeroInvoice
		if err := json.Unmarshal(conflict.XeroData, &payload); err != nil {
			return fmt.Errorf("decode xero bill snapshot: %w", err)
		}
		if conflict.EntityId == 0 {
			vendor, err := store.VendorByXeroID(ctx, payload.Contact.ContactID)
			if err != nil {
				return err
			}
			if vendor == nil {
				return fmt.Errorf("the bill's supplier is still not synced locally; pull contacts first")
			}
			fresh := &models.Bill{}
			xeroToBill(payload, vendor.ID, fresh)
			if err := store.SaveBill(ctx, fresh); err != nil {
				return err
			}
			return store.MarkBillSynced(ctx, fresh.ID, payload.InvoiceID, invoiceFingerprint(payload), now)
		}
		bill, err := store.BillByID(ctx, conflict.EntityId)
		if err != nil {
			return err
		}
		if bill == nil {
			return fmt.Errorf("bill %d no longer exists", conflict.EntityId)
		}
		xeroToBill(payload, bill.VendorId, bill)
		if err := store.SaveBill(ctx, bill); err != nil {
			return err
		}
		return store.MarkBillSynced(ctx, bill.ID, payload.InvoiceID, invoiceFingerprint(payload), now)
	case models.SyncEntityPayments:
		var payload XeroPayment
		if err := json.Unmarshal(conflict.XeroData, &payload); err != nil {
			return fmt.Errorf("decode xero payment snapshot: %w", err)
		}
		invoice, err := store.InvoiceByXeroID(ctx, payload.Invoice.InvoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return fmt.Errorf("the payment's invoice is still not synced locally; pull invoices first")
		}
		fresh := &models.Payment{}
		xeroToPayment(payload, invoice.ID, fresh)
		if err := store.SavePayment(ctx, fresh); err != nil {
			return err
		}
		return store.MarkPaymentSynced(ctx, fresh.ID, payload.PaymentID, paymentFingerprint(payload), now)
	default:
		return fmt.Errorf("use_xero is not supported for %s", conflict.Entity)
	}
}
