package xerosync

import (
	"context"

	"github.com/arkline-sg/backoffice_backend/config"
	"github.com/arkline-sg/backoffice_backend/models"
)

// Pull order satisfies dependencies: invoices need their contacts, bills
// their suppliers, payments their invoices. The push side stops at invoices
// because bills and payments originate in Xero; local payments go out
// one at a time when they are recorded.
var (
	pullOrder = []models.SyncEntity{
		models.SyncEntityContacts,
		models.SyncEntityInvoices,
		models.SyncEntityBills,
		models.SyncEntityPayments,
	}
	pushOrder = []models.SyncEntity{
		models.SyncEntityContacts,
		models.SyncEntityInvoices,
	}
)

// BulkResult is the outcome of one SyncAll. Success means no entity ended in
// ERROR; warnings and conflicts do not fail the bulk run.
type BulkResult struct {
	Success        bool          `json:"success"`
	Results        []*SyncResult `json:"results"`
	TotalConflicts int           `json:"total_conflicts"`
}

// SyncAll runs every entity in dependency order. One entity ending in ERROR
// does not stop the rest; later entities may still make progress and the
// caller gets the full picture.
func SyncAll(ctx context.Context, store Store, ledger Ledger, direction models.SyncDirection, opts Options) (*BulkResult, error) {
	log := config.GetLogger()

	type step struct {
		entity    models.SyncEntity
		direction models.SyncDirection
	}
	var steps []step
	if direction == models.SyncDirectionPull || direction == models.SyncDirectionBoth {
		for _, entity := range pullOrder {
			steps = append(steps, step{entity, models.SyncDirectionPull})
		}
	}
	if direction == models.SyncDirectionPush || direction == models.SyncDirectionBoth {
		for _, entity := range pushOrder {
			steps = append(steps, step{entity, models.SyncDirectionPush})
		}
	}

	bulk := &BulkResult{Success: true}
	for _, st := range steps {
		result, err := syncOne(ctx, store, ledger, st.entity, st.direction, opts)
		if result != nil {
			bulk.Results = append(bulk.Results, result)
			bulk.TotalConflicts += result.Conflicts
			if result.Status == models.SyncLogStatusError {
				bulk.Success = false
			}
		}
		if err != nil {
			if result == nil {
				// no log row was even created; connection or lock problems
				// apply to every remaining step too
				return bulk, err
			}
			log.WithFields(map[string]any{
				"entity":    st.entity,
				"direction": st.direction,
			}).Warn("bulk sync step failed, continuing: ", err)
		}
	}
	return bulk, nil
}
