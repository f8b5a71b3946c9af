package xerosync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/arkline-sg/backoffice_backend/models"
)

var ErrNothingToRetry = errors.New("log entry has no failed records to retry")

// RetryFromLog re-runs a failed or partially failed push, scoped to the
// record ids that failed last time. It always appends a fresh log entry; the
// original row is never touched. Pulls are not retried this way because the
// next pull naturally re-covers the same window.
func RetryFromLog(ctx context.Context, store Store, ledger Ledger, logId uint, userId int) ([]*SyncResult, error) {
	entry, err := store.GetLog(ctx, logId)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("sync log %d not found", logId)
	}
	if !entry.Status.Terminal() {
		return nil, fmt.Errorf("sync log %d is still in progress", logId)
	}
	if entry.Direction != models.SyncDirectionPush {
		return nil, fmt.Errorf("only push syncs can be retried; re-run the %s import instead", entry.Entity)
	}

	var details logDetails
	if len(entry.DetailsJSON) > 0 {
		if err := json.Unmarshal(entry.DetailsJSON, &details); err != nil {
			return nil, fmt.Errorf("decode log details: %w", err)
		}
	}
	if len(details.FailedRecordIds) == 0 {
		return nil, ErrNothingToRetry
	}

	return RunEntitySync(ctx, store, ledger, entry.Entity, models.SyncDirectionPush, Options{
		UserId:    userId,
		RecordIds: details.FailedRecordIds,
	})
}
