package xerosync

import (
	"context"
	"errors"
	"testing"

	"github.com/arkline-sg/backoffice_backend/models"
)

func TestRetryIsScopedToFailedRecords(t *testing.T) {
	store := newMemStore()
	ledger := newFakeLedger()
	good := seedClient(t, store, "Fine Co", "fine@ok.example")
	bad := seedClient(t, store, "Broken Co", "broken@ok.example")
	ledger.failContactNames["Broken Co"] = "temporarily rejected"

	results, err := RunEntitySync(context.Background(), store, ledger,
		models.SyncEntityContacts, models.SyncDirectionPush, Options{UserId: 3})
	if err != nil {
		t.Fatalf("initial sync: %v", err)
	}
	firstLogId := results[0].LogId

	// the upstream problem goes away
	delete(ledger.failContactNames, "Broken Co")

	retried, err := RetryFromLog(context.Background(), store, ledger, firstLogId, 3)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(retried) != 1 || retried[0].Status != models.SyncLogStatusSuccess {
		t.Fatalf("retry should succeed: %+v", retried)
	}
	if retried[0].Processed != 1 {
		t.Fatalf("retry must only touch the failed record, processed %d", retried[0].Processed)
	}

	// the second upsert batch carries only the previously failed record
	last := ledger.upsertedContacts[len(ledger.upsertedContacts)-1]
	if len(last) != 1 || last[0].Name != "Broken Co" {
		t.Fatalf("unexpected retry batch: %+v", last)
	}
	if store.clients[bad.ID].XeroId == "" {
		t.Fatalf("retried record must now be synced")
	}
	_ = good

	// the original log row is untouched and a new one exists
	if store.logs[firstLogId].Status != models.SyncLogStatusWarning {
		t.Fatalf("original log must keep its terminal status")
	}
	if retried[0].LogId == firstLogId {
		t.Fatalf("retry must append a new log row")
	}
}

func TestRetryRejectsPullsAndCleanRuns(t *testing.T) {
	store := newMemStore()
	ledger := newFakeLedger()

	// a clean pull run
	results, err := RunEntitySync(context.Background(), store, ledger,
		models.SyncEntityContacts, models.SyncDirectionPull, Options{})
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if _, err := RetryFromLog(context.Background(), store, ledger, results[0].LogId, 0); err == nil {
		t.Fatalf("pull runs must not be retriable")
	}

	// a clean push run has nothing to retry
	seedClient(t, store, "Fine Co", "fine@ok.example")
	results, err = RunEntitySync(context.Background(), store, ledger,
		models.SyncEntityContacts, models.SyncDirectionPush, Options{})
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	_, err = RetryFromLog(context.Background(), store, ledger, results[0].LogId, 0)
	if !errors.Is(err, ErrNothingToRetry) {
		t.Fatalf("got %v, want ErrNothingToRetry", err)
	}
}

func TestRetryUnknownLog(t *testing.T) {
	store := newMemStore()
	if _, err := RetryFromLog(context.Background(), store, newFakeLedger(), 404, 0); err == nil {
		t.Fatalf("expected an error for a missing log id")
	}
}
