package xerosync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arkline-sg/backoffice_backend/models"
)

func TestHealthHealthyOnQuietSystem(t *testing.T) {
	store := newMemStore()
	health := ComputeHealth(context.Background(), store)
	if health.Status != HealthHealthy {
		t.Fatalf("got %s, want healthy: issues %v", health.Status, health.Issues)
	}
	if !health.Connected || health.TenantName == "" {
		t.Fatalf("connection details missing: %+v", health)
	}
}

func TestHealthCriticalWhenDatabaseDown(t *testing.T) {
	store := newMemStore()
	store.pingErr = errors.New("dial tcp: connection refused")
	health := ComputeHealth(context.Background(), store)
	if health.Status != HealthCritical || health.Database {
		t.Fatalf("db outage must be critical: %+v", health)
	}
}

func TestHealthCriticalWhenDisconnected(t *testing.T) {
	store := newMemStore()
	store.conn.Status = models.XeroConnectionStatusDisconnected
	health := ComputeHealth(context.Background(), store)
	if health.Status != HealthCritical || health.Connected {
		t.Fatalf("missing connection must be critical: %+v", health)
	}
}

func TestHealthCriticalWhenTokenExpired(t *testing.T) {
	store := newMemStore()
	expired := time.Now().UTC().Add(-time.Hour)
	store.conn.TokenExpiresAt = &expired
	health := ComputeHealth(context.Background(), store)
	if health.Status != HealthCritical {
		t.Fatalf("expired token must be critical: %+v", health)
	}
}

func TestHealthWarningWhenTokenExpiresSoon(t *testing.T) {
	store := newMemStore()
	soon := time.Now().UTC().Add(10 * time.Minute)
	store.conn.TokenExpiresAt = &soon
	health := ComputeHealth(context.Background(), store)
	if health.Status != HealthWarning {
		t.Fatalf("imminent expiry must be a warning: %+v", health)
	}
}

func TestHealthWarningOnPendingConflictsAndFailures(t *testing.T) {
	store := newMemStore()
	conflict, err := newConflict(models.SyncEntityContacts, 1, "Acme",
		models.ConflictTypeDataMismatch, XeroContact{}, XeroContact{}, "review")
	if err != nil {
		t.Fatalf("build conflict: %v", err)
	}
	if err := store.CreateConflict(context.Background(), conflict); err != nil {
		t.Fatalf("seed conflict: %v", err)
	}

	health := ComputeHealth(context.Background(), store)
	if health.Status != HealthWarning || health.PendingConflicts != 1 {
		t.Fatalf("pending conflicts must warn: %+v", health)
	}

	entry := &models.SyncLogEntry{
		Entity: models.SyncEntityInvoices, Direction: models.SyncDirectionPush,
		Status: models.SyncLogStatusInProgress,
	}
	if err := store.CreateLog(context.Background(), entry); err != nil {
		t.Fatalf("seed log: %v", err)
	}
	entry.Status = models.SyncLogStatusError
	entry.ErrorMessage = "xero api: 500"
	if err := store.CompleteLog(context.Background(), entry); err != nil {
		t.Fatalf("complete log: %v", err)
	}

	health = ComputeHealth(context.Background(), store)
	if health.Status != HealthWarning || len(health.RecentFailures) != 1 {
		t.Fatalf("recent failures must be surfaced: %+v", health)
	}
}

func TestHealthSuccessRateThreshold(t *testing.T) {
	store := newMemStore()
	add := func(status models.SyncLogStatus) {
		entry := &models.SyncLogEntry{
			Entity: models.SyncEntityContacts, Direction: models.SyncDirectionPull,
			Status: models.SyncLogStatusInProgress,
		}
		if err := store.CreateLog(context.Background(), entry); err != nil {
			t.Fatalf("seed log: %v", err)
		}
		entry.Status = status
		if err := store.CompleteLog(context.Background(), entry); err != nil {
			t.Fatalf("complete log: %v", err)
		}
	}
	// 6 of 10 succeeded, well under the 90% bar
	for i := 0; i < 6; i++ {
		add(models.SyncLogStatusSuccess)
	}
	for i := 0; i < 4; i++ {
		add(models.SyncLogStatusError)
	}
	// age the failures out of the 24h repeated-failure window so only the
	// 30-day success rate is in play
	for _, entry := range store.logs {
		if entry.Status == models.SyncLogStatusError {
			entry.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
		}
	}

	health := ComputeHealth(context.Background(), store)
	if health.Status != HealthWarning {
		t.Fatalf("low success rate must warn: %+v", health)
	}
	if health.Stats == nil || health.Stats.Total != 10 {
		t.Fatalf("stats not aggregated: %+v", health.Stats)
	}
}

func TestHealthCriticalOnRepeatedFailures(t *testing.T) {
	store := newMemStore()
	for i := 0; i < 2; i++ {
		entry := &models.SyncLogEntry{
			Entity: models.SyncEntityContacts, Direction: models.SyncDirectionPull,
			Status: models.SyncLogStatusInProgress,
		}
		if err := store.CreateLog(context.Background(), entry); err != nil {
			t.Fatalf("seed log: %v", err)
		}
		entry.Status = models.SyncLogStatusError
		entry.ErrorMessage = "xero api: 500"
		if err := store.CompleteLog(context.Background(), entry); err != nil {
			t.Fatalf("complete log: %v", err)
		}
	}

	health := ComputeHealth(context.Background(), store)
	if health.Status != HealthCritical {
		t.Fatalf("repeated failures in a day must be critical: %+v", health)
	}
	if len(health.RecentFailures) != 2 {
		t.Fatalf("both failures must be surfaced: %+v", health.RecentFailures)
	}
}
