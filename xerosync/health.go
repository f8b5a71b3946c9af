package xerosync

import (
	"context"
	"time"

	"github.com/arkline-sg/backoffice_backend/models"
)

const (
	HealthHealthy  = "healthy"
	HealthWarning  = "warning"
	HealthCritical = "critical"

	statsWindow        = 30 * 24 * time.Hour
	failureWindow      = 24 * time.Hour
	tokenWarnThreshold = 30 * time.Minute

	// a single failed run needs attention; repeated failures mean the sync
	// setup itself is broken
	repeatedFailureThreshold = 2
)

type HealthFailure struct {
	LogId     uint              `json:"log_id"`
	Entity    models.SyncEntity `json:"entity"`
	Message   string            `json:"message"`
	Timestamp time.Time         `json:"timestamp"`
}

// Health is the aggregate snapshot behind GET /api/sync/health.
type Health struct {
	Status            string                            `json:"status"`
	Database          bool                              `json:"database"`
	Connected         bool                              `json:"connected"`
	TenantName        string                            `json:"tenant_name,omitempty"`
	TokenExpiresInMin *int64                            `json:"token_expires_in_minutes,omitempty"`
	LastSyncAt        *time.Time                        `json:"last_sync_at,omitempty"`
	Stats             *LogStats                         `json:"stats,omitempty"`
	EntityCounts      map[models.SyncEntity]EntityCount `json:"entity_counts,omitempty"`
	PendingConflicts  int                               `json:"pending_conflicts"`
	RecentFailures    []HealthFailure                   `json:"recent_failures,omitempty"`
	Issues            []string                          `json:"issues,omitempty"`
}

// ComputeHealth grades the sync setup. Critical means syncs cannot work right
// now (no database, no usable connection); warning means they work but need
// attention (expiring token, failures, low success rate, pending conflicts).
func ComputeHealth(ctx context.Context, store Store) *Health {
	now := time.Now().UTC()
	health := &Health{Status: HealthHealthy, Database: true}

	if err := store.Ping(ctx); err != nil {
		health.Database = false
		health.Status = HealthCritical
		health.Issues = append(health.Issues, "database is unreachable: "+err.Error())
		return health
	}

	conn, err := store.Connection(ctx)
	if err != nil {
		health.Status = HealthCritical
		health.Issues = append(health.Issues, "cannot read xero connection: "+err.Error())
		return health
	}
	if conn == nil || conn.Status != models.XeroConnectionStatusConnected {
		health.Status = HealthCritical
		health.Issues = append(health.Issues, "xero is not connected")
	} else {
		health.Connected = true
		health.TenantName = conn.TenantName
		health.LastSyncAt = conn.LastSyncAt
		if conn.TokenExpiresAt != nil {
			mins := int64(conn.TokenExpiresAt.Sub(now).Minutes())
			health.TokenExpiresInMin = &mins
			if mins <= 0 {
				health.Status = HealthCritical
				health.Issues = append(health.Issues, "xero access token has expired")
			} else if conn.TokenExpiresAt.Sub(now) < tokenWarnThreshold {
				health.markWarning()
				health.Issues = append(health.Issues, "xero access token expires soon")
			}
		}
	}

	if stats, err := store.Stats(ctx, now.Add(-statsWindow)); err == nil {
		health.Stats = stats
		terminal := stats.Total - stats.InProgress
		if terminal > 0 && stats.SuccessRate < 0.9 {
			health.markWarning()
			health.Issues = append(health.Issues, "sync success rate below 90% over the last 30 days")
		}
	}

	if counts, err := store.EntityCounts(ctx); err == nil {
		health.EntityCounts = counts
	}

	if conflicts, err := store.PendingConflicts(ctx, ""); err == nil {
		health.PendingConflicts = len(conflicts)
		if len(conflicts) > 0 {
			health.markWarning()
			health.Issues = append(health.Issues, "there are unresolved sync conflicts")
		}
	}

	if failures, err := store.RecentFailures(ctx, now.Add(-failureWindow), 5); err == nil {
		for _, f := range failures {
			health.RecentFailures = append(health.RecentFailures, HealthFailure{
				LogId:     f.ID,
				Entity:    f.Entity,
				Message:   f.ErrorMessage,
				Timestamp: f.CreatedAt,
			})
		}
		switch {
		case len(failures) >= repeatedFailureThreshold:
			health.Status = HealthCritical
			health.Issues = append(health.Issues, "sync runs are failing repeatedly in the last 24 hours")
		case len(failures) > 0:
			health.markWarning()
			health.Issues = append(health.Issues, "sync runs failed in the last 24 hours")
		}
	}

	return health
}

// markWarning never downgrades critical.
func (h *Health) markWarning() {
	if h.Status == HealthHealthy {
		h.Status = HealthWarning
	}
}
