package xerosync

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arkline-sg/backoffice_backend/config"
	"github.com/arkline-sg/backoffice_backend/models"
	"github.com/arkline-sg/backoffice_backend/utils"
)

func getStore() Store {
	return NewStore(config.GetDB())
}

// getLedger builds a ledger client from the stored connection. Handlers that
// only read local state never call this.
func getLedger(c *gin.Context, store Store) (Ledger, bool) {
	conn, err := store.Connection(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	if conn == nil || conn.Status != models.XeroConnectionStatusConnected {
		c.JSON(http.StatusConflict, gin.H{"error": "xero is not connected"})
		return nil, false
	}
	ledger, err := newXeroClient(conn)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	return ledger, true
}

func currentUserId(c *gin.Context) int {
	userId, _ := utils.GetUserIdFromContext(c.Request.Context())
	return userId
}

func syncErrorStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotConnected):
		return http.StatusConflict
	case errors.Is(err, ErrSyncInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// SyncEntityHandler handles POST /api/sync/:entityType. The direction comes
// from the body and defaults to bidirectional.
func SyncEntityHandler(c *gin.Context) {
	entity, err := models.ParseSyncEntity(c.Param("entityType"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if entity == models.SyncEntityAll {
		c.JSON(http.StatusBadRequest, gin.H{"error": "use /api/sync/bulk for all entities"})
		return
	}

	var body struct {
		Direction string `json:"direction"`
		RecordIds []int  `json:"record_ids"`
	}
	if err := c.ShouldBindJSON(&body); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	direction := models.SyncDirectionBoth
	if body.Direction != "" {
		direction, err = models.ParseSyncDirection(body.Direction)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	store := getStore()
	ledger, ok := getLedger(c, store)
	if !ok {
		return
	}

	results, err := RunEntitySync(c.Request.Context(), store, ledger, entity, direction, Options{
		UserId:    currentUserId(c),
		RecordIds: body.RecordIds,
	})
	if err != nil {
		c.JSON(syncErrorStatus(err), gin.H{"error": err.Error(), "results": results})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// BulkSyncHandler handles POST /api/sync/bulk: every entity in dependency
// order, one direction for the whole run.
func BulkSyncHandler(c *gin.Context) {
	var body struct {
		Direction string `json:"direction"`
	}
	if err := c.ShouldBindJSON(&body); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	direction := models.SyncDirectionBoth
	if body.Direction != "" {
		var err error
		direction, err = models.ParseSyncDirection(body.Direction)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	store := getStore()
	ledger, ok := getLedger(c, store)
	if !ok {
		return
	}

	bulk, err := SyncAll(c.Request.Context(), store, ledger, direction, Options{UserId: currentUserId(c)})
	if err != nil {
		c.JSON(syncErrorStatus(err), gin.H{"error": err.Error(), "results": bulk.Results})
		return
	}
	c.JSON(http.StatusOK, bulk)
}

// BulkSyncStatusHandler handles GET /api/sync/bulk: per-entity sync coverage
// plus whether anything is running right now.
func BulkSyncStatusHandler(c *gin.Context) {
	store := getStore()
	ctx := c.Request.Context()

	counts, err := store.EntityCounts(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	entities := gin.H{}
	for entity, count := range counts {
		pct := 100.0
		if count.Total > 0 {
			pct = float64(count.Synced) / float64(count.Total) * 100
		}
		entities[string(entity)] = gin.H{
			"total":           count.Total,
			"synced":          count.Synced,
			"unsynced":        count.Total - count.Synced,
			"sync_percentage": pct,
		}
	}

	running, _, err := store.ListLogs(ctx, LogFilter{Status: models.SyncLogStatusInProgress, Limit: 10})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"entities":    entities,
		"in_progress": len(running) > 0,
		"running":     running,
	})
}

// ImportFromXeroHandler handles POST /api/sync/import-from-xero: a pull-only
// run, either one entity or everything in dependency order. Typically the
// first thing done after connecting.
func ImportFromXeroHandler(c *gin.Context) {
	var body struct {
		Entity string `json:"entity"`
	}
	if err := c.ShouldBindJSON(&body); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	store := getStore()
	ledger, ok := getLedger(c, store)
	if !ok {
		return
	}

	if body.Entity != "" {
		entity, err := models.ParseSyncEntity(body.Entity)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if entity != models.SyncEntityAll {
			results, err := RunEntitySync(c.Request.Context(), store, ledger, entity,
				models.SyncDirectionPull, Options{UserId: currentUserId(c)})
			if err != nil {
				c.JSON(syncErrorStatus(err), gin.H{"error": err.Error(), "results": results})
				return
			}
			c.JSON(http.StatusOK, gin.H{"results": results})
			return
		}
	}

	bulk, err := SyncAll(c.Request.Context(), store, ledger, models.SyncDirectionPull, Options{UserId: currentUserId(c)})
	if err != nil {
		c.JSON(syncErrorStatus(err), gin.H{"error": err.Error(), "results": bulk.Results})
		return
	}
	c.JSON(http.StatusOK, bulk)
}

// ListConflictsHandler handles GET /api/sync/conflicts.
func ListConflictsHandler(c *gin.Context) {
	entity := models.SyncEntity("")
	if raw := c.Query("entity"); raw != "" {
		parsed, err := models.ParseSyncEntity(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		entity = parsed
	}
	conflicts, err := getStore().PendingConflicts(c.Request.Context(), entity)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conflicts": conflicts, "count": len(conflicts)})
}

// ResolveConflictHandler handles POST /api/sync/conflicts.
func ResolveConflictHandler(c *gin.Context) {
	var body struct {
		ConflictId uint   `json:"conflict_id" binding:"required"`
		Resolution string `json:"resolution" binding:"required"`
		Notes      string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conflict_id and resolution are required"})
		return
	}
	resolution, err := models.ParseConflictResolution(body.Resolution)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	store := getStore()
	var ledger Ledger
	if resolution == models.ConflictResolutionUseLocal {
		var ok bool
		ledger, ok = getLedger(c, store)
		if !ok {
			return
		}
	}

	conflict, err := ResolveConflict(c.Request.Context(), store, ledger, body.ConflictId, resolution, currentUserId(c), body.Notes)
	if err != nil {
		switch {
		case errors.Is(err, ErrConflictNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, ErrConflictResolved):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, conflict)
}

func logFilterFromQuery(c *gin.Context) (LogFilter, error) {
	filter := LogFilter{}
	if raw := c.Query("entity"); raw != "" {
		entity, err := models.ParseSyncEntity(raw)
		if err != nil {
			return filter, err
		}
		filter.Entity = entity
	}
	if raw := c.Query("direction"); raw != "" {
		direction, err := models.ParseSyncDirection(raw)
		if err != nil {
			return filter, err
		}
		filter.Direction = direction
	}
	if raw := c.Query("status"); raw != "" {
		filter.Status = models.SyncLogStatus(raw)
	}
	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, fmt.Errorf("since must be RFC3339: %w", err)
		}
		filter.Since = &since
	}
	filter.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	filter.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	return filter, nil
}

// ListSyncLogsHandler handles GET /api/sync-logs.
func ListSyncLogsHandler(c *gin.Context) {
	filter, err := logFilterFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	entries, total, err := getStore().ListLogs(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": entries, "total": total})
}

// SyncLogStatsHandler handles GET /api/sync-logs/stats over a day window.
func SyncLogStatsHandler(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "30"))
	if err != nil || days <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a positive integer"})
		return
	}
	since := time.Now().UTC().AddDate(0, 0, -days)
	stats, err := getStore().Stats(c.Request.Context(), since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// RetrySyncLogHandler handles POST /api/sync-logs/:id/retry.
func RetrySyncLogHandler(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid log id"})
		return
	}

	store := getStore()
	ledger, ok := getLedger(c, store)
	if !ok {
		return
	}

	results, err := RetryFromLog(c.Request.Context(), store, ledger, uint(id), currentUserId(c))
	if err != nil {
		status := syncErrorStatus(err)
		if errors.Is(err, ErrNothingToRetry) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error(), "results": results})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// ExportSyncLogsHandler handles GET /api/sync-logs/export as xlsx.
func ExportSyncLogsHandler(c *gin.Context) {
	filter, err := logFilterFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	filter.Limit = 5000
	filter.Offset = 0

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", `attachment; filename="sync-logs.xlsx"`)
	if err := ExportLogsExcel(c.Request.Context(), getStore(), filter, c.Writer); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// SyncHealthHandler handles GET /api/sync/health.
func SyncHealthHandler(c *gin.Context) {
	health := ComputeHealth(c.Request.Context(), getStore())
	status := http.StatusOK
	if health.Status == HealthCritical {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, health)
}

// XeroStatusHandler handles GET /api/xero/status.
func XeroStatusHandler(c *gin.Context) {
	conn, err := getStore().Connection(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if conn == nil {
		c.JSON(http.StatusOK, gin.H{"status": models.XeroConnectionStatusDisconnected})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":           conn.Status,
		"tenant_name":      conn.TenantName,
		"token_expires_at": conn.TokenExpiresAt,
		"last_sync_at":     conn.LastSyncAt,
	})
}

// XeroConnectHandler handles POST /api/xero/connect. Token acquisition is the
// operator's problem; this stores the tenant and credentials the sync engine
// uses from then on.
func XeroConnectHandler(c *gin.Context) {
	var body struct {
		TenantName       string `json:"tenant_name" binding:"required"`
		AccessToken      string `json:"access_token" binding:"required"`
		ExpiresInSeconds int    `json:"expires_in_seconds"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_name and access_token are required"})
		return
	}

	store := getStore()
	ctx := c.Request.Context()
	conn, err := store.Connection(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if conn == nil {
		conn = &models.XeroConnection{}
	}
	conn.TenantName = body.TenantName
	conn.AccessToken = body.AccessToken
	conn.Status = models.XeroConnectionStatusConnected
	if body.ExpiresInSeconds > 0 {
		expires := time.Now().UTC().Add(time.Duration(body.ExpiresInSeconds) * time.Second)
		conn.TokenExpiresAt = &expires
	} else {
		conn.TokenExpiresAt = nil
	}
	if err := store.SaveConnection(ctx, conn); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	config.GetLogger().WithField("tenant", conn.TenantName).Info("xero connected")
	c.JSON(http.StatusOK, gin.H{"status": conn.Status, "tenant_name": conn.TenantName})
}

// XeroDisconnectHandler handles POST /api/xero/disconnect. Sync metadata on
// local records is kept so a later reconnect does not re-create everything.
func XeroDisconnectHandler(c *gin.Context) {
	store := getStore()
	ctx := c.Request.Context()
	conn, err := store.Connection(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if conn == nil {
		c.JSON(http.StatusOK, gin.H{"status": models.XeroConnectionStatusDisconnected})
		return
	}
	conn.Status = models.XeroConnectionStatusDisconnected
	conn.AccessToken = ""
	conn.TokenExpiresAt = nil
	if err := store.SaveConnection(ctx, conn); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	config.GetLogger().Info("xero disconnected")
	c.JSON(http.StatusOK, gin.H{"status": conn.Status})
}

// PushPaymentIfConnected is called from the payments API after a local
// payment is recorded. A missing connection or a push failure never fails the
// local write; it just means the payment stays unsynced.
func PushPaymentIfConnected(c *gin.Context, payment *models.Payment) {
	store := getStore()
	conn, err := store.Connection(c.Request.Context())
	if err != nil || conn == nil || conn.Status != models.XeroConnectionStatusConnected {
		return
	}
	ledger, err := newXeroClient(conn)
	if err != nil {
		config.GetLogger().Error("xero client init failed: ", err)
		return
	}
	if err := PushPayment(c.Request.Context(), store, ledger, payment); err != nil {
		config.GetLogger().WithField("paymentId", payment.ID).Warn("payment push to xero failed: ", err)
	}
}
