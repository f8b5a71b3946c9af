package api

import (
	"github.com/gin-gonic/gin"

	"github.com/arkline-sg/backoffice_backend/middlewares"
	"github.com/arkline-sg/backoffice_backend/xerosync"
)

// RegisterRoutes wires the whole REST surface onto the router. Everything
// except login sits behind the session.
func RegisterRoutes(r *gin.Engine) {
	r.POST("/api/auth/login", LoginHandler)

	authed := r.Group("/api", middlewares.RequireUser())

	authed.GET("/auth/me", MeHandler)

	authed.GET("/clients", ListClientsHandler)
	authed.POST("/clients", CreateClientHandler)
	authed.GET("/clients/:id", GetClientHandler)
	authed.PUT("/clients/:id", UpdateClientHandler)

	authed.GET("/vendors", ListVendorsHandler)
	authed.POST("/vendors", CreateVendorHandler)
	authed.GET("/vendors/:id", GetVendorHandler)
	authed.PUT("/vendors/:id", UpdateVendorHandler)

	authed.GET("/invoices", ListInvoicesHandler)
	authed.POST("/invoices", CreateInvoiceHandler)
	authed.GET("/invoices/:id", GetInvoiceHandler)

	authed.GET("/bills", ListBillsHandler)
	authed.POST("/bills", CreateBillHandler)
	authed.GET("/bills/:id", GetBillHandler)

	authed.GET("/payments", ListPaymentsHandler)
	authed.POST("/payments", CreatePaymentHandler)
	authed.GET("/payments/:id", GetPaymentHandler)

	authed.GET("/quotations", ListQuotationsHandler)
	authed.POST("/quotations", CreateQuotationHandler)
	authed.POST("/quotations/:id/accept", AcceptQuotationHandler)

	authed.GET("/settings", ListSettingsHandler)
	authed.POST("/settings", middlewares.RequireAdmin(), SetSettingHandler)

	authed.POST("/sync/bulk", xerosync.BulkSyncHandler)
	authed.GET("/sync/bulk", xerosync.BulkSyncStatusHandler)
	authed.POST("/sync/import-from-xero", xerosync.ImportFromXeroHandler)
	authed.GET("/sync/conflicts", xerosync.ListConflictsHandler)
	authed.POST("/sync/conflicts", xerosync.ResolveConflictHandler)
	authed.GET("/sync/health", xerosync.SyncHealthHandler)
	authed.POST("/sync/:entityType", xerosync.SyncEntityHandler)

	authed.GET("/sync-logs", xerosync.ListSyncLogsHandler)
	authed.GET("/sync-logs/stats", xerosync.SyncLogStatsHandler)
	authed.GET("/sync-logs/export", xerosync.ExportSyncLogsHandler)
	authed.POST("/sync-logs/:id/retry", xerosync.RetrySyncLogHandler)

	authed.GET("/xero/status", xerosync.XeroStatusHandler)
	authed.POST("/xero/connect", middlewares.RequireAdmin(), xerosync.XeroConnectHandler)
	authed.POST("/xero/disconnect", middlewares.RequireAdmin(), xerosync.XeroDisconnectHandler)
}
