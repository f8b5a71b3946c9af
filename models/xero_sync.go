package models

import "time"

// XeroConnection is the single row describing the link to the Xero tenant.
// WatermarksJSON holds the per-entity pull watermark state.
type XeroConnection struct {
	ID             uint       `gorm:"primary_key" json:"id"`
	TenantName     string     `gorm:"size:255" json:"tenant_name"`
	Status         string     `gorm:"size:20;not null" json:"status"`
	AccessToken    string     `gorm:"type:text" json:"-"`
	TokenExpiresAt *time.Time `json:"token_expires_at"`
	WatermarksJSON []byte     `gorm:"type:json" json:"watermarks"`
	LastSyncAt     *time.Time `json:"last_sync_at"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// SyncLogEntry is the append-only record of one sync attempt. A row is created
// IN_PROGRESS when the operation starts and transitions exactly once to a
// terminal status; retries append new rows instead of mutating old ones.
type SyncLogEntry struct {
	ID               uint          `gorm:"primary_key" json:"id"`
	UserId           int           `gorm:"index" json:"user_id"`
	Direction        SyncDirection `gorm:"size:10;not null" json:"direction"`
	Entity           SyncEntity    `gorm:"size:20;index;not null" json:"entity"`
	Status           SyncLogStatus `gorm:"size:20;index;not null" json:"status"`
	RecordsProcessed int           `json:"records_processed"`
	RecordsSucceeded int           `json:"records_succeeded"`
	RecordsFailed    int           `json:"records_failed"`
	Message          string        `gorm:"type:text" json:"message"`
	DetailsJSON      []byte        `gorm:"type:json" json:"details"`
	ErrorMessage     string        `gorm:"type:text" json:"error_message,omitempty"`
	ErrorStack       string        `gorm:"type:text" json:"error_stack,omitempty"`
	DurationMs       int64         `json:"duration_ms"`
	CreatedAt        time.Time     `gorm:"autoCreateTime;index" json:"timestamp"`
	UpdatedAt        time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

// Conflict is a pending reconciliation item: both sides of one logical record
// changed since the last common sync point. Resolution is always explicit.
type Conflict struct {
	ID              uint               `gorm:"primary_key" json:"id"`
	Entity          SyncEntity         `gorm:"size:20;index;not null" json:"entity"`
	EntityId        int                `gorm:"index;not null" json:"entity_id"`
	EntityName      string             `gorm:"size:255" json:"entity_name"`
	ConflictType    ConflictType       `gorm:"size:30;not null" json:"conflict_type"`
	LocalData       []byte             `gorm:"type:json" json:"local_data"`
	XeroData        []byte             `gorm:"type:json" json:"xero_data"`
	SuggestedAction string             `gorm:"type:text" json:"suggested_action"`
	Status          ConflictStatus     `gorm:"size:20;index;not null" json:"status"`
	Resolution      ConflictResolution `gorm:"size:20" json:"resolution,omitempty"`
	ResolvedBy      int                `json:"resolved_by,omitempty"`
	Notes           string             `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt       time.Time          `gorm:"autoCreateTime" json:"created_at"`
	ResolvedAt      *time.Time         `json:"resolved_at,omitempty"`
}
