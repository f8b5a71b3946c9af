package models

import (
	"errors"
	"strings"
)

type UserRole string

const (
	UserRoleAdmin UserRole = "A"
	UserRoleStaff UserRole = "S"
)

type PaymentTerms string

const (
	PaymentTermsNet15        PaymentTerms = "Net15"
	PaymentTermsNet30        PaymentTerms = "Net30"
	PaymentTermsNet60        PaymentTerms = "Net60"
	PaymentTermsDueOnReceipt PaymentTerms = "DueOnReceipt"
)

type InvoiceStatus string

const (
	InvoiceStatusDraft      InvoiceStatus = "Draft"
	InvoiceStatusSubmitted  InvoiceStatus = "Submitted"
	InvoiceStatusAuthorised InvoiceStatus = "Authorised"
	InvoiceStatusPaid       InvoiceStatus = "Paid"
	InvoiceStatusVoided     InvoiceStatus = "Voided"
)

type QuotationStatus string

const (
	QuotationStatusDraft    QuotationStatus = "Draft"
	QuotationStatusSent     QuotationStatus = "Sent"
	QuotationStatusAccepted QuotationStatus = "Accepted"
	QuotationStatusDeclined QuotationStatus = "Declined"
)

// SyncDirection is the direction of one sync operation against the ledger.
type SyncDirection string

const (
	SyncDirectionPull SyncDirection = "PULL"
	SyncDirectionPush SyncDirection = "PUSH"
	SyncDirectionBoth SyncDirection = "BOTH"
)

// ParseSyncDirection accepts the wire values used by the sync trigger API.
func ParseSyncDirection(s string) (SyncDirection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "to_xero", "push":
		return SyncDirectionPush, nil
	case "from_xero", "pull":
		return SyncDirectionPull, nil
	case "bidirectional", "both":
		return SyncDirectionBoth, nil
	default:
		return "", errors.New("invalid sync direction")
	}
}

// SyncEntity identifies one syncable entity type.
type SyncEntity string

const (
	SyncEntityContacts SyncEntity = "CONTACTS"
	SyncEntityInvoices SyncEntity = "INVOICES"
	SyncEntityBills    SyncEntity = "BILLS"
	SyncEntityPayments SyncEntity = "PAYMENTS"
	SyncEntityAll      SyncEntity = "ALL"
)

func ParseSyncEntity(s string) (SyncEntity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "contacts", "clients", "vendors":
		return SyncEntityContacts, nil
	case "invoices":
		return SyncEntityInvoices, nil
	case "bills":
		return SyncEntityBills, nil
	case "payments":
		return SyncEntityPayments, nil
	case "all":
		return SyncEntityAll, nil
	default:
		return "", errors.New("invalid sync entity")
	}
}

// SyncLogStatus is the lifecycle status of one sync attempt.
// IN_PROGRESS transitions exactly once to SUCCESS, WARNING or ERROR.
type SyncLogStatus string

const (
	SyncLogStatusInProgress SyncLogStatus = "IN_PROGRESS"
	SyncLogStatusSuccess    SyncLogStatus = "SUCCESS"
	SyncLogStatusWarning    SyncLogStatus = "WARNING"
	SyncLogStatusError      SyncLogStatus = "ERROR"
)

func (s SyncLogStatus) Terminal() bool {
	return s == SyncLogStatusSuccess || s == SyncLogStatusWarning || s == SyncLogStatusError
}

type ConflictType string

const (
	ConflictTypeDataMismatch      ConflictType = "DATA_MISMATCH"
	ConflictTypeDuplicateDetected ConflictType = "DUPLICATE_DETECTED"
	ConflictTypeValidationError   ConflictType = "VALIDATION_ERROR"
	ConflictTypePermissionDenied  ConflictType = "PERMISSION_DENIED"
	ConflictTypeMissingDependency ConflictType = "MISSING_DEPENDENCY"
)

type ConflictStatus string

const (
	ConflictStatusPending  ConflictStatus = "PENDING"
	ConflictStatusResolved ConflictStatus = "RESOLVED"
)

type ConflictResolution string

const (
	ConflictResolutionUseLocal ConflictResolution = "use_local"
	ConflictResolutionUseXero  ConflictResolution = "use_xero"
	ConflictResolutionManual   ConflictResolution = "manual"
)

func ParseConflictResolution(s string) (ConflictResolution, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "use_local":
		return ConflictResolutionUseLocal, nil
	case "use_xero":
		return ConflictResolutionUseXero, nil
	case "manual":
		return ConflictResolutionManual, nil
	default:
		return "", errors.New("invalid conflict resolution")
	}
}

const (
	XeroConnectionStatusConnected    = "connected"
	XeroConnectionStatusDisconnected = "disconnected"
	XeroConnectionStatusError        = "error"
)
