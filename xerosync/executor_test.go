package xerosync

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arkline-sg/backoffice_backend/models"
	"github.com/arkline-sg/backoffice_backend/utils"
)

func seedClient(t *testing.T, store *memStore, name, email string) *models.Client {
	t.Helper()
	client := &models.Client{
		Name:         name,
		Email:        email,
		PaymentTerms: models.PaymentTermsNet30,
		CurrencyCode: "SGD",
		IsActive:     utils.NewTrue(),
	}
	if err := store.SaveClient(context.Background(), client); err != nil {
		t.Fatalf("seed client: %v", err)
	}
	return client
}

func seedInvoice(t *testing.T, store *memStore, clientId int, number string) *models.Invoice {
	t.Helper()
	total := decimal.RequireFromString("500.00")
	invoice := &models.Invoice{
		ClientId:      clientId,
		InvoiceNumber: number,
		InvoiceDate:   time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		DueDate:       time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		Status:        models.InvoiceStatusAuthorised,
		CurrencyCode:  "SGD",
		SubTotal:      total,
		Total:         total,
		AmountDue:     total,
		Lines: []*models.InvoiceLine{
			{Description: "Services", Quantity: decimal.NewFromInt(1),
				UnitAmount: total, AccountCode: "200", LineAmount: total},
		},
	}
	if err := store.SaveInvoice(context.Background(), invoice); err != nil {
		t.Fatalf("seed invoice: %v", err)
	}
	return invoice
}

func TestPushContactsPartialFailureIsolation(t *testing.T) {
	store := newMemStore()
	ledger := newFakeLedger()
	good1 := seedClient(t, store, "Good One", "one@ok.example")
	bad := seedClient(t, store, "Bad Apple", "bad@ok.example")
	good2 := seedClient(t, store, "Good Two", "two@ok.example")
	ledger.failContactNames["Bad Apple"] = "Account number already exists"

	results, err := RunEntitySync(context.Background(), store, ledger,
		models.SyncEntityContacts, models.SyncDirectionPush, Options{UserId: 7})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	result := results[0]

	if result.Status != models.SyncLogStatusWarning {
		t.Fatalf("expected WARNING, got %s", result.Status)
	}
	if result.Processed != 3 || result.Succeeded != 2 || result.Failed != 1 {
		t.Fatalf("unexpected counts: %+v", result)
	}
	if store.clients[good1.ID].XeroId == "" || store.clients[good2.ID].XeroId == "" {
		t.Fatalf("good records must be synced despite the bad one")
	}
	if store.clients[bad.ID].XeroId != "" {
		t.Fatalf("failed record must stay unsynced")
	}

	entry := store.logs[result.LogId]
	if entry == nil || entry.Status != models.SyncLogStatusWarning {
		t.Fatalf("log entry not terminal WARNING: %+v", entry)
	}
	var details logDetails
	if err := json.Unmarshal(entry.DetailsJSON, &details); err != nil {
		t.Fatalf("decode details: %v", err)
	}
	if len(details.FailedRecordIds) != 1 || details.FailedRecordIds[0] != bad.ID {
		t.Fatalf("failed record ids not captured: %+v", details)
	}
}

func TestPushContactsAllFailedIsError(t *testing.T) {
	store := newMemStore()
	ledger := newFakeLedger()
	seedClient(t, store, "Only One", "only@ok.example")
	ledger.failContactNames["Only One"] = "rejected"

	results, err := RunEntitySync(context.Background(), store, ledger,
		models.SyncEntityContacts, models.SyncDirectionPush, Options{})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if results[0].Status != models.SyncLogStatusError {
		t.Fatalf("a run where nothing succeeded should be ERROR, got %s", results[0].Status)
	}
}

func TestPushSkipsCleanRecords(t *testing.T) {
	store := newMemStore()
	ledger := newFakeLedger()
	client := seedClient(t, store, "Clean Co", "clean@ok.example")
	client.XeroId = "contact-1"
	client.SyncHash = contactFingerprint(clientToContact(client))

	results, err := RunEntitySync(context.Background(), store, ledger,
		models.SyncEntityContacts, models.SyncDirectionPush, Options{})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if results[0].Processed != 0 || results[0].Status != models.SyncLogStatusSuccess {
		t.Fatalf("clean record should not be pushed: %+v", results[0])
	}
	if len(ledger.upsertedContacts) != 0 {
		t.Fatalf("no upsert call expected")
	}
}

func TestPushInvoiceRequiresSyncedClient(t *testing.T) {
	store := newMemStore()
	ledger := newFakeLedger()
	client := seedClient(t, store, "Unsynced Co", "u@ok.example")
	invoice := seedInvoice(t, store, client.ID, "INV-2001")

	results, err := RunEntitySync(context.Background(), store, ledger,
		models.SyncEntityInvoices, models.SyncDirectionPush, Options{})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	result := results[0]
	if result.Failed != 1 || result.Status != models.SyncLogStatusError {
		t.Fatalf("invoice without a synced client must fail: %+v", result)
	}
	if store.invoices[invoice.ID].XeroId != "" {
		t.Fatalf("invoice must stay unsynced")
	}
}

func TestPaymentsCannotBePushed(t *testing.T) {
	store := newMemStore()
	ledger := newFakeLedger()

	_, err := RunEntitySync(context.Background(), store, ledger,
		models.SyncEntityPayments, models.SyncDirectionPush, Options{})
	if err == nil {
		t.Fatalf("expected push of payments to be rejected")
	}

	// bidirectional quietly drops the push leg for pull-only entities
	results, err := RunEntitySync(context.Background(), store, ledger,
		models.SyncEntityPayments, models.SyncDirectionBoth, Options{})
	if err != nil {
		t.Fatalf("bidirectional payments: %v", err)
	}
	if len(results) != 1 || results[0].Direction != models.SyncDirectionPull {
		t.Fatalf("expected a single pull result, got %+v", results)
	}
}

func TestPullContactsCreatesAndSetsWatermark(t *testing.T) {
	store := newMemStore()
	ledger := newFakeLedger()
	updated := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	ledger.contacts = []XeroContact{
		{ContactID: "contact-77", Name: "New From Xero", EmailAddress: "n@x.example",
			IsCustomer: true, UpdatedDateUTC: updated},
		{ContactID: "contact-78", Name: "Xero Supplier",
			IsSupplier: true, UpdatedDateUTC: updated.Add(time.Hour)},
	}

	results, err := RunEntitySync(context.Background(), store, ledger,
		models.SyncEntityContacts, models.SyncDirectionPull, Options{})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if results[0].Succeeded != 2 {
		t.Fatalf("expected both contacts imported: %+v", results[0])
	}

	client, _ := store.ClientByXeroID(context.Background(), "contact-77")
	if client == nil || client.Name != "New From Xero" {
		t.Fatalf("customer contact not imported as client")
	}
	vendor, _ := store.VendorByXeroID(context.Background(), "contact-78")
	if vendor == nil {
		t.Fatalf("supplier contact not imported as vendor")
	}

	// the last-sync stamp on the connection must not revert the watermark
	// written during the run
	marks, _ := store.GetWatermarks(context.Background())
	if !marks[models.SyncEntityContacts].Equal(updated.Add(time.Hour)) {
		t.Fatalf("watermark should be the newest UpdatedDateUTC, got %v", marks[models.SyncEntityContacts])
	}
	if store.conn.LastSyncAt == nil {
		t.Fatalf("connection must be stamped with the run time")
	}

	// the next pull sees nothing new and leaves the watermark put
	results, err = RunEntitySync(context.Background(), store, ledger,
		models.SyncEntityContacts, models.SyncDirectionPull, Options{})
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if results[0].Processed != 0 {
		t.Fatalf("already-pulled contacts must be filtered by the watermark: %+v", results[0])
	}
	marks, _ = store.GetWatermarks(context.Background())
	if !marks[models.SyncEntityContacts].Equal(updated.Add(time.Hour)) {
		t.Fatalf("watermark lost after a no-op run: %v", marks[models.SyncEntityContacts])
	}
}

func TestPullConflictWhenBothSidesChanged(t *testing.T) {
	store := newMemStore()
	ledger := newFakeLedger()

	client := seedClient(t, store, "Drifted Co", "local@d.example")
	client.XeroId = "contact-5"
	client.SyncHash = "hash-at-last-sync" // neither side matches this anymore

	ledger.contacts = []XeroContact{{
		ContactID: "contact-5", Name: "Drifted Co", EmailAddress: "remote@d.example",
		IsCustomer: true, UpdatedDateUTC: time.Now().UTC(),
	}}

	results, err := RunEntitySync(context.Background(), store, ledger,
		models.SyncEntityContacts, models.SyncDirectionPull, Options{})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	result := results[0]
	if result.Conflicts != 1 || result.Status != models.SyncLogStatusWarning {
		t.Fatalf("expected one conflict and WARNING: %+v", result)
	}
	if store.clients[client.ID].Email != "local@d.example" {
		t.Fatalf("conflicting pull must not overwrite local data")
	}

	conflicts, _ := store.PendingConflicts(context.Background(), models.SyncEntityContacts)
	if len(conflicts) != 1 || conflicts[0].ConflictType != models.ConflictTypeDataMismatch {
		t.Fatalf("expected a pending DATA_MISMATCH conflict, got %+v", conflicts)
	}

	// the next pull of the same divergence must not file a second conflict
	ledger.contacts[0].UpdatedDateUTC = ledger.contacts[0].UpdatedDateUTC.Add(time.Minute)
	results, err = RunEntitySync(context.Background(), store, ledger,
		models.SyncEntityContacts, models.SyncDirectionPull, Options{})
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	conflicts, _ = store.PendingConflicts(context.Background(), models.SyncEntityContacts)
	if len(conflicts) != 1 {
		t.Fatalf("duplicate conflict filed for the same record: %d", len(conflicts))
	}
}

func TestPullRemoteWinsWhenLocalClean(t *testing.T) {
	store := newMemStore()
	ledger := newFakeLedger()

	client := seedClient(t, store, "Steady Co", "steady@s.example")
	client.XeroId = "contact-6"
	client.SyncHash = contactFingerprint(clientToContact(client)) // local untouched

	ledger.contacts = []XeroContact{{
		ContactID: "contact-6", Name: "Steady Co", EmailAddress: "updated@s.example",
		IsCustomer: true, UpdatedDateUTC: time.Now().UTC(),
	}}

	results, err := RunEntitySync(context.Background(), store, ledger,
		models.SyncEntityContacts, models.SyncDirectionPull, Options{})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if results[0].Conflicts != 0 || results[0].Succeeded != 1 {
		t.Fatalf("clean local record should take the remote change: %+v", results[0])
	}
	if store.clients[client.ID].Email != "updated@s.example" {
		t.Fatalf("remote change not applied")
	}
}

func TestPullDuplicateNameBecomesConflict(t *testing.T) {
	store := newMemStore()
	ledger := newFakeLedger()

	local := seedClient(t, store, "Same Name Pte Ltd", "local@same.example") // never synced
	ledger.contacts = []XeroContact{{
		ContactID: "contact-11", Name: "Same Name Pte Ltd", EmailAddress: "xero@same.example",
		IsCustomer: true, UpdatedDateUTC: time.Now().UTC(),
	}}

	results, err := RunEntitySync(context.Background(), store, ledger,
		models.SyncEntityContacts, models.SyncDirectionPull, Options{})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if results[0].Conflicts != 1 {
		t.Fatalf("expected a duplicate conflict: %+v", results[0])
	}
	conflicts, _ := store.PendingConflicts(context.Background(), models.SyncEntityContacts)
	if conflicts[0].ConflictType != models.ConflictTypeDuplicateDetected || conflicts[0].EntityId != local.ID {
		t.Fatalf("expected DUPLICATE_DETECTED on the local record, got %+v", conflicts[0])
	}
	if store.clients[local.ID].XeroId != "" {
		t.Fatalf("duplicate must not be auto-linked")
	}
	if len(store.clients) != 1 {
		t.Fatalf("duplicate must not create a second client")
	}
}

func TestPullPaymentMissingInvoiceIsConflict(t *testing.T) {
	store := newMemStore()
	ledger := newFakeLedger()
	ledger.payments = []XeroPayment{{
		PaymentID:      "payment-1",
		Invoice:        XeroInvoiceRef{InvoiceID: "invoice-unknown"},
		Amount:         decimal.RequireFromString("100.00"),
		Date:           time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC),
		UpdatedDateUTC: time.Now().UTC(),
	}}

	results, err := RunEntitySync(context.Background(), store, ledger,
		models.SyncEntityPayments, models.SyncDirectionPull, Options{})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if results[0].Conflicts != 1 {
		t.Fatalf("expected MISSING_DEPENDENCY conflict: %+v", results[0])
	}
	conflicts, _ := store.PendingConflicts(context.Background(), models.SyncEntityPayments)
	if conflicts[0].ConflictType != models.ConflictTypeMissingDependency {
		t.Fatalf("got %s, want MISSING_DEPENDENCY", conflicts[0].ConflictType)
	}
}

func TestPullHoldsWatermarkForMissingDependency(t *testing.T) {
	store := newMemStore()
	ledger := newFakeLedger()
	total := decimal.NewFromInt(100)
	updated := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	ledger.invoices = []XeroInvoice{{
		InvoiceID:     "invoice-90",
		Type:          invoiceTypeReceivable,
		Contact:       XeroContactRef{ContactID: "contact-90"},
		InvoiceNumber: "X-INV-90",
		Status:        "AUTHORISED",
		CurrencyCode:  "SGD",
		SubTotal:      total,
		Total:         total,
		AmountDue:     total,
		LineItems: []XeroLineItem{{Description: "Goods", Quantity: decimal.NewFromInt(1),
			UnitAmount: total, LineAmount: total}},
		UpdatedDateUTC: updated,
	}}

	results, err := RunEntitySync(context.Background(), store, ledger,
		models.SyncEntityInvoices, models.SyncDirectionPull, Options{})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if results[0].Conflicts != 1 {
		t.Fatalf("expected MISSING_DEPENDENCY conflict: %+v", results[0])
	}
	marks, _ := store.GetWatermarks(context.Background())
	if !marks[models.SyncEntityInvoices].IsZero() {
		t.Fatalf("watermark must not advance past an invoice with no local home: %v",
			marks[models.SyncEntityInvoices])
	}

	// the held watermark re-lists the invoice; that must not stack conflicts
	if _, err := RunEntitySync(context.Background(), store, ledger,
		models.SyncEntityInvoices, models.SyncDirectionPull, Options{}); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	conflicts, _ := store.PendingConflicts(context.Background(), models.SyncEntityInvoices)
	if len(conflicts) != 1 {
		t.Fatalf("duplicate conflict filed on re-import: %d", len(conflicts))
	}

	// once the contact exists, the re-import lands the invoice and the
	// watermark finally moves
	ledger.contacts = []XeroContact{{ContactID: "contact-90", Name: "Late Contact",
		IsCustomer: true, UpdatedDateUTC: updated}}
	if _, err := RunEntitySync(context.Background(), store, ledger,
		models.SyncEntityContacts, models.SyncDirectionPull, Options{}); err != nil {
		t.Fatalf("contacts pull: %v", err)
	}
	results, err = RunEntitySync(context.Background(), store, ledger,
		models.SyncEntityInvoices, models.SyncDirectionPull, Options{})
	if err != nil {
		t.Fatalf("third sync: %v", err)
	}
	if results[0].Succeeded != 1 || results[0].Conflicts != 0 {
		t.Fatalf("invoice should import once its contact exists: %+v", results[0])
	}
	invoice, _ := store.InvoiceByXeroID(context.Background(), "invoice-90")
	if invoice == nil {
		t.Fatalf("invoice not created after dependency arrived")
	}
	marks, _ = store.GetWatermarks(context.Background())
	if !marks[models.SyncEntityInvoices].Equal(updated) {
		t.Fatalf("watermark should advance once the record lands: %v", marks[models.SyncEntityInvoices])
	}
}

func TestPullContactLinkedToVendorIsDuplicateConflict(t *testing.T) {
	store := newMemStore()
	ledger := newFakeLedger()
	vendor := &models.Vendor{Name: "Dual Role Pte Ltd", CurrencyCode: "SGD"}
	if err := store.SaveVendor(context.Background(), vendor); err != nil {
		t.Fatalf("seed vendor: %v", err)
	}
	vendor.XeroId = "contact-40"
	vendor.SyncHash = contactFingerprint(vendorToContact(vendor))

	// the same xero contact comes back flagged as a customer too
	ledger.contacts = []XeroContact{{
		ContactID: "contact-40", Name: "Dual Role Pte Ltd",
		IsCustomer: true, IsSupplier: true, UpdatedDateUTC: time.Now().UTC(),
	}}

	results, err := RunEntitySync(context.Background(), store, ledger,
		models.SyncEntityContacts, models.SyncDirectionPull, Options{})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if results[0].Conflicts != 1 {
		t.Fatalf("expected a duplicate conflict: %+v", results[0])
	}
	if len(store.clients) != 0 {
		t.Fatalf("must not create a client sharing the vendor's xero id")
	}
	conflicts, _ := store.PendingConflicts(context.Background(), models.SyncEntityContacts)
	if conflicts[0].ConflictType != models.ConflictTypeDuplicateDetected || conflicts[0].EntityId != vendor.ID {
		t.Fatalf("expected DUPLICATE_DETECTED on the linked vendor, got %+v", conflicts[0])
	}
}

func TestSystemicFailureProducesErrorLog(t *testing.T) {
	store := newMemStore()
	ledger := newFakeLedger()
	ledger.listErr = errors.New("xero api: 500 internal server error")

	results, err := RunEntitySync(context.Background(), store, ledger,
		models.SyncEntityContacts, models.SyncDirectionPull, Options{})
	if err == nil {
		t.Fatalf("expected the systemic error to surface")
	}
	if len(results) != 1 || results[0].Status != models.SyncLogStatusError {
		t.Fatalf("expected an ERROR result, got %+v", results)
	}

	entry := store.logs[results[0].LogId]
	if entry.Status != models.SyncLogStatusError || entry.ErrorMessage == "" || entry.ErrorStack == "" {
		t.Fatalf("error log must carry message and stack: %+v", entry)
	}
}

func TestSyncLogHasExactlyOneTerminalTransition(t *testing.T) {
	store := newMemStore()
	ledger := newFakeLedger()
	seedClient(t, store, "Anyone", "a@ok.example")

	results, err := RunEntitySync(context.Background(), store, ledger,
		models.SyncEntityContacts, models.SyncDirectionPush, Options{})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	entry := store.logs[results[0].LogId]
	if !entry.Status.Terminal() {
		t.Fatalf("log must end terminal, got %s", entry.Status)
	}
	if err := store.CompleteLog(context.Background(), entry); err == nil {
		t.Fatalf("a second terminal transition must be rejected")
	}
}

func TestSyncRequiresConnection(t *testing.T) {
	store := newMemStore()
	store.conn.Status = models.XeroConnectionStatusDisconnected
	ledger := newFakeLedger()

	_, err := RunEntitySync(context.Background(), store, ledger,
		models.SyncEntityContacts, models.SyncDirectionPull, Options{})
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("got %v, want ErrNotConnected", err)
	}
	if len(store.logs) != 0 {
		t.Fatalf("no log rows should be written when not connected")
	}
}

func TestPushPaymentSingleRecord(t *testing.T) {
	store := newMemStore()
	ledger := newFakeLedger()
	client := seedClient(t, store, "Payer", "p@ok.example")
	invoice := seedInvoice(t, store, client.ID, "INV-3001")
	invoice.XeroId = "invoice-55"

	payment := &models.Payment{
		InvoiceId:   invoice.ID,
		Amount:      decimal.RequireFromString("250.00"),
		PaymentDate: time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC),
		AccountCode: "090",
	}
	if err := store.SavePayment(context.Background(), payment); err != nil {
		t.Fatalf("seed payment: %v", err)
	}

	if err := PushPayment(context.Background(), store, ledger, payment); err != nil {
		t.Fatalf("push payment: %v", err)
	}
	if len(ledger.createdPayments) != 1 {
		t.Fatalf("expected one payment created in xero")
	}
	if ledger.createdPayments[0].Invoice.InvoiceID != "invoice-55" {
		t.Fatalf("payment must reference the invoice's xero id")
	}
	if store.payments[payment.ID].XeroId == "" {
		t.Fatalf("payment must be stamped synced")
	}

	// an unsynced invoice blocks the push
	other := seedInvoice(t, store, client.ID, "INV-3002")
	blocked := &models.Payment{InvoiceId: other.ID, Amount: decimal.NewFromInt(1),
		PaymentDate: time.Now(), AccountCode: "090"}
	_ = store.SavePayment(context.Background(), blocked)
	if err := PushPayment(context.Background(), store, ledger, blocked); err == nil {
		t.Fatalf("expected push against an unsynced invoice to fail")
	}
}
