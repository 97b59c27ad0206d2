package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/crewledger/crewledger/internal/model"
	"github.com/crewledger/crewledger/internal/store"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func str(s string) *string { return &s }

// Run exercises a compliance suite against a store.Store implementation.
// Implementations should provide a clean, isolated store from makeStore.
func Run(t *testing.T, makeStore func(t *testing.T) store.Store) {
	t.Helper()

	s := makeStore(t)
	ctx := context.Background()

	// Workers: registration is idempotent on contact id.
	contact := "+1407555" + uuid.New().String()[:4]
	w, err := s.Workers().Register(ctx, &model.Worker{ContactID: contact, Name: "Omar"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	again, err := s.Workers().Register(ctx, &model.Worker{ContactID: contact, Name: "Somebody Else"})
	if err != nil {
		t.Fatalf("Register repeat: %v", err)
	}
	if again.ID != w.ID || again.Name != "Omar" {
		t.Fatalf("repeat registration created or mutated worker: %+v vs %+v", again, w)
	}
	if _, err := s.Workers().GetByContact(ctx, "+10000000000"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetByContact missing: want ErrNotFound, got %v", err)
	}
	if err := s.Workers().Rename(ctx, w.ID, "Omar G"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if w.Language != nil {
		t.Fatalf("fresh worker has language: %v", *w.Language)
	}
	if err := s.Workers().SetLanguage(ctx, w.ID, "es"); err != nil {
		t.Fatalf("SetLanguage: %v", err)
	}
	if got, err := s.Workers().GetByID(ctx, w.ID); err != nil || got.Language == nil || *got.Language != "es" {
		t.Fatalf("SetLanguage readback: got=%+v err=%v", got, err)
	}

	// Reference lists
	p, err := s.Projects().Create(ctx, &model.Project{Name: "Sparrow-" + w.ID[:8]})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	cat, err := s.Categories().Create(ctx, &model.Category{Name: "Fuel-" + w.ID[:8], DisplayOrder: 1})
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	if got, err := s.Categories().GetByName(ctx, cat.Name); err != nil || got.ID != cat.ID {
		t.Fatalf("GetByName: got=%v err=%v", got, err)
	}
	if ps, err := s.Projects().ListActive(ctx); err != nil || len(ps) == 0 {
		t.Fatalf("ListActive projects: n=%d err=%v", len(ps), err)
	}

	// Records: create with line items in one transaction.
	rec, err := s.Records().Create(ctx, &model.Record{
		WorkerID:     w.ID,
		ProjectID:    &p.ID,
		CategoryID:   &cat.ID,
		Vendor:       str("Home Depot"),
		PurchaseDate: str("2026-02-18"),
		Subtotal:     dec("39.41"),
		Tax:          dec("2.76"),
		Total:        dec("42.17"),
		Status:       model.StatusPending,
		Items: []model.LineItem{
			{Name: "Utility Lighter", Quantity: decimal.NewFromInt(1), Extended: dec("7.59")},
			{Name: "Propane Exchange", Quantity: decimal.NewFromInt(1), Extended: dec("27.99")},
		},
	})
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	if rec.DocType != model.DocReceipt {
		t.Fatalf("CreateRecord default doc type: %v", rec.DocType)
	}
	got, err := s.Records().GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if got.Status != model.StatusPending || len(got.Items) != 2 {
		t.Fatalf("GetRecord: status=%v items=%d", got.Status, len(got.Items))
	}
	if got.DocType != model.DocReceipt {
		t.Fatalf("GetRecord doc type: %v", got.DocType)
	}
	if got.Total == nil || !got.Total.Equal(decimal.RequireFromString("42.17")) {
		t.Fatalf("GetRecord total: %v", got.Total)
	}

	// Duplicate probe matches, excluding retired statuses.
	if dup, err := s.Records().FindSimilar(ctx, w.ID, "Home Depot", "42.17", "2026-02-18"); err != nil || dup.ID != rec.ID {
		t.Fatalf("FindSimilar: got=%v err=%v", dup, err)
	}
	if _, err := s.Records().FindSimilar(ctx, w.ID, "Home Depot", "99.99", "2026-02-18"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("FindSimilar miss: want ErrNotFound, got %v", err)
	}

	// Status lifecycle
	if err := s.Records().UpdateStatus(ctx, rec.ID, model.StatusFlagged, str("Submitter rejected extraction")); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if flagged, err := s.Records().ListFlagged(ctx); err != nil || len(flagged) == 0 {
		t.Fatalf("ListFlagged: n=%d err=%v", len(flagged), err)
	}
	if err := s.Records().AppendContext(ctx, rec.ID, "manual_entry_text", "$42 propane, Sparrow"); err != nil {
		t.Fatalf("AppendContext: %v", err)
	}

	// Conversation state CAS
	st, err := s.States().Get(ctx, w.ID)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if st.Tag != model.StateIdle || st.Version != 0 {
		t.Fatalf("fresh state: %+v", st)
	}
	st.Tag = model.StateAwaitingConfirmation
	st.RecordID = &rec.ID
	saved, err := s.States().Save(ctx, st)
	if err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	if saved.Version != 1 {
		t.Fatalf("SaveState version: %d", saved.Version)
	}
	// A writer holding the stale version must lose.
	stale := *st
	stale.Tag = model.StateIdle
	if _, err := s.States().Save(ctx, &stale); !errors.Is(err, model.ErrStateConflict) {
		t.Fatalf("stale save: want ErrStateConflict, got %v", err)
	}
	saved.Tag = model.StateIdle
	saved.RecordID = nil
	if _, err := s.States().Save(ctx, saved); err != nil {
		t.Fatalf("SaveState second transition: %v", err)
	}

	// Audit trail
	if err := s.Audit().Append(ctx, &model.AuditEntry{
		RecordID: rec.ID, Field: "total", OldValue: str("42.17"), NewValue: str("42.18"), Actor: "admin",
	}); err != nil {
		t.Fatalf("AuditAppend: %v", err)
	}
	if entries, err := s.Audit().ListByRecord(ctx, rec.ID); err != nil || len(entries) != 1 {
		t.Fatalf("AuditList: n=%d err=%v", len(entries), err)
	}

	// Inbox idempotency
	msgID := "SM" + uuid.New().String()
	if err := s.Inbox().MarkProcessed(ctx, msgID); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}
	if err := s.Inbox().MarkProcessed(ctx, msgID); !errors.Is(err, model.ErrDuplicateMessage) {
		t.Fatalf("repeat MarkProcessed: want ErrDuplicateMessage, got %v", err)
	}
	// Release makes the id markable again, so a failed delivery can retry.
	if err := s.Inbox().Release(ctx, msgID); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := s.Inbox().MarkProcessed(ctx, msgID); err != nil {
		t.Fatalf("MarkProcessed after Release: %v", err)
	}

	// Non-receipt documents keep their classified type.
	inv, err := s.Records().Create(ctx, &model.Record{
		WorkerID: w.ID,
		DocType:  model.DocInvoice,
		Vendor:   str("ABC Supply"),
		Total:    dec("812.40"),
		Status:   model.StatusPending,
	})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	if got, err := s.Records().GetByID(ctx, inv.ID); err != nil || got.DocType != model.DocInvoice {
		t.Fatalf("GetInvoice doc type: got=%+v err=%v", got, err)
	}

	// Unknown contact review queue
	if err := s.UnknownContacts().Log(ctx, &model.UnknownContact{ContactID: "+19995550000", Excerpt: str("who dis"), HasMedia: false}); err != nil {
		t.Fatalf("LogUnknown: %v", err)
	}
	if list, err := s.UnknownContacts().List(ctx); err != nil || len(list) == 0 {
		t.Fatalf("ListUnknown: n=%d err=%v", len(list), err)
	}

	// Soft deactivation only
	if err := s.Workers().Deactivate(ctx, w.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if got, err := s.Workers().GetByID(ctx, w.ID); err != nil || got.Active {
		t.Fatalf("deactivated worker still active: %+v err=%v", got, err)
	}
}
