package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewledger/crewledger/internal/convo"
	"github.com/crewledger/crewledger/internal/media"
	"github.com/crewledger/crewledger/internal/model"
	"github.com/crewledger/crewledger/internal/store"
	"github.com/crewledger/crewledger/internal/store/sqlite"
)

const receiptJSON = `{
  "vendor_name": "Home Depot",
  "vendor_city": "Orlando",
  "vendor_state": "FL",
  "purchase_date": "2026-08-14",
  "subtotal": 38.97,
  "tax": 2.73,
  "total": 41.70,
  "payment_method": "card",
  "category": "Materials",
  "line_items": [
    {"item_name": "2x4 Lumber 8ft", "quantity": 6, "unit_price": 4.25, "extended_price": 25.50},
    {"item_name": "Deck Screws 5lb", "quantity": 1, "unit_price": 13.47, "extended_price": 13.47}
  ]
}`

type fakeFetcher struct {
	bytes []byte
	err   error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*media.Image, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &media.Image{Bytes: f.bytes, ContentType: "image/jpeg", LowQuality: len(f.bytes) < 10*1024}, nil
}

type fakeRecognizer struct {
	response string
	err      error
	calls    int
}

func (f *fakeRecognizer) Recognize(ctx context.Context, image []byte, contentType string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

type fakeClassifier struct {
	docType model.DocType
	err     error
	calls   int
}

func (f *fakeClassifier) Classify(ctx context.Context, image []byte, contentType string) (model.DocType, error) {
	f.calls++
	if f.err != nil {
		return model.DocReceipt, f.err
	}
	return f.docType, nil
}

var memCounter int
var memMu sync.Mutex

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	memMu.Lock()
	memCounter++
	n := memCounter
	memMu.Unlock()
	dsn := fmt.Sprintf("file:intaketest%d?mode=memory&cache=shared&_pragma=foreign_keys(ON)", n)
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlite.EnsureSchema(db))
	return sqlite.New(db)
}

type fixture struct {
	svc        *IntakeService
	store      store.Store
	fetcher    *fakeFetcher
	recognizer *fakeRecognizer
	worker     *model.Worker
	sparrow    *model.Project
}

func newFixture(t *testing.T, autoAccept bool) *fixture {
	t.Helper()
	st := newTestStore(t)
	ctx := context.Background()

	en := "en"
	w, err := st.Workers().Register(ctx, &model.Worker{ContactID: "+14075551234", Name: "Mike", Language: &en})
	require.NoError(t, err)
	sparrow, err := st.Projects().Create(ctx, &model.Project{Name: "Sparrow Lane"})
	require.NoError(t, err)
	_, err = st.Projects().Create(ctx, &model.Project{Name: "Oak Ridge Remodel"})
	require.NoError(t, err)
	for _, name := range []string{"Materials", "Fuel", "Food & Drinks", "Other"} {
		_, err = st.Categories().Create(ctx, &model.Category{Name: name})
		require.NoError(t, err)
	}

	big := make([]byte, 64*1024)
	fetcher := &fakeFetcher{bytes: big}
	recognizer := &fakeRecognizer{response: receiptJSON}
	svc := NewIntakeService(IntakeParams{
		Store:                  st,
		Fetcher:                fetcher,
		Recognizer:             recognizer,
		Patterns:               convo.NewPatterns(),
		Log:                    zerolog.Nop(),
		AutoAccept:             autoAccept,
		ProjectMatchThreshold:  70,
		CategoryMatchThreshold: 60,
	})
	return &fixture{svc: svc, store: st, fetcher: fetcher, recognizer: recognizer, worker: w, sparrow: sparrow}
}

func photoMsg(id, body string) model.InboundMessage {
	return model.InboundMessage{
		MessageID:   id,
		From:        "+14075551234",
		Body:        body,
		Attachments: []model.Attachment{{URL: "https://gateway.example/media/1", ContentType: "image/jpeg"}},
	}
}

func textMsg(id, body string) model.InboundMessage {
	return model.InboundMessage{MessageID: id, From: "+14075551234", Body: body}
}

func flaggedFor(t *testing.T, s store.Store, workerID string) []*model.Record {
	t.Helper()
	all, err := s.Records().ListFlagged(context.Background())
	require.NoError(t, err)
	var out []*model.Record
	for _, r := range all {
		if r.WorkerID == workerID {
			out = append(out, r)
		}
	}
	return out
}

func TestPhotoCreatesPendingRecord(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	text, err := f.svc.HandleMessage(ctx, photoMsg("SM1", "Sparow"))
	require.NoError(t, err)
	assert.Contains(t, text, "Home Depot")
	assert.Contains(t, text, "41.70")
	assert.Contains(t, text, "Sparrow Lane")
	assert.NotContains(t, text, "Reply YES")

	st, err := f.store.States().Get(ctx, f.worker.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateIdle, st.Tag)
	require.NotNil(t, st.RecordID)

	rec, err := f.store.Records().GetByID(ctx, *st.RecordID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, rec.Status)
	require.NotNil(t, rec.ProjectID)
	assert.Equal(t, f.sparrow.ID, *rec.ProjectID)
	require.NotNil(t, rec.ProjectScore)
	assert.GreaterOrEqual(t, *rec.ProjectScore, 70)
	assert.NotNil(t, rec.CategoryID)
	assert.Len(t, rec.Items, 2)
	require.NotNil(t, rec.Total)
	assert.Equal(t, "41.7", rec.Total.String())
	assert.NotEmpty(t, rec.RawExtraction)
}

func TestConfirmModePromptsThenConfirms(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	text, err := f.svc.HandleMessage(ctx, photoMsg("SM1", "Sparrow Lane"))
	require.NoError(t, err)
	assert.Contains(t, text, "Reply YES")

	st, err := f.store.States().Get(ctx, f.worker.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateAwaitingConfirmation, st.Tag)
	require.NotNil(t, st.RecordID)
	recID := *st.RecordID

	text, err = f.svc.HandleMessage(ctx, textMsg("SM2", "yes"))
	require.NoError(t, err)
	assert.Contains(t, text, "Saved")

	rec, err := f.store.Records().GetByID(ctx, recID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, rec.Status)
	assert.NotNil(t, rec.ConfirmedAt)

	st, err = f.store.States().Get(ctx, f.worker.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateIdle, st.Tag)
}

func TestConfirmModeRejectThenManualEntry(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.svc.HandleMessage(ctx, photoMsg("SM1", ""))
	require.NoError(t, err)
	st, err := f.store.States().Get(ctx, f.worker.ID)
	require.NoError(t, err)
	recID := *st.RecordID

	text, err := f.svc.HandleMessage(ctx, textMsg("SM2", "NOPE"))
	require.NoError(t, err)
	assert.Contains(t, text, "text me")

	rec, err := f.store.Records().GetByID(ctx, recID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFlagged, rec.Status)
	require.NotNil(t, rec.FlagReason)
	assert.Equal(t, "Submitter rejected extraction", *rec.FlagReason)

	st, err = f.store.States().Get(ctx, f.worker.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateAwaitingManualEntry, st.Tag)

	text, err = f.svc.HandleMessage(ctx, textMsg("SM3", "Home Depot, $41.70, lumber and screws, Sparrow Lane"))
	require.NoError(t, err)
	assert.Contains(t, text, "review")

	rec, err = f.store.Records().GetByID(ctx, recID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFlagged, rec.Status)
	assert.Contains(t, string(rec.RawExtraction), "manual_entry_text")

	st, err = f.store.States().Get(ctx, f.worker.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateIdle, st.Tag)
}

func TestDuplicateDeliveryIsSilentNoOp(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.svc.HandleMessage(ctx, photoMsg("SM1", ""))
	require.NoError(t, err)
	require.Equal(t, 1, f.recognizer.calls)

	text, err := f.svc.HandleMessage(ctx, photoMsg("SM1", ""))
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.Equal(t, 1, f.recognizer.calls)
}

func TestMalformedExtractionFlagsRecord(t *testing.T) {
	f := newFixture(t, true)
	f.recognizer.response = "I couldn't make out this receipt, sorry."
	ctx := context.Background()

	text, err := f.svc.HandleMessage(ctx, photoMsg("SM1", "Sparrow Lane"))
	require.NoError(t, err)
	assert.Contains(t, text, "couldn't read")

	flagged := flaggedFor(t, f.store, f.worker.ID)
	require.Len(t, flagged, 1)
	require.NotNil(t, flagged[0].FlagReason)
	assert.Equal(t, "Could not read receipt", *flagged[0].FlagReason)
	require.NotNil(t, flagged[0].ImageRef)
	assert.Contains(t, string(flagged[0].RawExtraction), "unparsed_response")
}

func TestMediaFailureFlagsRecordWithURL(t *testing.T) {
	f := newFixture(t, true)
	f.fetcher.err = errors.New("gateway timeout")
	ctx := context.Background()

	text, err := f.svc.HandleMessage(ctx, photoMsg("SM1", ""))
	require.NoError(t, err)
	assert.Contains(t, text, "didn't come through")

	flagged := flaggedFor(t, f.store, f.worker.ID)
	require.Len(t, flagged, 1)
	require.NotNil(t, flagged[0].ImageRef)
	assert.Equal(t, "https://gateway.example/media/1", *flagged[0].ImageRef)
	assert.Equal(t, 0, f.recognizer.calls)
}

func TestUnresolvedProjectFlagsRecord(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.svc.HandleMessage(ctx, photoMsg("SM1", "Zzqx Tower"))
	require.NoError(t, err)

	flagged := flaggedFor(t, f.store, f.worker.ID)
	require.Len(t, flagged, 1)
	rec := flagged[0]
	assert.Nil(t, rec.ProjectID)
	require.NotNil(t, rec.ProjectCaption)
	assert.Equal(t, "Zzqx Tower", *rec.ProjectCaption)
	require.NotNil(t, rec.FlagReason)
	assert.Contains(t, *rec.FlagReason, "Project unresolved")
	// Extracted data is intact even though the reference is unresolved.
	assert.Len(t, rec.Items, 2)
}

func TestDuplicateReceiptFlaggedWithWarning(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.svc.HandleMessage(ctx, photoMsg("SM1", "Sparrow Lane"))
	require.NoError(t, err)

	text, err := f.svc.HandleMessage(ctx, photoMsg("SM2", "Sparrow Lane"))
	require.NoError(t, err)
	assert.Contains(t, text, "already sent")

	flagged := flaggedFor(t, f.store, f.worker.ID)
	require.Len(t, flagged, 1)
	assert.NotNil(t, flagged[0].DuplicateOf)
}

func TestMissedReceiptFlow(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	text, err := f.svc.HandleMessage(ctx, textMsg("SM1", "I lost the receipt"))
	require.NoError(t, err)
	assert.Contains(t, text, "what you bought")

	st, err := f.store.States().Get(ctx, f.worker.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateAwaitingMissedDetails, st.Tag)
	require.NotNil(t, st.RecordID)
	recID := *st.RecordID

	text, err = f.svc.HandleMessage(ctx, textMsg("SM2", "RaceTrac, about $60, diesel, Sparrow Lane"))
	require.NoError(t, err)
	assert.Contains(t, text, "logged")

	rec, err := f.store.Records().GetByID(ctx, recID)
	require.NoError(t, err)
	assert.True(t, rec.MissedReceipt)
	assert.Equal(t, model.StatusFlagged, rec.Status)
	assert.Contains(t, string(rec.RawExtraction), "missed_details")
	assert.Contains(t, string(rec.RawExtraction), "RaceTrac")

	st, err = f.store.States().Get(ctx, f.worker.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateIdle, st.Tag)
}

func TestFreshImageDuringConfirmationIsIndependent(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.svc.HandleMessage(ctx, photoMsg("SM1", "Sparrow Lane"))
	require.NoError(t, err)
	st, err := f.store.States().Get(ctx, f.worker.ID)
	require.NoError(t, err)
	firstID := *st.RecordID

	text, err := f.svc.HandleMessage(ctx, photoMsg("SM2", "Oak Ridge Remodel"))
	require.NoError(t, err)
	assert.Contains(t, text, "Reply YES")

	st, err = f.store.States().Get(ctx, f.worker.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateAwaitingConfirmation, st.Tag)
	assert.NotEqual(t, firstID, *st.RecordID)

	// The first record stays pending for dashboard review.
	first, err := f.store.Records().GetByID(ctx, firstID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, first.Status)
}

func TestUnknownSenderSilencedAndQueued(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	msg := model.InboundMessage{MessageID: "SM1", From: "+19995550000", Body: "hey can I submit receipts here"}
	text, err := f.svc.HandleMessage(ctx, msg)
	require.NoError(t, err)
	assert.Empty(t, text)

	queued, err := f.store.UnknownContacts().List(ctx)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, "+19995550000", queued[0].ContactID)
	require.NotNil(t, queued[0].Excerpt)
	assert.Contains(t, *queued[0].Excerpt, "receipts")
}

func TestOpenRegistrationWithIntro(t *testing.T) {
	f := newFixture(t, true)
	f.svc.openRegistration = true
	ctx := context.Background()

	// The intro registers the worker; the language question comes next,
	// before any document handling.
	text, err := f.svc.HandleMessage(ctx, model.InboundMessage{
		MessageID: "SM1", From: "407-555-9999", Body: "Hi this is Carlos",
	})
	require.NoError(t, err)
	assert.Contains(t, text, "English or Spanish")

	w, err := f.store.Workers().GetByContact(ctx, "+14075559999")
	require.NoError(t, err)
	assert.Equal(t, "Carlos", w.Name)
	assert.Nil(t, w.Language)
	st, err := f.store.States().Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateAwaitingLanguage, st.Tag)

	text, err = f.svc.HandleMessage(ctx, model.InboundMessage{
		MessageID: "SM2", From: "407-555-9999", Body: "english",
	})
	require.NoError(t, err)
	assert.Contains(t, text, "Welcome to CrewLedger, Carlos")

	w, err = f.store.Workers().GetByContact(ctx, "+14075559999")
	require.NoError(t, err)
	require.NotNil(t, w.Language)
	assert.Equal(t, "en", *w.Language)
}

func TestOpenRegistrationWithoutNameAsksForIt(t *testing.T) {
	f := newFixture(t, true)
	f.svc.openRegistration = true
	ctx := context.Background()

	text, err := f.svc.HandleMessage(ctx, model.InboundMessage{
		MessageID: "SM1", From: "+14075559998", Body: "yo",
	})
	require.NoError(t, err)
	assert.Contains(t, text, "name")

	w, err := f.store.Workers().GetByContact(ctx, "+14075559998")
	require.NoError(t, err)
	st, err := f.store.States().Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateAwaitingName, st.Tag)

	// The name lands, then the language question follows.
	text, err = f.svc.HandleMessage(ctx, model.InboundMessage{
		MessageID: "SM2", From: "+14075559998", Body: "I'm Dana",
	})
	require.NoError(t, err)
	assert.Contains(t, text, "English or Spanish")

	w, err = f.store.Workers().GetByContact(ctx, "+14075559998")
	require.NoError(t, err)
	assert.Equal(t, "Dana", w.Name)

	text, err = f.svc.HandleMessage(ctx, model.InboundMessage{
		MessageID: "SM3", From: "+14075559998", Body: "spanish",
	})
	require.NoError(t, err)
	assert.Contains(t, text, "Bienvenido a CrewLedger, Dana")
}

func TestConcurrentDistinctSendersRegisterOnce(t *testing.T) {
	f := newFixture(t, true)
	f.svc.openRegistration = true
	ctx := context.Background()

	senders := []string{"+14075550001", "+14075550002", "+14075550003", "+14075550004"}
	var wg sync.WaitGroup
	for i, from := range senders {
		wg.Add(1)
		go func(i int, from string) {
			defer wg.Done()
			// Two deliveries per sender race each other.
			for j := 0; j < 2; j++ {
				_, err := f.svc.HandleMessage(ctx, model.InboundMessage{
					MessageID: fmt.Sprintf("SM-%d-%d", i, j),
					From:      from,
					Body:      "this is Worker" + from[len(from)-1:],
				})
				assert.NoError(t, err)
			}
		}(i, from)
	}
	wg.Wait()

	ws, err := f.store.Workers().List(ctx)
	require.NoError(t, err)
	seen := make(map[string]int)
	for _, w := range ws {
		seen[w.ContactID]++
	}
	for _, from := range senders {
		assert.Equal(t, 1, seen[from], "sender %s", from)
	}
}

func TestInactiveWorkerIsSilenced(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	require.NoError(t, f.store.Workers().Deactivate(ctx, f.worker.ID))

	text, err := f.svc.HandleMessage(ctx, photoMsg("SM1", ""))
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.Equal(t, 0, f.recognizer.calls)
}

func TestUnrecognizedIdleTextGetsNudge(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	text, err := f.svc.HandleMessage(ctx, textMsg("SM1", "what's the weather"))
	require.NoError(t, err)
	assert.Contains(t, text, "photo")

	st, err := f.store.States().Get(ctx, f.worker.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateIdle, st.Tag)
}

func TestLowQualityImageWarning(t *testing.T) {
	f := newFixture(t, true)
	f.fetcher.bytes = make([]byte, 2*1024)
	ctx := context.Background()

	text, err := f.svc.HandleMessage(ctx, photoMsg("SM1", "Sparrow Lane"))
	require.NoError(t, err)
	assert.Contains(t, text, "blurry")
}

func TestInvoicePhotoRoutedPastConfirmation(t *testing.T) {
	f := newFixture(t, false) // confirm mode must not apply to invoices
	cls := &fakeClassifier{docType: model.DocInvoice}
	f.svc.classifier = cls
	ctx := context.Background()

	text, err := f.svc.HandleMessage(ctx, photoMsg("SM1", "Sparrow Lane"))
	require.NoError(t, err)
	assert.Contains(t, text, "invoice from Home Depot")
	assert.NotContains(t, text, "Reply YES")
	assert.Equal(t, 1, cls.calls)

	// No confirmation round trip: the conversation stays idle.
	st, err := f.store.States().Get(ctx, f.worker.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateIdle, st.Tag)

	recs := flaggedFor(t, f.store, f.worker.ID)
	assert.Empty(t, recs)
	// Confirm the stored record carries the invoice type.
	dup, err := f.store.Records().FindSimilar(ctx, f.worker.ID, "Home Depot", "41.7", "2026-08-14")
	require.NoError(t, err)
	assert.Equal(t, model.DocInvoice, dup.DocType)
	assert.Equal(t, model.StatusPending, dup.Status)
	require.NotNil(t, dup.ProjectID)
	assert.Equal(t, f.sparrow.ID, *dup.ProjectID)
}

func TestPurchaseOrderRidesInvoicePath(t *testing.T) {
	f := newFixture(t, true)
	f.svc.classifier = &fakeClassifier{docType: model.DocPurchaseOrder}
	ctx := context.Background()

	text, err := f.svc.HandleMessage(ctx, photoMsg("SM1", ""))
	require.NoError(t, err)
	assert.Contains(t, text, "invoice from Home Depot")
}

func TestPackingSlipPhotoLogged(t *testing.T) {
	f := newFixture(t, true)
	f.svc.classifier = &fakeClassifier{docType: model.DocPackingSlip}
	ctx := context.Background()

	text, err := f.svc.HandleMessage(ctx, photoMsg("SM1", ""))
	require.NoError(t, err)
	assert.Contains(t, text, "packing slip from Home Depot")
}

func TestUnreadableInvoiceFlagsRecord(t *testing.T) {
	f := newFixture(t, true)
	f.svc.classifier = &fakeClassifier{docType: model.DocInvoice}
	f.recognizer.response = "the page is blank"
	ctx := context.Background()

	text, err := f.svc.HandleMessage(ctx, photoMsg("SM1", ""))
	require.NoError(t, err)
	assert.Contains(t, text, "couldn't read")

	flagged := flaggedFor(t, f.store, f.worker.ID)
	require.Len(t, flagged, 1)
	assert.Equal(t, model.DocInvoice, flagged[0].DocType)
	require.NotNil(t, flagged[0].FlagReason)
	assert.Equal(t, "Could not read document", *flagged[0].FlagReason)
}

func TestClassifierFailureFallsBackToReceipt(t *testing.T) {
	f := newFixture(t, true)
	f.svc.classifier = &fakeClassifier{err: errors.New("service unavailable")}
	ctx := context.Background()

	text, err := f.svc.HandleMessage(ctx, photoMsg("SM1", "Sparrow Lane"))
	require.NoError(t, err)
	assert.Contains(t, text, "Home Depot")
	assert.Contains(t, text, "Sparrow Lane")
}

func TestNullExtractionPayloadFlagsRecord(t *testing.T) {
	f := newFixture(t, true)
	f.recognizer.response = "null"
	ctx := context.Background()

	text, err := f.svc.HandleMessage(ctx, photoMsg("SM1", "Sparrow Lane"))
	require.NoError(t, err)
	assert.Contains(t, text, "couldn't read")

	flagged := flaggedFor(t, f.store, f.worker.ID)
	require.Len(t, flagged, 1)
	require.NotNil(t, flagged[0].FlagReason)
	assert.Equal(t, "Could not read receipt", *flagged[0].FlagReason)
}

func TestFirstContactAsksForLanguage(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	// A worker added without a preference gets the bilingual prompt before
	// anything else, even a photo.
	w, err := f.store.Workers().Register(ctx, &model.Worker{ContactID: "+14075550077", Name: "Rosa"})
	require.NoError(t, err)

	text, err := f.svc.HandleMessage(ctx, model.InboundMessage{
		MessageID: "SM1", From: "+14075550077", Body: "project Sparrow Lane",
		Attachments: []model.Attachment{{URL: "https://gateway.example/media/9"}},
	})
	require.NoError(t, err)
	assert.Contains(t, text, "English or Spanish")
	assert.Equal(t, 0, f.recognizer.calls)

	// An answer that is not a language holds the prompt.
	text, err = f.svc.HandleMessage(ctx, textMsg2("SM2", "+14075550077", "receipt"))
	require.NoError(t, err)
	assert.Contains(t, text, "español")

	text, err = f.svc.HandleMessage(ctx, textMsg2("SM3", "+14075550077", "Espanol"))
	require.NoError(t, err)
	assert.Contains(t, text, "Bienvenido a CrewLedger, Rosa")

	w, err = f.store.Workers().GetByID(ctx, w.ID)
	require.NoError(t, err)
	require.NotNil(t, w.Language)
	assert.Equal(t, "es", *w.Language)

	// Subsequent replies come back in Spanish.
	text, err = f.svc.HandleMessage(ctx, model.InboundMessage{
		MessageID: "SM4", From: "+14075550077", Body: "Sparrow Lane",
		Attachments: []model.Attachment{{URL: "https://gateway.example/media/9"}},
	})
	require.NoError(t, err)
	assert.Contains(t, text, "¡Listo, Rosa!")
}

func textMsg2(id, from, body string) model.InboundMessage {
	return model.InboundMessage{MessageID: id, From: from, Body: body}
}

// flakyWorkers fails lookups a set number of times to model a transient
// datastore fault after the inbox mark.
type flakyWorkers struct {
	store.Workers
	failures int
}

func (w *flakyWorkers) GetByContact(ctx context.Context, contactID string) (*model.Worker, error) {
	if w.failures > 0 {
		w.failures--
		return nil, errors.New("connection reset")
	}
	return w.Workers.GetByContact(ctx, contactID)
}

type flakyStore struct {
	store.Store
	workers *flakyWorkers
}

func (s *flakyStore) Workers() store.Workers { return s.workers }

func TestFaultedDeliveryIsRetriable(t *testing.T) {
	f := newFixture(t, true)
	f.svc.store = &flakyStore{
		Store:   f.store,
		workers: &flakyWorkers{Workers: f.store.Workers(), failures: 1},
	}
	ctx := context.Background()

	_, err := f.svc.HandleMessage(ctx, photoMsg("SM1", "Sparrow Lane"))
	require.Error(t, err)
	assert.Equal(t, 0, f.recognizer.calls)

	// The gateway retries with the same id; the message must be handled,
	// not swallowed as a duplicate.
	text, err := f.svc.HandleMessage(ctx, photoMsg("SM1", "Sparrow Lane"))
	require.NoError(t, err)
	assert.Contains(t, text, "Home Depot")
	assert.Equal(t, 1, f.recognizer.calls)
}

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"4075551234":       "+14075551234",
		"407-555-1234":     "+14075551234",
		"(407) 555-1234":   "+14075551234",
		"1-407-555-1234":   "+14075551234",
		"+14075551234":     "+14075551234",
		"whatsapp:+123456": "whatsapp:+123456",
		"":                 "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizePhone(in), "input %q", in)
	}
}
