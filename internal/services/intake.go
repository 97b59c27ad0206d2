// Package services orchestrates the inbound document intake pipeline.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/crewledger/crewledger/internal/convo"
	"github.com/crewledger/crewledger/internal/extract"
	"github.com/crewledger/crewledger/internal/media"
	"github.com/crewledger/crewledger/internal/model"
	"github.com/crewledger/crewledger/internal/reconcile"
	"github.com/crewledger/crewledger/internal/reply"
	"github.com/crewledger/crewledger/internal/store"
)

// placeholderName is used when a new worker's intro has no extractable name.
const placeholderName = "New Worker"

// IntakeParams wires an IntakeService.
type IntakeParams struct {
	Store      store.Store
	Fetcher    media.Fetcher
	Recognizer extract.Recognizer
	// Classifier routes photos between the receipt, invoice, and
	// packing-slip paths. Nil disables routing and treats every photo as
	// a receipt.
	Classifier extract.Classifier
	Patterns   convo.Patterns
	Log        zerolog.Logger

	// AutoAccept selects the process-wide confirm mode: true saves records
	// as pending without a YES/NO round trip.
	AutoAccept bool
	// OpenRegistration lets unknown senders self-register by texting in.
	// When false (the default) unknown senders are silently logged.
	OpenRegistration bool

	ProjectMatchThreshold  int
	CategoryMatchThreshold int
}

// IntakeService routes every inbound gateway message: it identifies the
// sender, consults the conversation state machine, runs the extraction
// pipeline for photos, and produces the reply text (empty string = silence).
type IntakeService struct {
	store      store.Store
	fetcher    media.Fetcher
	recognizer extract.Recognizer
	classifier extract.Classifier
	patterns   convo.Patterns
	log        zerolog.Logger

	autoAccept       bool
	openRegistration bool
	projectThresh    int
	categoryThresh   int

	// Per-worker locks serialize transitions in-process; the state row's
	// version CAS covers cross-process races.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewIntakeService(p IntakeParams) *IntakeService {
	return &IntakeService{
		store:            p.Store,
		fetcher:          p.Fetcher,
		recognizer:       p.Recognizer,
		classifier:       p.Classifier,
		patterns:         p.Patterns,
		log:              p.Log,
		autoAccept:       p.AutoAccept,
		openRegistration: p.OpenRegistration,
		projectThresh:    p.ProjectMatchThreshold,
		categoryThresh:   p.CategoryMatchThreshold,
		locks:            make(map[string]*sync.Mutex),
	}
}

// workerLock returns the mutex for one worker, creating it on first use.
// The map is never trimmed: it holds one mutex per worker ever seen by this
// process, and the worker directory is small and only ever soft-deactivated.
func (s *IntakeService) workerLock(workerID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[workerID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[workerID] = l
	}
	return l
}

// HandleMessage processes one inbound message and returns the reply text.
// An empty reply means silence (unknown sender, duplicate delivery).
// Errors are reserved for datastore faults; every business failure mode
// degrades to a flagged record and a reply.
func (s *IntakeService) HandleMessage(ctx context.Context, msg model.InboundMessage) (string, error) {
	// Gateway retries redeliver the same message id; recover as a no-op.
	if msg.MessageID != "" {
		if err := s.store.Inbox().MarkProcessed(ctx, msg.MessageID); err != nil {
			if errors.Is(err, model.ErrDuplicateMessage) {
				s.log.Info().Str("message_id", msg.MessageID).Msg("duplicate delivery ignored")
				return "", nil
			}
			return "", err
		}
	}

	text, err := s.handle(ctx, msg)
	if err != nil && msg.MessageID != "" {
		// The message was marked processed but handling failed. Release the
		// id so the gateway's retry is handled instead of no-opped away.
		if relErr := s.store.Inbox().Release(ctx, msg.MessageID); relErr != nil {
			s.log.Error().Err(relErr).Str("message_id", msg.MessageID).Msg("inbox release failed; retry will be dropped")
		}
	}
	return text, err
}

func (s *IntakeService) handle(ctx context.Context, msg model.InboundMessage) (string, error) {
	contact := NormalizePhone(msg.From)
	worker, err := s.store.Workers().GetByContact(ctx, contact)
	if errors.Is(err, model.ErrNotFound) {
		return s.handleUnknownSender(ctx, contact, msg)
	}
	if err != nil {
		return "", err
	}

	if !worker.Active {
		s.log.Info().Str("worker", worker.ID).Msg("inactive worker attempted contact")
		return "", nil
	}

	// Serialize transitions for this worker; other workers run independently.
	lock := s.workerLock(worker.ID)
	lock.Lock()
	defer lock.Unlock()

	st, err := s.store.States().Get(ctx, worker.ID)
	if err != nil {
		return "", err
	}

	// A worker without a stored language preference picks one before
	// anything else. The prompt itself is bilingual.
	if worker.Language == nil && st.Tag == model.StateIdle {
		if _, err := s.saveState(ctx, st, model.StateAwaitingLanguage, nil, nil); err != nil {
			if errors.Is(err, model.ErrStateConflict) {
				return reply.InProgress(reply.English, worker.Name), nil
			}
			return "", err
		}
		return reply.LanguagePrompt(), nil
	}

	hasImage := len(msg.Attachments) > 0
	d := convo.Decide(st.Tag, convo.Inbound{Body: msg.Body, HasImage: hasImage}, s.patterns, s.autoAccept)

	switch d.Action {
	case convo.ActionRunIntake:
		return s.runPipeline(ctx, worker, msg, st)
	case convo.ActionStartMissedFlow:
		return s.startMissedFlow(ctx, worker, msg, st)
	case convo.ActionCaptureMissedDetails:
		return s.captureMissedDetails(ctx, worker, msg, st)
	case convo.ActionConfirmRecord:
		return s.confirmRecord(ctx, worker, st)
	case convo.ActionRejectRecord:
		return s.rejectRecord(ctx, worker, st)
	case convo.ActionCaptureManualEntry:
		return s.captureManualEntry(ctx, worker, msg, st)
	case convo.ActionCaptureName:
		return s.captureName(ctx, worker, msg, st)
	case convo.ActionCaptureLanguage:
		return s.captureLanguage(ctx, worker, msg, st)
	}

	// Not a trigger for the current state; the state holds.
	lang := reply.LangFor(worker.Language)
	if st.Tag == model.StateAwaitingConfirmation {
		return reply.ConfirmReprompt(lang), nil
	}
	return reply.Unrecognized(lang, worker.Name), nil
}

// handleUnknownSender logs the attempt for the review queue. With open
// registration enabled it instead auto-registers the sender.
func (s *IntakeService) handleUnknownSender(ctx context.Context, contact string, msg model.InboundMessage) (string, error) {
	if !s.openRegistration {
		excerpt := msg.Body
		if len(excerpt) > 500 {
			excerpt = excerpt[:500]
		}
		var ex *string
		if excerpt != "" {
			ex = &excerpt
		}
		if err := s.store.UnknownContacts().Log(ctx, &model.UnknownContact{
			ContactID: contact,
			Excerpt:   ex,
			HasMedia:  len(msg.Attachments) > 0,
		}); err != nil {
			return "", err
		}
		s.log.Warn().Str("contact", contact).Msg("unknown sender silenced and queued for review")
		return "", nil
	}

	name, found := s.patterns.ExtractIntroducedName(msg.Body)
	if !found {
		name = placeholderName
	}
	worker, err := s.store.Workers().Register(ctx, &model.Worker{ContactID: contact, Name: name})
	if err != nil {
		return "", err
	}
	s.log.Info().Str("worker", worker.ID).Str("name", worker.Name).Msg("worker auto-registered")

	if !found {
		st := &model.ConversationState{WorkerID: worker.ID, Tag: model.StateAwaitingName}
		if _, err := s.store.States().Save(ctx, st); err != nil && !errors.Is(err, model.ErrStateConflict) {
			return "", err
		}
		return reply.AskName(), nil
	}

	// The language choice comes before any document handling, so a photo
	// sent with the intro waits until the worker replies.
	st := &model.ConversationState{WorkerID: worker.ID, Tag: model.StateAwaitingLanguage}
	if _, err := s.store.States().Save(ctx, st); err != nil && !errors.Is(err, model.ErrStateConflict) {
		return "", err
	}
	return reply.LanguagePrompt(), nil
}

// runPipeline executes Fetch, Classify, Extract, Structure, Reconcile,
// Persist for a photo submission. Failure at any stage short-circuits into
// a flagged record; nothing is silently dropped.
func (s *IntakeService) runPipeline(ctx context.Context, worker *model.Worker, msg model.InboundMessage, st *model.ConversationState) (string, error) {
	attachment := msg.Attachments[0]
	caption := strings.TrimSpace(msg.Body)
	lang := reply.LangFor(worker.Language)

	img, err := s.fetcher.Fetch(ctx, attachment.URL)
	if err != nil {
		s.log.Error().Err(err).Str("worker", worker.ID).Str("url", attachment.URL).Msg("media retrieval failed")
		// The conversation state holds; the flagged record carries the URL
		// so review can retry the download.
		if _, storeErr := s.createFlagged(ctx, worker, model.DocReceipt, caption, &attachment.URL, nil,
			"Media retrieval failed - attachment URL saved for retry"); storeErr != nil {
			return "", storeErr
		}
		return reply.MediaFailed(lang, worker.Name), nil
	}

	// Route by document kind. Classification failures and off-list labels
	// fall back to the receipt path, never block intake.
	docType := model.DocReceipt
	if s.classifier != nil {
		dt, cerr := s.classifier.Classify(ctx, img.Bytes, img.ContentType)
		if cerr != nil {
			s.log.Warn().Err(cerr).Str("worker", worker.ID).Msg("document classification failed, treating as receipt")
		} else {
			docType = dt
		}
	}
	switch docType {
	case model.DocInvoice, model.DocPurchaseOrder:
		// Purchase orders ride the invoice path.
		return s.runDocumentPipeline(ctx, worker, caption, attachment.URL, img, model.DocInvoice)
	case model.DocPackingSlip:
		return s.runDocumentPipeline(ctx, worker, caption, attachment.URL, img, model.DocPackingSlip)
	}

	raw, err := s.recognizer.Recognize(ctx, img.Bytes, img.ContentType)
	var extraction *model.Extraction
	if err == nil {
		extraction, err = extract.Structure(raw)
	}
	if err != nil {
		s.log.Warn().Err(err).Str("worker", worker.ID).Msg("extraction failed")
		var rawJSON json.RawMessage
		if raw != "" {
			blob, _ := json.Marshal(map[string]string{"unparsed_response": raw})
			rawJSON = blob
		}
		if _, storeErr := s.createFlagged(ctx, worker, model.DocReceipt, caption, &attachment.URL, rawJSON, "Could not read receipt"); storeErr != nil {
			return "", storeErr
		}
		return reply.ExtractionFailed(lang, worker.Name), nil
	}

	rec, projectName, warnings, err := s.reconcileAndPersist(ctx, worker, caption, attachment.URL, extraction)
	if err != nil {
		return "", err
	}

	nextTag := model.StateIdle
	if !s.autoAccept {
		nextTag = model.StateAwaitingConfirmation
	}
	if _, err := s.saveState(ctx, st, nextTag, &rec.ID, nil); err != nil {
		if errors.Is(err, model.ErrStateConflict) {
			return reply.InProgress(lang, worker.Name), nil
		}
		return "", err
	}

	var b strings.Builder
	if img.LowQuality {
		b.WriteString(reply.QualityWarning(lang))
		b.WriteString("\n\n")
	}
	if s.autoAccept {
		b.WriteString(reply.Acknowledgment(lang, rec, projectName, worker.Name))
	} else {
		b.WriteString(reply.ConfirmPrompt(lang, rec, projectName, worker.Name))
	}
	for _, w := range warnings {
		b.WriteString("\n")
		b.WriteString(w)
	}
	return b.String(), nil
}

// runDocumentPipeline persists an invoice or packing slip. These are
// office-review documents: no category, no duplicate probe, no YES/NO
// round trip, and the conversation state is untouched.
func (s *IntakeService) runDocumentPipeline(ctx context.Context, worker *model.Worker, caption, imageRef string, img *media.Image, docType model.DocType) (string, error) {
	lang := reply.LangFor(worker.Language)

	raw, err := s.recognizer.Recognize(ctx, img.Bytes, img.ContentType)
	var extraction *model.Extraction
	if err == nil {
		extraction, err = extract.Structure(raw)
	}
	if err != nil {
		s.log.Warn().Err(err).Str("worker", worker.ID).Str("doc_type", string(docType)).Msg("extraction failed")
		var rawJSON json.RawMessage
		if raw != "" {
			blob, _ := json.Marshal(map[string]string{"unparsed_response": raw})
			rawJSON = blob
		}
		if _, storeErr := s.createFlagged(ctx, worker, docType, caption, &imageRef, rawJSON, "Could not read document"); storeErr != nil {
			return "", storeErr
		}
		return reply.ExtractionFailed(lang, worker.Name), nil
	}

	rec := &model.Record{
		WorkerID:      worker.ID,
		DocType:       docType,
		Vendor:        extraction.Vendor,
		VendorCity:    extraction.VendorCity,
		VendorState:   extraction.VendorState,
		PurchaseDate:  extraction.PurchaseDate,
		Subtotal:      extraction.Subtotal,
		Tax:           extraction.Tax,
		Total:         extraction.Total,
		Payment:       extraction.Payment,
		ImageRef:      &imageRef,
		RawExtraction: extraction.Raw,
		Status:        model.StatusPending,
	}
	for _, it := range extraction.Items {
		rec.Items = append(rec.Items, model.LineItem{
			Name:       it.Name,
			Quantity:   it.Quantity,
			UnitAmount: it.UnitAmount,
			Extended:   it.Extended,
		})
	}

	if caption != "" {
		projects, err := s.store.Projects().ListActive(ctx)
		if err != nil {
			return "", err
		}
		m := reconcile.MatchProject(caption, projects, s.projectThresh)
		rec.ProjectCaption = &m.Caption
		rec.ProjectScore = &m.Score
		if m.Project != nil {
			rec.ProjectID = &m.Project.ID
		} else {
			rec.Status = model.StatusFlagged
			reason := "Project unresolved"
			rec.FlagReason = &reason
		}
	}

	created, err := s.store.Records().Create(ctx, rec)
	if err != nil {
		return "", err
	}
	s.log.Info().
		Str("record", created.ID).
		Str("worker", worker.ID).
		Str("doc_type", string(docType)).
		Str("total", reply.TotalString(created.Total)).
		Str("status", created.Status.String()).
		Msg("document logged")

	vendor := "an unknown vendor"
	if created.Vendor != nil {
		vendor = *created.Vendor
	}
	var b strings.Builder
	if img.LowQuality {
		b.WriteString(reply.QualityWarning(lang))
		b.WriteString("\n\n")
	}
	if docType == model.DocPackingSlip {
		b.WriteString(reply.PackingSlipSaved(lang, worker.Name, vendor))
	} else {
		b.WriteString(reply.InvoiceSaved(lang, worker.Name, vendor))
	}
	return b.String(), nil
}

// reconcileAndPersist resolves project and category references and commits
// the record with its line items in one transaction.
func (s *IntakeService) reconcileAndPersist(ctx context.Context, worker *model.Worker, caption, imageRef string, e *model.Extraction) (*model.Record, string, []string, error) {
	lang := reply.LangFor(worker.Language)
	rec := &model.Record{
		WorkerID:      worker.ID,
		DocType:       model.DocReceipt,
		Vendor:        e.Vendor,
		VendorCity:    e.VendorCity,
		VendorState:   e.VendorState,
		PurchaseDate:  e.PurchaseDate,
		Subtotal:      e.Subtotal,
		Tax:           e.Tax,
		Total:         e.Total,
		Payment:       e.Payment,
		ImageRef:      &imageRef,
		RawExtraction: e.Raw,
		Status:        model.StatusPending,
	}
	for _, it := range e.Items {
		rec.Items = append(rec.Items, model.LineItem{
			Name:       it.Name,
			Quantity:   it.Quantity,
			UnitAmount: it.UnitAmount,
			Extended:   it.Extended,
		})
	}

	var projectName string
	var flagReasons []string

	if caption != "" {
		projects, err := s.store.Projects().ListActive(ctx)
		if err != nil {
			return nil, "", nil, err
		}
		m := reconcile.MatchProject(caption, projects, s.projectThresh)
		rec.ProjectCaption = &m.Caption
		rec.ProjectScore = &m.Score
		if m.Project != nil {
			rec.ProjectID = &m.Project.ID
			projectName = m.Project.Name
		} else {
			flagReasons = append(flagReasons, "Project unresolved")
		}
	}

	categories, err := s.store.Categories().ListActive(ctx)
	if err != nil {
		return nil, "", nil, err
	}
	suggestion := ""
	if e.CategorySuggestion != nil {
		suggestion = *e.CategorySuggestion
	}
	vendor := ""
	if e.Vendor != nil {
		vendor = *e.Vendor
	}
	if cat := reconcile.ResolveCategory(suggestion, vendor, categories, s.categoryThresh); cat != nil {
		rec.CategoryID = &cat.ID
	} else {
		flagReasons = append(flagReasons, "Category unresolved")
	}

	var warnings []string
	if e.Vendor != nil && e.Total != nil && e.PurchaseDate != nil {
		dup, err := s.store.Records().FindSimilar(ctx, worker.ID, *e.Vendor, e.Total.String(), *e.PurchaseDate)
		if err != nil && !errors.Is(err, model.ErrNotFound) {
			return nil, "", nil, err
		}
		if dup != nil {
			rec.DuplicateOf = &dup.ID
			flagReasons = append(flagReasons, "Possible duplicate - similar receipt already exists")
			warnings = append(warnings, reply.DuplicateWarning(lang))
		}
	}

	if len(flagReasons) > 0 {
		rec.Status = model.StatusFlagged
		reason := strings.Join(flagReasons, "; ")
		rec.FlagReason = &reason
	}

	created, err := s.store.Records().Create(ctx, rec)
	if err != nil {
		return nil, "", nil, err
	}
	s.log.Info().
		Str("record", created.ID).
		Str("worker", worker.ID).
		Str("vendor", vendor).
		Str("total", reply.TotalString(created.Total)).
		Int("items", len(created.Items)).
		Str("status", created.Status.String()).
		Msg("record created")
	return created, projectName, warnings, nil
}

func (s *IntakeService) createFlagged(ctx context.Context, worker *model.Worker, docType model.DocType, caption string, imageRef *string, raw json.RawMessage, reason string) (*model.Record, error) {
	rec := &model.Record{
		WorkerID:      worker.ID,
		DocType:       docType,
		ImageRef:      imageRef,
		RawExtraction: raw,
		Status:        model.StatusFlagged,
		FlagReason:    &reason,
	}
	if caption != "" {
		rec.ProjectCaption = &caption
	}
	return s.store.Records().Create(ctx, rec)
}

func (s *IntakeService) startMissedFlow(ctx context.Context, worker *model.Worker, msg model.InboundMessage, st *model.ConversationState) (string, error) {
	lang := reply.LangFor(worker.Language)
	reason := "Missed receipt"
	rec := &model.Record{
		WorkerID:      worker.ID,
		Status:        model.StatusFlagged,
		FlagReason:    &reason,
		MissedReceipt: true,
	}
	created, err := s.store.Records().Create(ctx, rec)
	if err != nil {
		return "", err
	}
	if _, err := s.saveState(ctx, st, model.StateAwaitingMissedDetails, &created.ID, nil); err != nil {
		if errors.Is(err, model.ErrStateConflict) {
			return reply.InProgress(lang, worker.Name), nil
		}
		return "", err
	}
	return reply.MissedReceiptPrompt(lang, worker.Name), nil
}

func (s *IntakeService) captureMissedDetails(ctx context.Context, worker *model.Worker, msg model.InboundMessage, st *model.ConversationState) (string, error) {
	lang := reply.LangFor(worker.Language)
	if st.RecordID != nil {
		details := convo.ParseMissedDetails(msg.Body)
		parsed, _ := json.Marshal(details)
		if err := s.store.Records().AppendContext(ctx, *st.RecordID, "missed_details_text", msg.Body); err != nil && !errors.Is(err, model.ErrNotFound) {
			return "", err
		}
		if err := s.store.Records().AppendContext(ctx, *st.RecordID, "missed_details", string(parsed)); err != nil && !errors.Is(err, model.ErrNotFound) {
			return "", err
		}
		reason := "Missed receipt - details provided"
		if err := s.store.Records().UpdateStatus(ctx, *st.RecordID, model.StatusFlagged, &reason); err != nil && !errors.Is(err, model.ErrNotFound) {
			return "", err
		}
	}
	if _, err := s.saveState(ctx, st, model.StateIdle, st.RecordID, nil); err != nil {
		if errors.Is(err, model.ErrStateConflict) {
			return reply.InProgress(lang, worker.Name), nil
		}
		return "", err
	}
	return reply.MissedReceiptSaved(lang, worker.Name), nil
}

func (s *IntakeService) confirmRecord(ctx context.Context, worker *model.Worker, st *model.ConversationState) (string, error) {
	lang := reply.LangFor(worker.Language)
	if st.RecordID != nil {
		if err := s.store.Records().UpdateStatus(ctx, *st.RecordID, model.StatusConfirmed, nil); err != nil && !errors.Is(err, model.ErrNotFound) {
			return "", err
		}
		s.log.Info().Str("record", *st.RecordID).Str("worker", worker.ID).Msg("record confirmed by submitter")
	}
	if _, err := s.saveState(ctx, st, model.StateIdle, nil, nil); err != nil {
		if errors.Is(err, model.ErrStateConflict) {
			return reply.InProgress(lang, worker.Name), nil
		}
		return "", err
	}
	return reply.Confirmed(lang, worker.Name), nil
}

func (s *IntakeService) rejectRecord(ctx context.Context, worker *model.Worker, st *model.ConversationState) (string, error) {
	lang := reply.LangFor(worker.Language)
	if st.RecordID != nil {
		reason := "Submitter rejected extraction"
		if err := s.store.Records().UpdateStatus(ctx, *st.RecordID, model.StatusFlagged, &reason); err != nil && !errors.Is(err, model.ErrNotFound) {
			return "", err
		}
		s.log.Info().Str("record", *st.RecordID).Str("worker", worker.ID).Msg("record rejected by submitter")
	}
	if _, err := s.saveState(ctx, st, model.StateAwaitingManualEntry, st.RecordID, nil); err != nil {
		if errors.Is(err, model.ErrStateConflict) {
			return reply.InProgress(lang, worker.Name), nil
		}
		return "", err
	}
	return reply.Rejected(lang, worker.Name), nil
}

func (s *IntakeService) captureManualEntry(ctx context.Context, worker *model.Worker, msg model.InboundMessage, st *model.ConversationState) (string, error) {
	lang := reply.LangFor(worker.Language)
	if st.RecordID != nil {
		if err := s.store.Records().AppendContext(ctx, *st.RecordID, "manual_entry_text", msg.Body); err != nil && !errors.Is(err, model.ErrNotFound) {
			return "", err
		}
		reason := "Manual entry - needs review"
		if err := s.store.Records().UpdateStatus(ctx, *st.RecordID, model.StatusFlagged, &reason); err != nil && !errors.Is(err, model.ErrNotFound) {
			return "", err
		}
	}
	if _, err := s.saveState(ctx, st, model.StateIdle, st.RecordID, nil); err != nil {
		if errors.Is(err, model.ErrStateConflict) {
			return reply.InProgress(lang, worker.Name), nil
		}
		return "", err
	}
	return reply.ManualEntrySaved(lang, worker.Name), nil
}

func (s *IntakeService) captureName(ctx context.Context, worker *model.Worker, msg model.InboundMessage, st *model.ConversationState) (string, error) {
	name, found := s.patterns.ExtractIntroducedName(msg.Body)
	if found {
		if err := s.store.Workers().Rename(ctx, worker.ID, name); err != nil {
			return "", err
		}
	} else {
		name = worker.Name
	}
	if worker.Language == nil {
		if _, err := s.saveState(ctx, st, model.StateAwaitingLanguage, nil, nil); err != nil {
			if errors.Is(err, model.ErrStateConflict) {
				return reply.InProgress(reply.English, name), nil
			}
			return "", err
		}
		return reply.LanguagePrompt(), nil
	}
	lang := reply.LangFor(worker.Language)
	if _, err := s.saveState(ctx, st, model.StateIdle, nil, nil); err != nil {
		if errors.Is(err, model.ErrStateConflict) {
			return reply.InProgress(lang, name), nil
		}
		return "", err
	}
	return reply.Welcome(lang, name), nil
}

// captureLanguage reads the worker's language choice. An unmatched reply
// holds the state and reprompts in both languages.
func (s *IntakeService) captureLanguage(ctx context.Context, worker *model.Worker, msg model.InboundMessage, st *model.ConversationState) (string, error) {
	code, ok := s.patterns.MatchLanguage(msg.Body)
	if !ok {
		return reply.LanguageInvalid(), nil
	}
	if err := s.store.Workers().SetLanguage(ctx, worker.ID, code); err != nil {
		return "", err
	}
	if _, err := s.saveState(ctx, st, model.StateIdle, nil, nil); err != nil {
		if errors.Is(err, model.ErrStateConflict) {
			return reply.InProgress(reply.Lang(code), worker.Name), nil
		}
		return "", err
	}
	s.log.Info().Str("worker", worker.ID).Str("language", code).Msg("language preference stored")
	return reply.Welcome(reply.Lang(code), worker.Name), nil
}

// saveState writes the next conversation state using the version the
// transition started from. A conflict means another transition won.
func (s *IntakeService) saveState(ctx context.Context, st *model.ConversationState, tag model.StateTag, recordID *string, context json.RawMessage) (*model.ConversationState, error) {
	next := &model.ConversationState{
		WorkerID: st.WorkerID,
		Tag:      tag,
		RecordID: recordID,
		Context:  context,
		Version:  st.Version,
	}
	return s.store.States().Save(ctx, next)
}
