package store

import (
	"context"

	"github.com/crewledger/crewledger/internal/model"
)

// Store exposes persistence operations required by the intake pipeline.
// Implementations live under internal/store/<driver>/ (postgres, sqlite).
type Store interface {
	Workers() Workers
	Projects() Projects
	Categories() Categories
	Records() Records
	States() States
	Audit() Audit
	Inbox() Inbox
	UnknownContacts() UnknownContacts
}

type Workers interface {
	// Register creates a worker for a contact id. Registration is
	// idempotent: if the contact id already exists the stored worker is
	// returned unchanged.
	Register(ctx context.Context, w *model.Worker) (*model.Worker, error)
	GetByContact(ctx context.Context, contactID string) (*model.Worker, error)
	GetByID(ctx context.Context, workerID string) (*model.Worker, error)
	Rename(ctx context.Context, workerID, name string) error
	// SetLanguage stores the worker's chosen reply language ("en" or "es").
	SetLanguage(ctx context.Context, workerID, lang string) error
	Deactivate(ctx context.Context, workerID string) error
	List(ctx context.Context) ([]*model.Worker, error)
}

type Projects interface {
	Create(ctx context.Context, p *model.Project) (*model.Project, error)
	ListActive(ctx context.Context) ([]*model.Project, error)
	Deactivate(ctx context.Context, projectID string) error
}

type Categories interface {
	Create(ctx context.Context, c *model.Category) (*model.Category, error)
	ListActive(ctx context.Context) ([]*model.Category, error)
	GetByName(ctx context.Context, name string) (*model.Category, error)
	Deactivate(ctx context.Context, categoryID string) error
}

type Records interface {
	// Create persists the record and its line items in one transaction.
	Create(ctx context.Context, r *model.Record) (*model.Record, error)
	GetByID(ctx context.Context, recordID string) (*model.Record, error)
	// UpdateStatus moves a record through its lifecycle. ConfirmedAt is
	// stamped when status becomes confirmed.
	UpdateStatus(ctx context.Context, recordID string, status model.RecordStatus, flagReason *string) error
	// AppendContext merges extra JSON (manual entry text, missed details)
	// into the record's raw extraction context for later review.
	AppendContext(ctx context.Context, recordID string, key, text string) error
	// FindSimilar reports an existing record for the same worker, vendor,
	// total and purchase date, excluding retired statuses. Used for
	// duplicate detection.
	FindSimilar(ctx context.Context, workerID, vendor, total, purchaseDate string) (*model.Record, error)
	ListFlagged(ctx context.Context) ([]*model.Record, error)
}

type States interface {
	// Get returns the current state for a worker, or a fresh idle state at
	// version zero if none has been stored yet.
	Get(ctx context.Context, workerID string) (*model.ConversationState, error)
	// Save writes the state if and only if the stored version still equals
	// s.Version; on success the stored version becomes s.Version+1.
	// A mismatch returns model.ErrStateConflict.
	Save(ctx context.Context, s *model.ConversationState) (*model.ConversationState, error)
}

type Audit interface {
	// Append records one field-level change. Append-only by contract.
	Append(ctx context.Context, e *model.AuditEntry) error
	ListByRecord(ctx context.Context, recordID string) ([]*model.AuditEntry, error)
}

type Inbox interface {
	// MarkProcessed records a gateway message id. A repeat id returns
	// model.ErrDuplicateMessage so the caller can no-op the delivery.
	MarkProcessed(ctx context.Context, messageID string) error
	// Release removes a previously marked message id so a gateway retry is
	// processed again. Called when handling fails after the mark.
	Release(ctx context.Context, messageID string) error
}

type UnknownContacts interface {
	Log(ctx context.Context, u *model.UnknownContact) error
	List(ctx context.Context) ([]*model.UnknownContact, error)
}
