package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Worker is a field employee who submits documents over the messaging gateway.
// Language is nil until the worker picks one; the pipeline prompts for it on
// the first contact after registration.
type Worker struct {
	ID        string    `json:"id"`
	ContactID string    `json:"contactId"` // E.164 phone number, unique
	Name      string    `json:"name"`
	Crew      *string   `json:"crew,omitempty"`
	Language  *string   `json:"language,omitempty"` // "en" or "es"
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// StateTag enumerates the conversation states a worker can be in.
type StateTag int

const (
	StateIdle StateTag = iota
	StateAwaitingName
	StateAwaitingLanguage
	StateAwaitingConfirmation
	StateAwaitingManualEntry
	StateAwaitingMissedDetails
)

func (s StateTag) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingName:
		return "awaiting_name"
	case StateAwaitingLanguage:
		return "awaiting_language"
	case StateAwaitingConfirmation:
		return "awaiting_confirmation"
	case StateAwaitingManualEntry:
		return "awaiting_manual_entry"
	case StateAwaitingMissedDetails:
		return "awaiting_missed_details"
	}
	return "unknown"
}

// ParseStateTag maps a stored tag string back to its StateTag.
func ParseStateTag(s string) (StateTag, bool) {
	switch s {
	case "idle":
		return StateIdle, true
	case "awaiting_name":
		return StateAwaitingName, true
	case "awaiting_language":
		return StateAwaitingLanguage, true
	case "awaiting_confirmation":
		return StateAwaitingConfirmation, true
	case "awaiting_manual_entry":
		return StateAwaitingManualEntry, true
	case "awaiting_missed_details":
		return StateAwaitingMissedDetails, true
	}
	return StateIdle, false
}

// ConversationState is the single current state row for a worker.
// Version is an optimistic-concurrency token: Save succeeds only when the
// stored version matches, so two in-flight transitions cannot both commit.
type ConversationState struct {
	WorkerID  string          `json:"workerId"`
	Tag       StateTag        `json:"tag"`
	RecordID  *string         `json:"recordId,omitempty"`
	Context   json.RawMessage `json:"context,omitempty"`
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// RecordStatus enumerates the lifecycle of an intake record.
// DocType is the classified kind of a submitted document. Classification
// falls back to DocReceipt when the classifier cannot decide, so every
// stored record carries a concrete type.
type DocType string

const (
	DocReceipt       DocType = "receipt"
	DocInvoice       DocType = "invoice"
	DocPackingSlip   DocType = "packing_slip"
	DocPurchaseOrder DocType = "purchase_order"
	DocUnknown       DocType = "unknown"
)

// ParseDocType maps a classifier label to its DocType. Unrecognized labels
// report false and callers treat the document as a receipt.
func ParseDocType(s string) (DocType, bool) {
	switch DocType(s) {
	case DocReceipt, DocInvoice, DocPackingSlip, DocPurchaseOrder, DocUnknown:
		return DocType(s), true
	}
	return DocReceipt, false
}

type RecordStatus int

const (
	StatusPending RecordStatus = iota
	StatusConfirmed
	StatusFlagged
	StatusRejected
	StatusDeleted
	StatusDuplicate
)

func (s RecordStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusConfirmed:
		return "confirmed"
	case StatusFlagged:
		return "flagged"
	case StatusRejected:
		return "rejected"
	case StatusDeleted:
		return "deleted"
	case StatusDuplicate:
		return "duplicate"
	}
	return "unknown"
}

// ParseRecordStatus maps a stored status string back to its RecordStatus.
func ParseRecordStatus(s string) (RecordStatus, bool) {
	switch s {
	case "pending":
		return StatusPending, true
	case "confirmed":
		return StatusConfirmed, true
	case "flagged":
		return StatusFlagged, true
	case "rejected":
		return StatusRejected, true
	case "deleted":
		return StatusDeleted, true
	case "duplicate":
		return StatusDuplicate, true
	}
	return StatusPending, false
}

// Record is a structured intake result (typically a receipt).
// Monetary fields are nil when unknown; zero is a valid amount.
// RawExtraction preserves the recognition payload verbatim even after edits.
type Record struct {
	ID             string           `json:"id"`
	WorkerID       string           `json:"workerId"`
	DocType        DocType          `json:"docType"`
	ProjectID      *string          `json:"projectId,omitempty"`
	ProjectCaption *string          `json:"projectCaption,omitempty"`
	ProjectScore   *int             `json:"projectScore,omitempty"`
	CategoryID     *string          `json:"categoryId,omitempty"`
	Vendor         *string          `json:"vendor,omitempty"`
	VendorCity     *string          `json:"vendorCity,omitempty"`
	VendorState    *string          `json:"vendorState,omitempty"`
	PurchaseDate   *string          `json:"purchaseDate,omitempty"` // YYYY-MM-DD
	Subtotal       *decimal.Decimal `json:"subtotal,omitempty"`
	Tax            *decimal.Decimal `json:"tax,omitempty"`
	Total          *decimal.Decimal `json:"total,omitempty"`
	Payment        *string          `json:"payment,omitempty"`
	ImageRef       *string          `json:"imageRef,omitempty"`
	RawExtraction  json.RawMessage  `json:"rawExtraction,omitempty"`
	Status         RecordStatus     `json:"status"`
	FlagReason     *string          `json:"flagReason,omitempty"`
	MissedReceipt  bool             `json:"missedReceipt"`
	DuplicateOf    *string          `json:"duplicateOf,omitempty"`
	ConfirmedAt    *time.Time       `json:"confirmedAt,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	Items          []LineItem       `json:"items,omitempty"`
}

// LineItem is a child row of a Record.
type LineItem struct {
	RecordID   string           `json:"recordId"`
	Position   int              `json:"position"`
	Name       string           `json:"name"`
	Quantity   decimal.Decimal  `json:"quantity"`
	UnitAmount *decimal.Decimal `json:"unitAmount,omitempty"`
	Extended   *decimal.Decimal `json:"extended,omitempty"`
	CategoryID *string          `json:"categoryId,omitempty"`
}

// Project is an active job that receipts are charged against.
type Project struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Category is a spend category. Referenced categories are never removed,
// only deactivated, so historical labels survive.
type Category struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Active       bool   `json:"active"`
	DisplayOrder int    `json:"displayOrder"`
}

// AuditEntry is one append-only field change on a record.
type AuditEntry struct {
	RecordID  string    `json:"recordId"`
	Field     string    `json:"field"`
	OldValue  *string   `json:"oldValue,omitempty"`
	NewValue  *string   `json:"newValue,omitempty"`
	Actor     string    `json:"actor"`
	CreatedAt time.Time `json:"createdAt"`
}

// UnknownContact records a message from a sender outside the worker
// directory. No reply is sent; the row feeds the human review queue.
type UnknownContact struct {
	ContactID string    `json:"contactId"`
	Excerpt   *string   `json:"excerpt,omitempty"`
	HasMedia  bool      `json:"hasMedia"`
	SeenAt    time.Time `json:"seenAt"`
}

// Attachment is a gateway media reference on an inbound message.
type Attachment struct {
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
}

// InboundMessage is the shape the pipeline receives from the gateway.
type InboundMessage struct {
	MessageID   string       `json:"messageId"`
	From        string       `json:"from"`
	To          string       `json:"to"`
	Body        string       `json:"body"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// ExtractedItem is one line item in a structured extraction result.
type ExtractedItem struct {
	Name       string
	Quantity   decimal.Decimal
	UnitAmount *decimal.Decimal
	Extended   *decimal.Decimal
}

// Extraction is the validated shape produced from a raw recognition
// response. Raw holds the payload verbatim for the audit trail.
type Extraction struct {
	Vendor             *string
	VendorCity         *string
	VendorState        *string
	PurchaseDate       *string
	Subtotal           *decimal.Decimal
	Tax                *decimal.Decimal
	Total              *decimal.Decimal
	Payment            *string
	CategorySuggestion *string
	Items              []ExtractedItem
	Raw                json.RawMessage
}
