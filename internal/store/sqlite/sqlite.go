package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/crewledger/crewledger/internal/model"
	"github.com/crewledger/crewledger/internal/store"
)

//go:embed schema.sql
var ddl string

// Open opens (or creates) a SQLite database at the given path and enables
// WAL journal mode for better concurrency on read-heavy workloads.
func Open(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// OpenMemory opens a private in-memory database, used by tests.
func OpenMemory() (*sql.DB, error) {
	db, err := sql.Open("sqlite", "file:crewledger?mode=memory&cache=shared&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, err
	}
	// A single connection keeps the shared-cache memory database alive.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// EnsureSchema applies the embedded DDL. Statements are idempotent
// (CREATE TABLE IF NOT EXISTS), so calling it on every start is safe.
func EnsureSchema(db *sql.DB) error {
	for _, stmt := range strings.Split(ddl, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// New constructs a SQLite-backed store over database/sql.
func New(db *sql.DB) store.Store { return &sqliteStore{db: db} }

type sqliteStore struct{ db *sql.DB }

func (s *sqliteStore) Workers() store.Workers                 { return &workers{db: s.db} }
func (s *sqliteStore) Projects() store.Projects               { return &projects{db: s.db} }
func (s *sqliteStore) Categories() store.Categories           { return &categories{db: s.db} }
func (s *sqliteStore) Records() store.Records                 { return &records{db: s.db} }
func (s *sqliteStore) States() store.States                   { return &states{db: s.db} }
func (s *sqliteStore) Audit() store.Audit                     { return &audit{db: s.db} }
func (s *sqliteStore) Inbox() store.Inbox                     { return &inbox{db: s.db} }
func (s *sqliteStore) UnknownContacts() store.UnknownContacts { return &unknowns{db: s.db} }

// HealthPing reports datastore connectivity.
func (s *sqliteStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Timestamps are stored as RFC3339 text so both drivers read them the same way.
func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func decToStr(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func strToDec(s *string) *decimal.Decimal {
	if s == nil {
		return nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil
	}
	return &d
}

// --- Workers ---

type workers struct{ db *sql.DB }

func (w *workers) Register(ctx context.Context, m *model.Worker) (*model.Worker, error) {
	id := m.ID
	if id == "" {
		id = uuid.New().String()
	}
	ts := now()
	// Idempotent on contact_id: a concurrent duplicate insert loses the
	// race and falls through to the select below.
	_, err := w.db.ExecContext(ctx, `
        INSERT INTO workers (id, contact_id, name, crew, language, active, created_at, updated_at)
        VALUES (?,?,?,?,?,1,?,?)
        ON CONFLICT(contact_id) DO NOTHING
    `, id, m.ContactID, m.Name, m.Crew, m.Language, ts, ts)
	if err != nil {
		return nil, err
	}
	return w.GetByContact(ctx, m.ContactID)
}

func (w *workers) GetByContact(ctx context.Context, contactID string) (*model.Worker, error) {
	return w.scanOne(ctx, `SELECT id, contact_id, name, crew, language, active, created_at, updated_at
        FROM workers WHERE contact_id = ?`, contactID)
}

func (w *workers) GetByID(ctx context.Context, workerID string) (*model.Worker, error) {
	return w.scanOne(ctx, `SELECT id, contact_id, name, crew, language, active, created_at, updated_at
        FROM workers WHERE id = ?`, workerID)
}

func (w *workers) scanOne(ctx context.Context, query string, arg any) (*model.Worker, error) {
	var out model.Worker
	var active int
	var created, updated string
	row := w.db.QueryRowContext(ctx, query, arg)
	if err := row.Scan(&out.ID, &out.ContactID, &out.Name, &out.Crew, &out.Language, &active, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	out.Active = active == 1
	out.CreatedAt = parseTime(created)
	out.UpdatedAt = parseTime(updated)
	return &out, nil
}

func (w *workers) Rename(ctx context.Context, workerID, name string) error {
	res, err := w.db.ExecContext(ctx,
		`UPDATE workers SET name = ?, updated_at = ? WHERE id = ?`, name, now(), workerID)
	if err != nil {
		return err
	}
	return oneRow(res)
}

func (w *workers) SetLanguage(ctx context.Context, workerID, lang string) error {
	res, err := w.db.ExecContext(ctx,
		`UPDATE workers SET language = ?, updated_at = ? WHERE id = ?`, lang, now(), workerID)
	if err != nil {
		return err
	}
	return oneRow(res)
}

func (w *workers) Deactivate(ctx context.Context, workerID string) error {
	res, err := w.db.ExecContext(ctx,
		`UPDATE workers SET active = 0, updated_at = ? WHERE id = ?`, now(), workerID)
	if err != nil {
		return err
	}
	return oneRow(res)
}

func (w *workers) List(ctx context.Context) ([]*model.Worker, error) {
	rows, err := w.db.QueryContext(ctx, `SELECT id, contact_id, name, crew, language, active, created_at, updated_at
        FROM workers ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.Worker
	for rows.Next() {
		var m model.Worker
		var active int
		var created, updated string
		if err := rows.Scan(&m.ID, &m.ContactID, &m.Name, &m.Crew, &m.Language, &active, &created, &updated); err != nil {
			return nil, err
		}
		m.Active = active == 1
		m.CreatedAt = parseTime(created)
		m.UpdatedAt = parseTime(updated)
		out = append(out, &m)
	}
	return out, rows.Err()
}

func oneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// --- Projects ---

type projects struct{ db *sql.DB }

func (p *projects) Create(ctx context.Context, m *model.Project) (*model.Project, error) {
	id := m.ID
	if id == "" {
		id = uuid.New().String()
	}
	if _, err := p.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, active) VALUES (?,?,1)`, id, m.Name); err != nil {
		return nil, err
	}
	return &model.Project{ID: id, Name: m.Name, Active: true}, nil
}

func (p *projects) ListActive(ctx context.Context) ([]*model.Project, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, name FROM projects WHERE active = 1 ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.Project
	for rows.Next() {
		m := model.Project{Active: true}
		if err := rows.Scan(&m.ID, &m.Name); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (p *projects) Deactivate(ctx context.Context, projectID string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE projects SET active = 0 WHERE id = ?`, projectID)
	if err != nil {
		return err
	}
	return oneRow(res)
}

// --- Categories ---

type categories struct{ db *sql.DB }

func (c *categories) Create(ctx context.Context, m *model.Category) (*model.Category, error) {
	id := m.ID
	if id == "" {
		id = uuid.New().String()
	}
	if _, err := c.db.ExecContext(ctx,
		`INSERT INTO categories (id, name, active, display_order) VALUES (?,?,1,?)`,
		id, m.Name, m.DisplayOrder); err != nil {
		return nil, err
	}
	return &model.Category{ID: id, Name: m.Name, Active: true, DisplayOrder: m.DisplayOrder}, nil
}

func (c *categories) ListActive(ctx context.Context) ([]*model.Category, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, name, display_order FROM categories WHERE active = 1 ORDER BY display_order, name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.Category
	for rows.Next() {
		m := model.Category{Active: true}
		if err := rows.Scan(&m.ID, &m.Name, &m.DisplayOrder); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (c *categories) GetByName(ctx context.Context, name string) (*model.Category, error) {
	m := model.Category{Active: true}
	row := c.db.QueryRowContext(ctx,
		`SELECT id, name, display_order FROM categories WHERE active = 1 AND LOWER(name) = LOWER(?)`, name)
	if err := row.Scan(&m.ID, &m.Name, &m.DisplayOrder); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (c *categories) Deactivate(ctx context.Context, categoryID string) error {
	res, err := c.db.ExecContext(ctx, `UPDATE categories SET active = 0 WHERE id = ?`, categoryID)
	if err != nil {
		return err
	}
	return oneRow(res)
}

// --- Records ---

type records struct{ db *sql.DB }

func (r *records) Create(ctx context.Context, m *model.Record) (*model.Record, error) {
	id := m.ID
	if id == "" {
		id = uuid.New().String()
	}
	ts := now()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var raw *string
	if len(m.RawExtraction) > 0 {
		s := string(m.RawExtraction)
		raw = &s
	}
	docType := m.DocType
	if docType == "" {
		docType = model.DocReceipt
	}
	_, err = tx.ExecContext(ctx, `
        INSERT INTO records
            (id, worker_id, doc_type, project_id, project_caption, project_score, category_id,
             vendor, vendor_city, vendor_state, purchase_date,
             subtotal, tax, total, payment, image_ref, raw_extraction,
             status, flag_reason, missed_receipt, duplicate_of, created_at)
        VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
    `, id, m.WorkerID, string(docType), m.ProjectID, m.ProjectCaption, m.ProjectScore, m.CategoryID,
		m.Vendor, m.VendorCity, m.VendorState, m.PurchaseDate,
		decToStr(m.Subtotal), decToStr(m.Tax), decToStr(m.Total), m.Payment, m.ImageRef, raw,
		m.Status.String(), m.FlagReason, boolInt(m.MissedReceipt), m.DuplicateOf, ts)
	if err != nil {
		return nil, err
	}

	for i, item := range m.Items {
		_, err = tx.ExecContext(ctx, `
            INSERT INTO line_items (record_id, position, name, quantity, unit_amount, extended, category_id)
            VALUES (?,?,?,?,?,?,?)
        `, id, i, item.Name, item.Quantity.String(),
			decToStr(item.UnitAmount), decToStr(item.Extended), item.CategoryID)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	out := *m
	out.ID = id
	out.DocType = docType
	out.CreatedAt = parseTime(ts)
	return &out, nil
}

const recordColumns = `id, worker_id, doc_type, project_id, project_caption, project_score, category_id,
    vendor, vendor_city, vendor_state, purchase_date, subtotal, tax, total, payment,
    image_ref, raw_extraction, status, flag_reason, missed_receipt, duplicate_of,
    confirmed_at, created_at`

func scanRecord(sc interface{ Scan(...any) error }) (*model.Record, error) {
	var m model.Record
	var sub, tax, total, raw, status, confirmed *string
	var docType, created string
	var missed int
	err := sc.Scan(&m.ID, &m.WorkerID, &docType, &m.ProjectID, &m.ProjectCaption, &m.ProjectScore, &m.CategoryID,
		&m.Vendor, &m.VendorCity, &m.VendorState, &m.PurchaseDate, &sub, &tax, &total, &m.Payment,
		&m.ImageRef, &raw, &status, &m.FlagReason, &missed, &m.DuplicateOf, &confirmed, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	m.DocType, _ = model.ParseDocType(docType)
	m.Subtotal, m.Tax, m.Total = strToDec(sub), strToDec(tax), strToDec(total)
	if raw != nil {
		m.RawExtraction = json.RawMessage(*raw)
	}
	if status != nil {
		m.Status, _ = model.ParseRecordStatus(*status)
	}
	m.MissedReceipt = missed == 1
	if confirmed != nil {
		t := parseTime(*confirmed)
		m.ConfirmedAt = &t
	}
	m.CreatedAt = parseTime(created)
	return &m, nil
}

func (r *records) GetByID(ctx context.Context, recordID string) (*model.Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE id = ?`, recordID)
	m, err := scanRecord(row)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
        SELECT record_id, position, name, quantity, unit_amount, extended, category_id
        FROM line_items WHERE record_id = ? ORDER BY position`, recordID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var it model.LineItem
		var qty string
		var unit, ext *string
		if err := rows.Scan(&it.RecordID, &it.Position, &it.Name, &qty, &unit, &ext, &it.CategoryID); err != nil {
			return nil, err
		}
		if q, qerr := decimal.NewFromString(qty); qerr == nil {
			it.Quantity = q
		}
		it.UnitAmount, it.Extended = strToDec(unit), strToDec(ext)
		m.Items = append(m.Items, it)
	}
	return m, rows.Err()
}

func (r *records) UpdateStatus(ctx context.Context, recordID string, status model.RecordStatus, flagReason *string) error {
	var confirmed *string
	if status == model.StatusConfirmed {
		ts := now()
		confirmed = &ts
	}
	res, err := r.db.ExecContext(ctx, `
        UPDATE records SET status = ?, flag_reason = COALESCE(?, flag_reason),
            confirmed_at = COALESCE(?, confirmed_at)
        WHERE id = ?`, status.String(), flagReason, confirmed, recordID)
	if err != nil {
		return err
	}
	return oneRow(res)
}

func (r *records) AppendContext(ctx context.Context, recordID, key, text string) error {
	blob, err := json.Marshal(map[string]string{key: text})
	if err != nil {
		return err
	}
	// Keep the original payload untouched; free text lands in a sibling
	// JSON object keyed by its flow.
	res, err := r.db.ExecContext(ctx, `
        UPDATE records
        SET raw_extraction = CASE
            WHEN raw_extraction IS NULL OR raw_extraction = '' THEN ?
            ELSE json_patch(raw_extraction, ?)
        END
        WHERE id = ?`, string(blob), string(blob), recordID)
	if err != nil {
		return err
	}
	return oneRow(res)
}

func (r *records) FindSimilar(ctx context.Context, workerID, vendor, total, purchaseDate string) (*model.Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records
        WHERE worker_id = ? AND vendor = ? AND total = ? AND purchase_date = ?
          AND status NOT IN ('deleted', 'duplicate')
        LIMIT 1`, workerID, vendor, total, purchaseDate)
	return scanRecord(row)
}

func (r *records) ListFlagged(ctx context.Context) ([]*model.Record, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE status = 'flagged' ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.Record
	for rows.Next() {
		m, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// --- Conversation states ---

type states struct{ db *sql.DB }

func (s *states) Get(ctx context.Context, workerID string) (*model.ConversationState, error) {
	var out model.ConversationState
	var tag, updated string
	var blob *string
	row := s.db.QueryRowContext(ctx, `
        SELECT worker_id, tag, record_id, context, version, updated_at
        FROM conversation_states WHERE worker_id = ?`, workerID)
	err := row.Scan(&out.WorkerID, &tag, &out.RecordID, &blob, &out.Version, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return &model.ConversationState{WorkerID: workerID, Tag: model.StateIdle}, nil
	}
	if err != nil {
		return nil, err
	}
	out.Tag, _ = model.ParseStateTag(tag)
	if blob != nil {
		out.Context = json.RawMessage(*blob)
	}
	out.UpdatedAt = parseTime(updated)
	return &out, nil
}

func (s *states) Save(ctx context.Context, st *model.ConversationState) (*model.ConversationState, error) {
	var blob *string
	if len(st.Context) > 0 {
		b := string(st.Context)
		blob = &b
	}
	ts := now()

	if st.Version == 0 {
		// First transition for this worker: insert, losing gracefully if a
		// concurrent transition got there first.
		res, err := s.db.ExecContext(ctx, `
            INSERT INTO conversation_states (worker_id, tag, record_id, context, version, updated_at)
            VALUES (?,?,?,?,1,?)
            ON CONFLICT(worker_id) DO NOTHING
        `, st.WorkerID, st.Tag.String(), st.RecordID, blob, ts)
		if err != nil {
			return nil, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			// Row exists. The caller read version 0 from Get on a worker
			// that actually has state, or lost an insert race. Retry the
			// versioned update path below against version 0 rows only.
			return s.casUpdate(ctx, st, blob, ts)
		}
	} else {
		if _, err := s.casUpdate(ctx, st, blob, ts); err != nil {
			return nil, err
		}
	}

	out := *st
	out.Version = st.Version + 1
	out.UpdatedAt = parseTime(ts)
	return &out, nil
}

func (s *states) casUpdate(ctx context.Context, st *model.ConversationState, blob *string, ts string) (*model.ConversationState, error) {
	res, err := s.db.ExecContext(ctx, `
        UPDATE conversation_states
        SET tag = ?, record_id = ?, context = ?, version = version + 1, updated_at = ?
        WHERE worker_id = ? AND version = ?
    `, st.Tag.String(), st.RecordID, blob, ts, st.WorkerID, st.Version)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, model.ErrStateConflict
	}
	out := *st
	out.Version = st.Version + 1
	out.UpdatedAt = parseTime(ts)
	return &out, nil
}

// --- Audit ---

type audit struct{ db *sql.DB }

func (a *audit) Append(ctx context.Context, e *model.AuditEntry) error {
	_, err := a.db.ExecContext(ctx, `
        INSERT INTO audit_entries (record_id, field, old_value, new_value, actor, created_at)
        VALUES (?,?,?,?,?,?)
    `, e.RecordID, e.Field, e.OldValue, e.NewValue, e.Actor, now())
	return err
}

func (a *audit) ListByRecord(ctx context.Context, recordID string) ([]*model.AuditEntry, error) {
	rows, err := a.db.QueryContext(ctx, `
        SELECT record_id, field, old_value, new_value, actor, created_at
        FROM audit_entries WHERE record_id = ? ORDER BY created_at`, recordID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var created string
		if err := rows.Scan(&e.RecordID, &e.Field, &e.OldValue, &e.NewValue, &e.Actor, &created); err != nil {
			return nil, err
		}
		e.CreatedAt = parseTime(created)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// --- Inbox (gateway message idempotency) ---

type inbox struct{ db *sql.DB }

func (i *inbox) MarkProcessed(ctx context.Context, messageID string) error {
	res, err := i.db.ExecContext(ctx, `
        INSERT INTO processed_messages (message_id, processed_at) VALUES (?,?)
        ON CONFLICT(message_id) DO NOTHING
    `, messageID, now())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrDuplicateMessage
	}
	return nil
}

func (i *inbox) Release(ctx context.Context, messageID string) error {
	_, err := i.db.ExecContext(ctx,
		`DELETE FROM processed_messages WHERE message_id = ?`, messageID)
	return err
}

// --- Unknown contacts ---

type unknowns struct{ db *sql.DB }

func (u *unknowns) Log(ctx context.Context, m *model.UnknownContact) error {
	_, err := u.db.ExecContext(ctx, `
        INSERT INTO unknown_contacts (contact_id, excerpt, has_media, seen_at)
        VALUES (?,?,?,?)
    `, m.ContactID, m.Excerpt, boolInt(m.HasMedia), now())
	return err
}

func (u *unknowns) List(ctx context.Context) ([]*model.UnknownContact, error) {
	rows, err := u.db.QueryContext(ctx, `
        SELECT contact_id, excerpt, has_media, seen_at FROM unknown_contacts ORDER BY seen_at`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.UnknownContact
	for rows.Next() {
		var m model.UnknownContact
		var hasMedia int
		var seen string
		if err := rows.Scan(&m.ContactID, &m.Excerpt, &hasMedia, &seen); err != nil {
			return nil, err
		}
		m.HasMedia = hasMedia == 1
		m.SeenAt = parseTime(seen)
		out = append(out, &m)
	}
	return out, rows.Err()
}
