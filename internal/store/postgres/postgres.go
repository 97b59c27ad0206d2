package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"github.com/crewledger/crewledger/internal/model"
	"github.com/crewledger/crewledger/internal/store"
)

//go:embed schema.sql
var ddl string

// Open opens a PostgreSQL connection using the pgx stdlib driver and
// verifies connectivity.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// EnsureSchema applies the embedded DDL. Statements are idempotent, so
// crewctl init can run it against a fresh or existing database.
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

// New constructs a Postgres-backed store over database/sql.
func New(db *sql.DB) store.Store { return &pgStore{db: db} }

type pgStore struct{ db *sql.DB }

func (s *pgStore) Workers() store.Workers                 { return &workers{db: s.db} }
func (s *pgStore) Projects() store.Projects               { return &projects{db: s.db} }
func (s *pgStore) Categories() store.Categories           { return &categories{db: s.db} }
func (s *pgStore) Records() store.Records                 { return &records{db: s.db} }
func (s *pgStore) States() store.States                   { return &states{db: s.db} }
func (s *pgStore) Audit() store.Audit                     { return &audit{db: s.db} }
func (s *pgStore) Inbox() store.Inbox                     { return &inbox{db: s.db} }
func (s *pgStore) UnknownContacts() store.UnknownContacts { return &unknowns{db: s.db} }

// HealthPing reports datastore connectivity.
func (s *pgStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
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
	_, err := w.db.ExecContext(ctx, `
        INSERT INTO workers (id, contact_id, name, crew, language)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (contact_id) DO NOTHING
    `, id, m.ContactID, m.Name, m.Crew, m.Language)
	if err != nil {
		return nil, err
	}
	return w.GetByContact(ctx, m.ContactID)
}

func (w *workers) GetByContact(ctx context.Context, contactID string) (*model.Worker, error) {
	return w.scanOne(ctx, `SELECT id, contact_id, name, crew, language, active, created_at, updated_at
        FROM workers WHERE contact_id = $1`, contactID)
}

func (w *workers) GetByID(ctx context.Context, workerID string) (*model.Worker, error) {
	return w.scanOne(ctx, `SELECT id, contact_id, name, crew, language, active, created_at, updated_at
        FROM workers WHERE id = $1`, workerID)
}

func (w *workers) scanOne(ctx context.Context, query string, arg any) (*model.Worker, error) {
	var out model.Worker
	row := w.db.QueryRowContext(ctx, query, arg)
	if err := row.Scan(&out.ID, &out.ContactID, &out.Name, &out.Crew, &out.Language, &out.Active, &out.CreatedAt, &out.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return &out, nil
}

func (w *workers) Rename(ctx context.Context, workerID, name string) error {
	res, err := w.db.ExecContext(ctx,
		`UPDATE workers SET name = $1, updated_at = now() WHERE id = $2`, name, workerID)
	if err != nil {
		return err
	}
	return oneRow(res)
}

func (w *workers) SetLanguage(ctx context.Context, workerID, lang string) error {
	res, err := w.db.ExecContext(ctx,
		`UPDATE workers SET language = $1, updated_at = now() WHERE id = $2`, lang, workerID)
	if err != nil {
		return err
	}
	return oneRow(res)
}

func (w *workers) Deactivate(ctx context.Context, workerID string) error {
	res, err := w.db.ExecContext(ctx,
		`UPDATE workers SET active = FALSE, updated_at = now() WHERE id = $1`, workerID)
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
		if err := rows.Scan(&m.ID, &m.ContactID, &m.Name, &m.Crew, &m.Language, &m.Active, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
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
		`INSERT INTO projects (id, name) VALUES ($1,$2)`, id, m.Name); err != nil {
		return nil, err
	}
	return &model.Project{ID: id, Name: m.Name, Active: true}, nil
}

func (p *projects) ListActive(ctx context.Context) ([]*model.Project, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, name FROM projects WHERE active ORDER BY name`)
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
	res, err := p.db.ExecContext(ctx, `UPDATE projects SET active = FALSE WHERE id = $1`, projectID)
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
		`INSERT INTO categories (id, name, display_order) VALUES ($1,$2,$3)`,
		id, m.Name, m.DisplayOrder); err != nil {
		return nil, err
	}
	return &model.Category{ID: id, Name: m.Name, Active: true, DisplayOrder: m.DisplayOrder}, nil
}

func (c *categories) ListActive(ctx context.Context) ([]*model.Category, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, name, display_order FROM categories WHERE active ORDER BY display_order, name`)
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
		`SELECT id, name, display_order FROM categories WHERE active AND LOWER(name) = LOWER($1)`, name)
	if err := row.Scan(&m.ID, &m.Name, &m.DisplayOrder); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (c *categories) Deactivate(ctx context.Context, categoryID string) error {
	res, err := c.db.ExecContext(ctx, `UPDATE categories SET active = FALSE WHERE id = $1`, categoryID)
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

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var raw any
	if len(m.RawExtraction) > 0 {
		raw = string(m.RawExtraction)
	}
	docType := m.DocType
	if docType == "" {
		docType = model.DocReceipt
	}
	var created time.Time
	row := tx.QueryRowContext(ctx, `
        INSERT INTO records
            (id, worker_id, doc_type, project_id, project_caption, project_score, category_id,
             vendor, vendor_city, vendor_state, purchase_date,
             subtotal, tax, total, payment, image_ref, raw_extraction,
             status, flag_reason, missed_receipt, duplicate_of)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
        RETURNING created_at
    `, id, m.WorkerID, string(docType), m.ProjectID, m.ProjectCaption, m.ProjectScore, m.CategoryID,
		m.Vendor, m.VendorCity, m.VendorState, m.PurchaseDate,
		decToStr(m.Subtotal), decToStr(m.Tax), decToStr(m.Total), m.Payment, m.ImageRef, raw,
		m.Status.String(), m.FlagReason, m.MissedReceipt, m.DuplicateOf)
	if err := row.Scan(&created); err != nil {
		return nil, err
	}

	for i, item := range m.Items {
		_, err = tx.ExecContext(ctx, `
            INSERT INTO line_items (record_id, position, name, quantity, unit_amount, extended, category_id)
            VALUES ($1,$2,$3,$4,$5,$6,$7)
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
	out.CreatedAt = created
	return &out, nil
}

const recordColumns = `id, worker_id, doc_type, project_id, project_caption, project_score, category_id,
    vendor, vendor_city, vendor_state, purchase_date,
    subtotal::text, tax::text, total::text, payment,
    image_ref, raw_extraction::text, status, flag_reason, missed_receipt, duplicate_of,
    confirmed_at, created_at`

func scanRecord(sc interface{ Scan(...any) error }) (*model.Record, error) {
	var m model.Record
	var sub, tax, total, raw, status *string
	var docType string
	err := sc.Scan(&m.ID, &m.WorkerID, &docType, &m.ProjectID, &m.ProjectCaption, &m.ProjectScore, &m.CategoryID,
		&m.Vendor, &m.VendorCity, &m.VendorState, &m.PurchaseDate, &sub, &tax, &total, &m.Payment,
		&m.ImageRef, &raw, &status, &m.FlagReason, &m.MissedReceipt, &m.DuplicateOf,
		&m.ConfirmedAt, &m.CreatedAt)
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
	return &m, nil
}

func (r *records) GetByID(ctx context.Context, recordID string) (*model.Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE id = $1`, recordID)
	m, err := scanRecord(row)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
        SELECT record_id, position, name, quantity::text, unit_amount::text, extended::text, category_id
        FROM line_items WHERE record_id = $1 ORDER BY position`, recordID)
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
	res, err := r.db.ExecContext(ctx, `
        UPDATE records SET status = $1, flag_reason = COALESCE($2, flag_reason),
            confirmed_at = CASE WHEN $1 = 'confirmed' THEN now() ELSE confirmed_at END
        WHERE id = $3`, status.String(), flagReason, recordID)
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
	res, err := r.db.ExecContext(ctx, `
        UPDATE records
        SET raw_extraction = COALESCE(raw_extraction, '{}'::jsonb) || $1::jsonb
        WHERE id = $2`, string(blob), recordID)
	if err != nil {
		return err
	}
	return oneRow(res)
}

func (r *records) FindSimilar(ctx context.Context, workerID, vendor, total, purchaseDate string) (*model.Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records
        WHERE worker_id = $1 AND vendor = $2 AND total = $3::numeric AND purchase_date = $4
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

// --- Conversation states ---

type states struct{ db *sql.DB }

func (s *states) Get(ctx context.Context, workerID string) (*model.ConversationState, error) {
	var out model.ConversationState
	var tag string
	var blob *string
	row := s.db.QueryRowContext(ctx, `
        SELECT worker_id, tag, record_id, context::text, version, updated_at
        FROM conversation_states WHERE worker_id = $1`, workerID)
	err := row.Scan(&out.WorkerID, &tag, &out.RecordID, &blob, &out.Version, &out.UpdatedAt)
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
	return &out, nil
}

func (s *states) Save(ctx context.Context, st *model.ConversationState) (*model.ConversationState, error) {
	var blob any
	if len(st.Context) > 0 {
		blob = string(st.Context)
	}

	if st.Version == 0 {
		res, err := s.db.ExecContext(ctx, `
            INSERT INTO conversation_states (worker_id, tag, record_id, context, version, updated_at)
            VALUES ($1,$2,$3,$4,1,now())
            ON CONFLICT (worker_id) DO NOTHING
        `, st.WorkerID, st.Tag.String(), st.RecordID, blob)
		if err != nil {
			return nil, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return s.casUpdate(ctx, st, blob)
		}
		out := *st
		out.Version = 1
		return &out, nil
	}
	return s.casUpdate(ctx, st, blob)
}

func (s *states) casUpdate(ctx context.Context, st *model.ConversationState, blob any) (*model.ConversationState, error) {
	res, err := s.db.ExecContext(ctx, `
        UPDATE conversation_states
        SET tag = $1, record_id = $2, context = $3, version = version + 1, updated_at = now()
        WHERE worker_id = $4 AND version = $5
    `, st.Tag.String(), st.RecordID, blob, st.WorkerID, st.Version)
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
	return &out, nil
}

// --- Audit ---

type audit struct{ db *sql.DB }

func (a *audit) Append(ctx context.Context, e *model.AuditEntry) error {
	_, err := a.db.ExecContext(ctx, `
        INSERT INTO audit_entries (record_id, field, old_value, new_value, actor)
        VALUES ($1,$2,$3,$4,$5)
    `, e.RecordID, e.Field, e.OldValue, e.NewValue, e.Actor)
	return err
}

func (a *audit) ListByRecord(ctx context.Context, recordID string) ([]*model.AuditEntry, error) {
	rows, err := a.db.QueryContext(ctx, `
        SELECT record_id, field, old_value, new_value, actor, created_at
        FROM audit_entries WHERE record_id = $1 ORDER BY created_at`, recordID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		if err := rows.Scan(&e.RecordID, &e.Field, &e.OldValue, &e.NewValue, &e.Actor, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// --- Inbox (gateway message idempotency) ---

type inbox struct{ db *sql.DB }

func (i *inbox) MarkProcessed(ctx context.Context, messageID string) error {
	res, err := i.db.ExecContext(ctx, `
        INSERT INTO processed_messages (message_id) VALUES ($1)
        ON CONFLICT (message_id) DO NOTHING
    `, messageID)
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
		`DELETE FROM processed_messages WHERE message_id = $1`, messageID)
	return err
}

// --- Unknown contacts ---

type unknowns struct{ db *sql.DB }

func (u *unknowns) Log(ctx context.Context, m *model.UnknownContact) error {
	_, err := u.db.ExecContext(ctx, `
        INSERT INTO unknown_contacts (contact_id, excerpt, has_media)
        VALUES ($1,$2,$3)
    `, m.ContactID, m.Excerpt, m.HasMedia)
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
		if err := rows.Scan(&m.ContactID, &m.Excerpt, &m.HasMedia, &m.SeenAt); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
