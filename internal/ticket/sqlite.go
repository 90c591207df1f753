package ticket

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// timestamps are stored as fixed-width UTC text so they compare lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

const ticketColumns = `t.id, t.title, t.description, t.status, t.priority, t.category, t.assigned_agent,
	t.source_metadata, t.escalation_path, t.created_at, t.updated_at,
	COALESCE((SELECT m.message FROM ticket_messages m
		WHERE m.ticket_id = t.id AND m.author_type = 'customer'
		ORDER BY m.created_at DESC LIMIT 1), '')`

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ticket store: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", "PRAGMA foreign_keys=ON"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("ticket store: %s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying handle.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS tickets (
			id              TEXT PRIMARY KEY,
			title           TEXT NOT NULL,
			description     TEXT NOT NULL DEFAULT '',
			status          TEXT NOT NULL DEFAULT 'new',
			priority        TEXT NOT NULL DEFAULT 'normal',
			category        TEXT NOT NULL DEFAULT '',
			assigned_agent  TEXT NOT NULL DEFAULT '',
			source_metadata TEXT NOT NULL DEFAULT '{}',
			escalation_path TEXT NOT NULL DEFAULT '[]',
			created_at      TEXT NOT NULL,
			updated_at      TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS ticket_messages (
			id            TEXT PRIMARY KEY,
			ticket_id     TEXT NOT NULL REFERENCES tickets(id),
			author_type   TEXT NOT NULL,
			author_name   TEXT NOT NULL DEFAULT '',
			message       TEXT NOT NULL,
			internal_only INTEGER NOT NULL DEFAULT 0,
			metadata      TEXT NOT NULL DEFAULT '{}',
			created_at    TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS automation_events (
			id         TEXT PRIMARY KEY,
			ticket_id  TEXT NOT NULL REFERENCES tickets(id),
			kind       TEXT NOT NULL,
			actor      TEXT NOT NULL DEFAULT '',
			payload    TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status);
		CREATE INDEX IF NOT EXISTS idx_messages_ticket ON ticket_messages(ticket_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_events_ticket_kind ON automation_events(ticket_id, kind, created_at);
	`)
	if err != nil {
		return fmt.Errorf("ticket store: migrate: %w", err)
	}
	return nil
}

func (s *SQLiteStore) timestamp() string {
	return s.now().UTC().Format(tsLayout)
}

func (s *SQLiteStore) Create(ctx context.Context, t *Ticket) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = StatusNew
	}
	if t.Priority == "" {
		t.Priority = PriorityNormal
	}
	meta, err := marshalJSON(t.SourceMetadata, "{}")
	if err != nil {
		return fmt.Errorf("ticket store: create: %w", err)
	}
	path, err := marshalJSON(t.EscalationPath, "[]")
	if err != nil {
		return fmt.Errorf("ticket store: create: %w", err)
	}

	now := s.timestamp()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tickets (id, title, description, status, priority, category, assigned_agent,
			source_metadata, escalation_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Title, t.Description, string(t.Status), string(t.Priority), t.Category, t.AssignedAgent,
		meta, path, now, now)
	if err != nil {
		return fmt.Errorf("ticket store: create: %w", err)
	}
	t.CreatedAt, _ = time.Parse(tsLayout, now)
	t.UpdatedAt = t.CreatedAt
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Ticket, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets t WHERE t.id = ?`, id)
	t, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("ticket store: get: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]*Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets t WHERE 1=1`
	var args []any

	if len(filter.Statuses) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(filter.Statuses)), ",")
		query += " AND t.status IN (" + placeholders + ")"
		for _, st := range filter.Statuses {
			args = append(args, string(st))
		}
	}
	query += " ORDER BY t.created_at ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ticket store: list: %w", err)
	}
	defer rows.Close()

	var out []*Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("ticket store: list scan: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Update(ctx context.Context, id string, u Update) error {
	sets := []string{"updated_at = ?"}
	args := []any{s.timestamp()}

	if u.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*u.Status))
	}
	if u.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, string(*u.Priority))
	}
	if u.AssignedAgent != nil {
		sets = append(sets, "assigned_agent = ?")
		args = append(args, *u.AssignedAgent)
	}
	if u.SourceMetadata != nil {
		meta, err := marshalJSON(u.SourceMetadata, "{}")
		if err != nil {
			return fmt.Errorf("ticket store: update: %w", err)
		}
		sets = append(sets, "source_metadata = ?")
		args = append(args, meta)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, `UPDATE tickets SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("ticket store: update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *SQLiteStore) AppendEscalation(ctx context.Context, id string, e EscalationEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ticket store: escalation: %w", err)
	}
	defer tx.Rollback()

	var raw string
	if err := tx.QueryRowContext(ctx, `SELECT escalation_path FROM tickets WHERE id = ?`, id).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("ticket store: escalation: %w", err)
	}

	var path []EscalationEntry
	if err := json.Unmarshal([]byte(raw), &path); err != nil {
		return fmt.Errorf("ticket store: escalation decode: %w", err)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now().UTC()
	}
	path = append(path, e)

	encoded, err := json.Marshal(path)
	if err != nil {
		return fmt.Errorf("ticket store: escalation encode: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE tickets SET escalation_path = ?, updated_at = ? WHERE id = ?`,
		string(encoded), s.timestamp(), id); err != nil {
		return fmt.Errorf("ticket store: escalation: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, m *Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	meta, err := marshalJSON(m.Metadata, "{}")
	if err != nil {
		return fmt.Errorf("ticket store: append message: %w", err)
	}
	now := s.timestamp()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ticket_messages (id, ticket_id, author_type, author_name, message, internal_only, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.TicketID, string(m.AuthorType), m.AuthorName, m.Body, m.InternalOnly, meta, now)
	if err != nil {
		return fmt.Errorf("ticket store: append message: %w", err)
	}
	m.CreatedAt, _ = time.Parse(tsLayout, now)
	return nil
}

func (s *SQLiteStore) Messages(ctx context.Context, ticketID string) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ticket_id, author_type, author_name, message, internal_only, metadata, created_at
		FROM ticket_messages WHERE ticket_id = ? ORDER BY created_at ASC, rowid ASC
	`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("ticket store: messages: %w", err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		var (
			m                  Message
			author, meta, when string
		)
		if err := rows.Scan(&m.ID, &m.TicketID, &author, &m.AuthorName, &m.Body, &m.InternalOnly, &meta, &when); err != nil {
			return nil, fmt.Errorf("ticket store: messages scan: %w", err)
		}
		m.AuthorType = AuthorType(author)
		if err := json.Unmarshal([]byte(meta), &m.Metadata); err != nil {
			return nil, fmt.Errorf("ticket store: messages decode: %w", err)
		}
		m.CreatedAt, _ = time.Parse(tsLayout, when)
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) HasRecentMessage(ctx context.Context, ticketID string, author AuthorType, body string, since time.Time) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM ticket_messages
		WHERE ticket_id = ? AND author_type = ? AND message = ? AND created_at >= ?
	`, ticketID, string(author), body, since.UTC().Format(tsLayout)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("ticket store: recent message: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) RecordEvent(ctx context.Context, e *Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	payload, err := marshalJSON(e.Payload, "{}")
	if err != nil {
		return fmt.Errorf("ticket store: record event: %w", err)
	}
	now := s.timestamp()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO automation_events (id, ticket_id, kind, actor, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.TicketID, e.Kind, e.Actor, payload, now); err != nil {
		return fmt.Errorf("ticket store: record event: %w", err)
	}
	e.CreatedAt, _ = time.Parse(tsLayout, now)
	return nil
}

func (s *SQLiteStore) LatestEvent(ctx context.Context, ticketID, kind string) (*Event, error) {
	var (
		e             Event
		payload, when string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, ticket_id, kind, actor, payload, created_at FROM automation_events
		WHERE ticket_id = ? AND kind = ? ORDER BY created_at DESC, rowid DESC LIMIT 1
	`, ticketID, kind).Scan(&e.ID, &e.TicketID, &e.Kind, &e.Actor, &payload, &when)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ticket store: latest event: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
		return nil, fmt.Errorf("ticket store: latest event decode: %w", err)
	}
	e.CreatedAt, _ = time.Parse(tsLayout, when)
	return &e, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTicket(row scanner) (*Ticket, error) {
	var (
		t                            Ticket
		status, priority, meta, path string
		createdAt, updatedAt         string
	)
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &status, &priority, &t.Category, &t.AssignedAgent,
		&meta, &path, &createdAt, &updatedAt, &t.LatestMessage); err != nil {
		return nil, err
	}
	t.Status = Status(status)
	t.Priority = Priority(priority)
	if err := json.Unmarshal([]byte(meta), &t.SourceMetadata); err != nil {
		return nil, fmt.Errorf("decode source_metadata: %w", err)
	}
	if t.SourceMetadata == nil {
		t.SourceMetadata = Metadata{}
	}
	if err := json.Unmarshal([]byte(path), &t.EscalationPath); err != nil {
		return nil, fmt.Errorf("decode escalation_path: %w", err)
	}
	t.CreatedAt, _ = time.Parse(tsLayout, createdAt)
	t.UpdatedAt, _ = time.Parse(tsLayout, updatedAt)
	return &t, nil
}

func marshalJSON(v any, empty string) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if s := string(b); s != "null" {
		return s, nil
	}
	return empty, nil
}
