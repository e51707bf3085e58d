package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/loykin/crashwatch/internal/history"
)

// Sink writes history events to SQLite database.
type Sink struct {
	db *sql.DB
}

var (
	_ history.Sink   = (*Sink)(nil)
	_ history.Reader = (*Sink)(nil)
)

// New creates a new SQLite history sink.
// DSN format:
//   - "sqlite:///path/to/file.db"
//   - "sqlite://:memory:"
//   - "/path/to/file.db" (without prefix)
//   - ":memory:" (in-memory database)
func New(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = dsn[len("sqlite://"):]
	}
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	sink := &Sink{db: db}
	if err := sink.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sink, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmt := `CREATE TABLE IF NOT EXISTS workload_events(
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		workload TEXT NOT NULL,
		occurred_at TIMESTAMP NOT NULL,
		logs_collected INTEGER NOT NULL DEFAULT 0,
		log_bytes INTEGER NOT NULL DEFAULT 0,
		detail TEXT
	);
	CREATE INDEX IF NOT EXISTS workload_events_workload ON workload_events(workload, occurred_at);`
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workload_events(id, type, workload, occurred_at, logs_collected, log_bytes, detail)
		VALUES(?, ?, ?, ?, ?, ?, ?);`,
		e.ID, string(e.Type), e.Workload, e.OccurredAt.UTC(), e.LogsCollected, e.LogBytes, e.Detail)
	return err
}

// Recent returns the newest events first, optionally filtered by workload.
func (s *Sink) Recent(ctx context.Context, workload string, limit int) ([]history.Event, error) {
	q := `SELECT id, type, workload, occurred_at, logs_collected, log_bytes, COALESCE(detail, '')
		FROM workload_events`
	args := []any{}
	if workload != "" {
		q += ` WHERE workload = ?`
		args = append(args, workload)
	}
	q += ` ORDER BY occurred_at DESC LIMIT ?;`
	args = append(args, history.ClampLimit(limit))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make([]history.Event, 0)
	for rows.Next() {
		var (
			e  history.Event
			tp string
		)
		if err := rows.Scan(&e.ID, &tp, &e.Workload, &e.OccurredAt, &e.LogsCollected, &e.LogBytes, &e.Detail); err != nil {
			return nil, err
		}
		e.Type = history.EventType(tp)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
