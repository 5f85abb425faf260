package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

func parseTimestamp(s string) (time.Time, error) {
	return time.Parse("2006-01-02T15:04:05.000000000Z07:00", s)
}

// Mirror is an optional, queryable index over the audit log. The JSONL file
// written by Log remains the source of truth; Mirror exists only so that
// filtering a long-running session's history by session, cmd_id, or
// decision does not require a full linear scan.
//
// The backend is selected from the DSN: a "postgres://" prefix opens a
// jackc/pgx connection, anything else is treated as a path to a
// modernc.org/sqlite database file.
type Mirror struct {
	db         *sql.DB
	isPostgres bool
}

// OpenMirror opens (and, if necessary, creates) the SQL mirror at dsn.
func OpenMirror(dsn string) (*Mirror, error) {
	isPostgres := strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")

	var (
		db  *sql.DB
		err error
	)
	if isPostgres {
		db, err = sql.Open("pgx", dsn)
	} else {
		db, err = sql.Open("sqlite", dsn)
		if err == nil {
			_, err = db.Exec(`PRAGMA journal_mode=WAL`)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("audit mirror: open %s: %w", dsn, err)
	}

	m := &Mirror{db: db, isPostgres: isPostgres}
	if err := m.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

func (m *Mirror) rebind(query string) string {
	if !m.isPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (m *Mirror) createTables() error {
	idColumn := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	if m.isPostgres {
		idColumn = "id BIGSERIAL PRIMARY KEY"
	}
	_, err := m.db.Exec(`
CREATE TABLE IF NOT EXISTS audit_events (
	` + idColumn + `,
	timestamp TEXT NOT NULL,
	session_id TEXT NOT NULL,
	cmd_id TEXT,
	command TEXT,
	host TEXT,
	decision TEXT NOT NULL,
	reason TEXT,
	output_hash TEXT,
	duration_ms INTEGER,
	redacted_ref TEXT
)`)
	if err != nil {
		return fmt.Errorf("audit mirror: create table: %w", err)
	}
	_, err = m.db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_session ON audit_events(session_id)`)
	if err != nil {
		return fmt.Errorf("audit mirror: create index: %w", err)
	}
	return nil
}

// Record inserts entry into the mirror. Callers write to the JSONL Log
// first and treat a Record failure here as non-fatal — the mirror is an
// index, not the record of truth.
func (m *Mirror) Record(ctx context.Context, entry Entry) error {
	query := m.rebind(`INSERT INTO audit_events
		(timestamp, session_id, cmd_id, command, host, decision, reason, output_hash, duration_ms, redacted_ref)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := m.db.ExecContext(ctx, query,
		entry.Timestamp.Format("2006-01-02T15:04:05.000000000Z07:00"),
		entry.SessionID, entry.CmdID, entry.Command, entry.Host,
		entry.Decision, entry.Reason, entry.OutputHash, entry.DurationMS, entry.RedactedRef)
	if err != nil {
		return fmt.Errorf("audit mirror: insert: %w", err)
	}
	return nil
}

// QueryOptions filters a Mirror query.
type QueryOptions struct {
	SessionID string
	CmdID     string
	Decision  string
	Limit     int
}

// Query returns entries matching opts, most recent first.
func (m *Mirror) Query(ctx context.Context, opts QueryOptions) ([]Entry, error) {
	q := `SELECT timestamp, session_id, cmd_id, command, host, decision, reason, output_hash, duration_ms, redacted_ref
		FROM audit_events WHERE 1=1`
	var args []any
	if opts.SessionID != "" {
		q += " AND session_id = ?"
		args = append(args, opts.SessionID)
	}
	if opts.CmdID != "" {
		q += " AND cmd_id = ?"
		args = append(args, opts.CmdID)
	}
	if opts.Decision != "" {
		q += " AND decision = ?"
		args = append(args, opts.Decision)
	}
	q += " ORDER BY id DESC"
	if opts.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	rows, err := m.db.QueryContext(ctx, m.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("audit mirror: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ts string
		if err := rows.Scan(&ts, &e.SessionID, &e.CmdID, &e.Command, &e.Host, &e.Decision, &e.Reason, &e.OutputHash, &e.DurationMS, &e.RedactedRef); err != nil {
			return nil, fmt.Errorf("audit mirror: scan: %w", err)
		}
		if t, err := parseTimestamp(ts); err == nil {
			e.Timestamp = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (m *Mirror) Close() error {
	return m.db.Close()
}
