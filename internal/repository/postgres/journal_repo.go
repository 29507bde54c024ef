package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres

	"github.com/xela07ax/nexusflow/internal/audit"
)

const schema = `
CREATE TABLE IF NOT EXISTS journal_entries (
	id         UUID PRIMARY KEY,
	run_id     TEXT        NOT NULL,
	seq        BIGINT      NOT NULL,
	phase      TEXT        NOT NULL,
	source     TEXT        NOT NULL,
	severity   TEXT        NOT NULL,
	message    TEXT        NOT NULL,
	payload    JSONB,
	timestamp  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS journal_entries_run_idx ON journal_entries (run_id, seq);`

// Количество колонок в journal_entries
const numFields = 9

type JournalRepo struct {
	db *sql.DB
}

type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewJournalRepo открывает пул соединений. Доступность базы проверяется через Ping.
func NewJournalRepo(connString string, opts PoolOptions) (*JournalRepo, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 25
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = opts.MaxOpenConns
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = 5 * time.Minute
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	return &JournalRepo{db: db}, nil
}

func (r *JournalRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *JournalRepo) Close() error {
	return r.db.Close()
}

// EnsureSchema создает таблицу журнала, если её еще нет.
func (r *JournalRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return nil
}

func (r *JournalRepo) WriteBatch(ctx context.Context, entries []audit.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	query, vals := buildInsert(entries)
	if _, err := r.db.ExecContext(ctx, query, vals...); err != nil {
		return fmt.Errorf("postgres: write journal batch: %w", err)
	}
	return nil
}

// buildInsert динамически строит запрос для пакетной вставки.
func buildInsert(entries []audit.Entry) (string, []any) {
	var sb strings.Builder
	vals := make([]any, 0, len(entries)*numFields)

	for i, e := range entries {
		if i > 0 {
			sb.WriteString(", ")
		}
		p := i * numFields
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9)

		var payload any
		if len(e.Payload) > 0 {
			payload = []byte(e.Payload)
		}
		vals = append(vals,
			e.ID, e.RunID, e.Seq, e.Phase, e.Source,
			e.Severity, e.Message, payload, e.Timestamp,
		)
	}

	query := "INSERT INTO journal_entries (id, run_id, seq, phase, source, severity, message, payload, timestamp) VALUES " +
		sb.String() + " ON CONFLICT (id) DO NOTHING"
	return query, vals
}

// FetchEntries возвращает последние записи, новые первыми. С пустым runID по всем транзакциям.
func (r *JournalRepo) FetchEntries(ctx context.Context, runID string, limit int) ([]audit.Entry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `SELECT id, run_id, seq, phase, source, severity, message, payload, timestamp
		FROM journal_entries`
	args := []any{}
	if runID != "" {
		query += ` WHERE run_id = $1`
		args = append(args, runID)
	}
	query += fmt.Sprintf(` ORDER BY timestamp DESC, seq DESC LIMIT %d`, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch journal: %w", err)
	}
	defer rows.Close()

	out := make([]audit.Entry, 0, limit)
	for rows.Next() {
		var (
			e       audit.Entry
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.Seq, &e.Phase, &e.Source,
			&e.Severity, &e.Message, &payload, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan journal row: %w", err)
		}
		if len(payload) > 0 {
			e.Payload = payload
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
