package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository writes and reads audit_logs rows.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Write inserts entries in a single batch.
func (r *PGRepository) Write(ctx context.Context, entries []Entry) error {
	batch := &pgx.Batch{}
	for _, entry := range entries {
		fields, err := json.Marshal(entry.Fields)
		if err != nil {
			return fmt.Errorf("audit: encode fields: %w", err)
		}
		batch.Queue(`INSERT INTO audit_logs (id, actor, subject, template, fields, message, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			entry.ID, entry.Actor, entry.Subject, entry.Template, fields, entry.Message(), entry.At)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("audit: write: %w", err)
	}
	return nil
}

// Window returns entries matching q ordered newest first.
func (r *PGRepository) Window(ctx context.Context, q WindowQuery) ([]Entry, error) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if !q.From.IsZero() {
		add("occurred_at >= $%d", q.From)
	}
	if !q.To.IsZero() {
		add("occurred_at <= $%d", q.To)
	}
	if q.Actor != "" {
		add("actor = $%d", q.Actor)
	}
	if q.Subject != "" {
		add("subject = $%d", q.Subject)
	}
	sql := `SELECT id, actor, subject, template, fields, occurred_at FROM audit_logs`
	if len(clauses) > 0 {
		sql += " WHERE " + strings.Join(clauses, " AND ")
	}
	args = append(args, q.Limit, q.Offset)
	sql += fmt.Sprintf(" ORDER BY occurred_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: window: %w", err)
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var (
			entry  Entry
			fields []byte
			at     time.Time
		)
		if err := rows.Scan(&entry.ID, &entry.Actor, &entry.Subject, &entry.Template, &fields, &at); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		if err := json.Unmarshal(fields, &entry.Fields); err != nil {
			return nil, fmt.Errorf("audit: decode fields: %w", err)
		}
		entry.At = at
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

var (
	_ Writer     = (*PGRepository)(nil)
	_ Repository = (*PGRepository)(nil)
)
