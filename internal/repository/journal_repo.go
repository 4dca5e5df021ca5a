package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"climate_bridge/internal/models"

	"github.com/google/uuid"
)

// sqliteTimeLayout sorts lexically in time order.
const sqliteTimeLayout = "2006-01-02 15:04:05.000000"

type JournalSQLite struct {
	db *sql.DB
}

func NewJournalSQLite(db *sql.DB) *JournalSQLite { return &JournalSQLite{db: db} }

const insertCommandSQL = `
		INSERT INTO command_log (id, occurred_at, source, chat_id, operator_id, utterance, intent, response)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

// Append inserts a journal entry. Missing EventID or OccurredAt are filled in.
func (r *JournalSQLite) Append(ctx context.Context, e models.CommandEvent) error {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, insertCommandSQL,
		e.EventID,
		formatTime(e.OccurredAt),
		strings.ToUpper(strings.TrimSpace(e.Source)),
		e.ChatID,
		e.OperatorID,
		e.Utterance,
		strings.ToLower(strings.TrimSpace(e.Intent)),
		e.Response,
	)
	return err
}

// List returns the entries matching q, oldest first.
func (r *JournalSQLite) List(ctx context.Context, q JournalQuery) ([]models.CommandEvent, error) {
	var (
		conds []string
		args  []any
	)
	where := func(cond string, arg any) {
		conds = append(conds, cond)
		args = append(args, arg)
	}

	if !q.From.IsZero() {
		where("occurred_at >= ?", formatTime(q.From))
	}
	if !q.To.IsZero() {
		where("occurred_at <= ?", formatTime(q.To))
	}
	if intent := strings.ToLower(strings.TrimSpace(q.Intent)); intent != "" {
		where("intent = ?", intent)
	}
	if source := strings.ToUpper(strings.TrimSpace(q.Source)); source != "" {
		where("source = ?", source)
	}
	if q.OperatorID > 0 {
		where("operator_id = ?", q.OperatorID)
	}

	stmt := `SELECT id, occurred_at, source, chat_id, operator_id, utterance, intent, response FROM command_log`
	if len(conds) > 0 {
		stmt += " WHERE " + strings.Join(conds, " AND ")
	}
	stmt += " ORDER BY occurred_at ASC"

	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.CommandEvent, 0, 64)
	for rows.Next() {
		var (
			ev         models.CommandEvent
			occurredAt string
		)
		if err := rows.Scan(&ev.EventID, &occurredAt, &ev.Source, &ev.ChatID, &ev.OperatorID, &ev.Utterance, &ev.Intent, &ev.Response); err != nil {
			return nil, err
		}
		ev.OccurredAt = parseTime(occurredAt)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(sqliteTimeLayout) }

// parseTime accepts the local layout and the RFC 3339 forms PostgREST emits.
// Unparseable input yields the zero time.
func parseTime(s string) time.Time {
	for _, layout := range []string{sqliteTimeLayout, time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
