package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/acme/hotline/internal/repository"
)

// HistoryRepository implements repository.HistoryRepository using PostgreSQL.
type HistoryRepository struct {
	db *sqlx.DB
}

// NewHistoryRepository constructs a new repository.
func NewHistoryRepository(db *sqlx.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Record stores a finished call and folds it into the handle's counters.
// Redelivered records are ignored so counters are applied once per call.
func (r *HistoryRepository) Record(ctx context.Context, record repository.HistoryRecord) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		q := `INSERT INTO call_history (
			call_id, handle, direction, ended_from, answered, started_at, answered_at, ended_at, last_seq
		) VALUES (
			:call_id, :handle, :direction, :ended_from, :answered, :started_at, :answered_at, :ended_at, :last_seq
		) ON CONFLICT (call_id) DO NOTHING`

		res, err := tx.NamedExecContext(ctx, q, record)
		if err != nil {
			return fmt.Errorf("history repo: insert: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("history repo: rows affected: %w", err)
		}
		if n == 0 {
			return nil
		}

		answered, incoming, outgoing := 0, 0, 0
		if record.Answered {
			answered = 1
		}
		if record.Direction == "incoming" {
			incoming = 1
		} else {
			outgoing = 1
		}

		_, err = tx.ExecContext(ctx, `INSERT INTO handle_stats AS s (
			handle, total_calls, answered_calls, incoming_calls, outgoing_calls, talk_seconds, last_call_at
		) VALUES ($1, 1, $2, $3, $4, $5, $6)
		ON CONFLICT (handle) DO UPDATE SET
			total_calls = s.total_calls + 1,
			answered_calls = s.answered_calls + EXCLUDED.answered_calls,
			incoming_calls = s.incoming_calls + EXCLUDED.incoming_calls,
			outgoing_calls = s.outgoing_calls + EXCLUDED.outgoing_calls,
			talk_seconds = s.talk_seconds + EXCLUDED.talk_seconds,
			last_call_at = GREATEST(s.last_call_at, EXCLUDED.last_call_at)`,
			record.Handle, answered, incoming, outgoing, int64(record.TalkTime().Seconds()), record.EndedAt,
		)
		if err != nil {
			return fmt.Errorf("history repo: apply stats: %w", err)
		}
		return nil
	})
}

// List returns finished calls, newest first, starting after the cursor.
func (r *HistoryRepository) List(ctx context.Context, before *repository.HistoryCursor, limit int) ([]repository.HistoryRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	var (
		rows *sqlx.Rows
		err  error
	)
	if before != nil {
		rows, err = r.db.QueryxContext(ctx, `SELECT call_id, handle, direction, ended_from, answered, started_at, answered_at, ended_at, last_seq
			FROM call_history WHERE (ended_at, call_id) < ($1, $2)
			ORDER BY ended_at DESC, call_id DESC LIMIT $3`, before.EndedAt, before.CallID, limit)
	} else {
		rows, err = r.db.QueryxContext(ctx, `SELECT call_id, handle, direction, ended_from, answered, started_at, answered_at, ended_at, last_seq
			FROM call_history ORDER BY ended_at DESC, call_id DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("history repo: list: %w", err)
	}
	defer rows.Close()

	results := make([]repository.HistoryRecord, 0, limit)
	for rows.Next() {
		var record repository.HistoryRecord
		if err := rows.StructScan(&record); err != nil {
			return nil, fmt.Errorf("history repo: scan: %w", err)
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history repo: rows err: %w", err)
	}

	return results, nil
}

// HandleStats returns the counters for a handle.
func (r *HistoryRepository) HandleStats(ctx context.Context, handle string) (*repository.HandleStats, error) {
	row := r.db.QueryRowxContext(ctx, `SELECT handle, total_calls, answered_calls, incoming_calls, outgoing_calls, talk_seconds, last_call_at
		FROM handle_stats WHERE handle = $1`, handle)

	var stats repository.HandleStats
	if err := row.StructScan(&stats); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("history repo: handle stats: %w", err)
	}
	return &stats, nil
}
