// Package repository provides data access for the session history.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/framerelay/relay/internal/model"
)

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 100

// ListOptions filters List.
type ListOptions struct {
	// Limit caps the number of records; zero selects DefaultListLimit.
	Limit int

	// OpenOnly returns only sessions that have not been closed.
	OpenOnly bool
}

// HistoryRepository provides data access for session records.
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository creates a new HistoryRepository.
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Create inserts the record of a session that has just joined.
func (r *HistoryRepository) Create(ctx context.Context, rec *model.SessionRecord) error {
	query := `
		INSERT INTO session_history (id, remote_addr, transport, joined_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.RemoteAddr,
		string(rec.Transport),
		rec.JoinedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create session record: %w", err)
	}

	return nil
}

// Finish stores the close time, reason and final counters of a session.
// A session that was never created is inserted whole.
func (r *HistoryRepository) Finish(ctx context.Context, rec *model.SessionRecord) error {
	if rec.ClosedAt == nil {
		return errors.New("session record is not closed")
	}

	query := `
		INSERT INTO session_history (id, remote_addr, transport, joined_at, closed_at, reason, detail,
			frames_in, frames_out, bytes_in, bytes_out, frames_dropped)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			closed_at = excluded.closed_at,
			reason = excluded.reason,
			detail = excluded.detail,
			frames_in = excluded.frames_in,
			frames_out = excluded.frames_out,
			bytes_in = excluded.bytes_in,
			bytes_out = excluded.bytes_out,
			frames_dropped = excluded.frames_dropped
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.RemoteAddr,
		string(rec.Transport),
		rec.JoinedAt.UTC(),
		rec.ClosedAt.UTC(),
		string(rec.Reason),
		rec.Detail,
		int64(rec.FramesIn),
		int64(rec.FramesOut),
		int64(rec.BytesIn),
		int64(rec.BytesOut),
		int64(rec.FramesDropped),
	)
	if err != nil {
		return fmt.Errorf("failed to finish session record: %w", err)
	}

	return nil
}

const selectColumns = `
	SELECT id, remote_addr, transport, joined_at, closed_at, reason, detail,
		frames_in, frames_out, bytes_in, bytes_out, frames_dropped
	FROM session_history
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.SessionRecord, error) {
	rec := &model.SessionRecord{}
	var transport string
	var closedAt sql.NullTime
	var reason, detail sql.NullString
	var framesIn, framesOut, bytesIn, bytesOut, dropped int64

	err := row.Scan(
		&rec.ID,
		&rec.RemoteAddr,
		&transport,
		&rec.JoinedAt,
		&closedAt,
		&reason,
		&detail,
		&framesIn,
		&framesOut,
		&bytesIn,
		&bytesOut,
		&dropped,
	)
	if err != nil {
		return nil, err
	}

	rec.Transport = model.TransportKind(transport)
	if closedAt.Valid {
		t := closedAt.Time
		rec.ClosedAt = &t
	}
	if reason.Valid {
		rec.Reason = model.CloseReason(reason.String)
	}
	if detail.Valid {
		rec.Detail = detail.String
	}
	rec.FramesIn = uint64(framesIn)
	rec.FramesOut = uint64(framesOut)
	rec.BytesIn = uint64(bytesIn)
	rec.BytesOut = uint64(bytesOut)
	rec.FramesDropped = uint64(dropped)
	return rec, nil
}

// GetByID retrieves a session record by its ID.
func (r *HistoryRepository) GetByID(ctx context.Context, id string) (*model.SessionRecord, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session record: %w", err)
	}
	return rec, nil
}

// List retrieves session records, most recently joined first.
func (r *HistoryRepository) List(ctx context.Context, opts ListOptions) ([]*model.SessionRecord, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := selectColumns
	if opts.OpenOnly {
		query += ` WHERE closed_at IS NULL`
	}
	query += ` ORDER BY joined_at DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list session records: %w", err)
	}
	defer rows.Close()

	records := make([]*model.SessionRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session records: %w", err)
	}

	return records, nil
}

// Count returns the number of stored records.
func (r *HistoryRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM session_history`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count session records: %w", err)
	}
	return count, nil
}

// CloseAbandoned closes every record still open, as left behind by a relay
// that did not shut down cleanly. It returns the number of records closed.
func (r *HistoryRepository) CloseAbandoned(ctx context.Context, at time.Time) (int64, error) {
	query := `
		UPDATE session_history
		SET closed_at = ?, reason = ?, detail = ?
		WHERE closed_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, at.UTC(), string(model.CloseReasonShutdown), "relay restarted")
	if err != nil {
		return 0, fmt.Errorf("failed to close abandoned records: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// Prune deletes closed records that ended before cutoff.
func (r *HistoryRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM session_history WHERE closed_at IS NOT NULL AND closed_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune session records: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}
