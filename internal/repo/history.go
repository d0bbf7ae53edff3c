package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"homico/internal/domain"
)

// InsertHistory appends a typed event to the project timeline.
func (r Repo) InsertHistory(ctx context.Context, tx *sql.Tx, h domain.HistoryEvent) (int64, error) {
	var meta any
	if h.Metadata != nil {
		data, err := json.Marshal(h.Metadata)
		if err != nil {
			return 0, fmt.Errorf("marshal %s metadata: %w", h.Type, err)
		}
		meta = string(data)
	}
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO tracking_history(job_id,event_type,user_id,metadata_json,created_at) VALUES (?,?,?,?,?)`,
		h.JobID, h.Type, h.UserID, meta, h.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListHistory returns the timeline oldest first. A zero limit returns everything.
func (r Repo) ListHistory(ctx context.Context, jobID string, limit int) ([]domain.HistoryEvent, error) {
	query := `SELECT id,job_id,event_type,user_id,metadata_json,created_at FROM tracking_history WHERE job_id=? ORDER BY id`
	args := []any{jobID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.HistoryEvent
	for rows.Next() {
		var (
			h    domain.HistoryEvent
			meta sql.NullString
		)
		if err := rows.Scan(&h.ID, &h.JobID, &h.Type, &h.UserID, &meta, &h.CreatedAt); err != nil {
			return nil, err
		}
		h.Metadata, err = domain.DecodeHistoryMetadata(h.Type, []byte(meta.String))
		if err != nil {
			return nil, err
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

// MarkViewed records when userID last looked at a feature of the project.
func (r Repo) MarkViewed(ctx context.Context, tx *sql.Tx, jobID, userID string, feature domain.Feature, now string) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO tracking_views(job_id,user_id,feature,viewed_at) VALUES (?,?,?,?)
		ON CONFLICT(job_id,user_id,feature) DO UPDATE SET viewed_at=excluded.viewed_at`, jobID, userID, feature, now)
	return err
}

// CountUnread counts events of the feature authored by someone else after
// the viewer's last-viewed marker. No marker counts everything.
func (r Repo) CountUnread(ctx context.Context, jobID, userID string, feature domain.Feature) (int, error) {
	types := feature.EventTypes()
	if len(types) == 0 {
		return 0, fmt.Errorf("no event types for feature %q", feature)
	}
	args := []any{jobID, userID}
	for _, t := range types {
		args = append(args, t)
	}
	args = append(args, jobID, userID, feature)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM tracking_history WHERE job_id=? AND user_id<>? AND event_type IN (%s)
		AND created_at > COALESCE((SELECT viewed_at FROM tracking_views WHERE job_id=? AND user_id=? AND feature=?), '')`, placeholders(len(types)))
	var n int
	if err := r.DB.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
