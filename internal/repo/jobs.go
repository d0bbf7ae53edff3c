package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"homico/internal/domain"
)

const jobColumns = `id,display_number,client_id,title,COALESCE(description,''),category,budget,job_type,status,hired_pro_id,
	proposal_count,view_count,expires_at,created_at,updated_at,completed_at,cancelled_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (domain.Job, error) {
	var (
		j                               domain.Job
		budget                          sql.NullFloat64
		hired, completedAt, cancelledAt sql.NullString
	)
	err := row.Scan(&j.ID, &j.DisplayNumber, &j.ClientID, &j.Title, &j.Description, &j.Category, &budget, &j.JobType, &j.Status,
		&hired, &j.ProposalCount, &j.ViewCount, &j.ExpiresAt, &j.CreatedAt, &j.UpdatedAt, &completedAt, &cancelledAt)
	if err == sql.ErrNoRows {
		return j, ErrNotFound
	}
	if err != nil {
		return j, err
	}
	if budget.Valid {
		b := budget.Float64
		j.Budget = &b
	}
	j.HiredProID = stringPtr(hired)
	j.CompletedAt = stringPtr(completedAt)
	j.CancelledAt = stringPtr(cancelledAt)
	return j, nil
}

// InsertJob stores a job and its invite roster.
func (r Repo) InsertJob(ctx context.Context, tx *sql.Tx, j domain.Job) error {
	q := r.q(tx)
	_, err := q.ExecContext(ctx, `INSERT INTO jobs(id,display_number,client_id,title,description,category,budget,job_type,status,hired_pro_id,
		proposal_count,view_count,expires_at,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		j.ID, j.DisplayNumber, j.ClientID, j.Title, nullable(j.Description), j.Category, nullableFloatPtr(j.Budget), j.JobType, j.Status,
		nullableStringPtr(j.HiredProID), j.ProposalCount, j.ViewCount, j.ExpiresAt, j.CreatedAt, j.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return r.AddInvites(ctx, tx, j.ID, j.InvitedPros, j.CreatedAt)
}

// GetJob loads a job with its invited and declined rosters.
func (r Repo) GetJob(ctx context.Context, tx *sql.Tx, id string) (domain.Job, error) {
	q := r.q(tx)
	j, err := scanJob(q.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=?`, id))
	if err != nil {
		return j, err
	}
	rows, err := q.QueryContext(ctx, `SELECT pro_id, declined_at IS NOT NULL FROM job_invites WHERE job_id=? ORDER BY invited_at, pro_id`, id)
	if err != nil {
		return j, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			proID    string
			declined bool
		)
		if err := rows.Scan(&proID, &declined); err != nil {
			return j, err
		}
		j.InvitedPros = append(j.InvitedPros, proID)
		if declined {
			j.DeclinedPros = append(j.DeclinedPros, proID)
		}
	}
	return j, rows.Err()
}

type JobFilters struct {
	ClientID string
	Status   domain.JobStatus
	Limit    int
}

// ListJobs returns jobs newest first without their invite rosters.
func (r Repo) ListJobs(ctx context.Context, f JobFilters) ([]domain.Job, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.ClientID != "" {
		clauses = append(clauses, "client_id=?")
		args = append(args, f.ClientID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM jobs WHERE %s ORDER BY display_number DESC LIMIT ?`,
		jobColumns, strings.Join(clauses, " AND ")), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, j)
	}
	return res, rows.Err()
}

// AddInvites adds professionals to the roster; existing invites are kept.
func (r Repo) AddInvites(ctx context.Context, tx *sql.Tx, jobID string, proIDs []string, now string) error {
	q := r.q(tx)
	for _, proID := range proIDs {
		if _, err := q.ExecContext(ctx, `INSERT INTO job_invites(job_id,pro_id,invited_at) VALUES (?,?,?) ON CONFLICT(job_id,pro_id) DO NOTHING`,
			jobID, proID, now); err != nil {
			return fmt.Errorf("add invite %s: %w", proID, err)
		}
	}
	return nil
}

// DeclineInvite marks the invite declined. Repeated declines keep the first timestamp.
func (r Repo) DeclineInvite(ctx context.Context, tx *sql.Tx, jobID, proID, now string) (bool, error) {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE job_invites SET declined_at=COALESCE(declined_at, ?) WHERE job_id=? AND pro_id=?`, now, jobID, proID)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// HireFromProposal moves an open job to in_progress. It reports false
// when the job was no longer open.
func (r Repo) HireFromProposal(ctx context.Context, tx *sql.Tx, jobID, proID, now string) (bool, error) {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE jobs SET status='in_progress', hired_pro_id=?, updated_at=?
		WHERE id=? AND status='open' AND hired_pro_id IS NULL`, proID, now, jobID)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// HireDirect is the compare-and-swap for direct requests: the job must be
// an open direct request and proID must be on its invite roster.
func (r Repo) HireDirect(ctx context.Context, tx *sql.Tx, jobID, proID, now string) (bool, error) {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE jobs SET status='in_progress', hired_pro_id=?, updated_at=?
		WHERE id=? AND status='open' AND job_type='direct_request' AND hired_pro_id IS NULL
		AND EXISTS (SELECT 1 FROM job_invites WHERE job_invites.job_id=jobs.id AND job_invites.pro_id=?)`,
		proID, now, jobID, proID)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// CompleteJob flips an in-progress job to completed.
func (r Repo) CompleteJob(ctx context.Context, tx *sql.Tx, jobID, now string) (bool, error) {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE jobs SET status='completed', completed_at=?, updated_at=? WHERE id=? AND status='in_progress'`,
		now, now, jobID)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// CancelJob cancels the job if it is still in the expected status and
// clears the hired professional.
func (r Repo) CancelJob(ctx context.Context, tx *sql.Tx, jobID string, expect domain.JobStatus, now string) (bool, error) {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE jobs SET status='cancelled', hired_pro_id=NULL, cancelled_at=?, updated_at=? WHERE id=? AND status=?`,
		now, now, jobID, expect)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// RenewJob reopens an expired job with a new expiry.
func (r Repo) RenewJob(ctx context.Context, tx *sql.Tx, jobID, expiresAt, now string) (bool, error) {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE jobs SET status='open', expires_at=?, updated_at=? WHERE id=? AND status='expired'`,
		expiresAt, now, jobID)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// ExpireDueJobs moves every open job whose expiry is at or before now to
// expired in one statement and returns the IDs it changed.
func (r Repo) ExpireDueJobs(ctx context.Context, tx *sql.Tx, now string) ([]string, error) {
	rows, err := r.q(tx).QueryContext(ctx, `UPDATE jobs SET status='expired', updated_at=?
		WHERE status='open' AND expires_at<=? RETURNING id`, now, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r Repo) IncrementProposalCount(ctx context.Context, tx *sql.Tx, jobID, now string) error {
	_, err := r.q(tx).ExecContext(ctx, `UPDATE jobs SET proposal_count=proposal_count+1, updated_at=? WHERE id=?`, now, jobID)
	return err
}

// IncrementViewCount bumps the view counter without touching updated_at.
func (r Repo) IncrementViewCount(ctx context.Context, tx *sql.Tx, jobID string) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE jobs SET view_count=view_count+1 WHERE id=?`, jobID)
	if err != nil {
		return err
	}
	if ok, _ := affected(res); !ok {
		return ErrNotFound
	}
	return nil
}
