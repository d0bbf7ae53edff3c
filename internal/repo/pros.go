package repo

import (
	"context"
	"database/sql"
)

// IncrementCompletedJobs bumps the professional's completed-job counter.
func (r Repo) IncrementCompletedJobs(ctx context.Context, tx *sql.Tx, proID, now string) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO pro_stats(pro_id,completed_jobs,updated_at) VALUES (?,1,?)
		ON CONFLICT(pro_id) DO UPDATE SET completed_jobs=completed_jobs+1, updated_at=excluded.updated_at`, proID, now)
	return err
}

func (r Repo) CompletedJobs(ctx context.Context, proID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT completed_jobs FROM pro_stats WHERE pro_id=?`, proID).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return n, err
}

// VerificationStatus returns the stored trust status, ErrNotFound when the
// professional was never reviewed.
func (r Repo) VerificationStatus(ctx context.Context, tx *sql.Tx, proID string) (string, error) {
	var status string
	err := r.q(tx).QueryRowContext(ctx, `SELECT status FROM pro_verifications WHERE pro_id=?`, proID).Scan(&status)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return status, err
}

func (r Repo) SetVerificationStatus(ctx context.Context, tx *sql.Tx, proID, status, now string) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO pro_verifications(pro_id,status,updated_at) VALUES (?,?,?)
		ON CONFLICT(pro_id) DO UPDATE SET status=excluded.status, updated_at=excluded.updated_at`, proID, status, now)
	return err
}
