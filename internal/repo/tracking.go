package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"homico/internal/domain"
)

const trackingColumns = `id,job_id,client_id,pro_id,proposal_id,current_stage,progress,agreed_price,estimated_duration,
	COALESCE(estimated_duration_unit,''),completion_images_json,hired_at,started_at,completed_at,client_confirmed_at,updated_at`

func scanTracking(row rowScanner) (domain.ProjectTracking, error) {
	var (
		t                                   domain.ProjectTracking
		proposalID, images                  sql.NullString
		startedAt, completedAt, confirmedAt sql.NullString
		agreedPrice                         sql.NullFloat64
		duration                            sql.NullInt64
	)
	err := row.Scan(&t.ID, &t.JobID, &t.ClientID, &t.ProID, &proposalID, &t.CurrentStage, &t.Progress, &agreedPrice, &duration,
		&t.EstimatedDurationUnit, &images, &t.HiredAt, &startedAt, &completedAt, &confirmedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.ProposalID = stringPtr(proposalID)
	t.StartedAt = stringPtr(startedAt)
	t.CompletedAt = stringPtr(completedAt)
	t.ClientConfirmedAt = stringPtr(confirmedAt)
	if agreedPrice.Valid {
		v := agreedPrice.Float64
		t.AgreedPrice = &v
	}
	if duration.Valid {
		v := int(duration.Int64)
		t.EstimatedDuration = &v
	}
	if images.Valid && images.String != "" {
		if err := json.Unmarshal([]byte(images.String), &t.CompletionImages); err != nil {
			return t, fmt.Errorf("decode completion images: %w", err)
		}
	}
	return t, nil
}

func imagesValue(images []string) (any, error) {
	if len(images) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(images)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// InsertTracking creates the engagement row. The job_id column is unique,
// so a second hire for the same job returns ErrDuplicate.
func (r Repo) InsertTracking(ctx context.Context, tx *sql.Tx, t domain.ProjectTracking) error {
	images, err := imagesValue(t.CompletionImages)
	if err != nil {
		return err
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO project_trackings(id,job_id,client_id,pro_id,proposal_id,current_stage,progress,agreed_price,
		estimated_duration,estimated_duration_unit,completion_images_json,hired_at,started_at,completed_at,client_confirmed_at,updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.JobID, t.ClientID, t.ProID, nullableStringPtr(t.ProposalID), t.CurrentStage, t.Progress, nullableFloatPtr(t.AgreedPrice),
		nullableIntPtr(t.EstimatedDuration), nullable(t.EstimatedDurationUnit), images, t.HiredAt, nullableStringPtr(t.StartedAt),
		nullableStringPtr(t.CompletedAt), nullableStringPtr(t.ClientConfirmedAt), t.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("tracking for job %s: %w", t.JobID, ErrDuplicate)
	}
	return err
}

// GetTracking loads the engagement for a job including its stage history.
func (r Repo) GetTracking(ctx context.Context, tx *sql.Tx, jobID string) (domain.ProjectTracking, error) {
	t, err := scanTracking(r.q(tx).QueryRowContext(ctx, `SELECT `+trackingColumns+` FROM project_trackings WHERE job_id=?`, jobID))
	if err != nil {
		return t, err
	}
	t.StageHistory, err = r.ListStageHistory(ctx, tx, jobID)
	return t, err
}

// UpdateTracking writes stage, progress and timestamps, guarded by the
// stage the caller read and by the confirmation marker being unset.
func (r Repo) UpdateTracking(ctx context.Context, tx *sql.Tx, t domain.ProjectTracking, expect domain.Stage) (bool, error) {
	images, err := imagesValue(t.CompletionImages)
	if err != nil {
		return false, err
	}
	res, err := r.q(tx).ExecContext(ctx, `UPDATE project_trackings SET current_stage=?, progress=?, completion_images_json=?,
		started_at=?, completed_at=?, updated_at=? WHERE job_id=? AND current_stage=? AND client_confirmed_at IS NULL`,
		t.CurrentStage, t.Progress, images, nullableStringPtr(t.StartedAt), nullableStringPtr(t.CompletedAt), t.UpdatedAt, t.JobID, expect)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (r Repo) SetProgress(ctx context.Context, tx *sql.Tx, jobID string, progress int, now string) error {
	_, err := r.q(tx).ExecContext(ctx, `UPDATE project_trackings SET progress=?, updated_at=? WHERE job_id=?`, progress, now, jobID)
	return err
}

// ConfirmCompletion stamps the client confirmation. It only matches a
// tracking row that is completed and not yet confirmed.
func (r Repo) ConfirmCompletion(ctx context.Context, tx *sql.Tx, jobID, now string) (bool, error) {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE project_trackings SET client_confirmed_at=?, updated_at=?
		WHERE job_id=? AND current_stage='completed' AND client_confirmed_at IS NULL`, now, now, jobID)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// PushStage closes the open stage entry and appends a new one.
func (r Repo) PushStage(ctx context.Context, tx *sql.Tx, jobID string, e domain.StageEntry) (domain.StageEntry, error) {
	q := r.q(tx)
	if _, err := q.ExecContext(ctx, `UPDATE stage_history SET exited_at=? WHERE job_id=? AND exited_at IS NULL`, e.EnteredAt, jobID); err != nil {
		return e, fmt.Errorf("close stage: %w", err)
	}
	res, err := q.ExecContext(ctx, `INSERT INTO stage_history(job_id,stage,entered_at,changed_by,note) VALUES (?,?,?,?,?)`,
		jobID, e.Stage, e.EnteredAt, e.ChangedBy, nullable(e.Note))
	if err != nil {
		return e, fmt.Errorf("push stage: %w", err)
	}
	e.ID, err = res.LastInsertId()
	return e, err
}

func (r Repo) ListStageHistory(ctx context.Context, tx *sql.Tx, jobID string) ([]domain.StageEntry, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT id,stage,entered_at,exited_at,changed_by,COALESCE(note,'') FROM stage_history WHERE job_id=? ORDER BY id`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StageEntry
	for rows.Next() {
		var (
			e      domain.StageEntry
			exited sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Stage, &e.EnteredAt, &exited, &e.ChangedBy, &e.Note); err != nil {
			return nil, err
		}
		e.ExitedAt = stringPtr(exited)
		res = append(res, e)
	}
	return res, rows.Err()
}
