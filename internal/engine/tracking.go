package engine

import (
	"context"
	"database/sql"
	"fmt"

	"homico/internal/domain"
	"homico/internal/engine/auth"
	"homico/internal/events"
	"homico/internal/outbound"
)

// GetTracking returns the engagement to either of its parties.
func (e Engine) GetTracking(ctx context.Context, jobID, userID string) (domain.ProjectTracking, error) {
	t, err := e.Repo.GetTracking(ctx, nil, jobID)
	if err != nil {
		return t, err
	}
	if !t.IsParticipant(userID) {
		return domain.ProjectTracking{}, auth.ForbiddenError{Action: "view project", Reason: "only the hired parties can see this project"}
	}
	return t, nil
}

func (e Engine) loadParticipant(ctx context.Context, tx *sql.Tx, jobID, userID, action string) (domain.ProjectTracking, error) {
	t, err := e.Repo.GetTracking(ctx, tx, jobID)
	if err != nil {
		return t, err
	}
	if !t.IsParticipant(userID) {
		return t, auth.ForbiddenError{Action: action, Reason: "only the hired parties can change this project"}
	}
	return t, nil
}

// ensureJobInProgress freezes the project once its job is cancelled or
// otherwise no longer running.
func (e Engine) ensureJobInProgress(ctx context.Context, tx *sql.Tx, jobID, action string) error {
	job, err := e.Repo.GetJob(ctx, tx, jobID)
	if err != nil {
		return err
	}
	if job.Status != domain.JobInProgress {
		return InvalidStateError{Entity: "job", Status: string(job.Status), Action: action}
	}
	return nil
}

// StageUpdateOptions are parameters for moving a project between stages.
type StageUpdateOptions struct {
	JobID  string
	UserID string
	Stage  domain.Stage
	Note   string
	Images []string
}

func ensureStageTransition(t domain.ProjectTracking, next domain.Stage) error {
	reason := ""
	switch {
	case t.ClientConfirmedAt != nil:
		reason = "completion was already confirmed"
	case t.CurrentStage == next:
		reason = "project is already in this stage"
	case !t.CurrentStage.CanTransition(next):
		reason = fmt.Sprintf("cannot move from %s to %s", t.CurrentStage, next)
	default:
		return nil
	}
	return InvalidStateError{Entity: "project", Status: string(t.CurrentStage), Action: "change stage of", Reason: reason}
}

// UpdateStage moves the project to a new stage. Progress is raised to the
// stage floor; entering completed records the professional's claim.
func (e Engine) UpdateStage(ctx context.Context, opts StageUpdateOptions) (domain.ProjectTracking, error) {
	if !opts.Stage.Valid() {
		return domain.ProjectTracking{}, invalidInput("invalid stage %q", opts.Stage)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ProjectTracking{}, err
	}
	defer tx.Rollback()

	t, err := e.loadParticipant(ctx, tx, opts.JobID, opts.UserID, "change project stage")
	if err != nil {
		return domain.ProjectTracking{}, err
	}
	if err := e.ensureJobInProgress(ctx, tx, opts.JobID, "change stage of"); err != nil {
		return domain.ProjectTracking{}, err
	}
	if err := ensureStageTransition(t, opts.Stage); err != nil {
		return domain.ProjectTracking{}, err
	}

	now := e.stamp()
	prev := t.CurrentStage
	t.CurrentStage = opts.Stage
	t.Progress = max(t.Progress, opts.Stage.Floor())
	t.UpdatedAt = now
	switch opts.Stage {
	case domain.StageStarted:
		if t.StartedAt == nil {
			t.StartedAt = &now
		}
	case domain.StageInProgress:
		if t.StartedAt == nil {
			t.StartedAt = &now
		}
		if prev == domain.StageCompleted {
			t.CompletedAt = nil
		}
	case domain.StageCompleted:
		t.CompletedAt = &now
		t.Progress = 100
		if opts.UserID == t.ProID && len(opts.Images) > 0 {
			t.CompletionImages = opts.Images
		}
	}
	ok, err := e.Repo.UpdateTracking(ctx, tx, t, prev)
	if err != nil {
		return domain.ProjectTracking{}, err
	}
	if !ok {
		return domain.ProjectTracking{}, ConflictError{Reason: "project changed concurrently, retry"}
	}
	if _, err := e.Repo.PushStage(ctx, tx, t.JobID, domain.StageEntry{Stage: opts.Stage, EnteredAt: now, ChangedBy: opts.UserID, Note: opts.Note}); err != nil {
		return domain.ProjectTracking{}, err
	}
	if err := e.appendEvent(ctx, tx, events.ProjectStageChanged, t.JobID, "project", t.ID, opts.UserID, events.EventPayload{
		"from": prev, "to": opts.Stage, "progress": t.Progress,
	}); err != nil {
		return domain.ProjectTracking{}, err
	}
	t, err = e.Repo.GetTracking(ctx, tx, t.JobID)
	if err != nil {
		return domain.ProjectTracking{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ProjectTracking{}, err
	}

	e.AddHistoryEvent(ctx, t.JobID, opts.UserID, domain.StageChangedMeta{From: prev, To: opts.Stage, Note: opts.Note})
	e.notify(ctx, t.JobID, outbound.Notification{
		UserID:      t.Counterparty(opts.UserID),
		Type:        outbound.NotifyStageChanged,
		Title:       "Project update",
		Message:     fmt.Sprintf("Job #%d: %s moved to %s", job.DisplayNumber, job.Title, opts.Stage.Label()),
		Link:        "/jobs/" + t.JobID + "/tracking",
		ReferenceID: t.JobID,
		Metadata:    map[string]string{"stage": string(opts.Stage)},
	})
	e.emitStage(ctx, t)
	return t, nil
}

// UpdateProgress lets the professional set progress directly, clamped to
// 0..100 and independent of the stage floor.
func (e Engine) UpdateProgress(ctx context.Context, jobID, proID string, value int) (domain.ProjectTracking, error) {
	value = min(max(value, 0), 100)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ProjectTracking{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTracking(ctx, tx, jobID)
	if err != nil {
		return domain.ProjectTracking{}, err
	}
	if err := auth.RequireOwner("update progress", proID, t.ProID); err != nil {
		return domain.ProjectTracking{}, err
	}
	if t.ClientConfirmedAt != nil {
		return domain.ProjectTracking{}, InvalidStateError{Entity: "project", Status: string(t.CurrentStage), Action: "update progress of", Reason: "completion was already confirmed"}
	}
	if err := e.ensureJobInProgress(ctx, tx, jobID, "update progress of"); err != nil {
		return domain.ProjectTracking{}, err
	}
	prev := t.Progress
	now := e.stamp()
	if err := e.Repo.SetProgress(ctx, tx, jobID, value, now); err != nil {
		return domain.ProjectTracking{}, err
	}
	if err := e.appendEvent(ctx, tx, events.ProjectProgress, jobID, "project", t.ID, proID, events.EventPayload{"from": prev, "to": value}); err != nil {
		return domain.ProjectTracking{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ProjectTracking{}, err
	}
	t.Progress = value
	t.UpdatedAt = now
	e.AddHistoryEvent(ctx, jobID, proID, domain.ProgressUpdatedMeta{From: prev, To: value})
	e.emitStage(ctx, t)
	return t, nil
}
