package engine

import (
	"context"
	"fmt"

	"homico/internal/domain"
	"homico/internal/engine/auth"
	"homico/internal/events"
	"homico/internal/outbound"
)

// ConfirmCompletion is the client's acceptance of the professional's
// completion claim. It closes the job, credits the professional and emits
// project.completion_confirmed, the trigger for payment. It succeeds once.
func (e Engine) ConfirmCompletion(ctx context.Context, jobID, clientID string) (domain.ProjectTracking, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ProjectTracking{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTracking(ctx, tx, jobID)
	if err != nil {
		return domain.ProjectTracking{}, err
	}
	if err := auth.RequireOwner("confirm completion", clientID, t.ClientID); err != nil {
		return domain.ProjectTracking{}, err
	}
	if t.ClientConfirmedAt != nil {
		return domain.ProjectTracking{}, InvalidStateError{Entity: "project", Status: string(t.CurrentStage), Action: "confirm", Reason: "completion was already confirmed"}
	}
	if t.CurrentStage != domain.StageCompleted {
		return domain.ProjectTracking{}, InvalidStateError{Entity: "project", Status: string(t.CurrentStage), Action: "confirm", Reason: "the professional has not marked the project completed"}
	}
	now := e.stamp()
	ok, err := e.Repo.ConfirmCompletion(ctx, tx, jobID, now)
	if err != nil {
		return domain.ProjectTracking{}, err
	}
	if !ok {
		return domain.ProjectTracking{}, InvalidStateError{Entity: "project", Status: string(t.CurrentStage), Action: "confirm", Reason: "completion was already confirmed"}
	}
	ok, err = e.Repo.CompleteJob(ctx, tx, jobID, now)
	if err != nil {
		return domain.ProjectTracking{}, err
	}
	if !ok {
		job, err := e.Repo.GetJob(ctx, tx, jobID)
		if err != nil {
			return domain.ProjectTracking{}, err
		}
		return domain.ProjectTracking{}, InvalidStateError{Entity: "job", Status: string(job.Status), Action: "complete"}
	}
	if err := e.Repo.IncrementCompletedJobs(ctx, tx, t.ProID, now); err != nil {
		return domain.ProjectTracking{}, err
	}
	if err := e.appendEvent(ctx, tx, events.CompletionConfirmed, jobID, "project", t.ID, clientID, events.EventPayload{
		"pro_id": t.ProID, "client_id": t.ClientID, "agreed_price": t.AgreedPrice, "confirmed_at": now,
	}); err != nil {
		return domain.ProjectTracking{}, err
	}
	job, err := e.Repo.GetJob(ctx, tx, jobID)
	if err != nil {
		return domain.ProjectTracking{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ProjectTracking{}, err
	}
	t.ClientConfirmedAt = &now
	t.UpdatedAt = now

	e.AddHistoryEvent(ctx, jobID, clientID, domain.CompletionConfirmedMeta{ConfirmedAt: now})
	e.notify(ctx, jobID, outbound.Notification{
		UserID:      t.ProID,
		Type:        outbound.NotifyCompletionConfirm,
		Title:       "Completion confirmed",
		Message:     fmt.Sprintf("The client confirmed job #%d: %s. Payment will follow.", job.DisplayNumber, job.Title),
		Link:        "/jobs/" + jobID + "/tracking",
		ReferenceID: jobID,
	})
	if len(t.CompletionImages) > 0 {
		e.createPortfolio(ctx, outbound.PortfolioEntry{
			JobID:       jobID,
			ProID:       t.ProID,
			ClientID:    t.ClientID,
			Title:       job.Title,
			Category:    job.Category,
			Images:      t.CompletionImages,
			CompletedAt: now,
		})
	}
	return t, nil
}
