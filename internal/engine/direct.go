package engine

import (
	"context"
	"fmt"

	"homico/internal/domain"
	"homico/internal/engine/auth"
	"homico/internal/events"
	"homico/internal/outbound"
	"homico/internal/repo"
)

// AcceptDirectRequest hires an invited professional. The hire is a single
// conditional update on the job row: of several invitees accepting at
// once exactly one matches, the rest get ErrJobUnavailable.
func (e Engine) AcceptDirectRequest(ctx context.Context, jobID, proID string) (domain.ProjectTracking, error) {
	if proID == "" {
		return domain.ProjectTracking{}, invalidInput("pro_id is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ProjectTracking{}, err
	}
	defer tx.Rollback()

	now := e.stamp()
	ok, err := e.Repo.HireDirect(ctx, tx, jobID, proID, now)
	if err != nil {
		return domain.ProjectTracking{}, err
	}
	job, err := e.Repo.GetJob(ctx, tx, jobID)
	if err != nil {
		return domain.ProjectTracking{}, err
	}
	if !ok {
		if !job.IsInvited(proID) {
			return domain.ProjectTracking{}, auth.ForbiddenError{Action: "accept direct request", Reason: "you were not invited to this job"}
		}
		return domain.ProjectTracking{}, ErrJobUnavailable
	}
	t, err := e.startTracking(ctx, tx, job, proID, nil, job.Budget, nil, "", proID, now)
	if err != nil {
		return domain.ProjectTracking{}, err
	}
	if err := e.appendEvent(ctx, tx, events.DirectAccepted, jobID, "job", jobID, proID, events.EventPayload{"pro_id": proID}); err != nil {
		return domain.ProjectTracking{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ProjectTracking{}, err
	}

	e.AddHistoryEvent(ctx, jobID, proID, domain.HiredMeta{Direct: true, AgreedPrice: job.Budget})
	e.notify(ctx, jobID, outbound.Notification{
		UserID:      job.ClientID,
		Type:        outbound.NotifyRequestAccepted,
		Title:       "Request accepted",
		Message:     fmt.Sprintf("A professional accepted your request #%d: %s", job.DisplayNumber, job.Title),
		Link:        "/jobs/" + jobID + "/tracking",
		ReferenceID: jobID,
	})
	e.sms(ctx, jobID, job.ClientID, fmt.Sprintf("Your request #%d was accepted", job.DisplayNumber))
	var others []string
	for _, id := range job.PendingInvitees() {
		if id != proID {
			others = append(others, id)
		}
	}
	e.notifyMany(ctx, jobID, others, outbound.Notification{
		Type:        outbound.NotifyRequestTaken,
		Title:       "Request no longer available",
		Message:     fmt.Sprintf("Job #%d: %s was taken by another professional", job.DisplayNumber, job.Title),
		ReferenceID: jobID,
	})
	return t, nil
}

// DeclineDirectRequest records the invitee's refusal. When the last
// pending invitee declines the client is told.
func (e Engine) DeclineDirectRequest(ctx context.Context, jobID, proID string) (domain.Job, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Job{}, err
	}
	defer tx.Rollback()

	job, err := e.Repo.GetJob(ctx, tx, jobID)
	if err != nil {
		return domain.Job{}, err
	}
	if job.JobType != domain.JobTypeDirectRequest {
		return domain.Job{}, InvalidStateError{Entity: "job", Status: string(job.Status), Action: "decline", Reason: "not a direct request"}
	}
	if !job.IsInvited(proID) {
		return domain.Job{}, auth.ForbiddenError{Action: "decline direct request", Reason: "you were not invited to this job"}
	}
	if job.Status != domain.JobOpen {
		return domain.Job{}, InvalidStateError{Entity: "job", Status: string(job.Status), Action: "decline"}
	}
	alreadyDeclined := false
	for _, id := range job.DeclinedPros {
		if id == proID {
			alreadyDeclined = true
		}
	}
	if !alreadyDeclined {
		ok, err := e.Repo.DeclineInvite(ctx, tx, jobID, proID, e.stamp())
		if err != nil {
			return domain.Job{}, err
		}
		if !ok {
			return domain.Job{}, repo.ErrNotFound
		}
		if err := e.appendEvent(ctx, tx, events.DirectDeclined, jobID, "job", jobID, proID, nil); err != nil {
			return domain.Job{}, err
		}
	}
	job, err = e.Repo.GetJob(ctx, tx, jobID)
	if err != nil {
		return domain.Job{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Job{}, err
	}
	if !alreadyDeclined && len(job.PendingInvitees()) == 0 {
		e.notify(ctx, jobID, outbound.Notification{
			UserID:      job.ClientID,
			Type:        outbound.NotifyRequestDeclined,
			Title:       "Request declined",
			Message:     fmt.Sprintf("Every invited professional declined request #%d: %s", job.DisplayNumber, job.Title),
			Link:        "/jobs/" + jobID,
			ReferenceID: jobID,
		})
	}
	return job, nil
}
