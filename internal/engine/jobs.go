package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"homico/internal/domain"
	"homico/internal/engine/auth"
	"homico/internal/events"
	"homico/internal/outbound"
	"homico/internal/repo"
)

// JobCreateOptions are parameters for posting a job.
type JobCreateOptions struct {
	ClientID    string
	Title       string
	Description string
	Category    string
	Budget      *float64
	JobType     domain.JobType
	InvitedPros []string
}

func (e Engine) CreateJob(ctx context.Context, opts JobCreateOptions) (domain.Job, error) {
	if opts.ClientID == "" {
		return domain.Job{}, invalidInput("client_id is required")
	}
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Job{}, invalidInput("title is required")
	}
	if strings.TrimSpace(opts.Category) == "" {
		return domain.Job{}, invalidInput("category is required")
	}
	if opts.Budget != nil && *opts.Budget < 0 {
		return domain.Job{}, invalidInput("budget must not be negative")
	}
	if opts.JobType == "" {
		opts.JobType = domain.JobTypeMarketplace
	}
	invitees, err := normalizeInvitees(opts.ClientID, opts.InvitedPros)
	if err != nil {
		return domain.Job{}, err
	}
	switch opts.JobType {
	case domain.JobTypeMarketplace:
		if len(invitees) > 0 {
			return domain.Job{}, invalidInput("marketplace jobs do not take invitations")
		}
	case domain.JobTypeDirectRequest:
		if len(invitees) == 0 {
			return domain.Job{}, invalidInput("direct requests need at least one invited professional")
		}
	default:
		return domain.Job{}, invalidInput("unknown job type %q", opts.JobType)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Job{}, err
	}
	defer tx.Rollback()

	num, err := e.Repo.NextDisplayNumber(ctx, tx, "job")
	if err != nil {
		return domain.Job{}, err
	}
	now := e.now()
	job := domain.Job{
		ID:            newID(),
		DisplayNumber: num,
		ClientID:      opts.ClientID,
		Title:         strings.TrimSpace(opts.Title),
		Description:   opts.Description,
		Category:      strings.TrimSpace(opts.Category),
		Budget:        opts.Budget,
		JobType:       opts.JobType,
		Status:        domain.JobOpen,
		InvitedPros:   invitees,
		ExpiresAt:     domain.FormatTime(now.Add(e.config().JobTTL())),
		CreatedAt:     domain.FormatTime(now),
		UpdatedAt:     domain.FormatTime(now),
	}
	if err := e.Repo.InsertJob(ctx, tx, job); err != nil {
		return domain.Job{}, err
	}
	if err := e.appendEvent(ctx, tx, events.JobCreated, job.ID, "job", job.ID, opts.ClientID, events.EventPayload{
		"job_type": job.JobType, "category": job.Category, "display_number": job.DisplayNumber, "invited_pros": invitees,
	}); err != nil {
		return domain.Job{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Job{}, err
	}
	e.notifyInvitees(ctx, job, invitees)
	return job, nil
}

func normalizeInvitees(clientID string, proIDs []string) ([]string, error) {
	seen := make(map[string]bool, len(proIDs))
	var out []string
	for _, id := range proIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, invalidInput("invited professional id must not be empty")
		}
		if id == clientID {
			return nil, invalidInput("a client cannot invite themselves")
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}

func (e Engine) notifyInvitees(ctx context.Context, job domain.Job, proIDs []string) {
	if len(proIDs) == 0 {
		return
	}
	e.notifyMany(ctx, job.ID, proIDs, outbound.Notification{
		Type:        outbound.NotifyJobInvite,
		Title:       "New job request",
		Message:     fmt.Sprintf("You were invited to job #%d: %s", job.DisplayNumber, job.Title),
		Link:        "/jobs/" + job.ID,
		ReferenceID: job.ID,
	})
	for _, id := range proIDs {
		e.sms(ctx, job.ID, id, fmt.Sprintf("New job request #%d: %s", job.DisplayNumber, job.Title))
	}
}

func (e Engine) GetJob(ctx context.Context, id string) (domain.Job, error) {
	return e.Repo.GetJob(ctx, nil, id)
}

func (e Engine) ListJobs(ctx context.Context, f repo.JobFilters) ([]domain.Job, error) {
	return e.Repo.ListJobs(ctx, f)
}

// InvitePros adds professionals to an open direct request.
func (e Engine) InvitePros(ctx context.Context, jobID, clientID string, proIDs []string) (domain.Job, error) {
	invitees, err := normalizeInvitees(clientID, proIDs)
	if err != nil {
		return domain.Job{}, err
	}
	if len(invitees) == 0 {
		return domain.Job{}, invalidInput("at least one professional is required")
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Job{}, err
	}
	defer tx.Rollback()

	job, err := e.Repo.GetJob(ctx, tx, jobID)
	if err != nil {
		return domain.Job{}, err
	}
	if err := auth.RequireOwner("invite professionals", clientID, job.ClientID); err != nil {
		return domain.Job{}, err
	}
	if job.JobType != domain.JobTypeDirectRequest {
		return domain.Job{}, InvalidStateError{Entity: "job", Status: string(job.Status), Action: "invite to", Reason: "only direct requests take invitations"}
	}
	if job.Status != domain.JobOpen {
		return domain.Job{}, InvalidStateError{Entity: "job", Status: string(job.Status), Action: "invite to"}
	}
	var added []string
	for _, id := range invitees {
		if !job.IsInvited(id) {
			added = append(added, id)
		}
	}
	now := e.stamp()
	if err := e.Repo.AddInvites(ctx, tx, jobID, added, now); err != nil {
		return domain.Job{}, err
	}
	if len(added) > 0 {
		if err := e.appendEvent(ctx, tx, events.JobInvited, jobID, "job", jobID, clientID, events.EventPayload{"pro_ids": added}); err != nil {
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
	e.notifyInvitees(ctx, job, added)
	return job, nil
}

// CancelJob is client-initiated. Open and expired jobs cancel freely; a
// hired job can only be cancelled before work has started.
func (e Engine) CancelJob(ctx context.Context, jobID, clientID, reason string) (domain.Job, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Job{}, err
	}
	defer tx.Rollback()

	job, err := e.Repo.GetJob(ctx, tx, jobID)
	if err != nil {
		return domain.Job{}, err
	}
	if err := auth.RequireOwner("cancel job", clientID, job.ClientID); err != nil {
		return domain.Job{}, err
	}
	var hiredPro string
	switch job.Status {
	case domain.JobOpen, domain.JobExpired:
	case domain.JobInProgress:
		t, err := e.Repo.GetTracking(ctx, tx, jobID)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return domain.Job{}, err
		}
		if err == nil && t.CurrentStage != domain.StageHired {
			return domain.Job{}, InvalidStateError{
				Entity: "job", Status: string(job.Status), Action: "cancel",
				Reason: fmt.Sprintf("work is already underway (stage %q)", t.CurrentStage.Label()),
			}
		}
		if job.HiredProID != nil {
			hiredPro = *job.HiredProID
		}
	default:
		return domain.Job{}, InvalidStateError{Entity: "job", Status: string(job.Status), Action: "cancel"}
	}
	ok, err := e.Repo.CancelJob(ctx, tx, jobID, job.Status, e.stamp())
	if err != nil {
		return domain.Job{}, err
	}
	if !ok {
		return domain.Job{}, ConflictError{Reason: "job changed while cancelling, retry"}
	}
	if err := e.appendEvent(ctx, tx, events.JobCancelled, jobID, "job", jobID, clientID, events.EventPayload{
		"from": job.Status, "reason": reason, "hired_pro_id": hiredPro,
	}); err != nil {
		return domain.Job{}, err
	}
	job, err = e.Repo.GetJob(ctx, tx, jobID)
	if err != nil {
		return domain.Job{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Job{}, err
	}
	if hiredPro != "" {
		e.AddHistoryEvent(ctx, jobID, clientID, domain.JobCancelledMeta{Reason: reason})
		e.notify(ctx, jobID, outbound.Notification{
			UserID:      hiredPro,
			Type:        outbound.NotifyJobCancelled,
			Title:       "Job cancelled",
			Message:     fmt.Sprintf("The client cancelled job #%d: %s", job.DisplayNumber, job.Title),
			ReferenceID: jobID,
		})
	}
	return job, nil
}

// RenewJob reopens an expired job for another TTL period.
func (e Engine) RenewJob(ctx context.Context, jobID, clientID string) (domain.Job, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Job{}, err
	}
	defer tx.Rollback()

	job, err := e.Repo.GetJob(ctx, tx, jobID)
	if err != nil {
		return domain.Job{}, err
	}
	if err := auth.RequireOwner("renew job", clientID, job.ClientID); err != nil {
		return domain.Job{}, err
	}
	if job.Status != domain.JobExpired {
		return domain.Job{}, InvalidStateError{Entity: "job", Status: string(job.Status), Action: "renew", Reason: "only expired jobs can be renewed"}
	}
	now := e.now()
	expiresAt := domain.FormatTime(now.Add(e.config().JobTTL()))
	ok, err := e.Repo.RenewJob(ctx, tx, jobID, expiresAt, domain.FormatTime(now))
	if err != nil {
		return domain.Job{}, err
	}
	if !ok {
		return domain.Job{}, ConflictError{Reason: "job changed while renewing, retry"}
	}
	if err := e.appendEvent(ctx, tx, events.JobRenewed, jobID, "job", jobID, clientID, events.EventPayload{"expires_at": expiresAt}); err != nil {
		return domain.Job{}, err
	}
	job, err = e.Repo.GetJob(ctx, tx, jobID)
	if err != nil {
		return domain.Job{}, err
	}
	return job, tx.Commit()
}

// RecordJobView counts a view by anyone other than the owner.
func (e Engine) RecordJobView(ctx context.Context, jobID, viewerID string) error {
	job, err := e.Repo.GetJob(ctx, nil, jobID)
	if err != nil {
		return err
	}
	if viewerID == job.ClientID {
		return nil
	}
	return e.Repo.IncrementViewCount(ctx, nil, jobID)
}
