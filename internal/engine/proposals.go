package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"homico/internal/domain"
	"homico/internal/engine/auth"
	"homico/internal/events"
	"homico/internal/outbound"
	"homico/internal/repo"
)

// ProposalSubmitOptions are parameters for a professional's bid.
type ProposalSubmitOptions struct {
	JobID                 string
	ProID                 string
	CoverLetter           string
	ProposedPrice         float64
	EstimatedDuration     int
	EstimatedDurationUnit string
}

func (e Engine) SubmitProposal(ctx context.Context, opts ProposalSubmitOptions) (domain.Proposal, error) {
	if opts.ProID == "" {
		return domain.Proposal{}, invalidInput("pro_id is required")
	}
	if opts.ProposedPrice < 0 {
		return domain.Proposal{}, invalidInput("proposed_price must not be negative")
	}
	if opts.EstimatedDuration < 0 {
		return domain.Proposal{}, invalidInput("estimated_duration must not be negative")
	}
	switch opts.EstimatedDurationUnit {
	case "":
		opts.EstimatedDurationUnit = "days"
	case "days", "weeks", "months":
	default:
		return domain.Proposal{}, invalidInput("estimated_duration_unit must be days, weeks or months")
	}

	job, err := e.Repo.GetJob(ctx, nil, opts.JobID)
	if err != nil {
		return domain.Proposal{}, err
	}
	if err := e.ensureBiddable(job); err != nil {
		return domain.Proposal{}, err
	}
	if opts.ProID == job.ClientID {
		return domain.Proposal{}, auth.ForbiddenError{Action: "submit proposal", Reason: "you cannot bid on your own job"}
	}
	if _, err := e.Repo.FindProposal(ctx, nil, job.ID, opts.ProID); err == nil {
		return domain.Proposal{}, ConflictError{Reason: "you already submitted a proposal for this job"}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Proposal{}, err
	}
	if e.Trust != nil {
		verified, err := e.Trust.IsVerified(ctx, opts.ProID)
		if err != nil {
			return domain.Proposal{}, fmt.Errorf("trust check: %w", err)
		}
		if !verified {
			return domain.Proposal{}, auth.ForbiddenError{Action: "submit proposal", Reason: "professional is not verified"}
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Proposal{}, err
	}
	defer tx.Rollback()

	job, err = e.Repo.GetJob(ctx, tx, opts.JobID)
	if err != nil {
		return domain.Proposal{}, err
	}
	if err := e.ensureBiddable(job); err != nil {
		return domain.Proposal{}, err
	}
	now := e.stamp()
	p := domain.Proposal{
		ID:                    newID(),
		JobID:                 job.ID,
		ProID:                 opts.ProID,
		CoverLetter:           opts.CoverLetter,
		ProposedPrice:         opts.ProposedPrice,
		EstimatedDuration:     opts.EstimatedDuration,
		EstimatedDurationUnit: opts.EstimatedDurationUnit,
		Status:                domain.ProposalPending,
		ViewedByPro:           true,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := e.Repo.InsertProposal(ctx, tx, p); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return domain.Proposal{}, ConflictError{Reason: "you already submitted a proposal for this job"}
		}
		return domain.Proposal{}, err
	}
	if err := e.Repo.IncrementProposalCount(ctx, tx, job.ID, now); err != nil {
		return domain.Proposal{}, err
	}
	if err := e.appendEvent(ctx, tx, events.ProposalSubmitted, job.ID, "proposal", p.ID, opts.ProID, events.EventPayload{
		"proposed_price": p.ProposedPrice,
	}); err != nil {
		return domain.Proposal{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Proposal{}, err
	}
	e.notify(ctx, job.ID, outbound.Notification{
		UserID:      job.ClientID,
		Type:        outbound.NotifyNewProposal,
		Title:       "New proposal",
		Message:     fmt.Sprintf("You received a new proposal for job #%d: %s", job.DisplayNumber, job.Title),
		Link:        "/jobs/" + job.ID + "/proposals",
		ReferenceID: p.ID,
	})
	return p, nil
}

func (e Engine) ensureBiddable(job domain.Job) error {
	if job.JobType != domain.JobTypeMarketplace {
		return InvalidStateError{Entity: "job", Status: string(job.Status), Action: "bid on", Reason: "direct requests do not accept proposals"}
	}
	if job.Status != domain.JobOpen {
		return InvalidStateError{Entity: "job", Status: string(job.Status), Action: "bid on"}
	}
	if !e.config().BiddingAllowed(job.Category) {
		return InvalidStateError{Entity: "job", Status: string(job.Status), Action: "bid on",
			Reason: fmt.Sprintf("category %q does not take proposals", job.Category)}
	}
	return nil
}

func (e Engine) GetProposal(ctx context.Context, id string) (domain.Proposal, error) {
	return e.Repo.GetProposal(ctx, nil, id)
}

// ListProposals returns every proposal to the job owner and only the
// caller's own proposal to anyone else.
func (e Engine) ListProposals(ctx context.Context, jobID, callerID string) ([]domain.Proposal, error) {
	job, err := e.Repo.GetJob(ctx, nil, jobID)
	if err != nil {
		return nil, err
	}
	all, err := e.Repo.ListProposals(ctx, nil, jobID)
	if err != nil {
		return nil, err
	}
	if callerID == job.ClientID {
		return all, nil
	}
	var own []domain.Proposal
	for _, p := range all {
		if p.ProID == callerID {
			own = append(own, p)
		}
	}
	return own, nil
}

// loadForClient resolves the proposal and its job and checks the caller
// owns the job before anything is written.
func (e Engine) loadForClient(ctx context.Context, tx *sql.Tx, proposalID, clientID, action string) (domain.Proposal, domain.Job, error) {
	p, err := e.Repo.GetProposal(ctx, tx, proposalID)
	if err != nil {
		return p, domain.Job{}, err
	}
	job, err := e.Repo.GetJob(ctx, tx, p.JobID)
	if err != nil {
		return p, job, err
	}
	if err := auth.RequireOwner(action, clientID, job.ClientID); err != nil {
		return p, job, err
	}
	return p, job, nil
}

func proposalState(p domain.Proposal, action, reason string) error {
	return InvalidStateError{Entity: "proposal", Status: string(p.Status), Action: action, Reason: reason}
}

func (e Engine) saveProposal(ctx context.Context, tx *sql.Tx, p domain.Proposal, expect domain.ProposalStatus) error {
	ok, err := e.Repo.UpdateProposal(ctx, tx, p, expect)
	if errors.Is(err, repo.ErrDuplicate) {
		return ConflictError{Reason: "another proposal was already accepted for this job"}
	}
	if err != nil {
		return err
	}
	if !ok {
		return ConflictError{Reason: "proposal changed concurrently, retry"}
	}
	return nil
}

func (e Engine) Shortlist(ctx context.Context, proposalID, clientID string, choice domain.HiringChoice) (domain.Proposal, error) {
	if !choice.Valid() {
		return domain.Proposal{}, invalidInput("hiring_choice must be homico or direct")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Proposal{}, err
	}
	defer tx.Rollback()

	p, job, err := e.loadForClient(ctx, tx, proposalID, clientID, "shortlist proposal")
	if err != nil {
		return domain.Proposal{}, err
	}
	if p.Status != domain.ProposalPending {
		return domain.Proposal{}, proposalState(p, "shortlist", "only pending proposals can be shortlisted")
	}
	if job.Status != domain.JobOpen {
		return domain.Proposal{}, InvalidStateError{Entity: "job", Status: string(job.Status), Action: "shortlist on"}
	}
	now := e.stamp()
	p.Status = domain.ProposalShortlisted
	p.HiringChoice = &choice
	p.ViewedByPro = false
	p.UpdatedAt = now
	if choice == domain.HiringChoiceDirect {
		p.ContactRevealed = true
		if p.RevealedAt == nil {
			p.RevealedAt = &now
		}
	}
	if err := e.saveProposal(ctx, tx, p, domain.ProposalPending); err != nil {
		return domain.Proposal{}, err
	}
	if err := e.appendEvent(ctx, tx, events.ProposalShortlisted, job.ID, "proposal", p.ID, clientID, events.EventPayload{
		"hiring_choice": choice, "contact_revealed": p.ContactRevealed,
	}); err != nil {
		return domain.Proposal{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Proposal{}, err
	}
	e.notifyProposalUpdate(ctx, job, p, "Your proposal was shortlisted")
	return p, nil
}

// Accept hires the proposal's professional. The job update is
// conditional on the job still being open, so of two concurrent accepts
// on one job only the first commits.
func (e Engine) Accept(ctx context.Context, proposalID, clientID string) (domain.Proposal, domain.ProjectTracking, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Proposal{}, domain.ProjectTracking{}, err
	}
	defer tx.Rollback()

	p, job, err := e.loadForClient(ctx, tx, proposalID, clientID, "accept proposal")
	if err != nil {
		return domain.Proposal{}, domain.ProjectTracking{}, err
	}
	if p.Status.Terminal() {
		return domain.Proposal{}, domain.ProjectTracking{}, proposalState(p, "accept", "")
	}
	if job.Status.Hired() {
		return domain.Proposal{}, domain.ProjectTracking{}, ConflictError{Reason: "this job already has a hired professional"}
	}
	if job.Status != domain.JobOpen {
		return domain.Proposal{}, domain.ProjectTracking{}, InvalidStateError{Entity: "job", Status: string(job.Status), Action: "hire on"}
	}
	now := e.stamp()
	ok, err := e.Repo.HireFromProposal(ctx, tx, job.ID, p.ProID, now)
	if err != nil {
		return domain.Proposal{}, domain.ProjectTracking{}, err
	}
	if !ok {
		return domain.Proposal{}, domain.ProjectTracking{}, ConflictError{Reason: "this job already has a hired professional"}
	}
	prev := p.Status
	p.Status = domain.ProposalAccepted
	p.ViewedByPro = false
	p.ViewedByClient = true
	p.UpdatedAt = now
	if err := e.saveProposal(ctx, tx, p, prev); err != nil {
		return domain.Proposal{}, domain.ProjectTracking{}, err
	}
	price := p.ProposedPrice
	duration := p.EstimatedDuration
	t, err := e.startTracking(ctx, tx, job, p.ProID, &p.ID, &price, &duration, p.EstimatedDurationUnit, clientID, now)
	if err != nil {
		return domain.Proposal{}, domain.ProjectTracking{}, err
	}
	if err := e.appendEvent(ctx, tx, events.ProposalAccepted, job.ID, "proposal", p.ID, clientID, events.EventPayload{
		"pro_id": p.ProID, "agreed_price": price, "from": prev,
	}); err != nil {
		return domain.Proposal{}, domain.ProjectTracking{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Proposal{}, domain.ProjectTracking{}, err
	}
	e.AddHistoryEvent(ctx, job.ID, clientID, domain.HiredMeta{ProposalID: p.ID, AgreedPrice: &price})
	e.notify(ctx, job.ID, outbound.Notification{
		UserID:      p.ProID,
		Type:        outbound.NotifyHired,
		Title:       "You were hired",
		Message:     fmt.Sprintf("Your proposal for job #%d: %s was accepted", job.DisplayNumber, job.Title),
		Link:        "/jobs/" + job.ID + "/tracking",
		ReferenceID: p.ID,
	})
	e.sms(ctx, job.ID, p.ProID, fmt.Sprintf("You were hired for job #%d: %s", job.DisplayNumber, job.Title))
	return p, t, nil
}

// startTracking creates the engagement row at stage hired.
func (e Engine) startTracking(ctx context.Context, tx *sql.Tx, job domain.Job, proID string, proposalID *string, price *float64, duration *int, unit, changedBy, now string) (domain.ProjectTracking, error) {
	t := domain.ProjectTracking{
		ID:                    newID(),
		JobID:                 job.ID,
		ClientID:              job.ClientID,
		ProID:                 proID,
		ProposalID:            proposalID,
		CurrentStage:          domain.StageHired,
		Progress:              domain.StageHired.Floor(),
		AgreedPrice:           price,
		EstimatedDuration:     duration,
		EstimatedDurationUnit: unit,
		HiredAt:               now,
		UpdatedAt:             now,
	}
	if err := e.Repo.InsertTracking(ctx, tx, t); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return t, ConflictError{Reason: "this job already has a project in progress"}
		}
		return t, err
	}
	entry, err := e.Repo.PushStage(ctx, tx, job.ID, domain.StageEntry{Stage: domain.StageHired, EnteredAt: now, ChangedBy: changedBy})
	if err != nil {
		return t, err
	}
	t.StageHistory = []domain.StageEntry{entry}
	return t, nil
}

func (e Engine) Reject(ctx context.Context, proposalID, clientID string) (domain.Proposal, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Proposal{}, err
	}
	defer tx.Rollback()

	p, job, err := e.loadForClient(ctx, tx, proposalID, clientID, "reject proposal")
	if err != nil {
		return domain.Proposal{}, err
	}
	switch p.Status {
	case domain.ProposalRejected:
		return domain.Proposal{}, proposalState(p, "reject", "proposal is already rejected")
	case domain.ProposalAccepted, domain.ProposalWithdrawn:
		return domain.Proposal{}, proposalState(p, "reject", "")
	}
	prev := p.Status
	p.Status = domain.ProposalRejected
	p.ViewedByPro = false
	p.UpdatedAt = e.stamp()
	if err := e.saveProposal(ctx, tx, p, prev); err != nil {
		return domain.Proposal{}, err
	}
	if err := e.appendEvent(ctx, tx, events.ProposalRejected, job.ID, "proposal", p.ID, clientID, events.EventPayload{"from": prev}); err != nil {
		return domain.Proposal{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Proposal{}, err
	}
	e.notifyProposalUpdate(ctx, job, p, "Your proposal was declined")
	return p, nil
}

// RevertToPending undoes a shortlist or rejection.
func (e Engine) RevertToPending(ctx context.Context, proposalID, clientID string) (domain.Proposal, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Proposal{}, err
	}
	defer tx.Rollback()

	p, job, err := e.loadForClient(ctx, tx, proposalID, clientID, "revert proposal")
	if err != nil {
		return domain.Proposal{}, err
	}
	switch p.Status {
	case domain.ProposalShortlisted, domain.ProposalRejected:
	case domain.ProposalPending:
		return domain.Proposal{}, proposalState(p, "revert", "proposal is already pending")
	default:
		return domain.Proposal{}, proposalState(p, "revert", "")
	}
	prev := p.Status
	p.Status = domain.ProposalPending
	p.HiringChoice = nil
	p.ContactRevealed = false
	p.RevealedAt = nil
	p.ViewedByPro = false
	p.UpdatedAt = e.stamp()
	if err := e.saveProposal(ctx, tx, p, prev); err != nil {
		return domain.Proposal{}, err
	}
	if err := e.appendEvent(ctx, tx, events.ProposalReverted, job.ID, "proposal", p.ID, clientID, events.EventPayload{"from": prev}); err != nil {
		return domain.Proposal{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Proposal{}, err
	}
	e.notifyProposalUpdate(ctx, job, p, "Your proposal is back under review")
	return p, nil
}

// Withdraw is the professional's exit from a bid.
func (e Engine) Withdraw(ctx context.Context, proposalID, proID string) (domain.Proposal, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Proposal{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProposal(ctx, tx, proposalID)
	if err != nil {
		return domain.Proposal{}, err
	}
	if err := auth.RequireOwner("withdraw proposal", proID, p.ProID); err != nil {
		return domain.Proposal{}, err
	}
	if p.Status.Terminal() {
		return domain.Proposal{}, proposalState(p, "withdraw", "")
	}
	job, err := e.Repo.GetJob(ctx, tx, p.JobID)
	if err != nil {
		return domain.Proposal{}, err
	}
	prev := p.Status
	p.Status = domain.ProposalWithdrawn
	p.ViewedByClient = false
	p.UpdatedAt = e.stamp()
	if err := e.saveProposal(ctx, tx, p, prev); err != nil {
		return domain.Proposal{}, err
	}
	if err := e.appendEvent(ctx, tx, events.ProposalWithdrawn, job.ID, "proposal", p.ID, proID, events.EventPayload{"from": prev}); err != nil {
		return domain.Proposal{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Proposal{}, err
	}
	e.notify(ctx, job.ID, outbound.Notification{
		UserID:      job.ClientID,
		Type:        outbound.NotifyProposalUpdate,
		Title:       "Proposal withdrawn",
		Message:     fmt.Sprintf("A professional withdrew their proposal for job #%d: %s", job.DisplayNumber, job.Title),
		ReferenceID: p.ID,
	})
	return p, nil
}

// RevealContact exposes the professional's contact details to the client.
// Repeated calls keep the first reveal time.
func (e Engine) RevealContact(ctx context.Context, proposalID, clientID string) (domain.Proposal, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Proposal{}, err
	}
	defer tx.Rollback()

	p, job, err := e.loadForClient(ctx, tx, proposalID, clientID, "reveal contact")
	if err != nil {
		return domain.Proposal{}, err
	}
	if err := e.Repo.RevealContact(ctx, tx, p.ID, e.stamp()); err != nil {
		return domain.Proposal{}, err
	}
	if !p.ContactRevealed {
		if err := e.appendEvent(ctx, tx, events.ProposalContact, job.ID, "proposal", p.ID, clientID, nil); err != nil {
			return domain.Proposal{}, err
		}
	}
	p, err = e.Repo.GetProposal(ctx, tx, p.ID)
	if err != nil {
		return domain.Proposal{}, err
	}
	return p, tx.Commit()
}

// MarkProposalsViewed clears the client's unseen badge for a job.
func (e Engine) MarkProposalsViewed(ctx context.Context, jobID, clientID string) (int64, error) {
	job, err := e.Repo.GetJob(ctx, nil, jobID)
	if err != nil {
		return 0, err
	}
	if err := auth.RequireOwner("mark proposals viewed", clientID, job.ClientID); err != nil {
		return 0, err
	}
	return e.Repo.MarkProposalsViewedByClient(ctx, nil, jobID)
}

func (e Engine) MarkProposalViewedByPro(ctx context.Context, proposalID, proID string) error {
	p, err := e.Repo.GetProposal(ctx, nil, proposalID)
	if err != nil {
		return err
	}
	if err := auth.RequireOwner("mark proposal viewed", proID, p.ProID); err != nil {
		return err
	}
	return e.Repo.MarkProposalViewedByPro(ctx, nil, proposalID)
}

func (e Engine) notifyProposalUpdate(ctx context.Context, job domain.Job, p domain.Proposal, title string) {
	e.notify(ctx, job.ID, outbound.Notification{
		UserID:      p.ProID,
		Type:        outbound.NotifyProposalUpdate,
		Title:       title,
		Message:     fmt.Sprintf("Job #%d: %s", job.DisplayNumber, strings.TrimSpace(job.Title)),
		Link:        "/proposals/" + p.ID,
		ReferenceID: p.ID,
		Metadata:    map[string]string{"status": string(p.Status)},
	})
}
