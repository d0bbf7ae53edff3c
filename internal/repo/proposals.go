package repo

import (
	"context"
	"database/sql"
	"fmt"

	"homico/internal/domain"
)

const proposalColumns = `id,job_id,pro_id,cover_letter,proposed_price,estimated_duration,estimated_duration_unit,status,hiring_choice,
	contact_revealed,revealed_at,viewed_by_client,viewed_by_pro,created_at,updated_at`

func scanProposal(row rowScanner) (domain.Proposal, error) {
	var (
		p                  domain.Proposal
		choice, revealedAt sql.NullString
	)
	err := row.Scan(&p.ID, &p.JobID, &p.ProID, &p.CoverLetter, &p.ProposedPrice, &p.EstimatedDuration, &p.EstimatedDurationUnit, &p.Status,
		&choice, &p.ContactRevealed, &revealedAt, &p.ViewedByClient, &p.ViewedByPro, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if choice.Valid {
		c := domain.HiringChoice(choice.String)
		p.HiringChoice = &c
	}
	p.RevealedAt = stringPtr(revealedAt)
	return p, nil
}

// InsertProposal stores a new proposal. A second proposal for the same
// job and professional returns ErrDuplicate.
func (r Repo) InsertProposal(ctx context.Context, tx *sql.Tx, p domain.Proposal) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO proposals(id,job_id,pro_id,cover_letter,proposed_price,estimated_duration,estimated_duration_unit,
		status,hiring_choice,contact_revealed,revealed_at,viewed_by_client,viewed_by_pro,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.JobID, p.ProID, p.CoverLetter, p.ProposedPrice, p.EstimatedDuration, p.EstimatedDurationUnit, p.Status,
		hiringChoiceValue(p.HiringChoice), p.ContactRevealed, nullableStringPtr(p.RevealedAt), p.ViewedByClient, p.ViewedByPro, p.CreatedAt, p.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("proposal for job %s by %s: %w", p.JobID, p.ProID, ErrDuplicate)
	}
	return err
}

func hiringChoiceValue(c *domain.HiringChoice) any {
	if c == nil {
		return nil
	}
	return string(*c)
}

func (r Repo) GetProposal(ctx context.Context, tx *sql.Tx, id string) (domain.Proposal, error) {
	return scanProposal(r.q(tx).QueryRowContext(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE id=?`, id))
}

// FindProposal returns the proposal a professional submitted for a job.
func (r Repo) FindProposal(ctx context.Context, tx *sql.Tx, jobID, proID string) (domain.Proposal, error) {
	return scanProposal(r.q(tx).QueryRowContext(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE job_id=? AND pro_id=?`, jobID, proID))
}

// ListProposals returns a job's proposals oldest first.
func (r Repo) ListProposals(ctx context.Context, tx *sql.Tx, jobID string) ([]domain.Proposal, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE job_id=? ORDER BY created_at, id`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// UpdateProposal writes the mutable proposal fields, guarded by the status
// the caller read. It reports false when another writer changed the status.
func (r Repo) UpdateProposal(ctx context.Context, tx *sql.Tx, p domain.Proposal, expect domain.ProposalStatus) (bool, error) {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE proposals SET status=?, hiring_choice=?, contact_revealed=?, revealed_at=?,
		viewed_by_client=?, viewed_by_pro=?, updated_at=? WHERE id=? AND status=?`,
		p.Status, hiringChoiceValue(p.HiringChoice), p.ContactRevealed, nullableStringPtr(p.RevealedAt),
		p.ViewedByClient, p.ViewedByPro, p.UpdatedAt, p.ID, expect)
	if err != nil {
		if isUniqueViolation(err) {
			return false, fmt.Errorf("accept proposal %s: %w", p.ID, ErrDuplicate)
		}
		return false, err
	}
	return affected(res)
}

// RevealContact sets the contact flag. The first reveal time is kept.
func (r Repo) RevealContact(ctx context.Context, tx *sql.Tx, id, now string) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE proposals SET contact_revealed=1, revealed_at=COALESCE(revealed_at, ?), updated_at=? WHERE id=?`,
		now, now, id)
	if err != nil {
		return err
	}
	if ok, _ := affected(res); !ok {
		return ErrNotFound
	}
	return nil
}

// MarkProposalsViewedByClient clears the client badge for every proposal on a job.
func (r Repo) MarkProposalsViewedByClient(ctx context.Context, tx *sql.Tx, jobID string) (int64, error) {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE proposals SET viewed_by_client=1 WHERE job_id=? AND viewed_by_client=0`, jobID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r Repo) MarkProposalViewedByPro(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := r.q(tx).ExecContext(ctx, `UPDATE proposals SET viewed_by_pro=1 WHERE id=?`, id)
	return err
}
