package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homico/internal/domain"
	"homico/internal/engine"
	"homico/internal/engine/auth"
	"homico/internal/repo"
)

func TestShortlistDirectThenAccept(t *testing.T) {
	env := newTestEnv(t)
	job := env.marketplaceJob(t)
	p := env.submit(t, job.ID, "pro-a")

	p, err := env.Engine.Shortlist(env.Ctx, p.ID, "client-1", domain.HiringChoiceDirect)
	require.NoError(t, err)
	assert.Equal(t, domain.ProposalShortlisted, p.Status)
	assert.True(t, p.ContactRevealed)
	require.NotNil(t, p.RevealedAt)
	assert.False(t, p.ViewedByPro)

	p, tracking, err := env.Engine.Accept(env.Ctx, p.ID, "client-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ProposalAccepted, p.Status)

	job, err = env.Engine.GetJob(env.Ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobInProgress, job.Status)
	require.NotNil(t, job.HiredProID)
	assert.Equal(t, "pro-a", *job.HiredProID)
	assertHiredInvariant(t, job)

	stored, err := env.Engine.Repo.GetTracking(env.Ctx, nil, job.ID)
	require.NoError(t, err)
	assert.Equal(t, tracking.ID, stored.ID)
	assert.Equal(t, domain.StageHired, stored.CurrentStage)
	assert.Equal(t, 0, stored.Progress)
	require.NotNil(t, stored.AgreedPrice)
	assert.Equal(t, 1000.0, *stored.AgreedPrice)
	require.NotNil(t, stored.EstimatedDuration)
	assert.Equal(t, 3, *stored.EstimatedDuration)
	assert.Equal(t, "weeks", stored.EstimatedDurationUnit)
	require.NotNil(t, stored.ProposalID)
	assert.Equal(t, p.ID, *stored.ProposalID)
	require.Len(t, stored.StageHistory, 1)
	assert.Nil(t, stored.StageHistory[0].ExitedAt)

	assert.Contains(t, env.Sinks.notificationsFor("client-1"), "new_proposal")
	assert.Contains(t, env.Sinks.notificationsFor("pro-a"), "hired")
	assert.Contains(t, env.Sinks.sms, "pro-a")

	history, err := env.Engine.ListHistory(env.Ctx, job.ID, "pro-a", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.HistoryHired, history[0].Type)
	assert.Equal(t, p.ID, history[0].Metadata.(domain.HiredMeta).ProposalID)
}

func TestAcceptFromPendingAndRejected(t *testing.T) {
	env := newTestEnv(t)
	job := env.marketplaceJob(t)
	p := env.submit(t, job.ID, "pro-a")

	_, err := env.Engine.Reject(env.Ctx, p.ID, "client-1")
	require.NoError(t, err)
	p, _, err = env.Engine.Accept(env.Ctx, p.ID, "client-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ProposalAccepted, p.Status)
}

func TestAtMostOneAcceptedProposal(t *testing.T) {
	env := newTestEnv(t)
	job := env.marketplaceJob(t)
	a := env.submit(t, job.ID, "pro-a")
	b := env.submit(t, job.ID, "pro-b")

	_, _, err := env.Engine.Accept(env.Ctx, a.ID, "client-1")
	require.NoError(t, err)

	_, _, err = env.Engine.Accept(env.Ctx, b.ID, "client-1")
	var conflict engine.ConflictError
	require.ErrorAs(t, err, &conflict)

	proposals, err := env.Engine.ListProposals(env.Ctx, job.ID, "client-1")
	require.NoError(t, err)
	accepted := 0
	for _, p := range proposals {
		if p.Status == domain.ProposalAccepted {
			accepted++
		}
	}
	assert.Equal(t, 1, accepted)

	job, err = env.Engine.GetJob(env.Ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "pro-a", *job.HiredProID)
	assert.Equal(t, 2, job.ProposalCount)
}

func TestAcceptTwiceIsInvalidState(t *testing.T) {
	env := newTestEnv(t)
	job := env.marketplaceJob(t)
	p := env.submit(t, job.ID, "pro-a")
	_, _, err := env.Engine.Accept(env.Ctx, p.ID, "client-1")
	require.NoError(t, err)

	_, _, err = env.Engine.Accept(env.Ctx, p.ID, "client-1")
	var invalid engine.InvalidStateError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "proposal", invalid.Entity)
}

func TestDuplicateProposalIsConflict(t *testing.T) {
	env := newTestEnv(t)
	job := env.marketplaceJob(t)
	env.submit(t, job.ID, "pro-a")

	_, err := env.Engine.SubmitProposal(env.Ctx, engine.ProposalSubmitOptions{JobID: job.ID, ProID: "pro-a", ProposedPrice: 900})
	var conflict engine.ConflictError
	require.ErrorAs(t, err, &conflict)

	job, err = env.Engine.GetJob(env.Ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, job.ProposalCount)
}

func TestSubmitProposalRejections(t *testing.T) {
	env := newTestEnv(t)
	job := env.marketplaceJob(t)
	other, err := env.Engine.CreateJob(env.Ctx, engine.JobCreateOptions{ClientID: "client-1", Title: "Fix tap", Category: "plumbing"})
	require.NoError(t, err)
	direct := env.directJob(t, "pro-a")

	_, err = env.Engine.SubmitProposal(env.Ctx, engine.ProposalSubmitOptions{JobID: "missing", ProID: "pro-a"})
	assert.ErrorIs(t, err, repo.ErrNotFound)

	var invalid engine.InvalidStateError
	_, err = env.Engine.SubmitProposal(env.Ctx, engine.ProposalSubmitOptions{JobID: other.ID, ProID: "pro-a"})
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, invalid.Reason, "plumbing")

	_, err = env.Engine.SubmitProposal(env.Ctx, engine.ProposalSubmitOptions{JobID: direct.ID, ProID: "pro-a"})
	require.ErrorAs(t, err, &invalid)

	var forbidden auth.ForbiddenError
	_, err = env.Engine.SubmitProposal(env.Ctx, engine.ProposalSubmitOptions{JobID: job.ID, ProID: "client-1"})
	require.ErrorAs(t, err, &forbidden)

	_, err = env.Engine.SubmitProposal(env.Ctx, engine.ProposalSubmitOptions{JobID: job.ID, ProID: "pro-unverified"})
	require.ErrorAs(t, err, &forbidden)
	assert.Contains(t, forbidden.Reason, "verified")

	_, err = env.Engine.SubmitProposal(env.Ctx, engine.ProposalSubmitOptions{JobID: job.ID, ProID: "pro-a", EstimatedDurationUnit: "years"})
	assert.ErrorIs(t, err, engine.ErrInvalidInput)
}

func TestOwnershipCheckedBeforeWrite(t *testing.T) {
	env := newTestEnv(t)
	job := env.marketplaceJob(t)
	p := env.submit(t, job.ID, "pro-a")

	var forbidden auth.ForbiddenError
	_, err := env.Engine.Shortlist(env.Ctx, p.ID, "client-2", domain.HiringChoiceHomico)
	require.ErrorAs(t, err, &forbidden)
	_, _, err = env.Engine.Accept(env.Ctx, p.ID, "pro-a")
	require.ErrorAs(t, err, &forbidden)
	_, err = env.Engine.Reject(env.Ctx, p.ID, "client-2")
	require.ErrorAs(t, err, &forbidden)
	_, err = env.Engine.Withdraw(env.Ctx, p.ID, "pro-b")
	require.ErrorAs(t, err, &forbidden)
	_, err = env.Engine.RevealContact(env.Ctx, p.ID, "pro-a")
	require.ErrorAs(t, err, &forbidden)

	stored, err := env.Engine.GetProposal(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProposalPending, stored.Status)
	assert.False(t, stored.ContactRevealed)
}

func TestProposalTransitions(t *testing.T) {
	env := newTestEnv(t)
	job := env.marketplaceJob(t)
	p := env.submit(t, job.ID, "pro-a")
	var invalid engine.InvalidStateError

	_, err := env.Engine.RevertToPending(env.Ctx, p.ID, "client-1")
	require.ErrorAs(t, err, &invalid, "revert from pending")

	p, err = env.Engine.Shortlist(env.Ctx, p.ID, "client-1", domain.HiringChoiceHomico)
	require.NoError(t, err)
	assert.False(t, p.ContactRevealed)
	_, err = env.Engine.Shortlist(env.Ctx, p.ID, "client-1", domain.HiringChoiceHomico)
	require.ErrorAs(t, err, &invalid, "shortlist twice")

	p, err = env.Engine.Reject(env.Ctx, p.ID, "client-1")
	require.NoError(t, err)
	_, err = env.Engine.Reject(env.Ctx, p.ID, "client-1")
	require.ErrorAs(t, err, &invalid, "reject twice")

	p, err = env.Engine.RevertToPending(env.Ctx, p.ID, "client-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ProposalPending, p.Status)
	assert.Nil(t, p.HiringChoice)

	p, err = env.Engine.Withdraw(env.Ctx, p.ID, "pro-a")
	require.NoError(t, err)
	assert.Equal(t, domain.ProposalWithdrawn, p.Status)
	assert.False(t, p.ViewedByClient)

	_, err = env.Engine.Withdraw(env.Ctx, p.ID, "pro-a")
	require.ErrorAs(t, err, &invalid, "withdraw twice")
	_, err = env.Engine.RevertToPending(env.Ctx, p.ID, "client-1")
	require.ErrorAs(t, err, &invalid, "revert withdrawn")
	_, _, err = env.Engine.Accept(env.Ctx, p.ID, "client-1")
	require.ErrorAs(t, err, &invalid, "accept withdrawn")
}

func TestRevertClearsContactReveal(t *testing.T) {
	env := newTestEnv(t)
	job := env.marketplaceJob(t)
	p := env.submit(t, job.ID, "pro-a")

	_, err := env.Engine.Shortlist(env.Ctx, p.ID, "client-1", domain.HiringChoiceDirect)
	require.NoError(t, err)
	p, err = env.Engine.RevertToPending(env.Ctx, p.ID, "client-1")
	require.NoError(t, err)
	assert.False(t, p.ContactRevealed)
	assert.Nil(t, p.RevealedAt)
	assert.Nil(t, p.HiringChoice)
}

func TestRevealContactKeepsFirstTimestamp(t *testing.T) {
	env := newTestEnv(t)
	job := env.marketplaceJob(t)
	p := env.submit(t, job.ID, "pro-a")

	first, err := env.Engine.RevealContact(env.Ctx, p.ID, "client-1")
	require.NoError(t, err)
	require.True(t, first.ContactRevealed)
	require.NotNil(t, first.RevealedAt)

	env.advance(time.Hour)
	second, err := env.Engine.RevealContact(env.Ctx, p.ID, "client-1")
	require.NoError(t, err)
	assert.Equal(t, *first.RevealedAt, *second.RevealedAt)
}

func TestViewedFlags(t *testing.T) {
	env := newTestEnv(t)
	job := env.marketplaceJob(t)
	p := env.submit(t, job.ID, "pro-a")
	assert.False(t, p.ViewedByClient)

	n, err := env.Engine.MarkProposalsViewed(env.Ctx, job.ID, "client-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	p, err = env.Engine.Shortlist(env.Ctx, p.ID, "client-1", domain.HiringChoiceHomico)
	require.NoError(t, err)
	assert.False(t, p.ViewedByPro)
	require.NoError(t, env.Engine.MarkProposalViewedByPro(env.Ctx, p.ID, "pro-a"))
	p, err = env.Engine.GetProposal(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, p.ViewedByPro)
	assert.True(t, p.ViewedByClient)

	var forbidden auth.ForbiddenError
	require.ErrorAs(t, env.Engine.MarkProposalViewedByPro(env.Ctx, p.ID, "pro-b"), &forbidden)
}

func TestListProposalsVisibility(t *testing.T) {
	env := newTestEnv(t)
	job := env.marketplaceJob(t)
	env.submit(t, job.ID, "pro-a")
	env.submit(t, job.ID, "pro-b")

	all, err := env.Engine.ListProposals(env.Ctx, job.ID, "client-1")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	own, err := env.Engine.ListProposals(env.Ctx, job.ID, "pro-b")
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, "pro-b", own[0].ProID)
}
