package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homico/internal/engine"
	"homico/internal/engine/auth"
	"homico/internal/events"
)

func TestSetProVerificationGatesProposals(t *testing.T) {
	env := newTestEnv(t)
	job := env.marketplaceJob(t)

	require.NoError(t, env.Engine.SetProVerification(env.Ctx, "pro-a", auth.StatusSuspended, "admin"))
	_, err := env.Engine.SubmitProposal(env.Ctx, engine.ProposalSubmitOptions{JobID: job.ID, ProID: "pro-a"})
	var forbidden auth.ForbiddenError
	require.ErrorAs(t, err, &forbidden)

	require.NoError(t, env.Engine.SetProVerification(env.Ctx, "pro-a", auth.StatusVerified, ""))
	env.submit(t, job.ID, "pro-a")

	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, "", events.ProVerificationChange)
	require.NoError(t, err)
	require.Len(t, evts, 5, "three setup verifications plus two changes")
	assert.Equal(t, "pro-a", evts[0].EntityID)
	assert.Equal(t, "system", evts[0].ActorID)
	assert.Equal(t, "admin", evts[1].ActorID)
}

func TestSetProVerificationRejectsUnknownStatus(t *testing.T) {
	env := newTestEnv(t)
	err := env.Engine.SetProVerification(env.Ctx, "pro-a", "trusted", "admin")
	assert.ErrorIs(t, err, engine.ErrInvalidInput)
	err = env.Engine.SetProVerification(env.Ctx, "", auth.StatusVerified, "admin")
	assert.ErrorIs(t, err, engine.ErrInvalidInput)
}
