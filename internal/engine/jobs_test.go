package engine_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homico/internal/domain"
	"homico/internal/engine"
	"homico/internal/engine/auth"
	"homico/internal/events"
)

func TestCreateJob(t *testing.T) {
	env := newTestEnv(t)
	first := env.marketplaceJob(t)
	second := env.directJob(t, "pro-a", "pro-a", "pro-b")

	assert.Equal(t, int64(1), first.DisplayNumber)
	assert.Equal(t, int64(2), second.DisplayNumber)
	assert.Equal(t, domain.JobOpen, first.Status)
	assert.Equal(t, domain.FormatTime(baseTime.Add(30*24*time.Hour)), first.ExpiresAt)
	assert.Equal(t, []string{"pro-a", "pro-b"}, second.InvitedPros)
	assertHiredInvariant(t, first)

	tests := []struct {
		name string
		opts engine.JobCreateOptions
	}{
		{"missing title", engine.JobCreateOptions{ClientID: "client-1", Category: "renovation"}},
		{"missing category", engine.JobCreateOptions{ClientID: "client-1", Title: "x"}},
		{"negative budget", engine.JobCreateOptions{ClientID: "client-1", Title: "x", Category: "renovation", Budget: ptr(-1.0)}},
		{"direct without invitees", engine.JobCreateOptions{ClientID: "client-1", Title: "x", Category: "renovation", JobType: domain.JobTypeDirectRequest}},
		{"self invite", engine.JobCreateOptions{ClientID: "client-1", Title: "x", Category: "renovation", JobType: domain.JobTypeDirectRequest, InvitedPros: []string{"client-1"}}},
		{"marketplace with invitees", engine.JobCreateOptions{ClientID: "client-1", Title: "x", Category: "renovation", InvitedPros: []string{"pro-a"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.Engine.CreateJob(env.Ctx, tt.opts)
			assert.ErrorIs(t, err, engine.ErrInvalidInput)
		})
	}
}

func ptr[T any](v T) *T { return &v }

func TestExpireAndRenew(t *testing.T) {
	env := newTestEnv(t)
	stale := env.marketplaceJob(t)
	env.advance(10 * 24 * time.Hour)
	fresh := env.marketplaceJob(t)

	env.advance(25 * 24 * time.Hour)
	n, err := env.Engine.ExpireJobs(env.Ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stale, err = env.Engine.GetJob(env.Ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobExpired, stale.Status)
	fresh, err = env.Engine.GetJob(env.Ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobOpen, fresh.Status)

	n, err = env.Engine.ExpireJobs(env.Ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "sweep is idempotent")

	_, err = env.Engine.SubmitProposal(env.Ctx, engine.ProposalSubmitOptions{JobID: stale.ID, ProID: "pro-a"})
	var invalid engine.InvalidStateError
	require.ErrorAs(t, err, &invalid)

	var forbidden auth.ForbiddenError
	_, err = env.Engine.RenewJob(env.Ctx, stale.ID, "client-2")
	require.ErrorAs(t, err, &forbidden)

	renewed, err := env.Engine.RenewJob(env.Ctx, stale.ID, "client-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobOpen, renewed.Status)
	assert.Equal(t, domain.FormatTime(baseTime.Add(35*24*time.Hour).Add(30*24*time.Hour)), renewed.ExpiresAt)

	_, err = env.Engine.RenewJob(env.Ctx, stale.ID, "client-1")
	require.ErrorAs(t, err, &invalid, "renew is only legal from expired")
}

func TestExpireLargeBacklog(t *testing.T) {
	env := newTestEnv(t)
	const backlog = 33000

	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	require.NoError(t, err)
	stmt, err := tx.PrepareContext(env.Ctx, `INSERT INTO jobs(id,display_number,client_id,title,category,job_type,status,expires_at,created_at,updated_at)
		VALUES (?,?,'client-1','Old job','renovation','marketplace','open','2000-01-01T00:00:00Z','1999-12-01T00:00:00Z','1999-12-01T00:00:00Z')`)
	require.NoError(t, err)
	for i := 0; i < backlog; i++ {
		_, err := stmt.ExecContext(env.Ctx, fmt.Sprintf("old-%05d", i), 100000+i)
		require.NoError(t, err)
	}
	require.NoError(t, stmt.Close())
	require.NoError(t, tx.Commit())
	live := env.marketplaceJob(t)

	n, err := env.Engine.ExpireJobs(env.Ctx)
	require.NoError(t, err)
	assert.Equal(t, backlog, n)

	var open int
	require.NoError(t, env.Engine.DB.QueryRowContext(env.Ctx, `SELECT COUNT(*) FROM jobs WHERE status='open'`).Scan(&open))
	assert.Equal(t, 1, open)
	live, err = env.Engine.GetJob(env.Ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobOpen, live.Status)

	var logged int
	require.NoError(t, env.Engine.DB.QueryRowContext(env.Ctx, `SELECT COUNT(*) FROM events WHERE type=?`, events.JobExpired).Scan(&logged))
	assert.Equal(t, backlog, logged)
}

func TestCancelJob(t *testing.T) {
	env := newTestEnv(t)

	open := env.marketplaceJob(t)
	var forbidden auth.ForbiddenError
	_, err := env.Engine.CancelJob(env.Ctx, open.ID, "client-2", "")
	require.ErrorAs(t, err, &forbidden)
	open, err = env.Engine.CancelJob(env.Ctx, open.ID, "client-1", "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, domain.JobCancelled, open.Status)
	assert.NotNil(t, open.CancelledAt)

	var invalid engine.InvalidStateError
	_, err = env.Engine.CancelJob(env.Ctx, open.ID, "client-1", "")
	require.ErrorAs(t, err, &invalid)

	hired, _ := env.hired(t)
	hired, err = env.Engine.CancelJob(env.Ctx, hired.ID, "client-1", "found someone else")
	require.NoError(t, err)
	assert.Equal(t, domain.JobCancelled, hired.Status)
	assert.Nil(t, hired.HiredProID)
	assertHiredInvariant(t, hired)
	assert.Contains(t, env.Sinks.notificationsFor("pro-a"), "job_cancelled")
}

func TestCancelBlockedOnceWorkStarts(t *testing.T) {
	env := newTestEnv(t)
	job, _ := env.hired(t)
	env.stage(t, job.ID, "pro-a", domain.StageStarted)

	_, err := env.Engine.CancelJob(env.Ctx, job.ID, "client-1", "")
	var invalid engine.InvalidStateError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, invalid.Error(), "Started")

	job, err = env.Engine.GetJob(env.Ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobInProgress, job.Status)
}

func TestCancelledJobFreezesProject(t *testing.T) {
	env := newTestEnv(t)
	job, _ := env.hired(t)
	_, err := env.Engine.CancelJob(env.Ctx, job.ID, "client-1", "")
	require.NoError(t, err)

	emitted := len(env.Sinks.stageUpdates)

	_, err = env.Engine.UpdateStage(env.Ctx, engine.StageUpdateOptions{JobID: job.ID, UserID: "pro-a", Stage: domain.StageStarted})
	var invalid engine.InvalidStateError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "job", invalid.Entity)

	_, err = env.Engine.UpdateProgress(env.Ctx, job.ID, "pro-a", 40)
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "job", invalid.Entity)

	_, err = env.Engine.PostMessage(env.Ctx, job.ID, "pro-a", "still there?")
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "job", invalid.Entity)

	tr, err := env.Engine.GetTracking(env.Ctx, job.ID, "client-1")
	require.NoError(t, err)
	assert.Zero(t, tr.Progress)
	assert.Len(t, env.Sinks.stageUpdates, emitted)
	assert.Empty(t, env.Sinks.messages)
}

func TestRecordJobView(t *testing.T) {
	env := newTestEnv(t)
	job := env.marketplaceJob(t)

	require.NoError(t, env.Engine.RecordJobView(env.Ctx, job.ID, "pro-a"))
	require.NoError(t, env.Engine.RecordJobView(env.Ctx, job.ID, "pro-b"))
	require.NoError(t, env.Engine.RecordJobView(env.Ctx, job.ID, "client-1"))

	job, err := env.Engine.GetJob(env.Ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, job.ViewCount)
}
