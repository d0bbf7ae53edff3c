package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homico/internal/domain"
	"homico/internal/engine"
	"homico/internal/engine/auth"
)

func (env *testEnv) stage(t *testing.T, jobID, userID string, stage domain.Stage) domain.ProjectTracking {
	t.Helper()
	tr, err := env.Engine.UpdateStage(env.Ctx, engine.StageUpdateOptions{JobID: jobID, UserID: userID, Stage: stage})
	require.NoError(t, err)
	return tr
}

func TestStageRaisesProgressToFloor(t *testing.T) {
	env := newTestEnv(t)
	job, _ := env.hired(t)

	tr := env.stage(t, job.ID, "pro-a", domain.StageStarted)
	assert.Equal(t, 10, tr.Progress)
	require.NotNil(t, tr.StartedAt)

	tr = env.stage(t, job.ID, "pro-a", domain.StageInProgress)
	assert.GreaterOrEqual(t, tr.Progress, 50)

	tr, err := env.Engine.UpdateProgress(env.Ctx, job.ID, "pro-a", 70)
	require.NoError(t, err)
	assert.Equal(t, 70, tr.Progress)

	tr = env.stage(t, job.ID, "client-1", domain.StageReview)
	assert.Equal(t, 85, tr.Progress)
	require.Len(t, tr.StageHistory, 4)
	for _, entry := range tr.StageHistory[:3] {
		assert.NotNil(t, entry.ExitedAt, "stage %s left open", entry.Stage)
	}
	assert.Nil(t, tr.StageHistory[3].ExitedAt)
	assert.Equal(t, "client-1", tr.StageHistory[3].ChangedBy)

	assert.Contains(t, env.Sinks.notificationsFor("client-1"), "project_stage")
	assert.Contains(t, env.Sinks.notificationsFor("pro-a"), "project_stage")
	assert.NotEmpty(t, env.Sinks.stageUpdates)
}

func TestProgressDoesNotLowerOnStageChange(t *testing.T) {
	env := newTestEnv(t)
	job, _ := env.hired(t)

	_, err := env.Engine.UpdateProgress(env.Ctx, job.ID, "pro-a", 65)
	require.NoError(t, err)
	tr := env.stage(t, job.ID, "pro-a", domain.StageInProgress)
	assert.Equal(t, 65, tr.Progress)
}

func TestUpdateProgressClampsAndIsProOnly(t *testing.T) {
	env := newTestEnv(t)
	job, _ := env.hired(t)

	tr, err := env.Engine.UpdateProgress(env.Ctx, job.ID, "pro-a", 140)
	require.NoError(t, err)
	assert.Equal(t, 100, tr.Progress)
	tr, err = env.Engine.UpdateProgress(env.Ctx, job.ID, "pro-a", -5)
	require.NoError(t, err)
	assert.Equal(t, 0, tr.Progress)

	var forbidden auth.ForbiddenError
	_, err = env.Engine.UpdateProgress(env.Ctx, job.ID, "client-1", 40)
	require.ErrorAs(t, err, &forbidden)
}

func TestStageTransitionTable(t *testing.T) {
	env := newTestEnv(t)
	job, _ := env.hired(t)
	var invalid engine.InvalidStateError

	_, err := env.Engine.UpdateStage(env.Ctx, engine.StageUpdateOptions{JobID: job.ID, UserID: "pro-a", Stage: domain.StageCompleted})
	require.ErrorAs(t, err, &invalid, "hired -> completed skips the work")

	_, err = env.Engine.UpdateStage(env.Ctx, engine.StageUpdateOptions{JobID: job.ID, UserID: "pro-a", Stage: domain.StageHired})
	require.ErrorAs(t, err, &invalid, "same stage")

	_, err = env.Engine.UpdateStage(env.Ctx, engine.StageUpdateOptions{JobID: job.ID, UserID: "pro-a", Stage: "paused"})
	assert.ErrorIs(t, err, engine.ErrInvalidInput)

	var forbidden auth.ForbiddenError
	_, err = env.Engine.UpdateStage(env.Ctx, engine.StageUpdateOptions{JobID: job.ID, UserID: "pro-b", Stage: domain.StageStarted})
	require.ErrorAs(t, err, &forbidden)

	env.stage(t, job.ID, "pro-a", domain.StageInProgress)
	_, err = env.Engine.UpdateStage(env.Ctx, engine.StageUpdateOptions{JobID: job.ID, UserID: "pro-a", Stage: domain.StageStarted})
	require.ErrorAs(t, err, &invalid, "no going back to started")
}

func TestCompletionClaimAndConfirmation(t *testing.T) {
	env := newTestEnv(t)
	job, _ := env.hired(t)
	env.stage(t, job.ID, "pro-a", domain.StageInProgress)

	var invalid engine.InvalidStateError
	_, err := env.Engine.ConfirmCompletion(env.Ctx, job.ID, "client-1")
	require.ErrorAs(t, err, &invalid, "cannot confirm before the claim")

	env.advance(time.Hour)
	tr, err := env.Engine.UpdateStage(env.Ctx, engine.StageUpdateOptions{
		JobID: job.ID, UserID: "pro-a", Stage: domain.StageCompleted, Note: "all done",
		Images: []string{"after-1.jpg", "after-2.jpg"},
	})
	require.NoError(t, err)
	assert.Equal(t, 100, tr.Progress)
	require.NotNil(t, tr.CompletedAt)
	assert.Equal(t, []string{"after-1.jpg", "after-2.jpg"}, tr.CompletionImages)

	job, err = env.Engine.GetJob(env.Ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobInProgress, job.Status, "a claim alone does not close the job")

	var forbidden auth.ForbiddenError
	_, err = env.Engine.ConfirmCompletion(env.Ctx, job.ID, "pro-a")
	require.ErrorAs(t, err, &forbidden)

	env.advance(time.Hour)
	tr, err = env.Engine.ConfirmCompletion(env.Ctx, job.ID, "client-1")
	require.NoError(t, err)
	require.NotNil(t, tr.ClientConfirmedAt)
	confirmedAt := *tr.ClientConfirmedAt

	job, err = env.Engine.GetJob(env.Ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, job.Status)
	assertHiredInvariant(t, job)

	completed, err := env.Engine.Repo.CompletedJobs(env.Ctx, "pro-a")
	require.NoError(t, err)
	assert.Equal(t, 1, completed)
	require.Len(t, env.Sinks.portfolio, 1)
	assert.Equal(t, "pro-a", env.Sinks.portfolio[0].ProID)
	assert.Contains(t, env.Sinks.notificationsFor("pro-a"), "completion_confirmed")

	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, job.ID, "project.completion_confirmed")
	require.NoError(t, err)
	assert.Len(t, evts, 1)

	env.advance(time.Hour)
	_, err = env.Engine.ConfirmCompletion(env.Ctx, job.ID, "client-1")
	require.ErrorAs(t, err, &invalid, "second confirmation")
	stored, err := env.Engine.Repo.GetTracking(env.Ctx, nil, job.ID)
	require.NoError(t, err)
	assert.Equal(t, confirmedAt, *stored.ClientConfirmedAt)

	_, err = env.Engine.UpdateStage(env.Ctx, engine.StageUpdateOptions{JobID: job.ID, UserID: "pro-a", Stage: domain.StageInProgress})
	require.ErrorAs(t, err, &invalid, "no rework after confirmation")
	completed, err = env.Engine.Repo.CompletedJobs(env.Ctx, "pro-a")
	require.NoError(t, err)
	assert.Equal(t, 1, completed)
}

func TestReworkBeforeConfirmation(t *testing.T) {
	env := newTestEnv(t)
	job, _ := env.hired(t)
	env.stage(t, job.ID, "pro-a", domain.StageInProgress)
	env.stage(t, job.ID, "pro-a", domain.StageCompleted)

	tr := env.stage(t, job.ID, "client-1", domain.StageInProgress)
	assert.Equal(t, domain.StageInProgress, tr.CurrentStage)
	assert.Nil(t, tr.CompletedAt)
}

func TestClientImagesAreNotCaptured(t *testing.T) {
	env := newTestEnv(t)
	job, _ := env.hired(t)
	env.stage(t, job.ID, "pro-a", domain.StageInProgress)

	tr, err := env.Engine.UpdateStage(env.Ctx, engine.StageUpdateOptions{
		JobID: job.ID, UserID: "client-1", Stage: domain.StageCompleted, Images: []string{"x.jpg"},
	})
	require.NoError(t, err)
	assert.Empty(t, tr.CompletionImages)

	_, err = env.Engine.ConfirmCompletion(env.Ctx, job.ID, "client-1")
	require.NoError(t, err)
	assert.Empty(t, env.Sinks.portfolio)
}

func TestPortfolioFailureDoesNotBlockConfirmation(t *testing.T) {
	env := newTestEnv(t)
	env.Sinks.failPortfolio = true
	job, _ := env.hired(t)
	env.stage(t, job.ID, "pro-a", domain.StageInProgress)
	_, err := env.Engine.UpdateStage(env.Ctx, engine.StageUpdateOptions{
		JobID: job.ID, UserID: "pro-a", Stage: domain.StageCompleted, Images: []string{"a.jpg"},
	})
	require.NoError(t, err)

	tr, err := env.Engine.ConfirmCompletion(env.Ctx, job.ID, "client-1")
	require.NoError(t, err)
	assert.NotNil(t, tr.ClientConfirmedAt)
	assert.Len(t, env.Sinks.portfolio, 1)
}

func TestMessagesAndUnreadCounts(t *testing.T) {
	env := newTestEnv(t)
	job, _ := env.hired(t)

	env.advance(time.Minute)
	_, err := env.Engine.PostMessage(env.Ctx, job.ID, "client-1", "When can you start?")
	require.NoError(t, err)
	env.advance(time.Minute)
	_, err = env.Engine.PostMessage(env.Ctx, job.ID, "client-1", "Also, bring tiles")
	require.NoError(t, err)

	counts, err := env.Engine.UnreadCounts(env.Ctx, job.ID, "pro-a")
	require.NoError(t, err)
	assert.Equal(t, domain.UnreadCounts{Chat: 2}, counts)

	counts, err = env.Engine.UnreadCounts(env.Ctx, job.ID, "client-1")
	require.NoError(t, err)
	assert.Equal(t, 0, counts.Chat, "own messages are never unread")

	env.advance(time.Minute)
	require.NoError(t, env.Engine.MarkViewed(env.Ctx, job.ID, "pro-a", domain.FeatureChat))
	env.advance(time.Minute)
	_, err = env.Engine.PostMessage(env.Ctx, job.ID, "client-1", "Thanks")
	require.NoError(t, err)

	counts, err = env.Engine.UnreadCounts(env.Ctx, job.ID, "pro-a")
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Chat)
	assert.Len(t, env.Sinks.messages, 3)

	_, err = env.Engine.PostMessage(env.Ctx, job.ID, "client-1", "   ")
	assert.ErrorIs(t, err, engine.ErrInvalidInput)
	var forbidden auth.ForbiddenError
	_, err = env.Engine.PostMessage(env.Ctx, job.ID, "pro-b", "hi")
	require.ErrorAs(t, err, &forbidden)
	assert.ErrorIs(t, env.Engine.MarkViewed(env.Ctx, job.ID, "pro-a", "photos"), engine.ErrInvalidInput)
}

func TestHistoryIsTyped(t *testing.T) {
	env := newTestEnv(t)
	job, _ := env.hired(t)
	env.stage(t, job.ID, "pro-a", domain.StageStarted)
	_, err := env.Engine.UpdateProgress(env.Ctx, job.ID, "pro-a", 20)
	require.NoError(t, err)

	history, err := env.Engine.ListHistory(env.Ctx, job.ID, "client-1", 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.IsType(t, domain.HiredMeta{}, history[0].Metadata)
	stage, ok := history[1].Metadata.(domain.StageChangedMeta)
	require.True(t, ok)
	assert.Equal(t, domain.StageHired, stage.From)
	assert.Equal(t, domain.StageStarted, stage.To)
	assert.Equal(t, domain.ProgressUpdatedMeta{From: 10, To: 20}, history[2].Metadata)
}
