package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"homico/internal/config"
	"homico/internal/db"
	"homico/internal/domain"
	"homico/internal/engine"
	"homico/internal/engine/auth"
	"homico/internal/migrate"
	"homico/internal/outbound"
)

var baseTime = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

// recorder captures every side effect the engine emits.
type recorder struct {
	mu            sync.Mutex
	notifications []outbound.Notification
	sms           []string
	stageUpdates  []outbound.ProjectUpdate
	messages      []outbound.ProjectUpdate
	portfolio     []outbound.PortfolioEntry
	failPortfolio bool
}

func (r *recorder) Notify(_ context.Context, n outbound.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
	return nil
}

func (r *recorder) NotifyMany(ctx context.Context, userIDs []string, n outbound.Notification) error {
	for _, id := range userIDs {
		n.UserID = id
		_ = r.Notify(ctx, n)
	}
	return nil
}

func (r *recorder) EmitProjectStageUpdate(_ context.Context, u outbound.ProjectUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stageUpdates = append(r.stageUpdates, u)
	return nil
}

func (r *recorder) EmitProjectMessage(_ context.Context, u outbound.ProjectUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, u)
	return nil
}

func (r *recorder) Send(_ context.Context, userID, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sms = append(r.sms, userID)
	return nil
}

func (r *recorder) CreateFromJob(_ context.Context, e outbound.PortfolioEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.portfolio = append(r.portfolio, e)
	if r.failPortfolio {
		return context.DeadlineExceeded
	}
	return nil
}

// notificationsFor returns the notification types sent to userID.
func (r *recorder) notificationsFor(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, n := range r.notifications {
		if n.UserID == userID {
			out = append(out, n.Type)
		}
	}
	return out
}

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Sinks  *recorder
	clock  *time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	rec := &recorder{}
	now := baseTime
	env := &testEnv{Ctx: context.Background(), Sinks: rec, clock: &now}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return *env.clock }
	eng.Sinks = outbound.Sinks{Notifier: rec, Realtime: rec, SMS: rec, Portfolio: rec}
	env.Engine = eng

	for _, pro := range []string{"pro-a", "pro-b", "pro-c"} {
		require.NoError(t, eng.SetProVerification(env.Ctx, pro, auth.StatusVerified, "admin"))
	}
	return env
}

// advance moves the engine clock forward.
func (env *testEnv) advance(d time.Duration) {
	*env.clock = env.clock.Add(d)
}

func (env *testEnv) marketplaceJob(t *testing.T) domain.Job {
	t.Helper()
	budget := 1200.0
	job, err := env.Engine.CreateJob(env.Ctx, engine.JobCreateOptions{
		ClientID: "client-1",
		Title:    "Kitchen renovation",
		Category: "renovation",
		Budget:   &budget,
	})
	require.NoError(t, err)
	return job
}

func (env *testEnv) directJob(t *testing.T, invitees ...string) domain.Job {
	t.Helper()
	budget := 800.0
	job, err := env.Engine.CreateJob(env.Ctx, engine.JobCreateOptions{
		ClientID:    "client-1",
		Title:       "Bathroom tiling",
		Category:    "plumbing",
		Budget:      &budget,
		JobType:     domain.JobTypeDirectRequest,
		InvitedPros: invitees,
	})
	require.NoError(t, err)
	return job
}

func (env *testEnv) submit(t *testing.T, jobID, proID string) domain.Proposal {
	t.Helper()
	p, err := env.Engine.SubmitProposal(env.Ctx, engine.ProposalSubmitOptions{
		JobID:                 jobID,
		ProID:                 proID,
		CoverLetter:           "I can do this",
		ProposedPrice:         1000,
		EstimatedDuration:     3,
		EstimatedDurationUnit: "weeks",
	})
	require.NoError(t, err)
	return p
}

// hired returns a marketplace job with pro-a hired.
func (env *testEnv) hired(t *testing.T) (domain.Job, domain.ProjectTracking) {
	t.Helper()
	job := env.marketplaceJob(t)
	p := env.submit(t, job.ID, "pro-a")
	_, tracking, err := env.Engine.Accept(env.Ctx, p.ID, "client-1")
	require.NoError(t, err)
	return job, tracking
}

// assertHiredInvariant checks hired_pro_id is set exactly when the job is
// in_progress or completed.
func assertHiredInvariant(t *testing.T, job domain.Job) {
	t.Helper()
	require.Equal(t, job.Status.Hired(), job.HiredProID != nil, "job %s status %s hired_pro_id %v", job.ID, job.Status, job.HiredProID)
}
