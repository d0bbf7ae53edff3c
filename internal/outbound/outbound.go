// Package outbound holds the best-effort side effects of the hiring flow:
// notifications, SMS, real-time fan-out and portfolio capture. Callers
// never see a sink failure; the Runner logs and drops it.
package outbound

import (
	"context"
	"io"
	"log/slog"
)

// Notification is one in-app notification for a user.
type Notification struct {
	UserID      string            `json:"user_id"`
	Type        string            `json:"type"`
	Title       string            `json:"title"`
	Message     string            `json:"message"`
	Link        string            `json:"link,omitempty"`
	ReferenceID string            `json:"reference_id,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Notification types.
const (
	NotifyNewProposal       = "new_proposal"
	NotifyProposalUpdate    = "proposal_update"
	NotifyHired             = "hired"
	NotifyJobInvite         = "job_invite"
	NotifyRequestTaken      = "request_taken"
	NotifyRequestDeclined   = "request_declined"
	NotifyRequestAccepted   = "request_accepted"
	NotifyStageChanged      = "project_stage"
	NotifyCompletionConfirm = "completion_confirmed"
	NotifyJobCancelled      = "job_cancelled"
	NotifyMessage           = "project_message"
)

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
	NotifyMany(ctx context.Context, userIDs []string, n Notification) error
}

// ProjectUpdate is the snapshot pushed to both parties of an engagement.
type ProjectUpdate struct {
	JobID    string `json:"job_id"`
	ClientID string `json:"client_id"`
	ProID    string `json:"pro_id"`
	Kind     string `json:"kind"`
	Payload  any    `json:"payload"`
}

type Realtime interface {
	EmitProjectStageUpdate(ctx context.Context, u ProjectUpdate) error
	EmitProjectMessage(ctx context.Context, u ProjectUpdate) error
}

type SMS interface {
	Send(ctx context.Context, userID, text string) error
}

// PortfolioEntry is created once a client confirms completion.
type PortfolioEntry struct {
	JobID       string   `json:"job_id"`
	ProID       string   `json:"pro_id"`
	ClientID    string   `json:"client_id"`
	Title       string   `json:"title"`
	Category    string   `json:"category"`
	Images      []string `json:"images"`
	CompletedAt string   `json:"completed_at"`
}

type Portfolio interface {
	CreateFromJob(ctx context.Context, e PortfolioEntry) error
}

// Sinks bundles the collaborators the engine talks to.
type Sinks struct {
	Notifier  Notifier
	Realtime  Realtime
	SMS       SMS
	Portfolio Portfolio
}

// LogSinks returns sinks that only log, for local runs and the CLI.
func LogSinks(logger *slog.Logger) Sinks {
	l := LogSink{Logger: logger}
	return Sinks{Notifier: l, Realtime: l, SMS: l, Portfolio: l}
}

// Runner executes a side effect. Implementations must not return the
// effect's error to the caller.
type Runner interface {
	Run(ctx context.Context, effect, jobID string, fn func(context.Context) error)
}

// Inline runs effects synchronously and logs failures.
type Inline struct {
	Logger *slog.Logger
}

func (r Inline) Run(ctx context.Context, effect, jobID string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		logger(r.Logger).WarnContext(ctx, "side effect failed", "effect", effect, "job_id", jobID, "error", err)
	}
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return l
}
