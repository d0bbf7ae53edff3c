package engine

import (
	"context"

	"homico/internal/domain"
	"homico/internal/outbound"
)

func (e Engine) runner() outbound.Runner {
	if e.Effects != nil {
		return e.Effects
	}
	return outbound.Inline{Logger: e.Logger}
}

func (e Engine) notify(ctx context.Context, jobID string, n outbound.Notification) {
	if e.Sinks.Notifier == nil || n.UserID == "" {
		return
	}
	e.runner().Run(ctx, "notify", jobID, func(ctx context.Context) error {
		return e.Sinks.Notifier.Notify(ctx, n)
	})
}

func (e Engine) notifyMany(ctx context.Context, jobID string, userIDs []string, n outbound.Notification) {
	if e.Sinks.Notifier == nil || len(userIDs) == 0 {
		return
	}
	e.runner().Run(ctx, "notify_many", jobID, func(ctx context.Context) error {
		return e.Sinks.Notifier.NotifyMany(ctx, userIDs, n)
	})
}

func (e Engine) sms(ctx context.Context, jobID, userID, text string) {
	if e.Sinks.SMS == nil {
		return
	}
	e.runner().Run(ctx, "sms", jobID, func(ctx context.Context) error {
		return e.Sinks.SMS.Send(ctx, userID, text)
	})
}

func (e Engine) emitStage(ctx context.Context, t domain.ProjectTracking) {
	if e.Sinks.Realtime == nil {
		return
	}
	u := outbound.ProjectUpdate{JobID: t.JobID, ClientID: t.ClientID, ProID: t.ProID, Kind: "stage", Payload: t}
	e.runner().Run(ctx, "realtime_stage", t.JobID, func(ctx context.Context) error {
		return e.Sinks.Realtime.EmitProjectStageUpdate(ctx, u)
	})
}

func (e Engine) emitMessage(ctx context.Context, t domain.ProjectTracking, h domain.HistoryEvent) {
	if e.Sinks.Realtime == nil {
		return
	}
	u := outbound.ProjectUpdate{JobID: t.JobID, ClientID: t.ClientID, ProID: t.ProID, Kind: "message", Payload: h}
	e.runner().Run(ctx, "realtime_message", t.JobID, func(ctx context.Context) error {
		return e.Sinks.Realtime.EmitProjectMessage(ctx, u)
	})
}

func (e Engine) createPortfolio(ctx context.Context, entry outbound.PortfolioEntry) {
	if e.Sinks.Portfolio == nil {
		return
	}
	e.runner().Run(ctx, "portfolio", entry.JobID, func(ctx context.Context) error {
		return e.Sinks.Portfolio.CreateFromJob(ctx, entry)
	})
}

// AddHistoryEvent appends to the project timeline. A failure is logged
// and never reaches the caller.
func (e Engine) AddHistoryEvent(ctx context.Context, jobID, userID string, meta domain.HistoryMetadata) {
	h := domain.HistoryEvent{JobID: jobID, Type: meta.HistoryType(), UserID: userID, Metadata: meta, CreatedAt: e.stamp()}
	if _, err := e.Repo.InsertHistory(ctx, nil, h); err != nil {
		e.log().WarnContext(ctx, "history event dropped", "job_id", jobID, "type", h.Type, "error", err)
	}
}
