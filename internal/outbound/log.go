package outbound

import (
	"context"
	"log/slog"
)

// LogSink implements every sink by writing a log line.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Notify(ctx context.Context, n Notification) error {
	logger(s.Logger).InfoContext(ctx, "notify", "user_id", n.UserID, "type", n.Type, "title", n.Title, "reference_id", n.ReferenceID)
	return nil
}

func (s LogSink) NotifyMany(ctx context.Context, userIDs []string, n Notification) error {
	for _, id := range userIDs {
		n.UserID = id
		if err := s.Notify(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

func (s LogSink) EmitProjectStageUpdate(ctx context.Context, u ProjectUpdate) error {
	logger(s.Logger).DebugContext(ctx, "realtime stage update", "job_id", u.JobID, "kind", u.Kind)
	return nil
}

func (s LogSink) EmitProjectMessage(ctx context.Context, u ProjectUpdate) error {
	logger(s.Logger).DebugContext(ctx, "realtime message", "job_id", u.JobID, "kind", u.Kind)
	return nil
}

func (s LogSink) Send(ctx context.Context, userID, text string) error {
	logger(s.Logger).InfoContext(ctx, "sms", "user_id", userID, "text", text)
	return nil
}

func (s LogSink) CreateFromJob(ctx context.Context, e PortfolioEntry) error {
	logger(s.Logger).InfoContext(ctx, "portfolio entry", "job_id", e.JobID, "pro_id", e.ProID, "images", len(e.Images))
	return nil
}
