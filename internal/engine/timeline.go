package engine

import (
	"context"
	"fmt"
	"strings"

	"homico/internal/domain"
	"homico/internal/outbound"
)

// PostMessage adds a chat message to the project timeline.
func (e Engine) PostMessage(ctx context.Context, jobID, userID, text string) (domain.HistoryEvent, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.HistoryEvent{}, invalidInput("message text is required")
	}
	t, err := e.loadParticipant(ctx, nil, jobID, userID, "post message")
	if err != nil {
		return domain.HistoryEvent{}, err
	}
	job, err := e.Repo.GetJob(ctx, nil, jobID)
	if err != nil {
		return domain.HistoryEvent{}, err
	}
	if job.Status == domain.JobCancelled {
		return domain.HistoryEvent{}, InvalidStateError{Entity: "job", Status: string(job.Status), Action: "post message on"}
	}
	h := domain.HistoryEvent{
		JobID:     jobID,
		Type:      domain.HistoryMessage,
		UserID:    userID,
		Metadata:  domain.MessageMeta{MessageID: newID(), Text: text},
		CreatedAt: e.stamp(),
	}
	h.ID, err = e.Repo.InsertHistory(ctx, nil, h)
	if err != nil {
		return domain.HistoryEvent{}, err
	}
	e.emitMessage(ctx, t, h)
	preview := text
	if r := []rune(text); len(r) > 80 {
		preview = string(r[:80]) + "..."
	}
	e.notify(ctx, jobID, outbound.Notification{
		UserID:      t.Counterparty(userID),
		Type:        outbound.NotifyMessage,
		Title:       "New message",
		Message:     preview,
		Link:        "/jobs/" + jobID + "/tracking",
		ReferenceID: jobID,
	})
	return h, nil
}

func (e Engine) ListHistory(ctx context.Context, jobID, userID string, limit int) ([]domain.HistoryEvent, error) {
	if _, err := e.loadParticipant(ctx, nil, jobID, userID, "view history"); err != nil {
		return nil, err
	}
	return e.Repo.ListHistory(ctx, jobID, limit)
}

// MarkViewed moves the caller's last-viewed marker for a feature to now.
func (e Engine) MarkViewed(ctx context.Context, jobID, userID string, feature domain.Feature) error {
	if _, err := domain.ParseFeature(string(feature)); err != nil {
		return invalidInput("%v", err)
	}
	if _, err := e.loadParticipant(ctx, nil, jobID, userID, "mark viewed"); err != nil {
		return err
	}
	return e.Repo.MarkViewed(ctx, nil, jobID, userID, feature, e.stamp())
}

// UnreadCounts compares timeline events written by the other party with
// the caller's last-viewed markers.
func (e Engine) UnreadCounts(ctx context.Context, jobID, userID string) (domain.UnreadCounts, error) {
	var out domain.UnreadCounts
	if _, err := e.loadParticipant(ctx, nil, jobID, userID, "view unread counts"); err != nil {
		return out, err
	}
	for _, f := range []struct {
		feature domain.Feature
		dst     *int
	}{
		{domain.FeatureChat, &out.Chat},
		{domain.FeaturePolls, &out.Polls},
		{domain.FeatureMaterials, &out.Materials},
	} {
		n, err := e.Repo.CountUnread(ctx, jobID, userID, f.feature)
		if err != nil {
			return out, fmt.Errorf("count unread %s: %w", f.feature, err)
		}
		*f.dst = n
	}
	return out, nil
}
