package engine

import (
	"context"

	"homico/internal/events"
)

// ExpireJobs moves every open job past its expiry to expired and returns
// how many changed.
func (e Engine) ExpireJobs(ctx context.Context) (int, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	now := e.stamp()
	ids, err := e.Repo.ExpireDueJobs(ctx, tx, now)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if err := e.appendEvent(ctx, tx, events.JobExpired, id, "job", id, "system", nil); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	if len(ids) > 0 {
		e.log().InfoContext(ctx, "jobs expired", "count", len(ids))
	}
	return len(ids), nil
}
