package engine

import (
	"context"

	"homico/internal/engine/auth"
	"homico/internal/events"
)

// SetProVerification records an admin trust decision for a professional.
// Only verified professionals may submit proposals.
func (e Engine) SetProVerification(ctx context.Context, proID, status, actorID string) error {
	if proID == "" {
		return invalidInput("pro_id is required")
	}
	switch status {
	case auth.StatusVerified, auth.StatusUnverified, auth.StatusSuspended:
	default:
		return invalidInput("invalid verification status %q", status)
	}
	if actorID == "" {
		actorID = "system"
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.SetVerificationStatus(ctx, tx, proID, status, e.stamp()); err != nil {
		return err
	}
	if err := e.appendEvent(ctx, tx, events.ProVerificationChange, "", "pro", proID, actorID, events.EventPayload{"status": status}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.log().InfoContext(ctx, "pro verification changed", "pro_id", proID, "status", status)
	return nil
}
