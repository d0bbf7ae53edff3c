package auth

import (
	"context"
	"errors"
	"fmt"

	"homico/internal/repo"
)

// ForbiddenError indicates the caller is not the party allowed to act.
type ForbiddenError struct {
	Action string
	Reason string
}

func (e ForbiddenError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("not allowed to %s", e.Action)
	}
	return fmt.Sprintf("not allowed to %s: %s", e.Action, e.Reason)
}

// Role is the marketplace side a caller acts on.
type Role string

const (
	RoleClient Role = "client"
	RolePro    Role = "pro"
	RoleAdmin  Role = "admin"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleClient, RolePro, RoleAdmin:
		return r, nil
	}
	return "", fmt.Errorf("invalid role %q", s)
}

// RequireOwner asserts the caller is the recorded owner of the entity.
func RequireOwner(action, callerID, ownerID string) error {
	if callerID == "" {
		return ForbiddenError{Action: action, Reason: "caller identity required"}
	}
	if callerID != ownerID {
		return ForbiddenError{Action: action, Reason: "caller does not own this resource"}
	}
	return nil
}

// Verification statuses kept for professionals.
const (
	StatusVerified   = "verified"
	StatusUnverified = "unverified"
	StatusSuspended  = "suspended"
)

// TrustGate decides whether a professional may bid.
type TrustGate interface {
	IsVerified(ctx context.Context, proID string) (bool, error)
}

// Service is the SQL-backed trust gate.
type Service struct {
	Repo repo.Repo
}

func (s Service) IsVerified(ctx context.Context, proID string) (bool, error) {
	status, err := s.Repo.VerificationStatus(ctx, nil, proID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return status == StatusVerified, nil
}

