package auth

import (
	"context"
	"errors"
	"fmt"

	"teamportal/internal/repo"
)

// ForbiddenError indicates the actor lacks the role an operation needs.
type ForbiddenError struct {
	ActorID string
	Role    string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("role %s required", e.Role)
}

// RoleLookup resolves a profile's role.
type RoleLookup interface {
	ProfileRole(ctx context.Context, id string) (string, error)
}

// Service checks roles against the profiles table.
type Service struct {
	Profiles RoleLookup
}

func New(r repo.Repo) Service {
	return Service{Profiles: r}
}

// RequireRole succeeds only when actorID's stored role equals role exactly.
// An unknown profile is treated as forbidden.
func (s Service) RequireRole(ctx context.Context, actorID, role string) error {
	if actorID == "" {
		return ForbiddenError{Role: role}
	}
	got, err := s.Profiles.ProfileRole(ctx, actorID)
	if errors.Is(err, repo.ErrNotFound) {
		return ForbiddenError{ActorID: actorID, Role: role}
	}
	if err != nil {
		return err
	}
	if got != role {
		return ForbiddenError{ActorID: actorID, Role: role}
	}
	return nil
}
