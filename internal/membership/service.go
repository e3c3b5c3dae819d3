package membership

import (
	"context"
	"fmt"

	"github.com/texlink/texlink/internal/shared"
)

// Service resolves actors from stored memberships.
type Service struct {
	repo RepositoryPort
}

// NewService constructs a membership service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ResolveActor loads the membership for (userID, companyID) and computes the
// effective permission set. Inactive memberships resolve like absent ones.
func (s *Service) ResolveActor(ctx context.Context, userID, companyID int64) (Actor, error) {
	user, err := s.repo.GetCompanyUser(ctx, userID, companyID)
	if err != nil {
		return Actor{}, err
	}
	if !user.IsActive {
		return Actor{}, fmt.Errorf("membership: user %d company %d inactive: %w", userID, companyID, shared.ErrNotFound)
	}
	overrides, err := s.repo.ListOverrides(ctx, userID, companyID)
	if err != nil {
		return Actor{}, err
	}
	return Actor{CompanyUser: user, Permissions: Resolve(user, overrides)}, nil
}

// SetOverride grants or revokes a single permission for a member.
func (s *Service) SetOverride(ctx context.Context, ov PermissionOverride) error {
	if _, err := s.repo.GetCompanyUser(ctx, ov.UserID, ov.CompanyID); err != nil {
		return err
	}
	return s.repo.UpsertOverride(ctx, ov)
}
