// Package access decides what a member may do based on the admin flag and granted permissions.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"saunafreunde/internal/models"
)

// ProfileRepository provides the stored member profiles.
type ProfileRepository interface {
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
	SetPermissions(ctx context.Context, id string, isAdmin bool, permissions []string) error
}

// KnownPermissions are the grants an admin can hand out.
var KnownPermissions = []string{
	models.PermissionManageFestivals,
	models.PermissionManageFeed,
	models.PermissionExport,
}

// Service implements the permission checks.
type Service struct {
	profiles   ProfileRepository
	isNotFound func(error) bool
	logger     zerolog.Logger
}

// NewService creates a new access control service. isNotFound recognizes the
// repository's missing-profile error.
func NewService(profiles ProfileRepository, isNotFound func(error) bool, logger zerolog.Logger) *Service {
	return &Service{
		profiles:   profiles,
		isNotFound: isNotFound,
		logger:     logger.With().Str("component", "access").Logger(),
	}
}

// Member returns the caller's profile. A caller without a profile is denied.
func (s *Service) Member(ctx context.Context, userID string) (*models.Profile, error) {
	if userID == "" {
		return nil, &AccessDeniedError{Reason: "Anmeldung erforderlich."}
	}
	p, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		if s.isNotFound != nil && s.isNotFound(err) {
			return nil, &AccessDeniedError{Reason: "Bitte zuerst das Profil anlegen."}
		}
		return nil, fmt.Errorf("loading profile: %w", err)
	}
	return p, nil
}

// RequirePermission denies callers that are neither admin nor holder of perm.
func (s *Service) RequirePermission(ctx context.Context, userID, perm string) (*models.Profile, error) {
	p, err := s.Member(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !p.HasPermission(perm) {
		s.logger.Debug().Str("user_id", userID).Str("permission", perm).Msg("permission denied")
		return nil, &AccessDeniedError{Reason: fmt.Sprintf("Berechtigung '%s' fehlt.", perm)}
	}
	return p, nil
}

// RequireAdmin denies callers without the admin flag.
func (s *Service) RequireAdmin(ctx context.Context, userID string) (*models.Profile, error) {
	p, err := s.Member(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin {
		return nil, &AccessDeniedError{Reason: "Nur für Admins."}
	}
	return p, nil
}

// CanModify allows the owner of a record, or a holder of perm, to change it.
func (s *Service) CanModify(ctx context.Context, userID, ownerID, perm string) error {
	if userID != "" && userID == ownerID {
		return nil
	}
	_, err := s.RequirePermission(ctx, userID, perm)
	return err
}

// Grant replaces a member's admin flag and permissions. Only admins may grant.
func (s *Service) Grant(ctx context.Context, actorID, targetID string, isAdmin bool, permissions []string) error {
	if _, err := s.RequireAdmin(ctx, actorID); err != nil {
		return err
	}
	for _, p := range permissions {
		if !isKnown(p) {
			return models.Invalid("permissions", fmt.Sprintf("unknown permission '%s'", p))
		}
	}
	if err := s.profiles.SetPermissions(ctx, targetID, isAdmin, permissions); err != nil {
		return err
	}

	s.logger.Info().
		Str("user_id", targetID).
		Str("granted_by", actorID).
		Bool("is_admin", isAdmin).
		Strs("permissions", permissions).
		Msg("permissions updated")
	return nil
}

func isKnown(perm string) bool {
	for _, k := range KnownPermissions {
		if k == perm {
			return true
		}
	}
	return false
}

// AccessDeniedError is returned when user access is denied.
type AccessDeniedError struct {
	Reason string
}

func (e *AccessDeniedError) Error() string {
	return e.Reason
}

// IsAccessDenied checks if error is access denied.
func IsAccessDenied(err error) bool {
	var denied *AccessDeniedError
	return errors.As(err, &denied)
}
