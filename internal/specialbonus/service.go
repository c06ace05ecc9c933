package specialbonus

import (
	"context"
	stdErrors "errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nexavest/nexavest-backend/internal/users"
	"github.com/nexavest/nexavest-backend/pkg/db/models"
	"github.com/nexavest/nexavest-backend/pkg/enums"
	"github.com/nexavest/nexavest-backend/pkg/errors"
	"github.com/nexavest/nexavest-backend/pkg/logger"
)

// Service manages the leader/parent role assignments. The platform runs at
// most one active account per role, and a user holds at most one role.
type Service struct {
	repo  Repository
	users users.Repository
	logg  *logger.Logger
}

// NewService builds the assignment service.
func NewService(repo Repository, userRepo users.Repository, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, stdErrors.New("special bonus service requires a repository")
	}
	if userRepo == nil {
		return nil, stdErrors.New("special bonus service requires the user repository")
	}
	return &Service{repo: repo, users: userRepo, logg: logg}, nil
}

// Assign activates the role for the user. The account inherits the user's
// referral code: downstream signups under that code feed the weekly bonus.
func (s *Service) Assign(ctx context.Context, userID uuid.UUID, role enums.SpecialRole) (*models.SpecialAccount, error) {
	if !role.IsValid() {
		return nil, errors.New(errors.CodeValidation, fmt.Sprintf("invalid special role %q", role))
	}

	if existing, err := s.repo.FindActiveByRole(ctx, role); err == nil {
		return nil, errors.New(errors.CodeInvalidState,
			fmt.Sprintf("role %s is already held by user %s", role, existing.UserID))
	} else if !stdErrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrap(errors.CodeDependency, err, "checking role assignment")
	}

	if existing, err := s.repo.FindActiveByUser(ctx, userID); err == nil {
		return nil, errors.New(errors.CodeInvalidState,
			fmt.Sprintf("user already holds the %s role", existing.Role))
	} else if !stdErrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrap(errors.CodeDependency, err, "checking user assignment")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New(errors.CodeNotFound, "user not found")
		}
		return nil, errors.Wrap(errors.CodeDependency, err, "loading user")
	}

	account := &models.SpecialAccount{
		ID:     uuid.New(),
		UserID: user.ID,
		Role:   role,
		Code:   user.ReferralCode,
		Active: true,
	}
	if err := s.repo.Create(ctx, account); err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "creating special account")
	}

	if s.logg != nil {
		lctx := s.logg.WithFields(ctx, map[string]any{
			"user_id": user.ID.String(),
			"role":    string(role),
		})
		s.logg.Info(lctx, "special role assigned")
	}
	return account, nil
}

// Deactivate retires the active account for the role. Past bonuses stay paid.
func (s *Service) Deactivate(ctx context.Context, role enums.SpecialRole) error {
	account, err := s.repo.FindActiveByRole(ctx, role)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return errors.New(errors.CodeNotFound, fmt.Sprintf("no active %s account", role))
		}
		return errors.Wrap(errors.CodeDependency, err, "loading special account")
	}
	account.Active = false
	if err := s.repo.Save(ctx, account); err != nil {
		return errors.Wrap(errors.CodeDependency, err, "deactivating special account")
	}
	return nil
}
