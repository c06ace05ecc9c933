package users

import (
	"context"
	stdErrors "errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nexavest/nexavest-backend/pkg/db/models"
	"github.com/nexavest/nexavest-backend/pkg/errors"
)

// Service registers users and resolves referral links. The referrer is pinned
// at registration; nothing downstream ever walks the referral graph.
type Service struct {
	repo Repository
}

// NewService builds the user service.
func NewService(repo Repository) (*Service, error) {
	if repo == nil {
		return nil, stdErrors.New("user service requires a repository")
	}
	return &Service{repo: repo}, nil
}

// RegisterInput is a new signup.
type RegisterInput struct {
	Email          string
	Name           string
	ReferredByCode string
}

// Register creates the user, resolving the referral code (when present) to a
// concrete referrer id.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if email == "" {
		return nil, errors.New(errors.CodeValidation, "email is required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, errors.New(errors.CodeValidation, "name is required")
	}

	user := &models.User{
		ID:           uuid.New(),
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		ReferralCode: newReferralCode(),
	}

	if code := strings.TrimSpace(in.ReferredByCode); code != "" {
		referrer, err := s.repo.FindByReferralCode(ctx, code)
		if err != nil {
			if stdErrors.Is(err, gorm.ErrRecordNotFound) {
				return nil, errors.New(errors.CodeNotFound, "referral code not found")
			}
			return nil, errors.Wrap(errors.CodeDependency, err, "resolving referral code")
		}
		user.ReferredByCode = code
		user.ReferrerID = &referrer.ID
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "creating user")
	}
	return user, nil
}

// Get loads one user.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New(errors.CodeNotFound, "user not found")
		}
		return nil, errors.Wrap(errors.CodeDependency, err, "loading user")
	}
	return user, nil
}

func newReferralCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}
