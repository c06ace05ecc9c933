package positions

import (
	"context"
	stdErrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nexavest/nexavest-backend/pkg/db/models"
	"github.com/nexavest/nexavest-backend/pkg/enums"
	"github.com/nexavest/nexavest-backend/pkg/errors"
	"github.com/nexavest/nexavest-backend/pkg/logger"
)

// allowedTransitions is the full position lifecycle. Anything not listed is
// rejected with an invalid-state error.
var allowedTransitions = map[enums.PositionStatus][]enums.PositionStatus{
	enums.PositionStatusPending: {enums.PositionStatusActive, enums.PositionStatusCancelled},
	enums.PositionStatusActive:  {enums.PositionStatusPaused, enums.PositionStatusCompleted, enums.PositionStatusCancelled},
	enums.PositionStatusPaused:  {enums.PositionStatusActive, enums.PositionStatusCancelled},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to enums.PositionStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Service owns the position lifecycle. Accrual state advances happen in the
// accrual engine's transaction, not here.
type Service struct {
	repo Repository
	logg *logger.Logger
	now  func() time.Time
}

// ServiceParams bundles the service dependencies.
type ServiceParams struct {
	Repo   Repository
	Logger *logger.Logger
	Now    func() time.Time
}

// NewService builds the position service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, stdErrors.New("position service requires a repository")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{repo: params.Repo, logg: params.Logger, now: now}, nil
}

// PurchaseInput opens a new position against a package term.
type PurchaseInput struct {
	UserID        uuid.UUID
	PackageTermID uuid.UUID
	Principal     decimal.Decimal
}

// Purchase creates a pending position after validating the principal against
// the term's bounds. Activation happens when payment is confirmed.
func (s *Service) Purchase(ctx context.Context, in PurchaseInput) (*models.Position, error) {
	if in.UserID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "user id is required")
	}
	if !in.Principal.IsPositive() {
		return nil, errors.New(errors.CodeValidation, "principal must be positive")
	}

	term, err := s.repo.FindTerm(ctx, in.PackageTermID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New(errors.CodeNotFound, "package term not found")
		}
		return nil, errors.Wrap(errors.CodeDependency, err, "loading package term")
	}
	if !term.Active {
		return nil, errors.New(errors.CodeInvalidState, "package term is retired")
	}
	if in.Principal.LessThan(term.MinPrincipal) {
		return nil, errors.New(errors.CodeValidation,
			fmt.Sprintf("principal below minimum %s", term.MinPrincipal))
	}
	if term.MaxPrincipal.IsPositive() && in.Principal.GreaterThan(term.MaxPrincipal) {
		return nil, errors.New(errors.CodeValidation,
			fmt.Sprintf("principal above maximum %s", term.MaxPrincipal))
	}

	position := &models.Position{
		ID:            uuid.New(),
		UserID:        in.UserID,
		PackageTermID: term.ID,
		Principal:     in.Principal,
		Status:        enums.PositionStatusPending,
		CurrentCycle:  1,
		CurrentDay:    1,
		TotalCredited: decimal.Zero,
	}
	if err := s.repo.Create(ctx, position); err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "creating position")
	}
	return position, nil
}

// Activate moves a pending position into accrual. The first daily return
// becomes due one full day after activation.
func (s *Service) Activate(ctx context.Context, positionID uuid.UUID) (*models.Position, error) {
	return s.transition(ctx, positionID, enums.PositionStatusActive, func(position *models.Position) {
		now := s.now().UTC()
		next := now.Add(24 * time.Hour)
		position.ActivatedAt = &now
		position.CycleStartedAt = &now
		position.NextAccrualAt = &next
	})
}

// Pause suspends accrual without losing the cursor.
func (s *Service) Pause(ctx context.Context, positionID uuid.UUID) (*models.Position, error) {
	return s.transition(ctx, positionID, enums.PositionStatusPaused, nil)
}

// Resume re-enables accrual from the stored cursor.
func (s *Service) Resume(ctx context.Context, positionID uuid.UUID) (*models.Position, error) {
	return s.transition(ctx, positionID, enums.PositionStatusActive, func(position *models.Position) {
		if position.NextAccrualAt == nil || position.NextAccrualAt.Before(s.now()) {
			next := s.now().UTC().Add(24 * time.Hour)
			position.NextAccrualAt = &next
		}
	})
}

// Cancel terminates the position.
func (s *Service) Cancel(ctx context.Context, positionID uuid.UUID) (*models.Position, error) {
	return s.transition(ctx, positionID, enums.PositionStatusCancelled, func(position *models.Position) {
		position.NextAccrualAt = nil
	})
}

func (s *Service) transition(ctx context.Context, positionID uuid.UUID, to enums.PositionStatus, mutate func(*models.Position)) (*models.Position, error) {
	position, err := s.Get(ctx, positionID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(position.Status, to) {
		return nil, errors.New(errors.CodeInvalidState,
			fmt.Sprintf("cannot move position from %s to %s", position.Status, to))
	}

	from := position.Status
	position.Status = to
	if mutate != nil {
		mutate(position)
	}
	if err := s.repo.Save(ctx, position); err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "saving position")
	}

	if s.logg != nil {
		lctx := s.logg.WithPositionID(ctx, position.ID.String())
		lctx = s.logg.WithFields(lctx, map[string]any{"from": string(from), "to": string(to)})
		s.logg.Info(lctx, "position transition")
	}
	return position, nil
}

// Get loads one position with its term.
func (s *Service) Get(ctx context.Context, positionID uuid.UUID) (*models.Position, error) {
	position, err := s.repo.FindByID(ctx, positionID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New(errors.CodeNotFound, "position not found")
		}
		return nil, errors.Wrap(errors.CodeDependency, err, "loading position")
	}
	return position, nil
}
