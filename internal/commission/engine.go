package commission

import (
	"context"
	stdErrors "errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nexavest/nexavest-backend/internal/ledger"
	"github.com/nexavest/nexavest-backend/internal/users"
	"github.com/nexavest/nexavest-backend/pkg/config"
	"github.com/nexavest/nexavest-backend/pkg/db/models"
	"github.com/nexavest/nexavest-backend/pkg/enums"
	"github.com/nexavest/nexavest-backend/pkg/errors"
	"github.com/nexavest/nexavest-backend/pkg/logger"
)

const defaultBatchSize = 200

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Engine pays the one-time direct referral commission once a position's first
// cycle finishes. The referrer link is the precomputed ReferrerID on the
// owner; there is no graph walk and no multi-level payout.
type Engine struct {
	db        txRunner
	repo      Repository
	users     users.Repository
	ledger    *ledger.Service
	logg      *logger.Logger
	policy    string
	batchSize int
}

// EngineParams bundles the engine dependencies.
type EngineParams struct {
	DB     txRunner
	Repo   Repository
	Users  users.Repository
	Ledger *ledger.Service
	Logger *logger.Logger
	Config config.CommissionConfig
}

// NewEngine builds the commission engine.
func NewEngine(params EngineParams) (*Engine, error) {
	if params.DB == nil {
		return nil, stdErrors.New("commission engine requires a db client")
	}
	if params.Repo == nil {
		return nil, stdErrors.New("commission engine requires a repository")
	}
	if params.Users == nil {
		return nil, stdErrors.New("commission engine requires the user repository")
	}
	if params.Ledger == nil {
		return nil, stdErrors.New("commission engine requires the ledger service")
	}
	batch := params.Config.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	policy := params.Config.Policy
	if policy == "" {
		policy = config.CommissionPolicyStrict
	}
	return &Engine{
		db:        params.DB,
		repo:      params.Repo,
		users:     params.Users,
		ledger:    params.Ledger,
		logg:      params.Logger,
		policy:    policy,
		batchSize: batch,
	}, nil
}

// eligibleStatuses is the policy gate: strict pays only positions that are
// earning or have finished; relaxed also accepts pending/paused ones so test
// environments can exercise the payout without a full accrual cycle.
func (e *Engine) eligibleStatuses() []enums.PositionStatus {
	if e.policy == config.CommissionPolicyRelaxed {
		return []enums.PositionStatus{
			enums.PositionStatusPending,
			enums.PositionStatusActive,
			enums.PositionStatusPaused,
			enums.PositionStatusCompleted,
		}
	}
	return []enums.PositionStatus{
		enums.PositionStatusActive,
		enums.PositionStatusCompleted,
	}
}

// Summary counts one commission pass.
type Summary struct {
	Scanned    int `json:"scanned"`
	Paid       int `json:"paid"`
	NoReferrer int `json:"no_referrer"`
	Duplicates int `json:"duplicates"`
	Skipped    int `json:"skipped"`
}

// Run pays every outstanding first-cycle commission once.
func (e *Engine) Run(ctx context.Context) (Summary, error) {
	var summary Summary
	seen := make(map[uuid.UUID]struct{})

	for {
		page, err := e.repo.FindUnpaidFirstCycle(ctx, e.eligibleStatuses(), enums.CommissionTypeDirectReferral, e.batchSize)
		if err != nil {
			return summary, errors.Wrap(errors.CodeDependency, err, "fetching commission candidates")
		}
		pending := page[:0]
		for _, position := range page {
			if _, ok := seen[position.ID]; !ok {
				seen[position.ID] = struct{}{}
				pending = append(pending, position)
			}
		}
		if len(pending) == 0 {
			return summary, nil
		}

		for _, position := range pending {
			summary.Scanned++
			paid, noReferrer, duplicate, err := e.payOne(ctx, &position)
			if err != nil {
				summary.Skipped++
				if e.logg != nil {
					lctx := e.logg.WithPositionID(ctx, position.ID.String())
					e.logg.Error(lctx, "commission payout failed", err)
				}
				continue
			}
			switch {
			case paid:
				summary.Paid++
			case noReferrer:
				summary.NoReferrer++
			case duplicate:
				summary.Duplicates++
			}
		}
	}
}

func (e *Engine) payOne(ctx context.Context, position *models.Position) (paid, noReferrer, duplicate bool, err error) {
	owner, err := e.users.FindByID(ctx, position.UserID)
	if err != nil {
		return false, false, false, errors.Wrap(errors.CodeDependency, err, "loading position owner")
	}
	if owner.ReferrerID == nil {
		return false, true, false, nil
	}
	term := position.PackageTerm
	if term == nil {
		return false, false, false, errors.New(errors.CodeDataIntegrity, "position has no package term")
	}

	amount := position.Principal.Mul(term.ReferralRate)
	if !amount.IsPositive() {
		return false, true, false, nil
	}

	referrerID := *owner.ReferrerID
	key := commissionKey(referrerID, position.ID)

	err = e.db.WithTx(ctx, func(tx *gorm.DB) error {
		credit, txErr := e.ledger.CreditTx(ctx, tx, ledger.EntryInput{
			UserID:         referrerID,
			Amount:         amount,
			Kind:           enums.LedgerEntryKindReferralCommission,
			Bucket:         enums.BalanceBucketCommission,
			IdempotencyKey: key,
			SourceRef:      position.ID.String(),
		})
		if txErr != nil {
			return txErr
		}

		entryID := uuid.Nil
		if credit.Duplicate {
			duplicate = true
			existing, lookupErr := e.ledger.GetEntryByKey(ctx, key)
			if lookupErr != nil {
				return lookupErr
			}
			entryID = existing.ID
		} else {
			entryID = credit.Entry.ID
		}

		inserted, txErr := e.repo.WithTx(tx).Insert(ctx, &models.CommissionRecord{
			ID:            uuid.New(),
			ReceiverID:    referrerID,
			PositionID:    position.ID,
			Type:          enums.CommissionTypeDirectReferral,
			Amount:        amount,
			LedgerEntryID: entryID,
			Status:        enums.CommissionStatusPaid,
		})
		if txErr != nil {
			return errors.Wrap(errors.CodeDependency, txErr, "recording commission")
		}
		paid = inserted && !credit.Duplicate
		return nil
	})
	if err != nil {
		return false, false, false, err
	}
	return paid, false, duplicate, nil
}

func commissionKey(referrerID, positionID uuid.UUID) string {
	return fmt.Sprintf("ref:%s:%s:direct_referral", referrerID, positionID)
}
