package specialbonus

import (
	"context"
	stdErrors "errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nexavest/nexavest-backend/internal/commission"
	"github.com/nexavest/nexavest-backend/internal/ledger"
	"github.com/nexavest/nexavest-backend/internal/positions"
	"github.com/nexavest/nexavest-backend/internal/users"
	"github.com/nexavest/nexavest-backend/pkg/db/models"
	"github.com/nexavest/nexavest-backend/pkg/enums"
	"github.com/nexavest/nexavest-backend/pkg/errors"
	"github.com/nexavest/nexavest-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Engine pays the recurring weekly bonus to the active leader and parent
// accounts. A position in an account's downstream owes one bonus per
// completed seven-day accrual week; the week index in the idempotency key
// makes re-runs and catch-up passes safe.
type Engine struct {
	db          txRunner
	repo        Repository
	users       users.Repository
	positions   positions.Repository
	commissions commission.Repository
	ledger      *ledger.Service
	logg        *logger.Logger
	rate        decimal.Decimal
}

// EngineParams bundles the engine dependencies.
type EngineParams struct {
	DB          txRunner
	Repo        Repository
	Users       users.Repository
	Positions   positions.Repository
	Commissions commission.Repository
	Ledger      *ledger.Service
	Logger      *logger.Logger
	Rate        decimal.Decimal
}

// NewEngine builds the special bonus engine.
func NewEngine(params EngineParams) (*Engine, error) {
	if params.DB == nil {
		return nil, stdErrors.New("special bonus engine requires a db client")
	}
	if params.Repo == nil {
		return nil, stdErrors.New("special bonus engine requires a repository")
	}
	if params.Users == nil {
		return nil, stdErrors.New("special bonus engine requires the user repository")
	}
	if params.Positions == nil {
		return nil, stdErrors.New("special bonus engine requires the position repository")
	}
	if params.Commissions == nil {
		return nil, stdErrors.New("special bonus engine requires the commission repository")
	}
	if params.Ledger == nil {
		return nil, stdErrors.New("special bonus engine requires the ledger service")
	}
	if !params.Rate.IsPositive() {
		return nil, stdErrors.New("special bonus engine requires a positive rate")
	}
	return &Engine{
		db:          params.DB,
		repo:        params.Repo,
		users:       params.Users,
		positions:   params.Positions,
		commissions: params.Commissions,
		ledger:      params.Ledger,
		logg:        params.Logger,
		rate:        params.Rate,
	}, nil
}

// Summary counts one bonus pass.
type Summary struct {
	Accounts   int `json:"accounts"`
	Positions  int `json:"positions"`
	Paid       int `json:"paid"`
	Duplicates int `json:"duplicates"`
	Skipped    int `json:"skipped"`
}

// Run pays every outstanding weekly bonus for each active special account.
func (e *Engine) Run(ctx context.Context) (Summary, error) {
	var summary Summary

	accounts, err := e.repo.ListActive(ctx)
	if err != nil {
		return summary, errors.Wrap(errors.CodeDependency, err, "listing special accounts")
	}
	summary.Accounts = len(accounts)

	for _, account := range accounts {
		if err := e.runAccount(ctx, &account, &summary); err != nil {
			summary.Skipped++
			if e.logg != nil {
				lctx := e.logg.WithField(ctx, "special_account", account.ID.String())
				e.logg.Error(lctx, "special bonus pass failed for account", err)
			}
		}
	}
	return summary, nil
}

func (e *Engine) runAccount(ctx context.Context, account *models.SpecialAccount, summary *Summary) error {
	ownerIDs, err := e.users.ListOwnerIDsReferredByCode(ctx, account.Code)
	if err != nil {
		return errors.Wrap(errors.CodeDependency, err, "listing downstream owners")
	}
	downstream, err := e.positions.FindByOwners(ctx, ownerIDs)
	if err != nil {
		return errors.Wrap(errors.CodeDependency, err, "listing downstream positions")
	}

	for _, position := range downstream {
		summary.Positions++
		term := position.PackageTerm
		if term == nil {
			summary.Skipped++
			continue
		}
		weeks := position.WeeksCompleted(term.DaysPerCycle)
		for week := 1; week <= weeks; week++ {
			paid, duplicate, err := e.payWeek(ctx, account, &position, week)
			if err != nil {
				summary.Skipped++
				if e.logg != nil {
					lctx := e.logg.WithPositionID(ctx, position.ID.String())
					e.logg.Error(lctx, "weekly bonus payout failed", err)
				}
				continue
			}
			if paid {
				summary.Paid++
			}
			if duplicate {
				summary.Duplicates++
			}
		}
	}
	return nil
}

func (e *Engine) payWeek(ctx context.Context, account *models.SpecialAccount, position *models.Position, week int) (paid, duplicate bool, err error) {
	amount := position.Principal.Mul(e.rate)
	if !amount.IsPositive() {
		return false, false, nil
	}
	key := bonusKey(account.ID, position.ID, week)

	err = e.db.WithTx(ctx, func(tx *gorm.DB) error {
		credit, txErr := e.ledger.CreditTx(ctx, tx, ledger.EntryInput{
			UserID:         account.UserID,
			Amount:         amount,
			Kind:           account.Role.BonusKind(),
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
			paid = true
			entryID = credit.Entry.ID
		}

		_, txErr = e.commissions.WithTx(tx).Insert(ctx, &models.CommissionRecord{
			ID:            uuid.New(),
			ReceiverID:    account.UserID,
			PositionID:    position.ID,
			Type:          account.Role.CommissionType(),
			Period:        fmt.Sprintf("w%d", week),
			Amount:        amount,
			LedgerEntryID: entryID,
			Status:        enums.CommissionStatusPaid,
		})
		if txErr != nil {
			return errors.Wrap(errors.CodeDependency, txErr, "recording bonus")
		}
		return nil
	})
	if err != nil {
		return false, false, err
	}
	return paid, duplicate, nil
}

func bonusKey(accountID, positionID uuid.UUID, week int) string {
	return fmt.Sprintf("spb:%s:%s:w%d", accountID, positionID, week)
}
