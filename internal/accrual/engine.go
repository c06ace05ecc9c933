package accrual

import (
	"context"
	stdErrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nexavest/nexavest-backend/internal/ledger"
	"github.com/nexavest/nexavest-backend/internal/positions"
	"github.com/nexavest/nexavest-backend/pkg/db/models"
	"github.com/nexavest/nexavest-backend/pkg/enums"
	"github.com/nexavest/nexavest-backend/pkg/errors"
	"github.com/nexavest/nexavest-backend/pkg/logger"
)

const defaultBatchSize = 200

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Engine credits daily returns on due positions. Each position is processed
// in its own transaction: the ledger entry, the cursor advance and any state
// change commit together. The idempotency key is derived from the cursor, so
// a crashed or repeated run never double-credits.
type Engine struct {
	db        txRunner
	positions positions.Repository
	ledger    *ledger.Service
	logg      *logger.Logger
	batchSize int
	now       func() time.Time
}

// EngineParams bundles the engine dependencies.
type EngineParams struct {
	DB        txRunner
	Positions positions.Repository
	Ledger    *ledger.Service
	Logger    *logger.Logger
	BatchSize int
	Now       func() time.Time
}

// NewEngine builds the accrual engine.
func NewEngine(params EngineParams) (*Engine, error) {
	if params.DB == nil {
		return nil, stdErrors.New("accrual engine requires a db client")
	}
	if params.Positions == nil {
		return nil, stdErrors.New("accrual engine requires a position repository")
	}
	if params.Ledger == nil {
		return nil, stdErrors.New("accrual engine requires the ledger service")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		db:        params.DB,
		positions: params.Positions,
		ledger:    params.Ledger,
		logg:      params.Logger,
		batchSize: batch,
		now:       now,
	}, nil
}

// Summary counts one accrual pass for the automation run record.
type Summary struct {
	Processed         int `json:"processed"`
	Credited          int `json:"credited"`
	Completed         int `json:"completed"`
	MilestonesEmitted int `json:"milestones_emitted"`
	Skipped           int `json:"skipped"`
}

// Run processes every due position once. Per-position failures are logged
// and skipped; only page fetch errors abort the pass.
func (e *Engine) Run(ctx context.Context) (Summary, error) {
	var summary Summary
	now := e.now().UTC()
	seen := make(map[uuid.UUID]struct{})

	for {
		page, err := e.positions.FindDueForAccrual(ctx, now, e.batchSize)
		if err != nil {
			return summary, errors.Wrap(errors.CodeDependency, err, "fetching due positions")
		}

		// Positions that stay due after a failed attempt would make the
		// pass loop forever without this.
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
			summary.Processed++
			outcome, err := e.processOne(ctx, position.ID, now)
			if err != nil {
				summary.Skipped++
				if e.logg != nil {
					lctx := e.logg.WithPositionID(ctx, position.ID.String())
					e.logg.Error(lctx, "accrual failed for position", err)
				}
				continue
			}
			if outcome.credited {
				summary.Credited++
			}
			if outcome.completed {
				summary.Completed++
			}
			if outcome.milestone {
				summary.MilestonesEmitted++
			}
		}
	}
}

type outcome struct {
	credited  bool
	completed bool
	milestone bool
}

func (e *Engine) processOne(ctx context.Context, positionID uuid.UUID, now time.Time) (outcome, error) {
	var result outcome
	err := e.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := e.positions.WithTx(tx)

		// Re-read inside the transaction; the page snapshot may be stale.
		position, err := repo.FindByID(ctx, positionID)
		if err != nil {
			return errors.Wrap(errors.CodeDependency, err, "loading position")
		}
		if position.Status != enums.PositionStatusActive ||
			position.NextAccrualAt == nil || position.NextAccrualAt.After(now) {
			return nil
		}
		term := position.PackageTerm
		if term == nil {
			return errors.New(errors.CodeDataIntegrity, "position has no package term")
		}
		if position.CurrentDay > term.DaysPerCycle || position.CurrentCycle > term.TotalCycles {
			return errors.New(errors.CodeDataIntegrity,
				fmt.Sprintf("cursor c%d/d%d outside term bounds", position.CurrentCycle, position.CurrentDay))
		}

		daily := position.Principal.Mul(term.DailyRate)
		key := accrualKey(position.ID, position.CurrentCycle, position.CurrentDay)
		credit, err := e.ledger.CreditTx(ctx, tx, ledger.EntryInput{
			UserID:         position.UserID,
			Amount:         daily,
			Kind:           enums.LedgerEntryKindAccrual,
			Bucket:         enums.BalanceBucketAvailable,
			IdempotencyKey: key,
			SourceRef:      position.ID.String(),
		})
		if err != nil {
			return err
		}
		// A duplicate means a previous run crashed after the credit but
		// before the cursor advance; the advance below is the recovery.
		if !credit.Duplicate {
			position.TotalCredited = position.TotalCredited.Add(daily)
			result.credited = true
		}

		e.advance(position, term, now, &result)

		if err := repo.Save(ctx, position); err != nil {
			return errors.Wrap(errors.CodeDependency, err, "saving position cursor")
		}
		return nil
	})
	return result, err
}

// advance moves the cursor past the day just credited and schedules the next
// accrual, inserting the inter-cycle pause where the term demands one.
func (e *Engine) advance(position *models.Position, term *models.PackageTerm, now time.Time, result *outcome) {
	base := now
	if position.NextAccrualAt != nil {
		base = *position.NextAccrualAt
	}

	cycleEnded := position.CurrentDay >= term.DaysPerCycle
	if cycleEnded && position.CurrentCycle == 1 && !position.FirstCycleCompleted {
		position.FirstCycleCompleted = true
		result.milestone = true
	}

	accrued := position.AccruedDays(term.DaysPerCycle) + 1
	exhausted := (cycleEnded && position.CurrentCycle >= term.TotalCycles) ||
		(term.TotalDurationDays > 0 && accrued >= term.TotalDurationDays)
	if exhausted {
		completedAt := now
		position.Status = enums.PositionStatusCompleted
		position.CompletedAt = &completedAt
		position.NextAccrualAt = nil
		position.PausedUntil = nil
		result.completed = true
		return
	}

	if cycleEnded {
		position.CurrentCycle++
		position.CurrentDay = 1
		pause := time.Duration(term.PauseDays) * 24 * time.Hour
		pausedUntil := base.Add(pause)
		next := pausedUntil.Add(24 * time.Hour)
		cycleStart := pausedUntil
		position.PausedUntil = &pausedUntil
		position.CycleStartedAt = &cycleStart
		position.NextAccrualAt = &next
		return
	}

	position.CurrentDay++
	next := base.Add(24 * time.Hour)
	position.PausedUntil = nil
	position.NextAccrualAt = &next
}

func accrualKey(positionID uuid.UUID, cycle, day int) string {
	return fmt.Sprintf("acr:%s:c%d:d%d", positionID, cycle, day)
}
