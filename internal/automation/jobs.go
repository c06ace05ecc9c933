package automation

import (
	"context"
	"fmt"

	"github.com/nexavest/nexavest-backend/internal/accrual"
	"github.com/nexavest/nexavest-backend/internal/commission"
	"github.com/nexavest/nexavest-backend/internal/ledger"
	"github.com/nexavest/nexavest-backend/internal/specialbonus"
	"github.com/nexavest/nexavest-backend/pkg/errors"
)

// Job names as registered with the orchestrator and exposed on the API.
const (
	JobDailyAccrual       = "daily-accrual"
	JobReferralCommission = "referral-commission"
	JobSpecialBonus       = "special-bonus"
	JobLedgerReconcile    = "ledger-reconcile"

	categoryBenefits = "benefits"
	categoryLedger   = "ledger"
)

// AccrualJob wires the accrual engine into the orchestrator.
type AccrualJob struct {
	engine *accrual.Engine
}

// NewAccrualJob builds the daily accrual job.
func NewAccrualJob(engine *accrual.Engine) *AccrualJob {
	return &AccrualJob{engine: engine}
}

func (j *AccrualJob) Name() string     { return JobDailyAccrual }
func (j *AccrualJob) Category() string { return categoryBenefits }

func (j *AccrualJob) Run(ctx context.Context) (Result, error) {
	summary, err := j.engine.Run(ctx)
	return Result{Records: summary.Processed, Metadata: summary}, err
}

// CommissionJob wires the referral commission engine into the orchestrator.
type CommissionJob struct {
	engine *commission.Engine
}

// NewCommissionJob builds the referral commission job.
func NewCommissionJob(engine *commission.Engine) *CommissionJob {
	return &CommissionJob{engine: engine}
}

func (j *CommissionJob) Name() string     { return JobReferralCommission }
func (j *CommissionJob) Category() string { return categoryBenefits }

func (j *CommissionJob) Run(ctx context.Context) (Result, error) {
	summary, err := j.engine.Run(ctx)
	return Result{Records: summary.Scanned, Metadata: summary}, err
}

// SpecialBonusJob wires the weekly special bonus engine into the orchestrator.
type SpecialBonusJob struct {
	engine *specialbonus.Engine
}

// NewSpecialBonusJob builds the special bonus job.
func NewSpecialBonusJob(engine *specialbonus.Engine) *SpecialBonusJob {
	return &SpecialBonusJob{engine: engine}
}

func (j *SpecialBonusJob) Name() string     { return JobSpecialBonus }
func (j *SpecialBonusJob) Category() string { return categoryBenefits }

func (j *SpecialBonusJob) Run(ctx context.Context) (Result, error) {
	summary, err := j.engine.Run(ctx)
	return Result{Records: summary.Positions, Metadata: summary}, err
}

// ReconcileJob recomputes balances from the ledger. Any divergence fails the
// run so operators see it on the run record and the failure metric.
type ReconcileJob struct {
	ledger *ledger.Service
}

// NewReconcileJob builds the reconciliation job.
func NewReconcileJob(ledgerSvc *ledger.Service) *ReconcileJob {
	return &ReconcileJob{ledger: ledgerSvc}
}

func (j *ReconcileJob) Name() string     { return JobLedgerReconcile }
func (j *ReconcileJob) Category() string { return categoryLedger }

func (j *ReconcileJob) Run(ctx context.Context) (Result, error) {
	report, err := j.ledger.Reconcile(ctx)
	result := Result{Records: report.CheckedUsers, Metadata: report}
	if err != nil {
		return result, err
	}
	if len(report.Divergences) > 0 {
		return result, errors.New(errors.CodeDataIntegrity,
			fmt.Sprintf("%d balance divergences detected", len(report.Divergences)))
	}
	return result, nil
}
