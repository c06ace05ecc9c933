package ledger

import (
	"context"
	stdErrors "errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nexavest/nexavest-backend/pkg/db/models"
	"github.com/nexavest/nexavest-backend/pkg/enums"
	"github.com/nexavest/nexavest-backend/pkg/errors"
	"github.com/nexavest/nexavest-backend/pkg/logger"
	"github.com/nexavest/nexavest-backend/pkg/metrics"
)

// txRunner is the unit-of-work surface the service needs from the db client.
type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the only writer of ledger entries and user balances. Every
// mutation inserts an immutable entry and adjusts the derived balance in the
// same transaction, keyed by a caller-supplied idempotency key.
type Service struct {
	db      txRunner
	repo    Repository
	logg    *logger.Logger
	metrics *metrics.LedgerMetrics
}

// ServiceParams bundles the service dependencies.
type ServiceParams struct {
	DB      txRunner
	Repo    Repository
	Logger  *logger.Logger
	Metrics *metrics.LedgerMetrics
}

// NewService builds the ledger service.
func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("ledger service requires a db client")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("ledger service requires a repository")
	}
	return &Service{
		db:      params.DB,
		repo:    params.Repo,
		logg:    params.Logger,
		metrics: params.Metrics,
	}, nil
}

// EntryInput describes one requested money movement.
type EntryInput struct {
	UserID         uuid.UUID
	Amount         decimal.Decimal
	Kind           enums.LedgerEntryKind
	Bucket         enums.BalanceBucket
	IdempotencyKey string
	SourceRef      string
	Note           string
}

// Result reports the outcome of a write. Duplicate means the idempotency key
// was already present: nothing changed and the caller may proceed.
type Result struct {
	Entry     *models.LedgerEntry
	Duplicate bool
}

func (in EntryInput) validate() error {
	if in.UserID == uuid.Nil {
		return errors.New(errors.CodeValidation, "user id is required")
	}
	if !in.Amount.IsPositive() {
		return errors.New(errors.CodeValidation, "amount must be positive")
	}
	if !in.Kind.IsValid() {
		return errors.New(errors.CodeValidation, fmt.Sprintf("invalid entry kind %q", in.Kind))
	}
	if !in.Bucket.IsValid() {
		return errors.New(errors.CodeValidation, fmt.Sprintf("invalid balance bucket %q", in.Bucket))
	}
	if strings.TrimSpace(in.IdempotencyKey) == "" {
		return errors.New(errors.CodeValidation, "idempotency key is required")
	}
	return nil
}

// Credit appends a credit entry and adds to the target bucket.
func (s *Service) Credit(ctx context.Context, in EntryInput) (Result, error) {
	if err := in.validate(); err != nil {
		return Result{}, err
	}
	var result Result
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		result, txErr = s.applyEntry(ctx, tx, in, enums.LedgerDirectionCredit)
		return txErr
	})
	return result, err
}

// Debit appends a debit entry, refusing to take the bucket negative.
func (s *Service) Debit(ctx context.Context, in EntryInput) (Result, error) {
	if err := in.validate(); err != nil {
		return Result{}, err
	}
	var result Result
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		result, txErr = s.applyEntry(ctx, tx, in, enums.LedgerDirectionDebit)
		return txErr
	})
	return result, err
}

// CreditTx is Credit running on an already-open transaction, for callers that
// need the entry and their own writes to commit together.
func (s *Service) CreditTx(ctx context.Context, tx *gorm.DB, in EntryInput) (Result, error) {
	if err := in.validate(); err != nil {
		return Result{}, err
	}
	return s.applyEntry(ctx, tx, in, enums.LedgerDirectionCredit)
}

func (s *Service) applyEntry(ctx context.Context, tx *gorm.DB, in EntryInput, direction enums.LedgerDirection) (Result, error) {
	repo := s.repo.WithTx(tx)

	entry := &models.LedgerEntry{
		ID:             uuid.New(),
		UserID:         in.UserID,
		Amount:         in.Amount,
		Direction:      direction,
		Kind:           in.Kind,
		Bucket:         in.Bucket,
		IdempotencyKey: in.IdempotencyKey,
		SourceRef:      in.SourceRef,
		Status:         enums.LedgerEntryStatusCompleted,
		Note:           in.Note,
	}

	inserted, err := repo.InsertEntry(ctx, entry)
	if err != nil {
		return Result{}, errors.Wrap(errors.CodeDependency, err, "inserting ledger entry")
	}
	if !inserted {
		s.metrics.IncDuplicate(string(in.Kind))
		return Result{Duplicate: true}, nil
	}

	if err := repo.EnsureBalanceRow(ctx, in.UserID); err != nil {
		return Result{}, errors.Wrap(errors.CodeDependency, err, "ensuring balance row")
	}

	delta := in.Amount
	guardFloor := false
	if direction == enums.LedgerDirectionDebit {
		delta = in.Amount.Neg()
		guardFloor = true
	}

	applied, err := repo.AddToBucket(ctx, in.UserID, in.Bucket, delta, guardFloor)
	if err != nil {
		return Result{}, errors.Wrap(errors.CodeDependency, err, "updating balance")
	}
	if !applied {
		return Result{}, errors.New(errors.CodeInsufficientFunds,
			fmt.Sprintf("%s balance below %s", in.Bucket, in.Amount.String()))
	}

	amountF, _ := in.Amount.Float64()
	s.metrics.IncEntry(string(in.Kind), string(direction), amountF)
	return Result{Entry: entry}, nil
}

// Withdrawal idempotency keys share the "wd:<ref>" prefix so the three phases
// of one withdrawal can find each other.
func withdrawalKey(ref string, parts ...string) string {
	return strings.Join(append([]string{"wd", ref}, parts...), ":")
}

// ReserveWithdrawal moves amount from available to pending as a debit/credit
// entry pair. Re-invocations with the same ref are no-ops.
func (s *Service) ReserveWithdrawal(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, ref string) (Result, error) {
	if strings.TrimSpace(ref) == "" {
		return Result{}, errors.New(errors.CodeValidation, "withdrawal ref is required")
	}
	debitIn := EntryInput{
		UserID:         userID,
		Amount:         amount,
		Kind:           enums.LedgerEntryKindWithdrawal,
		Bucket:         enums.BalanceBucketAvailable,
		IdempotencyKey: withdrawalKey(ref, "reserve", "avl"),
		SourceRef:      ref,
		Note:           "withdrawal reserve",
	}
	if err := debitIn.validate(); err != nil {
		return Result{}, err
	}

	var result Result
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		debited, txErr := s.applyEntry(ctx, tx, debitIn, enums.LedgerDirectionDebit)
		if txErr != nil {
			return txErr
		}
		if debited.Duplicate {
			result = debited
			return nil
		}

		creditIn := debitIn
		creditIn.Bucket = enums.BalanceBucketPending
		creditIn.IdempotencyKey = withdrawalKey(ref, "reserve", "pnd")
		credited, txErr := s.applyEntry(ctx, tx, creditIn, enums.LedgerDirectionCredit)
		if txErr != nil {
			return txErr
		}
		result = credited
		return nil
	})
	return result, err
}

// FinalizeWithdrawal settles a reserved withdrawal by debiting pending.
func (s *Service) FinalizeWithdrawal(ctx context.Context, ref string) (Result, error) {
	reserve, err := s.findReserve(ctx, ref)
	if err != nil {
		return Result{}, err
	}
	if err := s.ensureKeyAbsent(ctx, withdrawalKey(ref, "reject", "pnd"), "withdrawal already rejected"); err != nil {
		return Result{}, err
	}

	in := EntryInput{
		UserID:         reserve.UserID,
		Amount:         reserve.Amount,
		Kind:           enums.LedgerEntryKindWithdrawal,
		Bucket:         enums.BalanceBucketPending,
		IdempotencyKey: withdrawalKey(ref, "finalize"),
		SourceRef:      ref,
		Note:           "withdrawal finalize",
	}
	return s.Debit(ctx, in)
}

// RejectWithdrawal returns a reserved withdrawal to available via a
// compensating pair. The original entries stay untouched.
func (s *Service) RejectWithdrawal(ctx context.Context, ref string) (Result, error) {
	reserve, err := s.findReserve(ctx, ref)
	if err != nil {
		return Result{}, err
	}
	if err := s.ensureKeyAbsent(ctx, withdrawalKey(ref, "finalize"), "withdrawal already finalized"); err != nil {
		return Result{}, err
	}

	debitIn := EntryInput{
		UserID:         reserve.UserID,
		Amount:         reserve.Amount,
		Kind:           enums.LedgerEntryKindRefund,
		Bucket:         enums.BalanceBucketPending,
		IdempotencyKey: withdrawalKey(ref, "reject", "pnd"),
		SourceRef:      ref,
		Note:           "withdrawal reject",
	}

	var result Result
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		debited, txErr := s.applyEntry(ctx, tx, debitIn, enums.LedgerDirectionDebit)
		if txErr != nil {
			return txErr
		}
		if debited.Duplicate {
			result = debited
			return nil
		}

		creditIn := debitIn
		creditIn.Bucket = enums.BalanceBucketAvailable
		creditIn.IdempotencyKey = withdrawalKey(ref, "reject", "avl")
		credited, txErr := s.applyEntry(ctx, tx, creditIn, enums.LedgerDirectionCredit)
		if txErr != nil {
			return txErr
		}
		result = credited
		return nil
	})
	return result, err
}

func (s *Service) findReserve(ctx context.Context, ref string) (*models.LedgerEntry, error) {
	entry, err := s.repo.FindEntryByKey(ctx, withdrawalKey(ref, "reserve", "pnd"))
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New(errors.CodeNotFound, fmt.Sprintf("no reserved withdrawal %q", ref))
		}
		return nil, errors.Wrap(errors.CodeDependency, err, "looking up withdrawal reserve")
	}
	return entry, nil
}

func (s *Service) ensureKeyAbsent(ctx context.Context, key, message string) error {
	_, err := s.repo.FindEntryByKey(ctx, key)
	if err == nil {
		return errors.New(errors.CodeInvalidState, message)
	}
	if stdErrors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return errors.Wrap(errors.CodeDependency, err, "checking withdrawal state")
}

// AdminAdjustInput is a manual correction. The reason is mandatory and ends
// up on the entry as the note.
type AdminAdjustInput struct {
	UserID         uuid.UUID
	Amount         decimal.Decimal
	Direction      enums.LedgerDirection
	Bucket         enums.BalanceBucket
	IdempotencyKey string
	Reason         string
	Actor          string
}

// AdminAdjust applies a manual correction entry and logs it at warn level.
func (s *Service) AdminAdjust(ctx context.Context, in AdminAdjustInput) (Result, error) {
	if strings.TrimSpace(in.Reason) == "" {
		return Result{}, errors.New(errors.CodeValidation, "adjustment reason is required")
	}
	if !in.Direction.IsValid() {
		return Result{}, errors.New(errors.CodeValidation, fmt.Sprintf("invalid direction %q", in.Direction))
	}
	bucket := in.Bucket
	if bucket == "" {
		bucket = enums.BalanceBucketAvailable
	}

	entryIn := EntryInput{
		UserID:         in.UserID,
		Amount:         in.Amount,
		Kind:           enums.LedgerEntryKindAdminAdjustment,
		Bucket:         bucket,
		IdempotencyKey: in.IdempotencyKey,
		SourceRef:      in.Actor,
		Note:           in.Reason,
	}

	if s.logg != nil {
		lctx := s.logg.WithFields(ctx, map[string]any{
			"user_id":   in.UserID.String(),
			"amount":    in.Amount.String(),
			"direction": string(in.Direction),
			"actor":     in.Actor,
			"reason":    in.Reason,
		})
		s.logg.Warn(lctx, "admin ledger adjustment")
	}

	if in.Direction == enums.LedgerDirectionDebit {
		return s.Debit(ctx, entryIn)
	}
	return s.Credit(ctx, entryIn)
}

// GetBalance returns the user's balance row, zero-valued when the user has
// no ledger activity yet.
func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (*models.UserBalance, error) {
	balance, err := s.repo.GetBalance(ctx, userID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return &models.UserBalance{
				UserID:     userID,
				Available:  decimal.Zero,
				Pending:    decimal.Zero,
				Frozen:     decimal.Zero,
				Commission: decimal.Zero,
			}, nil
		}
		return nil, errors.Wrap(errors.CodeDependency, err, "loading balance")
	}
	return balance, nil
}

// ListEntries exposes the filtered, cursor-paginated entry listing.
func (s *Service) ListEntries(ctx context.Context, filter EntryFilter) ([]models.LedgerEntry, string, error) {
	entries, next, err := s.repo.ListEntries(ctx, filter)
	if err != nil {
		return nil, "", errors.Wrap(errors.CodeDependency, err, "listing ledger entries")
	}
	return entries, next, nil
}

// Divergence is one user bucket whose stored balance disagrees with the
// signed sum of its completed entries.
type Divergence struct {
	UserID   uuid.UUID           `json:"user_id"`
	Bucket   enums.BalanceBucket `json:"bucket"`
	Expected decimal.Decimal     `json:"expected"`
	Actual   decimal.Decimal     `json:"actual"`
}

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	CheckedUsers int          `json:"checked_users"`
	Divergences  []Divergence `json:"divergences,omitempty"`
}

// Reconcile recomputes every balance from the completed entries and reports
// divergences. It never corrects; a divergence is an operator problem.
func (s *Service) Reconcile(ctx context.Context) (ReconcileReport, error) {
	sums, err := s.repo.SumCompletedBuckets(ctx)
	if err != nil {
		return ReconcileReport{}, errors.Wrap(errors.CodeDependency, err, "summing ledger entries")
	}
	balances, err := s.repo.ListBalances(ctx)
	if err != nil {
		return ReconcileReport{}, errors.Wrap(errors.CodeDependency, err, "listing balances")
	}

	type userBucket struct {
		user   uuid.UUID
		bucket enums.BalanceBucket
	}
	expected := make(map[userBucket]decimal.Decimal)
	for _, sum := range sums {
		key := userBucket{user: sum.UserID, bucket: sum.Bucket}
		signed := sum.Total
		if sum.Direction == enums.LedgerDirectionDebit {
			signed = signed.Neg()
		}
		expected[key] = expected[key].Add(signed)
	}

	report := ReconcileReport{CheckedUsers: len(balances)}
	for _, balance := range balances {
		for _, bucket := range []enums.BalanceBucket{
			enums.BalanceBucketAvailable,
			enums.BalanceBucketPending,
			enums.BalanceBucketFrozen,
			enums.BalanceBucketCommission,
		} {
			key := userBucket{user: balance.UserID, bucket: bucket}
			want := expected[key]
			got := balance.Bucket(bucket)
			delete(expected, key)
			if !want.Equal(got) {
				report.Divergences = append(report.Divergences, Divergence{
					UserID:   balance.UserID,
					Bucket:   bucket,
					Expected: want,
					Actual:   got,
				})
			}
		}
	}
	// Entries whose user never got a balance row.
	for key, want := range expected {
		if want.IsZero() {
			continue
		}
		report.Divergences = append(report.Divergences, Divergence{
			UserID:   key.user,
			Bucket:   key.bucket,
			Expected: want,
			Actual:   decimal.Zero,
		})
	}

	if len(report.Divergences) > 0 {
		if s.logg != nil {
			lctx := s.logg.WithField(ctx, "divergences", len(report.Divergences))
			s.logg.Error(lctx, "ledger reconciliation divergence",
				errors.New(errors.CodeDataIntegrity, "balances disagree with ledger"))
		}
	}
	return report, nil
}

// GetEntryByKey loads one entry by its idempotency key.
func (s *Service) GetEntryByKey(ctx context.Context, key string) (*models.LedgerEntry, error) {
	entry, err := s.repo.FindEntryByKey(ctx, key)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New(errors.CodeNotFound, fmt.Sprintf("no ledger entry for key %q", key))
		}
		return nil, errors.Wrap(errors.CodeDependency, err, "loading ledger entry")
	}
	return entry, nil
}
