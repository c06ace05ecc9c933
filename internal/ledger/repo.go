package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nexavest/nexavest-backend/pkg/db/models"
	"github.com/nexavest/nexavest-backend/pkg/enums"
	"github.com/nexavest/nexavest-backend/pkg/pagination"
)

// Repository manages persistence for ledger entries and the derived balances.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	// InsertEntry writes the entry unless its idempotency key already exists.
	// The bool result reports whether a row was actually inserted.
	InsertEntry(ctx context.Context, entry *models.LedgerEntry) (bool, error)
	EnsureBalanceRow(ctx context.Context, userID uuid.UUID) error
	// AddToBucket applies a signed delta to one bucket. When guardFloor is
	// true the update refuses to take the bucket negative and reports false.
	AddToBucket(ctx context.Context, userID uuid.UUID, bucket enums.BalanceBucket, delta decimal.Decimal, guardFloor bool) (bool, error)
	GetBalance(ctx context.Context, userID uuid.UUID) (*models.UserBalance, error)
	FindEntryByKey(ctx context.Context, idempotencyKey string) (*models.LedgerEntry, error)
	ListEntries(ctx context.Context, filter EntryFilter) ([]models.LedgerEntry, string, error)
	SumCompletedBuckets(ctx context.Context) ([]BucketSum, error)
	ListBalances(ctx context.Context) ([]models.UserBalance, error)
}

// EntryFilter narrows the admin ledger listing.
type EntryFilter struct {
	UserID *uuid.UUID
	Kind   *enums.LedgerEntryKind
	Status *enums.LedgerEntryStatus
	From   *time.Time
	To     *time.Time
	Limit  int
	Cursor string
}

// BucketSum is one grouped signed total from the completed entries.
type BucketSum struct {
	UserID    uuid.UUID             `gorm:"column:user_id"`
	Bucket    enums.BalanceBucket   `gorm:"column:bucket"`
	Direction enums.LedgerDirection `gorm:"column:direction"`
	Total     decimal.Decimal       `gorm:"column:total"`
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) InsertEntry(ctx context.Context, entry *models.LedgerEntry) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idempotency_key"}},
			DoNothing: true,
		}).
		Create(entry)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) EnsureBalanceRow(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Exec(`INSERT INTO user_balances (user_id, available, pending, frozen, commission, updated_at) VALUES (?, 0, 0, 0, 0, ?) ON CONFLICT (user_id) DO NOTHING`, userID, time.Now().UTC()).
		Error
}

func (r *repository) AddToBucket(ctx context.Context, userID uuid.UUID, bucket enums.BalanceBucket, delta decimal.Decimal, guardFloor bool) (bool, error) {
	column, err := bucketColumn(bucket)
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf(`UPDATE user_balances SET %s = %s + ?, updated_at = ? WHERE user_id = ?`, column, column)
	args := []any{delta, time.Now().UTC(), userID}
	if guardFloor {
		query += fmt.Sprintf(` AND %s >= ?`, column)
		args = append(args, delta.Neg())
	}

	result := r.db.WithContext(ctx).Exec(query, args...)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func bucketColumn(bucket enums.BalanceBucket) (string, error) {
	switch bucket {
	case enums.BalanceBucketAvailable:
		return "available", nil
	case enums.BalanceBucketPending:
		return "pending", nil
	case enums.BalanceBucketFrozen:
		return "frozen", nil
	case enums.BalanceBucketCommission:
		return "commission", nil
	}
	return "", fmt.Errorf("invalid balance bucket %q", bucket)
}

func (r *repository) GetBalance(ctx context.Context, userID uuid.UUID) (*models.UserBalance, error) {
	var balance models.UserBalance
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&balance).Error
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

func (r *repository) FindEntryByKey(ctx context.Context, idempotencyKey string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("idempotency_key = ?", idempotencyKey).
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) ListEntries(ctx context.Context, filter EntryFilter) ([]models.LedgerEntry, string, error) {
	limit := pagination.NormalizeLimit(filter.Limit)
	cursor, err := pagination.ParseCursor(filter.Cursor)
	if err != nil {
		return nil, "", err
	}

	query := r.db.WithContext(ctx).Model(&models.LedgerEntry{})
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Kind != nil {
		query = query.Where("kind = ?", *filter.Kind)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at < ?", *filter.To)
	}
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var entries []models.LedgerEntry
	if err := query.
		Order("created_at DESC, id DESC").
		Limit(limit + 1).
		Find(&entries).Error; err != nil {
		return nil, "", err
	}

	next := ""
	if len(entries) > limit {
		entries = entries[:limit]
		last := entries[len(entries)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return entries, next, nil
}

func (r *repository) SumCompletedBuckets(ctx context.Context) ([]BucketSum, error) {
	var sums []BucketSum
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select("user_id, bucket, direction, SUM(amount) AS total").
		Where("status = ?", enums.LedgerEntryStatusCompleted).
		Group("user_id, bucket, direction").
		Scan(&sums).Error
	if err != nil {
		return nil, err
	}
	return sums, nil
}

func (r *repository) ListBalances(ctx context.Context) ([]models.UserBalance, error) {
	var balances []models.UserBalance
	if err := r.db.WithContext(ctx).Find(&balances).Error; err != nil {
		return nil, err
	}
	return balances, nil
}
