package enums

import "fmt"

// LedgerEntryKind maps to the ledger_entry_kind enum in Postgres.
type LedgerEntryKind string

const (
	LedgerEntryKindAccrual            LedgerEntryKind = "accrual"
	LedgerEntryKindReferralCommission LedgerEntryKind = "referral_commission"
	LedgerEntryKindLeaderBonus        LedgerEntryKind = "leader_bonus"
	LedgerEntryKindParentBonus        LedgerEntryKind = "parent_bonus"
	LedgerEntryKindWithdrawal         LedgerEntryKind = "withdrawal"
	LedgerEntryKindRefund             LedgerEntryKind = "refund"
	LedgerEntryKindAdminAdjustment    LedgerEntryKind = "admin_adjustment"
)

var validLedgerEntryKinds = []LedgerEntryKind{
	LedgerEntryKindAccrual,
	LedgerEntryKindReferralCommission,
	LedgerEntryKindLeaderBonus,
	LedgerEntryKindParentBonus,
	LedgerEntryKindWithdrawal,
	LedgerEntryKindRefund,
	LedgerEntryKindAdminAdjustment,
}

// IsValid reports whether the value matches the canonical ledger entry kind enum.
func (k LedgerEntryKind) IsValid() bool {
	for _, candidate := range validLedgerEntryKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseLedgerEntryKind converts raw input into LedgerEntryKind.
func ParseLedgerEntryKind(value string) (LedgerEntryKind, error) {
	for _, candidate := range validLedgerEntryKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger entry kind %q", value)
}

// LedgerDirection distinguishes credits from debits.
type LedgerDirection string

const (
	LedgerDirectionCredit LedgerDirection = "credit"
	LedgerDirectionDebit  LedgerDirection = "debit"
)

// IsValid reports whether the value is a known direction.
func (d LedgerDirection) IsValid() bool {
	return d == LedgerDirectionCredit || d == LedgerDirectionDebit
}

// Sign returns +1 for credits and -1 for debits.
func (d LedgerDirection) Sign() int {
	if d == LedgerDirectionDebit {
		return -1
	}
	return 1
}

// LedgerEntryStatus maps to the ledger_entry_status enum in Postgres.
type LedgerEntryStatus string

const (
	LedgerEntryStatusPending   LedgerEntryStatus = "pending"
	LedgerEntryStatusCompleted LedgerEntryStatus = "completed"
	LedgerEntryStatusReversed  LedgerEntryStatus = "reversed"
)

var validLedgerEntryStatuses = []LedgerEntryStatus{
	LedgerEntryStatusPending,
	LedgerEntryStatusCompleted,
	LedgerEntryStatusReversed,
}

// IsValid reports whether the value matches the canonical entry status enum.
func (s LedgerEntryStatus) IsValid() bool {
	for _, candidate := range validLedgerEntryStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// BalanceBucket names the sub-balance an entry settles against.
type BalanceBucket string

const (
	BalanceBucketAvailable  BalanceBucket = "available"
	BalanceBucketPending    BalanceBucket = "pending"
	BalanceBucketFrozen     BalanceBucket = "frozen"
	BalanceBucketCommission BalanceBucket = "commission"
)

var validBalanceBuckets = []BalanceBucket{
	BalanceBucketAvailable,
	BalanceBucketPending,
	BalanceBucketFrozen,
	BalanceBucketCommission,
}

// IsValid reports whether the value matches a known balance bucket.
func (b BalanceBucket) IsValid() bool {
	for _, candidate := range validBalanceBuckets {
		if candidate == b {
			return true
		}
	}
	return false
}

// ParseBalanceBucket converts raw input into BalanceBucket.
func ParseBalanceBucket(value string) (BalanceBucket, error) {
	for _, candidate := range validBalanceBuckets {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid balance bucket %q", value)
}
