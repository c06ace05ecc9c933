package enums

import "fmt"

// CommissionType maps to the commission_type enum in Postgres.
type CommissionType string

const (
	CommissionTypeDirectReferral CommissionType = "direct_referral"
	CommissionTypeLeaderBonus    CommissionType = "leader_bonus"
	CommissionTypeParentBonus    CommissionType = "parent_bonus"
)

var validCommissionTypes = []CommissionType{
	CommissionTypeDirectReferral,
	CommissionTypeLeaderBonus,
	CommissionTypeParentBonus,
}

// IsValid reports whether the value matches the canonical commission type enum.
func (t CommissionType) IsValid() bool {
	for _, candidate := range validCommissionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseCommissionType converts raw input into CommissionType.
func ParseCommissionType(value string) (CommissionType, error) {
	for _, candidate := range validCommissionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid commission type %q", value)
}

// CommissionStatus tracks the lifecycle of a commission record.
type CommissionStatus string

const (
	CommissionStatusPending   CommissionStatus = "pending"
	CommissionStatusPaid      CommissionStatus = "paid"
	CommissionStatusCancelled CommissionStatus = "cancelled"
)

// IsValid reports whether the value is a known commission status.
func (s CommissionStatus) IsValid() bool {
	switch s {
	case CommissionStatusPending, CommissionStatusPaid, CommissionStatusCancelled:
		return true
	}
	return false
}
