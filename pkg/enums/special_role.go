package enums

import "fmt"

// SpecialRole identifies the two privileged bonus accounts. At most one
// active assignment may exist per role system-wide.
type SpecialRole string

const (
	SpecialRoleLeader SpecialRole = "leader"
	SpecialRoleParent SpecialRole = "parent"
)

var validSpecialRoles = []SpecialRole{
	SpecialRoleLeader,
	SpecialRoleParent,
}

// IsValid reports whether the value matches a known special role.
func (r SpecialRole) IsValid() bool {
	for _, candidate := range validSpecialRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// BonusKind returns the ledger entry kind paid to this role.
func (r SpecialRole) BonusKind() LedgerEntryKind {
	if r == SpecialRoleParent {
		return LedgerEntryKindParentBonus
	}
	return LedgerEntryKindLeaderBonus
}

// CommissionType returns the commission record type for this role.
func (r SpecialRole) CommissionType() CommissionType {
	if r == SpecialRoleParent {
		return CommissionTypeParentBonus
	}
	return CommissionTypeLeaderBonus
}

// ParseSpecialRole converts raw input into SpecialRole.
func ParseSpecialRole(value string) (SpecialRole, error) {
	for _, candidate := range validSpecialRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid special role %q", value)
}
