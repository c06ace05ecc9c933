package enums

import "fmt"

// PositionStatus maps to the position_status enum in Postgres.
type PositionStatus string

const (
	PositionStatusPending   PositionStatus = "pending"
	PositionStatusActive    PositionStatus = "active"
	PositionStatusPaused    PositionStatus = "paused"
	PositionStatusCompleted PositionStatus = "completed"
	PositionStatusCancelled PositionStatus = "cancelled"
)

var validPositionStatuses = []PositionStatus{
	PositionStatusPending,
	PositionStatusActive,
	PositionStatusPaused,
	PositionStatusCompleted,
	PositionStatusCancelled,
}

// IsValid reports whether the value matches the canonical position status enum.
func (s PositionStatus) IsValid() bool {
	for _, candidate := range validPositionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the position can no longer change state.
func (s PositionStatus) IsTerminal() bool {
	return s == PositionStatusCompleted || s == PositionStatusCancelled
}

// ParsePositionStatus converts raw input into PositionStatus.
func ParsePositionStatus(value string) (PositionStatus, error) {
	for _, candidate := range validPositionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid position status %q", value)
}
