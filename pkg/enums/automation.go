package enums

import "fmt"

// TriggerType labels what initiated an automation run.
type TriggerType string

const (
	TriggerTypeAutomatic TriggerType = "automatic"
	TriggerTypeManual    TriggerType = "manual"
	TriggerTypeRetry     TriggerType = "retry"
)

// IsValid reports whether the value is a known trigger type.
func (t TriggerType) IsValid() bool {
	switch t {
	case TriggerTypeAutomatic, TriggerTypeManual, TriggerTypeRetry:
		return true
	}
	return false
}

// RunStatus tracks the outcome of a single automation run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// IsValid reports whether the value is a known run status.
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusRunning, RunStatusCompleted, RunStatusFailed:
		return true
	}
	return false
}

// ParseRunStatus converts raw input into RunStatus.
func ParseRunStatus(value string) (RunStatus, error) {
	switch RunStatus(value) {
	case RunStatusRunning:
		return RunStatusRunning, nil
	case RunStatusCompleted:
		return RunStatusCompleted, nil
	case RunStatusFailed:
		return RunStatusFailed, nil
	}
	return "", fmt.Errorf("invalid run status %q", value)
}
