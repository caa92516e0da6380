package schedule

import (
	"errors"
	"fmt"

	"github.com/warp/league-engine/model"
)

var (
	// ErrInvalidScheduleConfig is returned before any placement when the
	// configuration cannot produce integral, symmetric pair counts.
	ErrInvalidScheduleConfig = errors.New("invalid schedule configuration")

	// ErrScheduleUnsatisfiable is returned when day assignment runs past
	// the configured day bound.
	ErrScheduleUnsatisfiable = errors.New("schedule unsatisfiable")
)

// ConfigError explains which team or pair broke validation.
type ConfigError struct {
	TID    model.TeamID
	Reason string
}

func (e *ConfigError) Error() string {
	if e.TID < 0 {
		return fmt.Sprintf("invalid schedule configuration: %s", e.Reason)
	}
	return fmt.Sprintf("invalid schedule configuration for team %d: %s", e.TID, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidScheduleConfig
}

// UnsatisfiableError reports how far placement got.
type UnsatisfiableError struct {
	MaxDays   int
	Remaining int
}

func (e *UnsatisfiableError) Error() string {
	return fmt.Sprintf("schedule unsatisfiable: %d matchups left after %d days", e.Remaining, e.MaxDays)
}

func (e *UnsatisfiableError) Unwrap() error {
	return ErrScheduleUnsatisfiable
}

func invalid(reason string, args ...any) error {
	return &ConfigError{TID: -1, Reason: fmt.Sprintf(reason, args...)}
}
