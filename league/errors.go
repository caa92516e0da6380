/*
errors.go - Error types for league progression

ERROR CATEGORIES:
  IllegalTransition   Phase exit conditions unmet. Nothing was mutated.
  AggregateMissing    A game arrived for a season with no HeadToHead record.
                      Indicates a call-ordering bug; logged at error level.
  DuplicateGame       The game id was already recorded.
  MatchupMismatch     The game does not fit a pending scheduled matchup.
  InvalidGame         Malformed result (missing id, same team twice,
                      tied playoff game).
  InvalidSeeds        Caller-supplied playoff seeds repeat a team or name
                      one that did not play.

  Schedule errors (schedule.ErrScheduleUnsatisfiable,
  schedule.ErrInvalidScheduleConfig) and storage errors
  (storage.ErrStorageFailure) pass through wrapped.
*/
package league

import (
	"errors"
	"fmt"

	"github.com/warp/league-engine/model"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrIllegalTransition = errors.New("illegal phase transition")
	ErrAggregateMissing  = errors.New("head-to-head aggregate missing")
	ErrDuplicateGame     = errors.New("game already recorded")
	ErrMatchupMismatch   = errors.New("game does not match a pending matchup")
	ErrInvalidGame       = errors.New("invalid game")
	ErrInvalidSeeds      = errors.New("invalid playoff seeds")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// IllegalTransitionError explains why a phase cannot be left yet.
type IllegalTransitionError struct {
	From    model.Phase
	To      model.Phase
	Reason  string
	Pending int
}

func (e *IllegalTransitionError) Error() string {
	if e.Pending > 0 {
		return fmt.Sprintf("illegal transition %s -> %s: %s (%d pending)", e.From, e.To, e.Reason, e.Pending)
	}
	return fmt.Sprintf("illegal transition %s -> %s: %s", e.From, e.To, e.Reason)
}

func (e *IllegalTransitionError) Unwrap() error {
	return ErrIllegalTransition
}

// AggregateMissingError names the season without an aggregate.
type AggregateMissingError struct {
	Season int
	GID    string
}

func (e *AggregateMissingError) Error() string {
	return fmt.Sprintf("no head-to-head aggregate for season %d (game %s)", e.Season, e.GID)
}

func (e *AggregateMissingError) Unwrap() error {
	return ErrAggregateMissing
}

// MatchupMismatchError carries the matchup a game was reported against.
type MatchupMismatchError struct {
	MatchupID int
	Reason    string
}

func (e *MatchupMismatchError) Error() string {
	return fmt.Sprintf("matchup %d: %s", e.MatchupID, e.Reason)
}

func (e *MatchupMismatchError) Unwrap() error {
	return ErrMatchupMismatch
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to caller input or
// call order rather than a storage fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrIllegalTransition) ||
		errors.Is(err, ErrDuplicateGame) ||
		errors.Is(err, ErrMatchupMismatch) ||
		errors.Is(err, ErrInvalidGame) ||
		errors.Is(err, ErrInvalidSeeds)
}
