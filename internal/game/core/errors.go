package core

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation covers illegal targets, missing line of sight and exceeded movement budgets
	ErrValidation = errors.New("validation failed")
	// ErrPhaseGuard is returned for actions in the wrong phase or advancing before every unit is locked
	ErrPhaseGuard = errors.New("phase guard")
	// ErrDoubleLock is returned when a unit has already committed for the current phase
	ErrDoubleLock = errors.New("unit already locked for this phase")
	// ErrSequence marks an append whose sequence number does not follow the log
	ErrSequence = errors.New("event sequence mismatch")
	// ErrTerminalState is returned for mutations after the game has ended
	ErrTerminalState = errors.New("game is over")
	// ErrReplayCorruption marks an out-of-range replay target or an unreadable event
	ErrReplayCorruption = errors.New("replay corruption")

	ErrUnitNotFound    = errors.New("unit not found")
	ErrNothingToUndo   = errors.New("nothing to undo")
	ErrSessionNotFound = errors.New("session not found")
	ErrConflict        = errors.New("concurrent modification")
	ErrSessionLimit    = errors.New("maximum number of sessions reached")
)

// SequenceError reports the sequence number the log expected and the one it got.
// The log is not trustworthy after one of these.
type SequenceError struct {
	Expected int
	Got      int
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("event sequence mismatch: expected %d, got %d", e.Expected, e.Got)
}

// Is lets errors.Is(err, ErrSequence) match
func (e *SequenceError) Is(target error) bool {
	return target == ErrSequence
}

// ReplayCorruptionError reports where replay failed
type ReplayCorruptionError struct {
	Sequence int
	Reason   string
	Err      error
}

func (e *ReplayCorruptionError) Error() string {
	msg := fmt.Sprintf("replay corruption at sequence %d: %s", e.Sequence, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ReplayCorruptionError) Is(target error) bool {
	return target == ErrReplayCorruption
}

func (e *ReplayCorruptionError) Unwrap() error {
	return e.Err
}

// Validationf returns an error wrapping ErrValidation
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// PhaseGuardf returns an error wrapping ErrPhaseGuard
func PhaseGuardf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPhaseGuard, fmt.Sprintf(format, args...))
}

// WrapActionError adds the acting unit and action name to an error.
// Returns nil if err is nil.
func WrapActionError(unitID, action string, err error) error {
	if err == nil {
		return nil
	}
	if unitID == "" {
		return fmt.Errorf("%s: %w", action, err)
	}
	return fmt.Errorf("unit %s: %s: %w", unitID, action, err)
}

// WrapGameStateError adds turn and phase context to an error
func WrapGameStateError(turn int, phase GamePhase, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("game turn %d [%s]: %w", turn, phase, err)
}

// IsRejection reports whether err is a side-effect-free rejection of a caller action,
// as opposed to a fault that makes the session untrustworthy
func IsRejection(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrPhaseGuard) ||
		errors.Is(err, ErrDoubleLock) ||
		errors.Is(err, ErrTerminalState) ||
		errors.Is(err, ErrUnitNotFound) ||
		errors.Is(err, ErrNothingToUndo)
}

// ErrorKind returns a short label for metrics and logs
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrPhaseGuard):
		return "phase_guard"
	case errors.Is(err, ErrDoubleLock):
		return "double_lock"
	case errors.Is(err, ErrSequence):
		return "sequence"
	case errors.Is(err, ErrTerminalState):
		return "terminal_state"
	case errors.Is(err, ErrReplayCorruption):
		return "replay_corruption"
	case errors.Is(err, ErrUnitNotFound):
		return "unit_not_found"
	case errors.Is(err, ErrNothingToUndo):
		return "nothing_to_undo"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, ErrSessionLimit):
		return "session_limit"
	default:
		return "internal"
	}
}
