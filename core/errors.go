package core

import "errors"

var (
	// ErrValidation marks requests rejected before any state mutation.
	ErrValidation = errors.New("validation failed")

	ErrUnknownEventKind   = validation("unknown event kind")
	ErrMissingMetadata    = validation("missing or malformed metadata")
	ErrOutOfOrderActivity = validation("activity date is before the last recorded activity")
	ErrUnknownSource      = validation("unknown reward source")
	ErrInvalidPackSize    = validation("invalid pack size")
	ErrUnknownCard        = validation("unknown card")
	ErrInvalidTimezone    = validation("invalid timezone")

	ErrMissionNotFound       = errors.New("mission not found")
	ErrMissionNotCompleted   = errors.New("mission is not completed yet")
	ErrMissionAlreadyClaimed = errors.New("mission reward already claimed")

	// ErrNoSpins means the learner has no wheel spins left.
	ErrNoSpins = errors.New("no spins available")
	// ErrNoInventory means the reward pool is empty even after the common fallback.
	ErrNoInventory = errors.New("reward pool is empty")

	// ErrStorage wraps failures of the underlying store. They are transient from the caller's view.
	ErrStorage = errors.New("storage unavailable")
)

type validationError struct{ msg string }

func (e *validationError) Error() string { return e.msg }

func (e *validationError) Is(target error) bool { return target == ErrValidation }

func validation(msg string) error { return &validationError{msg: msg} }

// IsDomainError reports whether err already belongs to the engine's error taxonomy.
func IsDomainError(err error) bool {
	for _, target := range []error{
		ErrValidation,
		ErrMissionNotFound,
		ErrMissionNotCompleted,
		ErrMissionAlreadyClaimed,
		ErrNoSpins,
		ErrNoInventory,
		ErrStorage,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
