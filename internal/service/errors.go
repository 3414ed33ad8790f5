package service

import (
	"errors"
	"fmt"

	"venture-plan-server/internal/domain"
	"venture-plan-server/internal/repository"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrUnauthenticated = errors.New("no authenticated user")
	ErrUnauthorized    = errors.New("user has no access to this venture")
	ErrForbidden       = errors.New("only the creator may perform this action")
	ErrPartialRestore  = errors.New("partial restore")

	ErrNotFound         = repository.ErrNotFound
	ErrVersionConflict  = repository.ErrConflict
	ErrStoreUnavailable = repository.ErrStoreUnavailable
)

// PartialRestoreError reports a restore whose safety checkpoint was saved but
// whose live-state write failed. Checkpoint holds the pre-restore state.
type PartialRestoreError struct {
	Checkpoint *domain.VersionRecord
	Target     *domain.VersionRecord
	Err        error
}

func (e *PartialRestoreError) Error() string {
	return fmt.Sprintf("partial restore: checkpoint version %d saved but restoring version %d failed: %v",
		e.Checkpoint.VersionNumber, e.Target.VersionNumber, e.Err)
}

func (e *PartialRestoreError) Unwrap() []error {
	return []error{ErrPartialRestore, e.Err}
}

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
