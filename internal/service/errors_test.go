package service

import (
	"errors"
	"fmt"
	"testing"

	"venture-plan-server/internal/domain"
	"venture-plan-server/internal/repository"

	"github.com/stretchr/testify/assert"
)

func TestPartialRestoreError(t *testing.T) {
	cause := fmt.Errorf("update venture state: %w", repository.ErrStoreUnavailable)
	err := error(&PartialRestoreError{
		Checkpoint: &domain.VersionRecord{VersionNumber: 7},
		Target:     &domain.VersionRecord{VersionNumber: 3},
		Err:        cause,
	})

	assert.ErrorIs(t, err, ErrPartialRestore)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Contains(t, err.Error(), "checkpoint version 7")
	assert.Contains(t, err.Error(), "restoring version 3")

	wrapped := fmt.Errorf("restore: %w", err)
	var partial *PartialRestoreError
	assert.True(t, errors.As(wrapped, &partial))
	assert.Equal(t, int64(7), partial.Checkpoint.VersionNumber)
}

func TestStoreSentinelsAreShared(t *testing.T) {
	assert.ErrorIs(t, fmt.Errorf("x: %w", repository.ErrConflict), ErrVersionConflict)
	assert.ErrorIs(t, fmt.Errorf("x: %w", repository.ErrNotFound), ErrNotFound)
	assert.ErrorIs(t, validationError("bad %s", "label"), ErrValidation)
}
