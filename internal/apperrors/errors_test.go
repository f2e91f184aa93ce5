package apperrors_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/prmjagdish/schedula/internal/apperrors"
)

func TestError_IsMatchesByCode(t *testing.T) {
	sentinel := apperrors.NewConflict("slot_full", "slot is fully booked")

	wrapped := fmt.Errorf("book: %w", sentinel)
	assert.ErrorIs(t, wrapped, sentinel)

	recreated := apperrors.NewConflict("slot_full", "a different message")
	assert.ErrorIs(t, recreated, sentinel)

	other := apperrors.NewConflict("already_cancelled", "already cancelled")
	assert.NotErrorIs(t, other, sentinel)
}

func TestError_WrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	sentinel := apperrors.NewNotFound("slot_not_found", "slot not found")

	err := sentinel.Wrap(cause)

	assert.ErrorIs(t, err, sentinel)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "slot not found: connection reset", err.Error())
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperrors.Kind
	}{
		{"validation", apperrors.NewValidation("bad", "bad"), apperrors.KindValidation},
		{"wrapped not found", fmt.Errorf("x: %w", apperrors.NewNotFound("nf", "nf")), apperrors.KindNotFound},
		{"transient", apperrors.NewTransient("tx", errors.New("40001")), apperrors.KindTransientStorage},
		{"plain error", errors.New("boom"), apperrors.KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apperrors.KindOf(tt.err))
		})
	}
}

func TestIsTransient(t *testing.T) {
	assert.True(t, apperrors.IsTransient(apperrors.NewTransient("deadlock", nil)))
	assert.False(t, apperrors.IsTransient(apperrors.NewConflict("slot_full", "full")))
	assert.False(t, apperrors.IsTransient(nil))
}
