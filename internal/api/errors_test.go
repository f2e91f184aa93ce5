package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prmjagdish/schedula/internal/apperrors"
	"github.com/prmjagdish/schedula/internal/booking"
)

func TestHandleError_StatusCodes(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{"slot full", booking.ErrSlotFull, http.StatusBadRequest, "slot_full"},
		{"already cancelled", booking.ErrAlreadyCancelled, http.StatusBadRequest, "already_cancelled"},
		{"in progress", booking.ErrRequestInProgress, http.StatusConflict, "request_in_progress"},
		{"key reused for other slot", booking.ErrIdempotencyKeyReused, http.StatusConflict, "idempotency_key_mismatch"},
		{"wrapped not found", fmt.Errorf("load: %w", booking.ErrSlotNotFound), http.StatusNotFound, "slot_not_found"},
		{"transient", apperrors.NewTransient("commit", errors.New("deadlock")), http.StatusServiceUnavailable, "storage_unavailable"},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handleError(rec, httptest.NewRequest(http.MethodPost, "/", nil), tt.err)

			assert.Equal(t, tt.wantCode, rec.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantBody, body.Error)
		})
	}
}
