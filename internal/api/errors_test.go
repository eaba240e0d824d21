package api

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chatconnect/chatconnect/internal/pairing"
)

func TestNewPairingError(t *testing.T) {
	tcases := []struct {
		name           string
		err            error
		expectedStatus int
	}{
		{
			name:           "room not found",
			err:            pairing.ErrNotFound,
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "missing profile",
			err:            pairing.ErrProfileMissing,
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "room full",
			err:            pairing.ErrRoomFull,
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "already a member",
			err:            pairing.ErrAlreadyMember,
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "self join",
			err:            pairing.ErrSelfJoin,
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "duplicate pair",
			err:            pairing.ErrDuplicatePair,
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "transaction conflict",
			err:            pairing.ErrStoreConflict,
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "store offline",
			err:            pairing.ErrStoreOffline,
			expectedStatus: http.StatusServiceUnavailable,
		},
		{
			name:           "unrecognized error",
			err:            errors.New("boom"),
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			apiErr := NewPairingError(tc.err)
			assert.Equal(t, tc.expectedStatus, apiErr.StatusCode)
			assert.NotEmpty(t, apiErr.Message)
		})
	}
}
