package errors

import (
	stderrors "errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorWrapping(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(cause, ErrCodeUpstreamUnavailable, "failed to query store")

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "UPSTREAM_UNAVAILABLE")
	assert.Contains(t, err.Error(), "connection refused")

	var structured *Error
	require.ErrorAs(t, err, &structured)
	assert.Equal(t, ErrCodeUpstreamUnavailable, structured.Code)
}

func TestIsCode(t *testing.T) {
	err := New(ErrCodeConflict, "username taken")
	assert.True(t, IsCode(err, ErrCodeConflict))
	assert.False(t, IsCode(err, ErrCodeNotFound))
	assert.False(t, IsCode(stderrors.New("plain"), ErrCodeConflict))
	assert.False(t, IsCode(nil, ErrCodeConflict))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, ErrCodeNotFound, GetCode(New(ErrCodeNotFound, "nope")))
	assert.Equal(t, ErrCodeInternal, GetCode(stderrors.New("plain")))
}

func TestHTTPStatusCodes(t *testing.T) {
	cases := []struct {
		code   ErrorCode
		status int
	}{
		{ErrCodeInvalidRequest, http.StatusBadRequest},
		{ErrCodeMissingRequired, http.StatusBadRequest},
		{ErrCodeInvalidEmail, http.StatusBadRequest},
		{ErrCodeTokenMalformed, http.StatusBadRequest},
		{ErrCodeUnauthorized, http.StatusUnauthorized},
		{ErrCodeInvalidCredentials, http.StatusUnauthorized},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeConflict, http.StatusConflict},
		{ErrCodeAmbiguousAccount, http.StatusConflict},
		{ErrCodeTokenNotFound, http.StatusUnprocessableEntity},
		{ErrCodeTokenInvalid, http.StatusUnprocessableEntity},
		{ErrCodeTokenExpired, http.StatusUnprocessableEntity},
		{ErrCodeUpstreamUnavailable, http.StatusServiceUnavailable},
		{ErrCodeInternal, http.StatusInternalServerError},
		{ErrorCode("SOMETHING_ELSE"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.status, MapErrorCodeToHTTPStatus(tc.code), "code %s", tc.code)
	}

	err := New(ErrCodeConflict, "username taken")
	assert.Equal(t, http.StatusConflict, err.HTTPStatusCode())
}
