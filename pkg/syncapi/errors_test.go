package syncapi

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify_UnauthorizedAndForbiddenAreAuth(t *testing.T) {
	for _, code := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		err := classify(code, "nope")
		require.ErrorIs(t, err, ErrAuth)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, code, apiErr.StatusCode)
	}
}

func TestClassify_ServerErrorsAreTransient(t *testing.T) {
	err := classify(http.StatusBadGateway, "upstream down")
	require.ErrorIs(t, err, ErrTransient)
}

func TestClassify_OtherClientErrorsArePermanent(t *testing.T) {
	err := classify(http.StatusBadRequest, "malformed")
	require.ErrorIs(t, err, ErrPermanent)
	require.False(t, IsRetryable(err))
}

func TestClassify_SuccessCodeReturnsNil(t *testing.T) {
	require.NoError(t, classify(http.StatusOK, ""))
}

func TestIsRetryable_TransientTrueOthersFalse(t *testing.T) {
	require.True(t, IsRetryable(classify(http.StatusServiceUnavailable, "")))
	require.False(t, IsRetryable(classify(http.StatusUnauthorized, "")))
	require.False(t, IsRetryable(classify(http.StatusBadRequest, "")))
	require.False(t, IsRetryable(nil))
	require.False(t, IsRetryable(errors.New("unrelated")))
}

func TestAPIError_UnwrapMatchesKind(t *testing.T) {
	apiErr := &APIError{Kind: ErrAuth, StatusCode: 401, Body: "denied"}
	require.Equal(t, ErrAuth, errors.Unwrap(apiErr))
	require.Contains(t, apiErr.Error(), "401")
	require.Contains(t, apiErr.Error(), "denied")
}
