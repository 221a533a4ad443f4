package push

import (
	"context"
	"errors"
	"testing"

	"peercall/pkg/retry"

	"github.com/stretchr/testify/require"
)

func TestFCMRetry_PermanentFailureIsNotRetried(t *testing.T) {
	calls := 0
	_, err := retry.RetryWithResult(context.Background(), fcmRetryConfig(), func() (string, error) {
		calls++
		return "", &permanentDeliveryError{cause: errors.New("registration-token-not-registered")}
	})
	require.Error(t, err)
	require.Equal(t, 1, calls, "a dead token must not be re-sent")
}

func TestFCMRetry_TransientFailureIsRetried(t *testing.T) {
	calls := 0
	id, err := retry.RetryWithResult(context.Background(), fcmRetryConfig(), func() (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("internal error")
		}
		return "msg-1", nil
	})
	require.NoError(t, err)
	require.Equal(t, "msg-1", id)
	require.Equal(t, 2, calls)
}
