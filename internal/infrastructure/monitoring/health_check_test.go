package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"peercall/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticHistoryRepo struct {
	err error
}

func (r staticHistoryRepo) Save(ctx context.Context, entry *domain.CallHistoryEntry) error {
	return r.err
}

func (r staticHistoryRepo) List(ctx context.Context, limit int) ([]*domain.CallHistoryEntry, error) {
	return nil, r.err
}

func TestHealthChecker_RepositoryHealthy(t *testing.T) {
	checker := NewHealthChecker()
	checker.AddRepositoryCheck(staticHistoryRepo{}, time.Minute, time.Second)

	status := checker.GetReadinessStatus(context.Background())
	require.Equal(t, "healthy", status.Status)
	assert.Equal(t, "healthy", status.Checks["repository"])
	assert.True(t, checker.IsReady(context.Background()))
}

func TestHealthChecker_RepositoryFailureMakesNotReady(t *testing.T) {
	checker := NewHealthChecker()
	checker.AddRepositoryCheck(staticHistoryRepo{err: errors.New("store down")}, time.Minute, time.Second)

	status := checker.GetReadinessStatus(context.Background())
	require.Equal(t, "unhealthy", status.Status)
	assert.Contains(t, status.Checks["repository"], "store down")
	assert.False(t, checker.IsReady(context.Background()))
}

func TestHealthChecker_OneFailingCheckDominates(t *testing.T) {
	checker := NewHealthChecker()
	checker.AddRepositoryCheck(staticHistoryRepo{}, time.Minute, time.Second)
	checker.AddCheck("hub", func(ctx context.Context) (bool, error) {
		return false, nil
	}, time.Minute, time.Second)

	status := checker.CheckAll(context.Background())
	require.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, "healthy", status.Checks["repository"])
	assert.Equal(t, "check failed", status.Checks["hub"])
}
