package services

import (
	"context"
	"testing"
	"time"

	"peercall/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// governorHarness runs the governor against an inline event queue standing in
// for the call service loop.
type governorHarness struct {
	gov      *QualityGovernor
	media    *fakeMedia
	sess     *domain.CallSession
	posted   chan func(ctx context.Context)
	notified int
}

func newGovernorHarness(t *testing.T, debounce time.Duration) *governorHarness {
	t.Helper()
	h := &governorHarness{
		media:  newFakeMedia(),
		posted: make(chan func(ctx context.Context), 16),
	}
	h.gov = NewQualityGovernor(h.media, nil, zaptest.NewLogger(t).Sugar(),
		GovernorConfig{DebounceDelay: debounce},
		func(fn func(ctx context.Context)) { h.posted <- fn },
		func() { h.notified++ })
	h.sess = &domain.CallSession{
		Epoch: 1,
		Room:  "call_q",
		State: domain.CallStateConnected,
	}
	return h
}

func (h *governorHarness) sample(level domain.QualityLevel) {
	h.gov.HandleSample(context.Background(), h.sess, level)
}

// drainOne waits for a posted continuation and runs it, like the loop would.
func (h *governorHarness) drainOne(t *testing.T) {
	t.Helper()
	select {
	case fn := <-h.posted:
		fn(context.Background())
	case <-time.After(time.Second):
		t.Fatal("no continuation posted")
	}
}

func (h *governorHarness) expectNothingPosted(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case <-h.posted:
		t.Fatal("unexpected continuation posted")
	case <-time.After(within):
	}
}

func TestQualityGovernor_DegradeThenFallback(t *testing.T) {
	h := newGovernorHarness(t, 20*time.Millisecond)

	h.sample(domain.QualityPoor)
	require.Equal(t, []domain.VideoTier{domain.VideoTierLow}, h.media.restartCalls())

	h.drainOne(t) // debounce fires
	assert.True(t, h.sess.NetworkMuteOverride)
	assert.False(t, h.sess.Mute.CameraMuted, "user intent untouched")
	cam := h.media.cameraCalls()
	require.Len(t, cam, 1)
	assert.False(t, cam[0])
}

func TestQualityGovernor_RepeatedPoorIsIdempotent(t *testing.T) {
	h := newGovernorHarness(t, time.Hour)

	for i := 0; i < 10; i++ {
		h.sample(domain.QualityPoor)
	}
	assert.Len(t, h.media.restartCalls(), 1, "tier downgrade is one-shot")
	h.expectNothingPosted(t, 20*time.Millisecond)
}

func TestQualityGovernor_GoodCancelsPendingFallback(t *testing.T) {
	h := newGovernorHarness(t, 30*time.Millisecond)

	h.sample(domain.QualityPoor)
	h.sample(domain.QualityGood)

	// The debounce was cancelled: nothing fires and the camera stays on.
	h.expectNothingPosted(t, 60*time.Millisecond)
	assert.False(t, h.sess.NetworkMuteOverride)
	assert.Empty(t, h.media.cameraCalls())

	// Tier went low then back high.
	assert.Equal(t, []domain.VideoTier{domain.VideoTierLow, domain.VideoTierHigh},
		h.media.restartCalls())
}

func TestQualityGovernor_RecoveryRestoresOnlyOverride(t *testing.T) {
	h := newGovernorHarness(t, 10*time.Millisecond)

	h.sample(domain.QualityPoor)
	h.drainOne(t)
	require.True(t, h.sess.NetworkMuteOverride)

	h.sample(domain.QualityExcellent)
	assert.False(t, h.sess.NetworkMuteOverride)
	cam := h.media.cameraCalls()
	require.Len(t, cam, 2)
	assert.True(t, cam[1], "governor-muted camera comes back")
}

func TestQualityGovernor_RecoveryRespectsUserMute(t *testing.T) {
	h := newGovernorHarness(t, 10*time.Millisecond)

	h.sample(domain.QualityPoor)
	h.drainOne(t)
	require.True(t, h.sess.NetworkMuteOverride)

	// The user mutes while the override is active; the service absorbs the
	// override into user intent.
	h.sess.Mute.CameraMuted = true
	h.sess.NetworkMuteOverride = false
	camBefore := len(h.media.cameraCalls())

	h.sample(domain.QualityGood)
	assert.Equal(t, camBefore, len(h.media.cameraCalls()), "user-muted camera stays off")
	assert.False(t, h.sess.NetworkMuteOverride)
}

func TestQualityGovernor_NoFallbackWhenCameraAlreadyMuted(t *testing.T) {
	h := newGovernorHarness(t, 10*time.Millisecond)
	h.sess.Mute.CameraMuted = true

	h.sample(domain.QualityPoor)
	// Tier still drops, but no audio-only timer starts: there is no video
	// to shed.
	assert.Len(t, h.media.restartCalls(), 1)
	h.expectNothingPosted(t, 40*time.Millisecond)
	assert.False(t, h.sess.NetworkMuteOverride)
}

func TestQualityGovernor_StaleFallbackDropped(t *testing.T) {
	h := newGovernorHarness(t, 10*time.Millisecond)

	h.sample(domain.QualityPoor)

	// The session ends before the debounce fires.
	h.sess.State = domain.CallStateEnded
	h.drainOne(t)
	assert.False(t, h.sess.NetworkMuteOverride)
	assert.Empty(t, h.media.cameraCalls())
}

func TestQualityGovernor_NotifiesObserversOnOverrideChanges(t *testing.T) {
	h := newGovernorHarness(t, 10*time.Millisecond)

	// Tier downgrades alone do not mutate the session: no notification.
	h.sample(domain.QualityPoor)
	assert.Equal(t, 0, h.notified)

	// Fallback engaging flips the override; observers must hear about it.
	h.drainOne(t)
	require.True(t, h.sess.NetworkMuteOverride)
	assert.Equal(t, 1, h.notified)

	// So must the recovery clearing it.
	h.sample(domain.QualityGood)
	assert.False(t, h.sess.NetworkMuteOverride)
	assert.Equal(t, 2, h.notified)
}

func TestQualityGovernor_ResetClearsState(t *testing.T) {
	h := newGovernorHarness(t, time.Hour)

	h.sample(domain.QualityPoor)
	h.gov.Reset()

	// After reset a new session starts at the high tier again.
	h.sample(domain.QualityPoor)
	assert.Equal(t, []domain.VideoTier{domain.VideoTierLow, domain.VideoTierLow},
		h.media.restartCalls())
}
