package services

import (
	"context"
	"time"

	"peercall/internal/core/domain"
	"peercall/internal/core/ports"

	"go.uber.org/zap"
)

// GovernorConfig tunes the network quality governor.
type GovernorConfig struct {
	// DebounceDelay is how long the link must stay poor before the camera
	// is muted as the audio-only fallback.
	DebounceDelay time.Duration
}

// QualityGovernor translates connection quality samples into media
// adaptations: an immediate video tier downgrade on the first poor sample,
// and a debounced audio-only fallback when poor quality persists. It only
// flips NetworkMuteOverride and never touches the user's MuteState, so a
// recovery can restore exactly what the governor took away and nothing else.
//
// All methods run on the call service event loop; the debounce timer re-
// enters the loop through the post func. notify fires after any session
// mutation so the service can publish a fresh snapshot to observers.
type QualityGovernor struct {
	media   ports.MediaSession
	metrics CallMetrics
	logger  *zap.SugaredLogger
	cfg     GovernorConfig
	post    func(fn func(ctx context.Context))
	notify  func()

	tier     domain.VideoTier
	debounce *time.Timer
}

func NewQualityGovernor(
	media ports.MediaSession,
	metrics CallMetrics,
	logger *zap.SugaredLogger,
	cfg GovernorConfig,
	post func(fn func(ctx context.Context)),
	notify func(),
) *QualityGovernor {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 10 * time.Second
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if notify == nil {
		notify = func() {}
	}
	return &QualityGovernor{
		media:   media,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
		post:    post,
		notify:  notify,
		tier:    domain.VideoTierHigh,
	}
}

// HandleSample applies one quality sample to the live session.
func (g *QualityGovernor) HandleSample(ctx context.Context, sess *domain.CallSession, level domain.QualityLevel) {
	switch level {
	case domain.QualityPoor:
		g.degrade(ctx, sess)
	case domain.QualityGood, domain.QualityExcellent:
		g.recover(ctx, sess)
	}
}

// degrade reacts to a poor sample. The tier downgrade is one-shot and the
// fallback timer is single: repeated poor samples while already degraded do
// nothing, so a flapping link cannot restart video tracks in a loop.
func (g *QualityGovernor) degrade(ctx context.Context, sess *domain.CallSession) {
	if g.tier != domain.VideoTierLow {
		g.tier = domain.VideoTierLow
		g.logger.Infow("network poor, lowering video tier", "room", sess.Room)
		g.metrics.GovernorAction("tier_low")
		if err := g.media.RestartVideoTrack(ctx, domain.VideoTierLow); err != nil {
			g.logger.Warnw("video tier downgrade failed", "error", err)
		}
	}
	if g.debounce != nil || sess.NetworkMuteOverride || sess.Mute.CameraMuted {
		return
	}
	epoch := sess.Epoch
	g.debounce = time.AfterFunc(g.cfg.DebounceDelay, func() {
		g.post(func(ctx context.Context) {
			g.fallbackToAudio(ctx, sess, epoch)
		})
	})
}

// fallbackToAudio fires when poor quality survived the debounce window.
func (g *QualityGovernor) fallbackToAudio(ctx context.Context, sess *domain.CallSession, epoch uint64) {
	g.debounce = nil
	if !sess.Active() || sess.Epoch != epoch || sess.State == domain.CallStateEnded {
		return
	}
	if g.tier != domain.VideoTierLow || sess.NetworkMuteOverride || sess.Mute.CameraMuted {
		return
	}
	sess.NetworkMuteOverride = true
	g.logger.Infow("network poor sustained, falling back to audio only", "room", sess.Room)
	g.metrics.GovernorAction("audio_only")
	if err := g.media.SetCameraEnabled(ctx, false); err != nil {
		g.logger.Warnw("audio-only fallback camera mute failed", "error", err)
	}
	g.notify()
}

// recover reacts to a good sample: the pending fallback is abandoned, a
// governor-muted camera comes back, and the tier is restored. A camera the
// user muted themselves stays muted.
func (g *QualityGovernor) recover(ctx context.Context, sess *domain.CallSession) {
	g.stopDebounce()
	if sess.NetworkMuteOverride {
		sess.NetworkMuteOverride = false
		if !sess.Mute.CameraMuted {
			g.logger.Infow("network recovered, restoring camera", "room", sess.Room)
			g.metrics.GovernorAction("camera_restored")
			if err := g.media.SetCameraEnabled(ctx, true); err != nil {
				g.logger.Warnw("camera restore failed", "error", err)
			}
		}
		g.notify()
	}
	if g.tier != domain.VideoTierHigh {
		g.tier = domain.VideoTierHigh
		g.metrics.GovernorAction("tier_high")
		if err := g.media.RestartVideoTrack(ctx, domain.VideoTierHigh); err != nil {
			g.logger.Warnw("video tier restore failed", "error", err)
		}
	}
}

// Reset clears governor state at session teardown. Media cleanup belongs to
// the session, not the governor.
func (g *QualityGovernor) Reset() {
	g.stopDebounce()
	g.tier = domain.VideoTierHigh
}

func (g *QualityGovernor) stopDebounce() {
	if g.debounce != nil {
		g.debounce.Stop()
		g.debounce = nil
	}
}
