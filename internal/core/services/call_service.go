package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"peercall/internal/core/domain"
	"peercall/internal/core/ports"
	"peercall/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CallMetrics receives call lifecycle measurements. Implemented by the
// prometheus collector; a no-op is used when monitoring is disabled.
type CallMetrics interface {
	CallStarted(role domain.Role)
	CallEnded(outcome domain.CallOutcome, reason domain.EndReason, duration time.Duration)
	SignalSent(kind domain.SignalKind)
	SignalIgnored(kind domain.SignalKind)
	GovernorAction(action string)
}

type nopMetrics struct{}

func (nopMetrics) CallStarted(domain.Role)                                       {}
func (nopMetrics) CallEnded(domain.CallOutcome, domain.EndReason, time.Duration) {}
func (nopMetrics) SignalSent(domain.SignalKind)                                  {}
func (nopMetrics) SignalIgnored(domain.SignalKind)                               {}
func (nopMetrics) GovernorAction(string)                                         {}

// Options configures the call service.
type Options struct {
	// MediaEndpoint is the room service URL handed to the media adapter.
	MediaEndpoint string
	// Local is this client's own participant descriptor.
	Local domain.Participant
	// RingTimeout bounds how long either side rings before the call is
	// treated as unanswered.
	RingTimeout time.Duration
	// EndedGrace is how long a session stays in the ended state before it
	// resets to idle, so a terminal indication can be shown.
	EndedGrace time.Duration
	// GovernorDebounce is the sustained-poor delay before the audio-only
	// fallback engages.
	GovernorDebounce time.Duration
}

func (o *Options) withDefaults() {
	if o.RingTimeout <= 0 {
		o.RingTimeout = 40 * time.Second
	}
	if o.EndedGrace <= 0 {
		o.EndedGrace = time.Second
	}
	if o.GovernorDebounce <= 0 {
		o.GovernorDebounce = 10 * time.Second
	}
}

type command struct {
	fn    func(ctx context.Context) error
	reply chan error
}

// CallService is the call session state machine. It owns the single live
// CallSession and is the only component allowed to command the media session
// and the signal channel. All events (user intents, adapter events, inbound
// signals, timer firings and async completions) are funneled into one
// event-loop goroutine; each is processed to completion before the next.
type CallService struct {
	media   ports.MediaSession
	signals ports.SignalChannel
	creds   ports.CredentialAuthority
	history ports.HistoryRepository
	ringer  ports.RingIndicator
	metrics CallMetrics
	logger  *zap.SugaredLogger
	opts    Options

	commands chan command
	async    chan func(ctx context.Context)

	// Loop-owned state. Touched only from Run's goroutine.
	session   *domain.CallSession
	epoch     uint64
	joinCred  *domain.MediaJoinCredential
	ringTimer *time.Timer
	governor  *QualityGovernor

	watchMu  sync.Mutex
	watchers []chan domain.CallSnapshot
	lastSnap domain.CallSnapshot
}

// NewCallService wires the state machine to its collaborators. Run must be
// started before any command is issued.
func NewCallService(
	media ports.MediaSession,
	signals ports.SignalChannel,
	creds ports.CredentialAuthority,
	history ports.HistoryRepository,
	ringer ports.RingIndicator,
	metrics CallMetrics,
	logger *zap.SugaredLogger,
	opts Options,
) *CallService {
	opts.withDefaults()
	if ringer == nil {
		ringer = ports.NopRingIndicator{}
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	s := &CallService{
		media:    media,
		signals:  signals,
		creds:    creds,
		history:  history,
		ringer:   ringer,
		metrics:  metrics,
		logger:   logger,
		opts:     opts,
		commands: make(chan command, 16),
		async:    make(chan func(ctx context.Context), 64),
		lastSnap: domain.CallSnapshot{State: domain.CallStateIdle},
	}
	s.governor = NewQualityGovernor(media, metrics, logger, GovernorConfig{
		DebounceDelay: opts.GovernorDebounce,
	}, s.post, s.publish)
	return s
}

// Run drives the event loop until ctx is cancelled. The machine is not
// reentrant: no handler blocks waiting on another event.
func (s *CallService) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.teardown(ctx)
			return ctx.Err()
		case cmd := <-s.commands:
			cmd.reply <- cmd.fn(ctx)
		case ev, ok := <-s.media.Events():
			if !ok {
				s.teardown(ctx)
				return nil
			}
			s.handleMediaEvent(ctx, ev)
		case msg, ok := <-s.signals.Signals():
			if !ok {
				s.teardown(ctx)
				return nil
			}
			s.handleSignal(ctx, msg)
		case fn := <-s.async:
			fn(ctx)
		}
	}
}

// do posts a command into the loop and waits for its result.
func (s *CallService) do(ctx context.Context, fn func(ctx context.Context) error) error {
	cmd := command{fn: fn, reply: make(chan error, 1)}
	select {
	case s.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post schedules fn onto the loop from any goroutine.
func (s *CallService) post(fn func(ctx context.Context)) {
	s.async <- fn
}

// later schedules fn onto the loop, dropped unless the session that existed
// when the async work started is still the live one. This is the stale-
// continuation guard: cancellation is expressed by the session moving on,
// not by an explicit token.
func (s *CallService) later(epoch uint64, fn func(ctx context.Context)) {
	s.post(func(ctx context.Context) {
		if s.session == nil || s.session.Epoch != epoch {
			return
		}
		fn(ctx)
	})
}

// Initiate starts an outgoing call to the contact.
func (s *CallService) Initiate(ctx context.Context, contact domain.Contact) error {
	return s.do(ctx, func(ctx context.Context) error {
		if s.session.Active() {
			return domain.ErrCallInProgress
		}
		s.epoch++
		s.session = &domain.CallSession{
			Epoch:      s.epoch,
			Room:       domain.RoomID(utils.GenerateRoomID()),
			Role:       domain.RoleCaller,
			State:      domain.CallStateInitiating,
			LocalParty: s.opts.Local,
			RemoteParty: domain.Participant{
				ID:      contact.ID,
				Name:    contact.Name,
				Avatar:  contact.Avatar,
				Address: contact.Address,
			},
			StartedAt: time.Now(),
		}
		s.joinCred = nil
		s.metrics.CallStarted(domain.RoleCaller)
		s.publish()

		epoch := s.session.Epoch
		room := s.session.Room
		target := contact.Address
		go s.prepareOutgoing(epoch, room, target)
		return nil
	})
}

// prepareOutgoing fetches the caller credential and rings the far side. Runs
// off-loop; all effects re-enter through later().
func (s *CallService) prepareOutgoing(epoch uint64, room domain.RoomID, target domain.PushAddress) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	cred, err := s.creds.FetchJoinCredential(ctx, room, s.opts.Local.ID)
	if err != nil {
		s.logger.Errorw("join credential fetch failed", "room", room, "error", err)
		s.later(epoch, func(ctx context.Context) {
			if s.session.State != domain.CallStateInitiating {
				return
			}
			s.endSession(ctx, domain.EndReasonCredentialFailed)
		})
		return
	}

	if target != "" {
		payload, _ := json.Marshal(domain.IncomingCallPayload{
			CallerName:   s.opts.Local.Name,
			CallerAvatar: s.opts.Local.Avatar,
		})
		msg := domain.SignalMessage{
			Kind:    domain.SignalIncomingCall,
			Room:    room,
			Target:  target,
			ReplyTo: s.signals.Address(),
			Payload: payload,
			SentAt:  time.Now(),
		}
		// Best-effort: a failed push does not end the session; the ring
		// timeout bounds the attempt either way.
		if err := s.signals.Send(ctx, msg); err != nil {
			s.logger.Warnw("incoming-call signal delivery failed",
				"room", room, "target", target, "error", err)
		} else {
			s.metrics.SignalSent(domain.SignalIncomingCall)
		}
	}

	s.later(epoch, func(ctx context.Context) {
		if s.session.State != domain.CallStateInitiating {
			return
		}
		s.joinCred = cred
		s.transition(domain.CallStateRinging)
		s.startRingTimer(epoch)
	})
}

// Accept answers the ringing incoming call.
func (s *CallService) Accept(ctx context.Context) error {
	return s.do(ctx, func(ctx context.Context) error {
		if !s.session.Active() || s.session.Role != domain.RoleCallee ||
			s.session.State != domain.CallStateRinging {
			return domain.ErrNoIncomingCall
		}
		s.ringer.StopRinging()
		s.stopRingTimer()
		s.transition(domain.CallStateConnecting)

		epoch := s.session.Epoch
		room := s.session.Room
		replyTo := s.session.RemoteParty.Address
		cred := s.joinCred
		go s.joinAccepted(epoch, room, replyTo, cred)
		return nil
	})
}

// joinAccepted answers the caller and connects the callee to the room. Runs
// off-loop.
func (s *CallService) joinAccepted(epoch uint64, room domain.RoomID, caller domain.PushAddress, cred *domain.MediaJoinCredential) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if cred == nil || cred.Expired(time.Now()) {
		fetched, err := s.creds.FetchJoinCredential(ctx, room, s.opts.Local.ID)
		if err != nil {
			s.logger.Errorw("callee credential fetch failed", "room", room, "error", err)
			s.later(epoch, func(ctx context.Context) {
				if s.session.State != domain.CallStateConnecting {
					return
				}
				s.endSession(ctx, domain.EndReasonCredentialFailed)
			})
			return
		}
		cred = fetched
	}

	if caller != "" {
		msg := domain.SignalMessage{
			Kind:    domain.SignalCallAccepted,
			Room:    room,
			Target:  caller,
			ReplyTo: s.signals.Address(),
			SentAt:  time.Now(),
		}
		if err := s.signals.Send(ctx, msg); err != nil {
			s.logger.Warnw("call-accepted signal delivery failed", "room", room, "error", err)
		} else {
			s.metrics.SignalSent(domain.SignalCallAccepted)
		}
	}

	s.connectMedia(epoch, cred)
}

// connectMedia performs the media room join and posts the completion back
// into the loop. A completion that finds the session gone or no longer
// connecting tears the room connection down again rather than resurrecting a
// finished call.
func (s *CallService) connectMedia(epoch uint64, cred *domain.MediaJoinCredential) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := s.media.Connect(ctx, cred, s.opts.MediaEndpoint)
	s.post(func(ctx context.Context) {
		live := s.session != nil && s.session.Epoch == epoch &&
			s.session.State == domain.CallStateConnecting
		if err != nil {
			if live {
				reason := domain.EndReasonConnectFailed
				if errors.Is(err, domain.ErrPermissionDenied) {
					reason = domain.EndReasonPermissionDenied
				}
				s.logger.Errorw("media connect failed", "error", err)
				s.endSession(ctx, reason)
			}
			return
		}
		if !live {
			// The call was cancelled or ended while the connect was in
			// flight; do not leave a dangling room connection.
			if derr := s.media.Disconnect(ctx); derr != nil {
				s.logger.Warnw("post-cancel media disconnect failed", "error", derr)
			}
		}
	})
}

// Reject declines the ringing incoming call.
func (s *CallService) Reject(ctx context.Context) error {
	return s.do(ctx, func(ctx context.Context) error {
		if !s.session.Active() || s.session.Role != domain.RoleCallee ||
			s.session.State != domain.CallStateRinging {
			return domain.ErrNoIncomingCall
		}
		s.sendSignalAsync(domain.SignalCallRejected, s.session.RemoteParty.Address)
		s.endSession(ctx, domain.EndReasonRejected)
		return nil
	})
}

// End hangs up the current call in whatever phase it is.
func (s *CallService) End(ctx context.Context) error {
	return s.do(ctx, func(ctx context.Context) error {
		if !s.session.Active() || s.session.State == domain.CallStateEnded {
			return domain.ErrNoActiveCall
		}
		kind := domain.SignalCallEnded
		reason := domain.EndReasonHangup
		switch {
		case s.session.Role == domain.RoleCaller &&
			(s.session.State == domain.CallStateInitiating || s.session.State == domain.CallStateRinging):
			kind = domain.SignalCallCancelled
			reason = domain.EndReasonCancelled
		case s.session.Role == domain.RoleCallee && s.session.State == domain.CallStateRinging:
			kind = domain.SignalCallRejected
			reason = domain.EndReasonRejected
		}
		s.sendSignalAsync(kind, s.session.RemoteParty.Address)
		s.endSession(ctx, reason)
		return nil
	})
}

// ToggleMicrophone flips the user's microphone mute intent.
func (s *CallService) ToggleMicrophone(ctx context.Context) error {
	return s.do(ctx, func(ctx context.Context) error {
		if !s.session.Active() {
			return domain.ErrNoActiveCall
		}
		s.session.Mute.MicrophoneMuted = !s.session.Mute.MicrophoneMuted
		enabled := !s.session.Mute.MicrophoneMuted
		if err := s.media.SetMicrophoneEnabled(ctx, enabled); err != nil {
			s.logger.Warnw("microphone toggle failed", "enabled", enabled, "error", err)
		}
		s.publish()
		return nil
	})
}

// ToggleCamera flips the user's camera mute intent. An explicit toggle
// always wins over the governor: any active network override is absorbed.
func (s *CallService) ToggleCamera(ctx context.Context) error {
	return s.do(ctx, func(ctx context.Context) error {
		if !s.session.Active() {
			return domain.ErrNoActiveCall
		}
		s.session.Mute.CameraMuted = !s.session.Mute.CameraMuted
		s.session.NetworkMuteOverride = false
		enabled := !s.session.Mute.CameraMuted
		if err := s.media.SetCameraEnabled(ctx, enabled); err != nil {
			s.logger.Warnw("camera toggle failed", "enabled", enabled, "error", err)
		}
		s.publish()
		return nil
	})
}

// SwitchCamera flips between capture devices.
func (s *CallService) SwitchCamera(ctx context.Context) error {
	return s.do(ctx, func(ctx context.Context) error {
		if !s.session.Active() {
			return domain.ErrNoActiveCall
		}
		return s.media.SwitchCamera(ctx)
	})
}

// handleSignal applies one inbound signal. Every signal is untrusted and
// unordered relative to local state: the room identifier is validated
// against the live session before anything is acted on, and a session that
// has already ended is never re-entered.
func (s *CallService) handleSignal(ctx context.Context, msg domain.SignalMessage) {
	if msg.Kind == domain.SignalIncomingCall {
		s.handleIncomingCall(msg)
		return
	}
	if !s.session.Active() || s.session.State == domain.CallStateEnded ||
		s.session.Room != msg.Room {
		s.logger.Debugw("stale signal ignored",
			"kind", msg.Kind, "room", msg.Room)
		s.metrics.SignalIgnored(msg.Kind)
		return
	}

	switch msg.Kind {
	case domain.SignalCallAccepted:
		if s.session.Role != domain.RoleCaller || s.session.State != domain.CallStateRinging {
			s.metrics.SignalIgnored(msg.Kind)
			return
		}
		s.stopRingTimer()
		s.transition(domain.CallStateConnecting)
		epoch := s.session.Epoch
		cred := s.joinCred
		go s.connectMedia(epoch, cred)

	case domain.SignalCallRejected:
		if s.session.State != domain.CallStateRinging && s.session.State != domain.CallStateInitiating {
			s.metrics.SignalIgnored(msg.Kind)
			return
		}
		s.endSession(ctx, domain.EndReasonRejected)

	case domain.SignalCallCancelled:
		if s.session.Role != domain.RoleCallee ||
			(s.session.State != domain.CallStateRinging && s.session.State != domain.CallStateConnecting) {
			s.metrics.SignalIgnored(msg.Kind)
			return
		}
		s.endSession(ctx, domain.EndReasonCancelled)

	case domain.SignalCallEnded:
		s.endSession(ctx, domain.EndReasonHangup)
	}
}

// handleIncomingCall admits a new callee session, or drops the signal when a
// call is already live (single active session invariant).
func (s *CallService) handleIncomingCall(msg domain.SignalMessage) {
	if s.session.Active() {
		s.logger.Infow("incoming call while busy, ignored",
			"room", msg.Room, "current", s.session.Room)
		s.metrics.SignalIgnored(msg.Kind)
		return
	}
	payload, err := msg.IncomingCall()
	if err != nil {
		s.logger.Warnw("bad incoming-call payload", "room", msg.Room, "error", err)
		return
	}

	s.epoch++
	s.session = &domain.CallSession{
		Epoch:      s.epoch,
		Room:       msg.Room,
		Role:       domain.RoleCallee,
		State:      domain.CallStateRinging,
		LocalParty: s.opts.Local,
		RemoteParty: domain.Participant{
			Name:    payload.CallerName,
			Avatar:  payload.CallerAvatar,
			Address: msg.ReplyTo,
		},
		StartedAt: time.Now(),
	}
	s.joinCred = nil
	if payload.JoinToken != "" {
		s.joinCred = &domain.MediaJoinCredential{
			Token:    payload.JoinToken,
			Room:     msg.Room,
			Identity: s.opts.Local.ID,
		}
	}
	s.metrics.CallStarted(domain.RoleCallee)
	s.ringer.StartRinging(s.session.RemoteParty)
	s.startRingTimer(s.session.Epoch)
	s.publish()
}

// handleMediaEvent reflects adapter status into the session. Reconnection
// within a call is delegated to the adapter's own retry policy; the machine
// only mirrors it.
func (s *CallService) handleMediaEvent(ctx context.Context, ev ports.MediaEvent) {
	if !s.session.Active() {
		return
	}
	switch ev.Kind {
	case ports.MediaConnected, ports.MediaReconnected:
		if s.session.State == domain.CallStateConnecting ||
			s.session.State == domain.CallStateReconnecting {
			if s.session.ConnectedAt.IsZero() {
				s.session.ConnectedAt = time.Now()
			}
			s.transition(domain.CallStateConnected)
			s.applyMuteIntent(ctx)
		}
	case ports.MediaReconnecting:
		if s.session.State == domain.CallStateConnected {
			s.transition(domain.CallStateReconnecting)
		}
	case ports.MediaDisconnected:
		if s.session.State != domain.CallStateEnded {
			s.endSession(ctx, domain.EndReasonDisconnected)
		}
	case ports.MediaPeerLeft:
		if s.session.State == domain.CallStateConnected ||
			s.session.State == domain.CallStateReconnecting {
			s.endSession(ctx, domain.EndReasonPeerLeft)
		}
	case ports.MediaPeerJoined:
		s.logger.Infow("peer joined room", "room", s.session.Room, "peer", ev.Peer)
	case ports.MediaQualityChanged:
		if s.session.State == domain.CallStateConnected {
			s.governor.HandleSample(ctx, s.session, ev.Quality)
		}
	case ports.MediaTrackReceived, ports.MediaTrackEnded:
		s.logger.Debugw("remote track event", "kind", ev.Kind, "track", ev.Track)
	}
}

// applyMuteIntent re-asserts user mute state after a (re)connect so that a
// restored transport session matches what the user chose, not what the
// transport remembers.
func (s *CallService) applyMuteIntent(ctx context.Context) {
	if s.session.Mute.MicrophoneMuted {
		if err := s.media.SetMicrophoneEnabled(ctx, false); err != nil {
			s.logger.Warnw("microphone intent restore failed", "error", err)
		}
	}
	if s.session.Mute.CameraMuted {
		if err := s.media.SetCameraEnabled(ctx, false); err != nil {
			s.logger.Warnw("camera intent restore failed", "error", err)
		}
	}
}

// sendSignalAsync fires a payload-less lifecycle signal at the remote party
// without blocking the loop. Delivery failures are logged only: the far
// end's reaction can never be assumed anyway.
func (s *CallService) sendSignalAsync(kind domain.SignalKind, target domain.PushAddress) {
	if target == "" {
		return
	}
	msg := domain.SignalMessage{
		Kind:    kind,
		Room:    s.session.Room,
		Target:  target,
		ReplyTo: s.signals.Address(),
		SentAt:  time.Now(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.signals.Send(ctx, msg); err != nil {
			s.logger.Warnw("signal delivery failed", "kind", kind, "error", err)
			return
		}
		s.metrics.SignalSent(kind)
	}()
}

// endSession performs the terminal bookkeeping exactly once, even when two
// triggers race (a user hangup and a peer-left event land as two loop
// events; the second finds the session already ended and returns here).
func (s *CallService) endSession(ctx context.Context, reason domain.EndReason) {
	if !s.session.Active() || s.session.State == domain.CallStateEnded {
		return
	}
	sess := s.session
	duration := sess.Duration(time.Now())

	s.stopRingTimer()
	s.ringer.StopRinging()
	s.governor.Reset()
	s.joinCred = nil

	sess.Reason = reason
	sess.State = domain.CallStateEnded
	s.publish()

	entry := s.historyEntry(sess, duration)
	go func() {
		hctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.history.Save(hctx, entry); err != nil {
			s.logger.Errorw("call history save failed", "room", sess.Room, "error", err)
		}
	}()

	go func() {
		dctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.media.Disconnect(dctx); err != nil {
			s.logger.Warnw("media disconnect failed", "error", err)
		}
	}()

	s.metrics.CallEnded(entry.Type, reason, duration)
	s.logger.Infow("call ended",
		"room", sess.Room, "role", sess.Role, "reason", reason,
		"duration", duration.Round(time.Second))

	// Hold the terminal state briefly so the UI can show it, then clear.
	epoch := sess.Epoch
	time.AfterFunc(s.opts.EndedGrace, func() {
		s.later(epoch, func(ctx context.Context) {
			s.session = nil
			s.publish()
		})
	})
}

// historyEntry classifies the finished session for the history sink.
func (s *CallService) historyEntry(sess *domain.CallSession, duration time.Duration) *domain.CallHistoryEntry {
	outcome := domain.OutcomeOutgoing
	if sess.Role == domain.RoleCallee {
		if sess.ConnectedAt.IsZero() {
			outcome = domain.OutcomeMissed
		} else {
			outcome = domain.OutcomeIncoming
		}
	}
	return &domain.CallHistoryEntry{
		ID:            uuid.New().String(),
		ContactID:     sess.RemoteParty.ID,
		ContactName:   sess.RemoteParty.Name,
		ContactAvatar: sess.RemoteParty.Avatar,
		Type:          outcome,
		Duration:      int(duration.Seconds()),
		Timestamp:     time.Now(),
		WasVideoCall:  true,
	}
}

func (s *CallService) startRingTimer(epoch uint64) {
	s.stopRingTimer()
	s.ringTimer = time.AfterFunc(s.opts.RingTimeout, func() {
		s.later(epoch, func(ctx context.Context) {
			if s.session.State != domain.CallStateRinging {
				return
			}
			s.logger.Infow("ring timeout", "room", s.session.Room, "role", s.session.Role)
			if s.session.Role == domain.RoleCaller {
				s.sendSignalAsync(domain.SignalCallCancelled, s.session.RemoteParty.Address)
			}
			s.endSession(ctx, domain.EndReasonNoAnswer)
		})
	})
}

func (s *CallService) stopRingTimer() {
	if s.ringTimer != nil {
		s.ringTimer.Stop()
		s.ringTimer = nil
	}
}

func (s *CallService) transition(state domain.CallState) {
	s.session.State = state
	s.publish()
}

func (s *CallService) teardown(ctx context.Context) {
	if s.session.Active() && s.session.State != domain.CallStateEnded {
		s.endSession(ctx, domain.EndReasonDisconnected)
	}
}

// Subscribe returns a channel of session snapshots. Slow subscribers miss
// intermediate snapshots rather than stalling the loop.
func (s *CallService) Subscribe() <-chan domain.CallSnapshot {
	ch := make(chan domain.CallSnapshot, 16)
	s.watchMu.Lock()
	s.watchers = append(s.watchers, ch)
	ch <- s.lastSnap
	s.watchMu.Unlock()
	return ch
}

// History lists recent call records, newest first.
func (s *CallService) History(ctx context.Context, limit int) ([]*domain.CallHistoryEntry, error) {
	return s.history.List(ctx, limit)
}

// State returns the most recently published snapshot.
func (s *CallService) State() domain.CallSnapshot {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	return s.lastSnap
}

func (s *CallService) publish() {
	snap := domain.CallSnapshot{State: domain.CallStateIdle}
	if s.session != nil {
		snap = s.session.Snapshot()
	}
	s.watchMu.Lock()
	s.lastSnap = snap
	for _, ch := range s.watchers {
		select {
		case ch <- snap:
		default:
		}
	}
	s.watchMu.Unlock()
}
