package domain

import (
	"time"
)

type RoomID string
type CallID string
type PushAddress string

// CallState is the lifecycle state of a call session. Values are stable
// because they are exposed to UIs and logs.
type CallState string

const (
	CallStateIdle         CallState = "idle"
	CallStateInitiating   CallState = "initiating"
	CallStateRinging      CallState = "ringing"
	CallStateConnecting   CallState = "connecting"
	CallStateConnected    CallState = "connected"
	CallStateReconnecting CallState = "reconnecting"
	CallStateEnded        CallState = "ended"
)

// Role differentiates the two sides of the shared state machine. Fixed for
// the lifetime of a session.
type Role string

const (
	RoleCaller Role = "caller"
	RoleCallee Role = "callee"
)

// EndReason records why a session reached CallStateEnded.
type EndReason string

const (
	EndReasonHangup           EndReason = "hangup"
	EndReasonCancelled        EndReason = "cancelled"
	EndReasonRejected         EndReason = "rejected"
	EndReasonNoAnswer         EndReason = "no_answer"
	EndReasonPeerLeft         EndReason = "peer_left"
	EndReasonDisconnected     EndReason = "disconnected"
	EndReasonCredentialFailed EndReason = "credential_failed"
	EndReasonConnectFailed    EndReason = "connect_failed"
	EndReasonPermissionDenied EndReason = "permission_denied"
)

// Participant describes one party of a call.
type Participant struct {
	ID      string
	Name    string
	Avatar  string
	Address PushAddress
}

// MuteState is local user intent for the microphone and camera. It is never
// written by the quality governor.
type MuteState struct {
	MicrophoneMuted bool
	CameraMuted     bool
}

// CallSession is the single live call. At most one instance exists per
// client; it is owned exclusively by the call service event loop and exposed
// to observers only as CallSnapshot copies.
type CallSession struct {
	Epoch       uint64
	Room        RoomID
	Role        Role
	State       CallState
	LocalParty  Participant
	RemoteParty Participant

	StartedAt   time.Time
	ConnectedAt time.Time

	Mute MuteState
	// NetworkMuteOverride is true while the camera is muted by the quality
	// governor rather than the user. It overlays, never replaces, Mute.
	NetworkMuteOverride bool

	Reason EndReason
}

// Duration is the connected time of the session so far; zero if the call
// never connected.
func (s *CallSession) Duration(now time.Time) time.Duration {
	if s.ConnectedAt.IsZero() {
		return 0
	}
	return now.Sub(s.ConnectedAt)
}

// Active reports whether the session still occupies the single call slot.
func (s *CallSession) Active() bool {
	return s != nil && s.State != CallStateIdle
}

// CallSnapshot is an immutable copy of session state handed to subscribers.
type CallSnapshot struct {
	Epoch       uint64
	Room        RoomID
	Role        Role
	State       CallState
	RemoteParty Participant
	Mute        MuteState
	NetworkMute bool
	ConnectedAt time.Time
	Reason      EndReason
}

// Snapshot copies the observable parts of the session.
func (s *CallSession) Snapshot() CallSnapshot {
	return CallSnapshot{
		Epoch:       s.Epoch,
		Room:        s.Room,
		Role:        s.Role,
		State:       s.State,
		RemoteParty: s.RemoteParty,
		Mute:        s.Mute,
		NetworkMute: s.NetworkMuteOverride,
		ConnectedAt: s.ConnectedAt,
		Reason:      s.Reason,
	}
}
