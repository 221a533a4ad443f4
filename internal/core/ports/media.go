package ports

import (
	"context"

	"peercall/internal/core/domain"
)

// MediaEventKind enumerates events the media transport can surface. The core
// tolerates any ordering relative to its own commands.
type MediaEventKind string

const (
	MediaConnected      MediaEventKind = "connected"
	MediaDisconnected   MediaEventKind = "disconnected"
	MediaReconnecting   MediaEventKind = "reconnecting"
	MediaReconnected    MediaEventKind = "reconnected"
	MediaPeerJoined     MediaEventKind = "peer_joined"
	MediaPeerLeft       MediaEventKind = "peer_left"
	MediaQualityChanged MediaEventKind = "quality_changed"
	MediaTrackReceived  MediaEventKind = "track_received"
	MediaTrackEnded     MediaEventKind = "track_ended"
)

// TrackKind identifies a media track type in track events.
type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// MediaEvent is one asynchronous report from the media session.
type MediaEvent struct {
	Kind    MediaEventKind
	Quality domain.QualityLevel // set for MediaQualityChanged
	Track   TrackKind           // set for track events
	Peer    string              // remote identity for peer events
}

// MediaSession wraps the external media transport for exactly one room at a
// time. It holds no call-semantic state: connect/disconnect sequencing and
// retry reflection are the state machine's job. All operations may complete
// asynchronously; outcomes arrive on Events.
type MediaSession interface {
	Connect(ctx context.Context, cred *domain.MediaJoinCredential, endpoint string) error
	Disconnect(ctx context.Context) error

	SetMicrophoneEnabled(ctx context.Context, enabled bool) error
	SetCameraEnabled(ctx context.Context, enabled bool) error
	SwitchCamera(ctx context.Context) error
	RestartVideoTrack(ctx context.Context, tier domain.VideoTier) error

	Events() <-chan MediaEvent
}
