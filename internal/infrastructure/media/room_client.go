package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"peercall/internal/core/domain"
	"peercall/internal/core/ports"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// FrameSource produces the RTP packets of one local capture stream. The
// camera and microphone bindings of the host platform implement this.
type FrameSource interface {
	// ReadRTP blocks until the next packet. io.EOF ends the pump.
	ReadRTP() (*rtp.Packet, error)
	// SetProfile retargets capture to the given tier settings.
	SetProfile(settings domain.TierSettings) error
	Close() error
}

// SourceProvider acquires the local capture sources when a call connects.
// Return domain.ErrPermissionDenied (wrapped is fine) when the user refuses
// device access.
type SourceProvider func(ctx context.Context) (audio FrameSource, video FrameSource, err error)

// Config tunes the room client.
type Config struct {
	ICEServers []webrtc.ICEServer
	Sources    SourceProvider
	// QualityInterval is how often sender reports are folded into one
	// quality sample.
	QualityInterval time.Duration
}

type joinRequest struct {
	Offer string `json:"offer"`
}

type joinResponse struct {
	Answer string `json:"answer"`
}

// roomEvent is one message on the room service's "events" data channel.
type roomEvent struct {
	Event    string `json:"event"`
	Identity string `json:"identity,omitempty"`
	Level    string `json:"level,omitempty"`
	Track    string `json:"track,omitempty"`
}

// RoomClient connects one participant to a media room over WebRTC with an
// HTTP offer/answer join. It implements ports.MediaSession: the call core
// commands it and observes it, nothing more.
type RoomClient struct {
	cfg    Config
	http   *http.Client
	logger *zap.SugaredLogger

	events chan ports.MediaEvent

	mu           sync.Mutex
	pc           *webrtc.PeerConnection
	audioSender  *webrtc.RTPSender
	videoSender  *webrtc.RTPSender
	audioTrack   *webrtc.TrackLocalStaticRTP
	videoTrack   *webrtc.TrackLocalStaticRTP
	audioSource  FrameSource
	videoSource  FrameSource
	pumpCancel   context.CancelFunc
	tier         domain.VideoTier
	wasConnected bool
}

func NewRoomClient(cfg Config, logger *zap.SugaredLogger) *RoomClient {
	if cfg.QualityInterval <= 0 {
		cfg.QualityInterval = 2 * time.Second
	}
	if len(cfg.ICEServers) == 0 {
		cfg.ICEServers = []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		}
	}
	return &RoomClient{
		cfg:    cfg,
		http:   &http.Client{Timeout: 15 * time.Second},
		logger: logger,
		events: make(chan ports.MediaEvent, 32),
		tier:   domain.VideoTierHigh,
	}
}

// Connect joins the room named in the credential. It returns once the join
// handshake is accepted; connection establishment continues asynchronously
// and surfaces as a MediaConnected event.
func (c *RoomClient) Connect(ctx context.Context, cred *domain.MediaJoinCredential, endpoint string) error {
	if cred == nil || cred.Token == "" {
		return fmt.Errorf("%w: missing join credential", domain.ErrConnectFailure)
	}

	c.mu.Lock()
	if c.pc != nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: already connected", domain.ErrConnectFailure)
	}
	c.mu.Unlock()

	var audioSrc, videoSrc FrameSource
	if c.cfg.Sources != nil {
		var err error
		audioSrc, videoSrc, err = c.cfg.Sources(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrPermissionDenied) {
				return err
			}
			return fmt.Errorf("%w: acquire capture sources: %v", domain.ErrConnectFailure, err)
		}
	}

	pc, err := c.newPeerConnection()
	if err != nil {
		closeSources(audioSrc, videoSrc)
		return fmt.Errorf("%w: %v", domain.ErrConnectFailure, err)
	}

	audioTrack, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", "peercall-audio",
	)
	if err != nil {
		pc.Close()
		closeSources(audioSrc, videoSrc)
		return fmt.Errorf("%w: %v", domain.ErrConnectFailure, err)
	}
	videoTrack, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video", "peercall-video",
	)
	if err != nil {
		pc.Close()
		closeSources(audioSrc, videoSrc)
		return fmt.Errorf("%w: %v", domain.ErrConnectFailure, err)
	}

	audioSender, err := pc.AddTrack(audioTrack)
	if err != nil {
		pc.Close()
		closeSources(audioSrc, videoSrc)
		return fmt.Errorf("%w: %v", domain.ErrConnectFailure, err)
	}
	videoSender, err := pc.AddTrack(videoTrack)
	if err != nil {
		pc.Close()
		closeSources(audioSrc, videoSrc)
		return fmt.Errorf("%w: %v", domain.ErrConnectFailure, err)
	}

	eventsDC, err := pc.CreateDataChannel("events", nil)
	if err != nil {
		pc.Close()
		closeSources(audioSrc, videoSrc)
		return fmt.Errorf("%w: %v", domain.ErrConnectFailure, err)
	}
	eventsDC.OnMessage(func(msg webrtc.DataChannelMessage) {
		c.handleRoomEvent(msg.Data)
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		kind := ports.TrackAudio
		if track.Kind() == webrtc.RTPCodecTypeVideo {
			kind = ports.TrackVideo
		}
		c.emit(ports.MediaEvent{Kind: ports.MediaTrackReceived, Track: kind})
		go c.drainRemoteTrack(track, kind)
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		c.handleICEState(state)
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		closeSources(audioSrc, videoSrc)
		return fmt.Errorf("%w: %v", domain.ErrConnectFailure, err)
	}
	// Gather before posting so the join body carries complete candidates.
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		closeSources(audioSrc, videoSrc)
		return fmt.Errorf("%w: %v", domain.ErrConnectFailure, err)
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		pc.Close()
		closeSources(audioSrc, videoSrc)
		return fmt.Errorf("%w: %v", domain.ErrConnectFailure, ctx.Err())
	}

	answer, err := c.join(ctx, endpoint, cred, pc.LocalDescription().SDP)
	if err != nil {
		pc.Close()
		closeSources(audioSrc, videoSrc)
		return err
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer,
	}); err != nil {
		pc.Close()
		closeSources(audioSrc, videoSrc)
		return fmt.Errorf("%w: %v", domain.ErrConnectFailure, err)
	}

	pumpCtx, pumpCancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.pc = pc
	c.audioSender = audioSender
	c.videoSender = videoSender
	c.audioTrack = audioTrack
	c.videoTrack = videoTrack
	c.audioSource = audioSrc
	c.videoSource = videoSrc
	c.pumpCancel = pumpCancel
	c.tier = domain.VideoTierHigh
	c.wasConnected = false
	c.mu.Unlock()

	if audioSrc != nil {
		go c.pump(pumpCtx, audioSrc, audioTrack)
	}
	if videoSrc != nil {
		go c.pump(pumpCtx, videoSrc, videoTrack)
	}
	go c.watchQuality(pumpCtx, videoSender)

	c.logger.Infow("joined media room", "room", cred.Room, "identity", cred.Identity)
	return nil
}

func (c *RoomClient) newPeerConnection() (*webrtc.PeerConnection, error) {
	config := webrtc.Configuration{
		ICEServers:   c.cfg.ICEServers,
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlanWithFallback,
	}
	api := webrtc.NewAPI(webrtc.WithSettingEngine(webrtc.SettingEngine{}))
	return api.NewPeerConnection(config)
}

// join posts the offer to the room service and returns its answer SDP.
func (c *RoomClient) join(ctx context.Context, endpoint string, cred *domain.MediaJoinCredential, offerSDP string) (string, error) {
	body, err := json.Marshal(joinRequest{Offer: offerSDP})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrConnectFailure, err)
	}

	url := fmt.Sprintf("%s/rtc/rooms/%s/join", endpoint, cred.Room)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrConnectFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cred.Token)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrConnectFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", fmt.Errorf("%w: room service returned %d", domain.ErrCredentialFailure, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: join returned %d: %s", domain.ErrConnectFailure, resp.StatusCode, raw)
	}

	var jr joinResponse
	if err := json.NewDecoder(resp.Body).Decode(&jr); err != nil {
		return "", fmt.Errorf("%w: malformed join response: %v", domain.ErrConnectFailure, err)
	}
	if jr.Answer == "" {
		return "", fmt.Errorf("%w: join response missing answer", domain.ErrConnectFailure)
	}
	return jr.Answer, nil
}

// Disconnect leaves the room and releases capture sources. Safe to call when
// not connected.
func (c *RoomClient) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	pc := c.pc
	cancel := c.pumpCancel
	audioSrc, videoSrc := c.audioSource, c.videoSource
	c.pc = nil
	c.audioSender = nil
	c.videoSender = nil
	c.audioTrack = nil
	c.videoTrack = nil
	c.audioSource = nil
	c.videoSource = nil
	c.pumpCancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	closeSources(audioSrc, videoSrc)
	if pc == nil {
		return nil
	}
	if err := pc.Close(); err != nil {
		return fmt.Errorf("close peer connection: %w", err)
	}
	return nil
}

// SetMicrophoneEnabled pauses or resumes audio publishing by swapping the
// sender's track; the capture source keeps running so resume is instant.
func (c *RoomClient) SetMicrophoneEnabled(ctx context.Context, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.audioSender == nil {
		return nil
	}
	if enabled {
		return c.audioSender.ReplaceTrack(c.audioTrack)
	}
	return c.audioSender.ReplaceTrack(nil)
}

// SetCameraEnabled pauses or resumes video publishing.
func (c *RoomClient) SetCameraEnabled(ctx context.Context, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.videoSender == nil {
		return nil
	}
	if enabled {
		return c.videoSender.ReplaceTrack(c.videoTrack)
	}
	return c.videoSender.ReplaceTrack(nil)
}

// SwitchCamera flips the capture device behind the video source. The RTP
// path is untouched; the source rebinds internally.
func (c *RoomClient) SwitchCamera(ctx context.Context) error {
	c.mu.Lock()
	src := c.videoSource
	tier := c.tier
	c.mu.Unlock()
	if src == nil {
		return nil
	}
	type switcher interface{ Switch() error }
	if sw, ok := src.(switcher); ok {
		if err := sw.Switch(); err != nil {
			return fmt.Errorf("switch camera: %w", err)
		}
		// Re-assert the active profile on the new device.
		return src.SetProfile(tier.Settings())
	}
	return nil
}

// RestartVideoTrack retargets video capture to the tier's settings.
func (c *RoomClient) RestartVideoTrack(ctx context.Context, tier domain.VideoTier) error {
	c.mu.Lock()
	src := c.videoSource
	c.tier = tier
	c.mu.Unlock()
	if src == nil {
		return nil
	}
	if err := src.SetProfile(tier.Settings()); err != nil {
		return fmt.Errorf("retarget video capture: %w", err)
	}
	c.logger.Infow("video tier applied", "tier", tier)
	return nil
}

func (c *RoomClient) Events() <-chan ports.MediaEvent {
	return c.events
}

// pump copies packets from a capture source into its local track until the
// source ends or the session closes.
func (c *RoomClient) pump(ctx context.Context, src FrameSource, track *webrtc.TrackLocalStaticRTP) {
	for {
		if ctx.Err() != nil {
			return
		}
		pkt, err := src.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				c.logger.Warnw("capture source failed", "error", err)
			}
			return
		}
		if err := track.WriteRTP(pkt); err != nil {
			if errors.Is(err, io.ErrClosedPipe) {
				return
			}
			c.logger.Debugw("track write failed", "error", err)
		}
	}
}

// drainRemoteTrack consumes a remote track so its buffers do not back up,
// and reports its end.
func (c *RoomClient) drainRemoteTrack(track *webrtc.TrackRemote, kind ports.TrackKind) {
	for {
		if _, _, err := track.ReadRTP(); err != nil {
			c.emit(ports.MediaEvent{Kind: ports.MediaTrackEnded, Track: kind})
			return
		}
	}
}

// watchQuality folds RTCP receiver reports on the video sender into coarse
// quality samples. Fraction lost drives the level; the governor does the
// rest.
func (c *RoomClient) watchQuality(ctx context.Context, sender *webrtc.RTPSender) {
	var lastLevel domain.QualityLevel
	ticker := time.NewTicker(c.cfg.QualityInterval)
	defer ticker.Stop()

	var worstLost float64
	reports := make(chan float64, 16)

	go func() {
		for {
			pkts, _, err := sender.ReadRTCP()
			if err != nil {
				close(reports)
				return
			}
			for _, pkt := range pkts {
				rr, ok := pkt.(*rtcp.ReceiverReport)
				if !ok {
					continue
				}
				for _, rep := range rr.Reports {
					select {
					case reports <- float64(rep.FractionLost) / 256.0:
					default:
					}
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case lost, ok := <-reports:
			if !ok {
				return
			}
			if lost > worstLost {
				worstLost = lost
			}
		case <-ticker.C:
			level := classifyLoss(worstLost)
			worstLost = 0
			if level != lastLevel {
				lastLevel = level
				c.emit(ports.MediaEvent{Kind: ports.MediaQualityChanged, Quality: level})
			}
		}
	}
}

func classifyLoss(fractionLost float64) domain.QualityLevel {
	switch {
	case fractionLost < 0.02:
		return domain.QualityExcellent
	case fractionLost < 0.08:
		return domain.QualityGood
	default:
		return domain.QualityPoor
	}
}

// handleICEState maps transport state to session-visible events. pion's
// "disconnected" is transient and may recover; "failed" and "closed" are
// final.
func (c *RoomClient) handleICEState(state webrtc.ICEConnectionState) {
	switch state {
	case webrtc.ICEConnectionStateConnected:
		c.mu.Lock()
		was := c.wasConnected
		c.wasConnected = true
		c.mu.Unlock()
		if was {
			c.emit(ports.MediaEvent{Kind: ports.MediaReconnected})
		} else {
			c.emit(ports.MediaEvent{Kind: ports.MediaConnected})
		}
	case webrtc.ICEConnectionStateDisconnected:
		c.emit(ports.MediaEvent{Kind: ports.MediaReconnecting})
	case webrtc.ICEConnectionStateFailed, webrtc.ICEConnectionStateClosed:
		c.emit(ports.MediaEvent{Kind: ports.MediaDisconnected})
	}
}

// handleRoomEvent decodes one message from the room's events channel.
func (c *RoomClient) handleRoomEvent(data []byte) {
	var ev roomEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		c.logger.Debugw("unparseable room event", "error", err)
		return
	}
	switch ev.Event {
	case "participant_joined":
		c.emit(ports.MediaEvent{Kind: ports.MediaPeerJoined, Peer: ev.Identity})
	case "participant_left":
		c.emit(ports.MediaEvent{Kind: ports.MediaPeerLeft, Peer: ev.Identity})
	case "quality":
		level := domain.QualityLevel(ev.Level)
		switch level {
		case domain.QualityExcellent, domain.QualityGood, domain.QualityPoor:
			c.emit(ports.MediaEvent{Kind: ports.MediaQualityChanged, Quality: level})
		}
	default:
		c.logger.Debugw("ignoring room event", "event", ev.Event)
	}
}

func (c *RoomClient) emit(ev ports.MediaEvent) {
	select {
	case c.events <- ev:
	default:
		c.logger.Warnw("media event buffer full, dropping", "kind", ev.Kind)
	}
}

func closeSources(srcs ...FrameSource) {
	for _, s := range srcs {
		if s != nil {
			s.Close()
		}
	}
}

var _ ports.MediaSession = (*RoomClient)(nil)
