package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"peercall/internal/core/domain"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingFallback struct {
	mu   sync.Mutex
	sent []domain.SignalMessage
	err  error
}

func (r *recordingFallback) SendSignal(ctx context.Context, msg domain.SignalMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingFallback) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func startHub(t *testing.T, fallback FallbackSender) (*Hub, string) {
	t.Helper()
	hub := NewHub(fallback, nil, zaptest.NewLogger(t).Sugar())
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestHub_RoutesSignalBetweenClients(t *testing.T) {
	hub, wsURL := startHub(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	alice := NewWSChannel(wsURL, "alice-device", zaptest.NewLogger(t).Sugar())
	bob := NewWSChannel(wsURL, "bob-device", zaptest.NewLogger(t).Sugar())
	go alice.Run(ctx)
	go bob.Run(ctx)

	require.Eventually(t, func() bool {
		return hub.IsClientConnected("alice-device") && hub.IsClientConnected("bob-device")
	}, 2*time.Second, 5*time.Millisecond)

	payload, _ := json.Marshal(domain.IncomingCallPayload{CallerName: "Alice"})
	err := alice.Send(ctx, domain.SignalMessage{
		Kind:    domain.SignalIncomingCall,
		Room:    "call_route",
		Target:  "bob-device",
		Payload: payload,
		SentAt:  time.Now(),
	})
	require.NoError(t, err)

	select {
	case msg := <-bob.Signals():
		assert.Equal(t, domain.SignalIncomingCall, msg.Kind)
		assert.Equal(t, domain.RoomID("call_route"), msg.Room)
		assert.Equal(t, domain.PushAddress("alice-device"), msg.ReplyTo,
			"relay stamps sender as reply_to")
		p, perr := msg.IncomingCall()
		require.NoError(t, perr)
		assert.Equal(t, "Alice", p.CallerName)
	case <-time.After(2 * time.Second):
		t.Fatal("signal never reached bob")
	}
}

func TestHub_FallbackWhenTargetOffline(t *testing.T) {
	fb := &recordingFallback{}
	hub, wsURL := startHub(t, fb)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	alice := NewWSChannel(wsURL, "alice-device", zaptest.NewLogger(t).Sugar())
	go alice.Run(ctx)
	require.Eventually(t, func() bool { return hub.IsClientConnected("alice-device") },
		2*time.Second, 5*time.Millisecond)

	err := alice.Send(ctx, domain.SignalMessage{
		Kind:   domain.SignalCallEnded,
		Room:   "call_off",
		Target: "sleeping-phone-token",
		SentAt: time.Now(),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return fb.count() == 1 },
		2*time.Second, 5*time.Millisecond)
	fb.mu.Lock()
	sent := fb.sent[0]
	fb.mu.Unlock()
	assert.Equal(t, domain.SignalCallEnded, sent.Kind)
	assert.Equal(t, domain.PushAddress("sleeping-phone-token"), sent.Target)
}

func TestHub_RouteOfflineWithoutFallback(t *testing.T) {
	hub := NewHub(nil, nil, zaptest.NewLogger(t).Sugar())
	err := hub.Route(context.Background(), domain.SignalMessage{
		Kind:   domain.SignalCallEnded,
		Room:   "call_x",
		Target: "nobody",
	})
	assert.ErrorIs(t, err, domain.ErrSignalDelivery)
}

func TestHub_RejectsInvalidEnvelope(t *testing.T) {
	_, wsURL := startHub(t, nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?client_id=raw-client", nil)
	require.NoError(t, err)
	defer conn.Close()

	cases := []string{
		`{"kind":"subscribe_presence","room":"call_x","target":"y"}`, // unknown kind
		`{"kind":"call_ended","target":"y"}`,                         // missing room
		`{"kind":"call_ended","room":"call_x"}`,                      // missing target
		`not json at all`,
	}
	for _, raw := range cases {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(raw)))

		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var reply map[string]interface{}
		require.NoError(t, conn.ReadJSON(&reply))
		assert.Equal(t, "error", reply["type"], "raw=%s", raw)
	}
}

func TestHub_RejectsMissingClientID(t *testing.T) {
	_, wsURL := startHub(t, nil)
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHub_ReconnectReplacesAttachment(t *testing.T) {
	hub, wsURL := startHub(t, nil)

	first, _, err := websocket.DefaultDialer.Dial(wsURL+"?client_id=phone", nil)
	require.NoError(t, err)
	defer first.Close()
	require.Eventually(t, func() bool { return hub.IsClientConnected("phone") },
		2*time.Second, 5*time.Millisecond)

	second, _, err := websocket.DefaultDialer.Dial(wsURL+"?client_id=phone", nil)
	require.NoError(t, err)
	defer second.Close()

	// The new attachment owns the address; signals go to it.
	require.NoError(t, hub.Route(context.Background(), domain.SignalMessage{
		Kind:   domain.SignalCallCancelled,
		Room:   "call_swap",
		Target: "phone",
	}))

	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg domain.SignalMessage
	require.NoError(t, second.ReadJSON(&msg))
	assert.Equal(t, domain.SignalCallCancelled, msg.Kind)
}

func TestDecodeFCMData(t *testing.T) {
	msg, err := DecodeFCMData(map[string]string{
		"kind":     "incoming_call",
		"room":     "call_fcm",
		"reply_to": "caller-device",
		"payload":  `{"caller_name":"Alice"}`,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SignalIncomingCall, msg.Kind)
	p, err := msg.IncomingCall()
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.CallerName)

	_, err = DecodeFCMData(map[string]string{"kind": "call_ended"})
	assert.Error(t, err, "missing room must be rejected")

	_, err = DecodeFCMData(map[string]string{"kind": "presence", "room": "call_x"})
	assert.ErrorIs(t, err, domain.ErrUnknownSignalKind)
}
