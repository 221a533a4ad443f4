package push

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"peercall/internal/core/domain"
	"peercall/pkg/validation"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// FallbackSender delivers a signal to a client that has no live websocket,
// typically over FCM. Nil disables the fallback.
type FallbackSender interface {
	SendSignal(ctx context.Context, msg domain.SignalMessage) error
}

// DeliveryMetrics counts routing outcomes on the relay.
type DeliveryMetrics interface {
	SignalRouted(kind domain.SignalKind, outcome string)
}

type nopDeliveryMetrics struct{}

func (nopDeliveryMetrics) SignalRouted(domain.SignalKind, string) {}

type client struct {
	conn *websocket.Conn
	// websocket allows one concurrent writer; routing and pings share this.
	writeMu sync.Mutex
}

func (c *client) writeJSON(timeout time.Duration, v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(timeout))
	return c.conn.WriteJSON(v)
}

func (c *client) ping(timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(timeout))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

// Hub is the relay's signal switchboard. Connected clients are addressed by
// their push address; signals are routed to the target's live connection, or
// handed to the FCM fallback when the target is offline. The hub inspects
// only the envelope: payloads pass through untouched.
type Hub struct {
	clients map[domain.PushAddress]*client
	mu      sync.RWMutex

	fallback FallbackSender
	metrics  DeliveryMetrics

	pingInterval time.Duration
	pongTimeout  time.Duration
	writeTimeout time.Duration
	maxMsgSize   int64

	logger *zap.SugaredLogger
}

func NewHub(fallback FallbackSender, metrics DeliveryMetrics, logger *zap.SugaredLogger) *Hub {
	if metrics == nil {
		metrics = nopDeliveryMetrics{}
	}
	return &Hub{
		clients:      make(map[domain.PushAddress]*client),
		fallback:     fallback,
		metrics:      metrics,
		pingInterval: 30 * time.Second,
		pongTimeout:  60 * time.Second,
		writeTimeout: 10 * time.Second,
		maxMsgSize:   64 * 1024,
		logger:       logger,
	}
}

// SetPingInterval sets ping interval for client connections
func (h *Hub) SetPingInterval(interval time.Duration) {
	h.pingInterval = interval
}

// SetPongTimeout sets pong timeout for client connections
func (h *Hub) SetPongTimeout(timeout time.Duration) {
	h.pongTimeout = timeout
}

// SetMaxMessageSize caps inbound frame size in bytes
func (h *Hub) SetMaxMessageSize(size int64) {
	h.maxMsgSize = size
}

// HandleWebSocket upgrades and serves one client attachment until it drops.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	addr := domain.PushAddress(r.URL.Query().Get("client_id"))
	if err := validation.ValidatePushAddress(string(addr)); err != nil {
		h.logger.Warnw("rejecting websocket attach", "error", err)
		http.Error(w, "invalid client_id", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	cl := &client{conn: conn}

	// A reconnecting client replaces its previous attachment.
	h.mu.Lock()
	if old, ok := h.clients[addr]; ok && old != nil {
		old.conn.Close()
		h.logger.Infow("closing old connection for reconnecting client", "client_id", addr)
	}
	h.clients[addr] = cl
	h.mu.Unlock()

	h.logger.Infow("client attached", "client_id", addr)

	if h.maxMsgSize > 0 {
		conn.SetReadLimit(h.maxMsgSize)
	}
	conn.SetReadDeadline(time.Now().Add(h.pongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.pongTimeout))
		return nil
	})

	pingTicker := time.NewTicker(h.pingInterval)
	defer pingTicker.Stop()

	frameChan := make(chan []byte, 10)
	errorChan := make(chan error, 1)

	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				errorChan <- err
				return
			}
			conn.SetReadDeadline(time.Now().Add(h.pongTimeout))
			frameChan <- data
		}
	}()

	for {
		select {
		case data := <-frameChan:
			if err := h.handleFrame(r.Context(), addr, cl, data); err != nil {
				h.logger.Infow("error handling signal from client",
					"client_id", addr, "error", err)
				h.sendError(cl, err.Error())
			}

		case <-pingTicker.C:
			if err := cl.ping(h.writeTimeout); err != nil {
				h.logger.Infow("error sending ping", "client_id", addr, "error", err)
				goto cleanup
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Infow("error reading from client", "client_id", addr, "error", err)
			}
			goto cleanup
		}
	}

cleanup:
	h.mu.Lock()
	// Only remove the entry if it still points at this connection; a
	// reconnect may already have replaced it.
	if cur, ok := h.clients[addr]; ok && cur == cl {
		delete(h.clients, addr)
	}
	h.mu.Unlock()

	h.logger.Infow("client detached", "client_id", addr)
}

// handleFrame validates the envelope of one inbound signal and routes it.
func (h *Hub) handleFrame(ctx context.Context, from domain.PushAddress, cl *client, data []byte) error {
	msg, err := domain.DecodeSignal(data)
	if err != nil {
		h.metrics.SignalRouted(msg2kind(data), "rejected")
		return err
	}
	if msg.Target == "" {
		h.metrics.SignalRouted(msg.Kind, "rejected")
		return fmt.Errorf("signal %s missing target", msg.Kind)
	}
	if msg.ReplyTo == "" {
		msg.ReplyTo = from
	}
	return h.Route(ctx, *msg)
}

// Route delivers one validated signal: live connection first, FCM fallback
// second. Fire-and-forget beyond that; the relay keeps no per-call state.
func (h *Hub) Route(ctx context.Context, msg domain.SignalMessage) error {
	h.mu.RLock()
	target, online := h.clients[msg.Target]
	h.mu.RUnlock()

	if online {
		if err := target.writeJSON(h.writeTimeout, msg); err != nil {
			h.metrics.SignalRouted(msg.Kind, "write_failed")
			return fmt.Errorf("deliver %s to %s: %w", msg.Kind, msg.Target, err)
		}
		h.metrics.SignalRouted(msg.Kind, "delivered")
		h.logger.Debugw("signal routed",
			"kind", msg.Kind, "room", msg.Room, "target", msg.Target)
		return nil
	}

	if h.fallback != nil {
		if err := h.fallback.SendSignal(ctx, msg); err != nil {
			h.metrics.SignalRouted(msg.Kind, "fallback_failed")
			return fmt.Errorf("fallback deliver %s to %s: %w", msg.Kind, msg.Target, err)
		}
		h.metrics.SignalRouted(msg.Kind, "fallback")
		return nil
	}

	h.metrics.SignalRouted(msg.Kind, "offline")
	return fmt.Errorf("%w: client %s not connected", domain.ErrSignalDelivery, msg.Target)
}

func (h *Hub) sendError(cl *client, message string) {
	errorMsg := map[string]interface{}{
		"type":    "error",
		"message": message,
	}
	if err := cl.writeJSON(h.writeTimeout, errorMsg); err != nil {
		h.logger.Debugw("error frame write failed", "error", err)
	}
}

// IsClientConnected reports whether the address has a live attachment.
func (h *Hub) IsClientConnected(addr domain.PushAddress) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[addr]
	return ok
}

// ConnectedClients lists currently attached addresses.
func (h *Hub) ConnectedClients() []domain.PushAddress {
	h.mu.RLock()
	defer h.mu.RUnlock()
	addrs := make([]domain.PushAddress, 0, len(h.clients))
	for addr := range h.clients {
		addrs = append(addrs, addr)
	}
	return addrs
}

// HealthCheck reports hub liveness and attachment count.
func (h *Hub) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	count := len(h.clients)
	h.mu.RUnlock()

	response := map[string]interface{}{
		"status":      "healthy",
		"timestamp":   time.Now().Unix(),
		"connections": count,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// msg2kind best-effort extracts a kind from a frame that failed validation,
// for metric labels only.
func msg2kind(data []byte) domain.SignalKind {
	var probe struct {
		Kind domain.SignalKind `json:"kind"`
	}
	if err := json.Unmarshal(data, &probe); err != nil || !domain.ValidSignalKind(probe.Kind) {
		return "invalid"
	}
	return probe.Kind
}
