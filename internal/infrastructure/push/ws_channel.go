package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"peercall/internal/core/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSChannel is the client-side push channel: one websocket attachment to the
// relay, kept alive across drops with backoff. Signals failing envelope
// validation are dropped here and never reach the consumer.
type WSChannel struct {
	relayURL string
	address  domain.PushAddress

	dialer       *websocket.Dialer
	pingInterval time.Duration
	pongTimeout  time.Duration
	writeTimeout time.Duration

	signals chan domain.SignalMessage

	connMu sync.Mutex
	conn   *websocket.Conn

	http   *http.Client
	logger *zap.SugaredLogger
}

func NewWSChannel(relayURL string, address domain.PushAddress, logger *zap.SugaredLogger) *WSChannel {
	return &WSChannel{
		relayURL:     relayURL,
		address:      address,
		dialer:       websocket.DefaultDialer,
		pingInterval: 30 * time.Second,
		pongTimeout:  60 * time.Second,
		writeTimeout: 10 * time.Second,
		signals:      make(chan domain.SignalMessage, 16),
		http:         &http.Client{Timeout: 10 * time.Second},
		logger:       logger,
	}
}

// Run keeps the relay attachment alive until ctx is cancelled. Reconnects
// use capped exponential backoff; an established connection resets it.
func (c *WSChannel) Run(ctx context.Context) error {
	defer close(c.signals)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := c.attach(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			c.logger.Warnw("relay attachment lost", "error", err, "retry_in", backoff)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// attach dials once and pumps frames until the connection dies.
func (c *WSChannel) attach(ctx context.Context) error {
	u, err := url.Parse(c.relayURL)
	if err != nil {
		return fmt.Errorf("bad relay url: %w", err)
	}
	q := u.Query()
	q.Set("client_id", string(c.address))
	u.RawQuery = q.Encode()

	conn, _, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}
	defer conn.Close()

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	defer func() {
		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()
	}()

	c.logger.Infow("attached to relay", "url", c.relayURL, "client_id", c.address)

	conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
		c.connMu.Lock()
		defer c.connMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		return conn.WriteMessage(websocket.PongMessage, []byte(appData))
	})

	// Read until error; a cancelled ctx closes the conn via the watchdog.
	watchdog := make(chan struct{})
	defer close(watchdog)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watchdog:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(c.pongTimeout))

		msg, err := domain.DecodeSignal(data)
		if err != nil {
			c.logger.Warnw("dropping invalid signal", "error", err)
			continue
		}
		select {
		case c.signals <- *msg:
		default:
			// Consumer is wedged; dropping is better than stalling pings.
			c.logger.Warnw("signal buffer full, dropping", "kind", msg.Kind)
		}
	}
}

// Send writes one signal to the relay over the live attachment; without one
// it posts to the relay's notify endpoint so callers behind a dropped socket
// can still reach the far end.
func (c *WSChannel) Send(ctx context.Context, msg domain.SignalMessage) error {
	c.connMu.Lock()
	conn := c.conn
	if conn != nil {
		deadline := time.Now().Add(c.writeTimeout)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		conn.SetWriteDeadline(deadline)
		err := conn.WriteJSON(msg)
		c.connMu.Unlock()
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrSignalDelivery, err)
		}
		return nil
	}
	c.connMu.Unlock()
	return c.notify(ctx, msg)
}

// notify delivers one signal over the relay's HTTP surface.
func (c *WSChannel) notify(ctx context.Context, msg domain.SignalMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSignalDelivery, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.notifyURL(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSignalDelivery, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSignalDelivery, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("%w: notify returned %d", domain.ErrSignalDelivery, resp.StatusCode)
	}
	return nil
}

// notifyURL maps the websocket subscription URL onto the HTTP notify path.
func (c *WSChannel) notifyURL() string {
	u, err := url.Parse(c.relayURL)
	if err != nil {
		return c.relayURL
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.Path = "/call/notify"
	u.RawQuery = ""
	return u.String()
}

// Signals returns the inbound stream. Closed when Run exits.
func (c *WSChannel) Signals() <-chan domain.SignalMessage {
	return c.signals
}

// Address is this client's push address on the relay.
func (c *WSChannel) Address() domain.PushAddress {
	return c.address
}
