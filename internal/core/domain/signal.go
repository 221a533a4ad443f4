package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// SignalKind is the closed set of call signals carried over the push channel.
// Anything else is rejected at the channel boundary and never reaches the
// state machine.
type SignalKind string

const (
	SignalIncomingCall  SignalKind = "incoming_call"
	SignalCallAccepted  SignalKind = "call_accepted"
	SignalCallRejected  SignalKind = "call_rejected"
	SignalCallCancelled SignalKind = "call_cancelled"
	SignalCallEnded     SignalKind = "call_ended"
)

// ValidSignalKind reports whether k is a member of the closed union.
func ValidSignalKind(k SignalKind) bool {
	switch k {
	case SignalIncomingCall, SignalCallAccepted, SignalCallRejected,
		SignalCallCancelled, SignalCallEnded:
		return true
	}
	return false
}

// SignalMessage is one unit sent over the push channel. Delivery is
// fire-and-forget: no acknowledgment, no redelivery.
type SignalMessage struct {
	Kind   SignalKind  `json:"kind"`
	Room   RoomID      `json:"room"`
	Target PushAddress `json:"target"`
	// ReplyTo is the sender's own push address so the far side can answer.
	ReplyTo PushAddress     `json:"reply_to,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	SentAt  time.Time       `json:"sent_at"`
}

// IncomingCallPayload rides on SignalIncomingCall.
type IncomingCallPayload struct {
	CallerName   string `json:"caller_name"`
	CallerAvatar string `json:"caller_avatar,omitempty"`
	// JoinToken is a credential minted for the callee by the relay, so the
	// callee can join without a second round trip to the authority.
	JoinToken string `json:"join_token,omitempty"`
}

// DecodeSignal validates the envelope of a raw inbound signal. It enforces
// the closed kind union and the presence of a room identifier; payloads are
// decoded lazily by the consumer.
func DecodeSignal(data []byte) (*SignalMessage, error) {
	var msg SignalMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("malformed signal: %w", err)
	}
	if !ValidSignalKind(msg.Kind) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSignalKind, msg.Kind)
	}
	if msg.Room == "" {
		return nil, fmt.Errorf("signal %s missing room identifier", msg.Kind)
	}
	return &msg, nil
}

// IncomingCall decodes the kind-specific payload of an incoming-call signal.
func (m *SignalMessage) IncomingCall() (*IncomingCallPayload, error) {
	if m.Kind != SignalIncomingCall {
		return nil, fmt.Errorf("signal is %s, not %s", m.Kind, SignalIncomingCall)
	}
	var p IncomingCallPayload
	if len(m.Payload) > 0 {
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			return nil, fmt.Errorf("malformed incoming-call payload: %w", err)
		}
	}
	return &p, nil
}
