package ports

import (
	"context"

	"peercall/internal/core/domain"
)

// SignalChannel wraps the push delivery service. Send is best-effort: a nil
// error means the relay accepted the message, not that the far end saw it.
// Inbound signals on Signals have already passed envelope validation; the
// consumer still validates the room against its live session.
type SignalChannel interface {
	Send(ctx context.Context, msg domain.SignalMessage) error
	Signals() <-chan domain.SignalMessage
	// Address is this client's own push address, used as ReplyTo on
	// outbound signals.
	Address() domain.PushAddress
}
