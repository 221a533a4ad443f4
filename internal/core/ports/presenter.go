package ports

import "peercall/internal/core/domain"

// RingIndicator is the platform presentation hook for incoming calls. It is
// fire-and-forget from the core's perspective.
type RingIndicator interface {
	StartRinging(caller domain.Participant)
	StopRinging()
}

// NopRingIndicator is used where no presentation layer is bound.
type NopRingIndicator struct{}

func (NopRingIndicator) StartRinging(domain.Participant) {}
func (NopRingIndicator) StopRinging()                    {}
