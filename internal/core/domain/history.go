package domain

import "time"

// CallOutcome classifies a terminated call in history.
type CallOutcome string

const (
	OutcomeIncoming CallOutcome = "incoming"
	OutcomeOutgoing CallOutcome = "outgoing"
	OutcomeMissed   CallOutcome = "missed"
)

// CallHistoryEntry is the single persisted record of a terminated call.
// Exactly one entry is produced per completed session.
type CallHistoryEntry struct {
	ID            string      `json:"id"`
	ContactID     string      `json:"contact_id"`
	ContactName   string      `json:"contact_name"`
	ContactAvatar string      `json:"contact_avatar,omitempty"`
	Type          CallOutcome `json:"type"`
	// Duration is connected seconds; zero for calls that never connected.
	Duration     int       `json:"duration,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	WasVideoCall bool      `json:"was_video_call"`
}

// Contact is a known remote party the user can call.
type Contact struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	Avatar  string      `json:"avatar,omitempty"`
	Address PushAddress `json:"address,omitempty"`
}
