package domain

import "time"

// MediaJoinCredential is a short-lived token scoping one participant to one
// room with publish and subscribe rights. Opaque to the core beyond its room
// binding and expiry.
type MediaJoinCredential struct {
	Token     string
	Room      RoomID
	Identity  string
	ExpiresAt time.Time
}

// Expired reports whether the credential is no longer usable.
func (c *MediaJoinCredential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}
