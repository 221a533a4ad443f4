package ports

import (
	"context"

	"peercall/internal/core/domain"
)

// CredentialAuthority mints or fetches room join credentials. Failures are
// terminal for the current call attempt; the core never retries them.
type CredentialAuthority interface {
	FetchJoinCredential(ctx context.Context, room domain.RoomID, identity string) (*domain.MediaJoinCredential, error)
}
