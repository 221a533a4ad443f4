package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"peercall/internal/core/domain"
	"peercall/internal/core/ports"
	"peercall/pkg/cache"
	"peercall/pkg/circuitbreaker"

	"go.uber.org/zap"
)

// credentialReuseMargin is how much validity a cached credential must have
// left to be handed out again.
const credentialReuseMargin = time.Minute

// HTTPAuthority fetches join credentials from the relay's token endpoint.
// This is the normal client path: the signing secret never leaves the relay.
// Fetches run behind a circuit breaker so a dead authority fails fast, and
// fresh credentials are cached until near expiry.
type HTTPAuthority struct {
	baseURL string
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
	cache   *cache.Cache
	logger  *zap.SugaredLogger
}

func NewHTTPAuthority(baseURL string, logger *zap.SugaredLogger) *HTTPAuthority {
	return &HTTPAuthority{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig()),
		cache:   cache.NewCache(5 * time.Minute),
		logger:  logger,
	}
}

type tokenResponse struct {
	Token     string    `json:"token"`
	Room      string    `json:"room"`
	Identity  string    `json:"identity"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (a *HTTPAuthority) FetchJoinCredential(ctx context.Context, room domain.RoomID, identity string) (*domain.MediaJoinCredential, error) {
	cacheKey := string(room) + "|" + identity
	if v, ok := a.cache.Get(cacheKey); ok {
		cred := v.(*domain.MediaJoinCredential)
		if !cred.Expired(time.Now().Add(credentialReuseMargin)) {
			return cred, nil
		}
		a.cache.Delete(cacheKey)
	}

	result, err := a.breaker.ExecuteWithResult(ctx, func() (interface{}, error) {
		return a.fetch(ctx, room, identity)
	})
	if err != nil {
		if errors.Is(err, domain.ErrCredentialFailure) {
			return nil, err
		}
		// Breaker rejection while the circuit is open.
		return nil, fmt.Errorf("%w: %v", domain.ErrCredentialFailure, err)
	}

	cred := result.(*domain.MediaJoinCredential)
	ttl := time.Until(cred.ExpiresAt) - credentialReuseMargin
	if ttl > 0 {
		a.cache.SetWithTTL(cacheKey, cred, ttl)
	}
	return cred, nil
}

func (a *HTTPAuthority) fetch(ctx context.Context, room domain.RoomID, identity string) (*domain.MediaJoinCredential, error) {
	u, err := url.Parse(a.baseURL + "/token")
	if err != nil {
		return nil, fmt.Errorf("%w: bad authority url: %v", domain.ErrCredentialFailure, err)
	}
	q := u.Query()
	q.Set("roomName", string(room))
	q.Set("participantName", identity)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCredentialFailure, err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCredentialFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		a.logger.Warnw("token endpoint refused",
			"status", resp.StatusCode, "room", room, "body", string(body))
		return nil, fmt.Errorf("%w: token endpoint returned %d", domain.ErrCredentialFailure, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("%w: malformed token response: %v", domain.ErrCredentialFailure, err)
	}
	if tr.Token == "" {
		return nil, fmt.Errorf("%w: empty token in response", domain.ErrCredentialFailure)
	}

	return &domain.MediaJoinCredential{
		Token:     tr.Token,
		Room:      room,
		Identity:  identity,
		ExpiresAt: tr.ExpiresAt,
	}, nil
}

// LocalAuthority mints join tokens in-process. Development and tests only:
// it requires the media secret on the client, which production must not do.
type LocalAuthority struct {
	minter *TokenMinter
}

func NewLocalAuthority(minter *TokenMinter) *LocalAuthority {
	return &LocalAuthority{minter: minter}
}

func (a *LocalAuthority) FetchJoinCredential(ctx context.Context, room domain.RoomID, identity string) (*domain.MediaJoinCredential, error) {
	cred, err := a.minter.Mint(room, identity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCredentialFailure, err)
	}
	return cred, nil
}

var (
	_ ports.CredentialAuthority = (*HTTPAuthority)(nil)
	_ ports.CredentialAuthority = (*LocalAuthority)(nil)
)
