package credentials

import (
	"errors"
	"fmt"
	"time"

	"peercall/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid join token")
	ErrExpiredToken = errors.New("join token expired")
)

// VideoGrant scopes a join token to one room with explicit publish and
// subscribe rights, matching what the media room service verifies.
type VideoGrant struct {
	Room         string `json:"room"`
	RoomJoin     bool   `json:"roomJoin"`
	CanPublish   bool   `json:"canPublish"`
	CanSubscribe bool   `json:"canSubscribe"`
}

// JoinClaims is the signed claim set of a media join token.
type JoinClaims struct {
	Video VideoGrant `json:"video"`
	Name  string     `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// TokenMinter signs room join tokens with the shared media service secret.
type TokenMinter struct {
	apiKey   string
	secret   []byte
	tokenTTL time.Duration
}

func NewTokenMinter(apiKey, secret string, tokenTTL time.Duration) *TokenMinter {
	if tokenTTL <= 0 {
		tokenTTL = 2 * time.Hour
	}
	return &TokenMinter{apiKey: apiKey, secret: []byte(secret), tokenTTL: tokenTTL}
}

// Mint produces a join credential for one participant in one room.
func (m *TokenMinter) Mint(room domain.RoomID, identity string) (*domain.MediaJoinCredential, error) {
	if room == "" {
		return nil, fmt.Errorf("room is required")
	}
	if identity == "" {
		return nil, fmt.Errorf("identity is required")
	}

	now := time.Now()
	expiresAt := now.Add(m.tokenTTL)
	claims := &JoinClaims{
		Video: VideoGrant{
			Room:         string(room),
			RoomJoin:     true,
			CanPublish:   true,
			CanSubscribe: true,
		},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.apiKey,
			Subject:   identity,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return nil, fmt.Errorf("sign join token: %w", err)
	}

	return &domain.MediaJoinCredential{
		Token:     signed,
		Room:      room,
		Identity:  identity,
		ExpiresAt: expiresAt,
	}, nil
}

// Validate parses and verifies a join token.
func (m *TokenMinter) Validate(tokenString string) (*JoinClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JoinClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*JoinClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if !claims.Video.RoomJoin || claims.Video.Room == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
