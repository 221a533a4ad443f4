package credentials

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"peercall/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestTokenMinter_MintAndValidate(t *testing.T) {
	minter := NewTokenMinter("devkey", "devsecret", 2*time.Hour)

	cred, err := minter.Mint("call_abc123", "user_1")
	require.NoError(t, err)
	assert.NotEmpty(t, cred.Token)
	assert.Equal(t, domain.RoomID("call_abc123"), cred.Room)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), cred.ExpiresAt, time.Minute)

	claims, err := minter.Validate(cred.Token)
	require.NoError(t, err)
	assert.Equal(t, "call_abc123", claims.Video.Room)
	assert.True(t, claims.Video.RoomJoin)
	assert.True(t, claims.Video.CanPublish)
	assert.True(t, claims.Video.CanSubscribe)
	assert.Equal(t, "user_1", claims.Subject)
	assert.Equal(t, "devkey", claims.Issuer)
}

func TestTokenMinter_RejectsBadInput(t *testing.T) {
	minter := NewTokenMinter("devkey", "devsecret", time.Hour)

	_, err := minter.Mint("", "user_1")
	assert.Error(t, err)

	_, err = minter.Mint("call_x", "")
	assert.Error(t, err)
}

func TestTokenMinter_RejectsWrongSecret(t *testing.T) {
	minter := NewTokenMinter("devkey", "devsecret", time.Hour)
	other := NewTokenMinter("devkey", "othersecret", time.Hour)

	cred, err := minter.Mint("call_x", "user_1")
	require.NoError(t, err)

	_, err = other.Validate(cred.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenMinter_RejectsExpired(t *testing.T) {
	minter := NewTokenMinter("devkey", "devsecret", time.Nanosecond)

	cred, err := minter.Mint("call_x", "user_1")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	_, err = minter.Validate(cred.Token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestHTTPAuthority_FetchJoinCredential(t *testing.T) {
	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/token", r.URL.Path)
		assert.Equal(t, "call_http", r.URL.Query().Get("roomName"))
		assert.Equal(t, "user_7", r.URL.Query().Get("participantName"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"token":      "signed-token",
			"room":       "call_http",
			"identity":   "user_7",
			"expires_at": expiry,
		})
	}))
	defer srv.Close()

	auth := NewHTTPAuthority(srv.URL, zaptest.NewLogger(t).Sugar())
	cred, err := auth.FetchJoinCredential(context.Background(), "call_http", "user_7")
	require.NoError(t, err)
	assert.Equal(t, "signed-token", cred.Token)
	assert.Equal(t, domain.RoomID("call_http"), cred.Room)
	assert.Equal(t, expiry, cred.ExpiresAt.UTC())
}

func TestHTTPAuthority_ErrorPaths(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
		},
		{
			name: "empty token",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]string{"token": ""})
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("{nope"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			auth := NewHTTPAuthority(srv.URL, zaptest.NewLogger(t).Sugar())
			_, err := auth.FetchJoinCredential(context.Background(), "call_x", "user_1")
			assert.ErrorIs(t, err, domain.ErrCredentialFailure)
		})
	}
}

func TestHTTPAuthority_CachesFreshCredential(t *testing.T) {
	var hits int
	expiry := time.Now().Add(time.Hour)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		json.NewEncoder(w).Encode(map[string]interface{}{
			"token":      "signed-token",
			"expires_at": expiry,
		})
	}))
	defer srv.Close()

	auth := NewHTTPAuthority(srv.URL, zaptest.NewLogger(t).Sugar())
	for i := 0; i < 3; i++ {
		_, err := auth.FetchJoinCredential(context.Background(), "call_cached", "user_1")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, hits)

	// A different identity is a different credential.
	_, err := auth.FetchJoinCredential(context.Background(), "call_cached", "user_2")
	require.NoError(t, err)
	assert.Equal(t, 2, hits)
}

func TestHTTPAuthority_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	auth := NewHTTPAuthority(srv.URL, zaptest.NewLogger(t).Sugar())
	for i := 0; i < 10; i++ {
		_, err := auth.FetchJoinCredential(context.Background(), "call_x", "user_1")
		assert.ErrorIs(t, err, domain.ErrCredentialFailure)
	}
	// The breaker opens at its failure threshold and rejects without dialing.
	assert.Less(t, hits, 10)
}

func TestLocalAuthority_Mints(t *testing.T) {
	auth := NewLocalAuthority(NewTokenMinter("devkey", "devsecret", time.Hour))
	cred, err := auth.FetchJoinCredential(context.Background(), "call_local", "user_2")
	require.NoError(t, err)
	assert.NotEmpty(t, cred.Token)
	assert.Equal(t, "user_2", cred.Identity)
}
