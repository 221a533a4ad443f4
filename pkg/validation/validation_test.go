package validation

import (
	"strings"
	"testing"
)

func TestValidateRoomID(t *testing.T) {
	tests := []struct {
		name    string
		roomID  string
		wantErr bool
	}{
		{"valid room", "call_a1b2c3d4", false},
		{"valid with dash", "call_a1-b2", false},
		{"empty", "", true},
		{"missing prefix", "room_a1b2", true},
		{"bare id", "a1b2c3", true},
		{"invalid characters", "call_a1 b2", true},
		{"too long", "call_" + strings.Repeat("a", 100), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRoomID(tt.roomID)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRoomID() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateClientID(t *testing.T) {
	tests := []struct {
		name     string
		clientID string
		wantErr  bool
	}{
		{"valid client", "user_9f8e7d6c", false},
		{"valid plain", "alice", false},
		{"empty", "", true},
		{"invalid characters", "user 123", true},
		{"too long", strings.Repeat("a", 101), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateClientID(tt.clientID)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateClientID() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateParticipantName(t *testing.T) {
	tests := []struct {
		name        string
		participant string
		wantErr     bool
	}{
		{"valid name", "Alice", false},
		{"valid unicode", "Алиса", false},
		{"valid with spaces", "Alice B", false},
		{"empty", "", true},
		{"whitespace only", "   ", true},
		{"too long", strings.Repeat("a", 101), true},
		{"invalid utf8", string([]byte{0xff, 0xfe}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParticipantName(tt.participant)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateParticipantName() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidatePushAddress(t *testing.T) {
	tests := []struct {
		name    string
		address string
		wantErr bool
	}{
		{"valid device token", "fGzX9y:APA91bE...", false},
		{"valid client address", "user_9f8e7d6c", false},
		{"empty", "", true},
		{"with whitespace", "token with space", true},
		{"too long", strings.Repeat("a", 513), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePushAddress(tt.address)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePushAddress() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"valid http", "http://example.com", false},
		{"valid https", "https://example.com/path", false},
		{"valid ws", "ws://relay.example.com/ws", false},
		{"valid wss", "wss://relay.example.com/ws", false},
		{"empty", "", true},
		{"bad scheme", "ftp://example.com", true},
		{"no host", "http://", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateStringLength(t *testing.T) {
	tests := []struct {
		name    string
		s       string
		min     int
		max     int
		wantErr bool
	}{
		{"within bounds", "hello", 1, 10, false},
		{"too short", "a", 2, 10, true},
		{"too long", "hello world", 1, 5, true},
		{"unicode counted as runes", "Алиса", 1, 5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStringLength(tt.s, tt.min, tt.max, "field")
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateStringLength() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
