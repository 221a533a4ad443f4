package push

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"peercall/internal/core/domain"
	"peercall/pkg/retry"

	"go.uber.org/zap"
)

// FCMConfig contains configuration for the FCM sender
type FCMConfig struct {
	CredentialsPath string // Path to service account JSON file
	CredentialsJSON []byte // Service account JSON content (alternative to file path)
	ProjectID       string // Firebase Project ID
}

// FCMSender delivers call signals as data-only FCM messages to clients with
// no live websocket. Data-only so the receiving app decides how to ring;
// high priority so an incoming call wakes a backgrounded device.
type FCMSender struct {
	app    *firebase.App
	retry  retry.Config
	logger *zap.SugaredLogger
}

func NewFCMSender(cfg *FCMConfig, logger *zap.SugaredLogger) (*FCMSender, error) {
	if cfg == nil {
		return nil, fmt.Errorf("FCM config is required")
	}

	var opts []option.ClientOption
	if len(cfg.CredentialsJSON) > 0 {
		opts = append(opts, option.WithCredentialsJSON(cfg.CredentialsJSON))
	} else if cfg.CredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsPath))
	} else {
		return nil, fmt.Errorf("either CredentialsPath or CredentialsJSON must be provided")
	}

	app, err := firebase.NewApp(context.Background(), &firebase.Config{
		ProjectID: cfg.ProjectID,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	logger.Infow("FCM sender initialized", "project_id", cfg.ProjectID)

	return &FCMSender{app: app, retry: fcmRetryConfig(), logger: logger}, nil
}

// fcmRetryConfig bounds transient delivery retries. Permanent failures are
// surfaced as *permanentDeliveryError, which the retry loop aborts on.
func fcmRetryConfig() retry.Config {
	rc := retry.DefaultConfig()
	rc.MaxAttempts = 2
	rc.InitialDelay = 200 * time.Millisecond
	rc.NonRetryableErrors = []error{&permanentDeliveryError{}}
	return rc
}

// permanentDeliveryError marks a send failure that retrying cannot fix, such
// as an unregistered device token.
type permanentDeliveryError struct {
	cause error
}

func (e *permanentDeliveryError) Error() string {
	return fmt.Sprintf("permanent fcm failure: %v", e.cause)
}

func (e *permanentDeliveryError) Unwrap() error {
	return e.cause
}

// SendSignal implements FallbackSender. The signal envelope rides in the data
// map; the payload stays an opaque JSON string.
func (f *FCMSender) SendSignal(ctx context.Context, msg domain.SignalMessage) error {
	client, err := f.app.Messaging(ctx)
	if err != nil {
		return fmt.Errorf("failed to get messaging client: %w", err)
	}

	data := map[string]string{
		"kind":     string(msg.Kind),
		"room":     string(msg.Room),
		"reply_to": string(msg.ReplyTo),
		"sent_at":  msg.SentAt.UTC().Format(time.RFC3339),
	}
	if len(msg.Payload) > 0 {
		data["payload"] = string(msg.Payload)
	}

	fcmMessage := &messaging.Message{
		Token: string(msg.Target),
		Data:  data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}

	messageID, err := retry.RetryWithResult(ctx, f.retry, func() (string, error) {
		id, sendErr := client.Send(ctx, fcmMessage)
		if sendErr != nil && !isTransientFCMError(sendErr) {
			// Dead tokens are not worth retrying.
			return "", &permanentDeliveryError{cause: sendErr}
		}
		return id, sendErr
	})
	if err != nil {
		f.logger.Warnw("FCM signal delivery failed",
			"kind", msg.Kind, "room", msg.Room, "error", err)
		return fmt.Errorf("%w: %v", domain.ErrSignalDelivery, err)
	}

	f.logger.Infow("signal delivered via FCM",
		"kind", msg.Kind, "room", msg.Room, "message_id", messageID)
	return nil
}

func isTransientFCMError(err error) bool {
	if messaging.IsUnregistered(err) || messaging.IsInvalidArgument(err) {
		return false
	}
	return true
}

// DecodeFCMData reverses SendSignal's data mapping on the client side.
func DecodeFCMData(data map[string]string) (*domain.SignalMessage, error) {
	kind := domain.SignalKind(data["kind"])
	if !domain.ValidSignalKind(kind) {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownSignalKind, kind)
	}
	room := domain.RoomID(data["room"])
	if room == "" {
		return nil, fmt.Errorf("fcm signal %s missing room", kind)
	}
	msg := &domain.SignalMessage{
		Kind:    kind,
		Room:    room,
		ReplyTo: domain.PushAddress(data["reply_to"]),
	}
	if sentAt, err := time.Parse(time.RFC3339, data["sent_at"]); err == nil {
		msg.SentAt = sentAt
	}
	if payload := data["payload"]; payload != "" {
		if !json.Valid([]byte(payload)) {
			return nil, fmt.Errorf("fcm signal %s carries malformed payload", kind)
		}
		msg.Payload = json.RawMessage(payload)
	}
	return msg, nil
}
