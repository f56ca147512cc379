package push

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"github.com/lalithlochan/pushwatch/internal/db"
)

// Sender delivers one serialized payload to one subscription.
type Sender interface {
	Send(ctx context.Context, sub *db.Subscription, payload []byte) error
}

// VAPIDConfig holds the application server identity and delivery options.
type VAPIDConfig struct {
	PublicKey  string
	PrivateKey string
	Subject    string // mailto: or https: contact
	TTL        time.Duration
	Timeout    time.Duration
}

// WebPushSender delivers payloads through the browser vendors' push services.
type WebPushSender struct {
	cfg    VAPIDConfig
	client *http.Client
	logger *zap.Logger
}

// NewWebPushSender creates a sender. Missing keys are not an error here;
// Send reports ErrNotConfigured instead so the service can still start.
func NewWebPushSender(cfg VAPIDConfig, logger *zap.Logger) *WebPushSender {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.TTL == 0 {
		cfg.TTL = 24 * time.Hour
	}

	if cfg.PublicKey == "" || cfg.PrivateKey == "" {
		logger.Warn("VAPID keys not configured, push delivery disabled")
	}

	return &WebPushSender{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Configured reports whether a VAPID key pair is set.
func (s *WebPushSender) Configured() bool {
	return s.cfg.PublicKey != "" && s.cfg.PrivateKey != ""
}

// PublicKey returns the VAPID public key browsers subscribe with.
func (s *WebPushSender) PublicKey() string {
	return s.cfg.PublicKey
}

// Send encrypts payload for the subscription and posts it to its endpoint.
// A non-2xx answer comes back as *DeliveryError.
func (s *WebPushSender) Send(ctx context.Context, sub *db.Subscription, payload []byte) error {
	if !s.Configured() {
		return ErrNotConfigured
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			Auth:   sub.Auth,
			P256dh: sub.P256dh,
		},
	}, &webpush.Options{
		HTTPClient:      s.client,
		Subscriber:      s.cfg.Subject,
		VAPIDPublicKey:  s.cfg.PublicKey,
		VAPIDPrivateKey: s.cfg.PrivateKey,
		TTL:             int(s.cfg.TTL.Seconds()),
		Urgency:         webpush.UrgencyHigh,
	})
	if err != nil {
		return fmt.Errorf("push request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &DeliveryError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	s.logger.Debug("push delivered",
		zap.String("subscription_id", sub.ID.String()),
		zap.Int("status_code", resp.StatusCode),
	)

	return nil
}

// GenerateVAPIDKeys creates a new application server key pair.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	privateKey, publicKey, err = webpush.GenerateVAPIDKeys()
	if err != nil {
		return "", "", fmt.Errorf("generate VAPID keys: %w", err)
	}
	return publicKey, privateKey, nil
}
