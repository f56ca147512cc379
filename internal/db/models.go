package db

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Subscription is a registered push endpoint with its encryption keys
type Subscription struct {
	ID        uuid.UUID `json:"id"`
	Endpoint  string    `json:"endpoint"`
	P256dh    string    `json:"p256dh"`
	Auth      string    `json:"auth"`
	Platform  string    `json:"platform"`
	UserAgent *string   `json:"user_agent,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Platform constants
const (
	PlatformAndroid = "android"
	PlatformIOS     = "ios"
	PlatformWeb     = "web"
)

// DeliveryLog is one row per (subscription, notification) attempt
type DeliveryLog struct {
	ID             uuid.UUID  `json:"id"`
	SubscriptionID uuid.UUID  `json:"subscription_id"`
	Title          string     `json:"title"`
	Body           string     `json:"body"`
	Icon           *string    `json:"icon,omitempty"`
	Status         string     `json:"status"`
	ErrorMessage   *string    `json:"error_message,omitempty"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Delivery status constants
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// CheckLog is one row per evaluator run
type CheckLog struct {
	ID                uuid.UUID `json:"id"`
	CheckType         string    `json:"check_type"`
	AffectedCount     int       `json:"affected_count"`
	NotificationsSent int       `json:"notifications_sent"`
	ErrorMessage      *string   `json:"error_message,omitempty"`
	ExecutedAt        time.Time `json:"executed_at"`
}

// Check type constants
const (
	CheckDeliveryDates = "delivery_dates"
	CheckLowStock      = "low_stock"
)

// Order is an outstanding customer order with a due date
type Order struct {
	ID          uuid.UUID `json:"id"`
	ProductType string    `json:"product_type"`
	Code        *string   `json:"code,omitempty"`
	Remaining   *int      `json:"remaining,omitempty"`
	DueDate     time.Time `json:"due_date"`
}

// StockItem is a warehouse stock balance
type StockItem struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Code      *string   `json:"code,omitempty"`
	Remaining int       `json:"remaining"`
}

// Setting is a key/value row in app_settings
type Setting struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
}
