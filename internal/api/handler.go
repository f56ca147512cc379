package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/pushwatch/internal/checks"
	"github.com/lalithlochan/pushwatch/internal/db"
	"github.com/lalithlochan/pushwatch/internal/dispatch"
	"github.com/lalithlochan/pushwatch/internal/observ"
	"github.com/lalithlochan/pushwatch/internal/push"
)

const recentChecksLimit = 5

// Repository defines the database operations the handlers need
type Repository interface {
	UpsertSubscription(ctx context.Context, sub *db.Subscription) error
	DeactivateSubscriptionByEndpoint(ctx context.Context, endpoint string) error
	SubscriptionCounts(ctx context.Context) (total, active int, err error)
	DeliveryStats(ctx context.Context, since time.Time) (sent, failed int, err error)
	RecentCheckLogs(ctx context.Context, since time.Time, limit int) ([]*db.CheckLog, error)
}

// Dispatcher sends a notification to every active subscription
type Dispatcher interface {
	Dispatch(ctx context.Context, req push.Request) dispatch.Result
}

// CheckRunner runs the scheduled checks once
type CheckRunner interface {
	Run(ctx context.Context) checks.Summary
}

// ThresholdStore reads and writes the low stock threshold
type ThresholdStore interface {
	Load(ctx context.Context) int
	Save(ctx context.Context, v float64) (int, error)
}

// KeyProvider exposes the VAPID configuration
type KeyProvider interface {
	Configured() bool
	PublicKey() string
}

// BreakerReporter reports the circuit breaker state of each mirror sink
type BreakerReporter interface {
	BreakerStates() map[string]string
}

// ErrorResponse is the JSON error body returned by every endpoint
type ErrorResponse struct {
	Error string `json:"error"`
}

// SubscribeRequest is the browser PushSubscription JSON
type SubscribeRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     *struct {
		Auth   string `json:"auth"`
		P256dh string `json:"p256dh"`
	} `json:"keys"`
}

// SendRequest is the body of a manual send
type SendRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon"`
}

// SendResponse is returned after a manual send
type SendResponse struct {
	OK      bool                       `json:"ok"`
	Message string                     `json:"message"`
	Success int                        `json:"success"`
	Failed  int                        `json:"failed"`
	Errors  []dispatch.DeliveryFailure `json:"errors"`
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger     *zap.Logger
	repo       Repository
	dispatcher Dispatcher
	runner     CheckRunner
	thresholds ThresholdStore
	keys       KeyProvider
	breakers   BreakerReporter
	now        func() time.Time
}

// NewHandler creates a new API handler
func NewHandler(logger *zap.Logger, repo Repository, dispatcher Dispatcher, runner CheckRunner, thresholds ThresholdStore, keys KeyProvider) *Handler {
	return &Handler{
		logger:     logger,
		repo:       repo,
		dispatcher: dispatcher,
		runner:     runner,
		thresholds: thresholds,
		keys:       keys,
		now:        time.Now,
	}
}

// WithBreakers adds mirror breaker states to the health report.
func (h *Handler) WithBreakers(b BreakerReporter) *Handler {
	h.breakers = b
	return h
}

// RunChecks handles GET /api/push-cron. The run outlives a client that
// disconnects; the runner's own timeout bounds it.
func (h *Handler) RunChecks(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("starting notification checks")

	summary := h.runner.Run(context.WithoutCancel(r.Context()))

	writeJSON(w, http.StatusOK, summary)
}

// ProbeChecks handles HEAD /api/push-cron for uptime monitors
func (h *Handler) ProbeChecks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetThreshold handles GET /api/settings/inventory-threshold
func (h *Handler) GetThreshold(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"threshold": h.thresholds.Load(r.Context()),
	})
}

// SetThreshold handles POST /api/settings/inventory-threshold
func (h *Handler) SetThreshold(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Threshold *float64 `json:"threshold"`
	}

	msg := fmt.Sprintf("threshold must be a number between %d and %d", checks.MinThreshold, checks.MaxThreshold)

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Threshold == nil {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if _, ok := checks.NormalizeThreshold(*req.Threshold); !ok {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	stored, err := h.thresholds.Save(r.Context(), *req.Threshold)
	if err != nil {
		h.logger.Error("failed to save threshold", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to save threshold")
		return
	}

	h.logger.Info("threshold updated", zap.Int("threshold", stored))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"threshold": stored,
	})
}

// Subscribe handles POST /api/push-subscribe
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid subscription")
		return
	}

	if req.Endpoint == "" || req.Keys == nil || req.Keys.Auth == "" || req.Keys.P256dh == "" {
		writeError(w, http.StatusBadRequest, "Invalid subscription")
		return
	}

	userAgent := r.UserAgent()
	sub := &db.Subscription{
		Endpoint: req.Endpoint,
		Auth:     req.Keys.Auth,
		P256dh:   req.Keys.P256dh,
		Platform: PlatformFromUserAgent(userAgent),
	}
	if userAgent != "" {
		sub.UserAgent = &userAgent
	}

	if err := h.repo.UpsertSubscription(r.Context(), sub); err != nil {
		h.logger.Error("failed to store subscription",
			zap.Error(err),
			zap.String("endpoint", observ.TruncateEndpoint(req.Endpoint, 30)),
		)
		writeError(w, http.StatusInternalServerError, "Failed to store subscription")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"message":  "Successfully subscribed",
		"platform": sub.Platform,
	})
}

// Unsubscribe handles POST /api/push-unsubscribe
func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "Endpoint is required")
		return
	}

	if err := h.repo.DeactivateSubscriptionByEndpoint(r.Context(), req.Endpoint); err != nil {
		h.logger.Error("failed to unsubscribe", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to unsubscribe")
		return
	}

	h.logger.Info("unsubscribed", zap.String("endpoint", observ.TruncateEndpoint(req.Endpoint, 30)))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Successfully unsubscribed",
	})
}

// SendNow handles POST /api/send-push. It bypasses the evaluators and
// dedups on a fresh tag, so every call is delivered.
func (h *Handler) SendNow(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" || req.Body == "" {
		writeError(w, http.StatusBadRequest, "Title and body are required")
		return
	}

	if !h.keys.Configured() {
		writeError(w, http.StatusBadRequest, "VAPID keys not configured")
		return
	}

	result := h.dispatcher.Dispatch(r.Context(), push.Request{
		Title: req.Title,
		Body:  req.Body,
		Icon:  req.Icon,
	})

	h.logger.Info("manual notification sent",
		zap.Int("success", result.Success),
		zap.Int("failed", result.Failed),
	)

	writeJSON(w, http.StatusOK, SendResponse{
		OK:      true,
		Message: fmt.Sprintf("Push notification sent to %d devices", result.Success),
		Success: result.Success,
		Failed:  result.Failed,
		Errors:  result.Errors,
	})
}

// PublicKey handles GET /api/push-public-key
func (h *Handler) PublicKey(w http.ResponseWriter, r *http.Request) {
	key := h.keys.PublicKey()
	if key == "" {
		writeError(w, http.StatusInternalServerError, "VAPID public key not configured")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"publicKey": key})
}

// Health handles GET /api/push-health-check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	since := h.now().Add(-24 * time.Hour)

	total, active, err := h.repo.SubscriptionCounts(ctx)
	if err != nil {
		h.healthError(w, err)
		return
	}

	sent, failed, err := h.repo.DeliveryStats(ctx, since)
	if err != nil {
		h.healthError(w, err)
		return
	}

	recent, err := h.repo.RecentCheckLogs(ctx, since, recentChecksLimit)
	if err != nil {
		h.healthError(w, err)
		return
	}
	if recent == nil {
		recent = []*db.CheckLog{}
	}

	resp := map[string]interface{}{
		"status": "healthy",
		"subscriptions": map[string]int{
			"total":  total,
			"active": active,
		},
		"notifications_24h": map[string]interface{}{
			"sent":         sent,
			"failed":       failed,
			"success_rate": SuccessRate(sent, failed),
		},
		"recent_checks": recent,
		"timestamp":     h.now().UTC().Format(time.RFC3339Nano),
	}
	if h.breakers != nil {
		resp["mirror_breakers"] = h.breakers.BreakerStates()
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) healthError(w http.ResponseWriter, err error) {
	h.logger.Error("health check failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"status": "error",
		"error":  err.Error(),
	})
}

// PlatformFromUserAgent maps a User-Agent to android, ios or web.
func PlatformFromUserAgent(ua string) string {
	switch {
	case strings.Contains(ua, "iPhone") || strings.Contains(ua, "iPad"):
		return db.PlatformIOS
	case strings.Contains(ua, "Android"):
		return db.PlatformAndroid
	default:
		return db.PlatformWeb
	}
}

// SuccessRate formats sent/(sent+failed) as a percentage with one decimal,
// or "N/A" when nothing was attempted.
func SuccessRate(sent, failed int) string {
	if sent+failed == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.1f", float64(sent)/float64(sent+failed)*100)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
