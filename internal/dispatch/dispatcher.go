// Package dispatch fans one notification out to every active push
// subscription, behind a dedup gate.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/pushwatch/internal/db"
	"github.com/lalithlochan/pushwatch/internal/dedup"
	"github.com/lalithlochan/pushwatch/internal/metrics"
	"github.com/lalithlochan/pushwatch/internal/mirror"
	"github.com/lalithlochan/pushwatch/internal/observ"
	"github.com/lalithlochan/pushwatch/internal/push"
)

const (
	errorEndpointLen = 50
	logEndpointLen   = 30
)

// Store is the subset of the repository the dispatcher writes to.
type Store interface {
	ListActiveSubscriptions(ctx context.Context) ([]*db.Subscription, error)
	DeactivateSubscription(ctx context.Context, id uuid.UUID) error
	InsertDeliveryLog(ctx context.Context, entry *db.DeliveryLog) error
}

// Forwarder receives a copy of every dispatched notification.
type Forwarder interface {
	Forward(ctx context.Context, n mirror.Notice)
}

// DeliveryFailure describes one failed subscription.
type DeliveryFailure struct {
	Endpoint string `json:"endpoint"`
	Error    string `json:"error"`
}

// Result summarizes one dispatch call.
type Result struct {
	Success int               `json:"success"`
	Failed  int               `json:"failed"`
	Errors  []DeliveryFailure `json:"errors"`
}

// Config tunes delivery.
type Config struct {
	// Concurrency caps parallel deliveries per dispatch. 1 delivers in order.
	Concurrency int
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithMirror copies each dispatched notification to f.
func WithMirror(f Forwarder) Option {
	return func(d *Dispatcher) { d.mirror = f }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// Dispatcher delivers notifications to all active subscriptions.
type Dispatcher struct {
	store  Store
	sender push.Sender
	gate   dedup.Gate
	mirror Forwarder
	config Config
	logger *zap.Logger
	now    func() time.Time
}

// New creates a Dispatcher.
func New(store Store, sender push.Sender, gate dedup.Gate, cfg Config, logger *zap.Logger, opts ...Option) *Dispatcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	d := &Dispatcher{
		store:  store,
		sender: sender,
		gate:   gate,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}

	return d
}

func emptyResult() Result {
	return Result{Errors: []DeliveryFailure{}}
}

// Dispatch sends req to every active subscription. It never returns an
// error: store failures yield an empty Result, delivery failures are
// counted and listed.
func (d *Dispatcher) Dispatch(ctx context.Context, req push.Request) Result {
	now := d.now()
	payload := req.Build(now)

	if !d.gate.ShouldSend(ctx, payload.Tag, now) {
		metrics.RecordDedupSuppressed()
		metrics.RecordDispatch("deduplicated")
		d.logger.Info("notification suppressed by dedup window", zap.String("tag", payload.Tag))
		return emptyResult()
	}

	subs, err := d.store.ListActiveSubscriptions(ctx)
	if err != nil {
		metrics.RecordDispatch("store_error")
		d.logger.Warn("failed to load subscriptions", zap.Error(err), zap.String("tag", payload.Tag))
		return emptyResult()
	}

	data, err := payload.Marshal()
	if err != nil {
		metrics.RecordDispatch("encode_error")
		d.logger.Warn("failed to encode payload", zap.Error(err), zap.String("tag", payload.Tag))
		return emptyResult()
	}

	d.logger.Info("dispatching notification",
		zap.String("tag", payload.Tag),
		zap.String("title", payload.Title),
		zap.Int("active_subscriptions", len(subs)),
	)

	result := d.fanOut(ctx, subs, data, payload)
	metrics.RecordDispatch("sent")

	d.logger.Info("dispatch complete",
		zap.String("tag", payload.Tag),
		zap.Int("success", result.Success),
		zap.Int("failed", result.Failed),
	)

	if d.mirror != nil {
		d.mirror.Forward(ctx, mirror.Notice{
			Tag:       payload.Tag,
			Title:     payload.Title,
			Body:      payload.Body,
			Delivered: result.Success,
			Failed:    result.Failed,
			SentAt:    now,
		})
	}

	return result
}

func (d *Dispatcher) fanOut(ctx context.Context, subs []*db.Subscription, data []byte, payload push.Payload) Result {
	result := emptyResult()

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, d.config.Concurrency)
	)

	for _, sub := range subs {
		sem <- struct{}{}
		wg.Add(1)

		go func(sub *db.Subscription) {
			defer func() {
				<-sem
				wg.Done()
			}()

			err := d.deliver(ctx, sub, data, payload)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, DeliveryFailure{
					Endpoint: observ.TruncateEndpoint(sub.Endpoint, errorEndpointLen),
					Error:    err.Error(),
				})
				return
			}
			result.Success++
		}(sub)
	}

	wg.Wait()

	return result
}

// deliver sends to one subscription and records the attempt. Log writes
// and deactivation are independent best-effort writes.
func (d *Dispatcher) deliver(ctx context.Context, sub *db.Subscription, data []byte, payload push.Payload) error {
	sendErr := d.sender.Send(ctx, sub, data)

	icon := payload.Icon
	entry := &db.DeliveryLog{
		SubscriptionID: sub.ID,
		Title:          payload.Title,
		Body:           payload.Body,
		Icon:           &icon,
	}

	if sendErr == nil {
		sentAt := d.now()
		entry.Status = db.StatusSent
		entry.SentAt = &sentAt
		metrics.RecordDelivery(db.StatusSent)
	} else {
		msg := sendErr.Error()
		entry.Status = db.StatusFailed
		entry.ErrorMessage = &msg
		metrics.RecordDelivery(db.StatusFailed)

		d.logger.Warn("push delivery failed",
			zap.String("endpoint", observ.TruncateEndpoint(sub.Endpoint, logEndpointLen)),
			zap.String("subscription_id", sub.ID.String()),
			zap.Error(sendErr),
		)
	}

	if err := d.store.InsertDeliveryLog(ctx, entry); err != nil {
		d.logger.Warn("failed to write delivery log",
			zap.String("subscription_id", sub.ID.String()),
			zap.Error(err),
		)
	}

	if push.IsGone(sendErr) {
		if err := d.store.DeactivateSubscription(ctx, sub.ID); err != nil {
			d.logger.Warn("failed to deactivate gone subscription",
				zap.String("subscription_id", sub.ID.String()),
				zap.Error(err),
			)
		} else {
			metrics.RecordDeactivation()
			d.logger.Info("deactivated gone subscription",
				zap.String("subscription_id", sub.ID.String()),
				zap.String("endpoint", observ.TruncateEndpoint(sub.Endpoint, logEndpointLen)),
			)
		}
	}

	return sendErr
}
