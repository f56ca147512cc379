package checks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Check status values reported in a Summary.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Check type names reported in a Summary.
const (
	SummaryDeliveryDates = "delivery_dates"
	SummaryInventory     = "inventory"
)

// DeliveryChecker runs the delivery date check.
type DeliveryChecker interface {
	Evaluate(ctx context.Context) error
}

// InventoryChecker runs the stock check for a threshold.
type InventoryChecker interface {
	Evaluate(ctx context.Context, threshold int) error
}

// ThresholdSource supplies the current low stock threshold.
type ThresholdSource interface {
	Load(ctx context.Context) int
}

// CheckStatus is one entry in a Summary.
type CheckStatus struct {
	Type      string  `json:"type"`
	Status    string  `json:"status"`
	Error     *string `json:"error"`
	Threshold *int    `json:"threshold,omitempty"`
}

// Summary describes one trigger run.
type Summary struct {
	Success   bool          `json:"success"`
	Message   string        `json:"message"`
	Duration  string        `json:"duration"`
	Checks    []CheckStatus `json:"checks"`
	Timestamp string        `json:"timestamp"`
}

// Runner executes both checks concurrently. A failing or panicking check
// is reported in the Summary and never stops the other.
type Runner struct {
	delivery   DeliveryChecker
	inventory  InventoryChecker
	thresholds ThresholdSource
	timeout    time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewRunner creates a Runner. timeout bounds a whole run; zero means 60s.
func NewRunner(delivery DeliveryChecker, inventory InventoryChecker, thresholds ThresholdSource, timeout time.Duration, logger *zap.Logger) *Runner {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Runner{
		delivery:   delivery,
		inventory:  inventory,
		thresholds: thresholds,
		timeout:    timeout,
		logger:     logger,
		now:        time.Now,
	}
}

// Run loads the threshold, runs both checks and summarizes them.
func (r *Runner) Run(ctx context.Context) Summary {
	start := r.now()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	threshold := r.thresholds.Load(ctx)

	r.logger.Info("running notification checks", zap.Int("threshold", threshold))

	var (
		wg           sync.WaitGroup
		deliveryErr  error
		inventoryErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		deliveryErr = guard(func() error { return r.delivery.Evaluate(ctx) })
	}()
	go func() {
		defer wg.Done()
		inventoryErr = guard(func() error { return r.inventory.Evaluate(ctx, threshold) })
	}()
	wg.Wait()

	inv := status(SummaryInventory, inventoryErr)
	inv.Threshold = &threshold

	elapsed := r.now().Sub(start)

	summary := Summary{
		Success:   true,
		Message:   "Push notification checks completed",
		Duration:  fmt.Sprintf("%dms", elapsed.Milliseconds()),
		Checks:    []CheckStatus{status(SummaryDeliveryDates, deliveryErr), inv},
		Timestamp: r.now().UTC().Format(time.RFC3339Nano),
	}

	r.logger.Info("notification checks finished",
		zap.Duration("duration", elapsed),
		zap.NamedError("delivery_error", deliveryErr),
		zap.NamedError("inventory_error", inventoryErr),
	)

	return summary
}

func status(checkType string, err error) CheckStatus {
	if err != nil {
		msg := err.Error()
		return CheckStatus{Type: checkType, Status: StatusFailed, Error: &msg}
	}
	return CheckStatus{Type: checkType, Status: StatusCompleted}
}

// guard turns a panic in fn into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("check panicked: %v", p)
		}
	}()
	return fn()
}
