package checks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/pushwatch/internal/db"
)

// Inventory tags.
const (
	TagInventoryDepleted = "inventory-depleted"
	TagInventoryLow      = "inventory-low"
)

// StockSource loads stock balances, lowest first.
type StockSource interface {
	ListStockItems(ctx context.Context) ([]*db.StockItem, error)
}

// InventoryEvaluator notifies about depleted and low stock.
type InventoryEvaluator struct {
	base
	stock    StockSource
	examples int
}

// NewInventoryEvaluator creates an InventoryEvaluator.
func NewInventoryEvaluator(stock StockSource, logs CheckLogStore, dispatcher Dispatcher, cfg Config, logger *zap.Logger) *InventoryEvaluator {
	cfg.applyDefaults()
	return &InventoryEvaluator{
		base: base{
			checkType:  db.CheckLowStock,
			logs:       logs,
			dispatcher: dispatcher,
			logger:     logger,
			now:        time.Now,
		},
		stock:    stock,
		examples: cfg.InventoryExamples,
	}
}

// Evaluate runs the check against threshold and writes one check log.
// threshold is used as given; defaulting belongs to the caller.
func (e *InventoryEvaluator) Evaluate(ctx context.Context, threshold int) error {
	started := e.now()

	items, err := e.stock.ListStockItems(ctx)
	if err != nil {
		e.logger.Error("failed to load inventory", zap.Error(err))
		e.record(ctx, 0, 0, err, started)
		return fmt.Errorf("load inventory: %w", err)
	}

	depleted, low := partitionStock(items, threshold)

	affected, sent := e.dispatchAll(ctx, []partition{
		{
			tag:      TagInventoryDepleted,
			title:    "Items depleted!",
			body:     fmt.Sprintf("%d items depleted. %s", len(depleted), e.list(depleted)),
			metadata: map[string]interface{}{"type": "inventory", "level": "depleted", "count": len(depleted)},
			size:     len(depleted),
		},
		{
			tag:      TagInventoryLow,
			title:    "Low stock items",
			body:     fmt.Sprintf("%d items running low (<= %d). %s", len(low), threshold, e.list(low)),
			metadata: map[string]interface{}{"type": "inventory", "level": "low", "count": len(low), "threshold": threshold},
			size:     len(low),
		},
	})

	e.record(ctx, affected, sent, nil, started)
	return nil
}

func (e *InventoryEvaluator) list(items []*db.StockItem) string {
	examples := make([]string, len(items))
	for i, it := range items {
		examples[i] = formatStock(it)
	}
	return summarize(examples, e.examples)
}

// partitionStock splits items into depleted (0) and low (1..threshold).
// Negative balances are data errors and fall in neither.
func partitionStock(items []*db.StockItem, threshold int) (depleted, low []*db.StockItem) {
	for _, it := range items {
		switch {
		case it.Remaining == 0:
			depleted = append(depleted, it)
		case it.Remaining > 0 && it.Remaining <= threshold:
			low = append(low, it)
		}
	}
	return depleted, low
}
