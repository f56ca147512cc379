package checks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/pushwatch/internal/db"
)

// Delivery tags.
const (
	TagDeliveryToday    = "delivery-today"
	TagDeliveryOverdue  = "delivery-overdue"
	TagDeliveryTomorrow = "delivery-tomorrow"
)

// OrderSource loads orders with a due date, earliest first.
type OrderSource interface {
	ListOrdersWithDueDate(ctx context.Context) ([]*db.Order, error)
}

// DeliveryEvaluator notifies about orders due today, overdue, or due tomorrow.
type DeliveryEvaluator struct {
	base
	orders   OrderSource
	examples int
	loc      *time.Location
}

// NewDeliveryEvaluator creates a DeliveryEvaluator.
func NewDeliveryEvaluator(orders OrderSource, logs CheckLogStore, dispatcher Dispatcher, cfg Config, logger *zap.Logger) *DeliveryEvaluator {
	cfg.applyDefaults()
	return &DeliveryEvaluator{
		base: base{
			checkType:  db.CheckDeliveryDates,
			logs:       logs,
			dispatcher: dispatcher,
			logger:     logger,
			now:        time.Now,
		},
		orders:   orders,
		examples: cfg.DeliveryExamples,
		loc:      cfg.Location,
	}
}

// Evaluate runs the check and writes one check log. The returned error is
// the load failure, if any; by then the zero-count log is already written.
func (e *DeliveryEvaluator) Evaluate(ctx context.Context) error {
	started := e.now()

	orders, err := e.orders.ListOrdersWithDueDate(ctx)
	if err != nil {
		e.logger.Error("failed to load orders", zap.Error(err))
		e.record(ctx, 0, 0, err, started)
		return fmt.Errorf("load orders: %w", err)
	}

	dueToday, overdue, dueTomorrow := partitionOrders(orders, today(started, e.loc), e.loc)

	affected, sent := e.dispatchAll(ctx, []partition{
		e.build(TagDeliveryToday, "Delivery due today!", "%d orders due today. %s", "today", dueToday),
		e.build(TagDeliveryOverdue, "Overdue orders!", "%d orders overdue. %s", "overdue", overdue),
		e.build(TagDeliveryTomorrow, "Delivery due tomorrow", "%d orders due tomorrow. %s", "tomorrow", dueTomorrow),
	})

	e.record(ctx, affected, sent, nil, started)
	return nil
}

func (e *DeliveryEvaluator) build(tag, title, bodyFmt, when string, orders []*db.Order) partition {
	examples := make([]string, len(orders))
	for i, o := range orders {
		examples[i] = formatOrder(o)
	}

	return partition{
		tag:   tag,
		title: title,
		body:  fmt.Sprintf(bodyFmt, len(orders), summarize(examples, e.examples)),
		metadata: map[string]interface{}{
			"type":  "delivery",
			"when":  when,
			"count": len(orders),
		},
		size: len(orders),
	}
}

// partitionOrders splits orders by due date relative to day. Every order
// lands in at most one bucket; later dates land in none.
func partitionOrders(orders []*db.Order, day time.Time, loc *time.Location) (dueToday, overdue, dueTomorrow []*db.Order) {
	tomorrow := day.AddDate(0, 0, 1)

	for _, o := range orders {
		due := calendarDay(o.DueDate, loc)
		switch {
		case due.Before(day):
			overdue = append(overdue, o)
		case due.Equal(day):
			dueToday = append(dueToday, o)
		case due.Equal(tomorrow):
			dueTomorrow = append(dueTomorrow, o)
		}
	}

	return dueToday, overdue, dueTomorrow
}
