// Package checks turns business state into notification requests: orders
// nearing their due date and stock running out.
package checks

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/pushwatch/internal/db"
	"github.com/lalithlochan/pushwatch/internal/dispatch"
	"github.com/lalithlochan/pushwatch/internal/metrics"
	"github.com/lalithlochan/pushwatch/internal/push"
)

// Dispatcher delivers one notification request.
type Dispatcher interface {
	Dispatch(ctx context.Context, req push.Request) dispatch.Result
}

// CheckLogStore records evaluator runs.
type CheckLogStore interface {
	InsertCheckLog(ctx context.Context, entry *db.CheckLog) error
}

// Config holds settings shared by the evaluators.
type Config struct {
	DeliveryExamples  int
	InventoryExamples int
	Location          *time.Location
}

func (c *Config) applyDefaults() {
	if c.DeliveryExamples <= 0 {
		c.DeliveryExamples = 4
	}
	if c.InventoryExamples <= 0 {
		c.InventoryExamples = 5
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
}

// partition is one notification candidate inside a check.
type partition struct {
	tag      string
	title    string
	body     string
	metadata map[string]interface{}
	size     int
}

// base holds what both evaluators need to dispatch and record a run.
type base struct {
	checkType  string
	logs       CheckLogStore
	dispatcher Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// dispatchAll sends each non-empty partition in order and returns the
// affected and sent counts.
func (b *base) dispatchAll(ctx context.Context, parts []partition) (affected, sent int) {
	for _, p := range parts {
		affected += p.size
		if p.size == 0 {
			continue
		}

		result := b.dispatcher.Dispatch(ctx, push.Request{
			Title:    p.title,
			Body:     p.body,
			Tag:      p.tag,
			Metadata: p.metadata,
		})
		sent++

		b.logger.Info("check notification dispatched",
			zap.String("check", b.checkType),
			zap.String("tag", p.tag),
			zap.Int("items", p.size),
			zap.Int("delivered", result.Success),
			zap.Int("failed", result.Failed),
		)
	}
	return affected, sent
}

// record writes the check log. A failed write is logged and dropped.
func (b *base) record(ctx context.Context, affected, sent int, runErr error, started time.Time) {
	entry := &db.CheckLog{
		CheckType:         b.checkType,
		AffectedCount:     affected,
		NotificationsSent: sent,
		ExecutedAt:        b.now().UTC(),
	}

	status := "completed"
	if runErr != nil {
		msg := runErr.Error()
		entry.ErrorMessage = &msg
		status = "failed"
	}
	metrics.RecordCheckRun(b.checkType, status, b.now().Sub(started))

	if err := b.logs.InsertCheckLog(ctx, entry); err != nil {
		b.logger.Warn("failed to write check log",
			zap.String("check", b.checkType),
			zap.Error(err),
		)
	}
}
