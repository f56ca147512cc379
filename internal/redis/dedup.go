package redis

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/pushwatch/internal/dedup"
)

// DedupGate suppresses repeat sends of a tag across every process sharing
// the Redis instance. The window is enforced by key expiry, so the caller's
// clock only ends up in the stored value.
type DedupGate struct {
	client *Client
	logger *zap.Logger
	window time.Duration
}

// NewDedupGate creates a Redis-backed dedup gate. A non-positive window
// uses dedup.DefaultWindow, since a zero expiry would never release the tag.
func NewDedupGate(client *Client, window time.Duration, logger *zap.Logger) *DedupGate {
	if window <= 0 {
		window = dedup.DefaultWindow
	}
	return &DedupGate{
		client: client,
		logger: logger,
		window: window,
	}
}

// ShouldSend claims the tag with SET NX PX. Redis errors fail open: a
// duplicate notification beats a missed one.
func (g *DedupGate) ShouldSend(ctx context.Context, tag string, now time.Time) bool {
	key := g.client.key("dedup", tag)

	set, err := g.client.rdb.SetNX(ctx, key, strconv.FormatInt(now.UnixMilli(), 10), g.window).Result()
	if err != nil {
		g.logger.Warn("dedup check failed, sending anyway",
			zap.Error(err),
			zap.String("tag", tag),
		)
		return true
	}

	if !set {
		g.logger.Debug("dedup window active", zap.String("tag", tag))
	}

	return set
}
