package checks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/lalithlochan/pushwatch/internal/db"
)

// ThresholdKey is the app_settings key holding the low stock threshold.
const ThresholdKey = "inventory_low_stock_threshold"

// Threshold bounds.
const (
	MinThreshold = 0
	MaxThreshold = 100000
)

// SettingsStore reads and writes app settings.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (*db.Setting, error)
	UpsertSetting(ctx context.Context, key string, value []byte) error
}

type thresholdValue struct {
	Threshold *float64 `json:"threshold"`
}

// NormalizeThreshold floors v and reports whether it is in range.
func NormalizeThreshold(v float64) (int, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < MinThreshold || v > MaxThreshold {
		return 0, false
	}
	return int(math.Floor(v)), true
}

// ThresholdLoader owns the low stock threshold setting and its fallback.
type ThresholdLoader struct {
	store    SettingsStore
	fallback int
	logger   *zap.Logger
}

// NewThresholdLoader creates a loader that returns fallback when the
// setting is missing or invalid.
func NewThresholdLoader(store SettingsStore, fallback int, logger *zap.Logger) *ThresholdLoader {
	if v, ok := NormalizeThreshold(float64(fallback)); ok {
		fallback = v
	} else {
		fallback = 10
	}
	return &ThresholdLoader{store: store, fallback: fallback, logger: logger}
}

// Fallback returns the value used when nothing valid is stored.
func (l *ThresholdLoader) Fallback() int {
	return l.fallback
}

// Load returns the stored threshold or the fallback. It never fails.
func (l *ThresholdLoader) Load(ctx context.Context) int {
	setting, err := l.store.GetSetting(ctx, ThresholdKey)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			l.logger.Warn("failed to load threshold, using fallback",
				zap.Error(err),
				zap.Int("fallback", l.fallback),
			)
		}
		return l.fallback
	}

	var v thresholdValue
	if err := json.Unmarshal(setting.Value, &v); err != nil || v.Threshold == nil {
		l.logger.Warn("stored threshold unreadable, using fallback", zap.ByteString("value", setting.Value))
		return l.fallback
	}

	n, ok := NormalizeThreshold(*v.Threshold)
	if !ok {
		l.logger.Warn("stored threshold out of range, using fallback", zap.Float64("value", *v.Threshold))
		return l.fallback
	}

	return n
}

// Save validates, floors and stores v, returning the stored value.
func (l *ThresholdLoader) Save(ctx context.Context, v float64) (int, error) {
	n, ok := NormalizeThreshold(v)
	if !ok {
		return 0, fmt.Errorf("threshold must be between %d and %d", MinThreshold, MaxThreshold)
	}

	value, err := json.Marshal(map[string]int{"threshold": n})
	if err != nil {
		return 0, fmt.Errorf("marshal threshold: %w", err)
	}

	if err := l.store.UpsertSetting(ctx, ThresholdKey, value); err != nil {
		return 0, fmt.Errorf("save threshold: %w", err)
	}

	return n, nil
}
