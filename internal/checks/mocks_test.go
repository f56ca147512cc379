package checks

import (
	"context"
	"sync"
	"time"

	"github.com/lalithlochan/pushwatch/internal/db"
	"github.com/lalithlochan/pushwatch/internal/dispatch"
	"github.com/lalithlochan/pushwatch/internal/push"
)

type mockOrders struct {
	orders []*db.Order
	err    error
}

func (m *mockOrders) ListOrdersWithDueDate(ctx context.Context) ([]*db.Order, error) {
	return m.orders, m.err
}

type mockStock struct {
	items []*db.StockItem
	err   error
}

func (m *mockStock) ListStockItems(ctx context.Context) ([]*db.StockItem, error) {
	return m.items, m.err
}

type mockCheckLogs struct {
	mu   sync.Mutex
	logs []*db.CheckLog
}

func (m *mockCheckLogs) InsertCheckLog(ctx context.Context, entry *db.CheckLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, entry)
	return nil
}

type recordingDispatcher struct {
	mu       sync.Mutex
	requests []push.Request
}

func (r *recordingDispatcher) Dispatch(ctx context.Context, req push.Request) dispatch.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	return dispatch.Result{Success: 1, Errors: []dispatch.DeliveryFailure{}}
}

func (r *recordingDispatcher) byTag(tag string) *push.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.requests {
		if r.requests[i].Tag == tag {
			return &r.requests[i]
		}
	}
	return nil
}

type mockSettings struct {
	values map[string][]byte
	getErr error
	putErr error
}

func newMockSettings() *mockSettings {
	return &mockSettings{values: make(map[string][]byte)}
}

func (m *mockSettings) GetSetting(ctx context.Context, key string) (*db.Setting, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.values[key]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &db.Setting{Key: key, Value: v, UpdatedAt: time.Now()}, nil
}

func (m *mockSettings) UpsertSetting(ctx context.Context, key string, value []byte) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.values[key] = value
	return nil
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }
