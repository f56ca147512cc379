package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/lalithlochan/pushwatch/internal/db"
	"github.com/lalithlochan/pushwatch/internal/dedup"
	"github.com/lalithlochan/pushwatch/internal/mirror"
	"github.com/lalithlochan/pushwatch/internal/push"
)

// MockStore is an in-memory Store.
type MockStore struct {
	mu          sync.Mutex
	subs        []*db.Subscription
	logs        []*db.DeliveryLog
	deactivated map[uuid.UUID]bool
	listErr     error
	logErr      error
}

func NewMockStore(subs ...*db.Subscription) *MockStore {
	return &MockStore{subs: subs, deactivated: make(map[uuid.UUID]bool)}
}

func (m *MockStore) ListActiveSubscriptions(ctx context.Context) ([]*db.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*db.Subscription
	for _, s := range m.subs {
		if s.IsActive {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MockStore) DeactivateSubscription(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.ID == id {
			s.IsActive = false
			m.deactivated[id] = true
			return nil
		}
	}
	return db.ErrNotFound
}

func (m *MockStore) InsertDeliveryLog(ctx context.Context, entry *db.DeliveryLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.logErr != nil {
		return m.logErr
	}
	m.logs = append(m.logs, entry)
	return nil
}

func (m *MockStore) logCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.logs)
}

// fakeSender fails endpoints listed in errs and records call order.
type fakeSender struct {
	mu    sync.Mutex
	errs  map[string]error
	calls []string
	last  []byte
}

func (f *fakeSender) Send(ctx context.Context, sub *db.Subscription, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sub.Endpoint)
	f.last = payload
	return f.errs[sub.Endpoint]
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

type recordingMirror struct{ notices []mirror.Notice }

func (r *recordingMirror) Forward(_ context.Context, n mirror.Notice) {
	r.notices = append(r.notices, n)
}

func newSub(endpoint string) *db.Subscription {
	return &db.Subscription{
		ID:       uuid.New(),
		Endpoint: endpoint,
		P256dh:   "p256dh",
		Auth:     "auth",
		IsActive: true,
	}
}

func newTestDispatcher(store Store, sender push.Sender, clock *fakeClock, concurrency int, opts ...Option) *Dispatcher {
	opts = append(opts, WithClock(clock.Now))
	return New(store, sender, dedup.NewMemoryGate(5*time.Minute), Config{Concurrency: concurrency}, zap.NewNop(), opts...)
}

func testClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC)}
}

func TestDispatch_AllSucceed(t *testing.T) {
	store := NewMockStore(newSub("https://push.example/a"), newSub("https://push.example/b"))
	sender := &fakeSender{}
	d := newTestDispatcher(store, sender, testClock(), 1)

	result := d.Dispatch(context.Background(), push.Request{Title: "t", Body: "b", Tag: "delivery-today"})

	if result.Success != 2 || result.Failed != 0 {
		t.Fatalf("expected 2/0, got %d/%d", result.Success, result.Failed)
	}
	if result.Errors == nil || len(result.Errors) != 0 {
		t.Errorf("expected empty non-nil errors, got %v", result.Errors)
	}
	if store.logCount() != 2 {
		t.Fatalf("expected 2 delivery logs, got %d", store.logCount())
	}
	for _, l := range store.logs {
		if l.Status != db.StatusSent || l.SentAt == nil || l.ErrorMessage != nil {
			t.Errorf("unexpected sent log %+v", l)
		}
		if l.Icon == nil || *l.Icon != push.DefaultIcon {
			t.Errorf("expected default icon on log, got %v", l.Icon)
		}
	}
}

func TestDispatch_NoCrossFailureContamination(t *testing.T) {
	for _, concurrency := range []int{1, 4} {
		t.Run(fmt.Sprintf("concurrency=%d", concurrency), func(t *testing.T) {
			subs := []*db.Subscription{
				newSub("https://push.example/1"),
				newSub("https://push.example/2"),
				newSub("https://push.example/3"),
				newSub("https://push.example/4"),
				newSub("https://push.example/5"),
			}
			store := NewMockStore(subs...)
			sender := &fakeSender{errs: map[string]error{
				"https://push.example/3": &push.DeliveryError{StatusCode: http.StatusInternalServerError},
			}}
			d := newTestDispatcher(store, sender, testClock(), concurrency)

			result := d.Dispatch(context.Background(), push.Request{Title: "t", Body: "b", Tag: "x"})

			if result.Success != 4 || result.Failed != 1 {
				t.Fatalf("expected 4/1, got %d/%d", result.Success, result.Failed)
			}
			if sender.callCount() != 5 {
				t.Errorf("every subscription should be attempted, got %d", sender.callCount())
			}
			if !subs[2].IsActive {
				t.Error("transient failure must leave subscription active")
			}
			if len(store.deactivated) != 0 {
				t.Errorf("unexpected deactivations %v", store.deactivated)
			}
		})
	}
}

func TestDispatch_GoneDeactivates(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantActive bool
	}{
		{"410 gone", &push.DeliveryError{StatusCode: http.StatusGone}, false},
		{"404 not found", &push.DeliveryError{StatusCode: http.StatusNotFound}, false},
		{"429 throttled", &push.DeliveryError{StatusCode: http.StatusTooManyRequests}, true},
		{"network", errors.New("dial tcp: connection refused"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := newSub("https://push.example/dead")
			store := NewMockStore(sub, newSub("https://push.example/alive"))
			sender := &fakeSender{errs: map[string]error{sub.Endpoint: tt.err}}
			d := newTestDispatcher(store, sender, testClock(), 1)

			result := d.Dispatch(context.Background(), push.Request{Title: "t", Body: "b"})

			if result.Success != 1 || result.Failed != 1 {
				t.Fatalf("expected 1/1, got %d/%d", result.Success, result.Failed)
			}
			if sub.IsActive != tt.wantActive {
				t.Errorf("active = %v, want %v", sub.IsActive, tt.wantActive)
			}

			var failedLog *db.DeliveryLog
			for _, l := range store.logs {
				if l.SubscriptionID == sub.ID {
					failedLog = l
				}
			}
			if failedLog == nil || failedLog.Status != db.StatusFailed || failedLog.ErrorMessage == nil {
				t.Fatalf("expected failed delivery log, got %+v", failedLog)
			}
		})
	}
}

func TestDispatch_DedupWithinWindow(t *testing.T) {
	store := NewMockStore(newSub("https://push.example/a"))
	sender := &fakeSender{}
	clock := testClock()
	d := newTestDispatcher(store, sender, clock, 1)
	ctx := context.Background()

	first := d.Dispatch(ctx, push.Request{Title: "t", Body: "b", Tag: "x"})
	clock.t = clock.t.Add(time.Second)
	second := d.Dispatch(ctx, push.Request{Title: "t", Body: "b", Tag: "x"})

	if first.Success != 1 {
		t.Fatalf("first dispatch should deliver, got %+v", first)
	}
	if second.Success != 0 || second.Failed != 0 || len(second.Errors) != 0 {
		t.Fatalf("second dispatch should be a zero result, got %+v", second)
	}
	if store.logCount() != 1 {
		t.Errorf("deduplicated dispatch must not write logs, got %d", store.logCount())
	}
	if sender.callCount() != 1 {
		t.Errorf("expected 1 send, got %d", sender.callCount())
	}
}

func TestDispatch_DedupWindowExpires(t *testing.T) {
	store := NewMockStore(newSub("https://push.example/a"))
	sender := &fakeSender{}
	clock := testClock()
	d := newTestDispatcher(store, sender, clock, 1)
	ctx := context.Background()

	d.Dispatch(ctx, push.Request{Title: "t", Body: "b", Tag: "delivery-overdue"})
	clock.t = clock.t.Add(5 * time.Minute)
	result := d.Dispatch(ctx, push.Request{Title: "t", Body: "b", Tag: "delivery-overdue"})

	if result.Success != 1 {
		t.Fatalf("dispatch after window should deliver, got %+v", result)
	}
	if sender.callCount() != 2 {
		t.Errorf("expected 2 sends, got %d", sender.callCount())
	}
}

func TestDispatch_NoTagBypassesDedup(t *testing.T) {
	store := NewMockStore(newSub("https://push.example/a"))
	sender := &fakeSender{}
	d := newTestDispatcher(store, sender, testClock(), 1)
	ctx := context.Background()

	d.Dispatch(ctx, push.Request{Title: "manual", Body: "one"})
	result := d.Dispatch(ctx, push.Request{Title: "manual", Body: "two"})

	if result.Success != 1 || sender.callCount() != 2 {
		t.Fatalf("untagged dispatches must both deliver, result %+v calls %d", result, sender.callCount())
	}
}

func TestDispatch_StoreFailure(t *testing.T) {
	store := NewMockStore(newSub("https://push.example/a"))
	store.listErr = errors.New("connection reset")
	sender := &fakeSender{}
	m := &recordingMirror{}
	d := newTestDispatcher(store, sender, testClock(), 1, WithMirror(m))

	result := d.Dispatch(context.Background(), push.Request{Title: "t", Body: "b", Tag: "x"})

	if result.Success != 0 || result.Failed != 0 || len(result.Errors) != 0 {
		t.Fatalf("expected zero result, got %+v", result)
	}
	if sender.callCount() != 0 {
		t.Error("no delivery should be attempted")
	}
	if len(m.notices) != 0 {
		t.Error("nothing should be mirrored on store failure")
	}
}

func dispatchCount(t *testing.T, outcome string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "pushwatch_dispatch_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "outcome" && l.GetValue() == outcome {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestDispatch_EncodeFailure(t *testing.T) {
	store := NewMockStore(newSub("https://push.example/a"))
	sender := &fakeSender{}
	d := newTestDispatcher(store, sender, testClock(), 1)

	encodeBefore := dispatchCount(t, "encode_error")
	storeBefore := dispatchCount(t, "store_error")

	result := d.Dispatch(context.Background(), push.Request{
		Title:    "t",
		Body:     "b",
		Tag:      "encode",
		Metadata: map[string]interface{}{"bad": make(chan int)},
	})

	if result.Success != 0 || result.Failed != 0 || len(result.Errors) != 0 {
		t.Fatalf("expected zero result, got %+v", result)
	}
	if sender.callCount() != 0 {
		t.Error("no delivery should be attempted")
	}
	if got := dispatchCount(t, "encode_error") - encodeBefore; got != 1 {
		t.Errorf("expected one encode_error, got %v", got)
	}
	if got := dispatchCount(t, "store_error") - storeBefore; got != 0 {
		t.Errorf("store_error should not move on an encode failure, got %v", got)
	}
}

func TestDispatch_LogWriteFailureIgnored(t *testing.T) {
	sub := newSub("https://push.example/gone")
	store := NewMockStore(sub)
	store.logErr = errors.New("disk full")
	sender := &fakeSender{errs: map[string]error{sub.Endpoint: &push.DeliveryError{StatusCode: http.StatusGone}}}
	d := newTestDispatcher(store, sender, testClock(), 1)

	result := d.Dispatch(context.Background(), push.Request{Title: "t", Body: "b"})

	if result.Failed != 1 {
		t.Fatalf("expected 1 failure, got %+v", result)
	}
	if sub.IsActive {
		t.Error("deactivation must happen even when the log write fails")
	}
}

func TestDispatch_ErrorEndpointTruncated(t *testing.T) {
	long := "https://fcm.googleapis.com/fcm/send/" + strings.Repeat("k", 120)
	store := NewMockStore(newSub(long))
	sender := &fakeSender{errs: map[string]error{long: errors.New("timeout")}}
	d := newTestDispatcher(store, sender, testClock(), 1)

	result := d.Dispatch(context.Background(), push.Request{Title: "t", Body: "b"})

	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 error, got %v", result.Errors)
	}
	if result.Errors[0].Endpoint != long[:50]+"..." {
		t.Errorf("unexpected endpoint %q", result.Errors[0].Endpoint)
	}
	if result.Errors[0].Error != "timeout" {
		t.Errorf("unexpected message %q", result.Errors[0].Error)
	}
}

func TestDispatch_SequentialOrder(t *testing.T) {
	store := NewMockStore(
		newSub("https://push.example/newest"),
		newSub("https://push.example/middle"),
		newSub("https://push.example/oldest"),
	)
	sender := &fakeSender{}
	d := newTestDispatcher(store, sender, testClock(), 1)

	d.Dispatch(context.Background(), push.Request{Title: "t", Body: "b"})

	want := []string{"https://push.example/newest", "https://push.example/middle", "https://push.example/oldest"}
	for i, ep := range want {
		if sender.calls[i] != ep {
			t.Errorf("call %d = %s, want %s", i, sender.calls[i], ep)
		}
	}
}

func TestDispatch_Mirror(t *testing.T) {
	store := NewMockStore(newSub("https://push.example/a"))
	sender := &fakeSender{}
	m := &recordingMirror{}
	clock := testClock()
	d := newTestDispatcher(store, sender, clock, 1, WithMirror(m))
	ctx := context.Background()

	d.Dispatch(ctx, push.Request{Title: "Items depleted!", Body: "1 items depleted.", Tag: "inventory-depleted"})
	d.Dispatch(ctx, push.Request{Title: "Items depleted!", Body: "1 items depleted.", Tag: "inventory-depleted"})

	if len(m.notices) != 1 {
		t.Fatalf("expected one mirrored notice, got %d", len(m.notices))
	}
	n := m.notices[0]
	if n.Tag != "inventory-depleted" || n.Delivered != 1 || !n.SentAt.Equal(clock.t) {
		t.Errorf("unexpected notice %+v", n)
	}
}

func TestDispatch_PayloadCarriesTagAndMetadata(t *testing.T) {
	store := NewMockStore(newSub("https://push.example/a"))
	sender := &fakeSender{}
	d := newTestDispatcher(store, sender, testClock(), 1)

	d.Dispatch(context.Background(), push.Request{
		Title:    "Low stock items",
		Body:     "1 items",
		Tag:      "inventory-low",
		Metadata: map[string]interface{}{"threshold": 10},
	})

	body := string(sender.last)
	for _, want := range []string{`"tag":"inventory-low"`, `"threshold":10`, `"dateOfArrival":`} {
		if !strings.Contains(body, want) {
			t.Errorf("payload %s missing %s", body, want)
		}
	}
}
