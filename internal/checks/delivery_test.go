package checks

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/pushwatch/internal/db"
)

var fixedNow = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

func dueOn(days int) time.Time {
	d := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	return d.AddDate(0, 0, days)
}

func order(product string, code *string, remaining *int, dueInDays int) *db.Order {
	return &db.Order{ProductType: product, Code: code, Remaining: remaining, DueDate: dueOn(dueInDays)}
}

func newTestDeliveryEvaluator(orders OrderSource, logs *mockCheckLogs, d *recordingDispatcher) *DeliveryEvaluator {
	e := NewDeliveryEvaluator(orders, logs, d, Config{}, zap.NewNop())
	e.now = func() time.Time { return fixedNow }
	return e
}

func TestDeliveryEvaluator_ExampleScenario(t *testing.T) {
	orders := &mockOrders{orders: []*db.Order{
		order("Chair", strPtr("C-1"), intPtr(3), -1),
		order("Table", strPtr("T-9"), intPtr(1), 0),
		order("Sofa", nil, nil, 0),
	}}
	logs := &mockCheckLogs{}
	d := &recordingDispatcher{}

	if err := newTestDeliveryEvaluator(orders, logs, d).Evaluate(context.Background()); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if len(d.requests) != 2 {
		t.Fatalf("expected 2 dispatches, got %d", len(d.requests))
	}

	today := d.byTag(TagDeliveryToday)
	if today == nil || !strings.HasPrefix(today.Body, "2 orders due today.") {
		t.Fatalf("unexpected today request %+v", today)
	}
	if today.Body != "2 orders due today. Table (T-9) | remaining: 1; Sofa" {
		t.Errorf("unexpected today body %q", today.Body)
	}
	if today.Title != "Delivery due today!" {
		t.Errorf("unexpected title %q", today.Title)
	}

	overdue := d.byTag(TagDeliveryOverdue)
	if overdue == nil || overdue.Body != "1 orders overdue. Chair (C-1) | remaining: 3" {
		t.Fatalf("unexpected overdue request %+v", overdue)
	}

	if d.byTag(TagDeliveryTomorrow) != nil {
		t.Error("tomorrow partition is empty and must not dispatch")
	}

	if len(logs.logs) != 1 {
		t.Fatalf("expected 1 check log, got %d", len(logs.logs))
	}
	entry := logs.logs[0]
	if entry.CheckType != db.CheckDeliveryDates || entry.AffectedCount != 3 || entry.NotificationsSent != 2 || entry.ErrorMessage != nil {
		t.Errorf("unexpected check log %+v", entry)
	}
}

func TestDeliveryEvaluator_Tomorrow(t *testing.T) {
	orders := &mockOrders{orders: []*db.Order{
		order("Door", strPtr("D-2"), intPtr(5), 1),
		order("Window", nil, intPtr(2), 2),
	}}
	logs := &mockCheckLogs{}
	d := &recordingDispatcher{}

	newTestDeliveryEvaluator(orders, logs, d).Evaluate(context.Background())

	if len(d.requests) != 1 {
		t.Fatalf("expected 1 dispatch, got %d", len(d.requests))
	}
	req := d.requests[0]
	if req.Tag != TagDeliveryTomorrow || req.Body != "1 orders due tomorrow. Door (D-2) | remaining: 5" {
		t.Errorf("unexpected request %+v", req)
	}
	if req.Metadata["when"] != "tomorrow" || req.Metadata["type"] != "delivery" {
		t.Errorf("unexpected metadata %v", req.Metadata)
	}
	if logs.logs[0].AffectedCount != 1 || logs.logs[0].NotificationsSent != 1 {
		t.Errorf("unexpected check log %+v", logs.logs[0])
	}
}

func TestDeliveryEvaluator_TruncatesExamples(t *testing.T) {
	var orders []*db.Order
	for i := 0; i < 7; i++ {
		orders = append(orders, order("Item", nil, intPtr(i), 0))
	}
	d := &recordingDispatcher{}

	newTestDeliveryEvaluator(&mockOrders{orders: orders}, &mockCheckLogs{}, d).Evaluate(context.Background())

	body := d.requests[0].Body
	if !strings.HasSuffix(body, " +3 more") {
		t.Errorf("expected +3 more suffix, got %q", body)
	}
	if strings.Count(body, "Item") != 4 {
		t.Errorf("expected 4 examples, got %q", body)
	}
}

func TestDeliveryEvaluator_LoadFailure(t *testing.T) {
	logs := &mockCheckLogs{}
	d := &recordingDispatcher{}
	orders := &mockOrders{err: errors.New("relation \"orders\" does not exist")}

	err := newTestDeliveryEvaluator(orders, logs, d).Evaluate(context.Background())
	if err == nil {
		t.Fatal("expected load error")
	}

	if len(d.requests) != 0 {
		t.Error("no dispatch on load failure")
	}
	if len(logs.logs) != 1 {
		t.Fatalf("expected 1 check log, got %d", len(logs.logs))
	}
	entry := logs.logs[0]
	if entry.AffectedCount != 0 || entry.NotificationsSent != 0 || entry.ErrorMessage == nil {
		t.Errorf("expected zero-count log with error, got %+v", entry)
	}
}

func TestDeliveryEvaluator_NothingDue(t *testing.T) {
	logs := &mockCheckLogs{}
	d := &recordingDispatcher{}

	newTestDeliveryEvaluator(&mockOrders{orders: []*db.Order{order("Far", nil, nil, 10)}}, logs, d).Evaluate(context.Background())

	if len(d.requests) != 0 {
		t.Errorf("expected no dispatch, got %d", len(d.requests))
	}
	if logs.logs[0].AffectedCount != 0 || logs.logs[0].NotificationsSent != 0 {
		t.Errorf("unexpected check log %+v", logs.logs[0])
	}
}

func TestPartitionOrders_Disjoint(t *testing.T) {
	var orders []*db.Order
	for days := -5; days <= 5; days++ {
		orders = append(orders, order("x", nil, nil, days))
	}
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	dueToday, overdue, dueTomorrow := partitionOrders(orders, day, time.UTC)

	if len(overdue) != 5 || len(dueToday) != 1 || len(dueTomorrow) != 1 {
		t.Fatalf("unexpected partition sizes %d/%d/%d", len(overdue), len(dueToday), len(dueTomorrow))
	}

	seen := make(map[*db.Order]int)
	for _, set := range [][]*db.Order{dueToday, overdue, dueTomorrow} {
		for _, o := range set {
			seen[o]++
		}
	}
	for o, n := range seen {
		if n > 1 {
			t.Errorf("order due %v in %d partitions", o.DueDate, n)
		}
	}
}

func TestPartitionOrders_IgnoresTimeOfDay(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	late := &db.Order{ProductType: "late", DueDate: time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC)}
	early := &db.Order{ProductType: "early", DueDate: time.Date(2026, 3, 11, 0, 1, 0, 0, time.UTC)}

	dueToday, overdue, dueTomorrow := partitionOrders([]*db.Order{late, early}, day, time.UTC)

	if len(dueToday) != 1 || dueToday[0] != late {
		t.Errorf("late order should be due today")
	}
	if len(dueTomorrow) != 1 || dueTomorrow[0] != early {
		t.Errorf("early order should be due tomorrow")
	}
	if len(overdue) != 0 {
		t.Errorf("nothing should be overdue")
	}
}

func TestDeliveryEvaluator_TimezoneToday(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Tashkent")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	// 21:00 UTC on March 9 is already March 10 in Tashkent (UTC+5).
	now := time.Date(2026, 3, 9, 21, 0, 0, 0, time.UTC)
	orders := &mockOrders{orders: []*db.Order{order("Shelf", nil, nil, 0)}}
	d := &recordingDispatcher{}

	e := NewDeliveryEvaluator(orders, &mockCheckLogs{}, d, Config{Location: loc}, zap.NewNop())
	e.now = func() time.Time { return now }
	e.Evaluate(context.Background())

	if len(d.requests) != 1 || d.requests[0].Tag != TagDeliveryToday {
		t.Fatalf("expected a due-today dispatch, got %+v", d.requests)
	}
}

func TestFormatOrder(t *testing.T) {
	tests := []struct {
		name  string
		order *db.Order
		want  string
	}{
		{"full", &db.Order{ProductType: "Chair", Code: strPtr("C-1"), Remaining: intPtr(3)}, "Chair (C-1) | remaining: 3"},
		{"no code", &db.Order{ProductType: "Chair", Remaining: intPtr(0)}, "Chair | remaining: 0"},
		{"empty code", &db.Order{ProductType: "Chair", Code: strPtr("")}, "Chair"},
		{"no remaining", &db.Order{ProductType: "Chair", Code: strPtr("C-1")}, "Chair (C-1)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatOrder(tt.order); got != tt.want {
				t.Errorf("formatOrder() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		examples []string
		max      int
		want     string
	}{
		{nil, 4, ""},
		{[]string{"a"}, 4, "a"},
		{[]string{"a", "b", "c", "d"}, 4, "a; b; c; d"},
		{[]string{"a", "b", "c", "d", "e"}, 4, "a; b; c; d +1 more"},
		{[]string{"a", "b", "c"}, 1, "a +2 more"},
	}

	for _, tt := range tests {
		if got := summarize(tt.examples, tt.max); got != tt.want {
			t.Errorf("summarize(%v, %d) = %q, want %q", tt.examples, tt.max, got, tt.want)
		}
	}
}
