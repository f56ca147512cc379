package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/lalithlochan/pushwatch/internal/checks"
)

func TestFailedChecks(t *testing.T) {
	msg := "boom"
	tests := []struct {
		name    string
		summary checks.Summary
		wantErr bool
	}{
		{"all completed", checks.Summary{Checks: []checks.CheckStatus{
			{Type: checks.SummaryDeliveryDates, Status: checks.StatusCompleted},
			{Type: checks.SummaryInventory, Status: checks.StatusCompleted},
		}}, false},
		{"one failed", checks.Summary{Checks: []checks.CheckStatus{
			{Type: checks.SummaryDeliveryDates, Status: checks.StatusCompleted},
			{Type: checks.SummaryInventory, Status: checks.StatusFailed, Error: &msg},
		}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := failedChecks(tt.summary)
			if (err != nil) != tt.wantErr {
				t.Errorf("failedChecks() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestVapidKeysCmd(t *testing.T) {
	cmd := vapidKeysCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", out.String())
	}
	if !strings.HasPrefix(lines[0], "VAPID_PUBLIC_KEY=") || len(lines[0]) <= len("VAPID_PUBLIC_KEY=") {
		t.Errorf("unexpected public key line %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "VAPID_PRIVATE_KEY=") || len(lines[1]) <= len("VAPID_PRIVATE_KEY=") {
		t.Errorf("unexpected private key line %q", lines[1])
	}
}
