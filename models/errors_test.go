package models

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestIsMarkup(t *testing.T) {
	tests := []struct {
		body string
		want bool
	}{
		{"<html><body>blocked</body></html>", true},
		{"  \r\n<!DOCTYPE html>", true},
		{"\uFEFF<html>", true},
		{`[{"FONKODU":"AAK"}]`, false},
		{`{"data":[]}`, false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsMarkup(tt.body); got != tt.want {
			t.Errorf("IsMarkup(%q) = %v, want %v", tt.body, got, tt.want)
		}
	}
}

func TestWafBlockedErrorPreview(t *testing.T) {
	body := "<html><head><title> Request Rejected </title></head><body>" + strings.Repeat("ş", 2*PreviewLimit) + "</body></html>"
	err := NewWafBlockedError("consume BindHistoryInfo", body)

	if err.Kind != KindWafBlocked {
		t.Fatalf("Kind = %s", err.Kind)
	}
	if n := len([]rune(err.Preview)); n != PreviewLimit {
		t.Errorf("preview has %d runes, want %d", n, PreviewLimit)
	}
	if !strings.Contains(err.Message, `"Request Rejected"`) {
		t.Errorf("message %q does not name the page title", err.Message)
	}
	if err.CorrelationID == "" || err.Timestamp.IsZero() {
		t.Error("correlation id and timestamp must be set")
	}
}

func TestAcquisitionErrorWrapping(t *testing.T) {
	cause := errors.New("net::ERR_CONNECTION_RESET")
	nav := NewNavigationError("navigate", "history page did not load", cause)
	wrapped := fmt.Errorf("attempt 1: %w", nav)

	if !IsKind(wrapped, KindNavigation) {
		t.Error("IsKind should see through fmt wrapping")
	}
	if IsKind(wrapped, KindTimeout) {
		t.Error("IsKind matched the wrong kind")
	}
	if !errors.Is(wrapped, cause) {
		t.Error("cause should remain reachable through Unwrap")
	}

	timeout := NewTimeoutError("consume BindComparisonFundReturns", 30*time.Second, "no qualifying response")
	if got := timeout.Error(); !strings.Contains(got, "30s") || !strings.Contains(got, "BindComparisonFundReturns") {
		t.Errorf("Error() = %q, want operation and timeout", got)
	}

	d := timeout.ToDetail()
	if d.Code != string(KindTimeout) || d.CorrelationID != timeout.CorrelationID {
		t.Errorf("ToDetail() = %+v", d)
	}
}
