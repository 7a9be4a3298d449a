package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-rod/rod"
	"github.com/use-agent/fonfetch/models"
)

func TestClassify(t *testing.T) {
	var syntaxErr error
	if err := json.Unmarshal([]byte("{"), new(any)); err != nil {
		syntaxErr = err
	}

	tests := []struct {
		name string
		err  error
		body string
		want models.ErrorKind
	}{
		{"navigation", &rod.NavigationError{Reason: "net::ERR_NAME_NOT_RESOLVED"}, "", models.KindNavigation},
		{"wrapped navigation", fmt.Errorf("open: %w", &rod.NavigationError{Reason: "net::ERR_TIMED_OUT"}), "", models.KindNavigation},
		{"deadline", fmt.Errorf("wait: %w", context.DeadlineExceeded), "", models.KindTimeout},
		{"canceled", context.Canceled, "", models.KindTimeout},
		{"markup body", errors.New("unexpected token"), "  <html><title>Request Rejected</title></html>", models.KindWafBlocked},
		{"syntax", syntaxErr, "{", models.KindParse},
		{"anything else", errors.New("element not found"), "", models.KindClient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify("op", tt.err, tt.body, 0)
			ae, ok := models.AsAcquisitionError(got)
			if !ok {
				t.Fatalf("Classify() = %T, want *AcquisitionError", got)
			}
			if ae.Kind != tt.want {
				t.Errorf("Kind = %s, want %s", ae.Kind, tt.want)
			}
			if ae.CorrelationID == "" || ae.Timestamp.IsZero() {
				t.Error("missing correlation id or timestamp")
			}
			if tt.want == models.KindClient && !errors.Is(got, tt.err) {
				t.Error("client error does not wrap its cause")
			}
		})
	}
}

func TestClassifyPassesThrough(t *testing.T) {
	orig := models.NewParseError("decode", "bad shape", "{}", nil)
	if got := Classify("other op", orig, "<html>", 0); got != error(orig) {
		t.Errorf("Classify() = %v, want the original error", got)
	}
	if Classify("op", nil, "<html>", 0) != nil {
		t.Error("Classify(nil) != nil")
	}
}

func TestClassifyTimeoutCarriesBudget(t *testing.T) {
	for _, cause := range []error{context.DeadlineExceeded, context.Canceled} {
		ae, ok := models.AsAcquisitionError(Classify("fetch", cause, "", 90*time.Second))
		if !ok || ae.Kind != models.KindTimeout {
			t.Fatalf("Classify(%v) = %v, want timeout", cause, ae)
		}
		if ae.Timeout != 90*time.Second {
			t.Errorf("Classify(%v).Timeout = %v, want 90s", cause, ae.Timeout)
		}
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{models.NewNavigationError("nav", "down", nil), true},
		{models.NewTimeoutError("consume", 0, "quiet"), true},
		{models.NewWafBlockedError("consume", "<html></html>"), true},
		{models.NewParseError("decode", "bad", "", nil), false},
		{models.NewClientError("click", "missing", nil), false},
		{errors.New("plain"), false},
	}
	for _, tt := range tests {
		if got := Retryable(tt.err); got != tt.want {
			t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
