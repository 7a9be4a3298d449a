package portal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-rod/rod"
	"github.com/use-agent/fonfetch/models"
)

// Classify maps any failure of an acquisition to the error taxonomy. body is
// the upstream payload when one was read, or "". budget is the time the
// operation was given and is carried by timeout errors. Errors that are
// already classified pass through unchanged.
func Classify(op string, err error, body string, budget time.Duration) error {
	if err == nil {
		return nil
	}
	if _, ok := models.AsAcquisitionError(err); ok {
		return err
	}

	var navErr *rod.NavigationError
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case models.IsMarkup(body):
		return models.NewWafBlockedError(op, body)
	case errors.As(err, &navErr):
		return models.NewNavigationError(op, "navigation failed: "+navErr.Reason, err)
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewTimeoutError(op, budget, "deadline exceeded")
	case errors.Is(err, context.Canceled):
		return models.NewTimeoutError(op, budget, "request canceled")
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return models.NewParseError(op, "payload could not be decoded", body, err)
	default:
		return models.NewClientError(op, err.Error(), err)
	}
}

// Retryable reports whether a fresh session could plausibly succeed where
// this one failed.
func Retryable(err error) bool {
	ae, ok := models.AsAcquisitionError(err)
	if !ok {
		return false
	}
	switch ae.Kind {
	case models.KindNavigation, models.KindTimeout, models.KindWafBlocked:
		return true
	}
	return false
}
