package scraper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/fonfetch/models"
)

// Field names a form control by a human label and a CSS selector group.
type Field struct {
	Name     string
	Selector string
}

// ClickTarget describes the search control: a CSS selector for the primary
// click and an element id or visible text for the in-page fallback.
type ClickTarget struct {
	Selector string
	ID       string
	Text     string
}

// FillField types value into the first element matching f.Selector after
// clearing it, then reads it back. Date pickers can reformat or reject
// input; a mismatch is logged, or returned as an error in strict mode.
func FillField(ctx context.Context, s *Session, f Field, value string) error {
	op := "fill " + f.Name
	timing := s.cfg.Timing

	stepCtx, cancel := context.WithTimeout(ctx, timing.ElementTimeout)
	defer cancel()
	p := s.page.Context(stepCtx)

	el, err := p.Element(f.Selector)
	if err != nil {
		return models.NewClientError(op, fmt.Sprintf("no element matches %q", f.Selector), err)
	}

	// Watermark text survives a plain select-all, so clear through the DOM.
	if _, err := el.Eval(`() => { this.value = ''; this.dispatchEvent(new Event('input', { bubbles: true })); }`); err != nil {
		return models.NewClientError(op, "failed to clear field", err)
	}
	if err := sleepCtx(ctx, timing.FieldClearSettle); err != nil {
		return models.NewTimeoutError(op, timing.FieldClearSettle, "request expired while clearing field")
	}

	if err := el.Input(value); err != nil {
		return models.NewClientError(op, "failed to type into field", err)
	}
	dispatchChange(el, s.ID, f.Name)
	if err := sleepCtx(ctx, timing.FieldFillSettle); err != nil {
		return models.NewTimeoutError(op, timing.FieldFillSettle, "request expired while filling field")
	}

	got, err := el.Property("value")
	if err != nil {
		slog.Warn("field read-back failed", "session", s.ID, "field", f.Name, "error", err)
		return nil
	}
	if got.Str() != value {
		if s.cfg.Portal.StrictFieldVerify {
			return models.NewClientError(op, fmt.Sprintf("field holds %q after writing %q", got.Str(), value), nil)
		}
		slog.Warn("field value mismatch after fill",
			"session", s.ID,
			"field", f.Name,
			"want", value,
			"got", got.Str(),
		)
	}
	return nil
}

// clickFallbackJS finds the control by id, then by value or text, and
// clicks it natively. Postback buttons are not always hit-testable.
const clickFallbackJS = `(id, text) => {
	let el = id ? document.getElementById(id) : null;
	if (!el && text) {
		const candidates = document.querySelectorAll('input[type=submit], input[type=button], button, a');
		el = Array.from(candidates).find(c => ((c.value || c.textContent || '').trim()) === text) || null;
	}
	if (!el) return false;
	el.click();
	return true;
}`

// ClickSearch clicks the search control. The correlator for the expected
// response must already be registered.
func ClickSearch(ctx context.Context, s *Session, target ClickTarget) error {
	op := "click search"
	timing := s.cfg.Timing

	clickCtx, cancel := context.WithTimeout(ctx, timing.ClickTimeout)
	p := s.page.Context(clickCtx)
	el, err := p.Element(target.Selector)
	if err == nil {
		err = el.Click(proto.InputMouseButtonLeft, 1)
	}
	cancel()

	if err != nil {
		slog.Debug("primary click failed, trying in-page lookup",
			"session", s.ID, "selector", target.Selector, "error", err)

		res, evalErr := s.page.Context(ctx).Eval(clickFallbackJS, target.ID, target.Text)
		if evalErr != nil {
			return models.NewClientError(op, "in-page click fallback failed", evalErr)
		}
		if !res.Value.Bool() {
			return models.NewClientError(op,
				fmt.Sprintf("no search control found by selector %q, id %q or text %q", target.Selector, target.ID, target.Text), err)
		}
	}

	if err := sleepCtx(ctx, timing.ClickSettle); err != nil {
		return models.NewTimeoutError(op, timing.ClickSettle, "request expired after click")
	}
	return nil
}

// ajaxJS posts a form-encoded body from inside the page, with jQuery when
// the portal loaded it and fetch otherwise. It does not wait for the reply;
// the correlator captures it.
const ajaxJS = `(url, body) => {
	if (typeof window.$ !== 'undefined' && window.$.ajax) {
		window.$.ajax({
			url: url,
			type: 'POST',
			contentType: 'application/x-www-form-urlencoded; charset=UTF-8',
			processData: false,
			data: body,
		});
		return 'jquery';
	}
	fetch(url, {
		method: 'POST',
		credentials: 'same-origin',
		headers: {
			'Content-Type': 'application/x-www-form-urlencoded; charset=UTF-8',
			'X-Requested-With': 'XMLHttpRequest',
			'Accept': 'application/json, text/javascript, */*; q=0.01',
		},
		body: body,
	});
	return 'fetch';
}`

// TriggerXHR fires the portal's own endpoint from the page so the request
// carries the session's cookies, origin and TLS fingerprint.
func TriggerXHR(ctx context.Context, s *Session, endpoint string, form *Form) error {
	res, err := s.page.Context(ctx).Eval(ajaxJS, endpoint, form.Encode())
	if err != nil {
		return models.NewClientError("trigger "+endpoint, "in-page request failed", err)
	}
	slog.Debug("in-page request fired", "session", s.ID, "endpoint", endpoint, "via", res.Value.Str())
	return nil
}

// evaler is the part of *rod.Element that runs page scripts.
type evaler interface {
	Eval(js string, params ...interface{}) (*proto.RuntimeRemoteObject, error)
}

// dispatchChange fires the change event page handlers listen for. A failure
// is logged; the read-back that follows decides whether the fill held.
func dispatchChange(el evaler, sessionID, field string) {
	if _, err := el.Eval(`() => this.dispatchEvent(new Event('change', { bubbles: true }))`); err != nil {
		slog.Debug("change event dispatch failed", "session", sessionID, "field", field, "error", err)
	}
}
