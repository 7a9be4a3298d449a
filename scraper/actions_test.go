package scraper

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/go-rod/rod/lib/proto"
)

type stubElement struct {
	scripts []string
	err     error
}

func (e *stubElement) Eval(js string, _ ...interface{}) (*proto.RuntimeRemoteObject, error) {
	e.scripts = append(e.scripts, js)
	return &proto.RuntimeRemoteObject{}, e.err
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestDispatchChangeLogsFailure(t *testing.T) {
	logs := captureLogs(t)
	el := &stubElement{err: errors.New("execution context was destroyed")}

	dispatchChange(el, "s-1", "start date")

	if len(el.scripts) != 1 || !strings.Contains(el.scripts[0], "'change'") {
		t.Fatalf("scripts = %q, want one change dispatch", el.scripts)
	}
	out := logs.String()
	for _, want := range []string{"change event dispatch failed", "session=s-1", "execution context was destroyed"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q lacks %q", out, want)
		}
	}
}

func TestDispatchChangeQuietOnSuccess(t *testing.T) {
	logs := captureLogs(t)
	dispatchChange(&stubElement{}, "s-1", "start date")
	if logs.Len() != 0 {
		t.Errorf("unexpected log output %q", logs.String())
	}
}
