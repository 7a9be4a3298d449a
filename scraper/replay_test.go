package scraper

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/fonfetch/config"
	"github.com/use-agent/fonfetch/models"
)

func replayConfig(baseURL string) *config.Config {
	cfg := config.Load()
	cfg.Portal.BaseURL = baseURL
	return cfg
}

func TestReplayPost(t *testing.T) {
	var gotBody string
	var gotHeader http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotHeader = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":[{"FONKODU":"AAK"}]}`)
	}))
	defer srv.Close()

	cfg := replayConfig(srv.URL)
	form := NewForm().Set("fontip", "YAT").Set("fonkod", "AAK")
	cookies := []*proto.NetworkCookie{{Name: "ASP.NET_SessionId", Value: "abc"}, {Name: "TS01", Value: "x=y"}}

	raw, err := NewReplayer(cfg).Post(context.Background(), "/api/DB/BindHistoryInfo", srv.URL+"/TarihselVeriler.aspx", form, cookies)
	if err != nil {
		t.Fatal(err)
	}
	if raw.Status != http.StatusOK || raw.Body != `{"data":[{"FONKODU":"AAK"}]}` {
		t.Errorf("Post() = %d %q", raw.Status, raw.Body)
	}
	if gotBody != "fontip=YAT&fonkod=AAK" {
		t.Errorf("body = %q", gotBody)
	}
	for key, want := range map[string]string{
		"X-Requested-With": "XMLHttpRequest",
		"Origin":           srv.URL,
		"Referer":          srv.URL + "/TarihselVeriler.aspx",
		"Cookie":           "ASP.NET_SessionId=abc; TS01=x=y",
		"Accept-Language":  cfg.Fingerprint.AcceptLanguage,
		"User-Agent":       cfg.Fingerprint.UserAgent,
	} {
		if got := gotHeader.Get(key); got != want {
			t.Errorf("header %s = %q, want %q", key, got, want)
		}
	}
}

func TestReplayPostErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   models.ErrorKind
	}{
		{"waf page", http.StatusForbidden, "<html><head><title>Request Rejected</title></head></html>", models.KindWafBlocked},
		{"plain refusal", http.StatusUnauthorized, `{"Message":"denied"}`, models.KindClient},
		{"server error", http.StatusInternalServerError, `{"Message":"An error has occurred."}`, models.KindClient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewReplayer(replayConfig(srv.URL)).Post(context.Background(), "/api/x", srv.URL, NewForm(), nil)
			if !models.IsKind(err, tt.want) {
				t.Errorf("err = %v, want kind %s", err, tt.want)
			}
		})
	}
}

func TestReplayPostExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewReplayer(replayConfig(srv.URL)).Post(ctx, "/api/x", srv.URL, NewForm(), nil)
	ae, ok := models.AsAcquisitionError(err)
	if !ok || ae.Kind != models.KindTimeout {
		t.Fatalf("err = %v, want timeout", err)
	}
	if ae.Timeout <= 0 || ae.Timeout > 50*time.Millisecond {
		t.Errorf("Timeout = %v, want the remaining request budget", ae.Timeout)
	}
}

func TestCookieHeader(t *testing.T) {
	got := cookieHeader([]*proto.NetworkCookie{nil, {Name: ""}, {Name: "a", Value: "1"}, {Name: "b", Value: ""}})
	if got != "a=1; b=" {
		t.Errorf("cookieHeader() = %q", got)
	}
}
