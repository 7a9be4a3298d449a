package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/fonfetch/config"
)

func serve(r *gin.Engine, header map[string]string) int {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Auth([]string{"secret"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	tests := []struct {
		name   string
		header map[string]string
		want   int
	}{
		{"missing", nil, http.StatusUnauthorized},
		{"wrong", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"header", map[string]string{"X-API-Key": "secret"}, http.StatusNoContent},
		{"bearer", map[string]string{"Authorization": "Bearer secret"}, http.StatusNoContent},
	}
	for _, tt := range tests {
		if got := serve(r, tt.header); got != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimit(config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for i, want := range []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests} {
		if got := serve(r, nil); got != want {
			t.Errorf("request %d: status = %d, want %d", i+1, got, want)
		}
	}
}

func TestRateLimitPerRouteAndCaller(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Auth([]string{"a", "b"}))
	r.Use(RateLimit(config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}))
	ok := func(c *gin.Context) { c.Status(http.StatusNoContent) }
	r.GET("/funds/:code", ok)
	r.GET("/funds/:code/nav", ok)

	get := func(path, key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("X-API-Key", key)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	if w := get("/funds/AAK", "a"); w.Code != http.StatusNoContent {
		t.Fatalf("first lookup: status = %d", w.Code)
	}
	// Another code on the same route shares the bucket.
	w := get("/funds/TTE", "a")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second lookup: status = %d, want 429", w.Code)
	}
	if ra := w.Header().Get("Retry-After"); ra == "" || ra == "0" {
		t.Errorf("Retry-After = %q, want a positive hint", ra)
	}
	if w := get("/funds/AAK/nav", "a"); w.Code != http.StatusNoContent {
		t.Errorf("nav route: status = %d, want its own bucket", w.Code)
	}
	if w := get("/funds/AAK", "b"); w.Code != http.StatusNoContent {
		t.Errorf("other caller: status = %d, want its own bucket", w.Code)
	}
}

func TestSessionLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	release := make(chan struct{})
	entered := make(chan struct{}, 1)

	r := gin.New()
	r.Use(SessionLimit(1, 50*time.Millisecond))
	r.GET("/x", func(c *gin.Context) {
		entered <- struct{}{}
		<-release
		c.Status(http.StatusNoContent)
	})

	var wg sync.WaitGroup
	wg.Add(1)
	var first int
	go func() {
		defer wg.Done()
		first = serve(r, nil)
	}()
	<-entered

	if got := serve(r, nil); got != http.StatusTooManyRequests {
		t.Errorf("second request: status = %d, want 429", got)
	}

	close(release)
	wg.Wait()
	if first != http.StatusNoContent {
		t.Errorf("first request: status = %d", first)
	}

	// The slot is free again.
	entered = make(chan struct{}, 1)
	release = make(chan struct{})
	close(release)
	if got := serve(r, nil); got != http.StatusNoContent {
		t.Errorf("third request: status = %d, want 204", got)
	}
}
