package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/fonfetch/models"
	"github.com/use-agent/fonfetch/portal"
)

type fakeService struct {
	fund portal.Result[*models.FundRecord]
	nav  portal.Result[[]models.PriceRecord]
	perf portal.Result[[]models.PerformanceRecord]
	err  error

	start, end time.Time
}

func (f *fakeService) GetFund(context.Context, string) (portal.Result[*models.FundRecord], error) {
	return f.fund, f.err
}

func (f *fakeService) GetNav(_ context.Context, _ string, start, end time.Time) (portal.Result[[]models.PriceRecord], error) {
	f.start, f.end = start, end
	return f.nav, f.err
}

func (f *fakeService) GetPerformance(_ context.Context, _ string, start, end time.Time) (portal.Result[[]models.PerformanceRecord], error) {
	f.start, f.end = start, end
	return f.perf, f.err
}

func newTestRouter(svc FundService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/funds/:code", GetFund(svc, time.Second))
	r.GET("/funds/:code/nav", GetNav(svc, time.Second))
	r.GET("/funds/:code/performance", GetPerformance(svc, time.Second))
	return r
}

type envelope struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Count   int                 `json:"count"`
	Source  string              `json:"source"`
	Error   *models.ErrorDetail `json:"error"`
}

func do(t *testing.T, r *gin.Engine, target string) (int, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("response is not JSON: %v\n%s", err, w.Body.String())
	}
	return w.Code, env
}

func TestGetFundOK(t *testing.T) {
	name := "Test Fon"
	svc := &fakeService{fund: portal.Result[*models.FundRecord]{
		Data:   &models.FundRecord{FundCode: "AAK", FundName: &name},
		Source: models.SourceNetwork,
	}}
	code, env := do(t, newTestRouter(svc), "/funds/AAK")
	if code != http.StatusOK || !env.Success {
		t.Fatalf("status = %d, success = %v", code, env.Success)
	}
	var rec models.FundRecord
	if err := json.Unmarshal(env.Data, &rec); err != nil {
		t.Fatal(err)
	}
	if rec.FundCode != "AAK" || rec.FundName == nil || *rec.FundName != name {
		t.Errorf("data = %+v", rec)
	}
	if env.Source != "network" {
		t.Errorf("source = %q", env.Source)
	}
}

func TestGetFundNotFound(t *testing.T) {
	code, env := do(t, newTestRouter(&fakeService{}), "/funds/ZZZ")
	if code != http.StatusNotFound || env.Error == nil || env.Error.Code != models.ErrCodeNotFound {
		t.Errorf("status = %d, error = %+v", code, env.Error)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
		code string
	}{
		{models.NewNavigationError("nav", "down", nil), http.StatusServiceUnavailable, string(models.KindNavigation)},
		{models.NewWafBlockedError("consume", "<html></html>"), http.StatusServiceUnavailable, string(models.KindWafBlocked)},
		{models.NewTimeoutError("consume", time.Second, "quiet"), http.StatusGatewayTimeout, string(models.KindTimeout)},
		{models.NewParseError("decode", "bad", "{", nil), http.StatusUnprocessableEntity, string(models.KindParse)},
		{models.NewClientError("click", "missing", nil), http.StatusBadGateway, string(models.KindClient)},
		{portal.ErrInvalidInput, http.StatusBadRequest, models.ErrCodeInvalidInput},
		{errors.New("boom"), http.StatusInternalServerError, models.ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, env := do(t, newTestRouter(&fakeService{err: tt.err}), "/funds/AAK")
			if status != tt.want {
				t.Errorf("status = %d, want %d", status, tt.want)
			}
			if env.Success || env.Error == nil || env.Error.Code != tt.code {
				t.Fatalf("error = %+v, want code %s", env.Error, tt.code)
			}
			if ae, ok := models.AsAcquisitionError(tt.err); ok && env.Error.CorrelationID != ae.CorrelationID {
				t.Errorf("correlationId = %q, want %q", env.Error.CorrelationID, ae.CorrelationID)
			}
		})
	}
}

func TestGetNavDates(t *testing.T) {
	svc := &fakeService{}
	code, env := do(t, newTestRouter(svc), "/funds/AAK/nav?start=2024-01-01&end=31.01.2024")
	if code != http.StatusOK {
		t.Fatalf("status = %d, error = %+v", code, env.Error)
	}
	if string(env.Data) != "[]" {
		t.Errorf("data = %s, want []", env.Data)
	}
	if svc.start.Format("2006-01-02") != "2024-01-01" || svc.end.Format("2006-01-02") != "2024-01-31" {
		t.Errorf("range = %v..%v", svc.start, svc.end)
	}
}

func TestGetNavBadDates(t *testing.T) {
	for _, target := range []string{
		"/funds/AAK/nav?end=2024-01-31",
		"/funds/AAK/nav?start=yesterday&end=2024-01-31",
	} {
		code, env := do(t, newTestRouter(&fakeService{}), target)
		if code != http.StatusBadRequest || env.Error == nil || env.Error.Code != models.ErrCodeInvalidInput {
			t.Errorf("%s: status = %d, error = %+v", target, code, env.Error)
		}
	}
}

func TestGetPerformance(t *testing.T) {
	g := 12.5
	svc := &fakeService{perf: portal.Result[[]models.PerformanceRecord]{
		Data: []models.PerformanceRecord{{FundCode: "AAK", Getiri: &g}},
	}}
	code, env := do(t, newTestRouter(svc), "/funds/AAK/performance?start=2024-01-01&end=2024-06-30")
	if code != http.StatusOK || env.Count != 1 {
		t.Errorf("status = %d, count = %d", code, env.Count)
	}

	code, env = do(t, newTestRouter(&fakeService{}), "/funds/AAK/performance?start=2024-01-01&end=2024-06-30")
	if code != http.StatusNotFound {
		t.Errorf("empty performance: status = %d, error = %+v", code, env.Error)
	}
}

type fixedStats models.SessionStats

func (s fixedStats) Stats() models.SessionStats { return models.SessionStats(s) }

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		stats fixedStats
		want  string
	}{
		{fixedStats{MaxSessions: 4, ActiveSessions: 1}, "healthy"},
		{fixedStats{MaxSessions: 4, ActiveSessions: 4}, "degraded"},
	}
	for _, tt := range tests {
		r := gin.New()
		r.GET("/health", Health(tt.stats, time.Now()))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		var got models.HealthResponse
		if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
			t.Fatal(err)
		}
		if got.Status != tt.want || got.Version != Version {
			t.Errorf("health = %+v, want status %s", got, tt.want)
		}
	}
}
