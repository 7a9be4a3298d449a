package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/fonfetch/models"
	"github.com/use-agent/fonfetch/parser"
	"github.com/use-agent/fonfetch/portal"
)

// FundService is the typed acquisition API the handlers serve.
// *portal.Service implements it.
type FundService interface {
	GetFund(ctx context.Context, code string) (portal.Result[*models.FundRecord], error)
	GetNav(ctx context.Context, code string, start, end time.Time) (portal.Result[[]models.PriceRecord], error)
	GetPerformance(ctx context.Context, code string, start, end time.Time) (portal.Result[[]models.PerformanceRecord], error)
}

// GetFund returns a handler for GET /api/v1/funds/:code.
func GetFund(svc FundService, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()
		code := c.Param("code")

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		res, err := svc.GetFund(ctx, code)
		timing := timingOf(totalStart, res.Acquisition, res.Transform)
		if err != nil {
			respondError(c, err, timing)
			return
		}
		if res.Data == nil {
			respondNotFound(c, code, timing)
			return
		}

		c.JSON(http.StatusOK, models.Response{
			Success: true,
			Data:    res.Data,
			Count:   1,
			Source:  res.Source,
			Timing:  timing,
		})
	}
}

// GetNav returns a handler for GET /api/v1/funds/:code/nav?start=&end=.
// An empty range is a successful empty list.
func GetNav(svc FundService, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()
		start, end, err := dateRange(c)
		if err != nil {
			respondError(c, err, timingOf(totalStart, 0, 0))
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		res, err := svc.GetNav(ctx, c.Param("code"), start, end)
		timing := timingOf(totalStart, res.Acquisition, res.Transform)
		if err != nil {
			respondError(c, err, timing)
			return
		}

		data := res.Data
		if data == nil {
			data = []models.PriceRecord{}
		}
		c.JSON(http.StatusOK, models.Response{
			Success: true,
			Data:    data,
			Count:   len(data),
			Source:  res.Source,
			Timing:  timing,
		})
	}
}

// GetPerformance returns a handler for
// GET /api/v1/funds/:code/performance?start=&end=.
func GetPerformance(svc FundService, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()
		start, end, err := dateRange(c)
		if err != nil {
			respondError(c, err, timingOf(totalStart, 0, 0))
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		code := c.Param("code")
		res, err := svc.GetPerformance(ctx, code, start, end)
		timing := timingOf(totalStart, res.Acquisition, res.Transform)
		if err != nil {
			respondError(c, err, timing)
			return
		}
		if len(res.Data) == 0 {
			respondNotFound(c, code, timing)
			return
		}

		c.JSON(http.StatusOK, models.Response{
			Success: true,
			Data:    res.Data,
			Count:   len(res.Data),
			Source:  res.Source,
			Timing:  timing,
		})
	}
}

// dateRange reads the start and end query parameters. Both ISO and the
// portal's dd.MM.yyyy forms are accepted.
func dateRange(c *gin.Context) (time.Time, time.Time, error) {
	start, err := queryDate(c, "start")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := queryDate(c, "end")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func queryDate(c *gin.Context, name string) (time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: query parameter %q is required", portal.ErrInvalidInput, name)
	}
	d := parser.ParseDate(raw)
	if d == nil {
		return time.Time{}, fmt.Errorf("%w: %s=%q is not a date", portal.ErrInvalidInput, name, raw)
	}
	return d.Time, nil
}

func timingOf(totalStart time.Time, acquisition, transform time.Duration) models.TimingInfo {
	return models.TimingInfo{
		TotalMs:       time.Since(totalStart).Milliseconds(),
		AcquisitionMs: acquisition.Milliseconds(),
		TransformMs:   transform.Milliseconds(),
	}
}
