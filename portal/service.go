package portal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/use-agent/fonfetch/models"
	"github.com/use-agent/fonfetch/parser"
	"github.com/use-agent/fonfetch/scraper"
)

// ErrInvalidInput marks caller mistakes detected before any acquisition.
var ErrInvalidInput = errors.New("invalid input")

// Fetcher acquires raw payloads. *Client implements it.
type Fetcher interface {
	FetchFundReturns(ctx context.Context, q models.Query) (models.Payload, error)
	FetchHistoricalNav(ctx context.Context, code string, start, end time.Time) (models.Payload, error)
	FetchFundPerformance(ctx context.Context, code string, start, end time.Time) (models.Payload, error)
}

// Result is typed data plus where it came from and what it cost.
type Result[T any] struct {
	Data        T
	Source      models.PayloadSource
	Acquisition time.Duration
	Transform   time.Duration
}

// Service turns acquired payloads into typed records.
type Service struct {
	fetcher Fetcher
}

// NewService creates a service over f.
func NewService(f Fetcher) *Service {
	return &Service{fetcher: f}
}

// GetFund returns the fund with code, or nil Data when the portal does not
// list it.
func (s *Service) GetFund(ctx context.Context, code string) (Result[*models.FundRecord], error) {
	var res Result[*models.FundRecord]
	code, err := normalizeCode(code)
	if err != nil {
		return res, err
	}

	rows, err := s.acquire(ctx, &res.Source, &res.Acquisition, "decode fund returns", func() (models.Payload, error) {
		return s.fetcher.FetchFundReturns(ctx, models.Query{FundCode: code})
	})
	if err != nil {
		return res, err
	}

	start := time.Now()
	if funds := parser.FilterFunds(parser.Funds(rows), code); len(funds) > 0 {
		res.Data = &funds[0]
	}
	res.Transform = time.Since(start)
	return res, nil
}

// GetNav returns the fund's daily prices in [start, end], in upstream order.
func (s *Service) GetNav(ctx context.Context, code string, start, end time.Time) (Result[[]models.PriceRecord], error) {
	var res Result[[]models.PriceRecord]
	code, err := normalizeCode(code)
	if err != nil {
		return res, err
	}
	if err := checkRange(start, end); err != nil {
		return res, err
	}

	rows, err := s.acquire(ctx, &res.Source, &res.Acquisition, "decode historical nav", func() (models.Payload, error) {
		return s.fetcher.FetchHistoricalNav(ctx, code, start, end)
	})
	if err != nil {
		return res, err
	}

	began := time.Now()
	res.Data = parser.Prices(rows, code)
	res.Transform = time.Since(began)
	return res, nil
}

// GetPerformance returns the fund's return over [start, end]. Data is empty
// when the fund is not in the comparison.
func (s *Service) GetPerformance(ctx context.Context, code string, start, end time.Time) (Result[[]models.PerformanceRecord], error) {
	var res Result[[]models.PerformanceRecord]
	code, err := normalizeCode(code)
	if err != nil {
		return res, err
	}
	if err := checkRange(start, end); err != nil {
		return res, err
	}

	rows, err := s.acquire(ctx, &res.Source, &res.Acquisition, "decode fund performance", func() (models.Payload, error) {
		return s.fetcher.FetchFundPerformance(ctx, code, start, end)
	})
	if err != nil {
		return res, err
	}

	began := time.Now()
	res.Data = parser.Performance(rows, code)
	res.Transform = time.Since(began)
	return res, nil
}

// acquire runs fetch and decodes its payload into rows, recording the
// payload source and acquisition time.
func (s *Service) acquire(ctx context.Context, source *models.PayloadSource, took *time.Duration, op string, fetch func() (models.Payload, error)) ([]parser.Row, error) {
	start := time.Now()
	budget := scraper.Budget(ctx, 0)
	p, err := fetch()
	*took = time.Since(start)
	if err != nil {
		return nil, Classify(op, err, "", budget)
	}
	*source = p.Source

	if p.Source == models.SourceTable {
		return parser.TableRows(p.Table), nil
	}
	return parser.DecodeRows(op, p.Body)
}

func normalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "", fmt.Errorf("%w: fund code is required", ErrInvalidInput)
	}
	return code, nil
}

func checkRange(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("%w: start and end dates are required", ErrInvalidInput)
	}
	if end.Before(start) {
		return fmt.Errorf("%w: end date %s is before start date %s",
			ErrInvalidInput, end.Format("2006-01-02"), start.Format("2006-01-02"))
	}
	return nil
}
