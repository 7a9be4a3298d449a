package portal

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/use-agent/fonfetch/config"
	"github.com/use-agent/fonfetch/models"
	"github.com/use-agent/fonfetch/parser"
	"github.com/use-agent/fonfetch/scraper"
)

// returnsColumns are the logical names of the comparison grid's columns.
var returnsColumns = []string{"fonKodu", "fonAdi", "semsiyeFonTuru", "getiri"}

// FetchFundPerformance pulls every fund's return over [start, end] from the
// comparison page's date-range search. The result is not narrowed to code;
// code only labels the logs.
func (c *Client) FetchFundPerformance(ctx context.Context, code string, start, end time.Time) (models.Payload, error) {
	const op = "fetch fund performance"
	code = strings.ToUpper(strings.TrimSpace(code))
	return withRetry(ctx, c.cfg.Retry, op, func(ctx context.Context) (models.Payload, error) {
		return c.performanceOnce(ctx, code, start, end)
	})
}

func (c *Client) performanceOnce(ctx context.Context, code string, start, end time.Time) (models.Payload, error) {
	began := time.Now()
	portal := c.cfg.Portal
	sel := c.cfg.Selectors
	endpoint := portal.ComparisonEndpoint

	s, err := c.browser.Open(ctx)
	if err != nil {
		return models.Payload{}, err
	}
	defer s.Close()

	if err := s.Navigate(ctx, portal.ComparisonPageURL()); err != nil {
		return models.Payload{}, err
	}
	if err := scraper.FillField(ctx, s, scraper.Field{Name: "start date", Selector: sel.StartDate}, parser.FormatPortalDate(start)); err != nil {
		return models.Payload{}, err
	}
	if err := scraper.FillField(ctx, s, scraper.Field{Name: "end date", Selector: sel.EndDate}, parser.FormatPortalDate(end)); err != nil {
		return models.Payload{}, err
	}

	// Registered after the page load so its default request is not mistaken
	// for the date-range answer.
	corr := scraper.Register(s, endpoint, c.cfg.Correlator)
	defer corr.Close()

	if err := scraper.ClickSearch(ctx, s, searchTarget(sel)); err != nil {
		return models.Payload{}, err
	}

	p, err := c.collect(ctx, s, acquisition{
		op:       "fund performance",
		endpoint: endpoint,
		referer:  portal.ComparisonPageURL(),
		corr:     corr,
		minCount: 1,
		form: ComparisonForm(models.Query{
			FundType: portal.FundType,
			Start:    start,
			End:      end,
		}),
		table:       &scraper.TableSpec{Name: "returns", Selector: sel.ReturnsTable, Columns: returnsColumns},
		requireRows: true,
	})
	if err != nil {
		return models.Payload{}, err
	}
	slog.Info("fund performance acquired",
		"session", s.ID, "source", p.Source, "code", code, "elapsed", time.Since(began))
	return p, nil
}

func searchTarget(sel config.SelectorConfig) scraper.ClickTarget {
	return scraper.ClickTarget{
		Selector: sel.SearchButton,
		ID:       sel.SearchButtonID,
		Text:     sel.SearchButtonText,
	}
}
