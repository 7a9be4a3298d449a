package portal

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/use-agent/fonfetch/models"
	"github.com/use-agent/fonfetch/parser"
	"github.com/use-agent/fonfetch/scraper"
)

// historyColumns are the logical names of the history grid's columns.
var historyColumns = []string{"tarih", "fonKodu", "fonAdi", "fiyat", "paySayisi", "kisiSayisi", "toplamDeger"}

// FetchHistoricalNav pulls daily NAV rows for one fund. It drives the
// history page's date form and search button, reads the endpoint's answer
// and falls back to the rendered grid when no usable answer is captured.
func (c *Client) FetchHistoricalNav(ctx context.Context, code string, start, end time.Time) (models.Payload, error) {
	const op = "fetch historical nav"
	code = strings.ToUpper(strings.TrimSpace(code))
	return withRetry(ctx, c.cfg.Retry, op, func(ctx context.Context) (models.Payload, error) {
		return c.historyOnce(ctx, code, start, end)
	})
}

func (c *Client) historyOnce(ctx context.Context, code string, start, end time.Time) (models.Payload, error) {
	began := time.Now()
	portal := c.cfg.Portal
	sel := c.cfg.Selectors
	endpoint := portal.HistoryEndpoint

	s, err := c.browser.Open(ctx)
	if err != nil {
		return models.Payload{}, err
	}
	defer s.Close()

	if err := s.Navigate(ctx, portal.HistoryPageURL()); err != nil {
		return models.Payload{}, err
	}

	if err := scraper.FillField(ctx, s, scraper.Field{Name: "start date", Selector: sel.StartDate}, parser.FormatPortalDate(start)); err != nil {
		return models.Payload{}, err
	}
	if err := scraper.FillField(ctx, s, scraper.Field{Name: "end date", Selector: sel.EndDate}, parser.FormatPortalDate(end)); err != nil {
		return models.Payload{}, err
	}
	if code != "" && sel.FundCodeFilter != "" {
		// The grid filter is a convenience; the transformer filters by code anyway.
		if err := scraper.FillField(ctx, s, scraper.Field{Name: "fund code filter", Selector: sel.FundCodeFilter}, code); err != nil {
			slog.Debug("fund code filter not applied", "session", s.ID, "error", err)
		}
	}

	corr := scraper.Register(s, endpoint, c.cfg.Correlator)
	defer corr.Close()

	if err := scraper.ClickSearch(ctx, s, searchTarget(sel)); err != nil {
		return models.Payload{}, err
	}

	p, err := c.collect(ctx, s, acquisition{
		op:          "historical nav",
		endpoint:    endpoint,
		referer:     portal.HistoryPageURL(),
		corr:        corr,
		minCount:    1,
		form:        HistoryForm(code, start, end),
		table:       &scraper.TableSpec{Name: "history", Selector: sel.HistoryTable, Columns: historyColumns},
		requireRows: true,
	})
	if err != nil {
		return models.Payload{}, err
	}
	slog.Info("historical nav acquired",
		"session", s.ID, "source", p.Source, "code", code, "elapsed", time.Since(began))
	return p, nil
}
