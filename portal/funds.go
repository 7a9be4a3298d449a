package portal

import (
	"context"
	"log/slog"
	"time"

	"github.com/use-agent/fonfetch/models"
	"github.com/use-agent/fonfetch/scraper"
)

// FetchFundReturns pulls the comparison returns list. The correlator is
// registered before navigation so the page's own load-time request counts
// too; the in-page request with q's filters is normally the last to land.
func (c *Client) FetchFundReturns(ctx context.Context, q models.Query) (models.Payload, error) {
	const op = "fetch fund returns"
	return withRetry(ctx, c.cfg.Retry, op, func(ctx context.Context) (models.Payload, error) {
		return c.fundReturnsOnce(ctx, q)
	})
}

func (c *Client) fundReturnsOnce(ctx context.Context, q models.Query) (models.Payload, error) {
	start := time.Now()
	portal := c.cfg.Portal
	endpoint := portal.ComparisonEndpoint

	s, err := c.browser.Open(ctx)
	if err != nil {
		return models.Payload{}, err
	}
	defer s.Close()

	corr := scraper.Register(s, endpoint, c.cfg.Correlator)
	defer corr.Close()

	if err := s.Navigate(ctx, portal.ComparisonPageURL()); err != nil {
		return models.Payload{}, err
	}

	form := ComparisonForm(q)
	if err := scraper.TriggerXHR(ctx, s, endpoint, form); err != nil {
		return models.Payload{}, err
	}

	p, err := c.collect(ctx, s, acquisition{
		op:       "fund returns",
		endpoint: endpoint,
		referer:  portal.ComparisonPageURL(),
		corr:     corr,
		minCount: c.cfg.Correlator.MinCount,
		form:     form,
	})
	if err != nil {
		return models.Payload{}, err
	}
	slog.Info("fund returns acquired",
		"session", s.ID, "source", p.Source, "code", q.FundCode, "elapsed", time.Since(start))
	return p, nil
}
