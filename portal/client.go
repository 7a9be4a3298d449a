package portal

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/use-agent/fonfetch/config"
	"github.com/use-agent/fonfetch/models"
	"github.com/use-agent/fonfetch/parser"
	"github.com/use-agent/fonfetch/scraper"
)

// Client runs the acquisition flows against the portal. Each attempt opens
// its own incognito session on the shared browser and tears it down on
// every path. Client is safe for concurrent use; callers bound concurrency.
type Client struct {
	browser  *scraper.Browser
	replayer *scraper.Replayer
	cfg      *config.Config
}

// NewClient creates a client over a launched browser.
func NewClient(browser *scraper.Browser, cfg *config.Config) *Client {
	return &Client{
		browser:  browser,
		replayer: scraper.NewReplayer(cfg),
		cfg:      cfg,
	}
}

// Stats reports session usage of the underlying browser.
func (c *Client) Stats() models.SessionStats {
	return c.browser.Stats()
}

// attempt is one try of a flow on a fresh session.
type attempt func(ctx context.Context) (models.Payload, error)

// withRetry runs fn until it succeeds, fails with a non-retryable kind or
// the attempts run out. Every error it returns is classified.
func withRetry(ctx context.Context, rc config.RetryConfig, op string, fn attempt) (models.Payload, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = rc.InitialDelay
	b.MaxInterval = rc.MaxDelay
	b.MaxElapsedTime = 0

	retries := rc.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}

	budget := scraper.Budget(ctx, 0)
	n := 0
	operation := func() (models.Payload, error) {
		n++
		p, err := fn(ctx)
		if err == nil {
			return p, nil
		}
		err = Classify(op, err, "", budget)
		if !Retryable(err) || ctx.Err() != nil {
			return models.Payload{}, backoff.Permanent(err)
		}
		return models.Payload{}, err
	}
	notify := func(err error, wait time.Duration) {
		slog.Warn("acquisition attempt failed, retrying",
			"operation", op,
			"attempt", n,
			"wait", wait,
			"error", err,
		)
	}

	p, err := backoff.RetryNotifyWithData(operation,
		backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx), notify)
	if err != nil {
		// A context cut during the backoff wait surfaces as the bare ctx error.
		return models.Payload{}, Classify(op, err, "", budget)
	}
	return p, nil
}

// acquisition describes how one flow reads its data once the page is ready
// and the search has fired.
type acquisition struct {
	op       string
	endpoint string
	referer  string
	corr     *scraper.Correlator
	minCount int
	form     *scraper.Form
	table    *scraper.TableSpec
	// requireRows treats a captured response without rows as a miss.
	requireRows bool
}

// paths are the ways a flow can read its data, in the order they are tried.
// table and replay are nil when the flow or the configuration has none.
type paths struct {
	consume func(ctx context.Context) (scraper.Envelope, error)
	table   func(ctx context.Context) (models.Payload, error)
	replay  func(ctx context.Context) (models.Payload, error)
}

// collect reads the data of a flow whose search has fired on s.
func (c *Client) collect(ctx context.Context, s *scraper.Session, a acquisition) (models.Payload, error) {
	p := paths{
		consume: func(ctx context.Context) (scraper.Envelope, error) {
			return c.consume(ctx, a.corr, a.minCount)
		},
	}
	if a.table != nil {
		spec := *a.table
		p.table = func(ctx context.Context) (models.Payload, error) {
			return c.readTable(ctx, s, spec)
		}
	}
	if c.cfg.Portal.ReplayOnTimeout && a.form != nil {
		p.replay = func(ctx context.Context) (models.Payload, error) {
			return c.replay(ctx, s, a)
		}
	}
	log := slog.With("session", s.ID, "endpoint", a.endpoint)
	return fallback(ctx, log, a, p, c.cfg.Correlator.MaxWait)
}

// fallback tries the intercepted response, then the rendered table, then a
// direct replay of the form. Only a timeout moves on to the next path; any
// other failure is returned as is. A response that does not answer the flow
// counts as a timeout.
func fallback(ctx context.Context, log *slog.Logger, a acquisition, p paths, maxWait time.Duration) (models.Payload, error) {
	start := time.Now()
	env, err := p.consume(ctx)
	if err == nil {
		if usable(a, env.Body) {
			log.Info("payload captured", "seq", env.Seq, "bytes", len(env.Body), "elapsed", time.Since(start))
			return models.Payload{
				Source:     models.SourceNetwork,
				Endpoint:   a.endpoint,
				Body:       env.Body,
				CapturedAt: env.CapturedAt,
			}, nil
		}
		log.Warn("captured response has no rows", "seq", env.Seq)
		err = models.NewTimeoutError(a.op, maxWait, "no usable response from "+a.endpoint)
	}
	if !models.IsKind(err, models.KindTimeout) {
		return models.Payload{}, err
	}

	if p.table != nil {
		pl, tableErr := p.table(ctx)
		if tableErr == nil {
			return pl, nil
		}
		log.Warn("table fallback failed", "error", tableErr)
		err = tableErr
		if !models.IsKind(err, models.KindTimeout) {
			return models.Payload{}, err
		}
	}

	if p.replay == nil {
		return models.Payload{}, err
	}
	pl, err := p.replay(ctx)
	if err == nil && !usable(a, pl.Body) {
		err = models.NewTimeoutError("replay "+a.endpoint, scraper.Budget(ctx, maxWait), "replay returned no usable response")
	}
	if err != nil {
		log.Warn("replay failed", "error", err)
		return models.Payload{}, err
	}
	return pl, nil
}

// usable reports whether a body read from the endpoint answers the flow.
func usable(a acquisition, body string) bool {
	if !scraper.HasContent(body) {
		return false
	}
	return !a.requireRows || hasRows(a.op, body)
}

func (c *Client) consume(ctx context.Context, corr *scraper.Correlator, minCount int) (scraper.Envelope, error) {
	cc := c.cfg.Correlator
	if !cc.ConsumeLast {
		return corr.ConsumeOne(ctx, cc.MaxWait)
	}
	return corr.ConsumeLast(ctx, minCount, cc.QuietPeriod, cc.MaxWait)
}

func (c *Client) readTable(ctx context.Context, s *scraper.Session, spec scraper.TableSpec) (models.Payload, error) {
	if err := scraper.WaitForRows(ctx, s, spec, c.cfg.Timing.TableTimeout); err != nil {
		return models.Payload{}, err
	}
	rows, err := scraper.ExtractRows(ctx, s, spec)
	if err != nil {
		return models.Payload{}, err
	}
	slog.Info("payload read from table", "session", s.ID, "table", spec.Name, "rows", len(rows))
	return models.Payload{
		Source:     models.SourceTable,
		Endpoint:   spec.Selector,
		Table:      rows,
		CapturedAt: time.Now(),
	}, nil
}

func (c *Client) replay(ctx context.Context, s *scraper.Session, a acquisition) (models.Payload, error) {
	cookies, err := s.Cookies(ctx, c.cfg.Portal.BaseURL)
	if err != nil {
		return models.Payload{}, models.NewClientError("replay "+a.endpoint, "failed to read session cookies", err)
	}
	raw, err := c.replayer.Post(ctx, a.endpoint, a.referer, a.form, cookies)
	if err != nil {
		return models.Payload{}, err
	}
	if models.IsMarkup(raw.Body) {
		return models.Payload{}, models.NewWafBlockedError("replay "+a.endpoint, raw.Body)
	}
	slog.Info("payload replayed", "session", s.ID, "endpoint", a.endpoint, "bytes", len(raw.Body))
	return models.Payload{
		Source:     models.SourceReplay,
		Endpoint:   a.endpoint,
		Body:       raw.Body,
		CapturedAt: time.Now(),
	}, nil
}

// hasRows reports whether body decodes to at least one row.
func hasRows(op, body string) bool {
	rows, err := parser.DecodeRows(op, body)
	return err == nil && len(rows) > 0
}
